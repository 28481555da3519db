package middleware

import (
	"errors"
	"net/http"
	"time"

	"agendafacil/internal/common"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const RoleOperator = "operator"

// OperatorClaims are the claims expected on operator tokens.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// OperatorAuth validates operator tokens signed with secret, or with keys from
// jwksURL when set. The returned stop func ends JWKS refreshing.
func OperatorAuth(secret, jwksURL string, logger *zap.Logger) (echo.MiddlewareFunc, func(), error) {
	cfg := echojwt.Config{
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(OperatorClaims)
		},
		SuccessHandler: func(c echo.Context) {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return
			}
			if claims, ok := token.Claims.(*OperatorClaims); ok {
				c.SetRequest(c.Request().WithContext(common.WithOperator(c.Request().Context(), claims.Subject)))
			}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		},
	}

	stop := func() {}
	switch {
	case jwksURL != "":
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.Warn("failed to refresh operator JWKS", zap.Error(err))
			},
		})
		if err != nil {
			return nil, nil, err
		}
		cfg.KeyFunc = jwks.Keyfunc
		stop = jwks.EndBackground
	case secret != "":
		cfg.SigningKey = []byte(secret)
	default:
		return nil, nil, errors.New("operator auth needs JWT_SECRET or OPERATOR_JWKS_URL")
	}

	return echojwt.WithConfig(cfg), stop, nil
}

// RequireOperator rejects tokens without the operator role.
func RequireOperator(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := c.Get("user").(*jwt.Token)
		if !ok {
			return common.SendUnauthorizedError(c)
		}
		claims, ok := token.Claims.(*OperatorClaims)
		if !ok || claims.Role != RoleOperator {
			return echo.NewHTTPError(http.StatusForbidden, "Operator role required")
		}
		return next(c)
	}
}
