package middleware

import (
	"net/http"
	"time"

	"agendafacil/internal/common"
	"agendafacil/internal/models"
	"agendafacil/internal/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuditMiddleware records operator actions on the ops API
type AuditMiddleware struct {
	auditService services.AuditLogsService
	logger       *zap.Logger
}

// NewAuditMiddleware creates a new audit middleware instance
func NewAuditMiddleware(auditService services.AuditLogsService, logger *zap.Logger) *AuditMiddleware {
	return &AuditMiddleware{
		auditService: auditService,
		logger:       logger.Named("audit"),
	}
}

// AuditOperatorActions logs every mutating request and every failed read.
// A failure to write the audit entry never fails the request.
func (m *AuditMiddleware) AuditOperatorActions() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			method := c.Request().Method
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			if method == http.MethodGet && err == nil && status < http.StatusBadRequest {
				return err
			}

			operator, _ := common.OperatorFromContext(c.Request().Context())
			details := models.JSONB{
				"method":    method,
				"path":      c.Path(),
				"ip":        c.RealIP(),
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}
			if err != nil {
				details["error"] = err.Error()
			}

			if logErr := m.auditService.LogActivity(c.Request().Context(), operator, method+" "+c.Path(), c.Param("externalId"), status, details); logErr != nil {
				m.logger.Error("failed to log audit activity", zap.String("operator", operator), zap.Error(logErr))
			}
			return err
		}
	}
}
