package middleware

import (
	"github.com/labstack/echo/v4"
)

// VersionHeader stamps every response with the service version
func VersionHeader(version string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-API-Version", version)
			return next(c)
		}
	}
}

// LegacyRoute marks a route kept only for old gateway configurations and
// points callers at its replacement.
func LegacyRoute(replacement string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-API-Deprecated", "true")
			c.Response().Header().Set("Link", "<"+replacement+">; rel=\"successor-version\"")
			return next(c)
		}
	}
}
