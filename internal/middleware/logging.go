// Package middleware provides Echo middleware for logging, security,
// and metrics.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"botforge-gateway-go/internal/identity"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// The resolved caller id is included when identity middleware ran first;
// the credential itself is never logged.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if caller, ok := identity.FromContext(c); ok {
				attrs = append(attrs, "user_id", caller.UserID)
			}

			logger.Info("request", attrs...)

			return err
		}
	}
}
