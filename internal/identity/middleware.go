package identity

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"botforge-gateway-go/internal/model"
)

// Middleware returns an Echo middleware that resolves the inbound
// bearer credential through the Resolver and stores the Caller on the
// request context. Requests without a valid credential get 401 before
// any forwarding happens.
func Middleware(r Resolver, logger *slog.Logger) echo.MiddlewareFunc {
	log := logger.With("component", "identity_middleware")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			credential := bearerToken(c.Request().Header.Get(HeaderAuthorization))
			if credential == "" {
				return c.JSON(http.StatusUnauthorized, model.NewErrorBody("missing bearer credential"))
			}

			caller, err := r.Resolve(c.Request().Context(), credential)
			if err != nil {
				if errors.Is(err, ErrInvalidCredential) {
					return c.JSON(http.StatusUnauthorized, model.NewErrorBody("invalid credential"))
				}
				log.Error("identity resolution failed", "err", err, "path", c.Request().URL.Path)
				return c.JSON(http.StatusServiceUnavailable, model.NewErrorBody("identity service unavailable"))
			}

			WithCaller(c, caller)
			return next(c)
		}
	}
}

// bearerToken extracts the credential from an Authorization header
// value, accepting only the Bearer scheme.
func bearerToken(value string) string {
	const prefix = "Bearer "
	if len(value) > len(prefix) && strings.EqualFold(value[:len(prefix)], prefix) {
		return value[len(prefix):]
	}
	return ""
}
