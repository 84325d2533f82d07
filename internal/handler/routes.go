package handler

import (
	"github.com/labstack/echo/v4"
)

// AuthMiddleware is the identity-resolution middleware applied to the
// forwarding routes. A distinct type so fx can inject it.
type AuthMiddleware echo.MiddlewareFunc

// RegisterRoutes wires all route handlers onto the Echo instance.
// The document-upload and chat routes are registered before the
// catch-all JSON route; Echo picks the most specific match.
func RegisterRoutes(e *echo.Echo, api *APIHandler, upload *UploadHandler, stream *StreamHandler, health *HealthHandler, auth AuthMiddleware) {
	e.GET("/healthz", health.Healthz)
	e.GET("/gateway/status", health.Status)

	g := e.Group("/api/v1", echo.MiddlewareFunc(auth))
	g.POST("/bots/:id/documents", upload.Handle)
	g.POST("/bots/:id/chat", stream.Handle)
	g.Any("/*", api.Handle)
}
