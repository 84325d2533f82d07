// Package handler exposes the inbound HTTP surface of the gateway.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"botforge-gateway-go/internal/gateway"
	"botforge-gateway-go/internal/identity"
	"botforge-gateway-go/internal/model"
)

// APIHandler forwards JSON API requests to the compute service and
// returns the upstream response with its status intact.
type APIHandler struct {
	forwarder *gateway.Forwarder
	logger    *slog.Logger
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(f *gateway.Forwarder, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		forwarder: f,
		logger:    logger.With("component", "api_handler"),
	}
}

// Handle relays one JSON request/response round trip. The upstream
// status always passes through; if the upstream body turns out not to
// be JSON (an HTML error page, say), the raw bytes are forwarded under
// the upstream's own content type rather than failing the call.
func (h *APIHandler) Handle(c echo.Context) error {
	caller, ok := identity.FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, model.NewErrorBody("caller identity missing"))
	}

	req := c.Request()

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, model.NewErrorBody("read request body"))
		}
		body = b
	}

	res, err := h.forwarder.ForwardJSON(req.Context(), caller, req.Method, req.URL.Path, req.URL.Query(), body)
	if err != nil {
		return mapRelayError(c, h.logger, err)
	}

	if json.Valid(res.Body) {
		return c.JSONBlob(res.StatusCode, res.Body)
	}

	contentType := res.ContentType
	if contentType == "" {
		contentType = echo.MIMETextPlain
	}
	return c.Blob(res.StatusCode, contentType, res.Body)
}
