package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"botforge-gateway-go/internal/gateway"
	"botforge-gateway-go/internal/identity"
	"botforge-gateway-go/internal/metrics"
	"botforge-gateway-go/internal/model"
)

// streamCopyBufferSize is the chunk size for piping SSE bytes. Each
// chunk is flushed as soon as it is written so events reach the client
// without intermediary buffering.
const streamCopyBufferSize = 4096

// StreamHandler relays chat requests whose responses are server-sent
// event streams.
type StreamHandler struct {
	forwarder *gateway.Forwarder
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewStreamHandler creates a StreamHandler. The metrics parameter is
// optional; pass nil to disable stream gauge tracking.
func NewStreamHandler(f *gateway.Forwarder, m *metrics.Metrics, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		forwarder: f,
		metrics:   m,
		logger:    logger.With("component", "stream_handler"),
	}
}

// Handle sends the JSON request body upstream and pipes the event
// stream back live. The streaming headers are committed before the
// first body byte; after that point a failure can only terminate the
// stream, never change the status, so mid-stream errors close the
// connection instead of writing an error body into the event stream.
func (h *StreamHandler) Handle(c echo.Context) error {
	caller, ok := identity.FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, model.NewErrorBody("caller identity missing"))
	}

	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, model.NewErrorBody("read request body"))
	}

	// The request context is canceled by the server when the inbound
	// caller disconnects, which cancels the outbound read in turn.
	resp, err := h.forwarder.ForwardStream(req.Context(), caller, req.URL.Path, body)
	if err != nil {
		return mapRelayError(c, h.logger, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if h.metrics != nil {
		h.metrics.StreamsActive.Inc()
		defer h.metrics.StreamsActive.Dec()
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	c.Response().WriteHeader(resp.StatusCode)
	c.Response().Flush()

	buf := make([]byte, streamCopyBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Response().Write(buf[:n]); werr != nil {
				h.logger.Debug("inbound caller gone mid-stream",
					"err", werr,
					"path", req.URL.Path,
				)
				return nil
			}
			c.Response().Flush()
		}
		if err != nil {
			if err != io.EOF {
				h.logger.Debug("upstream stream ended",
					"err", err,
					"path", req.URL.Path,
				)
			}
			return nil
		}
	}
}
