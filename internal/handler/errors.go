package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"botforge-gateway-go/internal/model"
	"botforge-gateway-go/internal/relay"
)

// mapRelayError translates a relay failure into a gateway-class inbound
// response. Only called before any response bytes have been written;
// once a status is committed the façades terminate the stream instead.
func mapRelayError(c echo.Context, logger *slog.Logger, err error) error {
	// The inbound caller disconnecting cancels the request context; the
	// connection is gone, so no response is attempted.
	if errors.Is(err, context.Canceled) {
		logger.Debug("inbound caller disconnected",
			"path", c.Request().URL.Path,
		)
		return nil
	}

	logger.Error("relay error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, model.NewErrorBody("compute service timed out"))
	case relay.IsUnavailable(err):
		return c.JSON(http.StatusServiceUnavailable, model.NewErrorBody("compute service unavailable"))
	default:
		return c.JSON(http.StatusBadGateway, model.NewErrorBody("compute request failed"))
	}
}
