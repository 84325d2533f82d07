package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"botforge-gateway-go/internal/config"
	"botforge-gateway-go/internal/gateway"
	"botforge-gateway-go/internal/identity"
	"botforge-gateway-go/internal/model"
)

var (
	errTooManyParts = errors.New("too many file parts")
	errPartTooLarge = errors.New("file part exceeds size limit")
)

// UploadHandler relays multipart document uploads to the compute
// service. Part-count and per-part size limits are enforced here,
// before the forwarding façade is invoked.
type UploadHandler struct {
	forwarder    *gateway.Forwarder
	maxParts     int
	maxPartBytes int64
	logger       *slog.Logger
}

// NewUploadHandler creates an UploadHandler.
func NewUploadHandler(f *gateway.Forwarder, cfg *config.Config, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		forwarder:    f,
		maxParts:     cfg.Upload.MaxParts,
		maxPartBytes: cfg.Upload.MaxPartBytes,
		logger:       logger.With("component", "upload_handler"),
	}
}

// Handle reads the inbound file parts, relays them upstream, and pipes
// the upstream response back byte for byte. Headers are copied one
// value at a time so duplicate header instances survive the relay.
func (h *UploadHandler) Handle(c echo.Context) error {
	caller, ok := identity.FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, model.NewErrorBody("caller identity missing"))
	}

	parts, err := h.readParts(c.Request())
	if err != nil {
		switch {
		case errors.Is(err, errTooManyParts):
			return c.JSON(http.StatusBadRequest, model.NewErrorBody(fmt.Sprintf("at most %d files per upload", h.maxParts)))
		case errors.Is(err, errPartTooLarge):
			return c.JSON(http.StatusRequestEntityTooLarge, model.NewErrorBody(fmt.Sprintf("each file must be at most %d bytes", h.maxPartBytes)))
		default:
			return c.JSON(http.StatusBadRequest, model.NewErrorBody("malformed multipart request"))
		}
	}
	if len(parts) == 0 {
		return c.JSON(http.StatusBadRequest, model.NewErrorBody("no files in upload"))
	}

	resp, err := h.forwarder.ForwardUpload(c.Request().Context(), caller, c.Request().URL.Path, parts)
	if err != nil {
		// The relay failed before any inbound bytes were committed, so
		// the client still gets a terminal error status.
		return mapRelayError(c, h.logger, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		// Status already committed; nothing to do but log and close.
		h.logger.Error("piping upload response",
			"err", err,
			"path", c.Request().URL.Path,
		)
	}

	return nil
}

// readParts decodes the inbound multipart body into memory, preserving
// part order. Non-file fields are skipped; only file parts are relayed.
func (h *UploadHandler) readParts(r *http.Request) ([]model.FilePart, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("open multipart reader: %w", err)
	}

	var parts []model.FilePart
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart part: %w", err)
		}
		if part.FileName() == "" {
			_ = part.Close()
			continue
		}
		if len(parts) >= h.maxParts {
			_ = part.Close()
			return nil, errTooManyParts
		}

		data, err := io.ReadAll(io.LimitReader(part, h.maxPartBytes+1))
		_ = part.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %q: %w", part.FormName(), err)
		}
		if int64(len(data)) > h.maxPartBytes {
			return nil, errPartTooLarge
		}

		parts = append(parts, model.FilePart{
			FieldName:   part.FormName(),
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	return parts, nil
}
