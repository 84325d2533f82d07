// Package gateway implements the three forwarding façades on top of
// the relay: buffered JSON calls, streamed multipart uploads, and live
// SSE chat streams. All three build their outbound request the same
// way and differ only in buffering discipline.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"botforge-gateway-go/internal/config"
	"botforge-gateway-go/internal/identity"
	"botforge-gateway-go/internal/model"
	"botforge-gateway-go/internal/relay"
)

// Forwarder drives the relay toward the configured compute origin.
type Forwarder struct {
	relay            *relay.Client
	baseURL          *url.URL
	responseMaxBytes int64
	logger           *slog.Logger
}

// NewForwarder creates a Forwarder bound to the compute origin from config.
func NewForwarder(c *relay.Client, cfg *config.Config, logger *slog.Logger) (*Forwarder, error) {
	u, err := url.Parse(cfg.Compute.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse compute base_url: %w", err)
	}

	return &Forwarder{
		relay:            c,
		baseURL:          u,
		responseMaxBytes: cfg.Compute.ResponseMaxBytes,
		logger:           logger.With("component", "forwarder"),
	}, nil
}

// JSONResult is a fully buffered compute-service response. Body holds
// the raw bytes; whether they are valid JSON is the handler's concern,
// since a non-JSON upstream body is still forwarded with its status.
type JSONResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// ForwardJSON relays a bounded JSON request and buffers the whole
// response. JSON responses are small; buffering lets the inbound
// handler forward a complete payload with the upstream status.
func (f *Forwarder) ForwardJSON(ctx context.Context, caller *identity.Caller, method, path string, query url.Values, body []byte) (*JSONResult, error) {
	header := f.outboundHeader(caller)

	var reqBody io.Reader
	if len(body) > 0 {
		header.Set("Content-Type", "application/json")
		reqBody = bytes.NewReader(body)
	}

	f.logger.Debug("forwarding json call",
		"method", method,
		"path", path,
		"user_id", caller.UserID,
	)

	resp, err := f.relay.Do(ctx, method, f.outboundURL(path, query), header, reqBody)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.responseMaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read compute response: %w", err)
	}
	if int64(len(raw)) > f.responseMaxBytes {
		// Forwarding a truncated body with the upstream status would
		// corrupt the payload; fail the whole call instead.
		return nil, fmt.Errorf("compute response exceeds %d bytes", f.responseMaxBytes)
	}

	return &JSONResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        raw,
	}, nil
}

// ForwardUpload re-encodes the file parts as a multipart body and
// relays it as a live stream, so a large upload is never held in two
// copies. The response comes back unread; the caller owns its body and
// is expected to pipe status, headers, and bytes through untouched.
func (f *Forwarder) ForwardUpload(ctx context.Context, caller *identity.Caller, path string, parts []model.FilePart) (*model.UpstreamResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		for _, part := range parts {
			dst, err := createFormFile(mw, part)
			if err != nil {
				_ = pw.CloseWithError(fmt.Errorf("encode part %q: %w", part.FieldName, err))
				return
			}
			if _, err := dst.Write(part.Data); err != nil {
				_ = pw.CloseWithError(fmt.Errorf("write part %q: %w", part.FieldName, err))
				return
			}
		}
		if err := mw.Close(); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.Close()
	}()

	header := f.outboundHeader(caller)
	header.Set("Content-Type", mw.FormDataContentType())

	f.logger.Debug("forwarding upload",
		"path", path,
		"parts", len(parts),
		"user_id", caller.UserID,
	)

	resp, err := f.relay.Do(ctx, http.MethodPost, f.outboundURL(path, nil), header, pr)
	if err != nil {
		// Stop the encoder goroutine if it is still writing.
		_ = pr.CloseWithError(err)
		return nil, err
	}
	return resp, nil
}

// ForwardStream sends a bounded JSON body and returns the response
// with its body still live, for the handler to pipe as SSE. Nothing is
// buffered and the event framing is left entirely to the upstream.
func (f *Forwarder) ForwardStream(ctx context.Context, caller *identity.Caller, path string, body []byte) (*model.UpstreamResponse, error) {
	header := f.outboundHeader(caller)
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "text/event-stream")

	f.logger.Debug("forwarding stream",
		"path", path,
		"user_id", caller.UserID,
	)

	return f.relay.Do(ctx, http.MethodPost, f.outboundURL(path, nil), header, bytes.NewReader(body))
}

// outboundURL resolves an inbound path and query against the compute origin.
func (f *Forwarder) outboundURL(path string, query url.Values) string {
	u := *f.baseURL
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// outboundHeader starts every outbound call from the caller's identity
// headers. This is the single place identity becomes headers.
func (f *Forwarder) outboundHeader(caller *identity.Caller) http.Header {
	return caller.Headers()
}

// createFormFile writes a part header carrying the original filename
// and content type. multipart.Writer.CreateFormFile hardcodes
// application/octet-stream, so the header is built by hand.
func createFormFile(mw *multipart.Writer, part model.FilePart) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, part.FieldName, part.Filename))
	contentType := part.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	return mw.CreatePart(h)
}
