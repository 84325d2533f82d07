// Package relay provides the low-level HTTP primitive that forwards a
// single call to the internal compute service. It knows nothing about
// JSON or multipart; callers decide whether to buffer or stream the
// response body.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"syscall"
	"time"

	"botforge-gateway-go/internal/config"
	"botforge-gateway-go/internal/metrics"
	"botforge-gateway-go/internal/model"
)

// Client sends requests to the internal compute service.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a Client with connection pooling and bounded connect and
// header-wait phases. There is no whole-request timeout: an SSE relay
// may legitimately stay open until the upstream closes the stream, so
// only the dial and response-header phases are bounded.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	transport := &http.Transport{
		MaxIdleConns:          cfg.Compute.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Compute.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.Compute.HeaderTimeoutSeconds) * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   time.Duration(cfg.Compute.ConnectTimeoutSeconds) * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		logger:     logger.With("component", "relay"),
		metrics:    m,
	}
}

// Do forwards one call to the compute service and returns the response
// with its body unread. The caller owns closing the body. A streamed
// request body is written to the connection as it is read, never
// buffered first; a read error on it fails the whole call.
// The provided context controls the lifetime of the outbound request:
// when it is canceled (e.g. the inbound caller disconnects), the
// outbound request is canceled too.
func (c *Client) Do(ctx context.Context, method, target string, header http.Header, body io.Reader) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build compute request: %w", err)
	}
	if header != nil {
		req.Header = header
	}

	c.logger.Debug("compute request",
		"method", method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	m := metrics.NormalizeMethod(method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(m).Observe(duration)
		}
		return nil, fmt.Errorf("compute request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(m).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(m, status).Inc()
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// IsUnavailable reports whether err is a connect-level failure: the
// compute service refused the connection, the dial timed out, or its
// host did not resolve. These map to 503 at the inbound surface; other
// network failures map to 502.
func IsUnavailable(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	// Dial timeouts surface as os.ErrDeadlineExceeded or a timeout
	// net.Error from the dialer, wrapped in *url.Error by http.Client.
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	return false
}
