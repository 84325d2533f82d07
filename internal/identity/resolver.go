package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"botforge-gateway-go/internal/config"
)

// ErrInvalidCredential is returned when the account service rejects the
// presented bearer token.
var ErrInvalidCredential = errors.New("credential rejected by account service")

// HTTPResolver resolves credentials against the account service's
// introspection endpoint.
type HTTPResolver struct {
	httpClient *http.Client
	verifyURL  string
	logger     *slog.Logger
}

// NewHTTPResolver creates an HTTPResolver from the auth section of the config.
func NewHTTPResolver(cfg *config.Config, logger *slog.Logger) *HTTPResolver {
	return &HTTPResolver{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Auth.TimeoutSeconds) * time.Second,
		},
		verifyURL: strings.TrimSuffix(cfg.Auth.BaseURL, "/") + "/internal/auth/verify",
		logger:    logger.With("component", "identity_resolver"),
	}
}

// verifyResponse is the account service's introspection result.
type verifyResponse struct {
	UserID string `json:"user_id"`
}

// Resolve asks the account service to verify the credential and returns
// the caller it maps to. The credential itself is never logged.
func (r *HTTPResolver) Resolve(ctx context.Context, credential string) (*Caller, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.verifyURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set(HeaderAuthorization, "Bearer "+credential)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify credential: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidCredential
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify credential: account service returned %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if vr.UserID == "" {
		return nil, fmt.Errorf("verify response missing user_id")
	}

	return &Caller{UserID: vr.UserID, Token: credential}, nil
}
