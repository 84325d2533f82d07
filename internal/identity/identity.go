// Package identity carries the resolved caller through a request and
// talks to the external account service that resolves credentials.
// Token issuance and verification live in that service; this package
// only borrows the result for the duration of one call.
package identity

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Header names attached to every outbound compute-service call.
const (
	HeaderUserID        = "X-User-ID"
	HeaderAuthorization = "Authorization"
)

// Caller is the resolved identity of one inbound request: a stable user
// identifier and the bearer credential forwarded upstream. The token
// value must never be logged or persisted.
type Caller struct {
	UserID string
	Token  string
}

// Headers returns the outbound headers carrying the caller identity.
// All three façades inject identity through this one helper.
func (c *Caller) Headers() http.Header {
	h := make(http.Header)
	h.Set(HeaderUserID, c.UserID)
	h.Set(HeaderAuthorization, "Bearer "+c.Token)
	return h
}

// LogValue renders a Caller as its user id only, so a Caller passed to
// slog can never leak the token.
func (c *Caller) LogValue() slog.Value {
	return slog.StringValue(c.UserID)
}

// Resolver resolves an opaque bearer credential into a Caller. The
// production implementation calls the account service; tests provide
// stubs.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (*Caller, error)
}

// callerContextKey is the echo context key holding the resolved Caller.
const callerContextKey = "gateway.caller"

// WithCaller stores the resolved Caller on the request context.
func WithCaller(c echo.Context, caller *Caller) {
	c.Set(callerContextKey, caller)
}

// FromContext retrieves the Caller resolved by the identity middleware.
func FromContext(c echo.Context) (*Caller, bool) {
	caller, ok := c.Get(callerContextKey).(*Caller)
	return caller, ok && caller != nil
}
