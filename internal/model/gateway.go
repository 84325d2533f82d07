// Package model defines shared in-flight types for the gateway.
package model

import (
	"io"
	"net/http"
)

// UpstreamResponse represents a compute-service response whose body has
// not been read yet. The component that receives it owns closing Body.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// FilePart is one file of a multipart upload, fully buffered in memory.
// It lives only for the duration of a single upload relay.
type FilePart struct {
	FieldName   string
	Filename    string
	ContentType string
	Data        []byte
}

// ErrorBody is the structured JSON error payload returned for every
// failure the gateway itself produces (as opposed to upstream statuses,
// which pass through verbatim).
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewErrorBody builds the standard failure payload.
func NewErrorBody(msg string) ErrorBody {
	return ErrorBody{Success: false, Error: msg}
}
