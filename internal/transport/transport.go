// Package transport provides the HTTP plumbing shared by the device flow, the
// token refresher and the Copilot client.
//
// Callers never build requests themselves: they hand a URL, a JSON-encodable
// body and a header set to a Transport and get back either a fully read
// Response or, for streaming endpoints, the unread response body.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Transport performs the three request shapes used against GitHub and Copilot.
type Transport interface {
	// Post sends body as JSON and returns the fully read response. Non-2xx
	// statuses are not errors; callers inspect Response.StatusCode.
	Post(ctx context.Context, url string, body any, header http.Header) (*Response, error)

	// Get returns the fully read response. Non-2xx statuses are not errors.
	Get(ctx context.Context, url string, header http.Header) (*Response, error)

	// PostStreaming sends body as JSON and returns the unread response body.
	// Non-2xx statuses are returned as *StatusError. The caller must close
	// the returned body.
	PostStreaming(ctx context.Context, url string, body any, header http.Header) (io.ReadCloser, error)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// StatusError reports a non-2xx response from a streaming request.
type StatusError struct {
	StatusCode int
	Body       []byte
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
}
