package tokensource

import (
	"fmt"
	"net/http"
)

// FetchError reports a failed service token fetch: a transport failure, a
// non-200 status or an unusable body.
type FetchError struct {
	// StatusCode is zero when no response was received.
	StatusCode int
	Body       []byte
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("failed to get copilot token: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("failed to get copilot token (status %d): %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("failed to get copilot token: status %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

// Unwrap returns the underlying error, if any.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether GitHub rejected the credential itself.
func (e *FetchError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
