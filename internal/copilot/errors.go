package copilot

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/florianilch/copilot-proxy/internal/transport"
)

// maxErrorBody caps the upstream body kept on an APIError.
const maxErrorBody = 4096

// APIError is a non-2xx response from the Copilot API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	Body       []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("copilot api: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("copilot api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// upstreamError is the body shape of Copilot and OpenAI error responses.
type upstreamError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
	Message string `json:"message"`
}

func newAPIError(status int, body []byte) *APIError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	apiErr := &APIError{StatusCode: status, Body: body}

	var parsed upstreamError
	switch {
	case json.Unmarshal(body, &parsed) != nil:
		apiErr.Message = strings.TrimSpace(string(body))
	case parsed.Error != nil:
		apiErr.Message = parsed.Error.Message
		apiErr.Type = parsed.Error.Type
	default:
		apiErr.Message = parsed.Message
	}
	return apiErr
}

// statusOf maps a streaming transport error to its status code, or 0.
func statusOf(err error) (int, []byte) {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, statusErr.Body
	}
	return 0, nil
}

// ErrModelNotFound is returned by Client.Model for unknown model IDs.
var ErrModelNotFound = errors.New("model not found")
