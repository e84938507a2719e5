package proxy

import (
	"context"
	"errors"
	"net/http"

	"github.com/florianilch/copilot-proxy/internal/copilot"
	"github.com/florianilch/copilot-proxy/internal/tokensource"
)

// Error is an OpenAI-formatted error.
type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// ErrorResponse wraps Error the way OpenAI clients expect: {"error": {...}}.
type ErrorResponse struct {
	Err Error `json:"error"`
}

// Error implements the error interface.
func (e *ErrorResponse) Error() string {
	return e.Err.Message
}

func newErrorResponse(errType, message string) *ErrorResponse {
	return &ErrorResponse{Err: Error{Message: message, Type: errType}}
}

// statusForType maps OpenAI error types to HTTP status codes.
func statusForType(errType string) int {
	switch errType {
	case "invalid_request_error":
		return http.StatusBadRequest
	case "authentication_error":
		return http.StatusUnauthorized
	case "permission_denied":
		return http.StatusForbidden
	case "not_found_error":
		return http.StatusNotFound
	case "rate_limit_error", "insufficient_quota":
		return http.StatusTooManyRequests
	case "upstream_error":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// typeForStatus maps upstream HTTP statuses to OpenAI error types.
func typeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "authentication_error"
	case status == http.StatusForbidden:
		return "permission_denied"
	case status == http.StatusNotFound:
		return "not_found_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status >= 400 && status < 500:
		return "invalid_request_error"
	default:
		return "api_error"
	}
}

// toErrorResponse converts an upstream failure into the error shown to
// clients and the HTTP status to send it with.
func toErrorResponse(ctx context.Context, err error) (*ErrorResponse, int) {
	var apiErr *copilot.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = http.StatusText(apiErr.StatusCode)
		}
		errType := apiErr.Type
		if errType == "" {
			errType = typeForStatus(apiErr.StatusCode)
		}
		return newErrorResponse(errType, message), apiErr.StatusCode
	}

	var fetchErr *tokensource.FetchError
	if errors.As(err, &fetchErr) && fetchErr.Unauthorized() {
		return newErrorResponse("authentication_error",
			"GitHub credential rejected by Copilot; run 'auth login' again"), http.StatusUnauthorized
	}

	if ctx.Err() != nil {
		return newErrorResponse("api_error", "request cancelled"), 499
	}

	return newErrorResponse("upstream_error", http.StatusText(http.StatusBadGateway)), http.StatusBadGateway
}
