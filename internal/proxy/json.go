package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeJSONOpenAIError writes an OpenAI-compatible error with the status
// implied by its type.
func writeJSONOpenAIError(ctx context.Context, w http.ResponseWriter, errResp *ErrorResponse) {
	writeJSON(ctx, w, errResp, statusForType(errResp.Err.Type))
}

// writeUpstreamError writes the client-facing form of an upstream failure.
func writeUpstreamError(ctx context.Context, w http.ResponseWriter, err error) {
	errResp, status := toErrorResponse(ctx, err)
	writeJSON(ctx, w, errResp, status)
}

// decodeRequest decodes a JSON request body and writes the error response
// itself when decoding fails.
func decodeRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
		writeJSON(ctx, w, newErrorResponse("invalid_request_error",
			http.StatusText(http.StatusRequestEntityTooLarge)), http.StatusRequestEntityTooLarge)
		return false
	}

	slog.WarnContext(ctx, "failed to decode request", "error", err)
	writeJSONOpenAIError(ctx, w, newErrorResponse("invalid_request_error", "invalid JSON body: "+err.Error()))
	return false
}
