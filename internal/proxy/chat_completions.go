package proxy

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/florianilch/copilot-proxy/internal/completions"
	"github.com/florianilch/copilot-proxy/internal/copilot"
	"github.com/florianilch/copilot-proxy/internal/observability/middleware"
)

// CreateChatCompletionsHandler handles OpenAI-compatible chat completion requests.
type CreateChatCompletionsHandler struct {
	Upstream Upstream
}

// Compile-time check to ensure CreateChatCompletionsHandler implements http.Handler
var _ http.Handler = (*CreateChatCompletionsHandler)(nil)

// ServeHTTP implements http.Handler interface for streaming or non-streaming requests.
func (h *CreateChatCompletionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req copilot.ChatRequest
	if !decodeRequest(ctx, w, r, &req) {
		return
	}

	switch {
	case req.Model == "":
		writeJSONOpenAIError(ctx, w, newErrorResponse("invalid_request_error", "model is required"))
		return
	case len(req.Messages) == 0:
		writeJSONOpenAIError(ctx, w, newErrorResponse("invalid_request_error", "messages must not be empty"))
		return
	}

	middleware.SetLogAttrs(ctx, slog.String("model", req.Model), slog.Bool("stream", req.Stream))

	if req.Stream {
		h.streamResponse(ctx, w, req)
	} else {
		h.writeResponse(ctx, w, req)
	}
}

// writeResponse handles non-streaming chat completion requests.
func (h *CreateChatCompletionsHandler) writeResponse(ctx context.Context, w http.ResponseWriter, req copilot.ChatRequest) {
	if ctx.Err() != nil {
		return
	}
	response, err := h.Upstream.Chat(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "request failed", "error", err)
		writeUpstreamError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, response, http.StatusOK)
}

// streamResponse re-emits upstream chunks as SSE.
func (h *CreateChatCompletionsHandler) streamResponse(ctx context.Context, w http.ResponseWriter, req copilot.ChatRequest) {
	if ctx.Err() != nil {
		return
	}
	stream, err := h.Upstream.ChatStream(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "streaming request failed", "error", err)
		writeUpstreamError(ctx, w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", err)
		writeJSONOpenAIError(ctx, w, newErrorResponse("api_error", http.StatusText(http.StatusInternalServerError)))
		// release the upstream body
		for range stream {
			break
		}
		return
	}

	var chunks int
	for chunk, err := range stream {
		// Check for client disconnect before processing chunk
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "client disconnected during stream", "chunks", chunks)
			return
		}

		if err != nil {
			slog.ErrorContext(ctx, "stream error", "error", err, "chunks", chunks)
			h.writeStreamError(ctx, sse, err)
			return
		}

		if err := sse.WriteData(chunk); err != nil {
			slog.ErrorContext(ctx, "failed to write chunk", "error", err)
			return
		}
		chunks++
	}

	// OpenAI streaming protocol requires [DONE] marker
	if err := sse.WriteRaw(completions.DoneSentinel); err != nil {
		slog.ErrorContext(ctx, "failed to write stream termination marker", "error", err)
	}
}

// writeStreamError emits an error event. OpenAI SDKs recognize the
// {"error": {...}} payload and stop reading.
func (h *CreateChatCompletionsHandler) writeStreamError(ctx context.Context, sse *SSEWriter, err error) {
	errResp, _ := toErrorResponse(ctx, err)
	if errResp.Err.Type == "upstream_error" {
		errResp.Err.Message = err.Error()
	}

	if writeErr := sse.WriteEvent("error"); writeErr != nil {
		slog.ErrorContext(ctx, "failed to write error event type", "error", writeErr)
		return
	}
	if writeErr := sse.WriteData(errResp); writeErr != nil {
		slog.ErrorContext(ctx, "failed to write error", "error", writeErr)
	}
}
