package proxy

import (
	"log/slog"
	"net/http"

	"github.com/florianilch/copilot-proxy/internal/copilot"
)

// embeddingsHandler forwards embedding requests unchanged.
func embeddingsHandler(upstream Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req copilot.EmbeddingRequest
		if !decodeRequest(ctx, w, r, &req) {
			return
		}
		if req.Model == "" || req.Input == nil {
			writeJSONOpenAIError(ctx, w, newErrorResponse("invalid_request_error", "model and input are required"))
			return
		}

		resp, err := upstream.Embeddings(ctx, req)
		if err != nil {
			slog.ErrorContext(ctx, "embeddings request failed", "error", err)
			writeUpstreamError(ctx, w, err)
			return
		}

		writeJSON(ctx, w, resp, http.StatusOK)
	}
}
