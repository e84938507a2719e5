package proxy

import (
	"net/http"
	"time"

	"github.com/florianilch/copilot-proxy/internal/copilot"
)

// openAIModel is a model entry in the OpenAI list format. Extra fields
// help clients that show model names.
type openAIModel struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	Type        string `json:"type"`
	Created     int64  `json:"created"`
	CreatedAt   string `json:"created_at"`
	OwnedBy     string `json:"owned_by"`
	DisplayName string `json:"display_name"`
}

type modelList struct {
	Object string        `json:"object"`
	Data   []openAIModel `json:"data"`
}

func toOpenAIModels(models []copilot.Model, now time.Time) modelList {
	list := modelList{Object: "list", Data: make([]openAIModel, 0, len(models))}
	createdAt := now.UTC().Format(time.RFC3339)
	for _, m := range models {
		list.Data = append(list.Data, openAIModel{
			ID:          m.ID,
			Object:      "model",
			Type:        "model",
			CreatedAt:   createdAt,
			OwnedBy:     m.Vendor,
			DisplayName: m.Name,
		})
	}
	return list
}

// modelsHandler lists the upstream models in OpenAI format. The upstream
// client caches the list.
func modelsHandler(upstream Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		models, err := upstream.Models(ctx)
		if err != nil {
			writeUpstreamError(ctx, w, err)
			return
		}

		writeJSON(ctx, w, toOpenAIModels(models, time.Now()), http.StatusOK)
	}
}
