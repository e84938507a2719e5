package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// Logging logs one line per HTTP request with method, path, status and
// duration. Bodies are never logged: they carry prompts and completions.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		// Authorization must never reach the logs
		LogRequestHeaders:  []string{"Content-Type", "Origin", "User-Agent"},
		LogResponseHeaders: []string{},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		// Probes would drown out real traffic
		Skip: func(req *http.Request, respStatus int) bool {
			return isHealthProbe(req) && respStatus < 400
		},

		RecoverPanics: false, // use dedicated middleware, panics are logged regardless
	})
}

func isHealthProbe(r *http.Request) bool {
	return r.URL.Path == "/health/liveness" || r.URL.Path == "/health/readiness"
}

// SetLogAttrs sets attributes on the request log.
func SetLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}
