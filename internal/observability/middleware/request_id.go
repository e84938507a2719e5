package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDContextKey is a context key for storing request IDs.
type RequestIDContextKey struct{}

// RequestIDFromContext returns the request ID stored by RequestIDGeneration.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RequestIDContextKey{}).(string)
	return id, ok && id != ""
}

// getRequestID reads request ID from X-Request-ID header or context, generates if missing.
func getRequestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	if id, ok := RequestIDFromContext(r.Context()); ok {
		return id
	}
	return uuid.NewString()
}

// RequestIDGeneration reads request ID from client header or context, generates if missing,
// and stores it in request context for downstream handlers.
func RequestIDGeneration(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)

		// Store in request context for downstream middlewares
		ctx := context.WithValue(r.Context(), RequestIDContextKey{}, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDPropagation echoes the request ID in the X-Request-ID response
// header. Log records get it from the context.
func RequestIDPropagation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestID, ok := RequestIDFromContext(r.Context()); ok {
			// Set early so it is present on recovered panics too
			w.Header().Set("X-Request-ID", requestID)
		}

		next.ServeHTTP(w, r)
	})
}
