package proxy

import (
	"errors"
	"net/http"
)

// Recovery turns handler panics into an OpenAI-style 500 response.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			// Logging middleware records the panic itself
			writeJSONOpenAIError(r.Context(), w, newErrorResponse("server_error", "internal server error"))
		}()

		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimit caps request bodies. Handlers reading past the limit get
// *http.MaxBytesError and answer 413.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// applyMiddlewares wraps h so that middlewares[0] runs first.
func applyMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
