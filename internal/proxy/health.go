package proxy

import "net/http"

type healthStatus struct {
	Status string `json:"status"`
}

// livenessHandler reports that the process is alive.
func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		writeJSON(r.Context(), w, healthStatus{Status: "alive"}, http.StatusOK)
	}
}

// readinessHandler answers 200 once a Copilot service token has been
// obtained and 503 before that.
func readinessHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		if checker.IsReady() {
			writeJSON(r.Context(), w, healthStatus{Status: "ready"}, http.StatusOK)
			return
		}
		writeJSON(r.Context(), w, healthStatus{Status: "waiting for service token"}, http.StatusServiceUnavailable)
	}
}
