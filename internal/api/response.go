package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/strideworks/coachguard/internal/models"
)

// writeJSONResponse writes an APIResponse with the given HTTP status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("writeJSONResponse: failed to encode response", "error", err)
	}
}

// requireMethod enforces the HTTP method and writes 405 otherwise.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		slog.Warn("api: method not allowed", "path", r.URL.Path, "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// subjectParam extracts the required subject query parameter.
func subjectParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("subject query parameter is required"))
		return "", false
	}
	return subject, true
}
