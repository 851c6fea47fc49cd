package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// writeError answers with {"error": msg}. Every failure is a 500.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
}
