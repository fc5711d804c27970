// Package http exposes the operational HTTP surface: health, status, and
// read-only audit and spend reporting.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON serializes v with the proper content type.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response failed", "error", err)
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
