// Package api provides the HTTP endpoints of the development bot server.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSON writes v as the response body. Encoding failures can only be logged
// because the status line was already sent.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "status", status, "error", err)
	}
}

// Error writes {"error": message}, the shape the widget's upload client reads.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
