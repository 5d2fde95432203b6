package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the body of locally generated error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is served on GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// healthz answers liveness checks without touching the upstream.
func healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, HealthResponse{Status: "ok"}, http.StatusOK)
}

// writeJSON writes data with the given status. Status is sent before
// encoding, so an encoding failure leaves a truncated body.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeJSONError is http.Error with a JSON body.
func writeJSONError(ctx context.Context, w http.ResponseWriter, message string, status int) {
	writeJSON(ctx, w, ErrorResponse{Error: message}, status)
}
