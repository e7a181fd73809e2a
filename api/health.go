package api

import (
	"log/slog"
	"net/http"

	"github.com/vizorai/canvas/internal/canvas"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	manager *canvas.Manager
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(manager *canvas.Manager, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{manager: manager, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness is a liveness probe endpoint.
// Returns 200 OK if the process is alive.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness is a readiness probe endpoint.
// Returns 200 OK once the session manager is wired.
func (h *HealthHandler) readiness(w http.ResponseWriter, _ *http.Request) {
	if h.manager == nil {
		h.logger.Error("readiness check failed: session manager not configured")
		http.Error(w, "session manager not configured", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
