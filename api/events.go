package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vizorai/canvas/internal/canvas"
	"github.com/vizorai/canvas/internal/sse"
)

// HeartbeatInterval keeps idle event streams alive through proxies.
const HeartbeatInterval = 15 * time.Second

// EventsHandler streams canvas signals over SSE.
type EventsHandler struct {
	manager   *canvas.Manager
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(manager *canvas.Manager, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{manager: manager, logger: logger, heartbeat: HeartbeatInterval}
}

// RegisterRoutes registers the event stream route on the given mux.
func (h *EventsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions/{id}/events", h.stream)
}

// stream subscribes the client to the session's signal feed. The current
// snapshot is sent first so late subscribers start from a complete state.
func (h *EventsHandler) stream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, err := h.manager.Get(id)
	if err != nil {
		respondErr(w, http.StatusNotFound, codeSessionNotFound, "no session with id "+id)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		h.logger.Error("sse unsupported", "error", err)
		respondErr(w, http.StatusInternalServerError, codeStreamingUnsupported, err.Error())
		return
	}

	signals, cancel := s.Subscribe()
	defer cancel()

	ctx := r.Context()
	if err := writer.WriteJSON(ctx, "canvas", s.Snapshot()); err != nil {
		h.logger.Debug("initial snapshot write failed", "session_id", id, "error", err)
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				// Session closed; tell the client not to reconnect.
				_ = writer.WriteError(string(codeSessionClosed), "session was torn down")
				return
			}
			if err := writer.WriteJSON(ctx, "canvas", sig); err != nil {
				h.logger.Debug("signal write failed", "session_id", id, "error", err)
				return
			}
		case <-ticker.C:
			if err := writer.WriteHeartbeat(); err != nil {
				return
			}
		}
	}
}
