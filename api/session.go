package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vizorai/canvas/internal/artifact"
	"github.com/vizorai/canvas/internal/canvas"
	"github.com/vizorai/canvas/internal/stream"
)

// MaxIngestBytes bounds the message snapshot body.
const MaxIngestBytes = 4 << 20

// SessionHandler handles session-related HTTP endpoints.
type SessionHandler struct {
	manager *canvas.Manager
	logger  *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(manager *canvas.Manager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{manager: manager, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.create)
	mux.HandleFunc("GET /api/sessions/{id}", h.snapshot)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.delete)
	mux.HandleFunc("POST /api/sessions/{id}/messages", h.ingest)
	mux.HandleFunc("POST /api/sessions/{id}/show", h.show)
	mux.HandleFunc("POST /api/sessions/{id}/dismiss", h.dismiss)
	mux.HandleFunc("DELETE /api/sessions/{id}/artifacts/{artifactID}", h.removeArtifact)
}

// create mints a new session.
func (h *SessionHandler) create(w http.ResponseWriter, _ *http.Request) {
	s, err := h.manager.Create()
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		respondErr(w, http.StatusInternalServerError, codeSessionCreateFailed, "could not create session")
		return
	}
	respond(w, http.StatusCreated, map[string]string{"sessionId": s.ID()})
}

// snapshot returns the session's current signal.
func (h *SessionHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, s.Snapshot())
}

// delete tears a session down.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.manager.Delete(id); err != nil {
		respondErr(w, http.StatusNotFound, codeSessionNotFound, "no session with id "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ingestRequest carries one stream snapshot.
type ingestRequest struct {
	Messages []stream.Message `json:"messages"`
	// Flush forces an immediate scan instead of waiting out the debounce
	// window. Hosts set it on the final snapshot of a turn.
	Flush bool `json:"flush,omitempty"`
}

// ingest replaces the session's stream snapshot and schedules a scan.
func (h *SessionHandler) ingest(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req ingestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxIngestBytes))
	if err := dec.Decode(&req); err != nil {
		respondErr(w, http.StatusBadRequest, codeInvalidBody, err.Error())
		return
	}

	s.Notify(req.Messages)
	if req.Flush {
		s.Flush()
	}
	w.WriteHeader(http.StatusAccepted)
}

// show makes the canvas visible (no-op on an empty canvas).
func (h *SessionHandler) show(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	s.Show()
	respond(w, http.StatusOK, s.Snapshot())
}

// dismiss hides the canvas and records the user's intent.
func (h *SessionHandler) dismiss(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	s.Dismiss()
	respond(w, http.StatusOK, s.Snapshot())
}

// removeArtifact deletes one artifact from the session.
func (h *SessionHandler) removeArtifact(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	artifactID := r.PathValue("artifactID")
	if err := s.Remove(artifactID); err != nil {
		switch {
		case errors.Is(err, artifact.ErrNotFound):
			respondErr(w, http.StatusNotFound, codeArtifactNotFound, "no artifact with id "+artifactID)
		default:
			respondErr(w, http.StatusBadRequest, codeInvalidArtifactID, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lookup resolves the session from the {id} path value, writing the error
// response on failure.
func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*canvas.Session, bool) {
	id := r.PathValue("id")
	s, err := h.manager.Get(id)
	if err != nil {
		respondErr(w, http.StatusNotFound, codeSessionNotFound, "no session with id "+id)
		return nil, false
	}
	return s, true
}
