package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errCode is the machine-readable half of an error payload. Clients
// branch on the code; the message is advisory text for humans.
type errCode string

const (
	codeSessionNotFound      errCode = "session_not_found"
	codeSessionCreateFailed  errCode = "session_create_failed"
	codeSessionClosed        errCode = "session_closed"
	codeArtifactNotFound     errCode = "artifact_not_found"
	codeInvalidArtifactID    errCode = "invalid_artifact_id"
	codeInvalidBody          errCode = "invalid_body"
	codeRateLimited          errCode = "rate_limited"
	codeStreamingUnsupported errCode = "streaming_unsupported"
)

// ErrorResponse is the wire shape of every non-2xx canvasd response.
type ErrorResponse struct {
	Error   errCode `json:"error"`
	Message string  `json:"message,omitempty"`
}

// respond marshals v before touching the response so an encoding failure
// can still surface as a 500 instead of a truncated body behind an
// already-committed status line.
func respond(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("response encoding failed", "error", err)
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func respondErr(w http.ResponseWriter, status int, code errCode, message string) {
	respond(w, status, ErrorResponse{Error: code, Message: message})
}
