package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vizorai/canvas/internal/artifact"
	"github.com/vizorai/canvas/internal/normalize"
	"github.com/vizorai/canvas/internal/validate"
)

const (
	// DefaultDebounce bounds update frequency during rapid token streaming.
	// The timer is always rescheduled to the latest mutation, so the final
	// state is never dropped, only delayed by at most this window.
	DefaultDebounce = 150 * time.Millisecond

	// DefaultSeenCacheSize bounds the idempotence seen-set. Old entries
	// evict in LRU order; a session would need this many distinct tool
	// results in flight before a re-delivered result could reapply.
	DefaultSeenCacheSize = 1024
)

// ErrTool is the error code recorded when the transport reports a failed
// invocation. ErrTimeout is recorded by hosts when a guarded tool call
// stalls; both surface as error artifacts the UI can message on.
const (
	ErrTool    = "tool_error"
	ErrTimeout = "tool_timeout"
)

// Config configures a Scanner.
type Config struct {
	// Debounce is the coalescing window for stream mutations.
	// Zero means DefaultDebounce.
	Debounce time.Duration

	// Allowlist names the visualization tools whose parts are scanned.
	// Parts from other tools are ignored entirely.
	Allowlist []string

	// SeenCacheSize bounds the seen-set. Zero means DefaultSeenCacheSize.
	SeenCacheSize int

	// OnChange, if set, runs after a flush that mutated the store or the
	// view state. Used to push fresh canvas signals to subscribers.
	OnChange func()
}

// Scanner watches message snapshots for visualization tool calls and
// reconciles them into the artifact store.
//
// Notify is safe to call from any goroutine; scans themselves are
// serialized. Each tool-call state is applied at most once per message,
// guarded by a composite seen key, so re-scanning the same snapshot on
// every token tick is harmless.
type Scanner struct {
	store     *artifact.Store
	view      *artifact.ViewState
	validator validate.Validator
	logger    *slog.Logger
	tracer    trace.Tracer

	allow    map[string]bool
	debounce time.Duration
	seen     *lru.Cache[string, struct{}]
	onChange func()

	mu       sync.Mutex
	timer    *time.Timer
	snapshot []Message
	closed   bool
}

// NewScanner creates a scanner bound to one session's store and view state.
func NewScanner(store *artifact.Store, view *artifact.ViewState, validator validate.Validator, cfg Config, logger *slog.Logger) (*Scanner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if validator == nil {
		validator = validate.Nop{}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.SeenCacheSize <= 0 {
		cfg.SeenCacheSize = DefaultSeenCacheSize
	}

	seen, err := lru.New[string, struct{}](cfg.SeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create seen cache: %w", err)
	}

	allow := make(map[string]bool, len(cfg.Allowlist))
	for _, name := range cfg.Allowlist {
		allow[name] = true
	}

	return &Scanner{
		store:     store,
		view:      view,
		validator: validator,
		logger:    logger,
		tracer:    otel.Tracer("github.com/vizorai/canvas/internal/stream"),
		allow:     allow,
		debounce:  cfg.Debounce,
		seen:      seen,
		onChange:  cfg.OnChange,
	}, nil
}

// Notify records the latest stream snapshot and (re)schedules a scan after
// the debounce window. Bursts of mutations collapse into one scan of the
// final snapshot.
func (s *Scanner) Notify(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.snapshot = msgs
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.Flush)
}

// Flush cancels any pending debounce and scans the current snapshot
// immediately. Called by the debounce timer; hosts call it directly on
// teardown to avoid dropping a final state.
func (s *Scanner) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.scanLocked()
}

// Close stops the pending timer and discards the seen-set. Idempotent.
func (s *Scanner) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seen.Purge()
	s.snapshot = nil
}

// scanLocked processes the most recent assistant message's parts.
// Caller holds s.mu.
func (s *Scanner) scanLocked() {
	msg := lastAssistant(s.snapshot)
	if msg == nil {
		return
	}

	_, span := s.tracer.Start(context.Background(), "canvas.scan",
		trace.WithAttributes(attribute.String("message.id", msg.ID)))
	defer span.End()

	detected := false
	changed := false
	for i, part := range msg.Parts {
		if !s.allow[part.ToolName] {
			continue
		}
		detected = true

		switch {
		case part.Starting():
			changed = s.applyStart(msg.ID, part) || changed
		case part.Failed():
			changed = s.applyFailure(msg.ID, part) || changed
		case part.TerminalCandidate():
			changed = s.applyTerminal(msg.ID, i, part) || changed
		}
	}

	span.SetAttributes(
		attribute.Bool("canvas.detected", detected),
		attribute.Bool("canvas.changed", changed),
	)

	if detected {
		changed = s.view.AutoShow() || changed
	}
	if changed && s.onChange != nil {
		s.onChange()
	}
}

// applyStart creates a loading placeholder for an unseen starting part.
func (s *Scanner) applyStart(msgID string, part Part) bool {
	if part.ToolCallID == "" {
		return false
	}
	key := seenKey("start", msgID, part.ToolName, part.ToolCallID)
	if _, dup := s.seen.Get(key); dup {
		return false
	}

	_, err := s.store.UpsertLoading(artifact.Loading{
		ID:        part.ToolCallID,
		Kind:      kindForTool(part.ToolName, part.Input),
		Title:     titleFor(part),
		GroupName: inputString(part.Input, "canvasName"),
		Metadata:  map[string]any{"toolName": part.ToolName},
	})
	if err != nil {
		s.logger.Warn("loading upsert failed",
			"tool", part.ToolName,
			"tool_call_id", part.ToolCallID,
			"error", err)
		return false
	}

	s.seen.Add(key, struct{}{})
	return true
}

// applyFailure transitions the placeholder for a transport-reported error.
func (s *Scanner) applyFailure(msgID string, part Part) bool {
	if part.ToolCallID == "" {
		return false
	}
	key := seenKey("error", msgID, part.ToolName, part.ToolCallID)
	if _, dup := s.seen.Get(key); dup {
		return false
	}

	msg := inputString(part.Output, "message")
	if msg == "" {
		msg = "tool invocation failed"
	}
	if _, err := s.store.MarkError(part.ToolCallID, ErrTool, msg); err != nil {
		s.logger.Warn("error upsert failed",
			"tool_call_id", part.ToolCallID,
			"error", err)
		return false
	}

	s.seen.Add(key, struct{}{})
	return true
}

// applyTerminal normalizes a terminal-candidate part and promotes or
// creates the completed artifact. Re-delivery of an already-seen key is a
// no-op: this is the idempotence boundary that protects against the
// scanner re-processing the same message on every token tick.
func (s *Scanner) applyTerminal(msgID string, idx int, part Part) bool {
	res, skip := normalize.Normalize(part.Output)
	if skip != nil {
		if skip.Reason != normalize.SkipInProgress {
			s.logger.Debug("skipping tool result",
				"tool", part.ToolName,
				"tool_call_id", part.ToolCallID,
				"reason", skip.String())
		}
		return false
	}

	// A minted id changes on every re-delivery, so results that carry no
	// identity of their own fall back to the tool-call id, and failing
	// that to the part's position in the message. Either way the id is
	// stable across re-scans and the seen key below can match.
	if res.IDGenerated {
		switch {
		case part.ToolCallID != "":
			res.ArtifactID = part.ToolCallID
		default:
			res.ArtifactID = fmt.Sprintf("%s-part-%d", msgID, idx)
		}
	}

	key := seenKey("done", msgID, res.ArtifactID)
	if _, dup := s.seen.Get(key); dup {
		return false
	}

	if err := s.validator.Validate(res.Kind, res.Payload); err != nil {
		skip := normalize.Skip{Reason: normalize.SkipValidationFailed, Err: err}
		s.logger.Warn("payload rejected",
			"tool", part.ToolName,
			"artifact_id", res.ArtifactID,
			"reason", skip.String())
		return false
	}

	s.reconcileIdentity(part.ToolCallID, res.ArtifactID)

	if res.Metadata == nil {
		res.Metadata = make(map[string]any)
	}
	if part.ToolName != "" {
		res.Metadata["toolName"] = part.ToolName
	}

	if _, err := s.store.UpsertCompleted(artifact.Completed{
		ID:        res.ArtifactID,
		Kind:      res.Kind,
		Title:     res.Title,
		GroupName: res.GroupName,
		Payload:   res.Payload,
		Metadata:  res.Metadata,
	}); err != nil {
		s.logger.Warn("completed upsert failed",
			"artifact_id", res.ArtifactID,
			"error", err)
		return false
	}

	s.seen.Add(key, struct{}{})
	return true
}

// reconcileIdentity renames a loading placeholder keyed by the tool-call id
// onto the server-issued artifact id, so the promotion lands on one
// artifact instead of creating a duplicate.
func (s *Scanner) reconcileIdentity(toolCallID, artifactID string) {
	if toolCallID == "" || toolCallID == artifactID {
		return
	}
	placeholder, err := s.store.Get(toolCallID)
	if err != nil || placeholder.Status != artifact.StatusLoading {
		return
	}
	if _, err := s.store.Get(artifactID); err == nil {
		return
	}
	if err := s.store.Rename(toolCallID, artifactID); err != nil {
		s.logger.Warn("placeholder rename failed",
			"from", toolCallID,
			"to", artifactID,
			"error", err)
	}
}

func seenKey(parts ...string) string {
	return strings.Join(parts, "|")
}

// titleFor derives a display title from the tool input, falling back to a
// humanized tool name ("create_bar_chart" → "bar chart").
func titleFor(part Part) string {
	if t := inputString(part.Input, "title"); t != "" {
		return t
	}
	name := strings.TrimPrefix(part.ToolName, "create_")
	return strings.ReplaceAll(name, "_", " ")
}

// kindForTool guesses the artifact kind before the terminal result
// arrives, from input arguments first and tool naming second.
func kindForTool(toolName string, input map[string]any) artifact.Kind {
	if input != nil && input["chartType"] != nil {
		return artifact.KindChart
	}
	switch {
	case strings.Contains(toolName, "chart"), strings.Contains(toolName, "gauge"):
		return artifact.KindChart
	case strings.Contains(toolName, "table"):
		return artifact.KindTable
	case strings.Contains(toolName, "dashboard"):
		return artifact.KindDashboard
	case strings.Contains(toolName, "image"):
		return artifact.KindImage
	case strings.Contains(toolName, "text"), strings.Contains(toolName, "document"):
		return artifact.KindText
	default:
		return artifact.KindData
	}
}

func inputString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
