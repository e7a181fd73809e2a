// Package canvas owns the per-session engine: one store, one view state,
// one scanner, one renderer registry, torn down together. Nothing in this
// package outlives its Session.
package canvas

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vizorai/canvas/internal/artifact"
	"github.com/vizorai/canvas/internal/config"
	"github.com/vizorai/canvas/internal/progress"
	"github.com/vizorai/canvas/internal/render"
	"github.com/vizorai/canvas/internal/stream"
	"github.com/vizorai/canvas/internal/validate"
)

// DefaultGroupName labels a canvas whose artifacts never declared a group.
const DefaultGroupName = "Canvas"

// DefaultProgressTimeout bounds the gap between two progress updates of a
// running tool call.
const DefaultProgressTimeout = 30 * time.Second

// Signal is the push payload subscribers receive after every state change.
type Signal struct {
	SessionID string              `json:"sessionId"`
	Visible   bool                `json:"visible"`
	GroupName string              `json:"groupName"`
	Artifacts []artifact.Artifact `json:"artifacts"`
	Views     []*render.View      `json:"views"`
}

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	DefaultGroupName string
	ProgressTimeout  time.Duration
	Debounce         time.Duration
	Allowlist        []string
	SeenCacheSize    int
}

// Session wires the engine components for one conversation.
type Session struct {
	id       string
	store    *artifact.Store
	view     *artifact.ViewState
	scanner  *stream.Scanner
	registry *render.Registry
	logger   *slog.Logger

	groupName       string
	progressTimeout time.Duration

	mu      sync.Mutex
	subs    map[int]chan Signal
	nextSub int
	closed  bool
}

// NewSession mints a session id and wires the engine.
func NewSession(opts Options, validator validate.Validator, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.DefaultGroupName == "" {
		opts.DefaultGroupName = DefaultGroupName
	}
	if opts.ProgressTimeout <= 0 {
		opts.ProgressTimeout = DefaultProgressTimeout
	}
	if len(opts.Allowlist) == 0 {
		opts.Allowlist = config.DefaultAllowlist
	}
	if validator == nil {
		validator = validate.Nop{}
	}

	id := uuid.NewString()
	logger = logger.With("session_id", id)

	s := &Session{
		id:              id,
		store:           artifact.NewStore(logger),
		view:            artifact.NewViewState(logger),
		registry:        render.NewRegistry(logger),
		logger:          logger,
		groupName:       opts.DefaultGroupName,
		progressTimeout: opts.ProgressTimeout,
		subs:            make(map[int]chan Signal),
	}

	scanner, err := stream.NewScanner(s.store, s.view, validator, stream.Config{
		Debounce:      opts.Debounce,
		Allowlist:     opts.Allowlist,
		SeenCacheSize: opts.SeenCacheSize,
		OnChange:      s.broadcast,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("wiring scanner: %w", err)
	}
	s.scanner = scanner
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Registry exposes the renderer registry for host customization.
func (s *Session) Registry() *render.Registry { return s.registry }

// Notify hands the scanner a fresh stream snapshot. Safe to call
// concurrently; bursts coalesce in the scanner's debounce window.
func (s *Session) Notify(msgs []stream.Message) {
	s.scanner.Notify(msgs)
}

// Flush forces an immediate scan of the latest snapshot.
func (s *Session) Flush() {
	s.scanner.Flush()
}

// Snapshot assembles the current signal.
func (s *Session) Snapshot() Signal {
	arts := s.store.List()
	group := s.store.GroupName()
	if group == "" {
		group = s.groupName
	}
	views := make([]*render.View, 0, len(arts))
	for i := range arts {
		v, err := s.registry.Render(&arts[i])
		if err != nil {
			s.logger.Warn("skipping unrenderable artifact",
				"artifact_id", arts[i].ID, "error", err)
			continue
		}
		views = append(views, v)
	}
	return Signal{
		SessionID: s.id,
		Visible:   s.view.Visible(),
		GroupName: group,
		Artifacts: arts,
		Views:     views,
	}
}

// Show makes the canvas visible and clears any prior dismissal. Showing an
// empty canvas is a logged no-op.
func (s *Session) Show() {
	if s.store.Len() == 0 {
		s.logger.Warn("ignoring show request for empty canvas")
		return
	}
	s.view.Show()
	s.broadcast()
}

// Dismiss hides the canvas and records the explicit user intent, which
// suppresses auto-show until the next Show.
func (s *Session) Dismiss() {
	s.view.Dismiss()
	s.broadcast()
}

// Remove deletes one artifact. Visibility is untouched even when the last
// artifact goes away.
func (s *Session) Remove(artifactID string) error {
	if err := s.store.Remove(artifactID); err != nil {
		return err
	}
	if s.view.ActiveArtifactID() == artifactID {
		s.view.SetActive("")
	}
	s.broadcast()
	return nil
}

// SetActive focuses one artifact in the presentation layer.
func (s *Session) SetActive(artifactID string) {
	s.view.SetActive(artifactID)
	s.broadcast()
}

// Subscribe registers a signal channel and returns it with its cancel
// function. Slow subscribers drop intermediate signals rather than block
// the engine.
func (s *Session) Subscribe() (<-chan Signal, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Signal, 8)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// RunTool drives one tool invocation through the guarded progress channel.
// Each update merges into the loading placeholder; the final update becomes
// the terminal result and flows through the normal reconcile path. A stalled
// or failed producer marks the placeholder errored.
func (s *Session) RunTool(ctx context.Context, toolName, toolCallID string, src <-chan progress.Update[map[string]any]) error {
	if err := artifact.ValidateID(toolCallID); err != nil {
		return fmt.Errorf("run tool %s: %w", toolName, err)
	}

	msgID := "tool-" + toolCallID
	starting := stream.Message{
		ID:   msgID,
		Role: stream.RoleAssistant,
		Parts: []stream.Part{{
			ToolName:   toolName,
			ToolCallID: toolCallID,
			State:      stream.StateInputAvailable,
		}},
	}
	s.scanner.Notify([]stream.Message{starting})
	s.scanner.Flush()

	var last map[string]any
	for u := range progress.Guard(ctx, src, s.progressTimeout) {
		if u.Err != nil {
			code := stream.ErrTool
			if progress.IsTimeout(u.Err) {
				code = stream.ErrTimeout
			}
			if _, err := s.store.MarkError(toolCallID, code, u.Err.Error()); err != nil {
				s.logger.Warn("marking tool failure", "tool_call_id", toolCallID, "error", err)
			}
			s.broadcast()
			return u.Err
		}
		last = u.Value
	}

	if last == nil {
		err := fmt.Errorf("tool %s produced no output", toolName)
		if _, markErr := s.store.MarkError(toolCallID, stream.ErrTool, err.Error()); markErr != nil {
			s.logger.Warn("marking empty result", "tool_call_id", toolCallID, "error", markErr)
		}
		s.broadcast()
		return err
	}

	terminal := starting
	terminal.Parts = []stream.Part{{
		ToolName:   toolName,
		ToolCallID: toolCallID,
		State:      stream.StateOutputAvailable,
		Output:     last,
	}}
	s.scanner.Notify([]stream.Message{terminal})
	s.scanner.Flush()
	return nil
}

// Close tears the session down deterministically: debounce timer stopped,
// seen-set purged, store cleared, view reset, subscribers closed. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[int]chan Signal)
	s.mu.Unlock()

	s.scanner.Close()
	s.store.Clear()
	s.view.Reset()
	for _, ch := range subs {
		close(ch)
	}
	s.logger.Debug("session closed")
}

func (s *Session) broadcast() {
	sig := s.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- sig:
		default:
		}
	}
}
