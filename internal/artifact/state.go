package artifact

import (
	"log/slog"
	"sync"
)

// ViewState tracks Canvas visibility for one session.
//
// The central invariant: a user's deliberate dismissal and an automatic
// system state change never share the same boolean. UserDismissed is set
// only by Dismiss (an explicit close action) and cleared only by Show (an
// explicit open action). It is never toggled as a side effect of the
// artifact count reaching zero or non-zero.
//
// Lifecycle: created with the owning session, Reset on teardown.
type ViewState struct {
	mu            sync.Mutex
	visible       bool
	userDismissed bool
	activeID      string
	logger        *slog.Logger
}

// NewViewState creates a hidden, undismissed view state.
func NewViewState(logger *slog.Logger) *ViewState {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewState{logger: logger}
}

// AutoShow makes the view visible in response to detected tool activity.
// Explicit user intent always wins: if the user has dismissed the view,
// the request is logged and ignored. Returns true if visibility changed.
func (v *ViewState) AutoShow() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.userDismissed {
		v.logger.Debug("auto-show suppressed by user dismissal")
		return false
	}
	if v.visible {
		return false
	}
	v.visible = true
	v.logger.Debug("canvas auto-shown")
	return true
}

// Show makes the view visible by explicit external request (the user
// clicked "open"). It clears UserDismissed: an explicit open supersedes an
// earlier explicit close.
func (v *ViewState) Show() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.visible = true
	v.userDismissed = false
}

// Dismiss hides the view by explicit user action. Subsequent terminal tool
// results must not re-open it; only Show does.
func (v *ViewState) Dismiss() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.visible = false
	v.userDismissed = true
	v.activeID = ""
}

// SetActive records which artifact the view is focused on.
func (v *ViewState) SetActive(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.activeID = id
}

// Visible reports whether the Canvas is currently shown.
func (v *ViewState) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// UserDismissed reports whether the user has explicitly closed the Canvas.
func (v *ViewState) UserDismissed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.userDismissed
}

// ActiveArtifactID returns the focused artifact id, or "" if none.
func (v *ViewState) ActiveArtifactID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.activeID
}

// Reset returns the view to its initial hidden, undismissed state.
// Called on session teardown.
func (v *ViewState) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.visible = false
	v.userDismissed = false
	v.activeID = ""
}
