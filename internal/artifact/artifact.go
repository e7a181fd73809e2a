package artifact

import (
	"time"
)

// Kind is the polymorphism axis for rendering. Variants carry kind-specific
// payload shapes that are validated upstream of the store.
type Kind string

const (
	KindChart     Kind = "chart"
	KindTable     Kind = "table"
	KindDashboard Kind = "dashboard"
	KindText      Kind = "text"
	KindImage     Kind = "image"
	KindData      Kind = "data"
)

// Valid reports whether k is a known artifact kind.
func (k Kind) Valid() bool {
	switch k {
	case KindChart, KindTable, KindDashboard, KindText, KindImage, KindData:
		return true
	}
	return false
}

// Status is the lifecycle state of an artifact.
//
// Allowed transitions per identity:
//
//	∅ → loading → completed
//	∅ → completed            (tools that skip the loading phase)
//	loading → error
//	completed → completed    (re-upsert replaces payload/metadata)
//
// A status never regresses from a terminal state back to loading, and there
// is no way out of error for the same identity; a logically new attempt
// mints a new identity.
type Status string

const (
	StatusLoading   Status = "loading"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether s is a final lifecycle state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Artifact is one renderable unit of tool output shown on the Canvas.
//
// Identity is the ID alone: the store guarantees exactly one Artifact per
// logical identity after normalization, regardless of how many wire shapes
// or stream ticks reported it.
//
// Zero values:
//   - ID: "" (invalid, required)
//   - Kind: "" (invalid, must be a known Kind)
//   - Title: "" (display title, optional)
//   - GroupName: "" (adopts the session's sticky group name)
//   - Payload: nil while Status == loading or error, non-nil iff completed
//   - Metadata: nil (kind-specific descriptive fields; never identity)
type Artifact struct {
	ID        string
	Kind      Kind
	Title     string
	GroupName string
	Payload   map[string]any
	Status    Status
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// clone returns a value copy with its own payload and metadata maps so
// callers cannot mutate store state through a snapshot.
func (a *Artifact) clone() Artifact {
	c := *a
	if a.Payload != nil {
		c.Payload = make(map[string]any, len(a.Payload))
		for k, v := range a.Payload {
			c.Payload[k] = v
		}
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// Loading describes the pre-terminal fields reported while a tool call is
// still running. Used by Store.UpsertLoading to create or merge a
// placeholder artifact.
type Loading struct {
	ID        string
	Kind      Kind
	Title     string
	GroupName string
	Metadata  map[string]any
}

// Completed describes a normalized terminal success. Used by
// Store.UpsertCompleted to promote a placeholder or create a completed
// artifact directly.
type Completed struct {
	ID        string
	Kind      Kind
	Title     string
	GroupName string
	Payload   map[string]any
	Metadata  map[string]any
}
