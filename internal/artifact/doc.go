// Package artifact provides Canvas artifact reconciliation for canvasd.
//
// An artifact represents one renderable unit of AI-generated output (chart,
// table, dashboard, text, image, raw data) displayed in the Canvas panel.
// Each artifact is identified by a stable ID and belongs to exactly one
// session's Store.
//
// The Store is the reconciliation core: it de-duplicates artifacts reported
// under different identifiers and wire shapes (the normalizer establishes
// identity first), enforces the lifecycle state machine, and preserves
// insertion order for display. ViewState tracks Canvas visibility and keeps
// explicit user dismissal strictly separate from automatic state changes.
//
// Thread Safety: Store and ViewState are safe for concurrent access, but
// each instance is owned by a single session and must not be shared across
// concurrently active sessions.
//
// Lifecycle: store contents and view state are discarded when the owning
// session is torn down; no artifact outlives its session.
package artifact
