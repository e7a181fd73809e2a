package artifact

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store is the reconciliation core: an insertion-ordered collection of
// artifacts keyed by identity, with idempotent upserts and lifecycle
// enforcement.
//
// Each Store is owned by exactly one session. Mutation happens from that
// session's dispatcher and its host handlers, so a single mutex is enough;
// there is no cross-session sharing.
//
// Attempted invariant violations (downgrading a terminal artifact, reviving
// an errored one) are defensive no-ops with a logged warning, never a
// panic that aborts a scan.
type Store struct {
	mu     sync.Mutex
	byID   map[string]*Artifact
	order  []string
	group  string // sticky session group name, set by the first explicit name
	logger *slog.Logger

	now func() time.Time // injectable clock for tests
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the store's time source. Test use only.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty artifact store.
//
// Parameters:
//   - logger: logger for diagnostics (nil = slog.Default())
func NewStore(logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		byID:   make(map[string]*Artifact),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertLoading creates or merges a loading placeholder for a tool call
// that has started but not finished.
//
// If no artifact with p.ID exists, one is created with StatusLoading and a
// nil payload. If one exists in loading state, non-empty fields are merged
// (progress messages refine the placeholder). If the existing artifact is
// already terminal, the call is a no-op with a warning: a terminal state
// never regresses to loading.
func (s *Store) UpsertLoading(p Loading) (Artifact, error) {
	if err := ValidateID(p.ID); err != nil {
		return Artifact{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[p.ID]; ok {
		if existing.Status.Terminal() {
			s.logger.Warn("ignoring loading downgrade for terminal artifact",
				"artifact_id", p.ID,
				"status", existing.Status)
			return existing.clone(), nil
		}
		s.mergeLoading(existing, p)
		existing.UpdatedAt = s.now()
		return existing.clone(), nil
	}

	now := s.now()
	a := &Artifact{
		ID:        p.ID,
		Kind:      p.Kind,
		Title:     p.Title,
		GroupName: s.adoptGroup(p.GroupName),
		Status:    StatusLoading,
		Metadata:  copyMap(p.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.insert(a)

	s.logger.Debug("created loading artifact",
		"artifact_id", a.ID,
		"kind", a.Kind,
		"group", a.GroupName)
	return a.clone(), nil
}

// UpsertCompleted transitions an existing artifact to completed in place
// (the common path: a loading placeholder is promoted), or creates a new
// completed artifact directly for tools that skip the loading phase.
//
// completed → completed is allowed and replaces payload/metadata. An
// artifact in error state stays there: a logically new attempt must mint a
// new identity.
func (s *Store) UpsertCompleted(c Completed) (Artifact, error) {
	if err := ValidateID(c.ID); err != nil {
		return Artifact{}, err
	}
	if c.Payload == nil {
		return Artifact{}, ErrNilPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.byID[c.ID]; ok {
		if existing.Status == StatusError {
			s.logger.Warn("ignoring completion for errored artifact",
				"artifact_id", c.ID)
			return existing.clone(), nil
		}
		existing.Status = StatusCompleted
		existing.Payload = copyMap(c.Payload)
		existing.Metadata = mergeMaps(existing.Metadata, c.Metadata)
		if c.Title != "" {
			existing.Title = c.Title
		}
		if c.Kind != "" {
			existing.Kind = c.Kind
		}
		if c.GroupName != "" && s.group == "" {
			s.group = c.GroupName
			existing.GroupName = c.GroupName
		}
		existing.UpdatedAt = now

		s.logger.Debug("promoted artifact to completed",
			"artifact_id", existing.ID,
			"kind", existing.Kind)
		return existing.clone(), nil
	}

	a := &Artifact{
		ID:        c.ID,
		Kind:      c.Kind,
		Title:     c.Title,
		GroupName: s.adoptGroup(c.GroupName),
		Payload:   copyMap(c.Payload),
		Status:    StatusCompleted,
		Metadata:  copyMap(c.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.insert(a)

	s.logger.Debug("created completed artifact",
		"artifact_id", a.ID,
		"kind", a.Kind,
		"group", a.GroupName)
	return a.clone(), nil
}

// MarkError transitions a loading artifact to error state, recording the
// error code and message in metadata. If no artifact with the given id
// exists, an error placeholder is created so the failure is visible on the
// Canvas (covers timeouts with no prior loading tick). Completed artifacts
// are left untouched: a late failure report must not clobber a delivered
// result.
func (s *Store) MarkError(id, code, message string) (Artifact, error) {
	if err := ValidateID(id); err != nil {
		return Artifact{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.byID[id]; ok {
		if existing.Status == StatusCompleted {
			s.logger.Warn("ignoring error for completed artifact",
				"artifact_id", id,
				"error_code", code)
			return existing.clone(), nil
		}
		existing.Status = StatusError
		existing.Payload = nil
		existing.Metadata = mergeMaps(existing.Metadata, map[string]any{
			"errorCode":    code,
			"errorMessage": message,
		})
		existing.UpdatedAt = now
		return existing.clone(), nil
	}

	a := &Artifact{
		ID:     id,
		Kind:   KindData,
		Status: StatusError,
		Metadata: map[string]any{
			"errorCode":    code,
			"errorMessage": message,
		},
		GroupName: s.adoptGroup(""),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.insert(a)

	s.logger.Debug("created error artifact",
		"artifact_id", id,
		"error_code", code)
	return a.clone(), nil
}

// Rename changes an artifact's identity in place, preserving its insertion
// position, creation time, and lifecycle state. Used when a server-issued
// artifact id supersedes the tool-call id that keyed the loading
// placeholder, so the two identifier spaces reconcile to one artifact.
//
// Returns ErrNotFound if oldID does not exist. If newID already exists the
// rename is rejected: two artifacts never collapse implicitly.
func (s *Store) Rename(oldID, newID string) error {
	if err := ValidateID(newID); err != nil {
		return err
	}
	if oldID == newID {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[oldID]
	if !ok {
		return fmt.Errorf("rename artifact %s: %w", oldID, ErrNotFound)
	}
	if _, exists := s.byID[newID]; exists {
		return fmt.Errorf("rename artifact %s to %s: target exists", oldID, newID)
	}

	delete(s.byID, oldID)
	a.ID = newID
	s.byID[newID] = a
	for i, oid := range s.order {
		if oid == oldID {
			s.order[i] = newID
			break
		}
	}

	s.logger.Debug("renamed artifact", "from", oldID, "to", newID)
	return nil
}

// Remove deletes the artifact with the given id.
// Returns ErrNotFound if it does not exist.
//
// Remove never touches view visibility. Hiding the Canvas when the last
// artifact disappears is the caller's decision to make explicitly, not a
// store side effect.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("remove artifact %s: %w", id, ErrNotFound)
	}

	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.logger.Debug("removed artifact", "artifact_id", id)
	return nil
}

// Get returns a snapshot of the artifact with the given id.
func (s *Store) Get(id string) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return Artifact{}, fmt.Errorf("get artifact %s: %w", id, ErrNotFound)
	}
	return a.clone(), nil
}

// List returns snapshots of all artifacts in insertion order.
// Order is stable under in-place updates.
func (s *Store) List() []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Artifact, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].clone())
	}
	return out
}

// Len returns the number of artifacts in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// GroupName returns the sticky session group name, or the empty string if
// no artifact has named one yet.
func (s *Store) GroupName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group
}

// Clear discards all artifacts and the sticky group name. Called on
// session teardown; nothing in the store outlives its owning session.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*Artifact)
	s.order = nil
	s.group = ""
}

// insert adds a new artifact, registering its id in insertion order.
// Caller holds s.mu.
func (s *Store) insert(a *Artifact) {
	s.byID[a.ID] = a
	s.order = append(s.order, a.ID)
}

// adoptGroup resolves the group name for a new artifact: an explicit name
// becomes the sticky session name on first use; absent a name, the sticky
// name applies. Caller holds s.mu.
func (s *Store) adoptGroup(explicit string) string {
	if explicit != "" {
		if s.group == "" {
			s.group = explicit
		}
		return explicit
	}
	return s.group
}

// mergeLoading merges non-empty progress fields into a loading placeholder.
// Caller holds s.mu.
func (s *Store) mergeLoading(dst *Artifact, p Loading) {
	if p.Kind != "" {
		dst.Kind = p.Kind
	}
	if p.Title != "" {
		dst.Title = p.Title
	}
	if p.GroupName != "" && dst.GroupName == "" {
		dst.GroupName = s.adoptGroup(p.GroupName)
	}
	if len(p.Metadata) > 0 {
		dst.Metadata = mergeMaps(dst.Metadata, p.Metadata)
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mergeMaps overlays src onto dst, allocating when dst is nil.
func mergeMaps(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
