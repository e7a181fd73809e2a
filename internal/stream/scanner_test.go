package stream_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizorai/canvas/internal/artifact"
	"github.com/vizorai/canvas/internal/log"
	"github.com/vizorai/canvas/internal/stream"
	"github.com/vizorai/canvas/internal/validate"
)

const testTool = "create_chart"

func newScanner(t *testing.T, cfg stream.Config) (*stream.Scanner, *artifact.Store, *artifact.ViewState) {
	t.Helper()

	if cfg.Allowlist == nil {
		cfg.Allowlist = []string{testTool, "create_table"}
	}
	store := artifact.NewStore(log.NewNop())
	view := artifact.NewViewState(log.NewNop())
	s, err := stream.NewScanner(store, view, validate.Nop{}, cfg, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, store, view
}

func assistantMsg(id string, parts ...stream.Part) []stream.Message {
	return []stream.Message{{ID: id, Role: stream.RoleAssistant, Parts: parts}}
}

func TestScanner_LoadingThenTerminal(t *testing.T) {
	t.Parallel()
	s, store, _ := newScanner(t, stream.Config{})

	// Tool emits a loading tick, then the terminal success under the
	// server-issued chart id.
	s.Notify(assistantMsg("m1", stream.Part{
		ToolName:   testTool,
		ToolCallID: "tc1",
		State:      stream.StateInputAvailable,
		Input:      map[string]any{"title": "Q1 Sales"},
	}))
	s.Flush()

	require.Equal(t, 1, store.Len())
	a, err := store.Get("tc1")
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusLoading, a.Status)

	s.Notify(assistantMsg("m1",
		stream.Part{
			ToolName:   testTool,
			ToolCallID: "tc1",
			State:      stream.StateInputAvailable,
			Input:      map[string]any{"title": "Q1 Sales"},
		},
		stream.Part{
			ToolName:   testTool,
			ToolCallID: "tc1",
			State:      stream.StateOutputAvailable,
			Output: map[string]any{
				"success":   true,
				"chartId":   "c1",
				"title":     "Q1 Sales",
				"chartType": "bar",
				"data":      []any{},
			},
		},
	))
	s.Flush()

	require.Equal(t, 1, store.Len(), "placeholder and result reconcile to one artifact")
	got, err := store.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusCompleted, got.Status)
	assert.Equal(t, "Q1 Sales", got.Title)

	_, err = store.Get("tc1")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestScanner_DuplicateTerminalIsIdempotent(t *testing.T) {
	t.Parallel()
	s, store, _ := newScanner(t, stream.Config{})

	snapshot := assistantMsg("m1", stream.Part{
		ToolName:   testTool,
		ToolCallID: "tc1",
		State:      stream.StateOutputAvailable,
		Output: map[string]any{
			"success":   true,
			"chartId":   "c1",
			"title":     "Q1 Sales",
			"chartType": "bar",
		},
	})

	// The same snapshot re-scans on every token tick.
	for range 3 {
		s.Notify(snapshot)
		s.Flush()
	}

	assert.Equal(t, 1, store.Len())
}

func TestScanner_IDLessResultDedupesByToolCall(t *testing.T) {
	t.Parallel()
	s, store, _ := newScanner(t, stream.Config{})

	snapshot := assistantMsg("m1", stream.Part{
		ToolName:   testTool,
		ToolCallID: "tc9",
		State:      stream.StateOutputAvailable,
		Output:     map[string]any{"success": true, "chartType": "bar"},
	})

	s.Notify(snapshot)
	s.Flush()
	s.Notify(snapshot)
	s.Flush()

	require.Equal(t, 1, store.Len(), "minted ids must not defeat the seen-set")
	_, err := store.Get("tc9")
	assert.NoError(t, err, "id-less results adopt the tool-call identity")
}

func TestScanner_IDLessResultWithoutToolCallDedupesByPosition(t *testing.T) {
	t.Parallel()
	s, store, _ := newScanner(t, stream.Config{})

	// Neither a wire id nor a tool-call id: identity falls back to the
	// part's position in the message.
	snapshot := assistantMsg("m1", stream.Part{
		ToolName: testTool,
		State:    stream.StateOutputAvailable,
		Output:   map[string]any{"success": true, "chartType": "bar"},
	})

	s.Notify(snapshot)
	s.Flush()
	s.Notify(snapshot)
	s.Flush()

	require.Equal(t, 1, store.Len(), "re-scans must not accumulate duplicates")
	_, err := store.Get("m1-part-0")
	assert.NoError(t, err, "identity derives from message id and part index")
}

func TestScanner_AllowlistFiltersTools(t *testing.T) {
	t.Parallel()
	s, store, view := newScanner(t, stream.Config{})

	s.Notify(assistantMsg("m1", stream.Part{
		ToolName:   "web_search",
		ToolCallID: "tc1",
		State:      stream.StateOutputAvailable,
		Output:     map[string]any{"success": true, "chartId": "c1"},
	}))
	s.Flush()

	assert.Equal(t, 0, store.Len())
	assert.False(t, view.Visible(), "non-visualization tools never open the canvas")
}

func TestScanner_AutoShowOnDetection(t *testing.T) {
	t.Parallel()
	s, _, view := newScanner(t, stream.Config{})

	s.Notify(assistantMsg("m1", stream.Part{
		ToolName:   testTool,
		ToolCallID: "tc1",
		State:      stream.StateInputStreaming,
	}))
	s.Flush()

	assert.True(t, view.Visible())
}

func TestScanner_DismissalSuppressesAutoShow(t *testing.T) {
	t.Parallel()
	s, store, view := newScanner(t, stream.Config{})

	// Two artifacts on canvas, then the user closes it.
	s.Notify(assistantMsg("m1",
		terminalPart("tc1", "c1"),
		terminalPart("tc2", "c2"),
	))
	s.Flush()
	require.Equal(t, 2, store.Len())
	require.True(t, view.Visible())

	view.Dismiss()

	// A new terminal result arrives: count grows, view stays hidden.
	s.Notify(assistantMsg("m2", terminalPart("tc3", "c3")))
	s.Flush()

	assert.Equal(t, 3, store.Len())
	assert.False(t, view.Visible())
	assert.True(t, view.UserDismissed())
}

func TestScanner_DebounceCoalescesBursts(t *testing.T) {
	t.Parallel()

	var changes atomic.Int32
	s, store, _ := newScanner(t, stream.Config{
		Debounce: 40 * time.Millisecond,
		OnChange: func() { changes.Add(1) },
	})

	// Rapid token ticks: each reschedules the timer; only the final
	// snapshot is scanned.
	for range 10 {
		s.Notify(assistantMsg("m1", terminalPart("tc1", "c1")))
		time.Sleep(2 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return store.Len() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), changes.Load(), "burst coalesces into one change notification")
}

func TestScanner_ErrorPartMarksArtifact(t *testing.T) {
	t.Parallel()
	s, store, _ := newScanner(t, stream.Config{})

	s.Notify(assistantMsg("m1",
		stream.Part{
			ToolName:   testTool,
			ToolCallID: "tc1",
			State:      stream.StateInputAvailable,
		},
		stream.Part{
			ToolName:   testTool,
			ToolCallID: "tc1",
			State:      stream.StateError,
			Output:     map[string]any{"message": "render backend down"},
		},
	))
	s.Flush()

	a, err := store.Get("tc1")
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusError, a.Status)
	assert.Equal(t, stream.ErrTool, a.Metadata["errorCode"])
}

func TestScanner_ValidationFailureIsSkipped(t *testing.T) {
	t.Parallel()

	store := artifact.NewStore(log.NewNop())
	view := artifact.NewViewState(log.NewNop())
	s, err := stream.NewScanner(store, view, rejectAll{}, stream.Config{
		Allowlist: []string{testTool},
	}, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	s.Notify(assistantMsg("m1", terminalPart("tc1", "c1")))
	s.Flush()

	// Fail closed: the rejected payload never reaches the store.
	assert.Equal(t, 0, store.Len())
}

func TestScanner_ScansOnlyLastAssistantMessage(t *testing.T) {
	t.Parallel()
	s, store, _ := newScanner(t, stream.Config{})

	msgs := []stream.Message{
		{ID: "m1", Role: stream.RoleAssistant, Parts: []stream.Part{terminalPart("tc1", "c1")}},
		{ID: "u1", Role: "user"},
		{ID: "m2", Role: stream.RoleAssistant, Parts: []stream.Part{terminalPart("tc2", "c2")}},
	}

	s.Notify(msgs)
	s.Flush()

	assert.Equal(t, 1, store.Len())
	_, err := store.Get("c2")
	assert.NoError(t, err, "only the most recent assistant message is scanned")
}

func TestScanner_NotifyAfterCloseIsNoop(t *testing.T) {
	t.Parallel()
	s, store, _ := newScanner(t, stream.Config{})

	s.Close()
	s.Notify(assistantMsg("m1", terminalPart("tc1", "c1")))
	s.Flush()

	assert.Equal(t, 0, store.Len())
}

func TestScanner_StartTitleFallback(t *testing.T) {
	t.Parallel()
	s, store, _ := newScanner(t, stream.Config{})

	// No title argument: humanized tool name fills in.
	s.Notify(assistantMsg("m1", stream.Part{
		ToolName:   "create_chart",
		ToolCallID: "tc1",
		State:      stream.StateInputAvailable,
	}))
	s.Flush()

	a, err := store.Get("tc1")
	require.NoError(t, err)
	assert.Equal(t, "chart", a.Title)
	assert.Equal(t, artifact.KindChart, a.Kind)
}

// terminalPart builds a successful flat-shape output part.
func terminalPart(toolCallID, chartID string) stream.Part {
	return stream.Part{
		ToolName:   testTool,
		ToolCallID: toolCallID,
		State:      stream.StateOutputAvailable,
		Output: map[string]any{
			"success":   true,
			"chartId":   chartID,
			"chartType": "bar",
		},
	}
}

// rejectAll fails every payload, standing in for an upstream validator
// signalling failure.
type rejectAll struct{}

func (rejectAll) Validate(artifact.Kind, map[string]any) error {
	return errors.New("rejected")
}
