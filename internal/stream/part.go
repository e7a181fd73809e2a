// Package stream watches the evolving message stream and feeds
// visualization tool results into the artifact store.
//
// The invocation transport delivers an ordered sequence of messages, each
// with an ordered sequence of parts. A part records one tool invocation:
// its name, call id, lifecycle state, input arguments, and (once terminal)
// raw output. The Scanner re-runs on every stream mutation, coalesces
// bursts with a short debounce window, and applies each tool-call result
// at most once via a bounded seen-set.
package stream

import "strings"

// Part states reported by the transport. Any state beginning with "input"
// is a starting phase; any beginning with "output" is a terminal candidate.
const (
	StateInputStreaming  = "input-streaming"
	StateInputAvailable  = "input-available"
	StateOutputAvailable = "output-available"
	StateError           = "error"
)

// Part is one tool-invocation record within a message.
type Part struct {
	ToolName   string         `json:"toolName"`
	ToolCallID string         `json:"toolCallId"`
	State      string         `json:"state"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
}

// Starting reports whether the part is in its input phase.
func (p Part) Starting() bool {
	return strings.HasPrefix(p.State, "input")
}

// TerminalCandidate reports whether the part's output may represent a
// final result.
func (p Part) TerminalCandidate() bool {
	return strings.HasPrefix(p.State, "output")
}

// Failed reports whether the transport marked the invocation as errored.
func (p Part) Failed() bool {
	return p.State == StateError
}

// Message is one entry in the conversation stream.
type Message struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// RoleAssistant marks messages produced by the agent; only those carry
// tool parts the scanner cares about.
const RoleAssistant = "assistant"

// lastAssistant returns the most recent assistant message, or nil.
func lastAssistant(msgs []Message) *Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			return &msgs[i]
		}
	}
	return nil
}
