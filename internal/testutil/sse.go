// Package testutil holds shared test helpers.
package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// SSEEvent is one parsed Server-Sent Event.
type SSEEvent struct {
	Type string // event: value, "message" when omitted
	Data string // data: value, multi-line joined with \n
}

// ParseSSEEvents parses a captured SSE stream into structured events.
//
// Per the W3C spec: multiple data: lines join with newline, an empty line
// terminates an event, a data: line without a preceding event: line yields
// the default "message" type, and lines starting with ":" are comments
// (the engine uses them as heartbeats). A trailing unterminated event is
// discarded, since captures of live streams routinely cut off mid-event.
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	var (
		events  []SSEEvent
		current SSEEvent
		data    []string
		open    bool
	)

	flush := func() {
		if !open {
			return
		}
		current.Data = strings.Join(data, "\n")
		events = append(events, current)
		current, data, open = SSEEvent{}, nil, false
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.Type = strings.TrimPrefix(line, "event: ")
			open = true
		case strings.HasPrefix(line, "data: "):
			if current.Type == "" {
				current.Type = "message"
			}
			data = append(data, strings.TrimPrefix(line, "data: "))
			open = true
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// comment / heartbeat
		default:
			t.Fatalf("unexpected SSE line: %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanning SSE stream: %v", err)
	}
	return events
}

// FindEvent returns the first event of the given type, or nil.
func FindEvent(events []SSEEvent, eventType string) *SSEEvent {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}
