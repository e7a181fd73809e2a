// Package progress models the incremental output of a running tool call.
//
// A visualization tool reports intermediate states while it executes
// (loading → processing → success|error). In Go this is a receive-only
// channel of Update values; the producer closes the channel when it is done.
// Guard wraps such a channel so a stalled producer cannot block the
// pipeline forever: the consumer receives every value already produced,
// then a typed timeout error once the gap between updates exceeds the
// configured bound.
//
// The guard bounds waiting, not work. A producer that cannot be cancelled
// keeps running after a timeout; its late values are simply never read.
// Producers should therefore send with a select on their own context, or
// use a buffered channel, so an abandoned guard does not leak them.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Update is one value produced by a tool call while it runs.
// Exactly one of Value or Err is meaningful: a producer that fails
// mid-stream sends a final Update with Err set and then closes.
type Update[T any] struct {
	Value T
	Err   error
}

// TimeoutError reports that a tool call produced no update within the
// configured gap. It carries the configured duration so callers can build
// retry messaging ("no update within 5s").
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool call stalled: no update within %s", e.Timeout)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
// Callers use this to choose timeout-specific user messaging and retry
// policy instead of the generic failure path.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Guard wraps src so the gap between consecutive updates is bounded by
// timeout. The returned channel:
//
//   - delivers every value src yields, in order, one in flight;
//   - after each delivery, restarts the deadline relative to that delivery
//     (the timeout bounds the gap between progress events, not total runtime);
//   - if the deadline elapses first, delivers a final Update whose Err is a
//     *TimeoutError and closes; values src produced before the deadline are
//     always drained first;
//   - if src yields an in-band error, delivers it wrapped and closes without
//     suppressing the values already delivered;
//   - closes without error when src closes or ctx is cancelled.
//
// Guard never closes or cancels src. The producer is fire-and-forget: it may
// still complete later, and its late writes must be tolerated upstream (the
// dispatcher's seen-set makes them no-ops).
func Guard[T any](ctx context.Context, src <-chan Update[T], timeout time.Duration) <-chan Update[T] {
	out := make(chan Update[T])

	go func() {
		defer close(out)

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		for {
			// A value that is already available wins over a fired timer.
			// This keeps the "drain before timeout" guarantee when the
			// scheduler delays us past the deadline.
			select {
			case u, ok := <-src:
				if !forward(ctx, out, timer, timeout, u, ok) {
					return
				}
				continue
			default:
			}

			select {
			case u, ok := <-src:
				if !forward(ctx, out, timer, timeout, u, ok) {
					return
				}
			case <-timer.C:
				select {
				case out <- Update[T]{Err: &TimeoutError{Timeout: timeout}}:
				case <-ctx.Done():
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// forward delivers one received update and restarts the gap timer.
// Returns false when the guard loop should stop.
func forward[T any](ctx context.Context, out chan<- Update[T], timer *time.Timer, timeout time.Duration, u Update[T], ok bool) bool {
	if !ok {
		return false
	}

	if u.Err != nil {
		select {
		case out <- Update[T]{Err: fmt.Errorf("tool call failed: %w", u.Err)}:
		case <-ctx.Done():
		}
		return false
	}

	select {
	case out <- u:
	case <-ctx.Done():
		return false
	}

	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(timeout)
	return true
}

// Collect drains a guarded stream into the values produced before the
// terminal condition. It returns the collected values and the terminal
// error, if any. Useful for callers that want the buffered-collection
// style rather than per-update handling.
func Collect[T any](src <-chan Update[T]) ([]T, error) {
	var values []T
	for u := range src {
		if u.Err != nil {
			return values, u.Err
		}
		values = append(values, u.Value)
	}
	return values, nil
}
