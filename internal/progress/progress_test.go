package progress_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vizorai/canvas/internal/progress"
)

func TestGuard_ForwardsAllValuesInOrder(t *testing.T) {
	t.Parallel()

	src := make(chan progress.Update[string])
	go func() {
		defer close(src)
		for _, v := range []string{"loading", "processing", "success"} {
			src <- progress.Update[string]{Value: v}
		}
	}()

	got, err := progress.Collect(progress.Guard(context.Background(), src, time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"loading", "processing", "success"}, got)
}

func TestGuard_TimeoutDrainsProgress(t *testing.T) {
	t.Parallel()

	// Producer yields one value then stalls forever. The consumer must
	// receive the value before the timeout error.
	src := make(chan progress.Update[string], 1)
	src <- progress.Update[string]{Value: "processing"}

	start := time.Now()
	got, err := progress.Collect(progress.Guard(context.Background(), src, 50*time.Millisecond))
	elapsed := time.Since(start)

	assert.Equal(t, []string{"processing"}, got)
	require.Error(t, err)
	assert.True(t, progress.IsTimeout(err))
	assert.Less(t, elapsed, 2*time.Second, "timeout should fire near the deadline")
}

func TestGuard_TimeoutErrorCarriesDuration(t *testing.T) {
	t.Parallel()

	src := make(chan progress.Update[int])
	_, err := progress.Collect(progress.Guard(context.Background(), src, 5*time.Millisecond))

	require.Error(t, err)
	var te *progress.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 5*time.Millisecond, te.Timeout)
	assert.Contains(t, te.Error(), "5ms")
}

func TestGuard_GapTimerResetsPerUpdate(t *testing.T) {
	t.Parallel()

	// Each gap is under the deadline even though the total runtime is over
	// it. All values must be delivered without a timeout.
	src := make(chan progress.Update[int])
	go func() {
		defer close(src)
		for i := range 5 {
			time.Sleep(30 * time.Millisecond)
			src <- progress.Update[int]{Value: i}
		}
	}()

	got, err := progress.Collect(progress.Guard(context.Background(), src, 100*time.Millisecond))
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestGuard_ProducerErrorIsWrapped(t *testing.T) {
	t.Parallel()

	boom := errors.New("render backend down")
	src := make(chan progress.Update[string])
	go func() {
		defer close(src)
		src <- progress.Update[string]{Value: "loading"}
		src <- progress.Update[string]{Err: boom}
	}()

	got, err := progress.Collect(progress.Guard(context.Background(), src, time.Second))

	assert.Equal(t, []string{"loading"}, got, "values before the error must not be suppressed")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, progress.IsTimeout(err), "producer errors are not timeouts")
}

func TestGuard_ContextCancelStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	src := make(chan progress.Update[int])

	out := progress.Guard(ctx, src, time.Minute)
	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok, "guarded stream should close on cancellation")
	case <-time.After(time.Second):
		t.Fatal("guarded stream did not close after cancellation")
	}
}

func TestGuard_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := make(chan progress.Update[int], 3)
	for i := range 3 {
		src <- progress.Update[int]{Value: i}
	}
	close(src)

	got, err := progress.Collect(progress.Guard(context.Background(), src, time.Second))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestGuard_NoGoroutineLeakOnTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := make(chan progress.Update[int])
	_, err := progress.Collect(progress.Guard(context.Background(), src, 10*time.Millisecond))
	require.Error(t, err)
	close(src)
}

func TestIsTimeout(t *testing.T) {
	t.Parallel()

	te := &progress.TimeoutError{Timeout: time.Second}
	assert.True(t, progress.IsTimeout(te))
	assert.True(t, progress.IsTimeout(errors.Join(errors.New("outer"), te)))
	assert.False(t, progress.IsTimeout(errors.New("plain")))
	assert.False(t, progress.IsTimeout(nil))
}
