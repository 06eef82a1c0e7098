// Package throttle caps the aggregate rate of sends by sleeping once per batch
// of records instead of once per record. Sleeping per record at high rates is
// dominated by scheduler granularity, so the budget is checked per batch.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Unlimited disables throttling.
const Unlimited int64 = -1

const (
	// rates at or above this use fixed 2ms windows
	highRateThreshold = 10_000
	highRateWindows   = 500
	highRateBatch     = 2 * time.Millisecond

	// below the threshold one second is split into this many batches
	lowRateWindows = 20
)

var ErrInvalidRate = errors.New("throttle: max records per second must be positive or Unlimited")

// Clock is the time source used by a Throttler.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Option func(*Throttler)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(t *Throttler) { t.clock = c }
}

// Throttler is safe for concurrent use. A single instance must be shared by
// every sender: the ceiling is global, not per caller.
type Throttler struct {
	mu    sync.Mutex
	clock Clock

	unlimited     bool
	batchSize     int64
	nanosPerBatch time.Duration

	// end of the current batch window
	deadline time.Time
	// records counted in the current batch, always < batchSize
	count int64
}

func New(maxRecordsPerSecond int64, opts ...Option) (*Throttler, error) {
	t := &Throttler{clock: wallClock{}}
	for _, opt := range opts {
		opt(t)
	}

	switch {
	case maxRecordsPerSecond == Unlimited:
		t.unlimited = true
		return t, nil
	case maxRecordsPerSecond <= 0:
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRate, maxRecordsPerSecond)
	}

	t.batchSize, t.nanosPerBatch = batchParams(maxRecordsPerSecond)
	t.deadline = t.clock.Now().Add(t.nanosPerBatch)
	return t, nil
}

func batchParams(rate int64) (int64, time.Duration) {
	var (
		size  int64
		nanos time.Duration
	)
	if rate >= highRateThreshold {
		size = rate / highRateWindows
		nanos = highRateBatch
	} else {
		size = rate/lowRateWindows + 1
		nanos = time.Duration(int64(time.Second)/rate) * time.Duration(size)
	}
	// rate/500 >= 20 in the high-rate branch, the clamp only guards the trigger check
	if size < 1 {
		size = 1
	}
	return size, nanos
}

func (t *Throttler) Unlimited() bool { return t.unlimited }

func (t *Throttler) BatchSize() int64 { return t.batchSize }

func (t *Throttler) NanosPerBatch() time.Duration { return t.nanosPerBatch }

// Deadline returns the end of the current batch window.
func (t *Throttler) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// Throttle accounts for one sent record. On the last record of a batch it
// sleeps for whatever is left of the batch window. When the window was already
// overrun the schedule restarts from now instead of trying to catch up.
//
// The sleep holds the throttler lock so concurrent callers queue behind it.
// A cancelled ctx ends the sleep early and its error is returned.
func (t *Throttler) Throttle(ctx context.Context) error {
	if t.unlimited {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.count++
	if t.count < t.batchSize {
		return nil
	}
	t.count = 0

	now := t.clock.Now()
	remaining := time.Duration(t.deadline.Sub(now).Milliseconds()) * time.Millisecond
	if remaining <= 0 {
		t.deadline = now.Add(t.nanosPerBatch)
		return nil
	}

	// advance against the plan, not the wall clock, so early batches don't speed up the rate
	t.deadline = t.deadline.Add(t.nanosPerBatch)
	return t.clock.Sleep(ctx, remaining)
}
