package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	var calls, hooks int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, wait time.Duration, err error) { hooks++ }

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("broker not ready")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, hooks)
}

func TestDoReturnsLastError(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastPolicy(2), func(context.Context) error {
		calls++
		return errors.New("dial failed")
	})
	require.EqualError(t, err, "dial failed")
	assert.Equal(t, 2, calls)
}

func TestDoStopsOnFatal(t *testing.T) {
	fatal := errors.New("bad config")
	p := fastPolicy(5)
	p.Classify = func(err error) Class {
		if errors.Is(err, fatal) {
			return Fatal
		}
		return Retryable
	}

	var calls int
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	var calls int
	err := Do(ctx, p, func(context.Context) error {
		calls++
		cancel()
		return errors.New("nope")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWaitIsCapped(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}.withDefaults()
	assert.Equal(t, 100*time.Millisecond, p.wait(1))
	assert.Equal(t, 400*time.Millisecond, p.wait(3))
	assert.Equal(t, time.Second, p.wait(10))
	assert.Equal(t, time.Second, p.wait(80))
}

func TestValue(t *testing.T) {
	var calls int
	v, err := Value(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("again")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
