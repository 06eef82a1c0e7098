// Package retry runs an operation with capped exponential backoff. It is used
// around broker dialing only; individual records are never retried here since
// the broker clients already retry on their own.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

type Class int

const (
	Retryable Class = iota
	Fatal
)

type Policy struct {
	MaxAttempts int           // e.g. 3
	BaseDelay   time.Duration // e.g. 200ms
	MaxDelay    time.Duration // e.g. 5s
	Jitter      time.Duration // added on top of each wait, uniformly in [0, Jitter)

	// Classify decides whether err is worth another attempt.
	// nil retries every error.
	Classify func(error) Class

	// OnRetry is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Dial is the policy used when connecting to brokers at startup.
func Dial() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      100 * time.Millisecond,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Classify == nil {
		p.Classify = func(error) Class { return Retryable }
	}
	return p
}

func (p Policy) wait(attempt int) time.Duration {
	w := p.MaxDelay
	if attempt <= 30 {
		if d := p.BaseDelay << (attempt - 1); d > 0 && d < p.MaxDelay {
			w = d
		}
	}
	if p.Jitter > 0 {
		w += rand.N(p.Jitter)
	}
	return w
}

// Do calls fn until it succeeds, returns a Fatal error, the attempts run out
// or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if p.Classify(err) == Fatal || attempt == p.MaxAttempts {
			break
		}

		w := p.wait(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, w, err)
		}

		timer := time.NewTimer(w)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = errors.New("retry: exhausted with no error")
	}
	return lastErr
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
