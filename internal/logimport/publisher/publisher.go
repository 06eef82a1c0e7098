// Package publisher sends qualifying log lines to one broker topic through a
// pluggable client, pacing every send with a shared throttle.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/chenzhangda16/logimport/internal/logimport/telemetry"
	"github.com/chenzhangda16/logimport/internal/logimport/throttle"
)

var (
	ErrPublish = errors.New("publisher: publish failed")
	ErrClosed  = errors.New("publisher: closed")
)

// PublishError is a transport failure for a single record.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string { return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err) }

func (e *PublishError) Unwrap() []error { return []error{ErrPublish, e.Err} }

// Client is a broker connection. Publish only hands the payload over; clients
// deliver asynchronously and report late failures through ClientConfig.OnError.
type Client interface {
	Publish(ctx context.Context, topic, payload string) error
	// Close flushes buffered records and releases the connection.
	Close() error
}

// Failures counts records the client accepted but could not deliver.
type Failures struct {
	n       *xsync.Counter
	metrics *telemetry.Metrics
}

func NewFailures(m *telemetry.Metrics) *Failures {
	return &Failures{n: xsync.NewCounter(), metrics: m}
}

// Report is meant to be used as ClientConfig.OnError.
func (f *Failures) Report(err error) {
	f.n.Inc()
	f.metrics.DeliveryFailed()
	log.Warn().Str("component", "publisher").Err(err).Msg("delivery failed")
}

func (f *Failures) Count() int64 { return f.n.Value() }

type Option func(*Publisher)

func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func WithFailures(f *Failures) Option {
	return func(p *Publisher) { p.failures = f }
}

// Publisher is shared by all pipeline workers. Send is serialised so that the
// client call and the throttle step of one record never interleave with
// another's.
type Publisher struct {
	mu     sync.Mutex
	closed bool

	client    Client
	topic     string
	throttler *throttle.Throttler
	metrics   *telemetry.Metrics
	failures  *Failures
}

func New(client Client, topic string, th *throttle.Throttler, opts ...Option) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("publisher: client is nil")
	}
	if topic == "" {
		return nil, errors.New("publisher: topic is empty")
	}
	if th == nil {
		return nil, errors.New("publisher: throttler is nil")
	}
	p := &Publisher{client: client, topic: topic, throttler: th}
	for _, opt := range opts {
		opt(p)
	}
	if p.failures == nil {
		p.failures = NewFailures(p.metrics)
	}
	return p, nil
}

func (p *Publisher) Topic() string { return p.topic }

// Send hands line to the client and then accounts for it in the throttle,
// which may sleep. A client failure returns *PublishError and the record is
// not counted by the throttle. Cancellation returns the context error.
func (p *Publisher) Send(ctx context.Context, line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &PublishError{Topic: p.topic, Err: ErrClosed}
	}
	if err := p.client.Publish(ctx, p.topic, line); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.metrics.SendFailed()
		return &PublishError{Topic: p.topic, Err: err}
	}
	p.metrics.Sent()

	begin := time.Now()
	err := p.throttler.Throttle(ctx)
	if waited := time.Since(begin); waited >= time.Millisecond {
		p.metrics.ThrottleWait(waited)
	}
	return err
}

// Failed returns the number of asynchronous delivery failures so far.
func (p *Publisher) Failed() int64 { return p.failures.Count() }

// Close releases the client. Only the first call closes; later calls and
// later Sends see ErrClosed semantics.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.client.Close()
}
