// Package app wires one import run: throttle, broker client, publisher,
// scanner and filter feeding the pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chenzhangda16/logimport/internal/logimport/config"
	"github.com/chenzhangda16/logimport/internal/logimport/filter"
	"github.com/chenzhangda16/logimport/internal/logimport/pipeline"
	"github.com/chenzhangda16/logimport/internal/logimport/publisher"
	"github.com/chenzhangda16/logimport/internal/logimport/retry"
	"github.com/chenzhangda16/logimport/internal/logimport/scanner"
	"github.com/chenzhangda16/logimport/internal/logimport/telemetry"
	"github.com/chenzhangda16/logimport/internal/logimport/throttle"
)

const pushTimeout = 10 * time.Second

// ErrPublishFailures means the run finished but some records never reached
// the broker.
var ErrPublishFailures = errors.New("app: records failed to publish")

type App struct {
	cfg     config.Config
	out     io.Writer
	dial    retry.Policy
	metrics *telemetry.Metrics
	log     zerolog.Logger
}

type Option func(*App)

// WithOut replaces stdout as the destination of echoed lines.
func WithOut(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

func WithDialPolicy(p retry.Policy) Option {
	return func(a *App) { a.dial = p }
}

func New(cfg config.Config, opts ...Option) *App {
	a := &App{
		cfg:     cfg,
		out:     os.Stdout,
		dial:    retry.Dial(),
		metrics: telemetry.New(),
		log:     log.With().Str("component", "app").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) Metrics() *telemetry.Metrics { return a.metrics }

// Run performs the import once. The report is returned whenever the pipeline
// started, also alongside an error.
func (a *App) Run(ctx context.Context) (*pipeline.Report, error) {
	begin := time.Now()
	cfg := a.cfg

	th, err := throttle.New(cfg.MaxRecordsPerSecond)
	if err != nil {
		return nil, err
	}
	if th.Unlimited() {
		a.log.Info().Msg("send rate unlimited")
	} else {
		a.log.Info().
			Int64("max_record_per_second", cfg.MaxRecordsPerSecond).
			Int64("batch_size", th.BatchSize()).
			Dur("batch_window", th.NanosPerBatch()).
			Msg("send rate limited")
	}

	sc, err := scanner.New(scanner.Config{
		Dir:          cfg.SourceDir,
		Include:      cfg.Include,
		MaxLineBytes: cfg.MaxLineBytes,
	})
	if err != nil {
		return nil, err
	}
	flt, err := filter.New(cfg.SourceToken, cfg.EventToken)
	if err != nil {
		return nil, err
	}

	failures := publisher.NewFailures(a.metrics)
	client, err := a.dialClient(ctx, failures)
	if err != nil {
		return nil, err
	}
	pub, err := publisher.New(client, cfg.Topic, th,
		publisher.WithMetrics(a.metrics),
		publisher.WithFailures(failures),
	)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	defer pub.Close()

	var out io.Writer
	if !cfg.Quiet {
		out = a.out
	}
	p, err := pipeline.New(pipeline.Config{
		Source:      sc,
		Filter:      flt,
		Sender:      pub,
		Parallelism: cfg.Workers,
		Out:         out,
		Metrics:     a.metrics,
	})
	if err != nil {
		return nil, err
	}

	rep, runErr := p.Run(ctx)

	// late delivery failures only show up once the client has flushed
	if err := pub.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close publisher")
	}
	var failed int64
	if rep != nil {
		failed = rep.PublishFailed
	}
	failed += failures.Count()

	ok := runErr == nil && failed == 0
	a.metrics.RunFinished(time.Since(begin), ok)
	a.pushMetrics(ctx)

	if runErr != nil {
		return rep, runErr
	}

	a.log.Info().
		Int("files", rep.Files).
		Int("files_failed", rep.FilesFailed).
		Int64("lines_read", rep.LinesRead).
		Int64("lines_matched", rep.LinesMatched).
		Int64("sent", rep.Sent).
		Int64("publish_failed", failed).
		Dur("elapsed", rep.Elapsed).
		Msg("import task completed")

	if failed > 0 {
		return rep, fmt.Errorf("%w: %d records", ErrPublishFailures, failed)
	}
	return rep, nil
}

func (a *App) dialClient(ctx context.Context, failures *publisher.Failures) (publisher.Client, error) {
	driver := a.cfg.Driver
	if a.cfg.DryRun {
		driver = publisher.DriverDiscard
	}
	cc := publisher.ClientConfig{
		Brokers:  a.cfg.Brokers,
		ClientID: a.cfg.ClientID,
		OnError:  failures.Report,
	}

	policy := a.dial
	policy.Classify = func(err error) retry.Class {
		if errors.Is(err, publisher.ErrUnknownDriver) {
			return retry.Fatal
		}
		return retry.Retryable
	}
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		a.log.Warn().Err(err).Str("driver", driver).Int("attempt", attempt).Dur("wait", wait).Msg("dial failed, retrying")
	}

	client, err := retry.Value(ctx, policy, func(context.Context) (publisher.Client, error) {
		return publisher.Dial(driver, cc)
	})
	if err != nil {
		return nil, fmt.Errorf("app: dial %s %v: %w", driver, a.cfg.Brokers, err)
	}
	a.log.Info().Str("driver", driver).Strs("brokers", a.cfg.Brokers).Str("topic", a.cfg.Topic).Msg("broker client ready")
	return client, nil
}

func (a *App) pushMetrics(ctx context.Context) {
	if a.cfg.PushGateway == "" {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := a.metrics.Push(pctx, a.cfg.PushGateway, a.cfg.ClientID); err != nil {
		a.log.Warn().Err(err).Msg("push metrics")
	}
}
