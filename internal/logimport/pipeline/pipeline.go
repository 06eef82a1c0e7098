// Package pipeline runs one import: list the source files, filter each file's
// lines concurrently and publish the qualifying ones through a shared,
// throttled sender.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/chenzhangda16/logimport/internal/logimport/publisher"
	"github.com/chenzhangda16/logimport/internal/logimport/scanner"
	"github.com/chenzhangda16/logimport/internal/logimport/telemetry"
)

const progressEvery = 5 * time.Second

type Source interface {
	List() ([]scanner.Entry, error)
	Each(ctx context.Context, e scanner.Entry, fn func(line string) error) error
}

type Matcher interface {
	Match(line string) bool
}

// Sender must be safe for concurrent use; all workers share one.
type Sender interface {
	Send(ctx context.Context, line string) error
}

type Config struct {
	Source Source
	Filter Matcher
	Sender Sender

	// Parallelism bounds the files processed at once. Defaults to GOMAXPROCS.
	Parallelism int
	// Out receives every qualifying line as it is sent. nil disables echoing.
	Out     io.Writer
	Metrics *telemetry.Metrics
}

type FileResult struct {
	Name    string
	Lines   int64
	Matched int64
	Sent    int64
	Failed  int64
	Err     error
}

type Report struct {
	Files         int
	FilesFailed   int
	LinesRead     int64
	LinesMatched  int64
	Sent          int64
	PublishFailed int64
	Elapsed       time.Duration
	PerFile       []FileResult
}

type totals struct {
	read, matched, sent, failed *xsync.Counter
}

type Pipeline struct {
	cfg Config
	log zerolog.Logger

	outMu    sync.Mutex
	progress rate.Sometimes
	totals   totals
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil || cfg.Filter == nil || cfg.Sender == nil {
		return nil, errors.New("pipeline: source, filter and sender are required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{
		cfg:      cfg,
		log:      log.With().Str("component", "pipeline").Logger(),
		progress: rate.Sometimes{Interval: progressEvery},
		totals: totals{
			read:    xsync.NewCounter(),
			matched: xsync.NewCounter(),
			sent:    xsync.NewCounter(),
			failed:  xsync.NewCounter(),
		},
	}, nil
}

// Run processes every file once. A file that cannot be read is logged and
// skipped; it never stops the others. Run returns early only when ctx is done,
// in which case the partial report comes back along with the context error.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	begin := time.Now()

	entries, err := p.cfg.Source.List()
	if err != nil {
		return nil, err
	}
	p.log.Info().Int("files", len(entries)).Int("parallelism", p.cfg.Parallelism).Msg("scan started")

	rep := &Report{Files: len(entries), PerFile: make([]FileResult, len(entries))}
	for i, e := range entries {
		rep.PerFile[i].Name = e.Name
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Parallelism)
	for i, e := range entries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := p.processFile(gctx, e)
			rep.PerFile[i] = res
			return err
		})
	}
	err = g.Wait()

	for _, r := range rep.PerFile {
		if r.Err != nil && errors.Is(r.Err, scanner.ErrRead) {
			rep.FilesFailed++
		}
	}
	rep.LinesRead = p.totals.read.Value()
	rep.LinesMatched = p.totals.matched.Value()
	rep.Sent = p.totals.sent.Value()
	rep.PublishFailed = p.totals.failed.Value()
	rep.Elapsed = time.Since(begin)

	if err == nil {
		err = ctx.Err()
	}
	return rep, err
}

// processFile reads and filters the whole file first, so a file that fails
// halfway contributes nothing, then publishes its qualifying lines.
func (p *Pipeline) processFile(ctx context.Context, e scanner.Entry) (FileResult, error) {
	res := FileResult{Name: e.Name}
	flog := p.log.With().Str("file", e.Name).Logger()

	var matched []string
	err := p.cfg.Source.Each(ctx, e, func(line string) error {
		res.Lines++
		p.totals.read.Inc()
		p.cfg.Metrics.LineRead()
		if p.cfg.Filter.Match(line) {
			matched = append(matched, line)
		}
		return nil
	})
	if err != nil {
		res.Err = err
		if errors.Is(err, scanner.ErrRead) {
			flog.Error().Err(err).Int64("lines", res.Lines).Msg("reading file failed, skipped")
			p.cfg.Metrics.FileDone(err)
			return res, nil
		}
		return res, err
	}

	res.Matched = int64(len(matched))
	p.totals.matched.Add(res.Matched)
	for range matched {
		p.cfg.Metrics.LineMatched()
	}

	for _, line := range matched {
		if err := p.cfg.Sender.Send(ctx, line); err != nil {
			if !errors.Is(err, publisher.ErrPublish) {
				res.Err = err
				return res, err
			}
			res.Failed++
			p.totals.failed.Inc()
			flog.Warn().Err(err).Msg("record dropped")
			continue
		}
		res.Sent++
		p.totals.sent.Inc()
		p.echo(line)
		p.progress.Do(p.logProgress)
	}

	p.cfg.Metrics.FileDone(nil)
	flog.Debug().Int64("lines", res.Lines).Int64("matched", res.Matched).Int64("sent", res.Sent).Msg("file done")
	return res, nil
}

func (p *Pipeline) echo(line string) {
	if p.cfg.Out == nil {
		return
	}
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if _, err := fmt.Fprintln(p.cfg.Out, line); err != nil {
		p.log.Warn().Err(err).Msg("echo failed")
	}
}

func (p *Pipeline) logProgress() {
	p.log.Info().
		Int64("read", p.totals.read.Value()).
		Int64("matched", p.totals.matched.Value()).
		Int64("sent", p.totals.sent.Value()).
		Int64("failed", p.totals.failed.Value()).
		Msg("progress")
}
