// Package loggen writes synthetic collector logs for trying out an import
// end to end. A configurable share of lines carries both filter tokens.
package loggen

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/chenzhangda16/logimport/internal/logimport/filter"
	"github.com/chenzhangda16/logimport/pkg/rng"
)

const (
	otherSource = "lib%22%3A%22mgtvios"
	otherEvent  = "event_name%22%3A%22click"
)

var eventSuffixes = []string{"", "_show", "_view", "_leave"}

type Config struct {
	Dir          string
	Files        int
	LinesPerFile int

	// HitRatio is the probability of a line qualifying, in [0, 1].
	HitRatio    float64
	SourceToken string
	EventToken  string
	Gzip        bool
	Start       time.Time
}

type Result struct {
	Files []string
	Lines int
	Hits  int
}

func (c Config) withDefaults() Config {
	if c.SourceToken == "" {
		c.SourceToken = filter.DefaultSourceToken
	}
	if c.EventToken == "" {
		c.EventToken = filter.DefaultEventToken
	}
	if c.Start.IsZero() {
		c.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.Dir == "":
		return errors.New("loggen: dir is required")
	case c.Files <= 0 || c.LinesPerFile < 0:
		return errors.New("loggen: files must be positive and lines not negative")
	case c.HitRatio < 0 || c.HitRatio > 1:
		return fmt.Errorf("loggen: hit ratio %v out of [0, 1]", c.HitRatio)
	}
	return nil
}

type generator struct {
	cfg   Config
	rHit  *rand.Rand
	rCase *rand.Rand
	rMiss *rand.Rand
	rSeq  *rand.Rand
	rClk  *rand.Rand
	ts    time.Time
}

// Generate writes cfg.Files files named part-NNNN.log (or .log.gz) into cfg.Dir.
func Generate(cfg Config, rf *rng.Factory) (Result, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return Result{}, err
	}

	g := &generator{
		cfg:   cfg,
		rHit:  rf.R(rng.Hit),
		rCase: rf.R(rng.Casing),
		rMiss: rf.R(rng.Miss),
		rSeq:  rf.R(rng.Sequence),
		rClk:  rf.R(rng.Clock),
		ts:    cfg.Start,
	}

	var res Result
	for i := 0; i < cfg.Files; i++ {
		name := fmt.Sprintf("part-%04d.log", i)
		if cfg.Gzip {
			name += ".gz"
		}
		path := filepath.Join(cfg.Dir, name)
		hits, err := g.writeFile(path)
		if err != nil {
			return res, err
		}
		res.Files = append(res.Files, path)
		res.Lines += cfg.LinesPerFile
		res.Hits += hits
	}
	return res, nil
}

func (g *generator) writeFile(path string) (hits int, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var w io.Writer = f
	var zw *gzip.Writer
	if g.cfg.Gzip {
		zw = gzip.NewWriter(f)
		w = zw
	}
	bw := bufio.NewWriter(w)

	for i := 0; i < g.cfg.LinesPerFile; i++ {
		line, hit := g.line()
		if hit {
			hits++
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return hits, err
		}
	}
	if err := bw.Flush(); err != nil {
		return hits, err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return hits, err
		}
	}
	return hits, nil
}

func (g *generator) line() (string, bool) {
	g.ts = g.ts.Add(time.Duration(1+g.rClk.Intn(5000)) * time.Microsecond)

	source, event := g.cfg.SourceToken, g.cfg.EventToken
	hit := g.rHit.Float64() < g.cfg.HitRatio
	if hit {
		if g.rCase.Intn(4) == 0 {
			source = strings.ToUpper(source)
		}
		event += eventSuffixes[g.rCase.Intn(len(eventSuffixes))]
	} else {
		switch g.rMiss.Intn(3) {
		case 0:
			source = otherSource
		case 1:
			event = otherEvent
		default:
			source, event = otherSource, otherEvent
		}
	}

	return fmt.Sprintf(`%s 10.0.%d.%d "GET /collect?d={%%22%s%%22,%%22%s%%22,%%22seq%%22:%d} HTTP/1.1" 200`,
		g.ts.Format(time.RFC3339Nano),
		g.rSeq.Intn(256), g.rSeq.Intn(256),
		source, event, g.rSeq.Int63n(1_000_000),
	), hit
}
