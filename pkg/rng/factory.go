// Package rng hands out named random streams derived from one seed, so a
// deterministic run reproduces the same output stream by stream.
package rng

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

type Mode int

const (
	Deterministic Mode = iota
	Real
)

// Stream names used by the log generator.
const (
	Hit      = "hit"
	Casing   = "casing"
	Miss     = "miss"
	Sequence = "sequence"
	Clock    = "clock"
)

type Factory struct {
	baseSeed int64
	mode     Mode

	mu      sync.Mutex
	streams map[string]*rand.Rand
}

func New(mode Mode, seed int64) *Factory {
	if mode == Real {
		// seeded from time once, streams stay independent of each other
		seed = time.Now().UnixNano()
	}
	return &Factory{
		baseSeed: seed,
		mode:     mode,
		streams:  make(map[string]*rand.Rand),
	}
}

func (f *Factory) Mode() Mode { return f.mode }

// R returns the named stream, creating it on first use. Streams are not safe
// for concurrent use; hold on to one per goroutine.
func (f *Factory) R(name string) *rand.Rand {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.streams[name]; ok {
		return r
	}
	s := deriveSeed(f.baseSeed, name)
	r := rand.New(rand.NewSource(s))
	f.streams[name] = r
	return r
}

func deriveSeed(base int64, name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64()) ^ base
}
