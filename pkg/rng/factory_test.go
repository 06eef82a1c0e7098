package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func draw(f *Factory, name string, n int) []int64 {
	out := make([]int64, n)
	r := f.R(name)
	for i := range out {
		out[i] = r.Int63()
	}
	return out
}

func TestDeterministicStreamsRepeat(t *testing.T) {
	a := New(Deterministic, 42)
	b := New(Deterministic, 42)
	assert.Equal(t, draw(a, Hit, 8), draw(b, Hit, 8))
	assert.Equal(t, Deterministic, a.Mode())
}

func TestStreamsAreIndependent(t *testing.T) {
	f := New(Deterministic, 42)
	assert.NotEqual(t, draw(f, Hit, 8), draw(f, Miss, 8))

	// drawing from one stream does not shift another
	g := New(Deterministic, 42)
	_ = draw(g, Hit, 100)
	assert.Equal(t, draw(New(Deterministic, 42), Miss, 8), draw(g, Miss, 8))
}

func TestSameStreamIsCached(t *testing.T) {
	f := New(Real, 0)
	assert.Same(t, f.R(Clock), f.R(Clock))
}
