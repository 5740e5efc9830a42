package testutil

import (
	"fmt"
	"sync"
)

// FixedGenerator returns preset ids in order.
//
// It satisfies pipeline.IDGenerator and is used wherever a test needs a
// run id fallback or item id it can assert on. Generate panics when the
// preset ids run out, so a test never silently receives an unexpected id.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	n   int
}

// NewFixedGenerator creates a generator over ids.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next preset id.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n >= len(g.ids) {
		panic(fmt.Sprintf("FixedGenerator exhausted after %d ids", len(g.ids)))
	}
	id := g.ids[g.n]
	g.n++
	return id
}

// SequenceGenerator returns prefix-1, prefix-2, ... forever.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator with the given prefix.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
