package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator yields deterministic UUID-shaped identifiers. Each id has a
// distinct eight-digit hex first segment so short-id lookups stay unambiguous.
type IDGenerator struct {
	mu      sync.Mutex
	seed    uint32
	counter uint32
}

// NewIDGenerator starts a sequence whose first segments count up from seed+1.
func NewIDGenerator(seed uint32) *IDGenerator {
	return &IDGenerator{seed: seed}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", g.seed+g.counter, g.counter)
}

// NextFunc exposes Next for injection into components that take a func() string.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}
