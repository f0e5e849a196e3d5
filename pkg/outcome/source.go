package outcome

import (
	"math/rand/v2"
	"sync"
)

// Source supplies uniform randomness to the generator
type Source interface {
	// Float64 returns a value in [0, 1)
	Float64() float64
	// IntN returns a value in [0, n)
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }
func (globalSource) IntN(n int) int   { return rand.IntN(n) }

// DefaultSource draws from the runtime's shared, automatically seeded
// generator and is safe for concurrent use
func DefaultSource() Source {
	return globalSource{}
}

type seededSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededSource returns a reproducible PCG-backed source that is safe for
// concurrent use
func NewSeededSource(seed uint64) Source {
	return &seededSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *seededSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
