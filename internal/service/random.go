package service

import (
	"math/rand/v2"
	"sync"
)

// Randomizer is the subset of *rand.Rand the content helpers use.
type Randomizer interface {
	IntN(n int) int
	Float64() float64
}

type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomizer returns a goroutine-safe randomizer seeded from the runtime source.
func NewRandomizer() Randomizer {
	return &lockedRand{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededRandomizer returns a deterministic randomizer for tests and replays.
func NewSeededRandomizer(seed uint64) Randomizer {
	return &lockedRand{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// between returns a random integer in [lo, hi].
func between(r Randomizer, lo, hi int) int {
	return lo + r.IntN(hi-lo+1)
}

func pick[T any](r Randomizer, items []T) T {
	return items[r.IntN(len(items))]
}
