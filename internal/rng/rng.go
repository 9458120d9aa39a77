// Package rng implements the single deterministic uniform stream the
// rest of queuesim draws from. Every Distribution in internal/distribution
// consumes from the same *Stream so that replications stay reproducible
// and draws stay positionally synchronized across distribution swaps.
package rng

// Constants from Knuth's MMIX 64-bit LCG. Picked over math/rand because
// math/rand's algorithm isn't part of its compatibility guarantee across
// Go versions; queuesim needs a stream that is bit-identical forever,
// not just within one build.
const (
	multiplier uint64 = 6364136223846793005
	increment  uint64 = 1442695040888963407
)

// Stream is a single 64-bit LCG. The zero value is not usable; create
// one with New.
type Stream struct {
	state uint64
}

// New creates a Stream seeded with the given 64-bit seed. The same
// seed always produces the same sequence of Float64 draws.
func New(seed int64) *Stream {
	s := &Stream{state: uint64(seed)}
	// Advance once so a seed of 0 doesn't hand back 0 as the first state.
	s.next()
	return s
}

func (s *Stream) next() uint64 {
	s.state = s.state*multiplier + increment
	return s.state
}

// Float64 returns a uniform value in [0, 1). It never returns exactly
// 1.0: the top 53 bits of the LCG state are used as the mantissa of an
// IEEE-754 double divided by 2^53, which is exact and strictly less
// than 1.
func (s *Stream) Float64() float64 {
	return float64(s.next()>>11) / (1 << 53)
}
