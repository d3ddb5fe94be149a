// Package rng is the seeded random source shared by the server and every
// client that rebuilds a course. Output must stay bit-identical to the
// browser's mulberry32 for the same seed and call sequence.
package rng

const (
	// MaxSeed is the largest seed the game hands out (2^31-1).
	MaxSeed = 0x7fffffff

	increment = 0x6d2b79f5
	twoTo32   = 4294967296.0
)

// NormalizeSeed maps any integer into [1, MaxSeed]. Zero becomes 1.
func NormalizeSeed(seed int64) int64 {
	if seed < 0 {
		seed = -seed
	}
	seed %= MaxSeed + 1
	if seed == 0 {
		return 1
	}
	return seed
}

// Rand is a mulberry32 stream. It is not safe for concurrent use; give every
// generation block its own instance.
type Rand struct {
	state uint32
}

// New seeds a stream with the low 32 bits of seed; zero is treated as 1.
func New(seed int64) *Rand {
	if seed == 0 {
		seed = 1
	}
	return &Rand{state: uint32(seed)}
}

// Scoped runs fn with a fresh stream for seed. Nested calls each get their
// own stream.
func Scoped(seed int64, fn func(r *Rand)) {
	fn(New(seed))
}

// Float64 returns the next value in [0, 1).
func (r *Rand) Float64() float64 {
	r.state += increment
	t := r.state
	x := (t ^ (t >> 15)) * (t | 1)
	x ^= x + (x^(x>>7))*(x|61)
	return float64(x^(x>>14)) / twoTo32
}

// Range returns a value in [a, b).
func (r *Rand) Range(a, b float64) float64 {
	return r.Float64()*(b-a) + a
}

// IntRange returns an integer in [a, b], inclusive on both ends.
func (r *Rand) IntRange(a, b int) int {
	return int(r.Float64()*float64(b-a+1)) + a
}

// Chance reports whether the next draw falls under p.
func (r *Rand) Chance(p float64) bool {
	return r.Float64() < p
}
