// Package random provides the cryptographically sound random source used by
// game simulations.
package random

import (
	"crypto/rand"
	"math/big"
)

// Source draws integers from crypto/rand.
type Source struct{}

// New creates a new Source.
func New() *Source {
	return &Source{}
}

// UniformInt returns a uniformly distributed integer in [min, max].
// If max < min the bounds are swapped.
func (s *Source) UniformInt(min, max int) int {
	if max < min {
		min, max = max, min
	}
	if min == max {
		return min
	}
	span := big.NewInt(int64(max) - int64(min) + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		// crypto/rand.Reader does not fail on supported platforms
		panic("random: crypto source unavailable: " + err.Error())
	}
	return min + int(n.Int64())
}

// WeightedChoice returns an index into weights chosen with probability
// proportional to its weight. Non-positive weights are never chosen.
// Returns -1 when no weight is positive.
func (s *Source) WeightedChoice(weights []int) int {
	total := 0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return -1
	}

	r := s.UniformInt(1, total)
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		r -= w
		if r <= 0 {
			return i
		}
	}
	return len(weights) - 1
}
