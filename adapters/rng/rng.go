// Package rng provides deterministic seeded random number streams.
package rng

import (
	"context"
	"math/rand"

	"govlsm/ports"
)

// Adapter implements ports.RNGPort with per-name deterministic streams.
type Adapter struct{}

// NewAdapter creates an RNG adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

var _ ports.RNGPort = (*Adapter)(nil)

// SeededStream creates a deterministic random number generator for a named
// operation. The name is folded into the seed so differently-named streams
// (e.g. successive permutation iterations) are independent while remaining
// reproducible for a given base seed.
func (a *Adapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	derived := seed
	if name != "" {
		derived += int64(hashString(name))
	}
	return rand.New(rand.NewSource(derived)), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
