package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a
	// named operation. Permutation streams derive their state from the run
	// seed plus the stream name, so resumed runs continue from fresh state
	// without replaying earlier draws.
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)
}
