package ports

// NullLogPort is the durable append-only log of null statistic samples, one
// maximum t-statistic per completed permutation. The log is never truncated
// or rewritten; its length is the authoritative count of completed
// permutations, which is what makes the procedure resumable.
type NullLogPort interface {
	// Append durably records one null sample. It must not return until the
	// value is persisted.
	Append(value float64) error

	// ReadAll returns every recorded sample in append order. A malformed
	// log is an error, never an empty result.
	ReadAll() ([]float64, error)

	// Count returns the number of completed permutations recorded so far.
	Count() (int, error)
}
