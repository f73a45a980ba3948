package ports

import (
	"context"

	"govlsm/domain/cohort"
)

// CohortLoaderPort builds the lesion matrix and score vector from the
// design document and the lesion directory. Implementations fail fast on
// a missing lesion file, a grid mismatch, or a malformed design table,
// naming the offending subject.
type CohortLoaderPort interface {
	Load(ctx context.Context) (*cohort.Cohort, error)
}
