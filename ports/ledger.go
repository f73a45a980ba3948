package ports

import (
	"context"
	"time"

	"govlsm/domain/core"
)

// RunRecord is one row of the run ledger: the audit trail of a pipeline
// execution.
type RunRecord struct {
	RunID            core.RunID
	ConfigDigest     string
	Subjects         int
	TestedVoxels     int
	PermutationsDone int
	StartedAt        time.Time
	FinishedAt       *time.Time
	Status           string // "running", "completed", "failed"
	Error            string
}

// RunLedgerPort provides append-only persistence of run records. Records
// are only ever inserted and completed, never deleted.
type RunLedgerPort interface {
	RecordStart(ctx context.Context, rec RunRecord) error
	RecordCompletion(ctx context.Context, runID core.RunID, testedVoxels, permutationsDone int) error
	RecordFailure(ctx context.Context, runID core.RunID, cause error) error
	GetRun(ctx context.Context, runID core.RunID) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}
