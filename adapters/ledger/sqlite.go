// Package ledger persists one audit row per pipeline run in an embedded
// SQLite database.
package ledger

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"govlsm/domain/core"
	"govlsm/internal/errors"
	"govlsm/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id            TEXT PRIMARY KEY,
	config_digest     TEXT NOT NULL,
	subjects          INTEGER NOT NULL,
	tested_voxels     INTEGER NOT NULL DEFAULT 0,
	permutations_done INTEGER NOT NULL DEFAULT 0,
	started_at        TIMESTAMP NOT NULL,
	finished_at       TIMESTAMP,
	status            TEXT NOT NULL,
	error             TEXT NOT NULL DEFAULT ''
);`

type runRow struct {
	RunID            string     `db:"run_id"`
	ConfigDigest     string     `db:"config_digest"`
	Subjects         int        `db:"subjects"`
	TestedVoxels     int        `db:"tested_voxels"`
	PermutationsDone int        `db:"permutations_done"`
	StartedAt        time.Time  `db:"started_at"`
	FinishedAt       *time.Time `db:"finished_at"`
	Status           string     `db:"status"`
	Error            string     `db:"error"`
}

// SQLiteLedger implements ports.RunLedgerPort on an embedded database.
// Rows are inserted and completed, never deleted.
type SQLiteLedger struct {
	db *sqlx.DB
}

// Open creates or opens the ledger database and ensures the schema.
func Open(path string) (*SQLiteLedger, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, errors.IOError("failed to open run ledger", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.IOError("failed to initialize run ledger schema", err)
	}
	return &SQLiteLedger{db: db}, nil
}

var _ ports.RunLedgerPort = (*SQLiteLedger)(nil)

// RecordStart inserts the row for a newly started run.
func (l *SQLiteLedger) RecordStart(ctx context.Context, rec ports.RunRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, config_digest, subjects, started_at, status)
		VALUES (?, ?, ?, ?, 'running')`,
		rec.RunID.String(), rec.ConfigDigest, rec.Subjects, rec.StartedAt)
	if err != nil {
		return errors.IOError("failed to record run start", err)
	}
	return nil
}

// RecordCompletion marks a run completed with its final counters.
func (l *SQLiteLedger) RecordCompletion(ctx context.Context, runID core.RunID, testedVoxels, permutationsDone int) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE runs SET tested_voxels = ?, permutations_done = ?, finished_at = ?, status = 'completed'
		WHERE run_id = ?`,
		testedVoxels, permutationsDone, core.Now(), runID.String())
	if err != nil {
		return errors.IOError("failed to record run completion", err)
	}
	return nil
}

// RecordFailure marks a run failed with its cause.
func (l *SQLiteLedger) RecordFailure(ctx context.Context, runID core.RunID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := l.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = 'failed', error = ?
		WHERE run_id = ?`,
		core.Now(), msg, runID.String())
	if err != nil {
		return errors.IOError("failed to record run failure", err)
	}
	return nil
}

// GetRun fetches one run record.
func (l *SQLiteLedger) GetRun(ctx context.Context, runID core.RunID) (*ports.RunRecord, error) {
	var row runRow
	if err := l.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE run_id = ?`, runID.String()); err != nil {
		return nil, errors.IOError("failed to load run record", err)
	}
	rec := toRecord(row)
	return &rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (l *SQLiteLedger) ListRuns(ctx context.Context, limit int) ([]ports.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	if err := l.db.SelectContext(ctx, &rows, `
		SELECT * FROM runs ORDER BY started_at DESC LIMIT ?`, limit); err != nil {
		return nil, errors.IOError("failed to list run records", err)
	}
	records := make([]ports.RunRecord, len(rows))
	for i, row := range rows {
		records[i] = toRecord(row)
	}
	return records, nil
}

// Close releases the database handle.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func toRecord(row runRow) ports.RunRecord {
	return ports.RunRecord{
		RunID:            core.RunID(row.RunID),
		ConfigDigest:     row.ConfigDigest,
		Subjects:         row.Subjects,
		TestedVoxels:     row.TestedVoxels,
		PermutationsDone: row.PermutationsDone,
		StartedAt:        row.StartedAt,
		FinishedAt:       row.FinishedAt,
		Status:           row.Status,
		Error:            row.Error,
	}
}
