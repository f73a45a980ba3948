package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"govlsm/domain/core"
	"govlsm/ports"
)

func openTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordLifecycle(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	runID := core.NewRunID()
	rec := ports.RunRecord{
		RunID:        runID,
		ConfigDigest: "abcd1234",
		Subjects:     87,
		StartedAt:    core.Now(),
	}
	if err := l.RecordStart(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := l.GetRun(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "running" || got.Subjects != 87 || got.ConfigDigest != "abcd1234" {
		t.Fatalf("record after start: %+v", got)
	}
	if got.FinishedAt != nil {
		t.Fatal("finished_at set before completion")
	}

	if err := l.RecordCompletion(ctx, runID, 143201, 1000); err != nil {
		t.Fatal(err)
	}

	got, err = l.GetRun(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" || got.TestedVoxels != 143201 || got.PermutationsDone != 1000 {
		t.Fatalf("record after completion: %+v", got)
	}
	if got.FinishedAt == nil {
		t.Fatal("finished_at not set on completion")
	}
}

func TestRecordFailure(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	runID := core.NewRunID()
	if err := l.RecordStart(ctx, ports.RunRecord{RunID: runID, Subjects: 1, StartedAt: core.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordFailure(ctx, runID, errors.New("template volume unreadable")); err != nil {
		t.Fatal(err)
	}

	got, err := l.GetRun(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "failed" || got.Error != "template volume unreadable" {
		t.Fatalf("record after failure: %+v", got)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	ids := make([]core.RunID, 3)
	for i := range ids {
		ids[i] = core.NewRunID()
		if err := l.RecordStart(ctx, ports.RunRecord{RunID: ids[i], Subjects: i, StartedAt: core.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	records, err := l.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if !records[0].StartedAt.After(records[1].StartedAt) && !records[0].StartedAt.Equal(records[1].StartedAt) {
		t.Fatalf("records not newest-first: %v then %v", records[0].StartedAt, records[1].StartedAt)
	}
}
