package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govlsm/adapters/cohortload"
	"govlsm/adapters/ledger"
	"govlsm/adapters/nulllog"
	"govlsm/adapters/rng"
	"govlsm/domain/cohort"
	"govlsm/internal/config"
	"govlsm/internal/testkit"
	"govlsm/ports"
)

// fixture builds a complete on-disk-plus-in-memory run setup around the
// ten-subject cohort: scores 1..10, and only voxel 3 (lesioned in the five
// highest-scoring subjects) reaches the prevalence threshold.
type fixture struct {
	cfg   *config.Config
	store *testkit.MemoryVolumeStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0755))

	grid := cohort.Grid{Nx: 8, Ny: 1, Nz: 1}
	store := testkit.NewMemoryVolumeStore()
	store.Put("template.nii.gz", grid, make([]float64, grid.NVoxels()))

	var design strings.Builder
	design.WriteString("filename,score\n")
	for s := 0; s < 10; s++ {
		row := make([]float64, grid.NVoxels())
		if s >= 5 {
			row[3] = 1
		}
		if s < 4 {
			row[0] = 1
		}
		if s < 2 {
			row[5] = 1
		}

		filename := fmt.Sprintf("p%03d_lesion.nii.gz", s+1)
		store.Put(filepath.Join("lesions", filename), grid, row)
		fmt.Fprintf(&design, "%s,%d\n", filename, s+1)
	}
	designPath := filepath.Join(dir, "design.csv")
	require.NoError(t, os.WriteFile(designPath, []byte(design.String()), 0644))

	cfg := config.Default()
	cfg.Cohort.DirLesion = "lesions"
	cfg.Cohort.DesignDocument = designPath
	cfg.Cohort.Template = "template.nii.gz"
	cfg.Stats.NJobs = 2
	cfg.Output.Dir = outDir
	require.NoError(t, cfg.Validate())

	return &fixture{cfg: cfg, store: store}
}

func (f *fixture) pipeline(t *testing.T, runLedger *ledger.SQLiteLedger) *PipelineService {
	t.Helper()
	logPath := filepath.Join(f.cfg.Output.Dir, f.cfg.Permutation.LogPath)
	var lp ports.RunLedgerPort
	if runLedger != nil {
		lp = runLedger
	}
	return NewPipelineService(f.cfg, cohortload.NewLoader(f.cfg.Cohort, f.store, nil),
		f.store, f.store, nulllog.NewFileLog(logPath), rng.NewAdapter(), lp, nil)
}

func TestPipelineRun(t *testing.T) {
	f := newFixture(t)
	result, err := f.pipeline(t, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TestedVoxels)

	// Voxel 3 splits scores into {1..5} vs {6..10}: t = -5 exactly.
	tmap, ok := f.store.Written(filepath.Join(f.cfg.Output.Dir, f.cfg.Output.TMap))
	require.True(t, ok, "t-map volume not written")
	assert.InDelta(t, -5.0, tmap[3], 1e-9)
	for v, val := range tmap {
		if v != 3 {
			assert.Zero(t, val, "untested voxel %d should be background", v)
		}
	}

	prevalence, ok := f.store.Written(filepath.Join(f.cfg.Output.Dir, f.cfg.Output.Prevalence))
	require.True(t, ok, "prevalence volume not written")
	assert.Equal(t, []float64{4, 0, 0, 5, 0, 2, 0, 0}, prevalence)

	// |t| = 5 at df = 8: raw p ~ 0.001, so the inverted map is near 1.
	rawP, ok := f.store.Written(filepath.Join(f.cfg.Output.Dir, f.cfg.Output.RawP))
	require.True(t, ok)
	assert.Greater(t, rawP[3], 0.99)
	assert.Zero(t, rawP[0], "untested voxels carry background, not 1-p")

	effect, ok := f.store.Written(filepath.Join(f.cfg.Output.Dir, f.cfg.Output.Effect))
	require.True(t, ok)
	assert.InDelta(t, -5.0/math.Sqrt(8.25), effect[3], 1e-9)

	for _, name := range []string{f.cfg.Output.FDRP, f.cfg.Output.Power} {
		_, ok := f.store.Written(filepath.Join(f.cfg.Output.Dir, name))
		assert.True(t, ok, "volume %s not written", name)
	}

	// Permutation disabled: no corrected map.
	_, ok = f.store.Written(filepath.Join(f.cfg.Output.Dir, f.cfg.Output.PermP))
	assert.False(t, ok)

	reportBytes, err := os.ReadFile(filepath.Join(f.cfg.Output.Dir, f.cfg.Output.Report))
	require.NoError(t, err)
	assert.Contains(t, string(reportBytes), string(result.RunID))
}

func TestPipelineRunWithPermutation(t *testing.T) {
	f := newFixture(t)
	f.cfg.Permutation.Enabled = true
	f.cfg.Permutation.NumPermutations = 20

	result, err := f.pipeline(t, nil).Run(context.Background())
	require.NoError(t, err)

	permP, ok := f.store.Written(filepath.Join(f.cfg.Output.Dir, f.cfg.Output.PermP))
	require.True(t, ok, "permutation-corrected volume not written")
	// The real t is -5, the most negative value this cohort can produce, so
	// essentially every null maximum exceeds it and 1-p stays near 0.
	assert.InDelta(t, 0.0, permP[3], 0.11)

	assert.Equal(t, 20, result.Summary.PermutationsDone)
	require.NotNil(t, result.Summary.NullSummary)
	assert.Equal(t, 20, result.Summary.NullSummary.Count)

	// The null log survives the run for future resumption.
	n, err := nulllog.NewFileLog(filepath.Join(f.cfg.Output.Dir, f.cfg.Permutation.LogPath)).Count()
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestPipelineRecordsLedger(t *testing.T) {
	f := newFixture(t)
	l, err := ledger.Open(filepath.Join(f.cfg.Output.Dir, f.cfg.Output.LedgerDB))
	require.NoError(t, err)
	defer l.Close()

	result, err := f.pipeline(t, l).Run(context.Background())
	require.NoError(t, err)

	rec, err := l.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.Status)
	assert.Equal(t, 10, rec.Subjects)
	assert.Equal(t, 1, rec.TestedVoxels)
	require.NotNil(t, rec.FinishedAt)
}

func TestPipelineRecordsFailure(t *testing.T) {
	f := newFixture(t)
	f.cfg.Cohort.Template = "does-not-exist.nii.gz"

	l, err := ledger.Open(filepath.Join(f.cfg.Output.Dir, f.cfg.Output.LedgerDB))
	require.NoError(t, err)
	defer l.Close()

	_, err = f.pipeline(t, l).Run(context.Background())
	require.Error(t, err)

	// The loader fails before RecordStart, so no row exists; nothing to
	// assert beyond the error itself.
}

func TestPipelineEmptyTestedSet(t *testing.T) {
	f := newFixture(t)
	f.cfg.Stats.SubjectThreshold = 11

	result, err := f.pipeline(t, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.TestedVoxels)

	tmap, ok := f.store.Written(filepath.Join(f.cfg.Output.Dir, f.cfg.Output.TMap))
	require.True(t, ok)
	for v, val := range tmap {
		assert.Zero(t, val, "voxel %d", v)
	}
}
