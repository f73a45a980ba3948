// Package app wires the pipeline stages together: load, filter, test,
// correct, assemble, write.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"govlsm/adapters/permutation"
	"govlsm/adapters/stats/engine"
	"govlsm/adapters/stats/stages"
	"govlsm/domain/cohort"
	"govlsm/domain/core"
	"govlsm/domain/stats"
	"govlsm/internal"
	"govlsm/internal/config"
	"govlsm/internal/errors"
	"govlsm/internal/report"
	"govlsm/ports"
)

// PipelineService runs one complete lesion-symptom mapping analysis.
type PipelineService struct {
	cfg     *config.Config
	loader  ports.CohortLoaderPort
	reader  ports.VolumeReaderPort
	writer  ports.VolumeWriterPort
	nullLog ports.NullLogPort
	rng     ports.RNGPort
	ledger  ports.RunLedgerPort // optional; nil disables the audit ledger
	logger  *internal.Logger
}

// NewPipelineService creates the pipeline with its collaborators.
func NewPipelineService(
	cfg *config.Config,
	loader ports.CohortLoaderPort,
	reader ports.VolumeReaderPort,
	writer ports.VolumeWriterPort,
	nullLog ports.NullLogPort,
	rng ports.RNGPort,
	ledger ports.RunLedgerPort,
	logger *internal.Logger,
) *PipelineService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &PipelineService{
		cfg:     cfg,
		loader:  loader,
		reader:  reader,
		writer:  writer,
		nullLog: nullLog,
		rng:     rng,
		ledger:  ledger,
		logger:  logger,
	}
}

// RunResult summarizes a completed run.
type RunResult struct {
	RunID        core.RunID
	TestedVoxels int
	Results      *stats.VoxelResults
	Summary      report.Summary
}

// Run executes the full pipeline. Input and resource errors abort the run;
// per-voxel degeneracies are carried through as NaN sentinels. Outputs are
// written only after every stage feeding them has completed.
func (s *PipelineService) Run(ctx context.Context) (*RunResult, error) {
	runID := core.NewRunID()
	started := core.Now()
	s.logger.Info("[Pipeline] run %s starting", runID)

	result, err := s.run(ctx, runID, started)
	if err != nil {
		if s.ledger != nil {
			if lerr := s.ledger.RecordFailure(context.WithoutCancel(ctx), runID, err); lerr != nil {
				s.logger.Warn("[Pipeline] failed to record failure in ledger: %v", lerr)
			}
		}
		return nil, err
	}
	return result, nil
}

func (s *PipelineService) run(ctx context.Context, runID core.RunID, started time.Time) (*RunResult, error) {
	// Stage 1: cohort.
	coh, err := s.loader.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cohort loading failed")
	}
	s.logger.Info("[Pipeline] cohort loaded: %d subjects, %d voxels", coh.Matrix.Subjects, coh.Matrix.Voxels)

	if s.ledger != nil {
		rec := ports.RunRecord{
			RunID:        runID,
			ConfigDigest: configDigest(s.cfg),
			Subjects:     coh.Matrix.Subjects,
			StartedAt:    started,
		}
		if err := s.ledger.RecordStart(ctx, rec); err != nil {
			return nil, errors.Wrap(err, "run ledger rejected the run")
		}
	}

	_, templateRef, err := s.reader.Read(s.cfg.Cohort.Template)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read template volume")
	}

	// Stage 2: prevalence filter.
	prevalenceStage := stages.NewPrevalenceStage()
	counts, tested := prevalenceStage.Execute(coh.Matrix, s.cfg.Stats.SubjectThreshold)
	s.logger.Info("[Pipeline] %d of %d voxels pass prevalence threshold %d",
		tested.Len(), coh.Matrix.Voxels, s.cfg.Stats.SubjectThreshold)

	// Stage 3: per-voxel statistics on the real scores.
	eng := engine.NewEngine(s.cfg.Stats.Alpha, s.cfg.Stats.NJobs, s.logger)
	results, err := eng.ComputeBatch(ctx, coh, tested, s.cfg.Stats.PerVoxelPower)
	if err != nil {
		return nil, errors.Wrap(err, "voxel statistics failed")
	}

	// Stage 4 (optional): permutation-based maxT correction.
	var permP []float64
	var nullSummary *stats.NullSummary
	permutationsDone := 0
	if s.cfg.Permutation.Enabled && tested.Len() > 0 {
		corrector := permutation.NewCorrector(eng, s.nullLog, s.rng, s.cfg.Permutation.Seed, s.logger)
		if err := corrector.Run(ctx, coh, tested, s.cfg.Permutation.NumPermutations); err != nil {
			return nil, errors.Wrap(err, "permutation correction failed")
		}
		p, summary, err := corrector.CorrectedP(results.T)
		if err != nil {
			return nil, errors.Wrap(err, "permutation p-value derivation failed")
		}
		permP = p
		nullSummary = &summary
		permutationsDone = summary.Count
	}

	// Stage 5: FDR correction.
	fdrP := stages.NewFDRStage().Execute(results.P)

	// Stage 6: assemble and write outputs.
	if err := s.writeOutputs(coh, templateRef, counts, tested, results, fdrP, permP); err != nil {
		return nil, err
	}

	summary := s.buildSummary(runID, started, coh, tested, results, fdrP, permP, nullSummary, permutationsDone)
	if err := s.writeReport(summary); err != nil {
		return nil, err
	}

	if s.ledger != nil {
		if err := s.ledger.RecordCompletion(ctx, runID, tested.Len(), permutationsDone); err != nil {
			s.logger.Warn("[Pipeline] failed to record completion in ledger: %v", err)
		}
	}

	s.logger.Info("[Pipeline] run %s completed in %s", runID, time.Since(started).Round(time.Millisecond))
	return &RunResult{
		RunID:        runID,
		TestedVoxels: tested.Len(),
		Results:      results,
		Summary:      summary,
	}, nil
}

func (s *PipelineService) writeOutputs(
	coh *cohort.Cohort,
	ref cohort.Reference,
	counts []int,
	tested *stats.TestedVoxels,
	results *stats.VoxelResults,
	fdrP, permP []float64,
) error {
	assemble := stages.NewAssembleStage()
	nVoxels := coh.Matrix.Voxels
	out := s.cfg.Output

	volumes := []struct {
		name string
		data []float64
	}{
		{out.Prevalence, assemble.PrevalenceVolume(counts)},
		{out.TMap, assemble.Scatter(results.T, tested, nVoxels)},
		{out.RawP, assemble.ScatterComplement(results.P, tested, nVoxels)},
		{out.FDRP, assemble.ScatterComplement(fdrP, tested, nVoxels)},
		{out.Power, assemble.Scatter(results.Power, tested, nVoxels)},
		{out.Effect, assemble.Scatter(results.Effect, tested, nVoxels)},
	}
	if permP != nil {
		volumes = append(volumes, struct {
			name string
			data []float64
		}{out.PermP, assemble.ScatterComplement(permP, tested, nVoxels)})
	}

	for _, v := range volumes {
		path := filepath.Join(out.Dir, v.name)
		if err := s.writer.Write(path, v.data, ref); err != nil {
			return errors.Wrapf(err, "failed to write output volume %s", v.name)
		}
		s.logger.Info("[Pipeline] wrote %s", path)
	}
	return nil
}

func (s *PipelineService) buildSummary(
	runID core.RunID,
	started time.Time,
	coh *cohort.Cohort,
	tested *stats.TestedVoxels,
	results *stats.VoxelResults,
	fdrP, permP []float64,
	nullSummary *stats.NullSummary,
	permutationsDone int,
) report.Summary {
	alpha := s.cfg.Stats.Alpha
	return report.Summary{
		RunID:            runID,
		StartedAt:        started,
		Duration:         time.Since(started),
		Subjects:         coh.Matrix.Subjects,
		GridDims:         coh.Grid.Dims(),
		TestedVoxels:     tested.Len(),
		Alpha:            alpha,
		FixedEffect:      results.FixedEffect,
		SignificantRaw:   countBelow(results.P, alpha),
		SignificantFDR:   countBelow(fdrP, alpha),
		SignificantPerm:  countBelow(permP, alpha),
		PermutationsDone: permutationsDone,
		NullSummary:      nullSummary,
	}
}

func (s *PipelineService) writeReport(summary report.Summary) error {
	path := filepath.Join(s.cfg.Output.Dir, s.cfg.Output.Report)
	var payload []byte
	if filepath.Ext(path) == ".html" {
		payload = report.HTML(summary)
	} else {
		payload = report.Markdown(summary)
	}
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return errors.IOError("failed to write run report", err)
	}
	s.logger.Info("[Pipeline] wrote %s", path)
	return nil
}

func countBelow(values []float64, alpha float64) int {
	n := 0
	for _, v := range values {
		if !math.IsNaN(v) && v < alpha {
			n++
		}
	}
	return n
}

// configDigest fingerprints the effective configuration for the audit
// ledger, so a resumed permutation run can be matched to its original
// parameters.
func configDigest(cfg *config.Config) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%+v", *cfg)))
	return hex.EncodeToString(sum[:8])
}
