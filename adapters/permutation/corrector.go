// Package permutation implements the maxT resampling correction: an
// empirical null distribution of the maximum t-statistic across all tested
// voxels under random relabeling of subjects to scores.
package permutation

import (
	"context"
	"fmt"
	"math"

	montstats "github.com/montanaflynn/stats"

	"govlsm/adapters/stats/engine"
	"govlsm/domain/cohort"
	"govlsm/domain/stats"
	"govlsm/internal"
	"govlsm/internal/errors"
	"govlsm/ports"
)

// Corrector accumulates null statistic samples into a durable append-only
// log and derives corrected p-values from them. The log is the only
// authority on how many permutations have completed, which is what makes an
// interrupted run resumable: restart re-reads the length, never a separate
// counter.
type Corrector struct {
	engine  *engine.Engine
	nullLog ports.NullLogPort
	rng     ports.RNGPort
	seed    int64
	logger  *internal.Logger
}

// NewCorrector creates a permutation corrector.
func NewCorrector(eng *engine.Engine, nullLog ports.NullLogPort, rng ports.RNGPort, seed int64, logger *internal.Logger) *Corrector {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Corrector{
		engine:  eng,
		nullLog: nullLog,
		rng:     rng,
		seed:    seed,
		logger:  logger,
	}
}

// Run brings the null log up to numPermutations samples. Each iteration
// shuffles the subject-to-score assignment (the lesion matrix is never
// permuted), recomputes the t-statistic for every tested voxel, and appends
// the maximum to the log before the next iteration starts. A crash loses at
// most the in-flight iteration.
func (c *Corrector) Run(ctx context.Context, coh *cohort.Cohort, tested *stats.TestedVoxels, numPermutations int) error {
	done, err := c.nullLog.Count()
	if err != nil {
		return errors.Wrap(err, "cannot resume permutation run")
	}
	if done >= numPermutations {
		c.logger.Info("[Permutation] log already holds %d samples, nothing to do", done)
		return nil
	}
	if done > 0 {
		c.logger.Info("[Permutation] resuming at iteration %d of %d", done, numPermutations)
	}

	permuted := make([]float64, len(coh.Scores))

	for i := done; i < numPermutations; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// A per-iteration stream keeps resumed runs statistically
		// equivalent to uninterrupted ones: iteration i always draws from
		// the same state, and no earlier draws need replaying.
		rng, err := c.rng.SeededStream(ctx, fmt.Sprintf("maxt-iter-%d", i), c.seed)
		if err != nil {
			return errors.Wrap(err, "failed to create permutation RNG stream")
		}

		copy(permuted, coh.Scores)
		// Fisher-Yates shuffle
		for j := len(permuted) - 1; j > 0; j-- {
			k := rng.Intn(j + 1)
			permuted[j], permuted[k] = permuted[k], permuted[j]
		}

		maxT, err := c.engine.MaxT(ctx, coh, tested, permuted)
		if err != nil {
			return errors.Wrapf(err, "permutation iteration %d failed", i)
		}

		if err := c.nullLog.Append(maxT); err != nil {
			return errors.Wrapf(err, "failed to persist null sample for iteration %d", i)
		}

		if (i+1)%50 == 0 || i+1 == numPermutations {
			c.logger.Info("[Permutation] completed %d/%d iterations", i+1, numPermutations)
		}
	}

	return nil
}

// CorrectedP computes the permutation-corrected p-value for each tested
// voxel from the accumulated log: the fraction of null maxima strictly
// greater than the voxel's real t-statistic. One-sided upper tail by
// construction. Also returns a summary of the null distribution.
func (c *Corrector) CorrectedP(realT []float64) ([]float64, stats.NullSummary, error) {
	samples, err := c.nullLog.ReadAll()
	if err != nil {
		return nil, stats.NullSummary{}, errors.Wrap(err, "failed to read null statistic log")
	}
	if len(samples) == 0 {
		return nil, stats.NullSummary{}, errors.ComputeFailed("null statistic log is empty; run permutations first")
	}

	dist := c.engine.Distributions()
	corrected := make([]float64, len(realT))
	for i, t := range realT {
		corrected[i] = dist.PermutationPValue(t, samples)
	}

	return corrected, summarize(samples), nil
}

func summarize(samples []float64) stats.NullSummary {
	valid := make([]float64, 0, len(samples))
	for _, v := range samples {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	summary := stats.NullSummary{Count: len(samples)}
	if len(valid) == 0 {
		summary.Mean = math.NaN()
		summary.StdDev = math.NaN()
		summary.Min = math.NaN()
		summary.Max = math.NaN()
		summary.Percentile95 = math.NaN()
		summary.Percentile99 = math.NaN()
		return summary
	}

	data := montstats.Float64Data(valid)
	summary.Mean, _ = montstats.Mean(data)
	summary.StdDev, _ = montstats.StandardDeviation(data)
	summary.Min, _ = montstats.Min(data)
	summary.Max, _ = montstats.Max(data)
	summary.Percentile95, _ = montstats.Percentile(data, 95)
	summary.Percentile99, _ = montstats.Percentile(data, 99)
	return summary
}
