// Package engine implements the per-voxel statistical computations: the
// equal-variance two-sample t-test, the standardized effect size, and the
// power estimate, executed over the tested voxel set by a bounded worker
// pool.
package engine

import (
	"context"
	"math"

	montstats "github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"govlsm/domain/cohort"
	"govlsm/domain/stats"
	"govlsm/internal"
	"govlsm/internal/errors"
)

// Engine computes per-voxel statistics for a cohort. It holds no mutable
// state between batches; the lesion matrix and score vectors are read-only
// during a batch, so tasks share them without locks.
type Engine struct {
	dist   *StatisticalDistributions
	alpha  float64
	nJobs  int
	logger *internal.Logger
}

// NewEngine creates a voxel statistics engine. nJobs bounds the worker
// pool; 1 disables parallelism.
func NewEngine(alpha float64, nJobs int, logger *internal.Logger) *Engine {
	if nJobs < 1 {
		nJobs = 1
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Engine{
		dist:   NewDistributions(),
		alpha:  alpha,
		nJobs:  nJobs,
		logger: logger,
	}
}

// Distributions exposes the shared distribution functions (used by the
// permutation corrector for the corrected p-value).
func (e *Engine) Distributions() *StatisticalDistributions {
	return e.dist
}

// tTest computes the equal-variance two-sample t-statistic. Returns NaN
// when either group is empty or the pooled variance is zero; callers
// propagate the NaN as the degenerate-voxel sentinel.
func tTest(group1, group2 []float64) (tStat float64, df int) {
	n1 := len(group1)
	n2 := len(group2)
	df = n1 + n2 - 2
	if n1 == 0 || n2 == 0 || df <= 0 {
		return math.NaN(), df
	}

	mean1 := mean(group1)
	mean2 := mean(group2)
	var1 := sampleVariance(group1, mean1)
	var2 := sampleVariance(group2, mean2)

	// Pooled variance, df = n1 + n2 - 2
	pooled := (float64(n1-1)*var1 + float64(n2-1)*var2) / float64(df)
	se := math.Sqrt(pooled * (1.0/float64(n1) + 1.0/float64(n2)))
	if se == 0 {
		return math.NaN(), df
	}

	return (mean1 - mean2) / se, df
}

func mean(data []float64) float64 {
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func sampleVariance(data []float64, m float64) float64 {
	if len(data) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range data {
		diff := v - m
		sumSq += diff * diff
	}
	return sumSq / float64(len(data)-1)
}

// GlobalScoreSD returns the population standard deviation of the full score
// vector. It is the scaling denominator of every per-voxel effect size.
func GlobalScoreSD(scores []float64) float64 {
	sd, err := montstats.StandardDeviationPopulation(montstats.Float64Data(scores))
	if err != nil || sd == 0 {
		return math.NaN()
	}
	return sd
}

// FixedEffectSize derives the single effect size shared by every voxel's
// power computation: the 99th percentile of the per-voxel effect sizes,
// NaN entries dropped. All-NaN input yields NaN without error.
func FixedEffectSize(effects []float64) float64 {
	valid := make([]float64, 0, len(effects))
	for _, v := range effects {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return math.NaN()
	}
	if len(valid) == 1 {
		return valid[0]
	}
	p, err := montstats.Percentile(montstats.Float64Data(valid), 99)
	if err != nil {
		return math.NaN()
	}
	return p
}

// ComputeBatch runs the full per-voxel pipeline for the real score vector:
// t-statistic, two-sided p-value, effect size, then — once every effect
// size is known — the power at either the fixed 99th-percentile effect
// size or each voxel's own (perVoxelPower).
//
// All result arrays are ordered identically to tested.Indices regardless of
// task completion order. A failed task fails the whole batch.
func (e *Engine) ComputeBatch(ctx context.Context, coh *cohort.Cohort, tested *stats.TestedVoxels, perVoxelPower bool) (*stats.VoxelResults, error) {
	n := tested.Len()
	results := stats.NewVoxelResults(n)
	if n == 0 {
		return results, nil
	}

	globalSD := GlobalScoreSD(coh.Scores)

	// Group sizes are retained for the power phase so voxels are
	// partitioned once, not twice.
	n1s := make([]int, n)
	n2s := make([]int, n)

	err := e.forEachVoxel(ctx, coh, tested, func(i, voxel int, noLesion, lesion []float64) {
		t, df := tTest(noLesion, lesion)
		results.T[i] = t
		results.P[i] = e.dist.TTestPValue(t, df)
		results.Effect[i] = effectSize(noLesion, lesion, globalSD)
		n1s[i] = len(noLesion)
		n2s[i] = len(lesion)
	})
	if err != nil {
		return nil, err
	}

	// Phase two: power needs the full effect-size distribution first.
	results.FixedEffect = FixedEffectSize(results.Effect)
	for i := 0; i < n; i++ {
		es := results.FixedEffect
		if perVoxelPower {
			es = results.Effect[i]
		}
		results.Power[i] = e.dist.TTestPower(es, e.alpha, n1s[i], n2s[i])
	}

	return results, nil
}

// effectSize is the standardized mean difference between the no-lesion and
// lesion score means, scaled by the global population SD of all scores (not
// the pooled within-group SD).
func effectSize(noLesion, lesion []float64, globalSD float64) float64 {
	if len(noLesion) == 0 || len(lesion) == 0 || math.IsNaN(globalSD) {
		return math.NaN()
	}
	return (mean(noLesion) - mean(lesion)) / globalSD
}

// MaxT recomputes the t-statistic for every tested voxel against the given
// (typically permuted) score vector and returns the maximum. NaN voxels are
// skipped; if every voxel is degenerate the result is NaN.
func (e *Engine) MaxT(ctx context.Context, coh *cohort.Cohort, tested *stats.TestedVoxels, scores []float64) (float64, error) {
	n := tested.Len()
	if n == 0 {
		return math.NaN(), nil
	}

	tvals := make([]float64, n)
	err := e.forEachVoxelScores(ctx, coh, tested, scores, func(i, voxel int, noLesion, lesion []float64) {
		t, _ := tTest(noLesion, lesion)
		tvals[i] = t
	})
	if err != nil {
		return 0, err
	}

	maxT := math.NaN()
	for _, t := range tvals {
		if math.IsNaN(t) {
			continue
		}
		if math.IsNaN(maxT) || t > maxT {
			maxT = t
		}
	}
	return maxT, nil
}

// forEachVoxel dispatches fn over the tested voxels with the cohort's real
// score vector.
func (e *Engine) forEachVoxel(ctx context.Context, coh *cohort.Cohort, tested *stats.TestedVoxels, fn func(i, voxel int, noLesion, lesion []float64)) error {
	return e.forEachVoxelScores(ctx, coh, tested, coh.Scores, fn)
}

// forEachVoxelScores runs fn for every tested voxel using a bounded worker
// pool. Work is split into contiguous index chunks; each worker owns its
// partition buffers and writes only its own result indices, so no
// synchronization beyond the final join is needed.
func (e *Engine) forEachVoxelScores(ctx context.Context, coh *cohort.Cohort, tested *stats.TestedVoxels, scores []float64, fn func(i, voxel int, noLesion, lesion []float64)) error {
	n := tested.Len()
	subjects := coh.Matrix.Subjects

	chunk := n / (e.nJobs * 8)
	if chunk < 1 {
		chunk = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.nJobs)

	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		start, end := start, end
		g.Go(func() error {
			colBuf := make([]uint8, subjects)
			noLesion := make([]float64, 0, subjects)
			lesion := make([]float64, 0, subjects)

			for i := start; i < end; i++ {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				voxel := tested.Indices[i]
				g1, g2 := Partition(coh.Matrix, voxel, scores, colBuf, noLesion[:0], lesion[:0])
				fn(i, voxel, g1, g2)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "voxel batch failed")
	}
	return nil
}
