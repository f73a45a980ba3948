// Package stats holds the result types of the per-voxel statistical
// pipeline. Every per-voxel slice in this package is a parallel array
// indexed identically to the ordered tested-voxel index set.
package stats

import "math"

// TestedVoxels is the ordered set of flat voxel indices that passed the
// prevalence filter. The ordering is fixed for the whole run: result arrays
// for t, p, effect size and power all use it.
type TestedVoxels struct {
	// Indices are flat voxel indices into the full grid, ascending.
	Indices []int

	// Mask is the full-grid boolean voxel mask (true = tested).
	Mask []bool
}

// Len returns the number of tested voxels.
func (tv *TestedVoxels) Len() int {
	return len(tv.Indices)
}

// VoxelResults holds the parallel per-voxel result arrays of one run.
// Degenerate voxels (a zero-size group, or zero score variance) carry NaN
// in all four arrays; every consumer tolerates NaN.
type VoxelResults struct {
	T      []float64 // equal-variance two-sample t-statistic
	P      []float64 // two-sided raw p-value
	Effect []float64 // standardized mean difference on the global score SD
	Power  []float64 // power of the two-sided t-test at the chosen effect size

	// FixedEffect is the 99th percentile of the per-voxel effect sizes,
	// shared across all voxels when fixed-effect power mode is active.
	// NaN when every effect size is undefined.
	FixedEffect float64
}

// NewVoxelResults allocates result arrays for n tested voxels, initialized
// to NaN so an unset entry is never mistaken for a valid statistic.
func NewVoxelResults(n int) *VoxelResults {
	r := &VoxelResults{
		T:           make([]float64, n),
		P:           make([]float64, n),
		Effect:      make([]float64, n),
		Power:       make([]float64, n),
		FixedEffect: math.NaN(),
	}
	for i := 0; i < n; i++ {
		r.T[i] = math.NaN()
		r.P[i] = math.NaN()
		r.Effect[i] = math.NaN()
		r.Power[i] = math.NaN()
	}
	return r
}

// NullSummary describes the empirical null distribution accumulated by the
// permutation corrector.
type NullSummary struct {
	Count        int
	Mean         float64
	StdDev       float64
	Min          float64
	Max          float64
	Percentile95 float64
	Percentile99 float64
}
