package stages

import (
	"math"
	"sort"
)

// FDRStage applies Benjamini-Hochberg false discovery rate correction to
// the raw per-voxel p-values.
type FDRStage struct{}

// NewFDRStage creates a new FDR stage
func NewFDRStage() *FDRStage {
	return &FDRStage{}
}

// Execute returns BH-adjusted p-values in the same order and length as the
// input. Standard step-up procedure: sort ascending, scale each rank by
// m/rank, monotonize with a running minimum from the largest rank down, and
// clamp to 1. NaN p-values (degenerate voxels) are excluded from m and stay
// NaN in the output.
//
// Invariants: adjusted[i] >= raw[i], and adjusted values are non-decreasing
// when ordered by ascending raw p-value.
func (f *FDRStage) Execute(pvalues []float64) []float64 {
	adjusted := make([]float64, len(pvalues))

	type ranked struct {
		p   float64
		idx int
	}
	order := make([]ranked, 0, len(pvalues))
	for i, p := range pvalues {
		if math.IsNaN(p) {
			adjusted[i] = math.NaN()
			continue
		}
		order = append(order, ranked{p: p, idx: i})
	}

	m := len(order)
	if m == 0 {
		return adjusted
	}

	sort.Slice(order, func(i, j int) bool { return order[i].p < order[j].p })

	// q_rank = p_rank * m/rank, then running minimum from the end so the
	// adjusted sequence is monotone in the raw ordering.
	runningMin := math.Inf(1)
	qs := make([]float64, m)
	for i := m - 1; i >= 0; i-- {
		rank := i + 1
		q := order[i].p * float64(m) / float64(rank)
		if q < runningMin {
			runningMin = q
		}
		if runningMin > 1.0 {
			qs[i] = 1.0
		} else {
			qs[i] = runningMin
		}
	}

	for i, r := range order {
		adjusted[r.idx] = qs[i]
	}
	return adjusted
}
