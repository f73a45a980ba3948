// Package stages contains the deterministic pipeline stages surrounding the
// voxel engine: prevalence filtering, FDR correction, and assembling
// per-voxel results back into full-volume layout.
package stages

import (
	"govlsm/domain/cohort"
	"govlsm/domain/stats"
)

// PrevalenceStage selects the voxels eligible for testing.
type PrevalenceStage struct{}

// NewPrevalenceStage creates a new prevalence stage
func NewPrevalenceStage() *PrevalenceStage {
	return &PrevalenceStage{}
}

// Execute computes the per-voxel lesion prevalence counts and the voxel
// mask of voxels lesioned in at least threshold subjects. A threshold above
// the subject count yields an empty tested set; downstream stages handle
// that as a degenerate but valid pipeline.
//
// Pure function of the lesion matrix: identical input yields identical
// counts, mask, and index ordering.
func (p *PrevalenceStage) Execute(matrix *cohort.LesionMatrix, threshold int) ([]int, *stats.TestedVoxels) {
	counts := matrix.Prevalence()

	mask := make([]bool, matrix.Voxels)
	indices := make([]int, 0)
	for v, c := range counts {
		if c >= threshold {
			mask[v] = true
			indices = append(indices, v)
		}
	}

	return counts, &stats.TestedVoxels{Indices: indices, Mask: mask}
}
