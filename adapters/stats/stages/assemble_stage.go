package stages

import (
	"govlsm/domain/stats"
)

// Background is the value written at voxels excluded by the prevalence
// filter in every assembled output volume.
const Background = 0.0

// AssembleStage scatters per-voxel result arrays back into full-volume
// layout using the voxel mask.
type AssembleStage struct{}

// NewAssembleStage creates a new assemble stage
func NewAssembleStage() *AssembleStage {
	return &AssembleStage{}
}

// Scatter places values (parallel to tested.Indices) into a full volume of
// nVoxels, with the background value everywhere else. Tested voxels receive
// their value by index, independent of the order tasks completed in.
func (a *AssembleStage) Scatter(values []float64, tested *stats.TestedVoxels, nVoxels int) []float64 {
	volume := make([]float64, nVoxels)
	for i := range volume {
		volume[i] = Background
	}
	for i, voxel := range tested.Indices {
		volume[voxel] = values[i]
	}
	return volume
}

// ScatterComplement is Scatter for a transformed value, typically
// (1 - p-value) so stronger evidence maps to brighter voxels. NaN inputs
// stay NaN at the tested voxel.
func (a *AssembleStage) ScatterComplement(pvalues []float64, tested *stats.TestedVoxels, nVoxels int) []float64 {
	inv := make([]float64, len(pvalues))
	for i, p := range pvalues {
		inv[i] = 1 - p
	}
	return a.Scatter(inv, tested, nVoxels)
}

// PrevalenceVolume converts the full-grid prevalence counts to a float
// volume. Not masked: computed for every voxel regardless of threshold.
func (a *AssembleStage) PrevalenceVolume(counts []int) []float64 {
	volume := make([]float64, len(counts))
	for i, c := range counts {
		volume[i] = float64(c)
	}
	return volume
}
