// Package cohort holds the immutable data model of one mapping run: the
// lesion matrix, the behavioral score vector, and the voxel grid they are
// registered to.
package cohort

import (
	"fmt"

	"govlsm/domain/core"
)

// Grid describes the voxel grid of the common reference space.
type Grid struct {
	Nx, Ny, Nz int
}

// NVoxels returns the number of voxels in the grid.
func (g Grid) NVoxels() int {
	return g.Nx * g.Ny * g.Nz
}

// Dims returns the grid dimensions as an array, for error reporting.
func (g Grid) Dims() [3]int {
	return [3]int{g.Nx, g.Ny, g.Nz}
}

// Equal reports whether two grids have identical dimensions.
func (g Grid) Equal(other Grid) bool {
	return g.Nx == other.Nx && g.Ny == other.Ny && g.Nz == other.Nz
}

// Reference is an opaque handle to the geometry/header metadata of the
// template volume. Output writers stamp it verbatim on every produced
// volume; the core never inspects it beyond the grid.
type Reference interface {
	Grid() Grid
}

// LesionMatrix is the subjects x voxels matrix of lesion-presence values.
// Entries are non-negative; 0 means no lesion at that voxel for that
// subject. The matrix is built once by the cohort loader and read-only for
// the remainder of the run, so it may be shared freely across workers.
type LesionMatrix struct {
	Subjects int
	Voxels   int
	data     []uint8 // row-major: subject * Voxels + voxel
}

// NewLesionMatrix allocates a zeroed subjects x voxels matrix.
func NewLesionMatrix(subjects, voxels int) *LesionMatrix {
	return &LesionMatrix{
		Subjects: subjects,
		Voxels:   voxels,
		data:     make([]uint8, subjects*voxels),
	}
}

// At returns the lesion value for a subject at a voxel.
func (m *LesionMatrix) At(subject, voxel int) uint8 {
	return m.data[subject*m.Voxels+voxel]
}

// Set assigns the lesion value for a subject at a voxel. Only the cohort
// loader calls this, before the matrix is handed to the pipeline.
func (m *LesionMatrix) Set(subject, voxel int, value uint8) {
	m.data[subject*m.Voxels+voxel] = value
}

// SetRow copies one subject's full lesion row.
func (m *LesionMatrix) SetRow(subject int, row []uint8) error {
	if len(row) != m.Voxels {
		return fmt.Errorf("row length %d does not match voxel count %d", len(row), m.Voxels)
	}
	copy(m.data[subject*m.Voxels:(subject+1)*m.Voxels], row)
	return nil
}

// Column copies the lesion values of all subjects at one voxel into dst,
// which must have length Subjects. The partition of subjects into lesion
// and no-lesion groups is a function of this column alone.
func (m *LesionMatrix) Column(voxel int, dst []uint8) {
	for s := 0; s < m.Subjects; s++ {
		dst[s] = m.data[s*m.Voxels+voxel]
	}
}

// Prevalence returns the per-voxel count of subjects with a lesion
// (value > 0). Computed over every voxel regardless of any threshold.
func (m *LesionMatrix) Prevalence() []int {
	counts := make([]int, m.Voxels)
	for s := 0; s < m.Subjects; s++ {
		row := m.data[s*m.Voxels : (s+1)*m.Voxels]
		for v, val := range row {
			if val > 0 {
				counts[v]++
			}
		}
	}
	return counts
}

// Cohort bundles the lesion matrix with the score vector and subject IDs.
// Scores[i] belongs to the subject of matrix row i.
type Cohort struct {
	Grid     Grid
	Subjects []core.SubjectID
	Matrix   *LesionMatrix
	Scores   []float64
}

// Validate checks the structural invariants before any computation.
func (c *Cohort) Validate() error {
	n := c.Matrix.Subjects
	if len(c.Scores) != n {
		return fmt.Errorf("score vector length %d does not match subject count %d", len(c.Scores), n)
	}
	if len(c.Subjects) != n {
		return fmt.Errorf("subject ID count %d does not match subject count %d", len(c.Subjects), n)
	}
	if c.Matrix.Voxels != c.Grid.NVoxels() {
		return fmt.Errorf("matrix voxel count %d does not match grid size %d", c.Matrix.Voxels, c.Grid.NVoxels())
	}
	return nil
}
