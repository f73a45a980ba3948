// Package testkit provides synthetic cohorts and in-memory collaborators
// for exercising the pipeline without image files on disk.
package testkit

import (
	"fmt"
	"sync"

	"govlsm/domain/cohort"
	"govlsm/domain/core"
)

// SyntheticCohort builds a cohort from an explicit lesion matrix given as
// one row per subject. Scores and rows must have equal length; the grid is
// a flat 1xNx1 arrangement of the row width unless a grid is supplied.
func SyntheticCohort(rows [][]uint8, scores []float64) *cohort.Cohort {
	n := len(rows)
	voxels := len(rows[0])
	grid := cohort.Grid{Nx: voxels, Ny: 1, Nz: 1}

	coh := &cohort.Cohort{
		Grid:     grid,
		Subjects: make([]core.SubjectID, n),
		Matrix:   cohort.NewLesionMatrix(n, voxels),
		Scores:   scores,
	}
	for s, row := range rows {
		coh.Subjects[s] = core.SubjectID(fmt.Sprintf("subject_%02d", s+1))
		if err := coh.Matrix.SetRow(s, row); err != nil {
			panic(err)
		}
	}
	return coh
}

// ThresholdScenario is the canonical hand-checkable cohort: 10 subjects,
// 8 voxels, scores 1..10. Voxel 3 is lesioned in exactly subjects 6-10
// (five subjects, right at the default threshold); every other voxel is
// lesioned in fewer than five subjects.
func ThresholdScenario() *cohort.Cohort {
	rows := make([][]uint8, 10)
	for s := 0; s < 10; s++ {
		row := make([]uint8, 8)
		// Voxel 3: subjects 6..10 (indices 5..9).
		if s >= 5 {
			row[3] = 1
		}
		// Voxel 0: 4 subjects; voxel 5: 2 subjects; others empty.
		if s < 4 {
			row[0] = 1
		}
		if s == 0 || s == 1 {
			row[5] = 1
		}
		rows[s] = row
	}

	scores := make([]float64, 10)
	for i := range scores {
		scores[i] = float64(i + 1)
	}
	return SyntheticCohort(rows, scores)
}

// MemoryVolumeStore implements the volume reader and writer ports over an
// in-memory map keyed by path.
type MemoryVolumeStore struct {
	mu      sync.Mutex
	grids   map[string]cohort.Grid
	volumes map[string][]float64
}

// NewMemoryVolumeStore creates an empty in-memory volume store.
func NewMemoryVolumeStore() *MemoryVolumeStore {
	return &MemoryVolumeStore{
		grids:   make(map[string]cohort.Grid),
		volumes: make(map[string][]float64),
	}
}

type memReference struct {
	grid cohort.Grid
}

func (r *memReference) Grid() cohort.Grid { return r.grid }

// Put stores a volume under a path.
func (s *MemoryVolumeStore) Put(path string, grid cohort.Grid, data []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grids[path] = grid
	s.volumes[path] = data
}

// Read returns a stored volume.
func (s *MemoryVolumeStore) Read(path string) ([]float64, cohort.Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.volumes[path]
	if !ok {
		return nil, nil, fmt.Errorf("volume not found: %s", path)
	}
	return data, &memReference{grid: s.grids[path]}, nil
}

// Write records a written volume for later inspection.
func (s *MemoryVolumeStore) Write(path string, data []float64, ref cohort.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grids[path] = ref.Grid()
	s.volumes[path] = data
	return nil
}

// Written returns a volume previously passed to Write.
func (s *MemoryVolumeStore) Written(path string) ([]float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.volumes[path]
	return data, ok
}
