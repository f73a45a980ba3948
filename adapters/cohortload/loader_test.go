package cohortload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"govlsm/domain/cohort"
	"govlsm/internal/config"
	"govlsm/internal/errors"
	"govlsm/internal/testkit"
)

func writeDesign(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "design.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	designPath := writeDesign(t, dir, "filename,score\np001_lesion.nii,10\np002_lesion.nii,20\n")

	grid := cohort.Grid{Nx: 4, Ny: 1, Nz: 1}
	store := testkit.NewMemoryVolumeStore()
	store.Put("template.nii", grid, make([]float64, 4))
	// Binarization: any positive intensity counts as lesioned.
	store.Put(filepath.Join("lesions", "p001_lesion.nii"), grid, []float64{0, 2.5, 1, 0})
	store.Put(filepath.Join("lesions", "p002_lesion.nii"), grid, []float64{1, 0, 0, 0})

	cfg := config.CohortConfig{
		DirLesion:      "lesions",
		DesignDocument: designPath,
		Template:       "template.nii",
		Domain:         0,
	}

	coh, err := NewLoader(cfg, store, nil).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if coh.Matrix.Subjects != 2 || coh.Matrix.Voxels != 4 {
		t.Fatalf("matrix is %dx%d, want 2x4", coh.Matrix.Subjects, coh.Matrix.Voxels)
	}
	if coh.Scores[0] != 10 || coh.Scores[1] != 20 {
		t.Fatalf("scores = %v, want [10 20]", coh.Scores)
	}

	wantRows := [][]uint8{{0, 1, 1, 0}, {1, 0, 0, 0}}
	for s, want := range wantRows {
		for v, w := range want {
			if got := coh.Matrix.At(s, v); got != w {
				t.Errorf("matrix[%d][%d] = %d, want %d", s, v, got, w)
			}
		}
	}
	if string(coh.Subjects[0]) != "p001_lesion.nii" {
		t.Errorf("subject 0 = %s", coh.Subjects[0])
	}
}

func TestLoadGridMismatch(t *testing.T) {
	dir := t.TempDir()
	designPath := writeDesign(t, dir, "filename,score\np001_lesion.nii,10\n")

	store := testkit.NewMemoryVolumeStore()
	store.Put("template.nii", cohort.Grid{Nx: 4, Ny: 1, Nz: 1}, make([]float64, 4))
	store.Put(filepath.Join("lesions", "p001_lesion.nii"), cohort.Grid{Nx: 5, Ny: 1, Nz: 1}, make([]float64, 5))

	cfg := config.CohortConfig{
		DirLesion:      "lesions",
		DesignDocument: designPath,
		Template:       "template.nii",
	}

	_, err := NewLoader(cfg, store, nil).Load(context.Background())
	if err == nil {
		t.Fatal("expected a grid mismatch error")
	}
	if code := errors.GetCode(err); code != errors.CodeGridMismatch {
		t.Fatalf("error code = %s, want %s", code, errors.CodeGridMismatch)
	}
}

func TestLoadMissingLesionVolume(t *testing.T) {
	dir := t.TempDir()
	designPath := writeDesign(t, dir, "filename,score\nmissing.nii,10\n")

	store := testkit.NewMemoryVolumeStore()
	store.Put("template.nii", cohort.Grid{Nx: 2, Ny: 1, Nz: 1}, make([]float64, 2))

	cfg := config.CohortConfig{
		DirLesion:      "lesions",
		DesignDocument: designPath,
		Template:       "template.nii",
	}

	if _, err := NewLoader(cfg, store, nil).Load(context.Background()); err == nil {
		t.Fatal("expected an error for a missing lesion volume")
	}
}

func TestLesionPathSubfolders(t *testing.T) {
	l := &Loader{cfg: config.CohortConfig{DirLesion: "base", DataInSubfolders: true}}
	got := l.lesionPath("p007_lesion.nii.gz")
	want := filepath.Join("base", "p007", "p007_lesion.nii.gz")
	if got != want {
		t.Fatalf("path = %s, want %s", got, want)
	}

	flat := &Loader{cfg: config.CohortConfig{DirLesion: "base"}}
	if got := flat.lesionPath("p007_lesion.nii.gz"); got != filepath.Join("base", "p007_lesion.nii.gz") {
		t.Fatalf("flat path = %s", got)
	}
}
