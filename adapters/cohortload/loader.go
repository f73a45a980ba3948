// Package cohortload builds the lesion matrix and score vector from the
// design document and the lesion directory.
package cohortload

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"govlsm/adapters/design"
	"govlsm/domain/cohort"
	"govlsm/domain/core"
	"govlsm/internal"
	"govlsm/internal/config"
	"govlsm/internal/errors"
	"govlsm/ports"
)

// Loader implements ports.CohortLoaderPort. It fails fast on the first
// missing file, grid mismatch, or malformed design row, before any
// statistics run.
type Loader struct {
	cfg    config.CohortConfig
	volume ports.VolumeReaderPort
	logger *internal.Logger
}

// NewLoader creates a cohort loader
func NewLoader(cfg config.CohortConfig, volume ports.VolumeReaderPort, logger *internal.Logger) *Loader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Loader{cfg: cfg, volume: volume, logger: logger}
}

var _ ports.CohortLoaderPort = (*Loader)(nil)

// Load reads the design document, the template geometry, and every
// subject's lesion volume, producing the immutable cohort of the run.
func (l *Loader) Load(ctx context.Context) (*cohort.Cohort, error) {
	table, err := design.NewReader(l.cfg.DesignDocument).Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read design document")
	}

	_, ref, err := l.volume.Read(l.cfg.Template)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read template volume")
	}
	grid := ref.Grid()

	n := len(table.Rows)
	l.logger.Info("[CohortLoader] loading %d subjects into %dx%dx%d grid",
		n, grid.Nx, grid.Ny, grid.Nz)

	coh := &cohort.Cohort{
		Grid:     grid,
		Subjects: make([]core.SubjectID, n),
		Matrix:   cohort.NewLesionMatrix(n, grid.NVoxels()),
		Scores:   make([]float64, n),
	}

	for i, row := range table.Rows {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		score, err := table.Score(i, l.cfg.Domain)
		if err != nil {
			return nil, err
		}
		coh.Scores[i] = score
		coh.Subjects[i] = core.SubjectID(row.Filename)

		path := l.lesionPath(row.Filename)
		data, lesionRef, err := l.volume.Read(path)
		if err != nil {
			return nil, errors.Wrapf(err, "subject %s: failed to read lesion volume", row.Filename)
		}
		if !lesionRef.Grid().Equal(grid) {
			return nil, errors.GridMismatch(row.Filename, lesionRef.Grid().Dims(), grid.Dims())
		}

		rowBuf := make([]uint8, grid.NVoxels())
		for v, val := range data {
			if val > 0 {
				rowBuf[v] = 1
			}
		}
		if err := coh.Matrix.SetRow(i, rowBuf); err != nil {
			return nil, errors.Wrapf(err, "subject %s", row.Filename)
		}

		if (i+1)%25 == 0 || i+1 == n {
			l.logger.Info("[CohortLoader] loaded %d/%d lesion volumes", i+1, n)
		}
	}

	if err := coh.Validate(); err != nil {
		return nil, errors.CohortInvalid(err.Error())
	}
	return coh, nil
}

// lesionPath resolves a subject's lesion file, optionally one level down in
// a per-cohort subfolder named by the filename prefix before the first
// underscore (e.g. "p007_lesion.nii.gz" -> dir/p007/p007_lesion.nii.gz).
func (l *Loader) lesionPath(filename string) string {
	if !l.cfg.DataInSubfolders {
		return filepath.Join(l.cfg.DirLesion, filename)
	}
	prefix := filename
	if idx := strings.Index(filename, "_"); idx > 0 {
		prefix = filename[:idx]
	}
	return filepath.Join(l.cfg.DirLesion, prefix, filename)
}

// Describe returns a short human-readable summary for logs and the report.
func Describe(c *cohort.Cohort) string {
	return fmt.Sprintf("%d subjects, %d voxels (%dx%dx%d)",
		c.Matrix.Subjects, c.Matrix.Voxels, c.Grid.Nx, c.Grid.Ny, c.Grid.Nz)
}
