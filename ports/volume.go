package ports

import (
	"govlsm/domain/cohort"
)

// VolumeReaderPort reads a registered 3D volume and its geometry handle.
type VolumeReaderPort interface {
	// Read returns the voxel intensities in flat x-fastest order together
	// with the reference handle carrying the file's geometry metadata.
	Read(path string) ([]float64, cohort.Reference, error)
}

// VolumeWriterPort persists a full-volume float array, stamping the
// reference geometry on the output verbatim.
type VolumeWriterPort interface {
	Write(path string, data []float64, ref cohort.Reference) error
}
