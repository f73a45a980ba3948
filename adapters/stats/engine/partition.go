package engine

import (
	"govlsm/domain/cohort"
)

// Partition splits the subject scores at one voxel into the no-lesion group
// (lesion value == 0) and the lesion group (value > 0). The split is a
// function of the lesion matrix column alone; every subject lands in
// exactly one group. Either group may come back empty.
//
// colBuf must have length matrix.Subjects and is reused across calls to
// avoid per-voxel allocation; noLesion and lesion are appended into and
// should be passed with zero length and full capacity.
func Partition(matrix *cohort.LesionMatrix, voxel int, scores []float64, colBuf []uint8, noLesion, lesion []float64) ([]float64, []float64) {
	matrix.Column(voxel, colBuf)
	for s, v := range colBuf {
		if v == 0 {
			noLesion = append(noLesion, scores[s])
		} else {
			lesion = append(lesion, scores[s])
		}
	}
	return noLesion, lesion
}
