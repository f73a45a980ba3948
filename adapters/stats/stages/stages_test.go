package stages

import (
	"math"
	"testing"

	"govlsm/domain/stats"
	"govlsm/internal/testkit"
)

func TestPrevalenceStage(t *testing.T) {
	coh := testkit.ThresholdScenario()
	stage := NewPrevalenceStage()

	counts, tested := stage.Execute(coh.Matrix, 5)

	wantCounts := []int{4, 0, 0, 5, 0, 2, 0, 0}
	for v, want := range wantCounts {
		if counts[v] != want {
			t.Errorf("voxel %d: count = %d, want %d", v, counts[v], want)
		}
	}

	// Exactly at the threshold counts as tested.
	if got := tested.Indices; len(got) != 1 || got[0] != 3 {
		t.Fatalf("tested indices = %v, want [3]", got)
	}
	for v, m := range tested.Mask {
		if m != (v == 3) {
			t.Errorf("mask[%d] = %v", v, m)
		}
	}
}

func TestPrevalenceStageThresholdAboveCohort(t *testing.T) {
	coh := testkit.ThresholdScenario()
	_, tested := NewPrevalenceStage().Execute(coh.Matrix, 11)
	if tested.Len() != 0 {
		t.Fatalf("tested = %v, want empty set for unreachable threshold", tested.Indices)
	}
}

func TestFDRStage(t *testing.T) {
	stage := NewFDRStage()

	raw := []float64{0.005, 0.04, 0.03, 0.01}
	adjusted := stage.Execute(raw)

	// Sorted: 0.005, 0.01, 0.03, 0.04 with m=4 gives q = 0.02, 0.02, 0.04, 0.04.
	want := []float64{0.02, 0.04, 0.04, 0.02}
	for i := range raw {
		if math.Abs(adjusted[i]-want[i]) > 1e-12 {
			t.Errorf("adjusted[%d] = %v, want %v", i, adjusted[i], want[i])
		}
		if adjusted[i] < raw[i] {
			t.Errorf("adjusted[%d] = %v below raw %v", i, adjusted[i], raw[i])
		}
	}
}

func TestFDRStageClampsToOne(t *testing.T) {
	adjusted := NewFDRStage().Execute([]float64{0.9, 0.95, 0.99})
	for i, q := range adjusted {
		if q > 1 {
			t.Errorf("adjusted[%d] = %v exceeds 1", i, q)
		}
	}
}

func TestFDRStageKeepsNaN(t *testing.T) {
	raw := []float64{0.01, math.NaN(), 0.02}
	adjusted := NewFDRStage().Execute(raw)

	if !math.IsNaN(adjusted[1]) {
		t.Fatalf("adjusted[1] = %v, want NaN preserved", adjusted[1])
	}
	// m counts only the two defined p-values: q = 0.01*2/1 = 0.02 and
	// 0.02*2/2 = 0.02.
	if math.Abs(adjusted[0]-0.02) > 1e-12 || math.Abs(adjusted[2]-0.02) > 1e-12 {
		t.Fatalf("adjusted = %v, want [0.02 NaN 0.02]", adjusted)
	}
}

func TestFDRStageMonotone(t *testing.T) {
	raw := []float64{0.001, 0.008, 0.039, 0.041, 0.042, 0.06, 0.074, 0.205}
	adjusted := NewFDRStage().Execute(raw)

	// Raw input happens to be sorted, so adjusted must be non-decreasing.
	for i := 1; i < len(adjusted); i++ {
		if adjusted[i] < adjusted[i-1] {
			t.Fatalf("adjusted not monotone at %d: %v", i, adjusted)
		}
	}
}

func TestAssembleScatter(t *testing.T) {
	stage := NewAssembleStage()
	tested := &stats.TestedVoxels{Indices: []int{1, 4}, Mask: []bool{false, true, false, false, true, false}}

	vol := stage.Scatter([]float64{7.5, -2.0}, tested, 6)
	want := []float64{0, 7.5, 0, 0, -2.0, 0}
	for i := range want {
		if vol[i] != want[i] {
			t.Fatalf("volume = %v, want %v", vol, want)
		}
	}
}

func TestAssembleScatterComplement(t *testing.T) {
	stage := NewAssembleStage()
	tested := &stats.TestedVoxels{Indices: []int{0, 2}, Mask: []bool{true, false, true}}

	vol := stage.ScatterComplement([]float64{0.25, math.NaN()}, tested, 3)
	if vol[0] != 0.75 {
		t.Errorf("vol[0] = %v, want 0.75", vol[0])
	}
	if vol[1] != Background {
		t.Errorf("vol[1] = %v, want background", vol[1])
	}
	if !math.IsNaN(vol[2]) {
		t.Errorf("vol[2] = %v, want NaN carried through", vol[2])
	}
}

func TestAssemblePrevalenceVolume(t *testing.T) {
	vol := NewAssembleStage().PrevalenceVolume([]int{0, 3, 10})
	want := []float64{0, 3, 10}
	for i := range want {
		if vol[i] != want[i] {
			t.Fatalf("volume = %v, want %v", vol, want)
		}
	}
}
