package nifti

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"govlsm/domain/cohort"
)

func TestWriteReadRoundTrip(t *testing.T) {
	grid := cohort.Grid{Nx: 3, Ny: 2, Nz: 2}
	data := make([]float64, grid.NVoxels())
	for i := range data {
		data[i] = float64(i) - 4.5
	}

	codec := NewCodec()
	for _, name := range []string{"vol.nii", "vol.nii.gz"} {
		path := filepath.Join(t.TempDir(), name)
		if err := codec.Write(path, data, NewReference(grid)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}

		got, ref, err := codec.Read(path)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !ref.Grid().Equal(grid) {
			t.Fatalf("%s: grid = %v, want %v", name, ref.Grid(), grid)
		}
		for i := range data {
			if got[i] != data[i] {
				t.Fatalf("%s: voxel %d = %v, want %v", name, i, got[i], data[i])
			}
		}
	}
}

func TestWritePreservesTemplateGeometry(t *testing.T) {
	grid := cohort.Grid{Nx: 2, Ny: 2, Nz: 1}
	ref := NewReference(grid)
	ref.hdr.PixDim[1] = 2.0
	ref.hdr.PixDim[2] = 2.0
	ref.hdr.PixDim[3] = 3.5
	ref.hdr.SFormCode = 1
	ref.hdr.SRowX = [4]float32{2, 0, 0, -90}

	codec := NewCodec()
	path := filepath.Join(t.TempDir(), "out.nii")
	if err := codec.Write(path, make([]float64, grid.NVoxels()), ref); err != nil {
		t.Fatal(err)
	}

	_, outRef, err := codec.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	hdr := outRef.(*Reference).Header()
	if hdr.PixDim[3] != 3.5 {
		t.Errorf("pixdim[3] = %v, want 3.5", hdr.PixDim[3])
	}
	if hdr.SFormCode != 1 || hdr.SRowX != [4]float32{2, 0, 0, -90} {
		t.Errorf("sform not carried through: code=%d row=%v", hdr.SFormCode, hdr.SRowX)
	}
	if hdr.DataType != dtFloat32 || hdr.BitPix != 32 {
		t.Errorf("output datatype = %d/%d bits, want float32", hdr.DataType, hdr.BitPix)
	}
}

func TestWriteRejectsWrongVoxelCount(t *testing.T) {
	grid := cohort.Grid{Nx: 2, Ny: 2, Nz: 2}
	err := NewCodec().Write(filepath.Join(t.TempDir(), "bad.nii"), make([]float64, 3), NewReference(grid))
	if err == nil {
		t.Fatal("expected an error for a data/grid size mismatch")
	}
}

// writeRawVolume builds a minimal uint8 single-file dataset by hand so the
// reader's datatype decoding and intensity scaling can be checked against
// bytes a third-party tool would produce.
func writeRawVolume(t *testing.T, path string, voxels []uint8, slope, inter float32) {
	t.Helper()

	hdr := Header{
		SizeOfHdr: headerSize,
		DataType:  dtUint8,
		BitPix:    8,
		VoxOffset: dataOffset,
		SclSlope:  slope,
		SclInter:  inter,
		Magic:     [4]int8{magicOneFile0, magicOneFile1, magicOneFile2, 0},
	}
	hdr.Dim[0] = 3
	hdr.Dim[1] = int16(len(voxels))
	hdr.Dim[2] = 1
	hdr.Dim[3] = 1

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		t.Fatal(err)
	}
	buf.Write([]byte{0, 0, 0, 0})
	buf.Write(voxels)

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestReadAppliesIntensityScaling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scaled.nii")
	writeRawVolume(t, path, []uint8{0, 1, 2, 3}, 2.0, 1.0)

	data, _, err := NewCodec().Read(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 3, 5, 7}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("data = %v, want %v", data, want)
		}
	}
}

func TestReadZeroSlopeMeansUnscaled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unscaled.nii")
	writeRawVolume(t, path, []uint8{5, 10}, 0, 99)

	data, _, err := NewCodec().Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 5 || data[1] != 10 {
		t.Fatalf("data = %v, want raw values when slope is 0", data)
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.nii")
	writeRawVolume(t, path, []uint8{1}, 1, 0)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[344] = 'x' // clobber the magic field
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := NewCodec().Read(path); err == nil {
		t.Fatal("expected an error for an unrecognized magic string")
	}
}
