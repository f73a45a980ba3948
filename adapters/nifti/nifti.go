// Package nifti reads and writes NIfTI-1 volumes (.nii, .nii.gz).
//
// Layout follows the official nifti1 header definition,
// https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
// Only single-file ("n+1") datasets are supported.
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"govlsm/domain/cohort"
	"govlsm/internal/errors"
	"govlsm/ports"
)

// Header defines the 348-byte NIfTI-1 header.
//
// Type translation from the C header: int -> int32, float -> float32,
// short -> int16, char -> int8.
type Header struct {
	SizeOfHdr          int32    // Must be 348
	UnusedDataType     [10]int8 // Unused
	UnusedDbName       [18]int8 // Unused
	UnusedExtents      int32    // Unused
	UnusedSessionError int16    // Unused
	UnusedRegular      int8     // Unused
	DimInfo            int8     // MRI slice ordering

	Dim           [8]int16   // Data array dimensions
	IntentP1      float32    // 1st intent parameter
	IntentP2      float32    // 2nd intent parameter
	IntentP3      float32    // 3rd intent parameter
	IntentCode    int16      // NIFTI_INTENT_* code
	DataType      int16      // Defines data type
	BitPix        int16      // Number bits/voxel
	SliceStart    int16      // First slice index
	PixDim        [8]float32 // Grid spacing
	VoxOffset     float32    // Offset into .nii file
	SclSlope      float32    // Data scaling: slope
	SclInter      float32    // Data scaling: offset
	SliceEnd      int16      // Last slice index
	SliceCode     int8       // Slice timing order
	XYZTUnits     int8       // Units of pixdim[1..4]
	CalMax        float32    // Max display intensity
	CalMin        float32    // Min display intensity
	SliceDuration float32    // Time for 1 slice
	TOffset       float32    // Time axis shift
	UnusedGlmax   int32      // Unused
	UnusedGlmin   int32      // Unused

	Descrip [80]int8 // Any text you like
	AuxFile [24]int8 // Auxiliary filename

	QFormCode int16 // NIFTI_XFORM_* code
	SFormCode int16 // NIFTI_XFORM_* code

	QuaternB float32 // Quaternion b param
	QuaternC float32 // Quaternion c param
	QuaternD float32 // Quaternion d param
	QOffsetX float32 // Quaternion x shift
	QOffsetY float32 // Quaternion y shift
	QOffsetZ float32 // Quaternion z shift

	SRowX [4]float32 // 1st row affine transform
	SRowY [4]float32 // 2nd row affine transform
	SRowZ [4]float32 // 3rd row affine transform

	IntentName [16]int8 // 'name' or meaning of data

	Magic [4]int8 // Must be "n+1\0"
}

const (
	headerSize    = 348
	dataOffset    = 352 // header + 4-byte extender
	dtUint8       = 2
	dtInt16       = 4
	dtInt32       = 8
	dtFloat32     = 16
	dtFloat64     = 64
	dtUint16      = 512
	magicOneFile0 = 110 // 'n'
	magicOneFile1 = 43  // '+'
	magicOneFile2 = 49  // '1'
)

// Reference carries a volume's header and byte order so outputs can be
// stamped with the template geometry verbatim.
type Reference struct {
	hdr   Header
	order binary.ByteOrder
}

// Grid returns the spatial dimensions of the referenced volume.
func (r *Reference) Grid() cohort.Grid {
	return cohort.Grid{Nx: int(r.hdr.Dim[1]), Ny: int(r.hdr.Dim[2]), Nz: int(r.hdr.Dim[3])}
}

// Header returns a copy of the underlying NIfTI header.
func (r *Reference) Header() Header {
	return r.hdr
}

// Codec implements volume reading and writing in NIfTI-1 format.
type Codec struct{}

// NewCodec creates a NIfTI codec
func NewCodec() *Codec {
	return &Codec{}
}

var (
	_ ports.VolumeReaderPort = (*Codec)(nil)
	_ ports.VolumeWriterPort = (*Codec)(nil)
)

// Read loads a volume and returns its intensities as float64 in flat
// x-fastest order, along with the geometry reference. Data scaling
// (scl_slope/scl_inter) is applied on read.
func (c *Codec) Read(path string) ([]float64, cohort.Reference, error) {
	raw, err := readMaybeGzip(path)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) < headerSize {
		return nil, nil, errors.IOError(fmt.Sprintf("%s: file shorter than NIfTI-1 header", path), nil)
	}

	hdr, order, err := parseHeader(raw)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s: invalid NIfTI-1 header", path)
	}

	nx, ny, nz := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, nil, errors.IOError(fmt.Sprintf("%s: non-positive spatial dimensions %dx%dx%d", path, nx, ny, nz), nil)
	}
	nvox := nx * ny * nz

	offset := int(hdr.VoxOffset)
	if offset < headerSize {
		offset = dataOffset
	}

	bytesPerVoxel := int(hdr.BitPix) / 8
	need := offset + nvox*bytesPerVoxel
	if len(raw) < need {
		return nil, nil, errors.IOError(fmt.Sprintf("%s: truncated voxel data (%d bytes, need %d)", path, len(raw), need), nil)
	}

	data, err := decodeVoxels(raw[offset:need], int(hdr.DataType), nvox, order)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s: cannot decode voxel data", path)
	}

	// Apply scl slope/intercept per the standard: slope 0 means unscaled.
	slope := float64(hdr.SclSlope)
	inter := float64(hdr.SclInter)
	if slope != 0 && !(slope == 1 && inter == 0) {
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	return data, &Reference{hdr: hdr, order: order}, nil
}

// Write persists a full-volume float array as float32 NIfTI-1, carrying the
// reference header's geometry (dimensions, spacing, orientation codes,
// affine rows) unchanged.
func (c *Codec) Write(path string, data []float64, ref cohort.Reference) error {
	nref, ok := ref.(*Reference)
	if !ok {
		return errors.InternalError("volume writer requires a NIfTI reference handle")
	}

	grid := nref.Grid()
	if len(data) != grid.NVoxels() {
		return errors.InternalError(fmt.Sprintf(
			"volume has %d voxels but reference grid expects %d", len(data), grid.NVoxels()))
	}

	hdr := nref.hdr
	hdr.SizeOfHdr = headerSize
	hdr.Dim[0] = 3
	for i := 4; i < 8; i++ {
		hdr.Dim[i] = 1
	}
	hdr.DataType = dtFloat32
	hdr.BitPix = 32
	hdr.VoxOffset = dataOffset
	hdr.SclSlope = 1
	hdr.SclInter = 0
	hdr.CalMin = 0
	hdr.CalMax = 0
	hdr.Magic = [4]int8{magicOneFile0, magicOneFile1, magicOneFile2, 0}

	var buf bytes.Buffer
	order := nref.order
	if order == nil {
		order = binary.LittleEndian
	}
	if err := binary.Write(&buf, order, &hdr); err != nil {
		return errors.IOError("failed to encode NIfTI header", err)
	}
	// 4-byte extender: no extensions.
	buf.Write([]byte{0, 0, 0, 0})

	for _, v := range data {
		if err := binary.Write(&buf, order, float32(v)); err != nil {
			return errors.IOError("failed to encode voxel data", err)
		}
	}

	return writeMaybeGzip(path, buf.Bytes())
}

// parseHeader decodes the header, inferring byte order from dim[0] the way
// the reference implementation does.
func parseHeader(raw []byte) (Header, binary.ByteOrder, error) {
	var hdr Header
	var order binary.ByteOrder = binary.LittleEndian

	if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
		return hdr, order, err
	}
	if hdr.Dim[0] <= 0 || hdr.Dim[0] > 7 {
		order = binary.BigEndian
		if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
			return hdr, order, err
		}
		if hdr.Dim[0] <= 0 || hdr.Dim[0] > 7 {
			return hdr, order, fmt.Errorf("cannot infer byte order: dim[0] not in [1, 7]")
		}
	}

	if hdr.SizeOfHdr != headerSize {
		return hdr, order, fmt.Errorf("header size %d, expected %d", hdr.SizeOfHdr, headerSize)
	}
	if hdr.Magic != [4]int8{magicOneFile0, magicOneFile1, magicOneFile2, 0} {
		return hdr, order, fmt.Errorf("unsupported file magic; only single-file n+1 datasets are supported")
	}

	return hdr, order, nil
}

func decodeVoxels(raw []byte, dataType, nvox int, order binary.ByteOrder) ([]float64, error) {
	data := make([]float64, nvox)
	switch dataType {
	case dtUint8:
		for i := 0; i < nvox; i++ {
			data[i] = float64(raw[i])
		}
	case dtInt16:
		for i := 0; i < nvox; i++ {
			data[i] = float64(int16(order.Uint16(raw[i*2:])))
		}
	case dtUint16:
		for i := 0; i < nvox; i++ {
			data[i] = float64(order.Uint16(raw[i*2:]))
		}
	case dtInt32:
		for i := 0; i < nvox; i++ {
			data[i] = float64(int32(order.Uint32(raw[i*4:])))
		}
	case dtFloat32:
		for i := 0; i < nvox; i++ {
			data[i] = float64(math.Float32frombits(order.Uint32(raw[i*4:])))
		}
	case dtFloat64:
		for i := 0; i < nvox; i++ {
			data[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
		}
	default:
		return nil, fmt.Errorf("unsupported NIfTI datatype code %d", dataType)
	}
	return data, nil
}

func readMaybeGzip(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError(fmt.Sprintf("cannot open volume %s", path), err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.IOError(fmt.Sprintf("cannot decompress %s", path), err)
		}
		defer gz.Close()
		r = gz
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.IOError(fmt.Sprintf("cannot read volume %s", path), err)
	}
	return raw, nil
}

func writeMaybeGzip(path string, raw []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.IOError(fmt.Sprintf("cannot create volume %s", path), err)
	}
	defer f.Close()

	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		if _, err := gz.Write(raw); err != nil {
			gz.Close()
			return errors.IOError(fmt.Sprintf("cannot compress volume %s", path), err)
		}
		return gz.Close()
	}

	if _, err := f.Write(raw); err != nil {
		return errors.IOError(fmt.Sprintf("cannot write volume %s", path), err)
	}
	return nil
}

// NewReference builds a minimal reference for a bare grid, used by tests
// and synthetic pipelines that have no template file.
func NewReference(grid cohort.Grid) *Reference {
	hdr := Header{
		SizeOfHdr: headerSize,
		DataType:  dtFloat32,
		BitPix:    32,
		VoxOffset: dataOffset,
		SclSlope:  1,
		Magic:     [4]int8{magicOneFile0, magicOneFile1, magicOneFile2, 0},
	}
	hdr.Dim[0] = 3
	hdr.Dim[1] = int16(grid.Nx)
	hdr.Dim[2] = int16(grid.Ny)
	hdr.Dim[3] = int16(grid.Nz)
	for i := 4; i < 8; i++ {
		hdr.Dim[i] = 1
	}
	hdr.PixDim[1] = 1
	hdr.PixDim[2] = 1
	hdr.PixDim[3] = 1
	return &Reference{hdr: hdr, order: binary.LittleEndian}
}
