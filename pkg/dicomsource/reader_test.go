package dicomsource

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/dicomtag"
	"github.com/suyashkumar/dicom/element"

	"flow4d/pkg/flowerr"
)

func TestReadSliceMissingFile(t *testing.T) {
	_, err := NewReader().ReadSlice(filepath.Join(t.TempDir(), "absent.dcm"))
	require.Error(t, err)
	assert.Equal(t, flowerr.ParseFailed, flowerr.KindOf(err))
}

func TestParseSliceGarbage(t *testing.T) {
	_, err := ParseSlice([]byte("definitely not a dicom file"), "garbage")
	require.Error(t, err)
	assert.Equal(t, flowerr.ParseFailed, flowerr.KindOf(err))
}

func TestMissingTags(t *testing.T) {
	_, err := sliceFromElements(nil, "empty")
	assert.Equal(t, flowerr.MissingTag, flowerr.KindOf(err))

	elems := []*element.Element{
		{Tag: dicomtag.Rows, Value: []interface{}{uint16(2)}},
		{Tag: dicomtag.Columns, Value: []interface{}{uint16(3)}},
	}
	_, err = sliceFromElements(elems, "no pixels")
	assert.Equal(t, flowerr.MissingTag, flowerr.KindOf(err))
}

func TestHeaderRead(t *testing.T) {
	elems := []*element.Element{
		{Tag: dicomtag.Rows, Value: []interface{}{uint16(64)}},
		{Tag: dicomtag.Columns, Value: []interface{}{uint16(48)}},
		{Tag: dicomtag.PixelSpacing, Value: []interface{}{"1.25", "1.5"}},
		{Tag: tagSliceThickness, Value: []interface{}{"2.5 "}},
		{Tag: tagImagePositionPatient, Value: []interface{}{"-10", "20.5", "3"}},
		{Tag: tagImageOrientationPatient, Value: []interface{}{"1", "0", "0", "0", "1", "0"}},
		{Tag: tagTriggerTime, Value: []interface{}{"37.5"}},
		{Tag: dicomtag.PixelRepresentation, Value: []interface{}{uint16(1)}},
		{Tag: dicomtag.BitsStored, Value: []interface{}{uint16(12)}},
	}

	h := header{}
	for _, e := range elems {
		require.NoError(t, h.read(e))
	}

	assert.Equal(t, 64, h.rows)
	assert.Equal(t, 48, h.cols)
	assert.Equal(t, [2]float64{1.25, 1.5}, h.spacing)
	assert.Equal(t, 2.5, h.thickness)
	assert.Equal(t, [3]float64{-10, 20.5, 3}, h.position)
	assert.Equal(t, [6]float64{1, 0, 0, 0, 1, 0}, h.orientation)
	assert.Equal(t, 37.5, h.triggerTime)
	assert.True(t, h.signed)
	assert.Equal(t, 12, h.bitsStored)
}

func TestHeaderReadRejectsBadValues(t *testing.T) {
	h := header{}
	err := h.read(&element.Element{Tag: dicomtag.PixelSpacing, Value: []interface{}{"abc", "1"}})
	assert.Error(t, err)

	err = h.read(&element.Element{Tag: tagImagePositionPatient, Value: []interface{}{"1", "2"}})
	assert.Error(t, err)
}

func TestTwosComplement(t *testing.T) {
	tests := []struct {
		v, bits, want int
	}{
		{0, 12, 0},
		{2047, 12, 2047},
		{2048, 12, -2048},
		{4095, 12, -1},
		{65535, 16, -1},
		{100, 0, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, twosComplement(tt.v, tt.bits), "v=%d bits=%d", tt.v, tt.bits)
	}
}
