// Package dicomsource reads single DICOM slices for the assembler.
package dicomsource

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/dicomtag"
	"github.com/suyashkumar/dicom/element"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// Tags without a stable named constant across dicom releases
var (
	tagTriggerTime             = dicomtag.Tag{Group: 0x0018, Element: 0x1060}
	tagSliceThickness          = dicomtag.Tag{Group: 0x0018, Element: 0x0050}
	tagImagePositionPatient    = dicomtag.Tag{Group: 0x0020, Element: 0x0032}
	tagImageOrientationPatient = dicomtag.Tag{Group: 0x0020, Element: 0x0037}
)

// Reader implements assembly.SliceReader for DICOM files on disk.
type Reader struct{}

// NewReader creates a DICOM slice reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadSlice parses the DICOM file at path.
func (r *Reader) ReadSlice(path string) (*models.Slice, error) {
	const op = "dicomsource.ReadSlice"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.ParseFailed, op, pfx.Err(err), "reading %s", path)
	}
	return ParseSlice(data, path)
}

// ParseSlice decodes one DICOM slice held in memory. ref is recorded on the
// slice and used in error messages.
func ParseSlice(data []byte, ref string) (*models.Slice, error) {
	const op = "dicomsource.ParseSlice"

	ds, err := safelyParse(data, dicom.ParseOptions{DropPixelData: false})
	if ds == nil || err != nil {
		return nil, flowerr.Wrap(flowerr.ParseFailed, op, err, "parsing %s", ref)
	}

	return sliceFromElements(ds.Elements, ref)
}

// safelyParse turns panics raised inside the dicom parser into errors.
func safelyParse(data []byte, opts dicom.ParseOptions) (ds *element.DataSet, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	p, err := dicom.NewParserFromBytes(data, nil)
	if err != nil {
		return nil, err
	}
	return p.Parse(opts)
}

// header holds the metadata the assembler needs.
type header struct {
	rows, cols   int
	bitsStored   int
	signed       bool
	spacing      [2]float64
	thickness    float64
	position     [3]float64
	orientation  [6]float64
	triggerTime  float64
	pixels       []int
	encapsulated bool
	hasPixels    bool
}

func sliceFromElements(elems []*element.Element, ref string) (*models.Slice, error) {
	const op = "dicomsource.sliceFromElements"

	h := header{}
	for _, elem := range elems {
		if elem == nil || len(elem.Value) == 0 {
			continue
		}
		if err := h.read(elem); err != nil {
			return nil, flowerr.Wrap(flowerr.ParseFailed, op, err, "%s: tag %v", ref, elem.Tag)
		}
	}

	if h.rows <= 0 || h.cols <= 0 {
		return nil, flowerr.New(flowerr.MissingTag, op, "%s: rows/columns absent", ref)
	}
	if h.encapsulated {
		return nil, flowerr.New(flowerr.ParseFailed, op, "%s: encapsulated pixel data is not supported", ref)
	}
	if !h.hasPixels {
		return nil, flowerr.New(flowerr.MissingTag, op, "%s: pixel data absent", ref)
	}
	if len(h.pixels) != h.rows*h.cols {
		return nil, flowerr.New(flowerr.InconsistentData, op,
			"%s: %d pixels for %d rows and %d columns", ref, len(h.pixels), h.rows, h.cols)
	}

	pixels := make([]float64, len(h.pixels))
	for i, v := range h.pixels {
		if h.signed {
			v = twosComplement(v, h.bitsStored)
		}
		pixels[i] = float64(v)
	}

	return &models.Slice{
		Pixels: pixels,
		Width:  h.cols,
		Height: h.rows,
		Ref:    ref,
		// DICOM lists row spacing (between rows) first
		PixelSpacing: [2]float64{h.spacing[1], h.spacing[0]},
		Thickness:    h.thickness,
		Position:     h.position,
		Orientation:  h.orientation,
		TriggerTime:  h.triggerTime,
	}, nil
}

func (h *header) read(elem *element.Element) error {
	var err error
	switch {
	case elem.Tag == dicomtag.Rows:
		h.rows, err = intValue(elem.Value[0])
	case elem.Tag == dicomtag.Columns:
		h.cols, err = intValue(elem.Value[0])
	case elem.Tag == dicomtag.BitsStored:
		h.bitsStored, err = intValue(elem.Value[0])
	case elem.Tag == dicomtag.PixelRepresentation:
		var rep int
		rep, err = intValue(elem.Value[0])
		h.signed = rep == 1
	case elem.Tag == dicomtag.PixelSpacing:
		err = floatValues(elem.Value, h.spacing[:])
	case elem.Tag.Compare(tagSliceThickness) == 0:
		h.thickness, err = floatValue(elem.Value[0])
	case elem.Tag.Compare(tagImagePositionPatient) == 0:
		err = floatValues(elem.Value, h.position[:])
	case elem.Tag.Compare(tagImageOrientationPatient) == 0:
		err = floatValues(elem.Value, h.orientation[:])
	case elem.Tag.Compare(tagTriggerTime) == 0:
		h.triggerTime, err = floatValue(elem.Value[0])
	case elem.Tag == dicomtag.PixelData:
		info, ok := elem.Value[0].(element.PixelDataInfo)
		if !ok {
			return fmt.Errorf("unexpected pixel data type %T", elem.Value[0])
		}
		if len(info.Frames) == 0 {
			return nil
		}
		h.hasPixels = true
		// only the first frame of a multi-frame object is used
		f := info.Frames[0]
		if f.IsEncapsulated() {
			h.encapsulated = true
			return nil
		}
		for j := 0; j < len(f.NativeData.Data); j++ {
			h.pixels = append(h.pixels, f.NativeData.Data[j][0])
		}
	}
	return err
}

// twosComplement reinterprets an unsigned stored value with the given bit
// depth as signed.
func twosComplement(v, bits int) int {
	if bits <= 0 || bits >= 32 {
		return v
	}
	if v >= 1<<(bits-1) {
		return v - 1<<bits
	}
	return v
}

func intValue(v interface{}) (int, error) {
	switch x := v.(type) {
	case uint16:
		return int(x), nil
	case uint32:
		return int(x), nil
	case int16:
		return int(x), nil
	case int32:
		return int(x), nil
	case int:
		return x, nil
	case string:
		return strconv.Atoi(strings.TrimSpace(x))
	default:
		return 0, fmt.Errorf("unexpected integer type %T", v)
	}
}

func floatValue(v interface{}) (float64, error) {
	switch x := v.(type) {
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("unexpected decimal type %T", v)
	}
}

// floatValues fills out from a multi-valued decimal string element.
func floatValues(values []interface{}, out []float64) error {
	if len(values) < len(out) {
		return fmt.Errorf("expected %d values, got %d", len(out), len(values))
	}
	for i := range out {
		f, err := floatValue(values[i])
		if err != nil {
			return err
		}
		out[i] = f
	}
	return nil
}
