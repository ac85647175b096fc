package assembly

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flow4d/internal/logtest"
	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

func TestMain(m *testing.M) {
	os.Exit(logtest.Run(m))
}

// fakeReader serves slices from memory
type fakeReader struct {
	slices map[string]*models.Slice
	fail   map[string]error
}

func (r *fakeReader) ReadSlice(ref string) (*models.Slice, error) {
	if err, ok := r.fail[ref]; ok {
		return nil, err
	}
	s, ok := r.slices[ref]
	if !ok {
		return nil, fmt.Errorf("no such slice %s", ref)
	}
	return s, nil
}

// newStack registers nz slices of w×h pixels filled by fn and returns refs
func (r *fakeReader) newStack(prefix string, w, h, nz int, fn func(i, j, k int) float64) []string {
	refs := make([]string, nz)
	for k := 0; k < nz; k++ {
		pixels := make([]float64, w*h)
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				pixels[i+w*j] = fn(i, j, k)
			}
		}
		ref := fmt.Sprintf("%s/%d", prefix, k)
		r.slices[ref] = &models.Slice{
			Pixels:       pixels,
			Width:        w,
			Height:       h,
			Ref:          ref,
			PixelSpacing: [2]float64{1.5, 1.5},
			Thickness:    2.5,
			Position:     [3]float64{0, 0, 2 * float64(k)},
			Orientation:  [6]float64{1, 0, 0, 0, 1, 0},
			TriggerTime:  40,
		}
		refs[k] = ref
	}
	return refs
}

func newFakeReader() *fakeReader {
	return &fakeReader{slices: map[string]*models.Slice{}, fail: map[string]error{}}
}

func constant(v float64) func(i, j, k int) float64 {
	return func(i, j, k int) float64 { return v }
}

func TestApplyVENCScalingSigned(t *testing.T) {
	values := []float64{-2048, -1024, 0, 1024, 2048}
	out := ApplyVENCScaling(values, 150, true)

	for i := range values {
		mirror := len(values) - 1 - i
		assert.InDelta(t, -out[mirror], out[i], 1e-12, "scaling must be odd-symmetric")
	}
	assert.InDelta(t, 150, out[4], 1e-12)
	assert.InDelta(t, -75, out[1], 1e-12)
	assert.Equal(t, 0.0, out[2])
}

func TestApplyVENCScalingUnsigned(t *testing.T) {
	values := []float64{0, 1024, 2048, 4096}
	out := ApplyVENCScaling(values, 100, false)

	assert.InDelta(t, -100, out[0], 1e-12)
	assert.InDelta(t, 0, out[2], 1e-12, "midpoint must map to zero velocity")
	assert.InDelta(t, 100, out[3], 1e-12)
}

func TestApplyVENCScalingZeroPeak(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 0}, ApplyVENCScaling([]float64{0, 0, 0}, 100, true))
	assert.Equal(t, []float64{0, 0}, ApplyVENCScaling([]float64{0, 0}, 100, false))
	assert.Empty(t, ApplyVENCScaling(nil, 100, true))
}

func TestAssemble(t *testing.T) {
	r := newFakeReader()
	frames := FrameMatrix{
		0: {
			Vx:        r.newStack("vx", 4, 3, 2, func(i, j, k int) float64 { return float64(i) - 2 }),
			Vy:        r.newStack("vy", 4, 3, 2, constant(0)),
			Vz:        r.newStack("vz", 4, 3, 2, constant(500)),
			Magnitude: r.newStack("mag", 4, 3, 2, constant(900)),
		},
	}

	a := NewAssembler(r, 2)
	phase, err := a.Assemble(frames, 0, models.VENC{X: 100, Y: 100, Z: 80}, true)
	require.NoError(t, err)

	g := phase.Geometry()
	assert.Equal(t, [3]int{4, 3, 2}, g.Dims)
	assert.InDelta(t, 1.5, g.Spacing[0], 1e-12)
	assert.InDelta(t, 2.0, g.Spacing[2], 1e-12, "slice gap comes from positions")
	assert.Equal(t, 40.0, phase.TriggerTime)
	require.NotNil(t, phase.Magnitude)

	// Vx spans -2..1 so the peak magnitude is 2
	v := phase.Velocity.At(g.Index(0, 1, 1))
	assert.InDelta(t, -100, v.X, 1e-9)
	assert.InDelta(t, 0, v.Y, 1e-9)
	assert.InDelta(t, 80, v.Z, 1e-9)
}

func TestAssembleFailures(t *testing.T) {
	r := newFakeReader()
	vx := r.newStack("vx", 4, 4, 2, constant(1))
	vy := r.newStack("vy", 4, 4, 2, constant(1))
	vz := r.newStack("vz", 4, 4, 2, constant(1))
	small := r.newStack("small", 3, 3, 2, constant(1))
	r.fail["broken"] = errors.New("truncated file")

	venc := models.UniformVENC(100)
	a := NewAssembler(r, 1)

	tests := []struct {
		name   string
		frames FrameMatrix
		phase  int
		venc   models.VENC
		kind   flowerr.Kind
	}{
		{"empty", FrameMatrix{}, 0, venc, flowerr.InvalidInput},
		{"bad venc", FrameMatrix{0: {Vx: vx, Vy: vy, Vz: vz}}, 0, models.VENC{X: 100, Y: 0, Z: 100}, flowerr.InvalidInput},
		{"missing vz", FrameMatrix{0: {Vx: vx, Vy: vy}}, 0, venc, flowerr.InconsistentData},
		{"missing phase", FrameMatrix{0: {Vx: vx, Vy: vy, Vz: vz}}, 3, venc, flowerr.InconsistentData},
		{"geometry mismatch", FrameMatrix{0: {Vx: vx, Vy: small, Vz: vz}}, 0, venc, flowerr.InconsistentData},
		{"decode failure", FrameMatrix{0: {Vx: vx, Vy: vy, Vz: []string{"broken"}}}, 0, venc, flowerr.ParseFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Assemble(tt.frames, tt.phase, tt.venc, true)
			require.Error(t, err)
			assert.Equal(t, tt.kind, flowerr.KindOf(err), err.Error())
		})
	}
}

func TestAssembleAllSkipsFailures(t *testing.T) {
	r := newFakeReader()
	frames := FrameMatrix{}
	for p := 0; p < 4; p++ {
		prefix := fmt.Sprintf("p%d", p)
		frames[p] = map[Component][]string{
			Vx: r.newStack(prefix+"/vx", 3, 3, 3, constant(float64(p+1))),
			Vy: r.newStack(prefix+"/vy", 3, 3, 3, constant(1)),
			Vz: r.newStack(prefix+"/vz", 3, 3, 3, constant(1)),
		}
	}
	// phase 2 has no Vz
	delete(frames[2], Vz)

	var mu sync.Mutex
	var reports []float64
	a := NewAssembler(r, 3)
	a.SetProgress(func(progress float64, status string) {
		mu.Lock()
		reports = append(reports, progress)
		mu.Unlock()
	})

	phases, err := a.AssembleAll(frames, models.UniformVENC(100), true)
	require.NoError(t, err)
	require.Len(t, phases, 3)

	assert.Equal(t, 0, phases[0].PhaseIndex)
	assert.Equal(t, 1, phases[1].PhaseIndex)
	assert.Equal(t, 3, phases[2].PhaseIndex)

	assert.Len(t, reports, 4)
	max := 0.0
	for _, p := range reports {
		max = math.Max(max, p)
	}
	assert.Equal(t, 1.0, max)
}

func TestAssembleAllFailsWhenNothingSucceeds(t *testing.T) {
	r := newFakeReader()
	frames := FrameMatrix{
		0: {Vx: r.newStack("vx", 2, 2, 1, constant(1))},
		1: {Vy: r.newStack("vy", 2, 2, 1, constant(1))},
	}

	_, err := NewAssembler(r, 2).AssembleAll(frames, models.UniformVENC(100), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, flowerr.ErrInconsistentData))

	_, err = NewAssembler(r, 2).AssembleAll(FrameMatrix{}, models.UniformVENC(100), false)
	assert.True(t, errors.Is(err, flowerr.ErrInvalidInput))
}
