package correction

import (
	"errors"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"flow4d/internal/logtest"
	"flow4d/internal/models"
	"flow4d/internal/phantom"
	"flow4d/pkg/flowerr"
)

func TestMain(m *testing.M) {
	os.Exit(logtest.Run(m))
}

func TestPolynomialTermCount(t *testing.T) {
	for order := 1; order <= 4; order++ {
		want := (order + 1) * (order + 2) * (order + 3) / 6
		terms := PolynomialTerms(order)
		assert.Len(t, terms, want, "order %d", order)

		seen := map[[3]int]bool{}
		for _, e := range terms {
			assert.LessOrEqual(t, e[0]+e[1]+e[2], order)
			assert.False(t, seen[e], "duplicate term %v", e)
			seen[e] = true
		}
	}
	assert.Equal(t, [3]int{0, 0, 0}, PolynomialTerms(2)[0])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"default", DefaultConfig(), true},
		{"order 4", Config{PolynomialOrder: 4, AliasingThreshold: 1}, true},
		{"order 0", Config{PolynomialOrder: 0, AliasingThreshold: 0.5}, false},
		{"order 5", Config{PolynomialOrder: 5, AliasingThreshold: 0.5}, false},
		{"threshold 0", Config{PolynomialOrder: 1, AliasingThreshold: 0}, false},
		{"threshold above 1", Config{PolynomialOrder: 1, AliasingThreshold: 1.01}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, flowerr.ErrInvalidInput))
			}
		})
	}
}

func TestUnwrapAliasingRestoresWrappedLine(t *testing.T) {
	g := models.NewGeometry([3]int{6, 1, 1}, [3]float64{1, 1, 1})
	f := models.NewVectorField(g)
	venc := models.UniformVENC(100)

	// true Vz ramps past +VENC and wraps to negative values
	truth := []float64{60, 80, 95, 110, 125, 90}
	for i, v := range truth {
		wrapped := v
		if wrapped > 100 {
			wrapped -= 200
		}
		f.Set(i, r3.Vec{Z: wrapped})
	}

	changed := UnwrapAliasing(f, venc, 0.8)
	assert.Equal(t, 2, changed)
	for i, v := range truth {
		assert.InDelta(t, v, f.At(i).Z, 1e-9, "voxel %d", i)
	}
}

func TestUnwrapAliasingIsIdempotent(t *testing.T) {
	g := phantom.Geometry(8, 2)
	p := phantom.Poiseuille(g, 6, 90, 0)
	venc := models.UniformVENC(100)

	once := p.Velocity.Clone()
	UnwrapAliasing(once, venc, 0.8)
	twice := once.Clone()
	n := UnwrapAliasing(twice, venc, 0.8)

	assert.Equal(t, 0, n)
	assert.Equal(t, once.Data, twice.Data)
	assert.Equal(t, p.Velocity.Data, once.Data, "smooth field must not change")
}

func TestAliasingRisk(t *testing.T) {
	g := models.NewGeometry([3]int{2, 1, 1}, [3]float64{1, 1, 1})
	f := models.NewVectorField(g)
	f.Set(0, r3.Vec{X: 99.5})
	f.Set(1, r3.Vec{Y: -10})

	assert.InDelta(t, 1.0/6.0, AliasingRisk(f, models.UniformVENC(100)), 1e-12)
	assert.Equal(t, 0.0, AliasingRisk(nil, models.UniformVENC(100)))
}

func TestOtsuThresholdSeparatesClasses(t *testing.T) {
	values := []float64{}
	for i := 0; i < 50; i++ {
		values = append(values, 10+float64(i%5))
		values = append(values, 200+float64(i%7))
	}
	th, ok := OtsuThreshold(values)
	require.True(t, ok)
	assert.Greater(t, th, 14.0)
	assert.Less(t, th, 200.0)

	_, ok = OtsuThreshold([]float64{5, 5, 5})
	assert.False(t, ok)
}

func TestStationaryMaskErodes(t *testing.T) {
	g := models.NewGeometry([3]int{7, 7, 1}, [3]float64{1, 1, 1})
	mag := models.NewScalarField(g)
	for idx := range mag.Data {
		i, j, _ := g.Coords(idx)
		if i >= 2 && i <= 4 && j >= 2 && j <= 4 {
			mag.Data[idx] = 500
		} else {
			mag.Data[idx] = 20
		}
	}

	mask := StationaryMask(mag)
	// only the centre of the 3x3 bright block survives erosion
	assert.Equal(t, 1, countMask(mask))
	assert.True(t, mask[g.Index(3, 3, 0)])
}

func TestFitPolynomialZeroSamples(t *testing.T) {
	g := models.NewGeometry([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	values := make([]float64, g.NumVoxels())
	for i := range values {
		values[i] = float64(i)
	}

	coeffs, err := FitPolynomial(values, g, make([]bool, len(values)), 2)
	require.NoError(t, err)
	assert.Len(t, coeffs, 10)
	assert.True(t, isZero(coeffs))
}

func TestFitPolynomialRecoversQuadratic(t *testing.T) {
	g := models.NewGeometry([3]int{6, 5, 4}, [3]float64{1, 1, 1})
	values := make([]float64, g.NumVoxels())
	mask := make([]bool, len(values))
	for idx := range values {
		x, y, z := phantom.NormalizedCoords(g, idx)
		values[idx] = 3 - 2*x + 0.5*y*z + 1.5*x*x
		mask[idx] = true
	}

	coeffs, err := FitPolynomial(values, g, mask, 2)
	require.NoError(t, err)
	for _, p := range [][3]float64{{0, 0, 0}, {0.5, -0.25, 1}, {-1, 1, -1}} {
		want := 3 - 2*p[0] + 0.5*p[1]*p[2] + 1.5*p[0]*p[0]
		assert.InDelta(t, want, EvaluatePolynomial(coeffs, 2, p[0], p[1], p[2]), 1e-8)
	}
}

// linearBackgroundPhase is a vessel of plug flow surrounded by bright
// stationary tissue, with a linear eddy current offset on every component
func linearBackgroundPhase() (*models.VelocityPhase, phantom.LinearBackground) {
	g := phantom.Geometry(12, 2)
	p := phantom.Poiseuille(g, 5, 60, 0)
	bg := phantom.LinearBackground{
		{1.5, 2, -1, 0.5},
		{-2, 0.5, 1, -1.5},
		{0.8, -1, 0.25, 2},
	}
	bg.Apply(p)
	return p, bg
}

func TestCorrectRemovesLinearBackground(t *testing.T) {
	p, _ := linearBackgroundPhase()
	original := p.Clone()

	cfg := DefaultConfig()
	cfg.AliasingCorrection = false
	out, err := NewCorrector().Correct(p, 150, cfg)
	require.NoError(t, err)

	assert.Equal(t, original.Velocity.Data, p.Velocity.Data, "input must not be mutated")

	truth := phantom.Poiseuille(p.Geometry(), 5, 60, 0)
	maxResidual := 0.0
	for idx := 0; idx < truth.Velocity.NumVoxels(); idx++ {
		d := r3.Norm(r3.Sub(out.Velocity.At(idx), truth.Velocity.At(idx)))
		maxResidual = math.Max(maxResidual, d)
	}
	assert.Less(t, maxResidual, 1e-6)
}

func TestCorrectWithEmptyMaskLeavesFieldUnchanged(t *testing.T) {
	g := phantom.Geometry(5, 1)
	p := phantom.UniformFlow(g, r3.Vec{X: 3, Z: 10}, 0)

	cfg := DefaultConfig()
	cfg.AliasingCorrection = false
	out, err := NewCorrector().Correct(p, 100, cfg)
	require.NoError(t, err)
	assert.Equal(t, p.Velocity.Data, out.Velocity.Data)
}

func TestCorrectFailures(t *testing.T) {
	g := phantom.Geometry(4, 1)
	withMag := phantom.UniformFlow(g, r3.Vec{Z: 1}, 0)
	noMag := withMag.Clone()
	noMag.Magnitude = nil

	c := NewCorrector()
	cfg := DefaultConfig()

	_, err := c.Correct(nil, 100, cfg)
	assert.Equal(t, flowerr.InvalidInput, flowerr.KindOf(err))

	_, err = c.Correct(withMag, 0, cfg)
	assert.Equal(t, flowerr.InvalidInput, flowerr.KindOf(err))

	bad := cfg
	bad.PolynomialOrder = 7
	_, err = c.Correct(withMag, 100, bad)
	assert.Equal(t, flowerr.InvalidInput, flowerr.KindOf(err))

	_, err = c.Correct(noMag, 100, cfg)
	assert.Equal(t, flowerr.InvalidInput, flowerr.KindOf(err))

	aliasOnly := cfg
	aliasOnly.EddyCurrentCorrection = false
	aliasOnly.MaxwellCorrection = true
	_, err = c.Correct(noMag, 100, aliasOnly)
	assert.NoError(t, err)
}
