package models

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Interpolation selects how a field is sampled between voxel centres.
type Interpolation int

const (
	// Trilinear blends the eight surrounding voxels. It is the default for
	// every sampling consumer so flow and wall measurements agree.
	Trilinear Interpolation = iota

	// Nearest takes the value of the closest voxel centre.
	Nearest
)

// String implements fmt.Stringer
func (m Interpolation) String() string {
	switch m {
	case Trilinear:
		return "trilinear"
	case Nearest:
		return "nearest"
	default:
		return "*unknown*"
	}
}

// ParseInterpolation converts a configuration string into an Interpolation.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trilinear", "linear":
		return Trilinear, nil
	case "nearest", "nn":
		return Nearest, nil
	default:
		return Trilinear, fmt.Errorf("unknown interpolation mode %q", s)
	}
}

// boundsEpsilon allows sample points that sit on the outermost voxel
// centres to count as in bounds despite rounding.
const boundsEpsilon = 1e-6

// locate finds the lower lattice index and blend weight of continuous
// coordinate c on an axis of n voxels.
func locate(c float64, n int) (i0, i1 int, t float64, ok bool) {
	if math.IsNaN(c) || c < -boundsEpsilon || c > float64(n-1)+boundsEpsilon {
		return 0, 0, 0, false
	}
	if n == 1 {
		return 0, 0, 0, true
	}
	i0 = int(math.Floor(c))
	if i0 < 0 {
		i0 = 0
	}
	if i0 > n-2 {
		i0 = n - 2
	}
	t = c - float64(i0)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return i0, i0 + 1, t, true
}

// nearest rounds continuous coordinate c to the closest voxel on an axis.
func nearest(c float64, n int) (int, bool) {
	if math.IsNaN(c) || c < -boundsEpsilon || c > float64(n-1)+boundsEpsilon {
		return 0, false
	}
	i := int(math.Round(c))
	if i < 0 {
		i = 0
	}
	if i > n-1 {
		i = n - 1
	}
	return i, true
}

// corner is one of the weighted lattice points used by trilinear sampling.
type corner struct {
	index  int
	weight float64
}

// stencil returns the lattice points and weights needed to sample world
// position p. The second result is false if p lies outside the grid.
func (g Geometry) stencil(p r3.Vec, mode Interpolation, buf []corner) ([]corner, bool) {
	ci, cj, ck := g.WorldToIndex(p)
	buf = buf[:0]

	if mode == Nearest {
		i, ok1 := nearest(ci, g.Dims[0])
		j, ok2 := nearest(cj, g.Dims[1])
		k, ok3 := nearest(ck, g.Dims[2])
		if !ok1 || !ok2 || !ok3 {
			return buf, false
		}
		return append(buf, corner{index: g.Index(i, j, k), weight: 1}), true
	}

	i0, i1, ti, ok1 := locate(ci, g.Dims[0])
	j0, j1, tj, ok2 := locate(cj, g.Dims[1])
	k0, k1, tk, ok3 := locate(ck, g.Dims[2])
	if !ok1 || !ok2 || !ok3 {
		return buf, false
	}

	is := [2]int{i0, i1}
	js := [2]int{j0, j1}
	ks := [2]int{k0, k1}
	wi := [2]float64{1 - ti, ti}
	wj := [2]float64{1 - tj, tj}
	wk := [2]float64{1 - tk, tk}
	for c := 0; c < 2; c++ {
		for b := 0; b < 2; b++ {
			for a := 0; a < 2; a++ {
				w := wi[a] * wj[b] * wk[c]
				if w == 0 {
					continue
				}
				buf = append(buf, corner{index: g.Index(is[a], js[b], ks[c]), weight: w})
			}
		}
	}
	return buf, true
}

// VectorField is a 3-component field over a regular grid. Components are
// stored interleaved: Data[3*idx+c].
type VectorField struct {
	Geometry
	Data []float64
}

// NewVectorField allocates a zero field over g.
func NewVectorField(g Geometry) *VectorField {
	return &VectorField{Geometry: g, Data: make([]float64, 3*g.NumVoxels())}
}

// At returns the vector stored at linear index idx.
func (f *VectorField) At(idx int) r3.Vec {
	return r3.Vec{X: f.Data[3*idx], Y: f.Data[3*idx+1], Z: f.Data[3*idx+2]}
}

// Set stores v at linear index idx.
func (f *VectorField) Set(idx int, v r3.Vec) {
	f.Data[3*idx] = v.X
	f.Data[3*idx+1] = v.Y
	f.Data[3*idx+2] = v.Z
}

// Component extracts a copy of component c (0=x, 1=y, 2=z).
func (f *VectorField) Component(c int) []float64 {
	n := f.NumVoxels()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = f.Data[3*i+c]
	}
	return out
}

// SetComponent overwrites component c from values.
func (f *VectorField) SetComponent(c int, values []float64) {
	for i, v := range values {
		f.Data[3*i+c] = v
	}
}

// Clone returns a deep copy of the field.
func (f *VectorField) Clone() *VectorField {
	if f == nil {
		return nil
	}
	data := make([]float64, len(f.Data))
	copy(data, f.Data)
	return &VectorField{Geometry: f.Geometry, Data: data}
}

// Sample evaluates the field at world position p. The boolean is false when
// p lies outside the grid.
func (f *VectorField) Sample(p r3.Vec, mode Interpolation) (r3.Vec, bool) {
	var buf [8]corner
	corners, ok := f.stencil(p, mode, buf[:0])
	if !ok {
		return r3.Vec{}, false
	}
	var out r3.Vec
	for _, c := range corners {
		out.X += c.weight * f.Data[3*c.index]
		out.Y += c.weight * f.Data[3*c.index+1]
		out.Z += c.weight * f.Data[3*c.index+2]
	}
	return out, true
}

// MaxMagnitude returns the largest vector norm in the field.
func (f *VectorField) MaxMagnitude() float64 {
	max := 0.0
	for i := 0; i < f.NumVoxels(); i++ {
		if m := r3.Norm(f.At(i)); m > max {
			max = m
		}
	}
	return max
}

// ScalarField is a single-valued field over a regular grid.
type ScalarField struct {
	Geometry
	Data []float64
}

// NewScalarField allocates a zero field over g.
func NewScalarField(g Geometry) *ScalarField {
	return &ScalarField{Geometry: g, Data: make([]float64, g.NumVoxels())}
}

// Clone returns a deep copy of the field.
func (f *ScalarField) Clone() *ScalarField {
	if f == nil {
		return nil
	}
	data := make([]float64, len(f.Data))
	copy(data, f.Data)
	return &ScalarField{Geometry: f.Geometry, Data: data}
}

// Sample evaluates the field at world position p.
func (f *ScalarField) Sample(p r3.Vec, mode Interpolation) (float64, bool) {
	var buf [8]corner
	corners, ok := f.stencil(p, mode, buf[:0])
	if !ok {
		return 0, false
	}
	out := 0.0
	for _, c := range corners {
		out += c.weight * f.Data[c.index]
	}
	return out, true
}

// Range returns the minimum and maximum values of the field.
func (f *ScalarField) Range() (min, max float64) {
	if len(f.Data) == 0 {
		return 0, 0
	}
	min, max = f.Data[0], f.Data[0]
	for _, v := range f.Data[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
