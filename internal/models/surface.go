package models

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Well-known per-vertex array names on a wall surface.
const (
	ArrayNormals   = "Normals"
	ArrayWSS       = "WSS"
	ArrayWSSVector = "WSSVector"
	ArrayTAWSS     = "TAWSS"
	ArrayOSI       = "OSI"
	ArrayRRT       = "RRT"
)

// DataArray is a named per-vertex array with a fixed number of components.
type DataArray struct {
	Name       string
	Components int
	Values     []float64
}

// Tuple returns the components of entry i.
func (a *DataArray) Tuple(i int) []float64 {
	return a.Values[i*a.Components : (i+1)*a.Components]
}

// Surface is a triangulated vessel wall with named per-vertex arrays. It is
// produced and consumed by external mesh tooling; the analysis stages only
// read the geometry and Normals and attach result arrays.
type Surface struct {
	Points    []r3.Vec
	Triangles [][3]int
	PointData map[string]*DataArray
}

// NewSurface creates a surface from points and triangles.
func NewSurface(points []r3.Vec, triangles [][3]int) *Surface {
	return &Surface{
		Points:    points,
		Triangles: triangles,
		PointData: make(map[string]*DataArray),
	}
}

// NumPoints returns the number of vertices.
func (s *Surface) NumPoints() int {
	return len(s.Points)
}

// Array returns the named array if it exists.
func (s *Surface) Array(name string) (*DataArray, bool) {
	if s.PointData == nil {
		return nil, false
	}
	a, ok := s.PointData[name]
	return a, ok
}

// SetScalars attaches a one-component array, replacing any previous array
// with the same name.
func (s *Surface) SetScalars(name string, values []float64) error {
	if len(values) != len(s.Points) {
		return fmt.Errorf("array %s has %d values for %d points", name, len(values), len(s.Points))
	}
	if s.PointData == nil {
		s.PointData = make(map[string]*DataArray)
	}
	s.PointData[name] = &DataArray{Name: name, Components: 1, Values: values}
	return nil
}

// SetVectors attaches a three-component array.
func (s *Surface) SetVectors(name string, vectors []r3.Vec) error {
	if len(vectors) != len(s.Points) {
		return fmt.Errorf("array %s has %d vectors for %d points", name, len(vectors), len(s.Points))
	}
	values := make([]float64, 0, 3*len(vectors))
	for _, v := range vectors {
		values = append(values, v.X, v.Y, v.Z)
	}
	if s.PointData == nil {
		s.PointData = make(map[string]*DataArray)
	}
	s.PointData[name] = &DataArray{Name: name, Components: 3, Values: values}
	return nil
}

// Scalars returns the values of a one-component array.
func (s *Surface) Scalars(name string) ([]float64, bool) {
	a, ok := s.Array(name)
	if !ok || a.Components != 1 || len(a.Values) != len(s.Points) {
		return nil, false
	}
	return a.Values, true
}

// Vectors returns a three-component array as vectors.
func (s *Surface) Vectors(name string) ([]r3.Vec, bool) {
	a, ok := s.Array(name)
	if !ok || a.Components != 3 || len(a.Values) != 3*len(s.Points) {
		return nil, false
	}
	out := make([]r3.Vec, len(s.Points))
	for i := range out {
		t := a.Tuple(i)
		out[i] = r3.Vec{X: t[0], Y: t[1], Z: t[2]}
	}
	return out, true
}

// Normals returns the per-vertex outward normals.
func (s *Surface) Normals() ([]r3.Vec, bool) {
	return s.Vectors(ArrayNormals)
}

// ComputeNormals derives area-weighted vertex normals from the triangle
// winding (counter-clockwise seen from outside) and stores them as Normals.
func (s *Surface) ComputeNormals() {
	acc := make([]r3.Vec, len(s.Points))
	for _, tri := range s.Triangles {
		a, b, c := s.Points[tri[0]], s.Points[tri[1]], s.Points[tri[2]]
		// cross product length is twice the triangle area
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		for _, v := range tri {
			acc[v] = r3.Add(acc[v], n)
		}
	}
	for i, n := range acc {
		if r3.Norm(n) > 0 {
			acc[i] = r3.Unit(n)
		}
	}
	_ = s.SetVectors(ArrayNormals, acc)
}
