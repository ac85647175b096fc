// Package models holds the value types shared by every stage of the 4D flow
// pipeline: voxel geometry, velocity phases, measurement planes, wall surfaces
// and the result records the analysis stages produce.
package models

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// geometryTolerance is the relative tolerance used when comparing spacing,
// origin and direction of two grids.
const geometryTolerance = 1e-4

// Geometry describes a regular 3D voxel grid in patient (world) space.
type Geometry struct {
	// Dims is the number of voxels along the i, j and k axes
	Dims [3]int

	// Spacing is the physical voxel size along i, j and k in mm
	Spacing [3]float64

	// Origin is the world position of voxel (0,0,0) in mm
	Origin [3]float64

	// Direction is a row-major 3x3 matrix whose columns are the world
	// directions of the i, j and k axes. The zero value means identity.
	Direction [9]float64
}

// IdentityDirection returns the axis-aligned direction matrix.
func IdentityDirection() [9]float64 {
	return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// NewGeometry creates an axis-aligned grid with its origin at zero.
func NewGeometry(dims [3]int, spacing [3]float64) Geometry {
	return Geometry{
		Dims:      dims,
		Spacing:   spacing,
		Direction: IdentityDirection(),
	}
}

// NumVoxels returns the total number of voxels in the grid.
func (g Geometry) NumVoxels() int {
	return g.Dims[0] * g.Dims[1] * g.Dims[2]
}

// Index converts integer voxel coordinates into a linear index.
func (g Geometry) Index(i, j, k int) int {
	return i + g.Dims[0]*(j+g.Dims[1]*k)
}

// Coords converts a linear index back into voxel coordinates.
func (g Geometry) Coords(idx int) (i, j, k int) {
	nx, ny := g.Dims[0], g.Dims[1]
	i = idx % nx
	j = (idx / nx) % ny
	k = idx / (nx * ny)
	return i, j, k
}

// InBounds reports whether the integer coordinates address a voxel.
func (g Geometry) InBounds(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < g.Dims[0] && j < g.Dims[1] && k < g.Dims[2]
}

func (g Geometry) direction() [9]float64 {
	for _, v := range g.Direction {
		if v != 0 {
			return g.Direction
		}
	}
	return IdentityDirection()
}

// DirectionMatrix returns the effective direction matrix (identity when unset).
func (g Geometry) DirectionMatrix() [9]float64 {
	return g.direction()
}

// IndexToWorld maps continuous voxel coordinates to a world position in mm.
func (g Geometry) IndexToWorld(ci, cj, ck float64) r3.Vec {
	d := g.direction()
	si := ci * g.Spacing[0]
	sj := cj * g.Spacing[1]
	sk := ck * g.Spacing[2]
	return r3.Vec{
		X: g.Origin[0] + d[0]*si + d[1]*sj + d[2]*sk,
		Y: g.Origin[1] + d[3]*si + d[4]*sj + d[5]*sk,
		Z: g.Origin[2] + d[6]*si + d[7]*sj + d[8]*sk,
	}
}

// WorldToIndex maps a world position in mm to continuous voxel coordinates.
// The direction matrix is assumed orthonormal, so its transpose is its inverse.
func (g Geometry) WorldToIndex(p r3.Vec) (ci, cj, ck float64) {
	d := g.direction()
	dx := p.X - g.Origin[0]
	dy := p.Y - g.Origin[1]
	dz := p.Z - g.Origin[2]
	ci = (d[0]*dx + d[3]*dy + d[6]*dz) / g.Spacing[0]
	cj = (d[1]*dx + d[4]*dy + d[7]*dz) / g.Spacing[1]
	ck = (d[2]*dx + d[5]*dy + d[8]*dz) / g.Spacing[2]
	return ci, cj, ck
}

// Center returns the world position of the geometric centre of the grid.
func (g Geometry) Center() r3.Vec {
	return g.IndexToWorld(
		float64(g.Dims[0]-1)/2,
		float64(g.Dims[1]-1)/2,
		float64(g.Dims[2]-1)/2,
	)
}

// VoxelVolume returns the volume of one voxel in mm³.
func (g Geometry) VoxelVolume() float64 {
	return g.Spacing[0] * g.Spacing[1] * g.Spacing[2]
}

// MinSpacing returns the smallest voxel edge in mm.
func (g Geometry) MinSpacing() float64 {
	return math.Min(g.Spacing[0], math.Min(g.Spacing[1], g.Spacing[2]))
}

// IsValid reports whether the grid has positive extents and spacing.
func (g Geometry) IsValid() bool {
	for a := 0; a < 3; a++ {
		if g.Dims[a] <= 0 || !(g.Spacing[a] > 0) {
			return false
		}
	}
	return true
}

// Matches reports whether two grids describe the same voxel lattice.
func (g Geometry) Matches(o Geometry) bool {
	if g.Dims != o.Dims {
		return false
	}
	for a := 0; a < 3; a++ {
		if !closeEnough(g.Spacing[a], o.Spacing[a]) || !closeEnough(g.Origin[a], o.Origin[a]) {
			return false
		}
	}
	gd, od := g.direction(), o.direction()
	for i := range gd {
		if !closeEnough(gd[i], od[i]) {
			return false
		}
	}
	return true
}

func closeEnough(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= geometryTolerance*scale
}
