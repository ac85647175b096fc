// Package phantom generates synthetic 4D flow data with known answers: plug
// and parabolic pipe flow, pulsatile series, rigid rotation, linear eddy
// current backgrounds and a cylindrical wall mesh.
//
// Every grid produced here is axis aligned and centred on the world origin,
// so a plane through (0,0,0) cuts the middle of the volume.
package phantom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"flow4d/internal/models"
)

// Magnitude levels of the synthetic images
const (
	TissueSignal = 400.0
	LumenSignal  = 150.0
	AirSignal    = 10.0
)

// Geometry returns an n×n×n grid of the given spacing centred on the origin.
func Geometry(n int, spacing float64) models.Geometry {
	return Box([3]int{n, n, n}, [3]float64{spacing, spacing, spacing})
}

// Box returns a grid with arbitrary extents centred on the origin.
func Box(dims [3]int, spacing [3]float64) models.Geometry {
	g := models.NewGeometry(dims, spacing)
	for a := 0; a < 3; a++ {
		g.Origin[a] = -float64(dims[a]-1) / 2 * spacing[a]
	}
	return g
}

// newPhase allocates a phase with a constant magnitude image.
func newPhase(g models.Geometry, index int, triggerTime float64) *models.VelocityPhase {
	mag := models.NewScalarField(g)
	for i := range mag.Data {
		mag.Data[i] = TissueSignal
	}
	return &models.VelocityPhase{
		Velocity:    models.NewVectorField(g),
		Magnitude:   mag,
		PhaseIndex:  index,
		TriggerTime: triggerTime,
	}
}

// UniformFlow fills every voxel with velocity v (cm/s).
func UniformFlow(g models.Geometry, v r3.Vec, index int) *models.VelocityPhase {
	p := newPhase(g, index, 0)
	for i := 0; i < g.NumVoxels(); i++ {
		p.Velocity.Set(i, v)
	}
	return p
}

// Poiseuille returns parabolic flow along +z in a pipe of the given radius
// (mm) around the z axis: v = vmax·(1 − r²/R²) inside, zero outside. The
// lumen is darker than the surrounding tissue in the magnitude image.
func Poiseuille(g models.Geometry, radius, vmax float64, index int) *models.VelocityPhase {
	p := newPhase(g, index, 0)
	for idx := 0; idx < g.NumVoxels(); idx++ {
		i, j, k := g.Coords(idx)
		w := g.IndexToWorld(float64(i), float64(j), float64(k))
		r2 := w.X*w.X + w.Y*w.Y
		if r2 < radius*radius {
			p.Velocity.Set(idx, r3.Vec{Z: vmax * (1 - r2/(radius*radius))})
			p.Magnitude.Data[idx] = LumenSignal
		}
	}
	return p
}

// PulsatileSeries returns n Poiseuille phases spanning one cardiac cycle of
// rrMs milliseconds. The peak velocity follows vmax·sin(2πt/RR), so the
// second half of the cycle carries backward flow.
func PulsatileSeries(g models.Geometry, radius, vmax float64, n int, rrMs float64) []*models.VelocityPhase {
	phases := make([]*models.VelocityPhase, n)
	dt := rrMs / float64(n)
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		p := Poiseuille(g, radius, vmax*Pulse(t, rrMs), i)
		p.TriggerTime = t
		phases[i] = p
	}
	return phases
}

// Pulse is the normalised waveform used by PulsatileSeries.
func Pulse(t, rrMs float64) float64 {
	return math.Sin(2 * math.Pi * t / rrMs)
}

// RigidRotation returns solid body rotation about the z axis with angular
// velocity omega (rad/s). Its vorticity is (0, 0, 2·omega) everywhere.
func RigidRotation(g models.Geometry, omega float64, index int) *models.VelocityPhase {
	p := newPhase(g, index, 0)
	for idx := 0; idx < g.NumVoxels(); idx++ {
		i, j, k := g.Coords(idx)
		w := g.IndexToWorld(float64(i), float64(j), float64(k))
		// mm/s to cm/s
		p.Velocity.Set(idx, r3.Vec{X: -omega * w.Y / 10, Y: omega * w.X / 10})
	}
	return p
}

// LinearBackground holds a + b·x + c·y + d·z per velocity component, with
// x, y and z the grid coordinates normalised to [-1, 1].
type LinearBackground [3][4]float64

// Apply adds the background to every voxel of p.
func (b LinearBackground) Apply(p *models.VelocityPhase) {
	g := p.Velocity.Geometry
	for idx := 0; idx < g.NumVoxels(); idx++ {
		x, y, z := NormalizedCoords(g, idx)
		v := p.Velocity.At(idx)
		v.X += b[0][0] + b[0][1]*x + b[0][2]*y + b[0][3]*z
		v.Y += b[1][0] + b[1][1]*x + b[1][2]*y + b[1][3]*z
		v.Z += b[2][0] + b[2][1]*x + b[2][2]*y + b[2][3]*z
		p.Velocity.Set(idx, v)
	}
}

// NormalizedCoords maps a voxel to [-1, 1] on each axis.
func NormalizedCoords(g models.Geometry, idx int) (x, y, z float64) {
	i, j, k := g.Coords(idx)
	norm := func(c, n int) float64 {
		if n < 2 {
			return 0
		}
		return 2*float64(c)/float64(n-1) - 1
	}
	return norm(i, g.Dims[0]), norm(j, g.Dims[1]), norm(k, g.Dims[2])
}

// CylinderSurface returns an open tube of the given radius and length (mm)
// around the z axis, centred on the origin, with nTheta vertices per ring and
// nZ rings. Normals point away from the axis.
func CylinderSurface(radius, length float64, nTheta, nZ int) *models.Surface {
	points := make([]r3.Vec, 0, nTheta*nZ)
	for r := 0; r < nZ; r++ {
		z := -length/2 + length*float64(r)/float64(nZ-1)
		for t := 0; t < nTheta; t++ {
			theta := 2 * math.Pi * float64(t) / float64(nTheta)
			points = append(points, r3.Vec{X: radius * math.Cos(theta), Y: radius * math.Sin(theta), Z: z})
		}
	}

	triangles := make([][3]int, 0, 2*nTheta*(nZ-1))
	for r := 0; r < nZ-1; r++ {
		for t := 0; t < nTheta; t++ {
			a := r*nTheta + t
			b := r*nTheta + (t+1)%nTheta
			c := a + nTheta
			d := b + nTheta
			// counter-clockwise seen from outside
			triangles = append(triangles, [3]int{a, b, d}, [3]int{a, d, c})
		}
	}

	s := models.NewSurface(points, triangles)
	s.ComputeNormals()
	return s
}
