package vessel

import (
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// Vorticity computes ω = ∇×V in 1/s with central differences (one-sided on
// the border, zero along axes of a single voxel) and the helicity density
// V·ω. Grid derivatives are rotated into world axes through the direction
// matrix before the curl is formed.
func (a *Analyzer) Vorticity(phase *models.VelocityPhase) (result *models.VortexResult, err error) {
	const op = "vessel.Vorticity"
	defer flowerr.Recover(op, &err)

	if err := checkPhase(op, phase); err != nil {
		return nil, err
	}

	field := phase.Velocity
	g := field.Geometry
	d := g.DirectionMatrix()

	vorticity := models.NewVectorField(g)
	helicity := models.NewScalarField(g)
	magnitudes := make([]float64, g.NumVoxels())

	for idx := range magnitudes {
		i, j, k := g.Coords(idx)
		ijk := [3]int{i, j, k}

		// grid[a] is ∂V/∂s along grid axis a, in (m/s)/m
		var grid [3]r3.Vec
		for axis := 0; axis < 3; axis++ {
			grid[axis] = axisDerivative(field, ijk, axis)
		}

		// world gradient: ∂V/∂x_w = Σ_a D[w][a] ∂V/∂s_a
		var world [3]r3.Vec
		for w := 0; w < 3; w++ {
			for axis := 0; axis < 3; axis++ {
				world[w] = r3.Add(world[w], r3.Scale(d[3*w+axis], grid[axis]))
			}
		}

		omega := r3.Vec{
			X: world[1].Z - world[2].Y,
			Y: world[2].X - world[0].Z,
			Z: world[0].Y - world[1].X,
		}
		vorticity.Set(idx, omega)

		v := r3.Scale(cmPerSecToMPerSec, field.At(idx))
		helicity.Data[idx] = r3.Dot(v, omega)
		magnitudes[idx] = r3.Norm(omega)
	}

	result = &models.VortexResult{
		Vorticity:     vorticity,
		Helicity:      helicity,
		MeanVorticity: stat.Mean(magnitudes, nil),
	}
	_, result.MaxVorticity = meanMax(magnitudes)

	a.log.Debugf("phase %d: vorticity mean %.4g 1/s, max %.4g 1/s", phase.PhaseIndex, result.MeanVorticity, result.MaxVorticity)
	return result, nil
}

// axisDerivative differentiates the velocity (converted to m/s) along one
// grid axis at voxel ijk, per metre.
func axisDerivative(field *models.VectorField, ijk [3]int, axis int) r3.Vec {
	g := field.Geometry
	n := g.Dims[axis]
	if n < 2 {
		return r3.Vec{}
	}

	lo, hi := ijk, ijk
	switch c := ijk[axis]; {
	case c == 0:
		hi[axis] = 1
	case c == n-1:
		lo[axis] = n - 2
	default:
		lo[axis] = c - 1
		hi[axis] = c + 1
	}

	h := float64(hi[axis]-lo[axis]) * g.Spacing[axis] * mmToM
	vLo := field.At(g.Index(lo[0], lo[1], lo[2]))
	vHi := field.At(g.Index(hi[0], hi[1], hi[2]))
	return r3.Scale(cmPerSecToMPerSec/h, r3.Sub(vHi, vLo))
}
