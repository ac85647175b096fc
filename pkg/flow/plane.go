package flow

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// NewPlane builds a measurement plane, normalising normal.
func NewPlane(center, normal r3.Vec, radius, spacing float64) (models.MeasurementPlane, error) {
	const op = "flow.NewPlane"

	n := r3.Norm(normal)
	if !(n > 0) || math.IsInf(n, 0) {
		return models.MeasurementPlane{}, flowerr.New(flowerr.InvalidInput, op, "normal has zero length")
	}
	plane := models.MeasurementPlane{
		Center:        center,
		Normal:        r3.Scale(1/n, normal),
		Radius:        radius,
		SampleSpacing: spacing,
	}
	if err := plane.Validate(); err != nil {
		return models.MeasurementPlane{}, err
	}
	return plane, nil
}

// PlaneFromPoints builds the plane through three points. The normal is
// (p2−p1)×(p3−p1) and the centre is their centroid.
func PlaneFromPoints(p1, p2, p3 r3.Vec, radius, spacing float64) (models.MeasurementPlane, error) {
	const op = "flow.PlaneFromPoints"

	normal := r3.Cross(r3.Sub(p2, p1), r3.Sub(p3, p1))
	span := math.Max(r3.Norm(r3.Sub(p2, p1)), r3.Norm(r3.Sub(p3, p1)))
	if !(r3.Norm(normal) > 1e-9*span*span) {
		return models.MeasurementPlane{}, flowerr.New(flowerr.InvalidInput, op, "points are collinear")
	}
	center := r3.Scale(1.0/3.0, r3.Add(r3.Add(p1, p2), p3))
	return NewPlane(center, normal, radius, spacing)
}

// InPlaneBasis returns two unit vectors u, v that span the plane with the
// given unit normal, so that (u, v, normal) is right handed. The seed is
// the coordinate axis least parallel to the normal.
func InPlaneBasis(normal r3.Vec) (u, v r3.Vec) {
	ax, ay, az := math.Abs(normal.X), math.Abs(normal.Y), math.Abs(normal.Z)
	seed, least := r3.Vec{X: 1}, ax
	if ay < least {
		seed, least = r3.Vec{Y: 1}, ay
	}
	if az < least {
		seed = r3.Vec{Z: 1}
	}

	u = r3.Unit(r3.Cross(seed, normal))
	v = r3.Cross(normal, u)
	return u, v
}

// DiskSamples returns the grid points of the plane that lie within its
// radius. The grid is centred on the plane centre with SampleSpacing pitch.
func DiskSamples(plane models.MeasurementPlane) []r3.Vec {
	u, v := InPlaneBasis(plane.Normal)
	s := plane.SampleSpacing
	m := int(math.Floor(plane.Radius / s))
	r2 := plane.Radius * plane.Radius

	points := make([]r3.Vec, 0, int(math.Pi*float64((m+1)*(m+1))))
	for a := -m; a <= m; a++ {
		for b := -m; b <= m; b++ {
			da, db := float64(a)*s, float64(b)*s
			if da*da+db*db > r2 {
				continue
			}
			points = append(points, r3.Add(plane.Center, r3.Add(r3.Scale(da, u), r3.Scale(db, v))))
		}
	}
	return points
}
