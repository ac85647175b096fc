package models

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"flow4d/pkg/flowerr"
)

// unitTolerance is how far |Normal| may deviate from 1.
const unitTolerance = 1e-6

// MeasurementPlane defines a disk-shaped sampling region.
type MeasurementPlane struct {
	// Center is the disk centre in world coordinates (mm)
	Center r3.Vec

	// Normal is the unit normal; positive through-plane flow follows it
	Normal r3.Vec

	// Radius is the disk radius in mm
	Radius float64

	// SampleSpacing is the distance between grid samples in mm
	SampleSpacing float64
}

// Validate checks that the normal is unit length and the radius and spacing are positive.
func (p MeasurementPlane) Validate() error {
	const op = "models.MeasurementPlane.Validate"
	if !(p.Radius > 0) {
		return flowerr.New(flowerr.InvalidInput, op, "radius must be positive, got %g", p.Radius)
	}
	if !(p.SampleSpacing > 0) {
		return flowerr.New(flowerr.InvalidInput, op, "sample spacing must be positive, got %g", p.SampleSpacing)
	}
	n := r3.Norm(p.Normal)
	if math.IsNaN(n) || math.Abs(n-1) > unitTolerance {
		return flowerr.New(flowerr.InvalidInput, op, "normal must be unit length, got |n|=%g", n)
	}
	return nil
}

// SampleArea returns the area in cm² represented by one grid sample.
func (p MeasurementPlane) SampleArea() float64 {
	return p.SampleSpacing * p.SampleSpacing / 100.0
}
