package correction

import (
	"math"

	"flow4d/internal/models"
)

// riskFraction of VENC above which a sample is at risk of having wrapped.
const riskFraction = 0.99

// UnwrapAliasing removes phase wraps from field in place and returns the
// number of samples it changed.
//
// Each component is scanned along i, then j, then k. Walking a scan line, a
// jump from the previous raw sample larger than threshold×VENC moves an
// offset of 2×VENC in the opposite direction, and the offset is added to every
// later sample on the line. Lines without such jumps are left untouched, so
// running it twice on an unwrapped field changes nothing.
func UnwrapAliasing(field *models.VectorField, venc models.VENC, threshold float64) int {
	dims := field.Dims
	changed := make([]bool, field.NumVoxels())

	for comp := 0; comp < 3; comp++ {
		v := venc.Axis(comp)
		if v <= 0 {
			continue
		}
		limit := threshold * v
		wrap := 2 * v

		for axis := 0; axis < 3; axis++ {
			n := dims[axis]
			if n < 2 {
				continue
			}
			// the two axes that are not being scanned
			a1, a2 := (axis+1)%3, (axis+2)%3
			for p := 0; p < dims[a1]; p++ {
				for q := 0; q < dims[a2]; q++ {
					var ijk [3]int
					ijk[a1], ijk[a2] = p, q

					ijk[axis] = 0
					prev := field.Data[3*field.Index(ijk[0], ijk[1], ijk[2])+comp]
					offset := 0.0
					for s := 1; s < n; s++ {
						ijk[axis] = s
						idx := field.Index(ijk[0], ijk[1], ijk[2])
						raw := field.Data[3*idx+comp]
						switch d := raw - prev; {
						case d > limit:
							offset -= wrap
						case d < -limit:
							offset += wrap
						}
						prev = raw
						if offset != 0 {
							field.Data[3*idx+comp] = raw + offset
							changed[idx] = true
						}
					}
				}
			}
		}
	}

	return countMask(changed)
}

// AliasingRisk returns the fraction of velocity samples within 1% of the
// encoding limit of their axis. A high value suggests VENC was set too low.
func AliasingRisk(field *models.VectorField, venc models.VENC) float64 {
	if field == nil || len(field.Data) == 0 {
		return 0
	}
	atRisk := 0
	for i, v := range field.Data {
		limit := venc.Axis(i % 3)
		if limit > 0 && math.Abs(v) > riskFraction*limit {
			atRisk++
		}
	}
	return float64(atRisk) / float64(len(field.Data))
}
