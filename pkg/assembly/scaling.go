package assembly

import "math"

// ApplyVENCScaling converts raw phase pixel values into velocities in cm/s.
//
// Signed encodings are normalised against the largest observed magnitude:
// v = p / max|p| × VENC. Unsigned encodings are centred on half the observed
// maximum: v = (p − mid) / mid × VENC with mid = max(p)/2. A volume with no
// signal (zero peak) maps to all zeros.
//
// Parameters:
//   - values: Raw pixel values of one velocity component
//   - venc: Velocity encoding limit for the component in cm/s
//   - signed: Whether the pixels use a signed representation
//
// Returns:
//   - A new slice holding the scaled velocities
func ApplyVENCScaling(values []float64, venc float64, signed bool) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	if signed {
		maxAbs := 0.0
		for _, v := range values {
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
		if maxAbs == 0 {
			return out
		}
		for i, v := range values {
			out[i] = v / maxAbs * venc
		}
		return out
	}

	maxVal := values[0]
	for _, v := range values[1:] {
		maxVal = math.Max(maxVal, v)
	}
	mid := maxVal / 2
	if mid == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - mid) / mid * venc
	}
	return out
}
