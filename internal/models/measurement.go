package models

// FlowMeasurement summarises through-plane flow for a single phase.
type FlowMeasurement struct {
	PhaseIndex  int
	TriggerTime float64

	// FlowRate is the net through-plane flow in mL/s
	FlowRate float64

	// Through-plane velocity statistics in cm/s
	MeanVelocity  float64
	MaxVelocity   float64
	MinVelocity   float64
	StdVelocity   float64
	Velocity01Pct float64
	Velocity99Pct float64

	// Area is the sampled area in cm² (SampleCount × SampleArea)
	Area float64

	// SampleCount is the number of in-bounds samples
	SampleCount int

	// TotalSamples is the number of grid points generated on the disk
	TotalSamples int

	// SampleArea is the area of a single sample in cm²
	SampleArea float64
}

// PeakVelocity returns the through-plane velocity with the largest magnitude.
func (m FlowMeasurement) PeakVelocity() float64 {
	if -m.MinVelocity > m.MaxVelocity {
		return m.MinVelocity
	}
	return m.MaxVelocity
}

// TimeVelocityCurve aggregates measurements over the cardiac cycle.
type TimeVelocityCurve struct {
	Measurements []FlowMeasurement

	// TemporalResolution is the phase spacing in ms
	TemporalResolution float64

	// Volumes in mL
	StrokeVolume      float64
	RegurgitantVolume float64
	NetVolume         float64

	// RegurgitantFraction is 100 × RegurgitantVolume / StrokeVolume
	RegurgitantFraction float64

	// PeakVelocity is the signed through-plane velocity of largest magnitude (cm/s)
	PeakVelocity float64

	// PressureGradient is the simplified Bernoulli gradient at peak velocity (mmHg)
	PressureGradient float64

	// HeartRate in bpm, 0 when it could not be derived
	HeartRate float64
}

// Times returns the time axis of the curve in ms. Trigger times are used
// when present, otherwise phase index × temporal resolution.
func (c *TimeVelocityCurve) Times() []float64 {
	out := make([]float64, len(c.Measurements))
	hasTrigger := false
	for _, m := range c.Measurements {
		if m.TriggerTime > 0 {
			hasTrigger = true
			break
		}
	}
	for i, m := range c.Measurements {
		if hasTrigger {
			out[i] = m.TriggerTime
		} else {
			out[i] = float64(m.PhaseIndex) * c.TemporalResolution
		}
	}
	return out
}
