// Package flow measures through-plane blood flow on a disk-shaped plane and
// reduces a cardiac cycle of measurements to a time-velocity curve.
package flow

import (
	"fmt"
	"math"
	"sort"

	"github.com/bitmark-inc/logger"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// Config tunes sampling.
type Config struct {
	// Interpolation used to sample the velocity field at plane points
	Interpolation models.Interpolation

	// MinSamples is the number of in-bounds samples a measurement needs
	MinSamples int
}

// DefaultConfig samples trilinearly and accepts any non-empty measurement.
func DefaultConfig() Config {
	return Config{Interpolation: models.Trilinear, MinSamples: 1}
}

// Quantifier measures flow through planes. It is safe for concurrent use
// once configured.
type Quantifier struct {
	cfg      Config
	progress models.ProgressFunc
	log      *logger.L
}

// NewQuantifier creates a quantifier.
func NewQuantifier(cfg Config) *Quantifier {
	if cfg.MinSamples < 1 {
		cfg.MinSamples = 1
	}
	return &Quantifier{cfg: cfg, log: logger.New("flow")}
}

// SetProgress registers an optional progress callback for MeasureCurve.
func (q *Quantifier) SetProgress(fn models.ProgressFunc) {
	q.progress = fn
}

// Measure samples phase on the plane's disk and integrates through-plane
// flow. Flow in mL/s is the sum of v·n (cm/s) times the area each sample
// represents (cm²), over samples that fall inside the volume.
func (q *Quantifier) Measure(phase *models.VelocityPhase, plane models.MeasurementPlane) (m models.FlowMeasurement, err error) {
	const op = "flow.Measure"
	defer flowerr.Recover(op, &err)

	if phase == nil || phase.Velocity == nil {
		return m, flowerr.New(flowerr.InvalidInput, op, "phase has no velocity field")
	}
	if err := plane.Validate(); err != nil {
		return m, err
	}

	points := DiskSamples(plane)
	through := make([]float64, 0, len(points))
	for _, p := range points {
		v, ok := phase.Velocity.Sample(p, q.cfg.Interpolation)
		if !ok {
			continue
		}
		through = append(through, r3.Dot(v, plane.Normal))
	}

	if len(through) < q.cfg.MinSamples || len(through) == 0 {
		return m, flowerr.New(flowerr.InconsistentData, op,
			"phase %d: %d of %d samples in bounds, need %d",
			phase.PhaseIndex, len(through), len(points), q.cfg.MinSamples)
	}

	sampleArea := plane.SampleArea()
	m = models.FlowMeasurement{
		PhaseIndex:   phase.PhaseIndex,
		TriggerTime:  phase.TriggerTime,
		SampleCount:  len(through),
		TotalSamples: len(points),
		SampleArea:   sampleArea,
		Area:         float64(len(through)) * sampleArea,
	}

	sum := 0.0
	m.MinVelocity, m.MaxVelocity = math.Inf(1), math.Inf(-1)
	for _, v := range through {
		sum += v
		m.MinVelocity = math.Min(m.MinVelocity, v)
		m.MaxVelocity = math.Max(m.MaxVelocity, v)
	}
	m.FlowRate = sum * sampleArea

	if len(through) > 1 {
		m.MeanVelocity, m.StdVelocity = stat.MeanStdDev(through, nil)
	} else {
		m.MeanVelocity = through[0]
	}

	sorted := make([]float64, len(through))
	copy(sorted, through)
	sort.Float64s(sorted)
	m.Velocity01Pct = stat.Quantile(0.01, stat.LinInterp, sorted, nil)
	m.Velocity99Pct = stat.Quantile(0.99, stat.LinInterp, sorted, nil)

	q.log.Debugf("phase %d: flow %.3f mL/s, mean %.3f cm/s over %d/%d samples",
		m.PhaseIndex, m.FlowRate, m.MeanVelocity, m.SampleCount, m.TotalSamples)

	return m, nil
}

// MeasureCurve measures every phase in phase-index order and integrates the
// cycle. Forward flow gives the stroke volume, backward flow the
// regurgitant volume.
//
// When temporalResolutionMs is not positive it is derived from the mean
// spacing of the phase trigger times.
func (q *Quantifier) MeasureCurve(phases []*models.VelocityPhase, plane models.MeasurementPlane, temporalResolutionMs float64) (curve *models.TimeVelocityCurve, err error) {
	const op = "flow.MeasureCurve"
	defer flowerr.Recover(op, &err)

	if len(phases) == 0 {
		return nil, flowerr.New(flowerr.InvalidInput, op, "no phases")
	}
	ordered := make([]*models.VelocityPhase, len(phases))
	copy(ordered, phases)
	for i, p := range ordered {
		if p == nil {
			return nil, flowerr.New(flowerr.InvalidInput, op, "phase %d is nil", i)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PhaseIndex < ordered[j].PhaseIndex
	})

	triggers := make([]float64, len(ordered))
	for i, p := range ordered {
		triggers[i] = p.TriggerTime
	}

	res := temporalResolutionMs
	if res <= 0 {
		res = meanStep(triggers)
		if res <= 0 {
			return nil, flowerr.New(flowerr.InvalidInput, op, "temporal resolution unknown and trigger times unusable")
		}
		q.log.Infof("temporal resolution derived from trigger times: %.2f ms", res)
	}

	curve = &models.TimeVelocityCurve{
		Measurements:       make([]models.FlowMeasurement, 0, len(ordered)),
		TemporalResolution: res,
	}

	dt := res / 1000
	for i, p := range ordered {
		m, err := q.Measure(p, plane)
		if err != nil {
			return nil, err
		}
		curve.Measurements = append(curve.Measurements, m)

		if m.FlowRate > 0 {
			curve.StrokeVolume += m.FlowRate * dt
		} else {
			curve.RegurgitantVolume -= m.FlowRate * dt
		}
		if peak := m.PeakVelocity(); math.Abs(peak) > math.Abs(curve.PeakVelocity) {
			curve.PeakVelocity = peak
		}

		q.progress.Report(float64(i+1)/float64(len(ordered)), fmt.Sprintf("measured phase %d", p.PhaseIndex))
	}

	curve.NetVolume = curve.StrokeVolume - curve.RegurgitantVolume
	if curve.StrokeVolume > 0 {
		curve.RegurgitantFraction = 100 * curve.RegurgitantVolume / curve.StrokeVolume
	}
	curve.PressureGradient = PressureGradient(curve.PeakVelocity)

	if hr, err := HeartRate(triggers, res); err == nil {
		curve.HeartRate = hr
	} else {
		q.log.Debugf("heart rate not derived: %s", err)
	}

	q.log.Infof("curve over %d phases: SV %.2f mL, RV %.2f mL, RF %.1f%%",
		len(ordered), curve.StrokeVolume, curve.RegurgitantVolume, curve.RegurgitantFraction)

	return curve, nil
}

// PressureGradient applies the simplified Bernoulli equation to a velocity
// in cm/s and returns the gradient in mmHg: 4·v², v in m/s.
func PressureGradient(velocityCmS float64) float64 {
	v := velocityCmS / 100
	return 4 * v * v
}

// HeartRate estimates beats per minute from the trigger times of phases
// covering one cardiac cycle. With N phases the RR interval is
// maxTrigger·N/(N−1); without trigger times it falls back to N times the
// temporal resolution.
func HeartRate(triggerTimes []float64, temporalResolutionMs float64) (float64, error) {
	const op = "flow.HeartRate"

	n := len(triggerTimes)
	maxT := 0.0
	for _, t := range triggerTimes {
		maxT = math.Max(maxT, t)
	}

	var rr float64
	switch {
	case n >= 2 && maxT > 0:
		rr = maxT * float64(n) / float64(n-1)
	case n > 0 && temporalResolutionMs > 0:
		rr = float64(n) * temporalResolutionMs
	default:
		return 0, flowerr.New(flowerr.InconsistentData, op, "no usable timing information")
	}
	return 60000 / rr, nil
}

// meanStep returns the mean positive spacing between sorted times.
func meanStep(times []float64) float64 {
	if len(times) < 2 {
		return 0
	}
	sorted := make([]float64, len(times))
	copy(sorted, times)
	sort.Float64s(sorted)
	span := sorted[len(sorted)-1] - sorted[0]
	return span / float64(len(sorted)-1)
}
