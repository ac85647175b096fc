// Package correction removes MRI phase artifacts from assembled velocity
// phases: velocity aliasing (phase wrap) and the smooth background offset
// left by eddy currents.
//
// The corrector never edits its input. Every call works on a deep copy and
// returns it as a new phase.
package correction

import (
	"github.com/bitmark-inc/logger"
	"gonum.org/v1/gonum/floats"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// Config selects which corrections run.
type Config struct {
	// AliasingCorrection enables scan-line phase unwrapping
	AliasingCorrection bool

	// EddyCurrentCorrection subtracts a polynomial background fitted to
	// stationary tissue. It requires a magnitude image.
	EddyCurrentCorrection bool

	// MaxwellCorrection is accepted for completeness; concomitant gradient
	// correction is not implemented and the flag has no effect
	MaxwellCorrection bool

	// PolynomialOrder of the background fit, in [1,4]
	PolynomialOrder int

	// AliasingThreshold is the jump between neighbouring voxels, as a
	// fraction of VENC, treated as a wrap. It must be in (0,1].
	AliasingThreshold float64
}

// DefaultConfig enables aliasing and first order eddy current correction.
func DefaultConfig() Config {
	return Config{
		AliasingCorrection:    true,
		EddyCurrentCorrection: true,
		PolynomialOrder:       1,
		AliasingThreshold:     0.8,
	}
}

// Validate rejects configurations before any processing starts.
func (c Config) Validate() error {
	const op = "correction.Config.Validate"
	if c.PolynomialOrder < 1 || c.PolynomialOrder > 4 {
		return flowerr.New(flowerr.InvalidInput, op, "polynomial order must be in [1,4], got %d", c.PolynomialOrder)
	}
	if !(c.AliasingThreshold > 0 && c.AliasingThreshold <= 1) {
		return flowerr.New(flowerr.InvalidInput, op, "aliasing threshold must be in (0,1], got %g", c.AliasingThreshold)
	}
	return nil
}

// Corrector applies phase corrections. It holds no per-call state and is
// safe for concurrent use.
type Corrector struct {
	log *logger.L
}

// NewCorrector creates a corrector.
func NewCorrector() *Corrector {
	return &Corrector{log: logger.New("corrector")}
}

// Correct applies the configured corrections with the same VENC on every
// axis.
func (c *Corrector) Correct(phase *models.VelocityPhase, venc float64, cfg Config) (*models.VelocityPhase, error) {
	return c.CorrectVENC(phase, models.UniformVENC(venc), cfg)
}

// CorrectVENC applies the configured corrections to a copy of phase.
//
// The steps run in a fixed order: aliasing unwrap, stationary tissue mask,
// eddy current background subtraction and finally the Maxwell step, which
// only logs that it was skipped.
func (c *Corrector) CorrectVENC(phase *models.VelocityPhase, venc models.VENC, cfg Config) (result *models.VelocityPhase, err error) {
	const op = "correction.Correct"
	defer flowerr.Recover(op, &err)

	if phase == nil || phase.Velocity == nil {
		return nil, flowerr.New(flowerr.InvalidInput, op, "phase has no velocity field")
	}
	if !(venc.X > 0 && venc.Y > 0 && venc.Z > 0) {
		return nil, flowerr.New(flowerr.InvalidInput, op, "venc must be positive, got %+v", venc)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.EddyCurrentCorrection {
		if phase.Magnitude == nil {
			return nil, flowerr.New(flowerr.InvalidInput, op, "eddy current correction needs a magnitude image")
		}
		if !phase.Magnitude.Geometry.Matches(phase.Velocity.Geometry) {
			return nil, flowerr.New(flowerr.InconsistentData, op, "magnitude and velocity grids differ")
		}
	}

	result = phase.Clone()
	field := result.Velocity

	if risk := AliasingRisk(field, venc); risk > 0 {
		c.log.Infof("phase %d: %.2f%% of samples within 1%% of venc", phase.PhaseIndex, 100*risk)
	}

	if cfg.AliasingCorrection {
		n := UnwrapAliasing(field, venc, cfg.AliasingThreshold)
		c.log.Debugf("phase %d: unwrapped %d samples", phase.PhaseIndex, n)
	}

	if cfg.EddyCurrentCorrection {
		mask := StationaryMask(result.Magnitude)
		c.log.Debugf("phase %d: stationary mask has %d voxels", phase.PhaseIndex, countMask(mask))

		g := field.Geometry
		for comp := 0; comp < 3; comp++ {
			values := field.Component(comp)
			coeffs, err := FitPolynomial(values, g, mask, cfg.PolynomialOrder)
			if err != nil {
				return nil, err
			}
			if isZero(coeffs) {
				c.log.Debugf("phase %d: component %d fit skipped", phase.PhaseIndex, comp)
				continue
			}
			floats.Sub(values, EvaluateBackground(coeffs, g, cfg.PolynomialOrder))
			field.SetComponent(comp, values)
		}
	}

	if cfg.MaxwellCorrection {
		c.log.Warnf("phase %d: maxwell correction requested but not implemented", phase.PhaseIndex)
	}

	return result, nil
}

func countMask(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}

func isZero(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}
	return true
}
