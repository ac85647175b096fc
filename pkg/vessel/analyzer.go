// Package vessel derives hemodynamic quantities from corrected velocity
// phases: wall shear stress and its cycle statistics on an external wall
// mesh, and vorticity, helicity and kinetic energy fields on the voxel grid.
//
// Velocities arrive in cm/s and grid spacing in mm; every result is
// reported in SI units.
package vessel

import (
	"fmt"
	"math"

	"github.com/bitmark-inc/logger"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// Unit conversions
const (
	cmPerSecToMPerSec = 0.01
	mmToM             = 0.001
	mm3ToM3           = 1e-9
)

// Config holds blood properties and wall sampling parameters.
type Config struct {
	// Viscosity of blood in Pa·s
	Viscosity float64

	// Density of blood in kg/m³
	Density float64

	// WallSamplingVoxels is how far inside the wall velocity is sampled, in
	// multiples of the smallest voxel edge
	WallSamplingVoxels float64

	// Interpolation used to sample near-wall velocity
	Interpolation models.Interpolation
}

// DefaultConfig returns typical blood properties.
func DefaultConfig() Config {
	return Config{
		Viscosity:          0.004,
		Density:            1060,
		WallSamplingVoxels: 1.5,
		Interpolation:      models.Trilinear,
	}
}

// Analyzer computes wall and volume hemodynamics.
type Analyzer struct {
	cfg      Config
	progress models.ProgressFunc
	log      *logger.L
}

// NewAnalyzer creates an analyzer. Non-positive settings take their
// defaults.
func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	if !(cfg.Viscosity > 0) {
		cfg.Viscosity = def.Viscosity
	}
	if !(cfg.Density > 0) {
		cfg.Density = def.Density
	}
	if !(cfg.WallSamplingVoxels > 0) {
		cfg.WallSamplingVoxels = def.WallSamplingVoxels
	}
	return &Analyzer{cfg: cfg, log: logger.New("vessel")}
}

// SetProgress registers an optional callback for multi-phase operations.
func (a *Analyzer) SetProgress(fn models.ProgressFunc) {
	a.progress = fn
}

func checkPhase(op string, phase *models.VelocityPhase) error {
	if phase == nil || phase.Velocity == nil {
		return flowerr.New(flowerr.InvalidInput, op, "phase has no velocity field")
	}
	if !phase.Velocity.IsValid() {
		return flowerr.New(flowerr.InvalidInput, op, "phase %d has an invalid grid", phase.PhaseIndex)
	}
	return nil
}

func checkPhases(op string, phases []*models.VelocityPhase, min int) error {
	if len(phases) < min {
		return flowerr.New(flowerr.InvalidInput, op, "need at least %d phases, got %d", min, len(phases))
	}
	for _, p := range phases {
		if err := checkPhase(op, p); err != nil {
			return err
		}
	}
	g := phases[0].Velocity.Geometry
	for _, p := range phases[1:] {
		if !p.Velocity.Geometry.Matches(g) {
			return flowerr.New(flowerr.InconsistentData, op,
				"phase %d grid differs from phase %d", p.PhaseIndex, phases[0].PhaseIndex)
		}
	}
	return nil
}

// KineticEnergy computes 0.5·ρ·|V|² per voxel and its integral. When mask
// is given only voxels where it is non-zero contribute to the total.
func (a *Analyzer) KineticEnergy(phase *models.VelocityPhase, mask *models.ScalarField) (result *models.KineticEnergyResult, err error) {
	const op = "vessel.KineticEnergy"
	defer flowerr.Recover(op, &err)

	if err := checkPhase(op, phase); err != nil {
		return nil, err
	}
	g := phase.Velocity.Geometry
	if mask != nil && !mask.Geometry.Matches(g) {
		return nil, flowerr.New(flowerr.InconsistentData, op, "mask grid differs from velocity grid")
	}

	energy := models.NewScalarField(g)
	voxelVolume := g.VoxelVolume() * mm3ToM3
	result = &models.KineticEnergyResult{Energy: energy}

	for idx := range energy.Data {
		v := r3.Scale(cmPerSecToMPerSec, phase.Velocity.At(idx))
		ke := 0.5 * a.cfg.Density * r3.Dot(v, v)
		energy.Data[idx] = ke
		if mask != nil && mask.Data[idx] == 0 {
			continue
		}
		result.Total += ke * voxelVolume
		result.Voxels++
	}

	a.log.Debugf("phase %d: kinetic energy %.6g J over %d voxels", phase.PhaseIndex, result.Total, result.Voxels)
	return result, nil
}

// TurbulentKineticEnergy estimates TKE from the variance of each velocity
// component across phases: 0.5·ρ·(σx²+σy²+σz²) in J/m³. At least three
// phases on the same grid are required.
func (a *Analyzer) TurbulentKineticEnergy(phases []*models.VelocityPhase) (result *models.TurbulenceResult, err error) {
	const op = "vessel.TurbulentKineticEnergy"
	defer flowerr.Recover(op, &err)

	if err := checkPhases(op, phases, 3); err != nil {
		return nil, err
	}

	g := phases[0].Velocity.Geometry
	tke := models.NewScalarField(g)
	series := make([]float64, len(phases))

	for idx := range tke.Data {
		sum := 0.0
		for c := 0; c < 3; c++ {
			for t, p := range phases {
				series[t] = p.Velocity.Data[3*idx+c] * cmPerSecToMPerSec
			}
			sum += stat.Variance(series, nil)
		}
		tke.Data[idx] = 0.5 * a.cfg.Density * sum
	}

	result = &models.TurbulenceResult{TKE: tke, Phases: len(phases)}
	result.MeanTKE, result.MaxTKE = meanMax(tke.Data)
	a.progress.Report(1, fmt.Sprintf("turbulent kinetic energy over %d phases", len(phases)))

	a.log.Infof("TKE over %d phases: mean %.4g J/m³, max %.4g J/m³", len(phases), result.MeanTKE, result.MaxTKE)
	return result, nil
}

// meanMax returns the mean and maximum of values.
func meanMax(values []float64) (mean, max float64) {
	if len(values) == 0 {
		return 0, 0
	}
	max = math.Inf(-1)
	for _, v := range values {
		mean += v
		max = math.Max(max, v)
	}
	return mean / float64(len(values)), max
}
