package vessel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// wallShear samples the velocity a short distance inside each vertex of the
// wall and returns the shear stress vectors μ·V/d in Pa. Vertices whose
// sample falls outside the grid, or that have no normal, get a zero vector
// and are reported as invalid.
func (a *Analyzer) wallShear(op string, phase *models.VelocityPhase, surface *models.Surface) ([]r3.Vec, []bool, error) {
	if err := checkPhase(op, phase); err != nil {
		return nil, nil, err
	}
	if surface == nil || surface.NumPoints() == 0 {
		return nil, nil, flowerr.New(flowerr.InvalidInput, op, "surface has no vertices")
	}
	normals, ok := surface.Normals()
	if !ok {
		return nil, nil, flowerr.New(flowerr.InvalidInput, op, "surface has no %s array", models.ArrayNormals)
	}

	g := phase.Velocity.Geometry
	distMM := a.cfg.WallSamplingVoxels * g.MinSpacing()
	scale := a.cfg.Viscosity * cmPerSecToMPerSec / (distMM * mmToM)

	tau := make([]r3.Vec, surface.NumPoints())
	valid := make([]bool, surface.NumPoints())
	for i, p := range surface.Points {
		n := normals[i]
		if r3.Norm(n) == 0 {
			continue
		}
		inside := r3.Sub(p, r3.Scale(distMM, r3.Unit(n)))
		v, ok := phase.Velocity.Sample(inside, a.cfg.Interpolation)
		if !ok {
			continue
		}
		tau[i] = r3.Scale(scale, v)
		valid[i] = true
	}
	return tau, valid, nil
}

// WSS estimates wall shear stress for one phase and attaches the magnitude
// and vector per vertex to the surface as WSS and WSSVector. The surface must
// carry outward Normals.
func (a *Analyzer) WSS(phase *models.VelocityPhase, surface *models.Surface) (result models.WSSResult, err error) {
	const op = "vessel.WSS"
	defer flowerr.Recover(op, &err)

	tau, valid, err := a.wallShear(op, phase, surface)
	if err != nil {
		return result, err
	}

	result = models.WSSResult{PhaseIndex: phase.PhaseIndex, TotalVertices: len(tau)}
	wss := make([]float64, len(tau))
	sum := 0.0
	for i, t := range tau {
		wss[i] = r3.Norm(t)
		if !valid[i] {
			continue
		}
		result.ValidVertices++
		sum += wss[i]
		result.MaxWSS = math.Max(result.MaxWSS, wss[i])
	}
	if result.ValidVertices > 0 {
		result.MeanWSS = sum / float64(result.ValidVertices)
	}

	if err := surface.SetScalars(models.ArrayWSS, wss); err != nil {
		return result, flowerr.Wrap(flowerr.InternalError, op, err, "attach WSS")
	}
	if err := surface.SetVectors(models.ArrayWSSVector, tau); err != nil {
		return result, flowerr.Wrap(flowerr.InternalError, op, err, "attach WSS vectors")
	}

	if skipped := result.TotalVertices - result.ValidVertices; skipped > 0 {
		a.log.Warnf("phase %d: %d of %d wall vertices sampled outside the volume", phase.PhaseIndex, skipped, result.TotalVertices)
	}
	a.log.Debugf("phase %d: mean WSS %.4f Pa, max %.4f Pa", phase.PhaseIndex, result.MeanWSS, result.MaxWSS)
	return result, nil
}

// TimeAveragedWSS computes the time-averaged WSS magnitude and the
// oscillatory shear index over the given phases and attaches both to the
// surface as TAWSS and OSI.
//
//	TAWSS = mean |τ|
//	OSI   = 0.5·(1 − |Σ τ| / Σ |τ|)
//
// OSI is 0 where the wall sees no shear and is kept within [0, 0.5].
func (a *Analyzer) TimeAveragedWSS(phases []*models.VelocityPhase, surface *models.Surface) (result models.TimeAveragedWSSResult, err error) {
	const op = "vessel.TimeAveragedWSS"
	defer flowerr.Recover(op, &err)

	if err := checkPhases(op, phases, 1); err != nil {
		return result, err
	}
	if surface == nil || surface.NumPoints() == 0 {
		return result, flowerr.New(flowerr.InvalidInput, op, "surface has no vertices")
	}

	n := surface.NumPoints()
	sumVec := make([]r3.Vec, n)
	sumMag := make([]float64, n)

	for t, phase := range phases {
		tau, _, err := a.wallShear(op, phase, surface)
		if err != nil {
			return result, err
		}
		for i, v := range tau {
			sumVec[i] = r3.Add(sumVec[i], v)
			sumMag[i] += r3.Norm(v)
		}
		a.progress.Report(float64(t+1)/float64(len(phases)),
			fmt.Sprintf("wall shear phase %d of %d", t+1, len(phases)))
	}

	tawss := make([]float64, n)
	osi := make([]float64, n)
	for i := range tawss {
		tawss[i] = sumMag[i] / float64(len(phases))
		osi[i] = oscillatoryShearIndex(sumVec[i], sumMag[i])
	}

	if err := surface.SetScalars(models.ArrayTAWSS, tawss); err != nil {
		return result, flowerr.Wrap(flowerr.InternalError, op, err, "attach TAWSS")
	}
	if err := surface.SetScalars(models.ArrayOSI, osi); err != nil {
		return result, flowerr.Wrap(flowerr.InternalError, op, err, "attach OSI")
	}

	result = models.TimeAveragedWSSResult{Phases: len(phases)}
	result.MeanTAWSS, result.MaxTAWSS = meanMax(tawss)
	result.MeanOSI, result.MaxOSI = meanMax(osi)

	a.log.Infof("TAWSS over %d phases: mean %.4f Pa, mean OSI %.3f", len(phases), result.MeanTAWSS, result.MeanOSI)
	return result, nil
}

func oscillatoryShearIndex(sum r3.Vec, sumMag float64) float64 {
	if sumMag <= 0 {
		return 0
	}
	osi := 0.5 * (1 - r3.Norm(sum)/sumMag)
	return math.Min(math.Max(osi, 0), 0.5)
}

// RRT computes relative residence time 1/((1−2·OSI)·TAWSS) from the TAWSS
// and OSI arrays already on the surface and attaches it as RRT. Vertices
// where the denominator is not positive get 0 and are counted as undefined.
func (a *Analyzer) RRT(surface *models.Surface) (result models.RRTResult, err error) {
	const op = "vessel.RRT"
	defer flowerr.Recover(op, &err)

	if surface == nil {
		return result, flowerr.New(flowerr.InvalidInput, op, "nil surface")
	}
	tawss, ok := surface.Scalars(models.ArrayTAWSS)
	if !ok {
		return result, flowerr.New(flowerr.InvalidInput, op, "surface has no %s array", models.ArrayTAWSS)
	}
	osi, ok := surface.Scalars(models.ArrayOSI)
	if !ok {
		return result, flowerr.New(flowerr.InvalidInput, op, "surface has no %s array", models.ArrayOSI)
	}

	rrt := make([]float64, len(tawss))
	sum := 0.0
	for i := range rrt {
		denom := (1 - 2*osi[i]) * tawss[i]
		if denom <= 0 {
			result.Undefined++
			continue
		}
		rrt[i] = 1 / denom
		sum += rrt[i]
		result.MaxRRT = math.Max(result.MaxRRT, rrt[i])
	}
	if defined := len(rrt) - result.Undefined; defined > 0 {
		result.MeanRRT = sum / float64(defined)
	}

	if err := surface.SetScalars(models.ArrayRRT, rrt); err != nil {
		return result, flowerr.Wrap(flowerr.InternalError, op, err, "attach RRT")
	}

	a.log.Debugf("RRT: mean %.4g 1/Pa, %d undefined vertices", result.MeanRRT, result.Undefined)
	return result, nil
}
