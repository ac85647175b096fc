package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"flow4d/internal/models"
	"flow4d/internal/phantom"
	"flow4d/pkg/correction"
	"flow4d/pkg/flow"
	"flow4d/pkg/playback"
	"flow4d/pkg/vessel"
)

var phantomCmd = &cobra.Command{
	Use:   "phantom",
	Short: "Run the full pipeline on a synthetic pulsatile pipe flow",
	Long: `Generates pulsatile Poiseuille flow through a straight pipe with an
added linear eddy current background, serves the phases lazily through the
phase cache, corrects them, measures the time-velocity curve through the
pipe's mid plane and reports wall shear stress, vorticity and energy.`,
	Args: cobra.NoArgs,
	RunE: runPhantom,
}

// phantomParams holds the flags of the phantom command.
type phantomParams struct {
	size       int
	spacing    float64
	phases     int
	radius     float64
	vmax       float64
	rr         float64
	background float64
	frames     bool
}

var phantomFlags phantomParams

func init() {
	f := phantomCmd.Flags()
	f.IntVar(&phantomFlags.size, "size", 32, "Voxels along each axis")
	f.Float64Var(&phantomFlags.spacing, "spacing", 1, "Voxel size in mm")
	f.IntVar(&phantomFlags.phases, "phases", 20, "Cardiac phases")
	f.Float64Var(&phantomFlags.radius, "radius", 8, "Pipe radius in mm")
	f.Float64Var(&phantomFlags.vmax, "vmax", 100, "Peak centreline velocity in cm/s")
	f.Float64Var(&phantomFlags.rr, "rr", 1000, "Cardiac cycle length in ms")
	f.Float64Var(&phantomFlags.background, "background", 5, "Eddy current background slope in cm/s")
	f.BoolVar(&phantomFlags.frames, "frames", false, "Save cine frames (also enabled by output.saveFrames)")

	rootCmd.AddCommand(phantomCmd)
}

// phantomSource builds phase i of the phantom on demand and corrects it.
type phantomSource struct {
	params    phantomParams
	geometry  models.Geometry
	corrector *correction.Corrector
	settings  correction.Config
	venc      models.VENC
}

func (s *phantomSource) load(index int) (*models.VelocityPhase, error) {
	p := s.params
	t := float64(index) * p.rr / float64(p.phases)
	phase := phantom.Poiseuille(s.geometry, p.radius, p.vmax*phantom.Pulse(t, p.rr), index)
	phase.TriggerTime = t

	b := p.background
	phantom.LinearBackground{
		{b / 2, b, 0, 0},
		{0, 0, b, 0},
		{-b / 2, 0, 0, b},
	}.Apply(phase)

	return s.corrector.CorrectVENC(phase, s.venc, s.settings)
}

func runPhantom(cmd *cobra.Command, _ []string) error {
	startTime := time.Now()
	p := phantomFlags

	source := &phantomSource{
		params:    p,
		geometry:  phantom.Geometry(p.size, p.spacing),
		corrector: correction.NewCorrector(),
		settings:  correctionConfig(cfg),
		venc:      vencFromConfig(cfg),
	}
	cache, err := playback.NewPhaseCache(p.phases, cfg.Playback.WindowSize, source.load)
	if err != nil {
		return err
	}
	progress := progressPrinter(cmd)
	cache.SetLoadCallback(func(index int) {
		if progress != nil {
			progress(float64(index+1)/float64(p.phases), "phase ready")
		}
	})

	phases := make([]*models.VelocityPhase, p.phases)
	for i := range phases {
		if phases[i], err = cache.GetPhase(i); err != nil {
			return err
		}
	}

	// curve through the pipe's mid plane
	fc, err := flowConfig(cfg)
	if err != nil {
		return err
	}
	plane, err := flow.NewPlane(r3.Vec{}, r3.Vec{Z: 1}, p.radius+2*p.spacing, cfg.Flow.SampleSpacing)
	if err != nil {
		return err
	}
	quantifier := flow.NewQuantifier(fc)
	curve, err := quantifier.MeasureCurve(phases, plane, cfg.Processing.TemporalResolution)
	if err != nil {
		return err
	}
	printCurve(cmd, curve)
	if err := writeCurve(cmd, curve, cfg.Output.Directory); err != nil {
		return err
	}

	if err := reportVessel(cmd, phases, curve); err != nil {
		return err
	}

	if p.frames || cfg.Output.SaveFrames {
		if err := saveCine(cmd, cache, filepath.Join(cfg.Output.Directory, "frames"), p.vmax, 1); err != nil {
			return err
		}
	}

	cmd.Printf("\nCompleted in %.2f seconds\n", time.Since(startTime).Seconds())
	return nil
}

// reportVessel prints wall and volume hemodynamics of the phantom.
func reportVessel(cmd *cobra.Command, phases []*models.VelocityPhase, curve *models.TimeVelocityCurve) error {
	p := phantomFlags
	vc, err := vesselConfig(cfg)
	if err != nil {
		return err
	}
	analyzer := vessel.NewAnalyzer(vc)

	peak := phases[peakPhase(curve)]
	extent := float64(p.size-1) * p.spacing
	wall := phantom.CylinderSurface(p.radius, 0.6*extent, 48, 9)

	wss, err := analyzer.WSS(peak, wall)
	if err != nil {
		return err
	}
	tawss, err := analyzer.TimeAveragedWSS(phases, wall)
	if err != nil {
		return err
	}
	rrt, err := analyzer.RRT(wall)
	if err != nil {
		return err
	}
	vortex, err := analyzer.Vorticity(peak)
	if err != nil {
		return err
	}

	cmd.Printf("\nVessel Analysis (peak phase %d):\n", peak.PhaseIndex)
	cmd.Printf("================================\n")
	cmd.Printf("WSS: mean %.3f Pa, max %.3f Pa (%d/%d vertices)\n", wss.MeanWSS, wss.MaxWSS, wss.ValidVertices, wss.TotalVertices)
	cmd.Printf("TAWSS: mean %.3f Pa, max %.3f Pa\n", tawss.MeanTAWSS, tawss.MaxTAWSS)
	cmd.Printf("OSI: mean %.3f, max %.3f\n", tawss.MeanOSI, tawss.MaxOSI)
	cmd.Printf("RRT: mean %.3f 1/Pa (%d undefined)\n", rrt.MeanRRT, rrt.Undefined)
	cmd.Printf("Vorticity: mean %.2f 1/s, max %.2f 1/s\n", vortex.MeanVorticity, vortex.MaxVorticity)

	if len(phases) >= 3 {
		tke, err := analyzer.TurbulentKineticEnergy(phases)
		if err != nil {
			return err
		}
		cmd.Printf("TKE: mean %.3f J/m³, max %.3f J/m³\n", tke.MeanTKE, tke.MaxTKE)
	}

	lumen := lumenMask(peak)
	ke, err := analyzer.KineticEnergy(peak, lumen)
	if err != nil {
		return err
	}
	cmd.Printf("Kinetic energy: %.3g mJ over %d lumen voxels\n", ke.Total*1000, ke.Voxels)
	return nil
}

// peakPhase returns the position of the phase with the largest forward flow.
func peakPhase(curve *models.TimeVelocityCurve) int {
	best := 0
	for i, m := range curve.Measurements {
		if m.FlowRate > curve.Measurements[best].FlowRate {
			best = i
		}
	}
	return best
}

// lumenMask marks voxels darker than the Otsu threshold of the magnitude
// image, which in the phantom is the blood pool.
func lumenMask(phase *models.VelocityPhase) *models.ScalarField {
	if phase.Magnitude == nil {
		return nil
	}
	threshold, ok := correction.OtsuThreshold(phase.Magnitude.Data)
	if !ok {
		return nil
	}
	mask := models.NewScalarField(phase.Magnitude.Geometry)
	for i, v := range phase.Magnitude.Data {
		if v < threshold {
			mask.Data[i] = 1
		}
	}
	return mask
}
