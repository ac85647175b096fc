package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"flow4d/internal/models"
	"flow4d/pkg/assembly"
	"flow4d/pkg/config"
	"flow4d/pkg/correction"
	"flow4d/pkg/flow"
	"flow4d/pkg/playback"
	"flow4d/pkg/vessel"
	"flow4d/pkg/visualization"
)

// The helpers below translate the YAML configuration into the per-component
// settings and run the stages shared by the commands.

func vencFromConfig(c *config.Config) models.VENC {
	return models.VENC{X: c.Processing.VENC.X, Y: c.Processing.VENC.Y, Z: c.Processing.VENC.Z}
}

func correctionConfig(c *config.Config) correction.Config {
	return correction.Config{
		AliasingCorrection:    c.Correction.Aliasing,
		EddyCurrentCorrection: c.Correction.EddyCurrent,
		MaxwellCorrection:     c.Correction.Maxwell,
		PolynomialOrder:       c.Correction.PolynomialOrder,
		AliasingThreshold:     c.Correction.AliasingThreshold,
	}
}

func flowConfig(c *config.Config) (flow.Config, error) {
	mode, err := models.ParseInterpolation(c.Flow.Interpolation)
	if err != nil {
		return flow.Config{}, err
	}
	return flow.Config{Interpolation: mode, MinSamples: c.Flow.MinSamples}, nil
}

func vesselConfig(c *config.Config) (vessel.Config, error) {
	mode, err := models.ParseInterpolation(c.Flow.Interpolation)
	if err != nil {
		return vessel.Config{}, err
	}
	return vessel.Config{
		Viscosity:          c.Vessel.Viscosity,
		Density:            c.Vessel.Density,
		WallSamplingVoxels: c.Vessel.WallSamplingVoxels,
		Interpolation:      mode,
	}, nil
}

// frameMatrix converts manifest phases for the assembler.
func frameMatrix(m *config.Manifest) assembly.FrameMatrix {
	frames := make(assembly.FrameMatrix, len(m.Phases))
	for _, ph := range m.Phases {
		components := map[assembly.Component][]string{
			assembly.Vx: ph.Vx,
			assembly.Vy: ph.Vy,
			assembly.Vz: ph.Vz,
		}
		if len(ph.Magnitude) > 0 {
			components[assembly.Magnitude] = ph.Magnitude
		}
		frames[ph.Index] = components
	}
	return frames
}

func vec(v []float64) r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

// manifestPlane builds the measurement plane, taking radius and spacing from
// the flow section when the manifest leaves them out.
func manifestPlane(m *config.Manifest, c *config.Config) (models.MeasurementPlane, error) {
	p := m.Plane
	radius, spacing := p.Radius, p.SampleSpacing
	if radius <= 0 {
		radius = c.Flow.Radius
	}
	if spacing <= 0 {
		spacing = c.Flow.SampleSpacing
	}
	if p.UsesPoints() {
		return flow.PlaneFromPoints(vec(p.Points[0]), vec(p.Points[1]), vec(p.Points[2]), radius, spacing)
	}
	return flow.NewPlane(vec(p.Center), vec(p.Normal), radius, spacing)
}

// correctAll corrects every phase with the configured settings.
func correctAll(phases []*models.VelocityPhase, c *config.Config) ([]*models.VelocityPhase, error) {
	corrector := correction.NewCorrector()
	settings := correctionConfig(c)
	venc := vencFromConfig(c)

	out := make([]*models.VelocityPhase, len(phases))
	for i, p := range phases {
		corrected, err := corrector.CorrectVENC(p, venc, settings)
		if err != nil {
			return nil, err
		}
		out[i] = corrected
	}
	return out, nil
}

// writeCurve saves the CSV and plot of a time-velocity curve into dir.
func writeCurve(cmd *cobra.Command, curve *models.TimeVelocityCurve, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	csvPath := filepath.Join(dir, "flow_curve.csv")
	if err := flow.WriteCSV(curve, csvPath); err != nil {
		return err
	}
	plotPath := filepath.Join(dir, "flow_curve.png")
	if err := flow.SavePlot(curve, plotPath); err != nil {
		return err
	}

	chartPath := filepath.Join(dir, "flow_curve.html")
	if err := flow.SaveChart(curve, chartPath); err != nil {
		return err
	}

	cmd.Printf("Time-velocity curve saved to: %s\n", csvPath)
	cmd.Printf("Plots saved to: %s and %s\n", plotPath, chartPath)
	return nil
}

func printCurve(cmd *cobra.Command, curve *models.TimeVelocityCurve) {
	cmd.Printf("\nFlow Quantification:\n")
	cmd.Printf("====================\n")
	cmd.Printf("Phases: %d (%.1f ms apart)\n", len(curve.Measurements), curve.TemporalResolution)
	cmd.Printf("Stroke volume: %.2f mL\n", curve.StrokeVolume)
	cmd.Printf("Regurgitant volume: %.2f mL\n", curve.RegurgitantVolume)
	cmd.Printf("Net volume: %.2f mL\n", curve.NetVolume)
	cmd.Printf("Regurgitant fraction: %.1f%%\n", curve.RegurgitantFraction)
	cmd.Printf("Peak velocity: %.1f cm/s\n", curve.PeakVelocity)
	cmd.Printf("Peak pressure gradient: %.2f mmHg\n", curve.PressureGradient)
	if curve.HeartRate > 0 {
		cmd.Printf("Heart rate: %.0f bpm\n", curve.HeartRate)
	}
}

// saveCine plays the cached phases through the navigator and writes the
// speed through the middle axial slice of every frame as a PNG. With looping
// enabled in the playback section the cycle is played cycles times.
func saveCine(cmd *cobra.Command, cache *playback.PhaseCache, dir string, velocityRange float64, cycles int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating frame directory: %w", err)
	}

	nav, err := playback.NewTemporalNavigator(cache)
	if err != nil {
		return err
	}
	nav.SetLooping(cfg.Playback.Loop)
	if !cfg.Playback.Loop || cycles < 1 {
		cycles = 1
	}
	total := cycles * cache.TotalPhases()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := 0
	show := func(phase *models.VelocityPhase) error {
		viewer, err := visualization.NewViewer(phase)
		if err != nil {
			return err
		}
		if velocityRange > 0 {
			if err := viewer.SetVelocityRange(velocityRange); err != nil {
				return err
			}
		}
		if err := viewer.SetScale(4); err != nil {
			return err
		}
		img, err := viewer.ExtractSlice("z", phase.Velocity.Dims[2]/2, visualization.Speed)
		if err != nil {
			return err
		}
		name := filepath.Join(dir, fmt.Sprintf("frame_%04d_phase_%02d.png", frames, phase.PhaseIndex))
		if err := viewer.SaveSlice(img, name); err != nil {
			return err
		}
		frames++
		if frames == total {
			cancel()
		}
		return nil
	}

	first, err := nav.CurrentPhase()
	if err != nil {
		return err
	}
	if err := show(first); err != nil {
		return err
	}
	if err := nav.Play(cfg.Playback.FPS); err != nil {
		return err
	}
	if err := nav.Run(ctx, show); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	nav.Stop()

	stats := cache.Stats()
	log.Infof("cine: %d frames, cache hits %d, misses %d, evictions %d", frames, stats.Hits, stats.Misses, stats.Evictions)
	cmd.Printf("%d cine frames saved to: %s\n", frames, dir)
	return nil
}
