package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"flow4d/internal/models"
	"flow4d/pkg/assembly"
	"flow4d/pkg/config"
	"flow4d/pkg/dicomsource"
	"flow4d/pkg/flow"
	"flow4d/pkg/playback"
)

var quantifyCmd = &cobra.Command{
	Use:   "quantify",
	Short: "Measure flow through a plane of a DICOM acquisition",
	Long: `Reads the slices listed in an acquisition manifest, assembles and
corrects every cardiac phase, and writes the time-velocity curve through the
manifest's plane as CSV and PNG.`,
	Args: cobra.NoArgs,
	RunE: runQuantify,
}

var (
	// manifestPath is a flag for the quantify command
	manifestPath string

	// cineCycles is the number of cine passes written when frames are saved
	cineCycles int
)

func init() {
	quantifyCmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Acquisition manifest (YAML)")
	quantifyCmd.Flags().IntVar(&cineCycles, "cycles", 1, "Cine passes to write when output.saveFrames is set")
	_ = quantifyCmd.MarkFlagRequired("manifest")

	rootCmd.AddCommand(quantifyCmd)
}

func runQuantify(cmd *cobra.Command, _ []string) error {
	startTime := time.Now()

	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	plane, err := manifestPlane(manifest, cfg)
	if err != nil {
		return err
	}

	assembler := assembly.NewAssembler(dicomsource.NewReader(), cfg.Processing.NumCores)
	assembler.SetProgress(progressPrinter(cmd))
	phases, err := assembler.AssembleAll(frameMatrix(manifest), vencFromConfig(cfg), cfg.Processing.SignedEncoding)
	if err != nil {
		return err
	}
	log.Infof("assembled %d of %d phases", len(phases), len(manifest.Phases))

	corrected, err := correctAll(phases, cfg)
	if err != nil {
		return err
	}

	fc, err := flowConfig(cfg)
	if err != nil {
		return err
	}
	quantifier := flow.NewQuantifier(fc)
	quantifier.SetProgress(progressPrinter(cmd))
	curve, err := quantifier.MeasureCurve(corrected, plane, cfg.Processing.TemporalResolution)
	if err != nil {
		return err
	}

	printCurve(cmd, curve)
	if err := writeCurve(cmd, curve, cfg.Output.Directory); err != nil {
		return err
	}

	if cfg.Output.SaveFrames {
		cache, err := playback.NewPhaseCache(len(corrected), cfg.Playback.WindowSize, func(i int) (*models.VelocityPhase, error) {
			return corrected[i], nil
		})
		if err != nil {
			return err
		}
		venc := vencFromConfig(cfg)
		if err := saveCine(cmd, cache, filepath.Join(cfg.Output.Directory, "frames"), venc.Max(), cineCycles); err != nil {
			return fmt.Errorf("error saving cine frames: %w", err)
		}
	}

	cmd.Printf("\nCompleted in %.2f seconds\n", time.Since(startTime).Seconds())
	return nil
}
