package main

import (
	"fmt"
	"os"

	"github.com/bitmark-inc/logger"
	"github.com/spf13/cobra"

	"flow4d/pkg/config"
)

var (
	// configPath is the --config flag
	configPath string

	// numCores overrides processing.numCores when positive
	numCores int

	// outputDir overrides output.directory when set
	outputDir string

	// cfg is loaded before every command runs
	cfg *config.Config

	log *logger.L
)

// setupLogging starts the logger and returns its shutdown. Tests replace it.
var setupLogging = func(c *config.Config) (func(), error) {
	conf := c.LoggerConfiguration()
	if err := os.MkdirAll(conf.Directory, 0755); err != nil {
		return nil, fmt.Errorf("error creating log directory: %w", err)
	}
	if err := logger.Initialise(conf); err != nil {
		return nil, fmt.Errorf("error initialising logger: %w", err)
	}
	return logger.Finalise, nil
}

var stopLogging func()

var rootCmd = &cobra.Command{
	Use:   "flow4d",
	Short: "4D flow MRI hemodynamics",
	Long: `Assemble phase-contrast slices into velocity phases, correct aliasing
and eddy current offsets, measure flow through a plane and derive wall
shear stress, vorticity and energy metrics.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if numCores > 0 {
			loaded.Processing.NumCores = numCores
		}
		if outputDir != "" {
			loaded.Output.Directory = outputDir
		}
		cfg = loaded

		stop, err := setupLogging(cfg)
		if err != nil {
			return err
		}
		stopLogging = stop
		log = logger.New("flow4d")
		log.Infof("configuration: %s", configPath)
		return nil
	},
}

func init() {
	cobra.OnFinalize(func() {
		if stopLogging != nil {
			stopLogging()
			stopLogging = nil
		}
	})

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "flow4d.yaml", "Configuration file (defaults are used if it does not exist)")
	rootCmd.PersistentFlags().IntVar(&numCores, "cores", 0, "Number of phases to process in parallel (default: from config)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: from config)")
}

// progressPrinter reports progress on the command's output when verbose.
func progressPrinter(cmd *cobra.Command) func(float64, string) {
	if !cfg.Output.Verbose {
		return nil
	}
	return func(progress float64, status string) {
		cmd.Printf("[%3.0f%%] %s\n", progress*100, status)
	}
}
