// Package config provides configuration loading and management for flow4d.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/bitmark-inc/logger"
	"gopkg.in/yaml.v3"

	"flow4d/pkg/flowerr"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many phases are assembled in parallel
		NumCores int `yaml:"numCores"`

		// TemporalResolution is the phase spacing in ms. Zero derives it
		// from trigger times.
		TemporalResolution float64 `yaml:"temporalResolution"`

		// SignedEncoding selects signed phase pixel scaling
		SignedEncoding bool `yaml:"signedEncoding"`

		// VENC is the velocity encoding limit per axis in cm/s
		VENC struct {
			X float64 `yaml:"x"`
			Y float64 `yaml:"y"`
			Z float64 `yaml:"z"`
		} `yaml:"venc"`
	} `yaml:"processing"`

	// Phase correction parameters
	Correction struct {
		// Aliasing enables phase-wrap unwrapping
		Aliasing bool `yaml:"aliasing"`

		// EddyCurrent enables background polynomial subtraction
		EddyCurrent bool `yaml:"eddyCurrent"`

		// Maxwell is accepted but has no effect
		Maxwell bool `yaml:"maxwell"`

		// PolynomialOrder of the eddy current background fit (1-4)
		PolynomialOrder int `yaml:"polynomialOrder"`

		// AliasingThreshold is the jump size, as a fraction of VENC, that
		// counts as a wrap
		AliasingThreshold float64 `yaml:"aliasingThreshold"`
	} `yaml:"correction"`

	// Flow quantification parameters
	Flow struct {
		// Interpolation is "trilinear" or "nearest"
		Interpolation string `yaml:"interpolation"`

		// MinSamples is the number of in-bounds samples a measurement needs
		MinSamples int `yaml:"minSamples"`

		// Radius of the measurement disk in mm
		Radius float64 `yaml:"radius"`

		// SampleSpacing between disk samples in mm
		SampleSpacing float64 `yaml:"sampleSpacing"`
	} `yaml:"flow"`

	// Vessel wall analysis parameters
	Vessel struct {
		// Viscosity of blood in Pa·s
		Viscosity float64 `yaml:"viscosity"`

		// Density of blood in kg/m³
		Density float64 `yaml:"density"`

		// WallSamplingVoxels is how far inside the wall velocity is sampled,
		// in multiples of the smallest voxel edge
		WallSamplingVoxels float64 `yaml:"wallSamplingVoxels"`
	} `yaml:"vessel"`

	// Cine playback parameters
	Playback struct {
		// WindowSize is the number of phases kept in memory
		WindowSize int `yaml:"windowSize"`

		// FPS is the playback frame rate
		FPS float64 `yaml:"fps"`

		// Loop restarts playback at the first phase
		Loop bool `yaml:"loop"`
	} `yaml:"playback"`

	// Output parameters
	Output struct {
		// Directory receives CSV, plots and frames
		Directory string `yaml:"directory"`

		// SaveFrames writes one cine frame per phase
		SaveFrames bool `yaml:"saveFrames"`

		// Verbose prints progress to stdout
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Directory for log files
		Directory string `yaml:"directory"`

		// File name of the active log
		File string `yaml:"file"`

		// Size in bytes before the log rotates
		Size int `yaml:"size"`

		// Count of rotated logs to keep
		Count int `yaml:"count"`

		// Console mirrors log output to the terminal
		Console bool `yaml:"console"`

		// Levels maps a logger tag to its level
		Levels map[string]string `yaml:"levels"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.TemporalResolution = 0
	cfg.Processing.SignedEncoding = true
	cfg.Processing.VENC.X = 150
	cfg.Processing.VENC.Y = 150
	cfg.Processing.VENC.Z = 150

	// Set default correction parameters
	cfg.Correction.Aliasing = true
	cfg.Correction.EddyCurrent = true
	cfg.Correction.Maxwell = false
	cfg.Correction.PolynomialOrder = 1
	cfg.Correction.AliasingThreshold = 0.8

	// Set default flow parameters
	cfg.Flow.Interpolation = "trilinear"
	cfg.Flow.MinSamples = 1
	cfg.Flow.Radius = 12
	cfg.Flow.SampleSpacing = 0.5

	// Set default vessel parameters
	cfg.Vessel.Viscosity = 0.004
	cfg.Vessel.Density = 1060
	cfg.Vessel.WallSamplingVoxels = 1.5

	// Set default playback parameters
	cfg.Playback.WindowSize = 5
	cfg.Playback.FPS = 10
	cfg.Playback.Loop = true

	// Set default output parameters
	cfg.Output.Directory = "flow4d_output"
	cfg.Output.SaveFrames = false
	cfg.Output.Verbose = true

	// Set default logging parameters
	cfg.Logging.Directory = "log"
	cfg.Logging.File = "flow4d.log"
	cfg.Logging.Size = 1048576
	cfg.Logging.Count = 10
	cfg.Logging.Console = false
	cfg.Logging.Levels = map[string]string{
		logger.DefaultTag: "info",
	}

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations that no component could run with
func (c *Config) Validate() error {
	const op = "config.Validate"

	if c.Processing.NumCores < 1 {
		return flowerr.New(flowerr.InvalidInput, op, "numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if c.Processing.TemporalResolution < 0 {
		return flowerr.New(flowerr.InvalidInput, op, "temporalResolution must not be negative")
	}
	if c.Processing.VENC.X <= 0 || c.Processing.VENC.Y <= 0 || c.Processing.VENC.Z <= 0 {
		return flowerr.New(flowerr.InvalidInput, op, "venc must be positive on every axis")
	}
	if c.Correction.PolynomialOrder < 1 || c.Correction.PolynomialOrder > 4 {
		return flowerr.New(flowerr.InvalidInput, op, "polynomialOrder must be in [1,4], got %d", c.Correction.PolynomialOrder)
	}
	if c.Correction.AliasingThreshold <= 0 || c.Correction.AliasingThreshold > 1 {
		return flowerr.New(flowerr.InvalidInput, op, "aliasingThreshold must be in (0,1], got %g", c.Correction.AliasingThreshold)
	}
	switch c.Flow.Interpolation {
	case "", "trilinear", "nearest":
	default:
		return flowerr.New(flowerr.InvalidInput, op, "unknown interpolation %q", c.Flow.Interpolation)
	}
	if c.Flow.MinSamples < 1 {
		return flowerr.New(flowerr.InvalidInput, op, "minSamples must be at least 1")
	}
	if c.Flow.Radius <= 0 || c.Flow.SampleSpacing <= 0 {
		return flowerr.New(flowerr.InvalidInput, op, "flow radius and sampleSpacing must be positive")
	}
	if c.Vessel.Viscosity <= 0 || c.Vessel.Density <= 0 || c.Vessel.WallSamplingVoxels <= 0 {
		return flowerr.New(flowerr.InvalidInput, op, "vessel viscosity, density and wallSamplingVoxels must be positive")
	}
	if c.Playback.WindowSize < 1 {
		return flowerr.New(flowerr.InvalidInput, op, "windowSize must be at least 1, got %d", c.Playback.WindowSize)
	}
	if c.Playback.FPS <= 0 {
		return flowerr.New(flowerr.InvalidInput, op, "fps must be positive")
	}
	return nil
}

// LoggerConfiguration converts the logging section for logger.Initialise
func (c *Config) LoggerConfiguration() logger.Configuration {
	levels := make(map[string]string, len(c.Logging.Levels))
	for tag, level := range c.Logging.Levels {
		levels[tag] = level
	}
	if _, ok := levels[logger.DefaultTag]; !ok {
		levels[logger.DefaultTag] = "info"
	}
	return logger.Configuration{
		Directory: c.Logging.Directory,
		File:      c.Logging.File,
		Size:      c.Logging.Size,
		Count:     c.Logging.Count,
		Console:   c.Logging.Console,
		Levels:    levels,
	}
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
