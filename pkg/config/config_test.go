package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitmark-inc/logger"
	"github.com/google/go-cmp/cmp"

	"flow4d/pkg/flowerr"
)

// TestDefaultConfigIsValid verifies that the defaults pass validation
func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}
}

// TestSaveLoadRoundTrip verifies that a saved config loads back unchanged
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "flow4d.yaml")

	cfg := DefaultConfig()
	cfg.Processing.NumCores = 3
	cfg.Processing.VENC.Z = 250
	cfg.Correction.PolynomialOrder = 2
	cfg.Flow.Interpolation = "nearest"
	cfg.Playback.WindowSize = 7

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
}

// TestLoadMissingFile verifies that a missing file yields the defaults
func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("Expected defaults (-want +got):\n%s", diff)
	}
}

// TestLoadRejectsInvalidValues verifies that partial YAML is merged over
// the defaults and then validated
func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"order too high", "correction:\n  polynomialOrder: 5\n"},
		{"zero threshold", "correction:\n  aliasingThreshold: 0\n"},
		{"zero window", "playback:\n  windowSize: 0\n"},
		{"bad interpolation", "flow:\n  interpolation: cubic\n"},
		{"negative venc", "processing:\n  venc:\n    x: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cfg.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfig(path)
			if flowerr.KindOf(err) != flowerr.InvalidInput {
				t.Errorf("Expected InvalidInput, got %v", err)
			}
		})
	}
}

// TestLoggerConfiguration verifies the mapping to the logger package
func TestLoggerConfiguration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Levels = map[string]string{"assembler": "debug"}

	lc := cfg.LoggerConfiguration()
	if lc.File != "flow4d.log" || lc.Count != 10 {
		t.Errorf("Unexpected logger configuration: %+v", lc)
	}
	if lc.Levels[logger.DefaultTag] != "info" {
		t.Errorf("Expected default level info, got %q", lc.Levels[logger.DefaultTag])
	}
	if lc.Levels["assembler"] != "debug" {
		t.Errorf("Expected assembler level debug, got %q", lc.Levels["assembler"])
	}
}

// TestLoadManifest verifies path resolution and plane parsing
func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	content := `phases:
  - index: 0
    magnitude: [mag/0.dcm]
    vx: [vx/0.dcm]
    vy: [vy/0.dcm]
    vz: [/abs/vz/0.dcm]
plane:
  center: [1, 2, 3]
  normal: [0, 0, 1]
  radius: 8
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}

	if len(m.Phases) != 1 {
		t.Fatalf("Expected 1 phase, got %d", len(m.Phases))
	}
	if got := m.Phases[0].Vx[0]; got != filepath.Join(dir, "vx/0.dcm") {
		t.Errorf("Relative path not resolved: %s", got)
	}
	if got := m.Phases[0].Vz[0]; got != "/abs/vz/0.dcm" {
		t.Errorf("Absolute path changed: %s", got)
	}
	if m.Plane.UsesPoints() || m.Plane.Radius != 8 {
		t.Errorf("Unexpected plane %+v", m.Plane)
	}
}

// TestManifestValidate verifies manifest checks
func TestManifestValidate(t *testing.T) {
	plane := ManifestPlane{Center: []float64{0, 0, 0}, Normal: []float64{0, 0, 1}}

	tests := []struct {
		name string
		m    Manifest
		ok   bool
	}{
		{"valid", Manifest{Phases: []ManifestPhase{{Index: 0}}, Plane: plane}, true},
		{"no phases", Manifest{Plane: plane}, false},
		{"duplicate", Manifest{Phases: []ManifestPhase{{Index: 1}, {Index: 1}}, Plane: plane}, false},
		{"short normal", Manifest{Phases: []ManifestPhase{{Index: 0}}, Plane: ManifestPlane{Center: []float64{0, 0, 0}, Normal: []float64{1}}}, false},
		{"two points", Manifest{Phases: []ManifestPhase{{Index: 0}}, Plane: ManifestPlane{Points: [][]float64{{0, 0, 0}, {1, 0, 0}}}}, false},
		{"three points", Manifest{Phases: []ManifestPhase{{Index: 0}}, Plane: ManifestPlane{Points: [][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.ok && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
