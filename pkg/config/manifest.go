package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"flow4d/pkg/flowerr"
)

// Manifest lists the slice files of an acquisition and the plane to measure.
// Relative paths are resolved against the manifest's directory.
type Manifest struct {
	// Phases holds one entry per cardiac phase
	Phases []ManifestPhase `yaml:"phases"`

	// Plane is the measurement plane
	Plane ManifestPlane `yaml:"plane"`
}

// ManifestPhase lists the ordered slice paths of each component.
type ManifestPhase struct {
	Index     int      `yaml:"index"`
	Magnitude []string `yaml:"magnitude,omitempty"`
	Vx        []string `yaml:"vx"`
	Vy        []string `yaml:"vy"`
	Vz        []string `yaml:"vz"`
}

// ManifestPlane is either center/normal or three points on the plane.
// Zero radius or spacing falls back to the flow section of Config.
type ManifestPlane struct {
	Center        []float64   `yaml:"center,omitempty"`
	Normal        []float64   `yaml:"normal,omitempty"`
	Points        [][]float64 `yaml:"points,omitempty"`
	Radius        float64     `yaml:"radius,omitempty"`
	SampleSpacing float64     `yaml:"sampleSpacing,omitempty"`
}

// UsesPoints reports whether the plane is given by three points.
func (p ManifestPlane) UsesPoints() bool {
	return len(p.Points) > 0
}

// LoadManifest reads and checks an acquisition manifest
func LoadManifest(path string) (*Manifest, error) {
	const op = "config.LoadManifest"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.InvalidInput, op, err, "error reading manifest")
	}

	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, flowerr.Wrap(flowerr.ParseFailed, op, err, "error parsing manifest")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i := range m.Phases {
		ph := &m.Phases[i]
		for _, list := range [][]string{ph.Magnitude, ph.Vx, ph.Vy, ph.Vz} {
			for j, p := range list {
				if !filepath.IsAbs(p) {
					list[j] = filepath.Join(base, p)
				}
			}
		}
	}

	return m, nil
}

// Validate checks that phase indices are unique and the plane is well formed.
// Missing velocity components are left for the assembler to report.
func (m *Manifest) Validate() error {
	const op = "config.Manifest.Validate"

	if len(m.Phases) == 0 {
		return flowerr.New(flowerr.InvalidInput, op, "manifest has no phases")
	}
	seen := make(map[int]bool, len(m.Phases))
	for _, ph := range m.Phases {
		if ph.Index < 0 {
			return flowerr.New(flowerr.InvalidInput, op, "negative phase index %d", ph.Index)
		}
		if seen[ph.Index] {
			return flowerr.New(flowerr.InvalidInput, op, "duplicate phase index %d", ph.Index)
		}
		seen[ph.Index] = true
	}

	p := m.Plane
	if p.UsesPoints() {
		if len(p.Points) != 3 {
			return flowerr.New(flowerr.InvalidInput, op, "plane needs exactly 3 points, got %d", len(p.Points))
		}
		for i, pt := range p.Points {
			if len(pt) != 3 {
				return flowerr.New(flowerr.InvalidInput, op, "plane point %d: %s", i, vectorLengthMessage(len(pt)))
			}
		}
		return nil
	}
	if len(p.Center) != 3 {
		return flowerr.New(flowerr.InvalidInput, op, "plane center: %s", vectorLengthMessage(len(p.Center)))
	}
	if len(p.Normal) != 3 {
		return flowerr.New(flowerr.InvalidInput, op, "plane normal: %s", vectorLengthMessage(len(p.Normal)))
	}
	return nil
}

func vectorLengthMessage(n int) string {
	return fmt.Sprintf("expected 3 coordinates, got %d", n)
}
