// Package visualization renders planar cuts of a velocity phase to 16-bit
// grey images for cine review.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/spatial/r3"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// Channel selects the quantity drawn into a slice.
type Channel int

// drawable channels
const (
	Speed Channel = iota
	VelocityX
	VelocityY
	VelocityZ
	Magnitude
)

var channelNames = []string{"speed", "vx", "vy", "vz", "magnitude"}

// String implements fmt.Stringer
func (c Channel) String() string {
	if c < 0 || int(c) >= len(channelNames) {
		return "*Unknown*"
	}
	return channelNames[c]
}

// ParseChannel converts a channel name such as "speed" or "vz".
func ParseChannel(s string) (Channel, error) {
	for i, name := range channelNames {
		if strings.EqualFold(s, name) {
			return Channel(i), nil
		}
	}
	return 0, flowerr.New(flowerr.InvalidInput, "visualization.ParseChannel",
		"unknown channel %q (must be one of %s)", s, strings.Join(channelNames, ", "))
}

// Viewer extracts 2D slices from one velocity phase.
//
// Velocity components map [-range, +range] onto the full grey scale, so zero
// velocity is mid grey; speed maps [0, range]. The range defaults to the
// phase's peak speed; fix it with SetVelocityRange to keep a cine sequence
// on one scale.
type Viewer struct {
	phase *models.VelocityPhase

	// dimensions of the volume
	width  int
	height int
	depth  int

	// velocityRange is the speed in cm/s drawn at full intensity
	velocityRange float64

	// magnitudeMax is the brightest magnitude value
	magnitudeMax float64

	// scale enlarges saved images by an integer factor
	scale int
}

// NewViewer creates a viewer over phase.
func NewViewer(phase *models.VelocityPhase) (*Viewer, error) {
	if phase == nil || phase.Velocity == nil {
		return nil, flowerr.New(flowerr.InvalidInput, "visualization.NewViewer", "phase has no velocity field")
	}
	g := phase.Velocity.Geometry
	v := &Viewer{
		phase:         phase,
		width:         g.Dims[0],
		height:        g.Dims[1],
		depth:         g.Dims[2],
		velocityRange: phase.Velocity.MaxMagnitude(),
		scale:         1,
	}
	if phase.Magnitude != nil {
		_, v.magnitudeMax = phase.Magnitude.Range()
	}
	return v, nil
}

// SetVelocityRange fixes the speed in cm/s drawn at full intensity.
func (v *Viewer) SetVelocityRange(cmPerSec float64) error {
	if !(cmPerSec > 0) {
		return flowerr.New(flowerr.InvalidInput, "visualization.SetVelocityRange", "range must be positive, got %g", cmPerSec)
	}
	v.velocityRange = cmPerSec
	return nil
}

// SetScale enlarges saved images by factor using nearest neighbour
// resampling. Extracted images are never scaled.
func (v *Viewer) SetScale(factor int) error {
	if factor < 1 {
		return flowerr.New(flowerr.InvalidInput, "visualization.SetScale", "scale must be at least 1, got %d", factor)
	}
	v.scale = factor
	return nil
}

// intensity maps voxel idx of the channel onto [0, 1].
func (v *Viewer) intensity(idx int, channel Channel) float64 {
	if channel == Magnitude {
		if v.magnitudeMax <= 0 {
			return 0
		}
		return v.phase.Magnitude.Data[idx] / v.magnitudeMax
	}

	vel := v.phase.Velocity.At(idx)
	if v.velocityRange <= 0 {
		if channel == Speed {
			return 0
		}
		return 0.5
	}
	switch channel {
	case Speed:
		return r3.Norm(vel) / v.velocityRange
	case VelocityX:
		return (vel.X/v.velocityRange + 1) / 2
	case VelocityY:
		return (vel.Y/v.velocityRange + 1) / 2
	default:
		return (vel.Z/v.velocityRange + 1) / 2
	}
}

func gray(value float64) color.Gray16 {
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, math.Round(value*65535))))}
}

// ExtractSlice extracts a 2D slice of the channel at position along axis
// ("x", "y" or "z").
func (v *Viewer) ExtractSlice(axis string, position int, channel Channel) (image.Image, error) {
	const op = "visualization.ExtractSlice"
	if channel < Speed || channel > Magnitude {
		return nil, flowerr.New(flowerr.InvalidInput, op, "unknown channel %d", channel)
	}
	if channel == Magnitude && v.phase.Magnitude == nil {
		return nil, flowerr.New(flowerr.InvalidInput, op, "phase %d has no magnitude image", v.phase.PhaseIndex)
	}
	if position < 0 {
		return nil, flowerr.New(flowerr.InvalidInput, op, "position must be non-negative")
	}

	g := v.phase.Velocity.Geometry
	var img *image.Gray16

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= v.width {
			return nil, flowerr.New(flowerr.InvalidInput, op, "position %d exceeds width %d", position, v.width)
		}
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.height))
		for y := 0; y < v.height; y++ {
			for z := 0; z < v.depth; z++ {
				img.SetGray16(z, y, gray(v.intensity(g.Index(position, y, z), channel)))
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= v.height {
			return nil, flowerr.New(flowerr.InvalidInput, op, "position %d exceeds height %d", position, v.height)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.depth))
		for z := 0; z < v.depth; z++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, z, gray(v.intensity(g.Index(x, position, z), channel)))
			}
		}

	case "z", "Z":
		// XY plane
		if position >= v.depth {
			return nil, flowerr.New(flowerr.InvalidInput, op, "position %d exceeds depth %d", position, v.depth)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.height))
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, y, gray(v.intensity(g.Index(x, y, position), channel)))
			}
		}

	default:
		return nil, flowerr.New(flowerr.InvalidInput, op, "invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice; the format follows the file
// extension (.png, .jpg, .tif and others).
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	if v.scale > 1 {
		b := img.Bounds()
		img = imaging.Resize(img, b.Dx()*v.scale, b.Dy()*v.scale, imaging.NearestNeighbor)
	}
	if err := imaging.Save(img, filename, imaging.JPEGQuality(90)); err != nil {
		return flowerr.Wrap(flowerr.InternalError, "visualization.SaveSlice", err, "save %s", filename)
	}
	return nil
}

// SaveSliceSequence extracts and saves every slice of the channel along
// axis into outputDir.
func (v *Viewer) SaveSliceSequence(axis string, channel Channel, outputDir string) error {
	const op = "visualization.SaveSliceSequence"
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return flowerr.Wrap(flowerr.InternalError, op, err, "create %s", outputDir)
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.width
	case "y", "Y":
		maxPos = v.height
	case "z", "Z":
		maxPos = v.depth
	default:
		return flowerr.New(flowerr.InvalidInput, op, "invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos, channel)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%s_%03d.jpg", channel, strings.ToLower(axis), pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
