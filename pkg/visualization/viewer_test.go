package visualization

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"flow4d/internal/phantom"
)

// TestNewViewer verifies that the viewer picks up the phase dimensions
func TestNewViewer(t *testing.T) {
	g := phantom.Box([3]int{6, 4, 3}, [3]float64{1, 1, 2})
	viewer, err := NewViewer(phantom.UniformFlow(g, r3.Vec{Z: 40}, 0))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	if viewer.width != 6 || viewer.height != 4 || viewer.depth != 3 {
		t.Errorf("Expected dimensions 6x4x3, got %dx%dx%d", viewer.width, viewer.height, viewer.depth)
	}
	if viewer.velocityRange != 40 {
		t.Errorf("Expected velocity range 40, got %f", viewer.velocityRange)
	}
	if viewer.magnitudeMax != phantom.TissueSignal {
		t.Errorf("Expected magnitude max %f, got %f", phantom.TissueSignal, viewer.magnitudeMax)
	}

	if _, err := NewViewer(nil); err == nil {
		t.Error("Expected error for nil phase, got nil")
	}
}

// TestParseChannel verifies channel names round trip
func TestParseChannel(t *testing.T) {
	for _, c := range []Channel{Speed, VelocityX, VelocityY, VelocityZ, Magnitude} {
		got, err := ParseChannel(c.String())
		if err != nil || got != c {
			t.Errorf("ParseChannel(%q) = %v, %v", c.String(), got, err)
		}
	}
	if got, err := ParseChannel("VZ"); err != nil || got != VelocityZ {
		t.Errorf("Expected case-insensitive match, got %v, %v", got, err)
	}
	if _, err := ParseChannel("pressure"); err == nil {
		t.Error("Expected error for unknown channel, got nil")
	}
}

// TestExtractSliceIntensities verifies the grey scale mapping of each channel
func TestExtractSliceIntensities(t *testing.T) {
	g := phantom.Geometry(5, 1)
	viewer, err := NewViewer(phantom.UniformFlow(g, r3.Vec{Z: 10}, 0))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	tests := []struct {
		channel Channel
		want    uint16
	}{
		{Speed, 65535},
		{VelocityX, 32768},
		{VelocityY, 32768},
		{VelocityZ, 65535},
		{Magnitude, 65535},
	}
	for _, tt := range tests {
		img, err := viewer.ExtractSlice("z", 2, tt.channel)
		if err != nil {
			t.Fatalf("Failed to extract %s slice: %v", tt.channel, err)
		}
		gray16Img, ok := img.(*image.Gray16)
		if !ok {
			t.Fatalf("Expected *image.Gray16, got %T", img)
		}
		if got := gray16Img.Gray16At(2, 2).Y; got != tt.want {
			t.Errorf("%s: expected %d at center, got %d", tt.channel, tt.want, got)
		}
	}

	// a fixed range shared across phases
	if err := viewer.SetVelocityRange(20); err != nil {
		t.Fatalf("Failed to set range: %v", err)
	}
	img, err := viewer.ExtractSlice("z", 0, VelocityZ)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	if got := img.(*image.Gray16).Gray16At(0, 0).Y; got != 49151 {
		t.Errorf("Expected 49151 at three quarters of the range, got %d", got)
	}
	if err := viewer.SetVelocityRange(0); err == nil {
		t.Error("Expected error for zero range, got nil")
	}
}

// TestExtractSliceStillField verifies zero velocity draws as mid grey
func TestExtractSliceStillField(t *testing.T) {
	viewer, err := NewViewer(phantom.UniformFlow(phantom.Geometry(3, 1), r3.Vec{}, 0))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	img, err := viewer.ExtractSlice("y", 1, VelocityX)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	if got := img.(*image.Gray16).Gray16At(1, 1).Y; got != 32768 {
		t.Errorf("Expected mid grey, got %d", got)
	}

	img, err = viewer.ExtractSlice("y", 1, Speed)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	if got := img.(*image.Gray16).Gray16At(1, 1).Y; got != 0 {
		t.Errorf("Expected black speed, got %d", got)
	}
}

// TestExtractSliceAxes verifies slice dimensions and argument checks
func TestExtractSliceAxes(t *testing.T) {
	width, height, depth := 6, 4, 3
	g := phantom.Box([3]int{width, height, depth}, [3]float64{1, 1, 1})
	phase := phantom.UniformFlow(g, r3.Vec{X: 5}, 0)
	viewer, err := NewViewer(phase)
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	tests := []struct {
		axis     string
		position int
		dx, dy   int
	}{
		{"x", width / 2, depth, height},
		{"Y", height / 2, width, depth},
		{"z", depth - 1, width, height},
	}
	for _, tt := range tests {
		img, err := viewer.ExtractSlice(tt.axis, tt.position, Speed)
		if err != nil {
			t.Fatalf("Failed to extract %s slice: %v", tt.axis, err)
		}
		b := img.Bounds()
		if b.Dx() != tt.dx || b.Dy() != tt.dy {
			t.Errorf("Expected %s slice dimensions %dx%d, got %dx%d", tt.axis, tt.dx, tt.dy, b.Dx(), b.Dy())
		}
	}

	if _, err := viewer.ExtractSlice("invalid", 0, Speed); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice("z", depth, Speed); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := viewer.ExtractSlice("z", -1, Speed); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
	if _, err := viewer.ExtractSlice("z", 0, Channel(9)); err == nil {
		t.Error("Expected error for unknown channel, got nil")
	}

	phase.Magnitude = nil
	if _, err := viewer.ExtractSlice("z", 0, Magnitude); err == nil {
		t.Error("Expected error for missing magnitude, got nil")
	}
}

// TestSaveSlice verifies that slices can be saved to disk
func TestSaveSlice(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	tempDir := t.TempDir()

	viewer, err := NewViewer(phantom.Poiseuille(phantom.Geometry(8, 1), 3, 50, 0))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}
	img, err := viewer.ExtractSlice("z", 4, VelocityZ)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}

	jpgName := filepath.Join(tempDir, "test_slice.jpg")
	if err := viewer.SaveSlice(img, jpgName); err != nil {
		t.Fatalf("Failed to save slice: %v", err)
	}
	if _, err := os.Stat(jpgName); os.IsNotExist(err) {
		t.Errorf("Saved file does not exist: %s", jpgName)
	}

	if err := viewer.SetScale(3); err != nil {
		t.Fatalf("Failed to set scale: %v", err)
	}
	pngName := filepath.Join(tempDir, "test_slice.png")
	if err := viewer.SaveSlice(img, pngName); err != nil {
		t.Fatalf("Failed to save slice: %v", err)
	}
	f, err := os.Open(pngName)
	if err != nil {
		t.Fatalf("Failed to open saved slice: %v", err)
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("Failed to decode saved slice: %v", err)
	}
	if format != "png" || cfg.Width != 24 || cfg.Height != 24 {
		t.Errorf("Expected 24x24 png, got %dx%d %s", cfg.Width, cfg.Height, format)
	}

	if err := viewer.SetScale(0); err == nil {
		t.Error("Expected error for zero scale, got nil")
	}
	if err := viewer.SaveSlice(img, filepath.Join(tempDir, "slice.unknown")); err == nil {
		t.Error("Expected error for unsupported extension, got nil")
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	tempDir := t.TempDir()

	depth := 3
	g := phantom.Box([3]int{5, 5, depth}, [3]float64{1, 1, 1})
	viewer, err := NewViewer(phantom.UniformFlow(g, r3.Vec{Z: 10}, 0))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	outputDir := filepath.Join(tempDir, "slices")
	if err := viewer.SaveSliceSequence("z", Speed, outputDir); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}

	for z := 0; z < depth; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_speed_z_%03d.jpg", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	if err := viewer.SaveSliceSequence("invalid", Speed, outputDir); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}
