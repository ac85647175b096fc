package models

// Slice represents a single decoded 2D scalar image belonging to one velocity
// component of one cardiac phase, as delivered by a SliceReader.
type Slice struct {
	// Pixels holds the raw stored pixel values in row-major order
	Pixels []float64

	// Width and Height are the in-plane dimensions in pixels
	Width  int
	Height int

	// Ref is the source reference the slice was read from (usually a path)
	Ref string

	// PixelSpacing is the physical pixel size in mm along a row (i) and
	// down a column (j)
	PixelSpacing [2]float64

	// Thickness is the physical thickness of the slice in mm
	Thickness float64

	// Position is the world position of the first transmitted pixel in mm
	Position [3]float64

	// Orientation holds the row and column direction cosines
	Orientation [6]float64

	// TriggerTime is the time since the R-wave in milliseconds
	TriggerTime float64
}

// HasOrientation reports whether the direction cosines were populated.
func (s *Slice) HasOrientation() bool {
	for _, v := range s.Orientation {
		if v != 0 {
			return true
		}
	}
	return false
}
