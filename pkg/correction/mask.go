package correction

import (
	"github.com/aybabtme/uniplot/histogram"

	"flow4d/internal/models"
)

// otsuBins is the histogram resolution used for thresholding.
const otsuBins = 256

// StationaryMask marks voxels of stationary tissue in the magnitude image.
//
// The image is split by Otsu's threshold and voxels above it form the tissue
// class. The class is then eroded by one voxel along every axis with more
// than one voxel, which drops partial-volume voxels at tissue boundaries.
// A constant image yields an empty mask.
func StationaryMask(magnitude *models.ScalarField) []bool {
	if magnitude == nil {
		return nil
	}
	n := len(magnitude.Data)
	mask := make([]bool, n)

	threshold, ok := OtsuThreshold(magnitude.Data)
	if !ok {
		return mask
	}
	for i, v := range magnitude.Data {
		mask[i] = v > threshold
	}

	return erode(mask, magnitude.Geometry)
}

// OtsuThreshold returns the intensity that maximises the between-class
// variance of values. The boolean is false when values has no spread.
func OtsuThreshold(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	hist := histogram.Hist(otsuBins, values)
	if hist.Max <= hist.Min || len(hist.Buckets) < 2 {
		return 0, false
	}

	total := 0.0
	sum := 0.0
	for _, b := range hist.Buckets {
		c := float64(b.Count)
		total += c
		sum += c * (b.Min + b.Max) / 2
	}
	if total == 0 {
		return 0, false
	}

	best := -1.0
	threshold := hist.Buckets[0].Max
	wB, sumB := 0.0, 0.0
	for _, b := range hist.Buckets[:len(hist.Buckets)-1] {
		c := float64(b.Count)
		wB += c
		sumB += c * (b.Min + b.Max) / 2
		wF := total - wB
		if wB == 0 {
			continue
		}
		if wF == 0 {
			break
		}
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = b.Max
		}
	}
	return threshold, true
}

// erode keeps a voxel only if its in-grid face neighbours along axes of
// extent > 1 are also set.
func erode(mask []bool, g models.Geometry) []bool {
	out := make([]bool, len(mask))
	for idx, set := range mask {
		if !set {
			continue
		}
		i, j, k := g.Coords(idx)
		keep := true
		for axis := 0; axis < 3 && keep; axis++ {
			if g.Dims[axis] < 2 {
				continue
			}
			for _, step := range [2]int{-1, 1} {
				ni, nj, nk := i, j, k
				switch axis {
				case 0:
					ni += step
				case 1:
					nj += step
				default:
					nk += step
				}
				if g.InBounds(ni, nj, nk) && !mask[g.Index(ni, nj, nk)] {
					keep = false
					break
				}
			}
		}
		out[idx] = keep
	}
	return out
}
