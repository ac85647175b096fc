// Package assembly builds velocity phases from per-component slice stacks.
//
// Each cardiac phase of a 4D flow acquisition arrives as up to four stacks of
// 2D slices: three orthogonal velocity encodings and an optional magnitude
// reference. The assembler reads the stacks through a SliceReader, scales the
// phase pixels into cm/s and composes a models.VelocityPhase.
package assembly

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/bitmark-inc/logger"
	"github.com/carbocation/pfx"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// Component identifies one image series of a phase.
type Component string

// Components of a 4D flow acquisition
const (
	Magnitude Component = "magnitude"
	Vx        Component = "vx"
	Vy        Component = "vy"
	Vz        Component = "vz"
)

// velocityComponents in axis order
var velocityComponents = [3]Component{Vx, Vy, Vz}

// FrameMatrix maps a phase index to the ordered slice references of each
// component.
type FrameMatrix map[int]map[Component][]string

// Phases returns the phase indices of the matrix in ascending order.
func (fm FrameMatrix) Phases() []int {
	out := make([]int, 0, len(fm))
	for p := range fm {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// SliceReader decodes a single slice from a source reference.
type SliceReader interface {
	ReadSlice(ref string) (*models.Slice, error)
}

// Assembler turns frame matrices into velocity phases.
type Assembler struct {
	reader   SliceReader
	numCores int
	progress models.ProgressFunc
	log      *logger.L
}

// NewAssembler creates an assembler that reads slices through reader and
// assembles up to numCores phases at once in AssembleAll.
func NewAssembler(reader SliceReader, numCores int) *Assembler {
	if numCores < 1 {
		numCores = 1
	}
	return &Assembler{
		reader:   reader,
		numCores: numCores,
		log:      logger.New("assembler"),
	}
}

// SetProgress registers an optional progress callback for AssembleAll.
// It must be set before the assembler is used.
func (a *Assembler) SetProgress(fn models.ProgressFunc) {
	a.progress = fn
}

// volume is one stacked component before scaling.
type volume struct {
	values      []float64
	geometry    models.Geometry
	triggerTime float64
}

// Assemble builds the velocity phase with the given index.
//
// Parameters:
//   - frames: Slice references per phase and component
//   - phase: Index of the phase to assemble
//   - venc: Velocity encoding limit per axis in cm/s
//   - signed: Whether phase pixels use a signed representation
//
// Returns:
//   - The assembled phase, or an InvalidInput, InconsistentData,
//     ParseFailed or InternalError failure
func (a *Assembler) Assemble(frames FrameMatrix, phase int, venc models.VENC, signed bool) (result *models.VelocityPhase, err error) {
	const op = "assembly.Assemble"
	defer flowerr.Recover(op, &err)

	if len(frames) == 0 {
		return nil, flowerr.New(flowerr.InvalidInput, op, "frame matrix is empty")
	}
	if a.reader == nil {
		return nil, flowerr.New(flowerr.InvalidInput, op, "no slice reader")
	}
	if venc.X <= 0 || venc.Y <= 0 || venc.Z <= 0 {
		return nil, flowerr.New(flowerr.InvalidInput, op, "venc must be positive, got %+v", venc)
	}

	components, ok := frames[phase]
	if !ok {
		return nil, flowerr.New(flowerr.InconsistentData, op, "phase %d is not in the frame matrix", phase)
	}
	for _, c := range velocityComponents {
		if len(components[c]) == 0 {
			return nil, flowerr.New(flowerr.InconsistentData, op, "phase %d is missing component %s", phase, c)
		}
	}

	var volumes [3]*volume
	for axis, c := range velocityComponents {
		vol, err := a.loadVolume(components[c])
		if err != nil {
			return nil, err
		}
		if axis > 0 && !vol.geometry.Matches(volumes[0].geometry) {
			return nil, flowerr.New(flowerr.InconsistentData, op,
				"phase %d: %s geometry %+v does not match %s geometry %+v",
				phase, c, vol.geometry, Vx, volumes[0].geometry)
		}
		volumes[axis] = vol
	}

	g := volumes[0].geometry
	field := models.NewVectorField(g)
	for axis, vol := range volumes {
		field.SetComponent(axis, ApplyVENCScaling(vol.values, venc.Axis(axis), signed))
	}

	result = &models.VelocityPhase{
		Velocity:    field,
		PhaseIndex:  phase,
		TriggerTime: volumes[0].triggerTime,
	}

	if refs := components[Magnitude]; len(refs) > 0 {
		vol, err := a.loadVolume(refs)
		if err != nil {
			return nil, err
		}
		if !vol.geometry.Matches(g) {
			return nil, flowerr.New(flowerr.InconsistentData, op,
				"phase %d: magnitude geometry does not match velocity geometry", phase)
		}
		result.Magnitude = &models.ScalarField{Geometry: g, Data: vol.values}
	}

	a.log.Debugf("phase %d: %dx%dx%d voxels, trigger %.1f ms, peak %.2f cm/s",
		phase, g.Dims[0], g.Dims[1], g.Dims[2], result.TriggerTime, field.MaxMagnitude())

	return result, nil
}

// AssembleAll assembles every phase in the frame matrix in parallel.
// Phases that fail are logged and skipped; the call fails only if no phase
// could be assembled. The result is ordered by phase index.
func (a *Assembler) AssembleAll(frames FrameMatrix, venc models.VENC, signed bool) ([]*models.VelocityPhase, error) {
	const op = "assembly.AssembleAll"

	if len(frames) == 0 {
		return nil, flowerr.New(flowerr.InvalidInput, op, "frame matrix is empty")
	}

	indices := frames.Phases()
	results := make([]*models.VelocityPhase, len(indices))
	failures := make([]error, len(indices))

	var mu sync.Mutex
	completed := 0

	var g errgroup.Group
	g.SetLimit(a.numCores)
	for slot, phase := range indices {
		slot, phase := slot, phase
		g.Go(func() error {
			p, err := a.Assemble(frames, phase, venc, signed)
			if err != nil {
				a.log.Warnf("skipping phase %d: %s", phase, err)
				failures[slot] = err
			} else {
				results[slot] = p
			}

			mu.Lock()
			completed++
			done := completed
			mu.Unlock()
			a.progress.Report(float64(done)/float64(len(indices)), fmt.Sprintf("assembled %d of %d phases", done, len(indices)))

			// per-phase failures are not propagated
			return nil
		})
	}
	_ = g.Wait()

	phases := make([]*models.VelocityPhase, 0, len(indices))
	var firstErr error
	for slot, p := range results {
		if p != nil {
			phases = append(phases, p)
		} else if firstErr == nil {
			firstErr = failures[slot]
		}
	}

	if len(phases) == 0 {
		return nil, flowerr.Wrap(flowerr.InconsistentData, op, firstErr, "none of %d phases could be assembled", len(indices))
	}

	a.log.Infof("assembled %d of %d phases", len(phases), len(indices))
	return phases, nil
}

// loadVolume reads and stacks an ordered list of slices.
func (a *Assembler) loadVolume(refs []string) (*volume, error) {
	const op = "assembly.loadVolume"

	slices := make([]*models.Slice, len(refs))
	for i, ref := range refs {
		s, err := a.reader.ReadSlice(ref)
		if err != nil {
			kind := flowerr.KindOf(err)
			if kind == 0 {
				kind = flowerr.ParseFailed
			}
			return nil, flowerr.Wrap(kind, op, pfx.Err(err), "reading %s", ref)
		}
		if s == nil || s.Width <= 0 || s.Height <= 0 || len(s.Pixels) != s.Width*s.Height {
			return nil, flowerr.New(flowerr.ParseFailed, op, "slice %s has no usable pixel data", ref)
		}
		if i > 0 && (s.Width != slices[0].Width || s.Height != slices[0].Height) {
			return nil, flowerr.New(flowerr.InconsistentData, op,
				"slice %s is %dx%d, expected %dx%d", ref, s.Width, s.Height, slices[0].Width, slices[0].Height)
		}
		slices[i] = s
	}

	first := slices[0]
	w, h := first.Width, first.Height
	values := make([]float64, 0, w*h*len(slices))
	for _, s := range slices {
		values = append(values, s.Pixels...)
	}

	return &volume{
		values:      values,
		geometry:    stackGeometry(slices),
		triggerTime: first.TriggerTime,
	}, nil
}

// stackGeometry derives the grid of a slice stack: in-plane spacing and
// orientation from the first slice, the slice axis from the row/column
// cross product and the slice gap from consecutive positions.
func stackGeometry(slices []*models.Slice) models.Geometry {
	first := slices[0]
	g := models.Geometry{
		Dims:      [3]int{first.Width, first.Height, len(slices)},
		Spacing:   [3]float64{first.PixelSpacing[0], first.PixelSpacing[1], first.Thickness},
		Origin:    first.Position,
		Direction: models.IdentityDirection(),
	}
	for a := 0; a < 2; a++ {
		if g.Spacing[a] <= 0 {
			g.Spacing[a] = 1
		}
	}

	row := r3.Vec{X: 1}
	col := r3.Vec{Y: 1}
	if first.HasOrientation() {
		o := first.Orientation
		row = r3.Unit(r3.Vec{X: o[0], Y: o[1], Z: o[2]})
		col = r3.Unit(r3.Vec{X: o[3], Y: o[4], Z: o[5]})
	}
	normal := r3.Cross(row, col)

	if len(slices) > 1 {
		p0 := r3.Vec{X: first.Position[0], Y: first.Position[1], Z: first.Position[2]}
		p1 := r3.Vec{X: slices[1].Position[0], Y: slices[1].Position[1], Z: slices[1].Position[2]}
		gap := r3.Dot(r3.Sub(p1, p0), normal)
		if math.Abs(gap) > 1e-6 {
			if gap < 0 {
				normal = r3.Scale(-1, normal)
			}
			g.Spacing[2] = math.Abs(gap)
		}
	}
	if g.Spacing[2] <= 0 {
		g.Spacing[2] = 1
	}

	g.Direction = [9]float64{
		row.X, col.X, normal.X,
		row.Y, col.Y, normal.Y,
		row.Z, col.Z, normal.Z,
	}
	return g
}
