package models

// VENC holds the velocity-encoding limit per axis in cm/s.
type VENC struct {
	X, Y, Z float64
}

// UniformVENC returns a VENC with the same value on every axis.
func UniformVENC(v float64) VENC {
	return VENC{X: v, Y: v, Z: v}
}

// Axis returns the VENC for component c (0=x, 1=y, 2=z).
func (v VENC) Axis(c int) float64 {
	switch c {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Max returns the largest per-axis VENC.
func (v VENC) Max() float64 {
	m := v.X
	if v.Y > m {
		m = v.Y
	}
	if v.Z > m {
		m = v.Z
	}
	return m
}

// VelocityPhase is one cardiac phase of a 4D flow acquisition: a velocity
// vector field in cm/s plus an optional co-registered magnitude image.
//
// A published phase is never edited in place. Corrections produce new values
// through Clone, and consumers of cached phases treat them as read-only.
type VelocityPhase struct {
	// Velocity is the 3-component velocity field in cm/s
	Velocity *VectorField

	// Magnitude is the optional magnitude reference image
	Magnitude *ScalarField

	// PhaseIndex is the zero-based position in the cardiac cycle
	PhaseIndex int

	// TriggerTime is the time since the R-wave in milliseconds
	TriggerTime float64
}

// Geometry returns the grid the velocity field lives on.
func (p *VelocityPhase) Geometry() Geometry {
	if p == nil || p.Velocity == nil {
		return Geometry{}
	}
	return p.Velocity.Geometry
}

// Clone returns a deep copy of the phase.
func (p *VelocityPhase) Clone() *VelocityPhase {
	if p == nil {
		return nil
	}
	return &VelocityPhase{
		Velocity:    p.Velocity.Clone(),
		Magnitude:   p.Magnitude.Clone(),
		PhaseIndex:  p.PhaseIndex,
		TriggerTime: p.TriggerTime,
	}
}

// MemoryUsage returns the approximate number of bytes held by the phase.
func (p *VelocityPhase) MemoryUsage() int64 {
	if p == nil {
		return 0
	}
	var n int64
	if p.Velocity != nil {
		n += int64(len(p.Velocity.Data)) * 8
	}
	if p.Magnitude != nil {
		n += int64(len(p.Magnitude.Data)) * 8
	}
	return n
}
