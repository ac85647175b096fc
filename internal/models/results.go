package models

// WSSResult summarises a single-phase wall shear stress computation. The
// per-vertex values are attached to the surface as WSS and WSSVector.
type WSSResult struct {
	PhaseIndex int
	MeanWSS    float64 // Pa
	MaxWSS     float64 // Pa

	// ValidVertices counts vertices whose inward sample fell inside the grid
	ValidVertices int
	TotalVertices int
}

// TimeAveragedWSSResult summarises TAWSS and OSI over the cycle.
type TimeAveragedWSSResult struct {
	Phases    int
	MeanTAWSS float64
	MaxTAWSS  float64
	MeanOSI   float64
	MaxOSI    float64
}

// RRTResult summarises relative residence time.
type RRTResult struct {
	MeanRRT float64
	MaxRRT  float64

	// Undefined counts vertices where (1-2·OSI)·TAWSS was not positive
	Undefined int
}

// VortexResult holds the vorticity and helicity fields of one phase.
type VortexResult struct {
	// Vorticity is ∇×V in 1/s
	Vorticity *VectorField

	// Helicity is the helicity density V·ω in m/s²
	Helicity *ScalarField

	MaxVorticity  float64
	MeanVorticity float64
}

// TurbulenceResult holds turbulent kinetic energy across phases.
type TurbulenceResult struct {
	// TKE per voxel in J/m³
	TKE *ScalarField

	MeanTKE float64
	MaxTKE  float64
	Phases  int
}

// KineticEnergyResult holds kinetic energy for one phase.
type KineticEnergyResult struct {
	// Energy per voxel in J/m³
	Energy *ScalarField

	// Total is the integral over the (masked) volume in J
	Total float64

	// Voxels is the number of voxels that contributed to Total
	Voxels int
}
