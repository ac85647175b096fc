package correction

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// PolynomialTerms lists the exponents (i, j, k) of every monomial
// x^i y^j z^k with i+j+k ≤ order, lowest total degree first. There are
// (order+1)(order+2)(order+3)/6 of them.
func PolynomialTerms(order int) [][3]int {
	if order < 0 {
		return nil
	}
	terms := make([][3]int, 0, (order+1)*(order+2)*(order+3)/6)
	for degree := 0; degree <= order; degree++ {
		for i := degree; i >= 0; i-- {
			for j := degree - i; j >= 0; j-- {
				terms = append(terms, [3]int{i, j, degree - i - j})
			}
		}
	}
	return terms
}

// normalizedCoord maps voxel index c on an axis of n voxels into [-1, 1].
func normalizedCoord(c, n int) float64 {
	if n < 2 {
		return 0
	}
	return 2*float64(c)/float64(n-1) - 1
}

// basis evaluates every monomial of terms at (x, y, z) into out.
func basis(terms [][3]int, order int, x, y, z float64, out []float64) {
	var px, py, pz [5]float64
	px[0], py[0], pz[0] = 1, 1, 1
	for d := 1; d <= order; d++ {
		px[d] = px[d-1] * x
		py[d] = py[d-1] * y
		pz[d] = pz[d-1] * z
	}
	for t, e := range terms {
		out[t] = px[e[0]] * py[e[1]] * pz[e[2]]
	}
}

// FitPolynomial fits a polynomial of the given order in normalised grid
// coordinates to values at the voxels selected by mask, by least squares.
//
// The normal equations AᵀA c = Aᵀb are accumulated one sample at a time and
// solved by Gaussian elimination with partial pivoting. When the mask selects
// fewer voxels than there are terms the fit is skipped and all-zero
// coefficients are returned.
func FitPolynomial(values []float64, g models.Geometry, mask []bool, order int) ([]float64, error) {
	const op = "correction.FitPolynomial"

	if order < 1 || order > 4 {
		return nil, flowerr.New(flowerr.InvalidInput, op, "polynomial order must be in [1,4], got %d", order)
	}
	if len(values) != g.NumVoxels() || len(mask) != len(values) {
		return nil, flowerr.New(flowerr.InvalidInput, op,
			"%d values and %d mask entries for %d voxels", len(values), len(mask), g.NumVoxels())
	}

	terms := PolynomialTerms(order)
	n := len(terms)
	coeffs := make([]float64, n)

	if countMask(mask) < n {
		return coeffs, nil
	}

	ata := mat.NewSymDense(n, nil)
	atb := make([]float64, n)
	row := make([]float64, n)
	rowVec := mat.NewVecDense(n, row)

	for idx, inMask := range mask {
		if !inMask {
			continue
		}
		i, j, k := g.Coords(idx)
		basis(terms, order,
			normalizedCoord(i, g.Dims[0]),
			normalizedCoord(j, g.Dims[1]),
			normalizedCoord(k, g.Dims[2]),
			row)
		ata.SymRankOne(ata, 1, rowVec)
		floats.AddScaled(atb, values[idx], row)
	}

	system := make([][]float64, n)
	for r := 0; r < n; r++ {
		system[r] = make([]float64, n)
		for c := 0; c < n; c++ {
			system[r][c] = ata.At(r, c)
		}
	}

	coeffs = solveWithGaussianElimination(system, atb)
	for _, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, flowerr.New(flowerr.InternalError, op, "background fit did not converge")
		}
	}
	return coeffs, nil
}

// EvaluatePolynomial evaluates fitted coefficients at normalised (x, y, z).
func EvaluatePolynomial(coeffs []float64, order int, x, y, z float64) float64 {
	terms := PolynomialTerms(order)
	row := make([]float64, len(terms))
	basis(terms, order, x, y, z, row)
	return floats.Dot(coeffs, row)
}

// EvaluateBackground evaluates fitted coefficients at every voxel of g.
func EvaluateBackground(coeffs []float64, g models.Geometry, order int) []float64 {
	terms := PolynomialTerms(order)
	row := make([]float64, len(terms))
	out := make([]float64, g.NumVoxels())
	for idx := range out {
		i, j, k := g.Coords(idx)
		basis(terms, order,
			normalizedCoord(i, g.Dims[0]),
			normalizedCoord(j, g.Dims[1]),
			normalizedCoord(k, g.Dims[2]),
			row)
		out[idx] = floats.Dot(coeffs, row)
	}
	return out
}

// solveWithGaussianElimination solves matrix·x = target with partial
// pivoting. Neither argument is modified.
func solveWithGaussianElimination(matrix [][]float64, target []float64) []float64 {
	n := len(target)
	solution := make([]float64, n)

	a := make([][]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = make([]float64, n)
		copy(a[i], matrix[i])
		b[i] = target[i]
	}

	// Forward elimination with partial pivoting
	for i := 0; i < n; i++ {
		maxRow := i
		for j := i + 1; j < n; j++ {
			if math.Abs(a[j][i]) > math.Abs(a[maxRow][i]) {
				maxRow = j
			}
		}
		if maxRow != i {
			a[i], a[maxRow] = a[maxRow], a[i]
			b[i], b[maxRow] = b[maxRow], b[i]
		}

		pivot := a[i][i]
		if math.Abs(pivot) < 1e-10 {
			// near-singular: regularise the pivot
			a[i][i] += 1e-6
			pivot = a[i][i]
		}

		for j := i; j < n; j++ {
			a[i][j] /= pivot
		}
		b[i] /= pivot

		for j := i + 1; j < n; j++ {
			factor := a[j][i]
			for k := i; k < n; k++ {
				a[j][k] -= factor * a[i][k]
			}
			b[j] -= factor * b[i]
		}
	}

	// Back substitution
	for i := n - 1; i >= 0; i-- {
		solution[i] = b[i]
		for j := i + 1; j < n; j++ {
			solution[i] -= a[i][j] * solution[j]
		}
	}

	return solution
}
