// Package operators implements the building blocks of the slice acquisition
// model: the per-slice forward/adjoint operator, elementwise masking and the
// discrete gradient. All operators satisfy the linop.Operator contract.
package operators

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"slicerecon/internal/models"
	"slicerecon/pkg/linop"
)

// SliceOperator is the acquisition operator A of one slice: it warps the
// reconstruction volume through the slice's registration transform, blurs
// with the slice's oriented Gaussian PSF and evaluates at the slice's native
// pixel grid. The operator is exactly linear; forward and adjoint products
// share one precomputed weight table, so adjoint consistency holds to
// floating-point rounding.
//
// Pixels whose PSF support falls entirely outside the reconstruction grid
// produce zero (zero padding); their adjoint contribution is zero as well.
type SliceOperator struct {
	rows, cols int

	// Sparse rows in CSR form: row r covers weights[rowPtr[r]:rowPtr[r+1]]
	// over volume voxels colIdx[rowPtr[r]:rowPtr[r+1]].
	rowPtr  []int
	colIdx  []int
	weights []float64
}

// NewSliceOperator precomputes the oriented Gaussian weight table for one
// slice against the given volume grid. cov is the 3x3 PSF covariance in the
// volume's physical frame; alphaCut is the kernel cut-off in standard
// deviations along each grid axis.
func NewSliceOperator(s *models.Slice, v *models.Volume, cov *mat.SymDense, alphaCut float64) (*SliceOperator, error) {
	if s == nil || v == nil {
		return nil, fmt.Errorf("nil slice or volume")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if cov == nil {
		return nil, fmt.Errorf("PSF covariance must be 3x3")
	}
	if r, c := cov.Dims(); r != 3 || c != 3 {
		return nil, fmt.Errorf("PSF covariance must be 3x3, got %dx%d", r, c)
	}
	if alphaCut <= 0 {
		return nil, fmt.Errorf("alphaCut must be positive, got %g", alphaCut)
	}

	var invCov mat.Dense
	if err := invCov.Inverse(cov); err != nil {
		return nil, fmt.Errorf("PSF covariance is not invertible: %v", err)
	}

	// Precision of the Gaussian in continuous index coordinates:
	// Q = J^T Cov^-1 J with J the index-to-physical Jacobian.
	jac := mat.NewDense(3, 3, []float64{
		v.Spacing, 0, 0,
		0, v.Spacing, 0,
		0, 0, v.Spacing,
	})
	if v.Direction != nil {
		jac.Mul(v.Direction, jac)
	}
	var q mat.Dense
	q.Mul(jac.T(), &invCov)
	q.Mul(&q, jac)

	// Kernel support per index axis from the index-space covariance Q^-1.
	var covIdx mat.Dense
	if err := covIdx.Inverse(&q); err != nil {
		return nil, fmt.Errorf("PSF covariance is degenerate on the grid: %v", err)
	}
	var radius [3]int
	for a := 0; a < 3; a++ {
		va := covIdx.At(a, a)
		if va <= 0 || math.IsNaN(va) {
			return nil, fmt.Errorf("PSF covariance is not positive definite")
		}
		radius[a] = int(math.Ceil(alphaCut * math.Sqrt(va)))
		if radius[a] < 1 {
			radius[a] = 1
		}
	}

	var qv [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			qv[3*i+j] = q.At(i, j)
		}
	}

	op := &SliceOperator{
		rows:   s.NumVoxels(),
		cols:   v.NumVoxels(),
		rowPtr: make([]int, 1, s.NumVoxels()+1),
	}

	for j := 0; j < s.NY; j++ {
		for i := 0; i < s.NX; i++ {
			p := s.Transform.Apply(s.PhysicalPoint(float64(i), float64(j)))
			cx, cy, cz := v.ContinuousIndex(p)
			op.appendRow(v, cx, cy, cz, radius, qv)
		}
	}
	return op, nil
}

// appendRow gathers the normalized Gaussian weights of one slice pixel over
// the in-bounds voxels of its support box.
func (op *SliceOperator) appendRow(v *models.Volume, cx, cy, cz float64, radius [3]int, q [9]float64) {
	x0, x1 := clampRange(cx, radius[0], v.NX)
	y0, y1 := clampRange(cy, radius[1], v.NY)
	z0, z1 := clampRange(cz, radius[2], v.NZ)

	start := len(op.weights)
	sum := 0.0
	for z := z0; z <= z1; z++ {
		dz := float64(z) - cz
		for y := y0; y <= y1; y++ {
			dy := float64(y) - cy
			for x := x0; x <= x1; x++ {
				dx := float64(x) - cx
				e := q[0]*dx*dx + q[4]*dy*dy + q[8]*dz*dz +
					2*(q[1]*dx*dy+q[2]*dx*dz+q[5]*dy*dz)
				w := math.Exp(-0.5 * e)
				op.colIdx = append(op.colIdx, v.Index(x, y, z))
				op.weights = append(op.weights, w)
				sum += w
			}
		}
	}
	if sum > 0 {
		for k := start; k < len(op.weights); k++ {
			op.weights[k] /= sum
		}
	}
	op.rowPtr = append(op.rowPtr, len(op.weights))
}

func clampRange(c float64, r, n int) (int, int) {
	lo := int(math.Ceil(c)) - r
	hi := int(math.Floor(c)) + r
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi
}

// Rows returns the slice voxel count.
func (op *SliceOperator) Rows() int { return op.rows }

// Cols returns the volume voxel count.
func (op *SliceOperator) Cols() int { return op.cols }

// Apply simulates the slice from a volume vector: dst = A x.
func (op *SliceOperator) Apply(dst, x []float64) {
	linop.CheckApply(op, dst, x)
	for r := 0; r < op.rows; r++ {
		v := 0.0
		for k := op.rowPtr[r]; k < op.rowPtr[r+1]; k++ {
			v += op.weights[k] * x[op.colIdx[k]]
		}
		dst[r] = v
	}
}

// ApplyAdjoint projects a slice-space residual back onto the volume grid:
// dst = A* y.
func (op *SliceOperator) ApplyAdjoint(dst, y []float64) {
	linop.CheckApplyAdjoint(op, dst, y)
	for i := range dst {
		dst[i] = 0
	}
	op.AccumulateAdjoint(dst, y)
}

// AccumulateAdjoint adds A* y into dst without zeroing it first. The
// augmented-system assembler uses it to reduce per-slice contributions into
// shared accumulators.
func (op *SliceOperator) AccumulateAdjoint(dst, y []float64) {
	linop.CheckApplyAdjoint(op, dst, y)
	for r := 0; r < op.rows; r++ {
		yr := y[r]
		if yr == 0 {
			continue
		}
		for k := op.rowPtr[r]; k < op.rowPtr[r+1]; k++ {
			dst[op.colIdx[k]] += op.weights[k] * yr
		}
	}
}
