package operators

import (
	"fmt"

	"slicerecon/pkg/linop"
)

// MaskOperator multiplies a vector elementwise by a 0/1 mask. It is
// self-adjoint and restricts the influence of out-of-mask voxels on both the
// forward and adjoint paths without altering linearity elsewhere.
type MaskOperator struct {
	mask []float64
	n    int
}

// NewMaskOperator builds a mask operator of dimension n. A nil mask is the
// all-ones mask; otherwise the mask length must equal n.
func NewMaskOperator(mask []float64, n int) (*MaskOperator, error) {
	if n <= 0 {
		return nil, fmt.Errorf("mask dimension must be positive, got %d", n)
	}
	if mask != nil && len(mask) != n {
		return nil, fmt.Errorf("mask length %d does not match voxel count %d", len(mask), n)
	}
	return &MaskOperator{mask: mask, n: n}, nil
}

// Rows returns the operator dimension.
func (m *MaskOperator) Rows() int { return m.n }

// Cols returns the operator dimension.
func (m *MaskOperator) Cols() int { return m.n }

// Apply computes dst = M x. dst and x may alias.
func (m *MaskOperator) Apply(dst, x []float64) {
	linop.CheckApply(m, dst, x)
	if m.mask == nil {
		copy(dst, x)
		return
	}
	for i, w := range m.mask {
		dst[i] = w * x[i]
	}
}

// ApplyAdjoint computes dst = M* y. The mask is self-adjoint.
func (m *MaskOperator) ApplyAdjoint(dst, y []float64) {
	m.Apply(dst, y)
}
