// Package linop defines the matrix-free linear operator abstraction used by
// the reconstruction solver. An operator is an opaque linear map exposing
// only its dimensions, a forward product and an adjoint product; it is never
// materialized as a dense or sparse matrix.
package linop

import "fmt"

// Operator is a linear map from R^Cols to R^Rows defined purely through
// matrix-vector products. Implementations must be exactly linear so the
// adjoint is well defined, and must satisfy <Apply(x), y> == <x, ApplyAdjoint(y)>
// up to floating-point rounding.
//
// Apply and ApplyAdjoint overwrite dst completely. They panic if a vector
// has the wrong length; dimension misuse is a programming error, not a
// runtime condition.
type Operator interface {
	// Rows is the output dimension of the forward product.
	Rows() int

	// Cols is the input dimension of the forward product.
	Cols() int

	// Apply computes dst = A x with len(x) == Cols and len(dst) == Rows.
	Apply(dst, x []float64)

	// ApplyAdjoint computes dst = A* y with len(y) == Rows and
	// len(dst) == Cols.
	ApplyAdjoint(dst, y []float64)
}

// CheckApply panics unless dst and x have the dimensions required by
// op.Apply. Implementations call it at the top of Apply.
func CheckApply(op Operator, dst, x []float64) {
	if len(x) != op.Cols() {
		panic(fmt.Sprintf("linop: input length %d, operator has %d columns", len(x), op.Cols()))
	}
	if len(dst) != op.Rows() {
		panic(fmt.Sprintf("linop: output length %d, operator has %d rows", len(dst), op.Rows()))
	}
}

// CheckApplyAdjoint panics unless dst and y have the dimensions required by
// op.ApplyAdjoint.
func CheckApplyAdjoint(op Operator, dst, y []float64) {
	if len(y) != op.Rows() {
		panic(fmt.Sprintf("linop: input length %d, operator has %d rows", len(y), op.Rows()))
	}
	if len(dst) != op.Cols() {
		panic(fmt.Sprintf("linop: output length %d, operator has %d columns", len(dst), op.Cols()))
	}
}

// Identity returns the n x n identity operator.
func Identity(n int) Operator {
	return identity(n)
}

type identity int

func (id identity) Rows() int { return int(id) }
func (id identity) Cols() int { return int(id) }

func (id identity) Apply(dst, x []float64) {
	CheckApply(id, dst, x)
	copy(dst, x)
}

func (id identity) ApplyAdjoint(dst, y []float64) {
	CheckApplyAdjoint(id, dst, y)
	copy(dst, y)
}
