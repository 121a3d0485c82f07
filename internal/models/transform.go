package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// RigidTransform places a slice within the physical space of the
// reconstruction volume. The linear part is normally a rotation but may be a
// general affine matrix; the registration component decides which.
type RigidTransform struct {
	// R is the 3x3 linear part. A nil R is treated as the identity.
	R *mat.Dense

	// T is the translation applied after the linear part.
	T r3.Vec
}

// IdentityTransform returns the transform that leaves points unchanged.
func IdentityTransform() RigidTransform {
	return RigidTransform{R: eye3()}
}

// Apply maps a point from slice physical space into volume physical space.
func (t RigidTransform) Apply(p r3.Vec) r3.Vec {
	return r3.Add(MulVec(t.R, p), t.T)
}

// Inverse returns the transform mapping volume physical space back into
// slice physical space. It fails if the linear part is singular.
func (t RigidTransform) Inverse() (RigidTransform, error) {
	r := t.R
	if r == nil {
		r = eye3()
	}
	var inv mat.Dense
	if err := inv.Inverse(r); err != nil {
		return RigidTransform{}, fmt.Errorf("transform is not invertible: %v", err)
	}
	ti := MulVec(&inv, r3.Scale(-1, t.T))
	return RigidTransform{R: &inv, T: ti}, nil
}

// MulVec applies a 3x3 matrix to a vector. A nil matrix acts as the identity.
func MulVec(m *mat.Dense, v r3.Vec) r3.Vec {
	if m == nil {
		return v
	}
	return r3.Vec{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}
