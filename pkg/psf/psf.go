// Package psf models the slice acquisition point-spread function as an
// oriented 3D Gaussian. The covariance of the Gaussian is derived from the
// relative orientation of a slice and the reconstruction grid and is consumed
// read-only by the forward and adjoint slice operators.
package psf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"slicerecon/internal/models"
)

// CovarianceProvider produces the 3x3 blur covariance of a slice, expressed
// in the physical frame of the reconstruction volume. Implementations must
// return a symmetric positive-definite matrix.
type CovarianceProvider interface {
	Covariance(s *models.Slice, v *models.Volume) (*mat.SymDense, error)
}

// fwhmToSigma converts a full width at half maximum to a Gaussian sigma.
var fwhmToSigma = 1.0 / (2.0 * math.Sqrt(2.0*math.Log(2.0)))

// GaussianModel is the default acquisition model: in slice coordinates the
// PSF is a separable Gaussian whose FWHM equals the in-plane spacing along
// the in-plane axes and the slice thickness along the normal. The covariance
// is rotated into the volume frame through the slice direction cosines and
// the registration transform.
type GaussianModel struct{}

// Covariance implements CovarianceProvider.
func (GaussianModel) Covariance(s *models.Slice, v *models.Volume) (*mat.SymDense, error) {
	if s == nil || v == nil {
		return nil, fmt.Errorf("psf: nil slice or volume")
	}
	sx := s.Spacing[0] * fwhmToSigma
	sy := s.Spacing[1] * fwhmToSigma
	sz := s.Thickness * fwhmToSigma
	if sx <= 0 || sy <= 0 || sz <= 0 {
		return nil, fmt.Errorf("psf: non-positive slice geometry: spacing %v, thickness %g", s.Spacing, s.Thickness)
	}
	cov := mat.NewSymDense(3, []float64{
		sx * sx, 0, 0,
		0, sy * sy, 0,
		0, 0, sz * sz,
	})

	// Slice axes expressed in the volume's physical frame after
	// registration: U = T.R * slice.Direction.
	u := axes(s)
	var rotated mat.Dense
	rotated.Mul(u, cov)
	rotated.Mul(&rotated, u.T())

	out := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			// Symmetrize against rounding in the two products.
			out.SetSym(i, j, 0.5*(rotated.At(i, j)+rotated.At(j, i)))
		}
	}
	return out, nil
}

func axes(s *models.Slice) *mat.Dense {
	u := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
	if s.Direction != nil {
		u.Copy(s.Direction)
	}
	if s.Transform.R != nil {
		var m mat.Dense
		m.Mul(s.Transform.R, u)
		u.Copy(&m)
	}
	return u
}
