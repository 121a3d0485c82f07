package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"slicerecon/pkg/linop"
)

// StopReason explains why the iterative least-squares solver returned.
// Hitting the iteration limit is a soft, non-fatal condition: the best
// available iterate is still returned.
type StopReason int

const (
	// StopZeroRHS means b was zero, so x = 0 is the exact solution.
	StopZeroRHS StopReason = iota

	// StopResidualTol means the residual satisfied the atol/btol test.
	StopResidualTol

	// StopNormalEquations means A* r became negligible: x solves the
	// least-squares problem to the requested accuracy.
	StopNormalEquations

	// StopIterLimit means the iteration limit was reached before the
	// convergence tests were satisfied.
	StopIterLimit
)

// String returns a human-readable stopping reason.
func (r StopReason) String() string {
	switch r {
	case StopZeroRHS:
		return "right-hand side is zero; exact solution x = 0"
	case StopResidualTol:
		return "converged to residual tolerance"
	case StopNormalEquations:
		return "converged: normal-equations residual below tolerance"
	case StopIterLimit:
		return "iteration limit reached"
	}
	return fmt.Sprintf("StopReason(%d)", int(r))
}

// LSQRParams configures the LSQR iteration.
type LSQRParams struct {
	// IterMax bounds the number of Krylov steps. It must be positive.
	IterMax int

	// ATol and BTol are the relative tolerances of the Paige-Saunders
	// stopping tests. Zero values default to 1e-8.
	ATol, BTol float64
}

// LSQRResult holds the approximate minimizer and the solve diagnostics.
type LSQRResult struct {
	// X is the best available iterate.
	X []float64

	// Iterations is the number of Krylov steps performed.
	Iterations int

	// ResidualNorm is the final estimate of ||b - A x||.
	ResidualNorm float64

	// NormalResidualNorm is the final estimate of ||A* (b - A x)||.
	NormalResidualNorm float64

	// Stop is the reason the iteration ended.
	Stop StopReason
}

// LSQR solves min ||A x - b|| with the Paige-Saunders Golub-Kahan
// bidiagonalization, working purely through the operator's forward and
// adjoint products. It terminates after at most IterMax steps even without
// convergence and returns the best iterate; that is not an error.
func LSQR(op linop.Operator, b []float64, params LSQRParams) (*LSQRResult, error) {
	m, n := op.Rows(), op.Cols()
	if len(b) != m {
		return nil, fmt.Errorf("right-hand side length %d does not match operator rows %d", len(b), m)
	}
	if params.IterMax <= 0 {
		return nil, fmt.Errorf("iteration limit must be positive, got %d", params.IterMax)
	}
	atol := params.ATol
	if atol == 0 {
		atol = 1e-8
	}
	btol := params.BTol
	if btol == 0 {
		btol = 1e-8
	}

	x := make([]float64, n)
	res := &LSQRResult{X: x, Stop: StopZeroRHS}

	// Bidiagonalization vectors and scratch for operator products.
	u := make([]float64, m)
	v := make([]float64, n)
	w := make([]float64, n)
	tmpM := make([]float64, m)
	tmpN := make([]float64, n)

	copy(u, b)
	beta := floats.Norm(u, 2)
	bnorm := beta
	if beta == 0 {
		return res, nil
	}
	floats.Scale(1/beta, u)

	op.ApplyAdjoint(v, u)
	alpha := floats.Norm(v, 2)
	if alpha == 0 {
		// b is orthogonal to the range of A; x = 0 solves the normal
		// equations exactly.
		res.ResidualNorm = beta
		res.Stop = StopNormalEquations
		return res, nil
	}
	floats.Scale(1/alpha, v)
	copy(w, v)

	phibar := beta
	rhobar := alpha
	anorm := 0.0
	rnorm := beta
	arnorm := alpha * beta

	for iter := 1; iter <= params.IterMax; iter++ {
		// Continue the bidiagonalization: next u and v.
		op.Apply(tmpM, v)
		floats.AddScaledTo(u, tmpM, -alpha, u)
		beta = floats.Norm(u, 2)
		if beta > 0 {
			floats.Scale(1/beta, u)
		}
		anorm = math.Hypot(anorm, math.Hypot(alpha, beta))

		op.ApplyAdjoint(tmpN, u)
		floats.AddScaledTo(v, tmpN, -beta, v)
		alpha = floats.Norm(v, 2)
		if alpha > 0 {
			floats.Scale(1/alpha, v)
		}

		// Plane rotation eliminating the subdiagonal element beta.
		rho := math.Hypot(rhobar, beta)
		c := rhobar / rho
		s := beta / rho
		theta := s * alpha
		rhobar = -c * alpha
		phi := c * phibar
		phibar = s * phibar

		// Update x and the search direction w.
		floats.AddScaled(x, phi/rho, w)
		floats.AddScaledTo(w, v, -theta/rho, w)

		rnorm = phibar
		arnorm = alpha * math.Abs(s*phi)
		xnorm := floats.Norm(x, 2)

		res.Iterations = iter
		res.ResidualNorm = rnorm
		res.NormalResidualNorm = arnorm

		if rnorm <= btol*bnorm+atol*anorm*xnorm {
			res.Stop = StopResidualTol
			return res, nil
		}
		if anorm > 0 && rnorm > 0 && arnorm <= atol*anorm*rnorm {
			res.Stop = StopNormalEquations
			return res, nil
		}
	}
	res.Stop = StopIterLimit
	return res, nil
}
