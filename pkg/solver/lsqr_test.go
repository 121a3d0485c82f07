package solver

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"slicerecon/pkg/linop"
)

// denseOp wraps a dense matrix as a matrix-free operator so the iteration can
// be checked against small systems with known solutions.
type denseOp struct {
	a *mat.Dense
}

func (d *denseOp) Rows() int { r, _ := d.a.Dims(); return r }
func (d *denseOp) Cols() int { _, c := d.a.Dims(); return c }

func (d *denseOp) Apply(dst, x []float64) {
	linop.CheckApply(d, dst, x)
	for r := 0; r < d.Rows(); r++ {
		s := 0.0
		for c := 0; c < d.Cols(); c++ {
			s += d.a.At(r, c) * x[c]
		}
		dst[r] = s
	}
}

func (d *denseOp) ApplyAdjoint(dst, y []float64) {
	linop.CheckApplyAdjoint(d, dst, y)
	for c := 0; c < d.Cols(); c++ {
		s := 0.0
		for r := 0; r < d.Rows(); r++ {
			s += d.a.At(r, c) * y[r]
		}
		dst[c] = s
	}
}

func randomDense(rng *rand.Rand, m, n int) *mat.Dense {
	data := make([]float64, m*n)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(m, n, data)
}

func TestLSQRConsistentSystem(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	op := &denseOp{a: randomDense(rng, 6, 3)}

	xtrue := []float64{1.5, -2, 0.25}
	b := make([]float64, op.Rows())
	op.Apply(b, xtrue)

	res, err := LSQR(op, b, LSQRParams{IterMax: 25})
	if err != nil {
		t.Fatalf("LSQR: %v", err)
	}
	if res.Stop == StopIterLimit {
		t.Errorf("stop = %v, expected convergence on a 3-unknown system", res.Stop)
	}
	diff := make([]float64, len(xtrue))
	floats.SubTo(diff, res.X, xtrue)
	rel := floats.Norm(diff, 2) / floats.Norm(xtrue, 2)
	if rel > 1e-6 {
		t.Errorf("relative solution error = %g, want <= 1e-6", rel)
	}
	if res.ResidualNorm > 1e-8 {
		t.Errorf("residual norm = %g on a consistent system", res.ResidualNorm)
	}
}

func TestLSQRInconsistentSystem(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	op := &denseOp{a: randomDense(rng, 8, 3)}
	b := make([]float64, op.Rows())
	for i := range b {
		b[i] = rng.NormFloat64()
	}

	res, err := LSQR(op, b, LSQRParams{IterMax: 50})
	if err != nil {
		t.Fatalf("LSQR: %v", err)
	}

	// The minimizer zeroes the normal-equations residual A*(b - Ax).
	r := make([]float64, op.Rows())
	op.Apply(r, res.X)
	floats.SubTo(r, b, r)
	atr := make([]float64, op.Cols())
	op.ApplyAdjoint(atr, r)
	if n := floats.Norm(atr, 2); n > 1e-6 {
		t.Errorf("normal-equations residual = %g, want <= 1e-6", n)
	}
}

func TestLSQRIterationLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	op := &denseOp{a: randomDense(rng, 10, 6)}
	b := make([]float64, op.Rows())
	for i := range b {
		b[i] = rng.NormFloat64()
	}

	res, err := LSQR(op, b, LSQRParams{IterMax: 1})
	if err != nil {
		t.Fatalf("a capped run must not fail: %v", err)
	}
	if res.Stop != StopIterLimit {
		t.Errorf("stop = %v, want %v", res.Stop, StopIterLimit)
	}
	if res.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", res.Iterations)
	}
	for i, v := range res.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("X[%d] = %g after capped run", i, v)
		}
	}
	if res.ResidualNorm <= 0 {
		t.Errorf("residual norm = %g, want > 0 before convergence", res.ResidualNorm)
	}
}

func TestLSQRZeroRHS(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	op := &denseOp{a: randomDense(rng, 5, 4)}

	res, err := LSQR(op, make([]float64, 5), LSQRParams{IterMax: 10})
	if err != nil {
		t.Fatalf("LSQR: %v", err)
	}
	if res.Stop != StopZeroRHS {
		t.Errorf("stop = %v, want %v", res.Stop, StopZeroRHS)
	}
	for i, v := range res.X {
		if v != 0 {
			t.Fatalf("X[%d] = %g, want 0", i, v)
		}
	}
}

func TestLSQRParameterErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	op := &denseOp{a: randomDense(rng, 4, 2)}

	if _, err := LSQR(op, make([]float64, 3), LSQRParams{IterMax: 5}); err == nil {
		t.Error("expected error for right-hand side length mismatch")
	}
	if _, err := LSQR(op, make([]float64, 4), LSQRParams{IterMax: 0}); err == nil {
		t.Error("expected error for non-positive iteration limit")
	}
}

func TestStopReasonString(t *testing.T) {
	for _, r := range []StopReason{StopZeroRHS, StopResidualTol, StopNormalEquations, StopIterLimit} {
		if r.String() == "" {
			t.Errorf("StopReason(%d) has no description", int(r))
		}
	}
}
