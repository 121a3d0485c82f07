// Package solver implements the Tikhonov-regularized reconstruction of a
// single isotropic high-resolution volume from several anisotropic 2D slice
// stacks. The minimization problem
//
//	arg min_x ( sum_k 1/2 ||M_k (y_k - A_k x)||^2 + alpha/2 ||G x||^2 )
//
// is rewritten as the augmented least-squares system
//
//	arg min_x || [ M A; sqrt(alpha) G ] x - [ M y; 0 ] ||^2
//
// with A_k the warp-blur-downsample acquisition operator of slice k, M_k its
// mask and G either the identity (TK0) or the stacked gradient (TK1), and
// solved with the matrix-free LSQR iteration.
package solver

import (
	"fmt"
	"runtime"

	"slicerecon/internal/models"
	"slicerecon/pkg/psf"
	"slicerecon/pkg/registration"
)

// Options configures a reconstruction run.
type Options struct {
	// RegType selects zeroth- or first-order Tikhonov regularization.
	RegType RegType

	// Alpha is the regularization weight. It must be non-negative.
	Alpha float64

	// IterMax bounds the LSQR iteration count. It must be positive.
	IterMax int

	// ATol and BTol are the LSQR convergence tolerances; zero values use
	// the solver defaults.
	ATol, BTol float64

	// AlphaCut is the Gaussian PSF cut-off in standard deviations.
	// Zero means the default of 3.
	AlphaCut float64

	// Workers bounds the per-slice parallelism of the operator products.
	// Zero means one worker per CPU.
	Workers int

	// PSF provides the per-slice blur covariance. Nil means the default
	// oriented Gaussian model.
	PSF psf.CovarianceProvider

	// Registration, when non-nil, is run on every stack against the
	// current volume estimate before assembly. Stacks for which it fails
	// are excluded from the reconstruction and reported as StackErrors.
	Registration registration.Engine
}

// DefaultOptions returns the reconstruction parameters of the reference
// pipeline: first-order Tikhonov with alpha = 0.02 and 10 LSQR iterations.
func DefaultOptions() Options {
	return Options{
		RegType: TK1,
		Alpha:   0.02,
		IterMax: 10,
	}
}

// runState tracks the orchestration phases of a reconstruction run.
type runState int

const (
	stateConfigured runState = iota
	stateAssembling
	stateSolving
	stateDone
)

// Tikhonov orchestrates one reconstruction session: it owns the
// regularization parameters, assembles the augmented system, drives the
// iterative solver and writes the result back into the volume. It is
// re-entrant: Run may be called again after the registration collaborator
// has updated the slice transforms, producing a refined estimate.
type Tikhonov struct {
	stacks []*models.Stack
	volume *models.Volume
	opts   Options

	state runState

	// Last-run diagnostics.
	iterations   int
	residualNorm float64
	stop         StopReason
	excluded     []*StackError
}

// NewTikhonov prepares a reconstruction session for the given stacks and
// volume estimate. The volume supplies both the initial grid geometry and
// the storage the result is written into.
func NewTikhonov(stacks []*models.Stack, volume *models.Volume, opts Options) *Tikhonov {
	return &Tikhonov{
		stacks: stacks,
		volume: volume,
		opts:   opts,
		state:  stateConfigured,
	}
}

// Reconstruct runs a single Tikhonov reconstruction and returns the updated
// volume. The stacks are read-only; the volume's voxel grid is overwritten
// in place.
func Reconstruct(stacks []*models.Stack, volume *models.Volume, opts Options) (*models.Volume, error) {
	s := NewTikhonov(stacks, volume, opts)
	if err := s.Run(); err != nil {
		return nil, err
	}
	return volume, nil
}

// SetAlpha updates the regularization weight for the next run.
func (s *Tikhonov) SetAlpha(alpha float64) { s.opts.Alpha = alpha }

// GetAlpha returns the configured regularization weight.
func (s *Tikhonov) GetAlpha() float64 { return s.opts.Alpha }

// SetIterMax updates the iteration bound for the next run.
func (s *Tikhonov) SetIterMax(iterMax int) { s.opts.IterMax = iterMax }

// GetIterMax returns the configured iteration bound.
func (s *Tikhonov) GetIterMax() int { return s.opts.IterMax }

// SetRegularizationType selects TK0 or TK1 for the next run.
func (s *Tikhonov) SetRegularizationType(t RegType) { s.opts.RegType = t }

// GetRegularizationType returns the configured regularization type.
func (s *Tikhonov) GetRegularizationType() RegType { return s.opts.RegType }

// GetIterations returns the LSQR iteration count of the last run.
func (s *Tikhonov) GetIterations() int { return s.iterations }

// GetResidualNorm returns the final residual norm of the last run.
func (s *Tikhonov) GetResidualNorm() float64 { return s.residualNorm }

// GetStopReason returns why the last run's iteration ended.
func (s *Tikhonov) GetStopReason() StopReason { return s.stop }

// GetExcludedStacks returns the typed failures of stacks excluded from the
// last run by the degradation policy.
func (s *Tikhonov) GetExcludedStacks() []*StackError { return s.excluded }

// Run executes one reconstruction: validate, assemble the augmented system,
// solve, and overwrite the volume's voxel grid with the solution. Reaching
// the iteration limit is not an error; it is reported through the stopping
// reason.
func (s *Tikhonov) Run() error {
	s.state = stateConfigured
	s.iterations = 0
	s.residualNorm = 0
	s.excluded = nil

	if err := s.validate(); err != nil {
		return err
	}

	stacks, err := s.registerStacks()
	if err != nil {
		return err
	}

	s.state = stateAssembling
	opts := s.opts
	alphaCut := opts.AlphaCut
	if alphaCut == 0 {
		alphaCut = 3
	}
	workers := opts.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	cov := opts.PSF
	if cov == nil {
		cov = psf.GaussianModel{}
	}
	aug, err := newAugmentedOperator(stacks, s.volume, cov, opts.RegType, opts.Alpha, alphaCut, workers)
	if err != nil {
		return err
	}
	b := aug.rhs()

	s.state = stateSolving
	res, err := LSQR(aug, b, LSQRParams{
		IterMax: opts.IterMax,
		ATol:    opts.ATol,
		BTol:    opts.BTol,
	})
	if err != nil {
		return err
	}

	s.state = stateDone
	s.iterations = res.Iterations
	s.residualNorm = res.ResidualNorm
	s.stop = res.Stop
	return s.volume.SetData(res.X)
}

// validate rejects configuration errors before any solve attempt.
func (s *Tikhonov) validate() error {
	if s.volume == nil {
		return fmt.Errorf("no volume estimate supplied")
	}
	if len(s.volume.Data) != s.volume.NumVoxels() {
		return fmt.Errorf("volume data length %d does not match %dx%dx%d grid",
			len(s.volume.Data), s.volume.NX, s.volume.NY, s.volume.NZ)
	}
	if _, ok := regOperators[s.opts.RegType]; !ok {
		return fmt.Errorf("unknown regularization type %v", s.opts.RegType)
	}
	if s.opts.Alpha < 0 {
		return fmt.Errorf("regularization parameter must be non-negative, got %g", s.opts.Alpha)
	}
	if s.opts.IterMax <= 0 {
		return fmt.Errorf("maximum number of iterations must be positive, got %d", s.opts.IterMax)
	}
	if len(s.stacks) == 0 {
		return fmt.Errorf("no stacks supplied")
	}
	for i, st := range s.stacks {
		if st.NumSlices() == 0 {
			return fmt.Errorf("stack %d (%s) has no slices", i, st.Name)
		}
		for j, sl := range st.Slices {
			if err := sl.Validate(); err != nil {
				return fmt.Errorf("stack %d (%s) slice %d: %v", i, st.Name, j, err)
			}
		}
	}
	return nil
}

// registerStacks runs the registration collaborator, excluding stacks for
// which it fails. Excluding every stack is fatal; anything less degrades the
// reconstruction instead of aborting it.
func (s *Tikhonov) registerStacks() ([]*models.Stack, error) {
	if s.opts.Registration == nil {
		return s.stacks, nil
	}
	kept := make([]*models.Stack, 0, len(s.stacks))
	for i, st := range s.stacks {
		if err := s.opts.Registration.Register(st, s.volume); err != nil {
			s.excluded = append(s.excluded, &StackError{Stack: i, Name: st.Name, Err: err})
			continue
		}
		kept = append(kept, st)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("registration failed for all %d stacks: %v", len(s.stacks), s.excluded[0])
	}
	return kept, nil
}
