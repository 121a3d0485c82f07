package solver

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"

	"slicerecon/internal/models"
	"slicerecon/pkg/linop"
	"slicerecon/pkg/operators"
	"slicerecon/pkg/psf"
)

// RegType selects the Tikhonov regularization operator G.
type RegType int

const (
	// TK0 is zeroth-order Tikhonov: G is the identity, size N.
	TK0 RegType = iota

	// TK1 is first-order Tikhonov: G is the stacked 3-axis gradient,
	// size 3N.
	TK1
)

// String returns the canonical name of the regularization type.
func (t RegType) String() string {
	switch t {
	case TK0:
		return "TK0"
	case TK1:
		return "TK1"
	}
	return fmt.Sprintf("RegType(%d)", int(t))
}

// ParseRegType converts a configuration string into a RegType.
func ParseRegType(s string) (RegType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TK0":
		return TK0, nil
	case "TK1":
		return TK1, nil
	}
	return 0, fmt.Errorf("regularization type can only be either 'TK0' or 'TK1', got %q", s)
}

// regOperators is the fixed dispatch table from regularization type to the
// builder of its operator G. Switching between TK0 and TK1 changes only this
// operator and the corresponding block sizes.
var regOperators = map[RegType]func(v *models.Volume) (linop.Operator, error){
	TK0: func(v *models.Volume) (linop.Operator, error) {
		return linop.Identity(v.NumVoxels()), nil
	},
	TK1: func(v *models.Volume) (linop.Operator, error) {
		return operators.NewDifferentialOperator(v.NX, v.NY, v.NZ, v.Spacing)
	},
}

// sliceTerm is one masked data-fit block M_k A_k of the augmented system.
type sliceTerm struct {
	op     *operators.SliceOperator
	mask   *operators.MaskOperator
	data   []float64
	offset int
	n      int
}

// augmentedOperator stacks the masked per-slice operators and the scaled
// regularization operator into one matrix-free map
//
//	x -> [ M_1 A_1 x; ...; M_K A_K x; sqrt(alpha) G x ]
//
// with the adjoint accumulating A_k* M_k over all slices plus the
// regularization tail. Forward blocks are disjoint, so slices are evaluated
// in parallel; adjoint accumulation uses per-worker private accumulators
// reduced at the end.
type augmentedOperator struct {
	terms     []sliceTerm
	reg       linop.Operator
	sqrtAlpha float64

	rows, cols int
	dataRows   int
	workers    int
}

// newAugmentedOperator builds the augmented operator for the given stacks,
// volume grid and regularization choice. The stacks must already have passed
// configuration validation.
func newAugmentedOperator(stacks []*models.Stack, vol *models.Volume, cov psf.CovarianceProvider,
	regType RegType, alpha, alphaCut float64, workers int) (*augmentedOperator, error) {

	build, ok := regOperators[regType]
	if !ok {
		return nil, fmt.Errorf("unknown regularization type %v", regType)
	}
	reg, err := build(vol)
	if err != nil {
		return nil, fmt.Errorf("building regularization operator: %v", err)
	}

	a := &augmentedOperator{
		reg:       reg,
		sqrtAlpha: math.Sqrt(alpha),
		cols:      vol.NumVoxels(),
		workers:   workers,
	}
	if a.workers < 1 {
		a.workers = 1
	}

	offset := 0
	for _, st := range stacks {
		for i, sl := range st.Slices {
			c, err := cov.Covariance(sl, vol)
			if err != nil {
				return nil, fmt.Errorf("stack %q slice %d: PSF covariance: %v", st.Name, i, err)
			}
			op, err := operators.NewSliceOperator(sl, vol, c, alphaCut)
			if err != nil {
				return nil, fmt.Errorf("stack %q slice %d: %v", st.Name, i, err)
			}
			mask, err := operators.NewMaskOperator(sl.Mask, sl.NumVoxels())
			if err != nil {
				return nil, fmt.Errorf("stack %q slice %d: %v", st.Name, i, err)
			}
			a.terms = append(a.terms, sliceTerm{
				op:     op,
				mask:   mask,
				data:   sl.Data,
				offset: offset,
				n:      sl.NumVoxels(),
			})
			offset += sl.NumVoxels()
		}
	}
	a.dataRows = offset
	a.rows = offset + reg.Rows()
	if a.workers > len(a.terms) {
		a.workers = len(a.terms)
	}
	return a, nil
}

// Rows returns N_total_slice_voxels plus the regularization block size.
func (a *augmentedOperator) Rows() int { return a.rows }

// Cols returns the volume voxel count.
func (a *augmentedOperator) Cols() int { return a.cols }

// Apply evaluates the stacked forward operator. Per-slice blocks of dst are
// disjoint, so the terms run in parallel over the shared read-only x.
func (a *augmentedOperator) Apply(dst, x []float64) {
	linop.CheckApply(a, dst, x)
	a.eachTerm(func(t *sliceTerm) {
		seg := dst[t.offset : t.offset+t.n]
		t.op.Apply(seg, x)
		t.mask.Apply(seg, seg)
	})
	tail := dst[a.dataRows:]
	if a.sqrtAlpha == 0 {
		for i := range tail {
			tail[i] = 0
		}
		return
	}
	a.reg.Apply(tail, x)
	if a.sqrtAlpha != 1 {
		floats.Scale(a.sqrtAlpha, tail)
	}
}

// ApplyAdjoint accumulates A_k* M_k y_k over all slices plus the
// regularization tail.
func (a *augmentedOperator) ApplyAdjoint(dst, y []float64) {
	linop.CheckApplyAdjoint(a, dst, y)
	for i := range dst {
		dst[i] = 0
	}

	if a.workers <= 1 {
		scratch := make([]float64, a.maxTermLen())
		for i := range a.terms {
			t := &a.terms[i]
			buf := scratch[:t.n]
			t.mask.Apply(buf, y[t.offset:t.offset+t.n])
			t.op.AccumulateAdjoint(dst, buf)
		}
	} else {
		accs := make([][]float64, a.workers)
		per := (len(a.terms) + a.workers - 1) / a.workers
		var wg sync.WaitGroup
		for w := 0; w < a.workers; w++ {
			lo := w * per
			hi := lo + per
			if hi > len(a.terms) {
				hi = len(a.terms)
			}
			if lo >= hi {
				continue
			}
			wg.Add(1)
			go func(w, lo, hi int) {
				defer wg.Done()
				acc := make([]float64, a.cols)
				scratch := make([]float64, a.maxTermLen())
				for i := lo; i < hi; i++ {
					t := &a.terms[i]
					buf := scratch[:t.n]
					t.mask.Apply(buf, y[t.offset:t.offset+t.n])
					t.op.AccumulateAdjoint(acc, buf)
				}
				accs[w] = acc
			}(w, lo, hi)
		}
		wg.Wait()
		for _, acc := range accs {
			if acc != nil {
				floats.Add(dst, acc)
			}
		}
	}

	if a.sqrtAlpha != 0 {
		tmp := make([]float64, a.cols)
		a.reg.ApplyAdjoint(tmp, y[a.dataRows:])
		floats.AddScaled(dst, a.sqrtAlpha, tmp)
	}
}

// rhs builds b = [ M_1 y_1; ...; M_K y_K; 0 ] from the observed slice data.
func (a *augmentedOperator) rhs() []float64 {
	b := make([]float64, a.rows)
	for i := range a.terms {
		t := &a.terms[i]
		t.mask.Apply(b[t.offset:t.offset+t.n], t.data)
	}
	return b
}

// eachTerm runs fn over all slice terms, fanning out across workers when
// more than one is configured.
func (a *augmentedOperator) eachTerm(fn func(*sliceTerm)) {
	if a.workers <= 1 {
		for i := range a.terms {
			fn(&a.terms[i])
		}
		return
	}
	per := (len(a.terms) + a.workers - 1) / a.workers
	var wg sync.WaitGroup
	for w := 0; w < a.workers; w++ {
		lo := w * per
		hi := lo + per
		if hi > len(a.terms) {
			hi = len(a.terms)
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				fn(&a.terms[i])
			}
		}(lo, hi)
	}
	wg.Wait()
}

func (a *augmentedOperator) maxTermLen() int {
	n := 0
	for i := range a.terms {
		if a.terms[i].n > n {
			n = a.terms[i].n
		}
	}
	return n
}
