package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Slice is a single 2D acquisition: in-plane high resolution, anisotropic
// through-plane thickness. Pixel data is stored row-major (x fastest), so
// pixel (i, j) lives at index i + NX*j.
//
// A slice is immutable once registered; only its Transform is updated by the
// registration component between reconstruction runs.
type Slice struct {
	// Data is the pixel intensities, length NX*NY.
	Data []float64

	// NX, NY are the in-plane dimensions in pixels.
	NX, NY int

	// Spacing is the in-plane pixel size in mm along each axis.
	Spacing [2]float64

	// Thickness is the through-plane slice thickness in mm.
	Thickness float64

	// Origin is the physical position of pixel (0, 0).
	Origin r3.Vec

	// Direction holds the direction cosines of the slice: columns 0 and 1
	// are the in-plane axes, column 2 the slice normal. Nil means identity.
	Direction *mat.Dense

	// Mask is an optional 0/1 foreground mask of length NX*NY. A nil mask
	// is treated as all ones.
	Mask []float64

	// Transform places the slice within the volume's physical space. It is
	// produced by the registration component and consumed as a fixed input
	// by the forward operator.
	Transform RigidTransform
}

// NumVoxels returns the pixel count NX*NY.
func (s *Slice) NumVoxels() int {
	return s.NX * s.NY
}

// PhysicalPoint returns the physical position of continuous pixel index
// (i, j) in slice space, before the registration transform is applied.
func (s *Slice) PhysicalPoint(i, j float64) r3.Vec {
	d := r3.Vec{X: i * s.Spacing[0], Y: j * s.Spacing[1]}
	return r3.Add(s.Origin, MulVec(s.Direction, d))
}

// Validate reports configuration errors that must be fatal before any solve
// attempt: missing data, non-positive geometry, or a mask whose voxel count
// does not match the slice.
func (s *Slice) Validate() error {
	if s.NX <= 0 || s.NY <= 0 {
		return fmt.Errorf("invalid slice dimensions %dx%d", s.NX, s.NY)
	}
	if len(s.Data) != s.NumVoxels() {
		return fmt.Errorf("slice data length %d does not match %dx%d grid", len(s.Data), s.NX, s.NY)
	}
	if s.Spacing[0] <= 0 || s.Spacing[1] <= 0 || s.Thickness <= 0 {
		return fmt.Errorf("invalid slice geometry: spacing %v, thickness %g", s.Spacing, s.Thickness)
	}
	if s.Mask != nil && len(s.Mask) != s.NumVoxels() {
		return fmt.Errorf("mask length %d does not match slice voxel count %d", len(s.Mask), s.NumVoxels())
	}
	return nil
}

// Stack is an ordered sequence of slices sharing acquisition geometry:
// in-plane spacing, slice thickness and pixel dimensions. It owns its slices.
type Stack struct {
	// Name identifies the stack in diagnostics.
	Name string

	// Slices are the acquisitions in through-plane order.
	Slices []*Slice
}

// NewStack builds a stack after checking that every slice is valid and that
// all slices share the acquisition geometry of the first.
func NewStack(name string, slices []*Slice) (*Stack, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("stack %q has no slices", name)
	}
	first := slices[0]
	for i, s := range slices {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("stack %q slice %d: %v", name, i, err)
		}
		if s.NX != first.NX || s.NY != first.NY ||
			s.Spacing != first.Spacing || s.Thickness != first.Thickness {
			return nil, fmt.Errorf("stack %q slice %d does not share the stack geometry", name, i)
		}
	}
	return &Stack{Name: name, Slices: slices}, nil
}

// NumSlices returns the number of slices in the stack.
func (st *Stack) NumSlices() int {
	return len(st.Slices)
}

// NumVoxels returns the total pixel count over all slices. This is the row
// count the stack contributes to the augmented system.
func (st *Stack) NumVoxels() int {
	n := 0
	for _, s := range st.Slices {
		n += s.NumVoxels()
	}
	return n
}
