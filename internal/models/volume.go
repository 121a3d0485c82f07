package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Volume is the high-resolution reconstruction target: a 3D voxel grid with
// isotropic spacing. Voxel data is stored as a flat array in x-fastest order,
// so voxel (x, y, z) lives at index x + NX*(y + NY*z).
//
// The voxel grid is overwritten in place at the end of each reconstruction
// run; exactly one Volume is live per reconstruction session.
type Volume struct {
	// Data is the voxel intensities, length NX*NY*NZ.
	Data []float64

	// NX, NY, NZ are the grid dimensions in voxels.
	NX, NY, NZ int

	// Spacing is the isotropic voxel size in mm.
	Spacing float64

	// Origin is the physical position of voxel (0, 0, 0).
	Origin r3.Vec

	// Direction holds the direction cosines of the grid: column a is the
	// physical direction of index axis a. A nil Direction is the identity.
	Direction *mat.Dense

	invDirection *mat.Dense
}

// NewVolume allocates a zero-filled volume on the given isotropic grid.
func NewVolume(nx, ny, nz int, spacing float64, origin r3.Vec, direction *mat.Dense) (*Volume, error) {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("invalid volume dimensions %dx%dx%d", nx, ny, nz)
	}
	if spacing <= 0 {
		return nil, fmt.Errorf("invalid voxel spacing %g", spacing)
	}
	v := &Volume{
		Data:      make([]float64, nx*ny*nz),
		NX:        nx,
		NY:        ny,
		NZ:        nz,
		Spacing:   spacing,
		Origin:    origin,
		Direction: direction,
	}
	if err := v.initInverse(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Volume) initInverse() error {
	if v.Direction == nil {
		return nil
	}
	var inv mat.Dense
	if err := inv.Inverse(v.Direction); err != nil {
		return fmt.Errorf("volume direction matrix is singular: %v", err)
	}
	v.invDirection = &inv
	return nil
}

// NumVoxels returns the total voxel count NX*NY*NZ.
func (v *Volume) NumVoxels() int {
	return v.NX * v.NY * v.NZ
}

// Index returns the flat index of voxel (x, y, z).
func (v *Volume) Index(x, y, z int) int {
	return x + v.NX*(y+v.NY*z)
}

// ContinuousIndex maps a physical point into continuous index coordinates.
func (v *Volume) ContinuousIndex(p r3.Vec) (float64, float64, float64) {
	d := r3.Sub(p, v.Origin)
	if v.invDirection == nil && v.Direction != nil {
		// Volume built by hand rather than through NewVolume.
		if err := v.initInverse(); err != nil {
			panic(err)
		}
	}
	d = MulVec(v.invDirection, d)
	return d.X / v.Spacing, d.Y / v.Spacing, d.Z / v.Spacing
}

// PhysicalPoint returns the physical position of continuous index (x, y, z).
func (v *Volume) PhysicalPoint(x, y, z float64) r3.Vec {
	d := r3.Vec{X: x * v.Spacing, Y: y * v.Spacing, Z: z * v.Spacing}
	return r3.Add(v.Origin, MulVec(v.Direction, d))
}

// SetData overwrites the voxel grid in place. The replacement must match the
// grid size exactly.
func (v *Volume) SetData(data []float64) error {
	if len(data) != v.NumVoxels() {
		return fmt.Errorf("voxel data length %d does not match %dx%dx%d grid",
			len(data), v.NX, v.NY, v.NZ)
	}
	copy(v.Data, data)
	return nil
}

// Clone returns a deep copy sharing no storage with the receiver.
func (v *Volume) Clone() *Volume {
	c := *v
	c.Data = make([]float64, len(v.Data))
	copy(c.Data, v.Data)
	if v.Direction != nil {
		c.Direction = mat.DenseCopyOf(v.Direction)
	}
	if v.invDirection != nil {
		c.invDirection = mat.DenseCopyOf(v.invDirection)
	}
	return &c
}
