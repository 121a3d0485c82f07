package operators

import (
	"fmt"

	"slicerecon/pkg/linop"
)

// DifferentialOperator is the discrete gradient D on the reconstruction
// grid: forward differences along each axis scaled by 1/spacing, stacked as
// three gradient volumes, with zero padding at the upper grid edges. Its
// adjoint is the discrete negative divergence (backward difference with a
// sign flip and zero fill at the boundary), derived entrywise from D so that
// <D x, y> == <x, D* y> exactly.
type DifferentialOperator struct {
	nx, ny, nz int
	inv        float64 // 1/spacing
}

// NewDifferentialOperator builds the gradient operator for an nx*ny*nz grid
// with isotropic spacing.
func NewDifferentialOperator(nx, ny, nz int, spacing float64) (*DifferentialOperator, error) {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("invalid grid dimensions %dx%dx%d", nx, ny, nz)
	}
	if spacing <= 0 {
		return nil, fmt.Errorf("invalid grid spacing %g", spacing)
	}
	return &DifferentialOperator{nx: nx, ny: ny, nz: nz, inv: 1 / spacing}, nil
}

// Rows returns 3*N for the three stacked gradient volumes.
func (d *DifferentialOperator) Rows() int { return 3 * d.nx * d.ny * d.nz }

// Cols returns the voxel count N of the grid.
func (d *DifferentialOperator) Cols() int { return d.nx * d.ny * d.nz }

// Apply computes dst = D x: dst[0:N] is the x-gradient, dst[N:2N] the
// y-gradient and dst[2N:3N] the z-gradient.
func (d *DifferentialOperator) Apply(dst, x []float64) {
	linop.CheckApply(d, dst, x)
	n := d.Cols()
	gx, gy, gz := dst[:n], dst[n:2*n], dst[2*n:]
	sx, sy := d.nx, d.nx*d.ny
	idx := 0
	for k := 0; k < d.nz; k++ {
		for j := 0; j < d.ny; j++ {
			for i := 0; i < d.nx; i++ {
				if i < d.nx-1 {
					gx[idx] = (x[idx+1] - x[idx]) * d.inv
				} else {
					gx[idx] = 0
				}
				if j < d.ny-1 {
					gy[idx] = (x[idx+sx] - x[idx]) * d.inv
				} else {
					gy[idx] = 0
				}
				if k < d.nz-1 {
					gz[idx] = (x[idx+sy] - x[idx]) * d.inv
				} else {
					gz[idx] = 0
				}
				idx++
			}
		}
	}
}

// ApplyAdjoint computes dst = D* y for y holding three stacked gradient
// volumes.
func (d *DifferentialOperator) ApplyAdjoint(dst, y []float64) {
	linop.CheckApplyAdjoint(d, dst, y)
	n := d.Cols()
	gx, gy, gz := y[:n], y[n:2*n], y[2*n:]
	sx, sy := d.nx, d.nx*d.ny
	idx := 0
	for k := 0; k < d.nz; k++ {
		for j := 0; j < d.ny; j++ {
			for i := 0; i < d.nx; i++ {
				var v float64
				if i > 0 {
					v += gx[idx-1]
				}
				if i < d.nx-1 {
					v -= gx[idx]
				}
				if j > 0 {
					v += gy[idx-sx]
				}
				if j < d.ny-1 {
					v -= gy[idx]
				}
				if k > 0 {
					v += gz[idx-sy]
				}
				if k < d.nz-1 {
					v -= gz[idx]
				}
				dst[idx] = v * d.inv
				idx++
			}
		}
	}
}
