// Package resample builds the initial high-resolution volume estimate by
// resampling a target stack onto a uniform isotropic grid. The surrounding
// pipeline runs it once before the first reconstruction; later estimates
// come from the solver itself.
package resample

import (
	"fmt"
	"math"

	"slicerecon/internal/models"
)

// ToIsotropic resamples the stack onto an isotropic grid with the given
// voxel spacing, using nearest-neighbour lookup. A non-positive spacing
// defaults to the stack's smaller in-plane spacing. The volume inherits the
// origin and direction cosines of the first slice, so the target stack
// defines the reconstruction space.
//
// Every output voxel maps to a valid source pixel for all spacing ratios:
// the source index is the rounded continuous coordinate, clamped to the
// grid, so the last output slice always resolves to the last acquired slice
// rather than walking off the stack.
func ToIsotropic(stack *models.Stack, spacing float64) (*models.Volume, error) {
	if stack == nil || stack.NumSlices() == 0 {
		return nil, fmt.Errorf("no slices to resample")
	}
	first := stack.Slices[0]
	if err := first.Validate(); err != nil {
		return nil, err
	}
	if spacing <= 0 {
		spacing = math.Min(first.Spacing[0], first.Spacing[1])
	}

	nx := gridSize(float64(first.NX)*first.Spacing[0], spacing)
	ny := gridSize(float64(first.NY)*first.Spacing[1], spacing)
	nz := gridSize(float64(stack.NumSlices())*first.Thickness, spacing)

	vol, err := models.NewVolume(nx, ny, nz, spacing, first.Origin, first.Direction)
	if err != nil {
		return nil, err
	}

	for z := 0; z < nz; z++ {
		sz := nearestIndex(float64(z)*spacing, first.Thickness, stack.NumSlices())
		sl := stack.Slices[sz]
		for y := 0; y < ny; y++ {
			sy := nearestIndex(float64(y)*spacing, first.Spacing[1], first.NY)
			for x := 0; x < nx; x++ {
				sx := nearestIndex(float64(x)*spacing, first.Spacing[0], first.NX)
				vol.Data[vol.Index(x, y, z)] = sl.Data[sx+first.NX*sy]
			}
		}
	}
	return vol, nil
}

func gridSize(extent, spacing float64) int {
	n := int(math.Ceil(extent / spacing))
	if n < 1 {
		n = 1
	}
	return n
}

func nearestIndex(pos, step float64, n int) int {
	i := int(math.Floor(pos/step + 0.5))
	if i < 0 {
		i = 0
	}
	if i > n-1 {
		i = n - 1
	}
	return i
}
