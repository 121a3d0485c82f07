package models

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func vecClose(a, b r3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

func rotZ(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

func TestVolumeIndexing(t *testing.T) {
	v, err := NewVolume(3, 4, 5, 1, r3.Vec{}, nil)
	if err != nil {
		t.Fatalf("NewVolume: %v", err)
	}
	if v.NumVoxels() != 60 {
		t.Fatalf("NumVoxels = %d, want 60", v.NumVoxels())
	}
	if len(v.Data) != 60 {
		t.Fatalf("len(Data) = %d, want 60", len(v.Data))
	}

	// x-fastest layout: all indices distinct and in range.
	seen := make(map[int]bool)
	for z := 0; z < 5; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 3; x++ {
				idx := v.Index(x, y, z)
				if idx < 0 || idx >= 60 || seen[idx] {
					t.Fatalf("Index(%d,%d,%d) = %d: out of range or duplicate", x, y, z, idx)
				}
				seen[idx] = true
			}
		}
	}
	if v.Index(1, 0, 0) != 1 || v.Index(0, 1, 0) != 3 || v.Index(0, 0, 1) != 12 {
		t.Error("index strides are not x-fastest")
	}
}

func TestVolumeCoordinateRoundTrip(t *testing.T) {
	origin := r3.Vec{X: 10, Y: -4, Z: 2}
	v, err := NewVolume(6, 6, 6, 0.8, origin, rotZ(0.4))
	if err != nil {
		t.Fatalf("NewVolume: %v", err)
	}

	for _, idx := range [][3]float64{{0, 0, 0}, {1, 2, 3}, {5.5, 0.25, 4}} {
		p := v.PhysicalPoint(idx[0], idx[1], idx[2])
		x, y, z := v.ContinuousIndex(p)
		if math.Abs(x-idx[0]) > 1e-12 || math.Abs(y-idx[1]) > 1e-12 || math.Abs(z-idx[2]) > 1e-12 {
			t.Errorf("round trip of %v gave (%g, %g, %g)", idx, x, y, z)
		}
	}
	if got := v.PhysicalPoint(0, 0, 0); !vecClose(got, origin, 1e-15) {
		t.Errorf("PhysicalPoint(0,0,0) = %v, want the origin %v", got, origin)
	}
}

func TestNewVolumeErrors(t *testing.T) {
	if _, err := NewVolume(0, 2, 2, 1, r3.Vec{}, nil); err == nil {
		t.Error("expected error for zero dimension")
	}
	if _, err := NewVolume(2, 2, 2, 0, r3.Vec{}, nil); err == nil {
		t.Error("expected error for zero spacing")
	}
	singular := mat.NewDense(3, 3, nil)
	if _, err := NewVolume(2, 2, 2, 1, r3.Vec{}, singular); err == nil {
		t.Error("expected error for singular direction matrix")
	}
}

func TestVolumeSetData(t *testing.T) {
	v, err := NewVolume(2, 2, 2, 1, r3.Vec{}, nil)
	if err != nil {
		t.Fatalf("NewVolume: %v", err)
	}
	if err := v.SetData(make([]float64, 7)); err == nil {
		t.Error("expected error for length mismatch")
	}
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	if err := v.SetData(data); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	data[0] = 99
	if v.Data[0] != 1 {
		t.Error("SetData aliases the caller's slice instead of copying")
	}
}

func TestVolumeClone(t *testing.T) {
	v, err := NewVolume(2, 2, 2, 1, r3.Vec{}, rotZ(0.2))
	if err != nil {
		t.Fatalf("NewVolume: %v", err)
	}
	v.Data[3] = 7

	c := v.Clone()
	c.Data[3] = -1
	c.Direction.Set(0, 0, 0)
	if v.Data[3] != 7 {
		t.Error("clone shares voxel storage with the original")
	}
	if v.Direction.At(0, 0) == 0 {
		t.Error("clone shares the direction matrix with the original")
	}
}

func TestRigidTransformRoundTrip(t *testing.T) {
	tr := RigidTransform{R: rotZ(0.7), T: r3.Vec{X: 1, Y: -2, Z: 0.5}}
	inv, err := tr.Inverse()
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}
	p := r3.Vec{X: 3, Y: 4, Z: -1}
	if got := inv.Apply(tr.Apply(p)); !vecClose(got, p, 1e-12) {
		t.Errorf("inverse round trip of %v gave %v", p, got)
	}
}

func TestRigidTransformIdentity(t *testing.T) {
	p := r3.Vec{X: 1, Y: 2, Z: 3}
	if got := IdentityTransform().Apply(p); got != p {
		t.Errorf("identity moved %v to %v", p, got)
	}
	var zero RigidTransform
	if got := zero.Apply(p); got != p {
		t.Errorf("zero-value transform moved %v to %v", p, got)
	}
}

func TestRigidTransformSingularInverse(t *testing.T) {
	tr := RigidTransform{R: mat.NewDense(3, 3, nil)}
	if _, err := tr.Inverse(); err == nil {
		t.Error("expected error for a singular linear part")
	}
}

func TestMulVecNilIsIdentity(t *testing.T) {
	p := r3.Vec{X: -1, Y: 0.5, Z: 2}
	if got := MulVec(nil, p); got != p {
		t.Errorf("MulVec(nil, %v) = %v", p, got)
	}
}

func validSlice() *Slice {
	return &Slice{
		Data:      make([]float64, 6),
		NX:        3,
		NY:        2,
		Spacing:   [2]float64{1, 1.5},
		Thickness: 2,
	}
}

func TestSliceValidate(t *testing.T) {
	if err := validSlice().Validate(); err != nil {
		t.Fatalf("valid slice rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Slice)
	}{
		{"zero dimension", func(s *Slice) { s.NX = 0 }},
		{"data length mismatch", func(s *Slice) { s.Data = make([]float64, 5) }},
		{"zero spacing", func(s *Slice) { s.Spacing[1] = 0 }},
		{"zero thickness", func(s *Slice) { s.Thickness = 0 }},
		{"mask length mismatch", func(s *Slice) { s.Mask = []float64{1} }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := validSlice()
			c.mutate(s)
			if err := s.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSlicePhysicalPoint(t *testing.T) {
	s := validSlice()
	s.Origin = r3.Vec{X: 2, Y: 3, Z: 4}
	got := s.PhysicalPoint(2, 1)
	want := r3.Vec{X: 4, Y: 4.5, Z: 4}
	if !vecClose(got, want, 1e-15) {
		t.Errorf("PhysicalPoint(2,1) = %v, want %v", got, want)
	}
}

func TestNewStack(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		st, err := NewStack("ok", []*Slice{validSlice(), validSlice()})
		if err != nil {
			t.Fatalf("NewStack: %v", err)
		}
		if st.NumSlices() != 2 || st.NumVoxels() != 12 {
			t.Errorf("NumSlices = %d, NumVoxels = %d, want 2 and 12", st.NumSlices(), st.NumVoxels())
		}
	})
	t.Run("empty", func(t *testing.T) {
		if _, err := NewStack("empty", nil); err == nil {
			t.Error("expected error for empty stack")
		}
	})
	t.Run("geometry mismatch", func(t *testing.T) {
		other := validSlice()
		other.Thickness = 5
		if _, err := NewStack("mixed", []*Slice{validSlice(), other}); err == nil {
			t.Error("expected error for mixed slice geometry")
		}
	})
	t.Run("invalid slice", func(t *testing.T) {
		bad := validSlice()
		bad.Data = nil
		if _, err := NewStack("bad", []*Slice{bad}); err == nil {
			t.Error("expected error for invalid slice")
		}
	})
}
