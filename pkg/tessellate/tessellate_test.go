package tessellate_test

import (
	"math"
	"testing"

	"github.com/chazu/obbeval/pkg/kernel"
	"github.com/chazu/obbeval/pkg/kernel/sdfx"
	"github.com/chazu/obbeval/pkg/obb"
	"github.com/chazu/obbeval/pkg/tessellate"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// newKernel returns a fresh sdfx kernel for testing.
func newKernel() kernel.Kernel {
	return sdfx.WithMeshCells(32)
}

func pose(center, rotation, size v3.Vec) obb.Pose {
	return obb.Pose{Center: center, Rotation: rotation, Size: size}
}

func vec(x, y, z float64) v3.Vec { return v3.Vec{X: x, Y: y, Z: z} }

func TestSingleBox(t *testing.T) {
	k := newKernel()
	parts := []tessellate.Part{{Name: "car", Pose: pose(vec(10, 0, 0), vec(0, 0, 0), vec(4, 2, 1.5))}}

	meshes, err := tessellate.Tessellate(parts, k, obb.ExtrinsicXYZ)
	if err != nil {
		t.Fatalf("Tessellate() error = %v", err)
	}
	if len(meshes) != 1 {
		t.Fatalf("got %d meshes, want 1", len(meshes))
	}
	m := meshes[0]
	if m.Name != "car" {
		t.Errorf("Name = %q, want %q", m.Name, "car")
	}
	if m.IsEmpty() {
		t.Fatal("mesh is empty")
	}

	min, max := m.Bounds()
	wantMin := [3]float64{8, -1, -0.75}
	wantMax := [3]float64{12, 1, 0.75}
	const tol = 0.3
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-wantMin[i]) > tol || math.Abs(max[i]-wantMax[i]) > tol {
			t.Errorf("axis %d bounds = [%.3f, %.3f], want ~[%.3f, %.3f]", i, min[i], max[i], wantMin[i], wantMax[i])
		}
	}
}

func TestUnnamedAndCollapsedParts(t *testing.T) {
	k := newKernel()
	parts := []tessellate.Part{
		{Pose: pose(vec(0, 0, 0), vec(0, 0, 0), vec(1, 1, 1))},
		{Name: "flat", Pose: pose(vec(0, 0, 0), vec(0, 0, 0), vec(1, 1, 0))},
	}
	meshes, err := tessellate.Tessellate(parts, k, obb.ExtrinsicXYZ)
	if err != nil {
		t.Fatalf("Tessellate() error = %v", err)
	}
	if len(meshes) != 2 {
		t.Fatalf("got %d meshes, want 2", len(meshes))
	}
	if meshes[0].Name != "box-0" {
		t.Errorf("unnamed part Name = %q, want %q", meshes[0].Name, "box-0")
	}
	if !meshes[1].IsEmpty() || meshes[1].Name != "flat" {
		t.Errorf("collapsed part mesh = %q with %d vertices, want empty %q", meshes[1].Name, meshes[1].VertexCount(), "flat")
	}
}

func TestInvalidPart(t *testing.T) {
	parts := []tessellate.Part{{Name: "bad", Pose: pose(vec(0, 0, 0), vec(0, 0, 0), vec(1, -1, 1))}}
	if _, err := tessellate.Tessellate(parts, newKernel(), obb.ExtrinsicXYZ); err == nil {
		t.Fatal("Tessellate() error = nil, want error for negative size")
	}
}

func TestEmptyInput(t *testing.T) {
	meshes, err := tessellate.Tessellate(nil, newKernel(), obb.ExtrinsicXYZ)
	if err != nil {
		t.Fatalf("Tessellate() error = %v", err)
	}
	if len(meshes) != 0 {
		t.Errorf("got %d meshes, want 0", len(meshes))
	}
}

// The solid must occupy the same space as the box it was built from, for
// both rotation compositions.
func TestSolidMatchesBox(t *testing.T) {
	k := newKernel()
	p := pose(vec(1, -2, 0.5), vec(30, 60, -20), vec(3, 1.5, 0.8))
	for _, order := range []obb.RotationOrder{obb.ExtrinsicXYZ, obb.IntrinsicXYZ} {
		t.Run(order.String(), func(t *testing.T) {
			s, err := tessellate.Solid(k, p, order)
			if err != nil {
				t.Fatalf("Solid() error = %v", err)
			}
			b := obb.MustNew(p, obb.Options{Order: order})
			axes := b.Axes()
			half := b.HalfExtents()
			for _, f := range []float64{0.9, 1.1} {
				for j, h := range []float64{half.X, half.Y, half.Z} {
					q := b.Center().Add(axes[j].MulScalar(h * f))
					got := s.Contains([3]float64{q.X, q.Y, q.Z})
					if want := f < 1; got != want {
						t.Errorf("axis %d at %.1f half extent: Contains = %v, want %v", j, f, got, want)
					}
				}
			}
		})
	}
}

func TestOverlap(t *testing.T) {
	k := newKernel()
	a := tessellate.Part{Name: "gt", Pose: pose(vec(0, 0, 0), vec(0, 0, 0), vec(2, 2, 2))}
	b := tessellate.Part{Name: "pred", Pose: pose(vec(1, 0, 0), vec(0, 0, 0), vec(2, 2, 2))}

	m, err := tessellate.Overlap(k, a, b, obb.ExtrinsicXYZ)
	if err != nil {
		t.Fatalf("Overlap() error = %v", err)
	}
	if m.IsEmpty() {
		t.Fatal("overlap mesh is empty")
	}
	if m.Name != "gt∩pred" {
		t.Errorf("Name = %q, want %q", m.Name, "gt∩pred")
	}
	min, max := m.Bounds()
	if math.Abs(min[0]-0) > 0.2 || math.Abs(max[0]-1) > 0.2 {
		t.Errorf("overlap x bounds = [%.3f, %.3f], want ~[0, 1]", min[0], max[0])
	}
}

func TestOverlapDisjoint(t *testing.T) {
	k := newKernel()
	a := tessellate.Part{Name: "gt", Pose: pose(vec(0, 0, 0), vec(0, 0, 0), vec(1, 1, 1))}
	b := tessellate.Part{Name: "pred", Pose: pose(vec(5, 0, 0), vec(0, 0, 0), vec(1, 1, 1))}
	m, err := tessellate.Overlap(k, a, b, obb.ExtrinsicXYZ)
	if err != nil {
		t.Fatalf("Overlap() error = %v", err)
	}
	if !m.IsEmpty() {
		t.Errorf("disjoint overlap has %d vertices, want 0", m.VertexCount())
	}
}
