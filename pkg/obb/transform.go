package obb

import (
	"errors"
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/mat"
)

// ErrMalformedTransform is wrapped by FromTransform errors.
var ErrMalformedTransform = errors.New("malformed box transform")

// transformTolerance bounds the deviation allowed in the bottom row.
const transformTolerance = 1e-9

// orthogonalityTolerance bounds the cosine allowed between two
// non-collapsed axis columns.
const orthogonalityTolerance = 1e-6

// degenerateLength is the column length below which an axis is treated as
// collapsed and its direction rebuilt from the other axes.
const degenerateLength = 1e-12

// NewTransform returns the 4x4 homogeneous matrix [[size⊙R, center],
// [0,0,0,1]]: column j of the upper 3x3 block is rotation column j scaled
// by size j.
func NewTransform(p Pose, order RotationOrder) (*mat.Dense, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b := build(p.Center, rotationAxes(p.Rotation, order), components(p.Size))
	return b.Transform(), nil
}

// Transform returns the box's homogeneous transform.
func (b *OBB) Transform() *mat.Dense {
	t := mat.NewDense(4, 4, nil)
	for j := 0; j < 3; j++ {
		col := b.axes[j].MulScalar(b.size[j])
		t.Set(0, j, col.X)
		t.Set(1, j, col.Y)
		t.Set(2, j, col.Z)
	}
	t.Set(0, 3, b.center.X)
	t.Set(1, 3, b.center.Y)
	t.Set(2, 3, b.center.Z)
	t.Set(3, 3, 1)
	return t
}

// Rotation returns the 3x3 rotation matrix whose columns are Axes.
func (b *OBB) Rotation() *mat.Dense {
	r := mat.NewDense(3, 3, nil)
	for j, a := range b.axes {
		r.Set(0, j, a.X)
		r.Set(1, j, a.Y)
		r.Set(2, j, a.Z)
	}
	return r
}

// FromTransform decomposes a homogeneous transform into a box. Column
// lengths become extents; a collapsed column gets its direction from the
// cross product of the remaining axes so the rotation stays orthonormal.
// Sheared or mirrored blocks are not boxes and are rejected.
func FromTransform(t mat.Matrix) (*OBB, error) {
	r, c := t.Dims()
	if r != 4 || c != 4 {
		return nil, fmt.Errorf("obb: transform is %dx%d, want 4x4: %w", r, c, ErrMalformedTransform)
	}
	want := [4]float64{0, 0, 0, 1}
	for j, w := range want {
		if v := t.At(3, j); math.Abs(v-w) > transformTolerance {
			return nil, fmt.Errorf("obb: transform bottom row [3,%d] is %v, want %v: %w", j, v, w, ErrMalformedTransform)
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			if v := t.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("obb: transform [%d,%d] is %v: %w", i, j, v, ErrNonFinite)
			}
		}
	}

	var (
		axes  [3]v3.Vec
		size  [3]float64
		valid [3]bool
	)
	for j := 0; j < 3; j++ {
		col := v3.Vec{X: t.At(0, j), Y: t.At(1, j), Z: t.At(2, j)}
		l := col.Length()
		size[j] = l
		if l > degenerateLength {
			axes[j] = col.MulScalar(1 / l)
			valid[j] = true
		}
	}
	if err := checkFrame(axes, valid); err != nil {
		return nil, err
	}
	axes = completeAxes(axes, valid)
	center := v3.Vec{X: t.At(0, 3), Y: t.At(1, 3), Z: t.At(2, 3)}
	return build(center, axes, size), nil
}

// checkFrame verifies that the non-collapsed unit columns are mutually
// orthogonal and, when none is collapsed, right-handed.
func checkFrame(axes [3]v3.Vec, valid [3]bool) error {
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if !valid[i] || !valid[j] {
				continue
			}
			if d := axes[i].Dot(axes[j]); math.Abs(d) > orthogonalityTolerance {
				return fmt.Errorf("obb: transform columns %d and %d are not orthogonal (cos %.6f): %w", i, j, d, ErrMalformedTransform)
			}
		}
	}
	if valid[0] && valid[1] && valid[2] && axes[0].Cross(axes[1]).Dot(axes[2]) < 0 {
		return fmt.Errorf("obb: transform columns form a mirrored frame: %w", ErrMalformedTransform)
	}
	return nil
}

// completeAxes fills collapsed axes so that the set stays a right-handed
// orthonormal frame.
func completeAxes(axes [3]v3.Vec, valid [3]bool) [3]v3.Vec {
	n := 0
	for _, ok := range valid {
		if ok {
			n++
		}
	}
	switch n {
	case 3:
		return axes
	case 0:
		return [3]v3.Vec{{X: 1}, {Y: 1}, {Z: 1}}
	case 1:
		// Seed a second axis, then fall through to the two-axis case.
		k := 0
		for j := range valid {
			if valid[j] {
				k = j
			}
		}
		next := (k + 1) % 3
		axes[next] = perpendicular(axes[k])
		valid[next] = true
	}
	for j := 0; j < 3; j++ {
		if !valid[j] {
			a := axes[(j+1)%3]
			b := axes[(j+2)%3]
			axes[j] = a.Cross(b)
		}
	}
	return axes
}

// perpendicular returns a unit vector orthogonal to the unit vector n.
func perpendicular(n v3.Vec) v3.Vec {
	ref := v3.Vec{X: 1}
	if math.Abs(n.X) > 0.9 {
		ref = v3.Vec{Y: 1}
	}
	p := n.Cross(ref)
	return p.MulScalar(1 / p.Length())
}
