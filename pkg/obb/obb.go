// Package obb builds oriented bounding boxes from a pose and compares pairs
// of them: volumetric IoU, vertex-to-vertex distance and bounding box
// disparity.
//
// A box keeps its rotation and its extents apart. The 4x4 transform that
// fuses them (columns of the rotation scaled by the size, center in the last
// column) is only formed on request, so zero extents never have to be
// normalized away.
package obb

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/obbeval/pkg/polytope"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultEpsilon floors the IoU denominator and the disparity scale.
const DefaultEpsilon = 1e-8

// ErrNegativeSize is wrapped by errors for boxes with a negative extent.
var ErrNegativeSize = errors.New("negative box size")

// ErrNonFinite is wrapped by errors for NaN or infinite pose components.
var ErrNonFinite = errors.New("non-finite pose component")

// Options configure box construction and comparison.
type Options struct {
	Epsilon float64       // floor for IoU denominators
	Order   RotationOrder // Euler angle composition
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Epsilon: DefaultEpsilon,
		Order:   ExtrinsicXYZ,
	}
}

// Pose is a box placement as it appears in annotation files.
type Pose struct {
	Center   v3.Vec `json:"center3D"`
	Rotation v3.Vec `json:"rotation3D"` // Euler angles in degrees
	Size     v3.Vec `json:"size3D"`     // full extents along the local axes
}

// axisNames labels the local axes in error messages.
var axisNames = [3]string{"x", "y", "z"}

// Validate checks that every component is finite and no extent is negative.
func (p Pose) Validate() error {
	parts := []struct {
		field string
		v     v3.Vec
	}{
		{"center", p.Center},
		{"rotation", p.Rotation},
		{"size", p.Size},
	}
	for _, part := range parts {
		for i, c := range components(part.v) {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return fmt.Errorf("obb: %s.%s is %v: %w", part.field, axisNames[i], c, ErrNonFinite)
			}
		}
	}
	for i, c := range components(p.Size) {
		if c < 0 {
			return fmt.Errorf("obb: size.%s is %.4f, must not be negative: %w", axisNames[i], c, ErrNegativeSize)
		}
	}
	return nil
}

// OBB is an immutable oriented bounding box.
type OBB struct {
	center  v3.Vec
	axes    [3]v3.Vec  // orthonormal local axes in world space
	size    [3]float64 // full extents along axes
	corners [8]v3.Vec
}

// New builds a box from a pose.
func New(p Pose, opts Options) (*OBB, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return build(p.Center, rotationAxes(p.Rotation, opts.Order), components(p.Size)), nil
}

// MustNew is New for poses known to be valid. It panics on error.
func MustNew(p Pose, opts Options) *OBB {
	b, err := New(p, opts)
	if err != nil {
		panic(err)
	}
	return b
}

func build(center v3.Vec, axes [3]v3.Vec, size [3]float64) *OBB {
	b := &OBB{center: center, axes: axes, size: size}
	for i := 0; i < 8; i++ {
		c := center
		for j := 0; j < 3; j++ {
			c = c.Add(axes[j].MulScalar(cornerSign(i, j) * size[j] / 2))
		}
		b.corners[i] = c
	}
	return b
}

// cornerSign is +1 when corner i lies on the positive side of axis j.
func cornerSign(i, j int) float64 {
	if i&(1<<j) != 0 {
		return 1
	}
	return -1
}

// Center returns the box center.
func (b *OBB) Center() v3.Vec { return b.center }

// Axes returns the unit local axes in world space (the rotation columns).
func (b *OBB) Axes() [3]v3.Vec { return b.axes }

// Size returns the full extents along the local axes.
func (b *OBB) Size() v3.Vec {
	return v3.Vec{X: b.size[0], Y: b.size[1], Z: b.size[2]}
}

// HalfExtents returns half of Size.
func (b *OBB) HalfExtents() v3.Vec {
	return b.Size().MulScalar(0.5)
}

// Volume returns the product of the extents.
func (b *OBB) Volume() float64 {
	return b.size[0] * b.size[1] * b.size[2]
}

// Diagonal returns the length of the space diagonal.
func (b *OBB) Diagonal() float64 {
	return b.Size().Length()
}

// Corners returns the eight world-space corners. Corner i lies on the
// positive side of local axis j when bit j of i is set: corner 0 is
// (-x,-y,-z), corner 1 is (+x,-y,-z), corner 2 is (-x,+y,-z) and corner 7 is
// (+x,+y,+z). Two boxes' corners correspond index by index.
func (b *OBB) Corners() [8]v3.Vec { return b.corners }

// Polyhedron returns the box boundary as six quadrilaterals.
func (b *OBB) Polyhedron() *polytope.Polyhedron {
	return polytope.Cuboid(b.corners).Polyhedron()
}

// Halfspaces returns the six face planes. Normals come from the rotation, so
// collapsed boxes still have well defined (coincident) opposite planes.
func (b *OBB) Halfspaces() []polytope.Plane {
	planes := make([]polytope.Plane, 0, 6)
	for j := 0; j < 3; j++ {
		n := b.axes[j]
		c := n.Dot(b.center)
		h := b.size[j] / 2
		planes = append(planes,
			polytope.Plane{Normal: n, Offset: c + h},
			polytope.Plane{Normal: n.MulScalar(-1), Offset: -c + h},
		)
	}
	return planes
}

var _ polytope.Convex = (*OBB)(nil)

// Equal reports whether two boxes have exactly the same corners.
func (b *OBB) Equal(other *OBB) bool {
	return b.corners == other.corners
}

func (b *OBB) String() string {
	return fmt.Sprintf("OBB{center: (%.3f, %.3f, %.3f), size: (%.3f, %.3f, %.3f)}",
		b.center.X, b.center.Y, b.center.Z, b.size[0], b.size[1], b.size[2])
}

func components(v v3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
