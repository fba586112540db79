// Package kernel defines the abstract geometry kernel interface used to
// turn oriented boxes into solids. Solids can be sampled for inside tests
// and tessellated into meshes; the sdfx package provides the implementation.
package kernel

import "fmt"

// Axis names a world coordinate axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
	// Contains reports whether p lies inside or on the surface.
	Contains(p [3]float64) bool
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Box creates a box with the given full extents centered at the origin.
	Box(x, y, z float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms. Each call applies a rotation about a fixed world axis
	// to the solid as it currently stands.
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, axis Axis, deg float64) Solid

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}
