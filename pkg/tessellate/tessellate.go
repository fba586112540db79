// Package tessellate turns box poses into triangle meshes using a geometry
// kernel. One mesh is produced per box, plus optional overlap meshes for
// compared pairs.
package tessellate

import (
	"fmt"

	"github.com/chazu/obbeval/pkg/kernel"
	"github.com/chazu/obbeval/pkg/obb"
)

// Part is a named box to tessellate.
type Part struct {
	Name string
	Pose obb.Pose
}

// rotationStep is a single rotation about a world axis.
type rotationStep struct {
	axis kernel.Axis
	deg  float64
}

// rotationSteps lists the world-axis rotations that reproduce the given
// Euler composition when applied one after another.
func rotationSteps(p obb.Pose, order obb.RotationOrder) []rotationStep {
	x := rotationStep{kernel.AxisX, p.Rotation.X}
	y := rotationStep{kernel.AxisY, p.Rotation.Y}
	z := rotationStep{kernel.AxisZ, p.Rotation.Z}
	if order == obb.IntrinsicXYZ {
		return []rotationStep{z, y, x}
	}
	return []rotationStep{x, y, z}
}

// Solid builds the kernel solid for a pose: a centered box, rotated, then
// moved to the pose center. Every extent must be positive.
func Solid(k kernel.Kernel, p obb.Pose, order obb.RotationOrder) (kernel.Solid, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	solid, err := k.Box(p.Size.X, p.Size.Y, p.Size.Z)
	if err != nil {
		return nil, err
	}

	// Apply rotation first, then translation.
	for _, s := range rotationSteps(p, order) {
		if s.deg != 0 {
			solid = k.Rotate(solid, s.axis, s.deg)
		}
	}
	c := p.Center
	if c.X != 0 || c.Y != 0 || c.Z != 0 {
		solid = k.Translate(solid, c.X, c.Y, c.Z)
	}
	return solid, nil
}

// collapsed reports whether the pose has a zero extent. Such boxes enclose
// no volume and produce an empty mesh.
func collapsed(p obb.Pose) bool {
	return p.Size.X == 0 || p.Size.Y == 0 || p.Size.Z == 0
}

// Tessellate produces one mesh per part, in order. Collapsed parts get an
// empty mesh so that indices still line up with the input.
func Tessellate(parts []Part, k kernel.Kernel, order obb.RotationOrder) ([]*kernel.Mesh, error) {
	meshes := make([]*kernel.Mesh, 0, len(parts))
	for i, part := range parts {
		name := part.Name
		if name == "" {
			name = fmt.Sprintf("box-%d", i)
		}

		if err := part.Pose.Validate(); err != nil {
			return nil, fmt.Errorf("tessellate: part %s: %w", name, err)
		}
		if collapsed(part.Pose) {
			meshes = append(meshes, &kernel.Mesh{Name: name})
			continue
		}

		solid, err := Solid(k, part.Pose, order)
		if err != nil {
			return nil, fmt.Errorf("tessellate: part %s: %w", name, err)
		}
		mesh, err := k.ToMesh(solid)
		if err != nil {
			return nil, fmt.Errorf("tessellate: ToMesh failed for part %s: %w", name, err)
		}
		mesh.Name = name
		meshes = append(meshes, mesh)
	}
	return meshes, nil
}

// Overlap meshes the region shared by two boxes. Pairs that do not share
// any volume get an empty mesh.
func Overlap(k kernel.Kernel, a, b Part, order obb.RotationOrder) (*kernel.Mesh, error) {
	name := a.Name + "∩" + b.Name
	opts := obb.Options{Epsilon: obb.DefaultEpsilon, Order: order}
	ba, err := obb.New(a.Pose, opts)
	if err != nil {
		return nil, fmt.Errorf("tessellate: part %s: %w", a.Name, err)
	}
	bb, err := obb.New(b.Pose, opts)
	if err != nil {
		return nil, fmt.Errorf("tessellate: part %s: %w", b.Name, err)
	}
	if ba.IntersectionVolume(bb) <= 0 {
		return &kernel.Mesh{Name: name}, nil
	}

	sa, err := Solid(k, a.Pose, order)
	if err != nil {
		return nil, fmt.Errorf("tessellate: part %s: %w", a.Name, err)
	}
	sb, err := Solid(k, b.Pose, order)
	if err != nil {
		return nil, fmt.Errorf("tessellate: part %s: %w", b.Name, err)
	}
	mesh, err := k.ToMesh(k.Intersection(sa, sb))
	if err != nil {
		return nil, fmt.Errorf("tessellate: ToMesh failed for overlap %s: %w", name, err)
	}
	mesh.Name = name
	return mesh, nil
}
