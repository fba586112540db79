package obb

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// RotationOrder selects how the three Euler angles compose.
type RotationOrder int

const (
	// ExtrinsicXYZ rotates about the fixed X, then Y, then Z axes:
	// R = Rz·Ry·Rx. This is what Rotation.from_euler("xyz") produces and the
	// order annotation files are written in.
	ExtrinsicXYZ RotationOrder = iota
	// IntrinsicXYZ rotates about the body X, then the new Y, then the new Z
	// axis: R = Rx·Ry·Rz.
	IntrinsicXYZ
)

func (o RotationOrder) String() string {
	switch o {
	case ExtrinsicXYZ:
		return "xyz"
	case IntrinsicXYZ:
		return "XYZ"
	default:
		return fmt.Sprintf("RotationOrder(%d)", int(o))
	}
}

// ParseRotationOrder accepts the scipy-style labels: "xyz" (extrinsic) and
// "XYZ" (intrinsic).
func ParseRotationOrder(s string) (RotationOrder, error) {
	switch s {
	case "xyz", "extrinsic":
		return ExtrinsicXYZ, nil
	case "XYZ", "intrinsic":
		return IntrinsicXYZ, nil
	}
	return 0, fmt.Errorf("obb: unknown rotation order %q, expected xyz or XYZ", s)
}

// RotationMatrix composes the Euler angles (degrees) into a rotation.
func RotationMatrix(deg v3.Vec, order RotationOrder) sdf.M44 {
	xRad := deg.X * math.Pi / 180.0
	yRad := deg.Y * math.Pi / 180.0
	zRad := deg.Z * math.Pi / 180.0

	if order == IntrinsicXYZ {
		return sdf.RotateX(xRad).Mul(sdf.RotateY(yRad)).Mul(sdf.RotateZ(zRad))
	}
	return sdf.RotateZ(zRad).Mul(sdf.RotateY(yRad)).Mul(sdf.RotateX(xRad))
}

// rotationAxes returns the columns of the rotation: the world directions of
// the box's local X, Y and Z axes.
func rotationAxes(deg v3.Vec, order RotationOrder) [3]v3.Vec {
	m := RotationMatrix(deg, order)
	return [3]v3.Vec{
		m.MulPosition(v3.Vec{X: 1}),
		m.MulPosition(v3.Vec{Y: 1}),
		m.MulPosition(v3.Vec{Z: 1}),
	}
}
