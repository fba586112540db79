package polytope

import v3 "github.com/deadsy/sdfx/vec/v3"

// Cuboid is a hexahedron given by its eight corners. Corner i sits on the
// positive side of local axis j when bit j of i is set, so corner 0 is the
// (-,-,-) corner and corner 7 the (+,+,+) corner.
type Cuboid [8]v3.Vec

// CuboidFaces lists the corner indices of each face in boundary order:
// -x, +x, -y, +y, -z, +z.
var CuboidFaces = [6][4]int{
	{0, 2, 6, 4},
	{1, 3, 7, 5},
	{0, 1, 5, 4},
	{2, 3, 7, 6},
	{0, 1, 3, 2},
	{4, 5, 7, 6},
}

// Polyhedron returns the six quadrilateral faces.
func (c Cuboid) Polyhedron() *Polyhedron {
	p := &Polyhedron{Faces: make([][]v3.Vec, 0, 6)}
	for _, f := range CuboidFaces {
		p.Faces = append(p.Faces, []v3.Vec{c[f[0]], c[f[1]], c[f[2]], c[f[3]]})
	}
	return p
}

// Halfspaces returns one outward plane per non-degenerate face. Faces of
// zero area carry no orientation and are skipped.
func (c Cuboid) Halfspaces() []Plane {
	mid := centroid(c[:])
	planes := make([]Plane, 0, 6)
	for _, f := range CuboidFaces {
		_, n := polygonAreaNormal([]v3.Vec{c[f[0]], c[f[1]], c[f[2]], c[f[3]]})
		if n.Length() == 0 {
			continue
		}
		o := c[f[0]]
		if n.Dot(mid.Sub(o)) > 0 {
			n = n.MulScalar(-1)
		}
		planes = append(planes, Plane{Normal: n, Offset: n.Dot(o)})
	}
	return planes
}

var _ Convex = Cuboid{}
