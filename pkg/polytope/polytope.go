// Package polytope clips convex polyhedra against half-spaces and measures
// their volume. It knows nothing about oriented boxes: any convex solid that
// can list its boundary faces and its supporting half-spaces can be
// intersected with any other.
package polytope

import (
	"math"
	"sort"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Tolerance is the signed plane distance below which a point counts as
// lying on a plane.
const Tolerance = 1e-9

// Plane is a supporting half-space boundary. A point p is inside when
// Normal·p <= Offset. Normal must be unit length.
type Plane struct {
	Normal v3.Vec
	Offset float64
}

// Distance returns the signed distance from v to the plane; positive values
// lie outside the half-space.
func (pl Plane) Distance(v v3.Vec) float64 {
	return pl.Normal.Dot(v) - pl.Offset
}

// Polyhedron is a convex polyhedron stored as its boundary polygons. Each
// face lists its vertices in boundary order; winding direction is not
// significant.
type Polyhedron struct {
	Faces [][]v3.Vec
}

// Convex is a convex solid usable by Intersect.
type Convex interface {
	// Polyhedron returns the solid's boundary.
	Polyhedron() *Polyhedron
	// Halfspaces returns the planes whose intersection is the solid.
	Halfspaces() []Plane
}

// IsEmpty reports whether the polyhedron has no faces left.
func (p *Polyhedron) IsEmpty() bool {
	return p == nil || len(p.Faces) == 0
}

// Vertices returns every face vertex. Shared vertices appear once per face.
func (p *Polyhedron) Vertices() []v3.Vec {
	if p == nil {
		return nil
	}
	var out []v3.Vec
	for _, f := range p.Faces {
		out = append(out, f...)
	}
	return out
}

// Clip returns the part of p inside the half-space of pl. When no vertex
// lies outside the plane the receiver itself is returned, so callers can
// detect an unchanged solid by pointer comparison.
func (p *Polyhedron) Clip(pl Plane) *Polyhedron {
	if p.IsEmpty() {
		return p
	}

	outside := false
	for _, f := range p.Faces {
		for _, v := range f {
			if pl.Distance(v) > Tolerance {
				outside = true
				break
			}
		}
		if outside {
			break
		}
	}
	if !outside {
		return p
	}

	out := &Polyhedron{}
	var opening []v3.Vec
	for _, f := range p.Faces {
		clipped, onPlane := clipPolygon(f, pl)
		opening = append(opening, onPlane...)
		if len(clipped) >= 3 {
			out.Faces = append(out.Faces, clipped)
		}
	}

	// The cut leaves an opening in the plane; close it with one face.
	if c := orderCoplanar(dedupe(opening), pl.Normal); len(c) >= 3 {
		out.Faces = append(out.Faces, c)
	}
	return out
}

// ClipAll clips p successively against every plane. It returns the receiver
// when no plane removed anything.
func (p *Polyhedron) ClipAll(planes []Plane) *Polyhedron {
	cur := p
	for _, pl := range planes {
		cur = cur.Clip(pl)
		if cur.IsEmpty() {
			return &Polyhedron{}
		}
	}
	return cur
}

// Volume returns the enclosed volume. It sums the pyramids spanned by each
// face and the vertex centroid, which lies inside any convex polyhedron.
func (p *Polyhedron) Volume() float64 {
	verts := p.Vertices()
	if len(p.Faces) < 4 || len(verts) < 4 {
		return 0
	}
	ref := centroid(verts)

	var vol float64
	for _, f := range p.Faces {
		area, n := polygonAreaNormal(f)
		if area <= 0 {
			continue
		}
		h := math.Abs(n.Dot(f[0].Sub(ref)))
		vol += area * h / 3
	}
	return vol
}

// Intersect clips a's boundary against b's half-spaces. The second result
// reports whether a lies entirely inside b; in that case the returned
// polyhedron is a's own boundary, untouched.
func Intersect(a, b Convex) (*Polyhedron, bool) {
	pa := a.Polyhedron()
	clipped := pa.ClipAll(b.Halfspaces())
	return clipped, clipped == pa
}

// IntersectionVolume returns the volume shared by two convex solids.
func IntersectionVolume(a, b Convex) float64 {
	p, _ := Intersect(a, b)
	return p.Volume()
}

// clipPolygon runs one Sutherland–Hodgman pass of poly against pl. It returns
// the kept polygon and every kept point that lies on the plane.
func clipPolygon(poly []v3.Vec, pl Plane) (kept, onPlane []v3.Vec) {
	n := len(poly)
	for i := 0; i < n; i++ {
		cur := poly[i]
		next := poly[(i+1)%n]
		dc := pl.Distance(cur)
		dn := pl.Distance(next)

		if dc <= Tolerance {
			kept = append(kept, cur)
			if dc >= -Tolerance {
				onPlane = append(onPlane, cur)
			}
		}
		if (dc < -Tolerance && dn > Tolerance) || (dc > Tolerance && dn < -Tolerance) {
			t := dc / (dc - dn)
			x := cur.Add(next.Sub(cur).MulScalar(t))
			kept = append(kept, x)
			onPlane = append(onPlane, x)
		}
	}
	return kept, onPlane
}

// dedupe drops points closer than Tolerance to an earlier point.
func dedupe(pts []v3.Vec) []v3.Vec {
	var out []v3.Vec
	for _, p := range pts {
		dup := false
		for _, q := range out {
			if p.Sub(q).Length() <= Tolerance {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

// orderCoplanar sorts points lying in a plane with normal n by angle around
// their centroid, producing a convex polygon boundary.
func orderCoplanar(pts []v3.Vec, n v3.Vec) []v3.Vec {
	if len(pts) < 3 {
		return nil
	}
	c := centroid(pts)
	u := perpendicular(n)
	w := n.Cross(u)

	type polar struct {
		angle float64
		p     v3.Vec
	}
	ps := make([]polar, len(pts))
	for i, p := range pts {
		d := p.Sub(c)
		ps[i] = polar{angle: math.Atan2(d.Dot(w), d.Dot(u)), p: p}
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].angle < ps[j].angle })

	out := make([]v3.Vec, len(ps))
	for i := range ps {
		out[i] = ps[i].p
	}
	return out
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

func centroid(pts []v3.Vec) v3.Vec {
	var sum v3.Vec
	for _, p := range pts {
		sum = sum.Add(p)
	}
	return sum.MulScalar(1 / float64(len(pts)))
}

// polygonAreaNormal returns the area and unit normal of a planar convex
// polygon. Degenerate polygons report zero area.
func polygonAreaNormal(poly []v3.Vec) (float64, v3.Vec) {
	if len(poly) < 3 {
		return 0, v3.Vec{}
	}
	var s v3.Vec
	o := poly[0]
	for i := 1; i+1 < len(poly); i++ {
		s = s.Add(poly[i].Sub(o).Cross(poly[i+1].Sub(o)))
	}
	l := s.Length()
	if l <= 0 {
		return 0, v3.Vec{}
	}
	return l / 2, s.MulScalar(1 / l)
}
