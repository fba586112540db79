package obb

import (
	"math"

	"github.com/chazu/obbeval/pkg/polytope"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ---------------------------------------------------------------------------
// Overlap
// ---------------------------------------------------------------------------

// parallelCross is the cross product length below which two edge directions
// are treated as parallel and skipped as a separating axis candidate.
const parallelCross = 1e-9

// Intersects reports whether the two solids share at least one point.
// Touching boxes intersect. It is a separating axis test over the 3+3 face
// normals and the 9 edge cross products.
func (b *OBB) Intersects(other *OBB) bool {
	d := other.center.Sub(b.center)
	if d.Length() > (b.Diagonal()+other.Diagonal())/2 {
		return false
	}

	axes := make([]v3.Vec, 0, 15)
	axes = append(axes, b.axes[:]...)
	axes = append(axes, other.axes[:]...)
	for _, u := range b.axes {
		for _, w := range other.axes {
			c := u.Cross(w)
			if l := c.Length(); l > parallelCross {
				axes = append(axes, c.MulScalar(1/l))
			}
		}
	}

	for _, l := range axes {
		if math.Abs(d.Dot(l)) > b.projectedRadius(l)+other.projectedRadius(l) {
			return false
		}
	}
	return true
}

// projectedRadius is half the width of the box's shadow on unit axis l.
func (b *OBB) projectedRadius(l v3.Vec) float64 {
	var r float64
	for j := 0; j < 3; j++ {
		r += b.size[j] / 2 * math.Abs(b.axes[j].Dot(l))
	}
	return r
}

// IntersectionVolume returns the volume of the solid shared by both boxes.
func (b *OBB) IntersectionVolume(other *OBB) float64 {
	if !b.Intersects(other) {
		return 0
	}
	p, inside := polytope.Intersect(b, other)
	if inside {
		return b.Volume()
	}
	return math.Min(p.Volume(), math.Min(b.Volume(), other.Volume()))
}

// IoU returns the volumetric intersection over union. The union is floored
// at epsilon, so two collapsed boxes score 0 rather than NaN. The result is
// clamped to [0, 1].
func (b *OBB) IoU(other *OBB, epsilon float64) float64 {
	inter := b.IntersectionVolume(other)
	if inter <= 0 {
		return 0
	}
	union := b.Volume() + other.Volume() - inter
	iou := inter / math.Max(union, epsilon)
	return math.Max(0, math.Min(1, iou))
}

// ---------------------------------------------------------------------------
// Distances
// ---------------------------------------------------------------------------

// V2V returns the mean distance between corresponding corners. Corners are
// paired by index (see Corners), not by proximity, so a box turned half a
// revolution onto itself is still far from the original.
func (b *OBB) V2V(other *OBB) float64 {
	var sum float64
	for i := range b.corners {
		sum += b.corners[i].Sub(other.corners[i]).Length()
	}
	return sum / float64(len(b.corners))
}

// PointDistance returns the distance from p to the solid box; points inside
// are at distance 0.
func (b *OBB) PointDistance(p v3.Vec) float64 {
	local := p.Sub(b.center)
	var sq float64
	for j := 0; j < 3; j++ {
		t := local.Dot(b.axes[j])
		h := b.size[j] / 2
		if excess := math.Abs(t) - h; excess > 0 {
			sq += excess * excess
		}
	}
	return math.Sqrt(sq)
}

// Distance returns the minimum distance between the two solids: 0 when they
// touch or overlap, otherwise the length of the shortest segment joining
// them. For disjoint convex boxes the closest features are a corner against
// the other solid or an edge against an edge, so checking both covers every
// case.
func (b *OBB) Distance(other *OBB) float64 {
	if b.Intersects(other) {
		return 0
	}

	d := math.Inf(1)
	for _, c := range b.corners {
		d = math.Min(d, other.PointDistance(c))
	}
	for _, c := range other.corners {
		d = math.Min(d, b.PointDistance(c))
	}
	for _, e := range b.edges() {
		for _, f := range other.edges() {
			d = math.Min(d, segmentDistance(e[0], e[1], f[0], f[1]))
		}
	}
	return d
}

// edges returns the twelve box edges as corner pairs differing in one bit.
func (b *OBB) edges() [][2]v3.Vec {
	out := make([][2]v3.Vec, 0, 12)
	for i := 0; i < 8; i++ {
		for j := 0; j < 3; j++ {
			if i&(1<<j) == 0 {
				out = append(out, [2]v3.Vec{b.corners[i], b.corners[i|1<<j]})
			}
		}
	}
	return out
}

// segmentDistance returns the closest distance between segments p1q1 and
// p2q2. Zero-length segments are handled as points.
func segmentDistance(p1, q1, p2, q2 v3.Vec) float64 {
	const tiny = 1e-18
	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)
	a := d1.Dot(d1)
	e := d2.Dot(d2)
	f := d2.Dot(r)

	var s, t float64
	switch {
	case a <= tiny && e <= tiny:
		return r.Length()
	case a <= tiny:
		t = clamp01(f / e)
	default:
		c := d1.Dot(r)
		if e <= tiny {
			s = clamp01(-c / a)
			break
		}
		bb := d1.Dot(d2)
		if denom := a*e - bb*bb; denom > tiny {
			s = clamp01((bb*f - c*e) / denom)
		}
		t = (bb*s + f) / e
		if t < 0 {
			t = 0
			s = clamp01(-c / a)
		} else if t > 1 {
			t = 1
			s = clamp01((bb - c) / a)
		}
	}

	c1 := p1.Add(d1.MulScalar(s))
	c2 := p2.Add(d2.MulScalar(t))
	return c1.Sub(c2).Length()
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// ---------------------------------------------------------------------------
// Disparity
// ---------------------------------------------------------------------------

// BBD returns the bounding box disparity:
//
//	BBD(A, B) = (1 - IoU(A, B)) + (Distance(A, B) + V2V(A, B)) / s
//
// where s is the mean space diagonal of the two boxes, floored at epsilon.
// The overlap term ranks overlapping pairs, the gap term keeps disjoint
// pairs ordered by separation and the corner term charges orientation and
// size differences that leave the occupied space unchanged, such as a half
// turn. BBD is 0 exactly when the boxes are Equal, collapsed ones included.
func (b *OBB) BBD(other *OBB, epsilon float64) float64 {
	if b.Equal(other) {
		return 0
	}
	iou := b.IoU(other, epsilon)
	scale := math.Max((b.Diagonal()+other.Diagonal())/2, epsilon)
	return (1 - iou) + (b.Distance(other)+b.V2V(other))/scale
}

// Metrics bundles the three comparison scores for a box pair.
type Metrics struct {
	IoU float64 `json:"iou"`
	V2V float64 `json:"v2v"`
	BBD float64 `json:"bbd"`
}

// Compare computes IoU, V2V and BBD of b against other.
func Compare(b, other *OBB, opts Options) Metrics {
	eps := opts.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	return Metrics{
		IoU: b.IoU(other, eps),
		V2V: b.V2V(other),
		BBD: b.BBD(other, eps),
	}
}
