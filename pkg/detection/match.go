package detection

import (
	"fmt"
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/chazu/obbeval/pkg/obb"
)

// MatchConfig controls how predictions are paired with ground truth in a
// frame.
type MatchConfig struct {
	IoUThreshold     float64     // minimum IoU for an overlap match
	CenterDistance   float64     // fallback radius for center matching; 0 disables it
	RequireSameLabel bool        // only pair instances with equal labels
	Options          obb.Options // box construction and comparison
}

// DefaultMatchConfig returns the configuration used when none is given.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		IoUThreshold:     0.1,
		CenterDistance:   2.0,
		RequireSameLabel: true,
		Options:          obb.DefaultOptions(),
	}
}

// Match pairs one ground-truth instance with one prediction.
type Match struct {
	GT      int // index into the ground-truth slice
	Pred    int // index into the prediction slice
	Metrics obb.Metrics
}

// FrameResult is the outcome of matching one frame.
type FrameResult struct {
	Matches       []Match
	UnmatchedGT   []int // ascending
	UnmatchedPred []int // ascending
}

// R-tree fan-out. Frames hold tens to hundreds of boxes.
const (
	treeMinChildren = 25
	treeMaxChildren = 50
)

// Flat boxes are padded so their bounds form a valid R-tree rectangle. The
// padding grows with the coordinate magnitude so that lo+side stays above lo
// far from the origin.
const (
	minRectSide = 1e-9
	relRectSide = 1e-12
)

// indexed is a ground-truth box stored in the R-tree.
type indexed struct {
	idx  int
	box  *obb.OBB
	rect rtreego.Rect
}

func (e *indexed) Bounds() rtreego.Rect { return e.rect }

var _ rtreego.Spatial = (*indexed)(nil)

// bounds returns the world-aligned rectangle enclosing the box.
func bounds(b *obb.OBB) (rtreego.Rect, error) {
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, c := range b.Corners() {
		for j, v := range [3]float64{c.X, c.Y, c.Z} {
			lo[j] = math.Min(lo[j], v)
			hi[j] = math.Max(hi[j], v)
		}
	}
	return cube(lo, hi)
}

func cube(lo, hi [3]float64) (rtreego.Rect, error) {
	lengths := make([]float64, 3)
	for j := range lengths {
		pad := math.Max(minRectSide, relRectSide*math.Max(math.Abs(lo[j]), math.Abs(hi[j])))
		lengths[j] = math.Max(hi[j]-lo[j], pad)
	}
	return rtreego.NewRect(rtreego.Point{lo[0], lo[1], lo[2]}, lengths)
}

// MatchFrame greedily pairs predictions with ground truth. Predictions are
// visited in descending score order. Each one takes the unmatched
// ground-truth box of highest IoU, provided it reaches IoUThreshold;
// failing that, the unmatched ground-truth box whose center is nearest,
// provided it lies within CenterDistance. Candidates are found through an
// R-tree over the ground-truth bounds.
func MatchFrame(gt, pred []Instance, cfg MatchConfig) (FrameResult, error) {
	gtBoxes := make([]*obb.OBB, len(gt))
	tree := rtreego.NewTree(3, treeMinChildren, treeMaxChildren)
	for i, in := range gt {
		b, err := in.Box(cfg.Options)
		if err != nil {
			return FrameResult{}, fmt.Errorf("detection: gt %d: %w", i, err)
		}
		r, err := bounds(b)
		if err != nil {
			return FrameResult{}, fmt.Errorf("detection: gt %d bounds: %w", i, err)
		}
		gtBoxes[i] = b
		tree.Insert(&indexed{idx: i, box: b, rect: r})
	}

	predBoxes := make([]*obb.OBB, len(pred))
	for i, in := range pred {
		b, err := in.Box(cfg.Options)
		if err != nil {
			return FrameResult{}, fmt.Errorf("detection: pred %d: %w", i, err)
		}
		predBoxes[i] = b
	}

	order := make([]int, len(pred))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return pred[order[a]].Score > pred[order[b]].Score
	})

	taken := make([]bool, len(gt))
	paired := make([]bool, len(pred))
	var result FrameResult

	for _, p := range order {
		pb := predBoxes[p]
		eligible := func(e *indexed) bool {
			return !taken[e.idx] && (!cfg.RequireSameLabel || gt[e.idx].Label == pred[p].Label)
		}

		g := bestOverlap(tree, pb, cfg, eligible)
		if g < 0 {
			g = nearestCenter(tree, pb, cfg.CenterDistance, eligible)
		}
		if g < 0 {
			continue
		}

		taken[g] = true
		paired[p] = true
		result.Matches = append(result.Matches, Match{
			GT:      g,
			Pred:    p,
			Metrics: obb.Compare(gtBoxes[g], pb, cfg.Options),
		})
	}

	for i, ok := range taken {
		if !ok {
			result.UnmatchedGT = append(result.UnmatchedGT, i)
		}
	}
	for i, ok := range paired {
		if !ok {
			result.UnmatchedPred = append(result.UnmatchedPred, i)
		}
	}
	return result, nil
}

// bestOverlap returns the eligible ground-truth index of highest IoU with
// pb, or -1 if none reaches the threshold.
func bestOverlap(tree *rtreego.Rtree, pb *obb.OBB, cfg MatchConfig, eligible func(*indexed) bool) int {
	r, err := bounds(pb)
	if err != nil {
		return -1
	}
	eps := cfg.Options.Epsilon
	if eps <= 0 {
		eps = obb.DefaultEpsilon
	}
	best, bestIoU := -1, 0.0
	for _, s := range tree.SearchIntersect(r) {
		e := s.(*indexed)
		if !eligible(e) {
			continue
		}
		iou := e.box.IoU(pb, eps)
		if iou <= 0 || iou < cfg.IoUThreshold {
			continue
		}
		if best == -1 || iou > bestIoU || (iou == bestIoU && e.idx < best) {
			best, bestIoU = e.idx, iou
		}
	}
	return best
}

// nearestCenter returns the eligible ground-truth index whose center is
// closest to pb's and within radius, or -1.
func nearestCenter(tree *rtreego.Rtree, pb *obb.OBB, radius float64, eligible func(*indexed) bool) int {
	if radius <= 0 {
		return -1
	}
	c := pb.Center()
	lo := [3]float64{c.X - radius, c.Y - radius, c.Z - radius}
	hi := [3]float64{c.X + radius, c.Y + radius, c.Z + radius}
	q, err := cube(lo, hi)
	if err != nil {
		return -1
	}

	best, bestDist := -1, math.Inf(1)
	for _, s := range tree.SearchIntersect(q) {
		e := s.(*indexed)
		if !eligible(e) {
			continue
		}
		d := e.box.Center().Sub(c).Length()
		if d > radius {
			continue
		}
		if d < bestDist || (d == bestDist && e.idx < best) {
			best, bestDist = e.idx, d
		}
	}
	return best
}
