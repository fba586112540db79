package engine

import (
	"fmt"

	"github.com/chazu/obbeval/pkg/obb"
)

// NamedBox is a box defined with defbox.
type NamedBox struct {
	Name  string
	Label string
	Pose  obb.Pose
}

// Comparison names the two boxes of a compare form, ground truth first.
type Comparison struct {
	GT   string
	Pred string
}

// ComparisonResult is a scored comparison.
type ComparisonResult struct {
	Comparison
	obb.Metrics
}

// Scenario is the output of evaluating a script: the boxes it defined, in
// definition order, and the pairs it asked to compare.
type Scenario struct {
	Boxes       []NamedBox
	Comparisons []Comparison
	Order       obb.RotationOrder

	index map[string]int
}

// NewScenario returns an empty scenario using the default rotation order.
func NewScenario() *Scenario {
	return &Scenario{
		Order: obb.ExtrinsicXYZ,
		index: make(map[string]int),
	}
}

// Lookup returns the box with the given name.
func (s *Scenario) Lookup(name string) (NamedBox, bool) {
	i, ok := s.index[name]
	if !ok {
		return NamedBox{}, false
	}
	return s.Boxes[i], true
}

// BoxCount returns the number of defined boxes.
func (s *Scenario) BoxCount() int { return len(s.Boxes) }

func (s *Scenario) define(b NamedBox) error {
	if _, dup := s.index[b.Name]; dup {
		return fmt.Errorf("box %q is already defined", b.Name)
	}
	s.index[b.Name] = len(s.Boxes)
	s.Boxes = append(s.Boxes, b)
	return nil
}

// Options returns opts with the scenario's rotation order.
func (s *Scenario) Options(opts obb.Options) obb.Options {
	opts.Order = s.Order
	return opts
}

// Run scores every comparison in order.
func (s *Scenario) Run(opts obb.Options) ([]ComparisonResult, error) {
	opts = s.Options(opts)
	results := make([]ComparisonResult, 0, len(s.Comparisons))
	for _, c := range s.Comparisons {
		a, err := s.build(c.GT, opts)
		if err != nil {
			return nil, err
		}
		b, err := s.build(c.Pred, opts)
		if err != nil {
			return nil, err
		}
		results = append(results, ComparisonResult{Comparison: c, Metrics: obb.Compare(a, b, opts)})
	}
	return results, nil
}

func (s *Scenario) build(name string, opts obb.Options) (*obb.OBB, error) {
	nb, ok := s.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("engine: no box named %q", name)
	}
	b, err := obb.New(nb.Pose, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: box %q: %w", name, err)
	}
	return b, nil
}
