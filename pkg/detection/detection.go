// Package detection reads ground-truth and predicted box records and scores
// them against each other.
//
// A ground-truth record nests its geometry under "contour":
//
//	{"contour": {"center3D": {...}, "rotation3D": {...}, "size3D": {...}}}
//
// while a prediction carries the same three fields at the top level. Each
// vector is an object with x, y, z members or a three-element array. Records
// may also carry an id, a class label and (predictions) a confidence score.
package detection

import (
	"fmt"
	"strings"

	"github.com/chazu/obbeval/pkg/obb"
)

// Kind tells ground-truth records from predictions.
type Kind int

const (
	GroundTruth Kind = iota
	Prediction
)

func (k Kind) String() string {
	switch k {
	case GroundTruth:
		return "gt"
	case Prediction:
		return "pred"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Instance is one annotated or detected object.
type Instance struct {
	ID    string   `json:"id,omitempty"`
	Label string   `json:"label,omitempty"`
	Score float64  `json:"score,omitempty"`
	Pose  obb.Pose `json:"pose"`
}

// Box builds the instance's oriented box. Pose errors are reported as
// *InputError naming the offending field.
func (in Instance) Box(opts obb.Options) (*obb.OBB, error) {
	b, err := obb.New(in.Pose, opts)
	if err != nil {
		return nil, &InputError{ID: in.ID, Reason: "invalid box", Err: err}
	}
	return b, nil
}

// InputError reports a record that cannot be turned into a box: a missing
// or non-numeric geometry field, or a negative extent.
type InputError struct {
	ID     string // instance ID, when the error concerns a decoded instance
	Field  string // gjson path of the offending field
	Reason string // human-readable description
	Err    error  // underlying cause, if any
}

func (e *InputError) Error() string {
	var b strings.Builder
	b.WriteString("detection: ")
	if e.ID != "" {
		fmt.Fprintf(&b, "instance %s: ", e.ID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "%s: ", e.Field)
	}
	b.WriteString(e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *InputError) Unwrap() error { return e.Err }

// Compare scores a prediction against a ground-truth instance.
func Compare(gt, pred Instance, opts obb.Options) (obb.Metrics, error) {
	a, err := gt.Box(opts)
	if err != nil {
		return obb.Metrics{}, err
	}
	b, err := pred.Box(opts)
	if err != nil {
		return obb.Metrics{}, err
	}
	return obb.Compare(a, b, opts), nil
}

// EvaluateWith parses one ground-truth record and one prediction record and
// compares them.
func EvaluateWith(gt, pred []byte, opts obb.Options) (obb.Metrics, error) {
	g, err := ParseRecord(gt, GroundTruth)
	if err != nil {
		return obb.Metrics{}, err
	}
	p, err := ParseRecord(pred, Prediction)
	if err != nil {
		return obb.Metrics{}, err
	}
	return Compare(g, p, opts)
}

// Evaluate returns IoU, V2V and BBD for a ground-truth record and a
// prediction record, using the default options.
func Evaluate(gt, pred []byte) (iou, v2v, bbd float64, err error) {
	m, err := EvaluateWith(gt, pred, obb.DefaultOptions())
	if err != nil {
		return 0, 0, 0, err
	}
	return m.IoU, m.V2V, m.BBD, nil
}
