package engine

import (
	"math"
	"strings"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/obbeval/pkg/obb"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(box :size v)`,
			expect: `(box "__kw_size" v)`,
		},
		{
			name:   "multiple keywords",
			input:  `(box :center c :size s)`,
			expect: `(box "__kw_center" c "__kw_size" s)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(rotation-order :intrinsic)`,
			expect: `(rotation_order "__kw_intrinsic")`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative literal preserved",
			input:  `(vec3 0 -45 0)`,
			expect: `(vec3 0 -45 0)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "hyphen in name string preserved",
			input:  `(defbox "front-car" b)`,
			expect: `(defbox "front-car" b)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// evaluate runs source and fails the test on any error.
func evaluate(t *testing.T, source string) *Scenario {
	t.Helper()
	sc, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if sc == nil {
		t.Fatal("expected non-nil scenario")
	}
	return sc
}

// evalFails runs source and returns the first eval error.
func evalFails(t *testing.T, source string) EvalError {
	t.Helper()
	sc, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if sc != nil {
		t.Fatal("expected nil scenario on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error")
	}
	return evalErrs[0]
}

// ---------------------------------------------------------------------------
// Box definitions
// ---------------------------------------------------------------------------

func TestDefBox(t *testing.T) {
	sc := evaluate(t, `
(defbox "car-1" (box :center (vec3 1 2 3) :rotation (vec3 0 0 90) :size (vec3 4 2 1.5) :label "car"))
`)
	if sc.BoxCount() != 1 {
		t.Fatalf("expected 1 box, got %d", sc.BoxCount())
	}
	b, ok := sc.Lookup("car-1")
	if !ok {
		t.Fatal("box car-1 not found")
	}
	want := obb.Pose{
		Center:   vec(1, 2, 3),
		Rotation: vec(0, 0, 90),
		Size:     vec(4, 2, 1.5),
	}
	if b.Pose != want {
		t.Errorf("pose = %+v, want %+v", b.Pose, want)
	}
	if b.Label != "car" {
		t.Errorf("label = %q, want %q", b.Label, "car")
	}
}

func TestBoxDefaults(t *testing.T) {
	sc := evaluate(t, `(defbox "a" (box :size (vec3 1 1 1) :label :pedestrian))`)
	b, _ := sc.Lookup("a")
	if b.Pose.Center != vec(0, 0, 0) || b.Pose.Rotation != vec(0, 0, 0) {
		t.Errorf("center/rotation = %v/%v, want zero", b.Pose.Center, b.Pose.Rotation)
	}
	if b.Label != "pedestrian" {
		t.Errorf("label = %q, want %q", b.Label, "pedestrian")
	}
}

func TestVariableReference(t *testing.T) {
	sc := evaluate(t, `
(def unit (box :size (vec3 1 1 1)))
(defbox "a" unit)
(defbox "b" unit)
`)
	if sc.BoxCount() != 2 {
		t.Fatalf("expected 2 boxes, got %d", sc.BoxCount())
	}
	if sc.Boxes[0].Name != "a" || sc.Boxes[1].Name != "b" {
		t.Errorf("boxes out of definition order: %q, %q", sc.Boxes[0].Name, sc.Boxes[1].Name)
	}
}

func TestBoxErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"missing size", `(defbox "a" (box :center (vec3 0 0 0)))`, ":size is required"},
		{"negative size", `(defbox "a" (box :size (vec3 1 -1 1)))`, "negative"},
		{"size not a vector", `(defbox "a" (box :size 3))`, "expected vec3"},
		{"vec3 arity", `(vec3 1 2)`, "exactly 3 arguments"},
		{"defbox body", `(defbox "a" 5)`, "expected box expression"},
		{"duplicate name", `(defbox "a" (box :size (vec3 1 1 1))) (defbox "a" (box :size (vec3 1 1 1)))`, "already defined"},
		{"unknown box", `(compare "a" "b")`, "no box named"},
		{"unknown ref", `(box-ref "ghost")`, "no box named"},
		{"bad rotation order", `(rotation-order :zyx)`, "unknown rotation order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := evalFails(t, tt.source)
			if !strings.Contains(e.Message, tt.want) {
				t.Errorf("error = %q, want containing %q", e.Message, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Comparisons
// ---------------------------------------------------------------------------

func TestCompare(t *testing.T) {
	sc := evaluate(t, `
;; A (2,1,1) slab against itself turned a quarter turn about z.
(defbox "gt" (box :size (vec3 2 1 1)))
(def p (defbox "pred" (box :rotation (vec3 0 0 90) :size (vec3 2 1 1))))
(compare "gt" p)
(compare (box-ref "gt") "gt")
`)
	if len(sc.Comparisons) != 2 {
		t.Fatalf("expected 2 comparisons, got %d", len(sc.Comparisons))
	}
	if sc.Comparisons[0] != (Comparison{GT: "gt", Pred: "pred"}) {
		t.Errorf("comparison 0 = %+v", sc.Comparisons[0])
	}

	results, err := sc.Run(obb.DefaultOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := results[0].IoU; math.Abs(got-1.0/3) > 1e-9 {
		t.Errorf("IoU = %v, want 1/3", got)
	}
	if results[1].IoU != 1 || results[1].V2V != 0 || results[1].BBD != 0 {
		t.Errorf("self comparison = %+v, want IoU 1, V2V 0, BBD 0", results[1].Metrics)
	}
}

func TestRotationOrder(t *testing.T) {
	sc := evaluate(t, `(rotation-order :intrinsic)`)
	if sc.Order != obb.IntrinsicXYZ {
		t.Errorf("order = %v, want %v", sc.Order, obb.IntrinsicXYZ)
	}
	if got := sc.Options(obb.DefaultOptions()).Order; got != obb.IntrinsicXYZ {
		t.Errorf("Options().Order = %v, want %v", got, obb.IntrinsicXYZ)
	}

	sc = evaluate(t, `(+ 1 2)`)
	if sc.Order != obb.ExtrinsicXYZ {
		t.Errorf("default order = %v, want %v", sc.Order, obb.ExtrinsicXYZ)
	}
}

func TestRunUnknownBox(t *testing.T) {
	sc := NewScenario()
	sc.Comparisons = append(sc.Comparisons, Comparison{GT: "a", Pred: "b"})
	if _, err := sc.Run(obb.DefaultOptions()); err == nil {
		t.Fatal("Run() error = nil, want error for undefined box")
	}
}

func TestErrorLineNumber(t *testing.T) {
	e := evalFails(t, "(defbox \"a\" (box :size (vec3 1 1 1)))\n(compare \"a\" \"missing\")")
	if e.Line != 0 && e.Line != 2 {
		t.Errorf("line = %d, want 2 (or 0 when zygomys omits it)", e.Line)
	}
}

func vec(x, y, z float64) v3.Vec { return v3.Vec{X: x, Y: y, Z: z} }
