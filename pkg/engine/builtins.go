package engine

import (
	"fmt"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/obbeval/pkg/obb"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites scenario source before passing it to zygomys.
// It performs three transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: rotation-order -> rotation_order
//     zygomys reads a hyphen inside a name as subtraction, so kebab-case
//     identifiers are rewritten outside of strings and comments.
//
//  3. Line comments: ; and ;; become //, the only comment form zygomys
//     accepts.
//
// All transformations respect string literal boundaries.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// ; comment
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpBox wraps an unnamed box returned from `box` and consumed by `defbox`.
type sexpBox struct {
	label string
	pose  obb.Pose
}

func (b *sexpBox) SexpString(ps *zygo.PrintState) string {
	s := b.pose.Size
	return fmt.Sprintf("(box %.2fx%.2fx%.2f)", s.X, s.Y, s.Z)
}
func (b *sexpBox) Type() *zygo.RegisteredType { return nil }

// sexpBoxRef names a box defined with `defbox`.
type sexpBoxRef struct {
	name string
}

func (r *sexpBoxRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(box-ref %q)", r.name)
}
func (r *sexpBoxRef) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a vector.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		switch {
		case ok && i+1 < len(args):
			result.kw[name] = args[i+1]
			i += 2
		case ok:
			// Trailing keyword with no value.
			result.kw[name] = zygo.SexpNull
			i++
		default:
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toVec3 extracts a vector from a sexpVec3.
func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toBoxName accepts a box reference or a plain name.
func toBoxName(s zygo.Sexp) (string, error) {
	if r, ok := s.(*sexpBoxRef); ok {
		return r.name, nil
	}
	name, err := toString(s)
	if err != nil {
		return "", fmt.Errorf("expected box name or reference: %w", err)
	}
	return name, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the scenario builtins into a zygomys
// environment. They populate sc as the script runs.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, sc *Scenario) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}

		var c [3]float64
		for i, axis := range [3]string{"x", "y", "z"} {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %s: %w", axis, err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (box :center (vec3 0 0 0) :rotation (vec3 0 0 90) :size (vec3 4 2 1.5)
	//      :label "car")
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		b := &sexpBox{}

		vecs := []struct {
			key string
			dst *v3.Vec
		}{
			{"center", &b.pose.Center},
			{"rotation", &b.pose.Rotation},
			{"size", &b.pose.Size},
		}
		for _, f := range vecs {
			v, ok := pa.kw[f.key]
			if !ok {
				continue
			}
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("box: %s: %w", f.key, err)
			}
			*f.dst = vec
		}
		if _, ok := pa.kw["size"]; !ok {
			return zygo.SexpNull, fmt.Errorf("box: :size is required")
		}
		if v, ok := pa.kw["label"]; ok {
			s, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("box: label: %w", err)
			}
			b.label = s
		}

		if err := b.pose.Validate(); err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		return b, nil
	})

	// -----------------------------------------------------------------------
	// (defbox "name" (box ...))
	// -----------------------------------------------------------------------
	env.AddFunction("defbox", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("defbox requires a name and a box expression")
		}

		boxName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defbox: name: %w", err)
		}
		body, ok := args[1].(*sexpBox)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("defbox: expected box expression, got %T (%s)", args[1], args[1].SexpString(nil))
		}

		if err := sc.define(NamedBox{Name: boxName, Label: body.label, Pose: body.pose}); err != nil {
			return zygo.SexpNull, fmt.Errorf("defbox: %w", err)
		}
		return &sexpBoxRef{name: boxName}, nil
	})

	// -----------------------------------------------------------------------
	// (box-ref "name")
	// -----------------------------------------------------------------------
	env.AddFunction("box_ref", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("box-ref requires a name argument")
		}
		boxName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box-ref: name: %w", err)
		}
		if _, ok := sc.Lookup(boxName); !ok {
			return zygo.SexpNull, fmt.Errorf("box-ref: no box named %q", boxName)
		}
		return &sexpBoxRef{name: boxName}, nil
	})

	// -----------------------------------------------------------------------
	// (compare "gt" "pred")
	// -----------------------------------------------------------------------
	env.AddFunction("compare", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("compare requires a ground-truth box and a predicted box, got %d arguments", len(args))
		}

		var names [2]string
		for i, role := range [2]string{"gt", "pred"} {
			n, err := toBoxName(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("compare: %s: %w", role, err)
			}
			if _, ok := sc.Lookup(n); !ok {
				return zygo.SexpNull, fmt.Errorf("compare: %s: no box named %q", role, n)
			}
			names[i] = n
		}

		sc.Comparisons = append(sc.Comparisons, Comparison{GT: names[0], Pred: names[1]})
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (rotation-order :intrinsic)
	// -----------------------------------------------------------------------
	env.AddFunction("rotation_order", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("rotation-order requires one argument")
		}
		s, err := toKeywordString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("rotation-order: %w", err)
		}
		order, err := obb.ParseRotationOrder(s)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("rotation-order: %w", err)
		}
		sc.Order = order
		return zygo.SexpNull, nil
	})
}
