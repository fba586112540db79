package detection

import "fmt"

// ValidationSeverity indicates whether a validation finding blocks evaluation
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks evaluation
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	ID       string             // which instance has the problem (empty if set-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] instance %s: %s", e.Severity, e.ID, e.Message)
}

// ValidationWarning describes a non-blocking advisory finding.
type ValidationWarning struct {
	ID      string
	Message string
}

// ValidationResult bundles errors (blocking) and warnings (advisory).
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// OK reports whether there are no blocking errors.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Validate checks a set of instances. Errors: non-finite components,
// negative extents, duplicate IDs. Warnings: zero extents (the box
// collapses and encloses no volume), scores outside [0, 1].
// It never mutates its input.
func Validate(instances []Instance) ValidationResult {
	var result ValidationResult
	seen := make(map[string]int, len(instances))

	for i, in := range instances {
		if in.ID != "" {
			if j, dup := seen[in.ID]; dup {
				result.Errors = append(result.Errors, ValidationError{
					ID:       in.ID,
					Message:  fmt.Sprintf("duplicate id (instances %d and %d)", j, i),
					Severity: SeverityError,
				})
			} else {
				seen[in.ID] = i
			}
		}

		if err := in.Pose.Validate(); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				ID:       in.ID,
				Message:  err.Error(),
				Severity: SeverityError,
			})
			continue
		}

		result.Warnings = append(result.Warnings, validateExtents(in)...)
		if in.Score < 0 || in.Score > 1 {
			result.Warnings = append(result.Warnings, ValidationWarning{
				ID:      in.ID,
				Message: fmt.Sprintf("score %.4f is outside [0, 1]", in.Score),
			})
		}
	}
	return result
}

// validateExtents warns about each zero extent.
func validateExtents(in Instance) []ValidationWarning {
	var warnings []ValidationWarning
	size := [3]float64{in.Pose.Size.X, in.Pose.Size.Y, in.Pose.Size.Z}
	for i, name := range [3]string{"x", "y", "z"} {
		if size[i] == 0 {
			warnings = append(warnings, ValidationWarning{
				ID:      in.ID,
				Message: fmt.Sprintf("size.%s is 0, box has no volume", name),
			})
		}
	}
	return warnings
}
