// Package schema enforces the typed, bounded contracts each pipeline
// stage output must satisfy before it is accepted into run state.
// Violations are data, not errors: stage handlers decide whether a
// violation means retry or default-and-continue.
package schema

import (
	"fmt"
	"strings"
)

// Violation reports one failed check with the offending field path.
type Violation struct {
	Field  string
	Reason string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Reason
}

// Violations is the full set of failures from one Validate call.
type Violations []Violation

// Error renders the set as a single message for wrapping into a stage
// retry signal.
func (vs Violations) Error() string {
	if len(vs) == 0 {
		return "no violations"
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return "schema: " + strings.Join(parts, "; ")
}

// Rule is one declarative check applied to a named field.
type Rule struct {
	Field string
	Check func() *Violation
}

// Ok reports whether the rule passes, for call sites that default the
// field instead of collecting violations.
func (r Rule) Ok() bool {
	return r.Check() == nil
}

// Validate runs every rule and collects violations. Returns nil when
// the value passes its whole contract.
func Validate(rules []Rule) Violations {
	var vs Violations
	for _, r := range rules {
		if v := r.Check(); v != nil {
			v.Field = r.Field
			vs = append(vs, *v)
		}
	}
	return vs
}

// RequiredString fails on empty or whitespace-only values.
func RequiredString(field, value string) Rule {
	return Rule{Field: field, Check: func() *Violation {
		if strings.TrimSpace(value) == "" {
			return &Violation{Reason: "required"}
		}
		return nil
	}}
}

// Range fails when value falls outside [min, max].
func Range(field string, value, min, max float64) Rule {
	return Rule{Field: field, Check: func() *Violation {
		if value < min || value > max {
			return &Violation{Reason: fmt.Sprintf("value %.3f outside [%g, %g]", value, min, max)}
		}
		return nil
	}}
}

// Positive fails on zero or negative values (durations, hour counts).
func Positive(field string, value float64) Rule {
	return Rule{Field: field, Check: func() *Violation {
		if value <= 0 {
			return &Violation{Reason: fmt.Sprintf("value %g must be positive", value)}
		}
		return nil
	}}
}

// NonEmptySlice fails when the slice has no elements.
func NonEmptySlice[T any](field string, value []T) Rule {
	return Rule{Field: field, Check: func() *Violation {
		if len(value) == 0 {
			return &Violation{Reason: "must have at least one element"}
		}
		return nil
	}}
}

// OneOf fails when value is not a member of the allowed set.
func OneOf[T comparable](field string, value T, allowed ...T) Rule {
	return Rule{Field: field, Check: func() *Violation {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return &Violation{Reason: fmt.Sprintf("value %v not in allowed set %v", value, allowed)}
	}}
}

// Clamp01 pins a score into [0, 1]. Stage handlers use this for the
// default-and-continue policy on optional scalar fields.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
