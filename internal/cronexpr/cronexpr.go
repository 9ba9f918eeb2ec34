// Package cronexpr parses and evaluates 5-field cron expressions
// (minute hour dayOfMonth month dayOfWeek).
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Spec holds the five raw field expressions of a parsed cron expression.
type Spec struct {
	Minute     string
	Hour       string
	DayOfMonth string
	Month      string
	DayOfWeek  string
}

type field struct {
	name string
	min  int
	max  int
}

var fields = [5]field{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"dayOfMonth", 1, 31},
	{"month", 1, 12},
	{"dayOfWeek", 0, 6},
}

// Validation is the structured result of Validate. It is always returned,
// never panicked or raised.
type Validation struct {
	Valid   bool      `json:"valid"`
	Error   string    `json:"error,omitempty"`
	NextRun time.Time `json:"next_run,omitzero"`
}

// Parse splits an expression on whitespace and requires exactly five fields.
// It does not validate field contents; use Validate for that.
func Parse(expr string) (*Spec, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(parts))
	}
	return &Spec{
		Minute:     parts[0],
		Hour:       parts[1],
		DayOfMonth: parts[2],
		Month:      parts[3],
		DayOfWeek:  parts[4],
	}, nil
}

func (s *Spec) tokens() [5]string {
	return [5]string{s.Minute, s.Hour, s.DayOfMonth, s.Month, s.DayOfWeek}
}

// Validate checks an expression against the field grammar and domains.
// The first failing field short-circuits with a message naming the field
// and the offending token.
func Validate(expr string) Validation {
	spec, err := Parse(expr)
	if err != nil {
		return Validation{Valid: false, Error: err.Error()}
	}
	tokens := spec.tokens()
	for i, f := range fields {
		if err := validateField(tokens[i], f); err != nil {
			return Validation{Valid: false, Error: err.Error()}
		}
	}
	return Validation{Valid: true, NextRun: Next(expr, time.Now())}
}

// Grammar, in precedence order: wildcard, range, list, step, bare integer.
func validateField(token string, f field) error {
	switch {
	case token == "*":
		return nil
	case strings.Contains(token, "-"):
		parts := strings.Split(token, "-")
		if len(parts) != 2 {
			return fmt.Errorf("invalid %s range %q", f.name, token)
		}
		lo, err1 := strconv.Atoi(parts[0])
		hi, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || lo > hi || lo < f.min || hi > f.max {
			return fmt.Errorf("invalid %s range %q", f.name, token)
		}
		return nil
	case strings.Contains(token, ","):
		for _, v := range strings.Split(token, ",") {
			n, err := strconv.Atoi(v)
			if err != nil || n < f.min || n > f.max {
				return fmt.Errorf("invalid %s list value %q in %q", f.name, v, token)
			}
		}
		return nil
	case strings.Contains(token, "/"):
		parts := strings.Split(token, "/")
		if len(parts) != 2 {
			return fmt.Errorf("invalid %s step %q", f.name, token)
		}
		if parts[0] != "*" {
			base, err := strconv.Atoi(parts[0])
			if err != nil || base < f.min || base > f.max {
				return fmt.Errorf("invalid %s step base %q in %q", f.name, parts[0], token)
			}
		}
		step, err := strconv.Atoi(parts[1])
		if err != nil || step <= 0 {
			return fmt.Errorf("invalid %s step value %q in %q", f.name, parts[1], token)
		}
		return nil
	default:
		n, err := strconv.Atoi(token)
		if err != nil || n < f.min || n > f.max {
			return fmt.Errorf("invalid %s value %q", f.name, token)
		}
		return nil
	}
}

// ShouldRun reports whether every field of the expression matches the
// corresponding component of the given instant.
func ShouldRun(expr string, at time.Time) bool {
	spec, err := Parse(expr)
	if err != nil {
		return false
	}
	return matchField(spec.Minute, at.Minute()) &&
		matchField(spec.Hour, at.Hour()) &&
		matchField(spec.DayOfMonth, at.Day()) &&
		matchField(spec.Month, int(at.Month())) &&
		matchField(spec.DayOfWeek, int(at.Weekday()))
}

func matchField(token string, v int) bool {
	switch {
	case token == "*":
		return true
	case strings.Contains(token, "-"):
		parts := strings.Split(token, "-")
		if len(parts) != 2 {
			return false
		}
		lo, err1 := strconv.Atoi(parts[0])
		hi, err2 := strconv.Atoi(parts[1])
		return err1 == nil && err2 == nil && v >= lo && v <= hi
	case strings.Contains(token, ","):
		for _, s := range strings.Split(token, ",") {
			if n, err := strconv.Atoi(s); err == nil && n == v {
				return true
			}
		}
		return false
	case strings.Contains(token, "/"):
		parts := strings.Split(token, "/")
		if len(parts) != 2 {
			return false
		}
		step, err := strconv.Atoi(parts[1])
		if err != nil || step <= 0 {
			return false
		}
		if parts[0] == "*" {
			return v%step == 0
		}
		base, err := strconv.Atoi(parts[0])
		if err != nil {
			return false
		}
		return v >= base && (v-base)%step == 0
	default:
		n, err := strconv.Atoi(token)
		return err == nil && n == v
	}
}

// Next computes the next run instant after from. It is a deliberate
// approximation rather than a full scanning engine: precise for a step
// minute field and for fully concrete hour/minute fields, otherwise the
// top of the next hour. Seconds are always zeroed. Next never panics;
// any internal failure yields the next-hour fallback.
func Next(expr string, from time.Time) (next time.Time) {
	defer func() {
		if r := recover(); r != nil {
			next = nextHour(from)
		}
	}()

	spec, err := Parse(expr)
	if err != nil {
		return nextHour(from)
	}

	if step, ok := wildcardStep(spec.Minute); ok {
		m := ((from.Minute() / step) + 1) * step
		if m >= 60 {
			return nextHour(from)
		}
		return time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), m, 0, 0, from.Location())
	}

	hour, herr := strconv.Atoi(spec.Hour)
	minute, merr := strconv.Atoi(spec.Minute)
	if herr == nil && merr == nil {
		candidate := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
		if candidate.After(from) {
			return candidate
		}
		return candidate.AddDate(0, 0, 1)
	}

	return nextHour(from)
}

func nextHour(from time.Time) time.Time {
	return time.Date(from.Year(), from.Month(), from.Day(), from.Hour()+1, 0, 0, 0, from.Location())
}

func wildcardStep(token string) (int, bool) {
	if !strings.HasPrefix(token, "*/") {
		return 0, false
	}
	step, err := strconv.Atoi(token[2:])
	if err != nil || step <= 0 || step > 59 {
		return 0, false
	}
	return step, true
}
