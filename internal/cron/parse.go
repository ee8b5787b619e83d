package cron

import (
	"fmt"
	"strconv"
	"strings"
)

type fieldSpec struct {
	name string
	min  int
	max  int
}

var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6}, // 0 = Sunday
}

// Parse validates a five-field cron expression and returns its schedule.
// On failure the error is a *ParseError naming the offending field.
func Parse(expr string) (Schedule, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return Schedule{}, &ParseError{
			Field:  "expression",
			Reason: fmt.Sprintf("expected 5 fields, got %d", len(fields)),
		}
	}
	for i, f := range fields {
		if err := validateField(fieldSpecs[i], f); err != nil {
			return Schedule{}, err
		}
	}
	return Schedule{
		Minute:  fields[0],
		Hour:    fields[1],
		Day:     fields[2],
		Month:   fields[3],
		Weekday: fields[4],
	}, nil
}

// MustParse is Parse for compile-time-known expressions in tests.
func MustParse(expr string) Schedule {
	s, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return s
}

func validateField(spec fieldSpec, field string) error {
	if field == "" {
		return &ParseError{Field: spec.name, Reason: "empty field"}
	}
	for _, item := range strings.Split(field, ",") {
		if err := validateItem(spec, item); err != nil {
			return err
		}
	}
	return nil
}

// validateItem checks a single list element: '*', '*/step', value,
// range, or range/step.
func validateItem(spec fieldSpec, item string) error {
	if item == "" {
		return &ParseError{Field: spec.name, Reason: "empty list element"}
	}

	base := item
	if slash := strings.IndexByte(item, '/'); slash >= 0 {
		base = item[:slash]
		step := item[slash+1:]
		n, err := strconv.Atoi(step)
		if err != nil {
			return &ParseError{Field: spec.name, Reason: fmt.Sprintf("invalid step %q", step)}
		}
		if n <= 0 {
			return &ParseError{Field: spec.name, Reason: fmt.Sprintf("step must be positive, got %d", n)}
		}
	}

	if base == "*" {
		return nil
	}

	lo, hi := base, base
	if dash := strings.IndexByte(base, '-'); dash >= 0 {
		lo, hi = base[:dash], base[dash+1:]
	}

	loN, err := parseValue(spec, lo)
	if err != nil {
		return err
	}
	hiN, err := parseValue(spec, hi)
	if err != nil {
		return err
	}
	if loN > hiN {
		return &ParseError{Field: spec.name, Reason: fmt.Sprintf("descending range %s", base)}
	}
	return nil
}

// expandField materializes a validated field into its value set.
// A bare value with a step (a/n) ranges to the field maximum, vixie
// style.
func expandField(spec fieldSpec, field string) map[int]bool {
	set := make(map[int]bool)
	for _, item := range strings.Split(field, ",") {
		base, step := item, 1
		if slash := strings.IndexByte(item, '/'); slash >= 0 {
			base = item[:slash]
			if n, err := strconv.Atoi(item[slash+1:]); err == nil && n > 0 {
				step = n
			}
		}

		lo, hi := spec.min, spec.max
		if base != "*" {
			loS, hiS := base, base
			if dash := strings.IndexByte(base, '-'); dash >= 0 {
				loS, hiS = base[:dash], base[dash+1:]
			}
			lo, _ = strconv.Atoi(loS)
			hi, _ = strconv.Atoi(hiS)
			if loS == hiS && strings.IndexByte(item, '/') >= 0 {
				hi = spec.max
			}
		}
		for v := lo; v <= hi; v += step {
			set[v] = true
		}
	}
	return set
}

func parseValue(spec fieldSpec, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ParseError{Field: spec.name, Reason: fmt.Sprintf("invalid value %q", v)}
	}
	if n < spec.min || n > spec.max {
		return 0, &ParseError{
			Field:  spec.name,
			Reason: fmt.Sprintf("value %d out of range %d-%d", n, spec.min, spec.max),
		}
	}
	return n, nil
}
