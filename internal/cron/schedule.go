// Package cron parses and evaluates five-field cron expressions.
// Parsing is done locally so callers get per-field errors and a
// round-trippable schedule; next-fire evaluation goes through gronx.
package cron

import (
	"fmt"
	"strings"
)

// Schedule is a validated five-field cron expression.
// Field grammar: '*' | value | range | step | comma list.
type Schedule struct {
	Minute  string `json:"minute"`
	Hour    string `json:"hour"`
	Day     string `json:"day"`
	Month   string `json:"month"`
	Weekday string `json:"weekday"`
}

// String renders the schedule back to its expression form.
// Parse(s.String()) yields s for every valid schedule.
func (s Schedule) String() string {
	return strings.Join([]string{s.Minute, s.Hour, s.Day, s.Month, s.Weekday}, " ")
}

// ParseError reports an invalid cron field.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cron field %s: %s", e.Field, e.Reason)
}
