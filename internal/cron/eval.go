package cron

import (
	"time"

	"github.com/adhocore/gronx"
)

// searchHorizon caps the next-fire search. A schedule with unreachable
// constraints (day=31 month=2) never fires within the horizon and callers
// treat it as not due.
const searchHorizon = 4 * 365 * 24 * time.Hour

// NextAfter returns the smallest instant strictly greater than ref at
// which the schedule fires, evaluated in loc. The result is UTC.
// ok is false when nothing fires within the search horizon.
//
// Candidate ticks are re-checked against the date fields: when both
// day-of-month and day-of-week are restricted, a day matches only if it
// satisfies both, and candidates produced by rolling a nonexistent date
// into the next month are rejected.
func NextAfter(s Schedule, loc *time.Location, ref time.Time) (next time.Time, ok bool) {
	if loc == nil {
		loc = time.UTC
	}
	expr := s.String()
	cursor := ref.In(loc)

	for {
		t, err := gronx.NextTickAfter(expr, cursor, false)
		if err != nil {
			return time.Time{}, false
		}
		if t.Sub(ref) > searchHorizon {
			return time.Time{}, false
		}
		if s.dateConstraintsMatch(t.In(loc)) {
			return t.UTC(), true
		}
		cursor = t
	}
}

// FiresWithin reports whether the schedule fires within [ref, ref+window),
// evaluated in loc. Seconds are always zero; the minute is the smallest tick.
func FiresWithin(s Schedule, loc *time.Location, ref time.Time, window time.Duration) bool {
	next, ok := NextAfter(s, loc, ref)
	if !ok {
		return false
	}
	return next.Before(ref.Add(window))
}

// DueWithin is the polling predicate: does the schedule fire in
// (now-window, now]? With window equal to the tick period, a firing at
// the boundary instant is picked up exactly once. FiresWithin's
// half-open window would skip a firing landing exactly on now.
func DueWithin(s Schedule, loc *time.Location, now time.Time, window time.Duration) bool {
	next, ok := NextAfter(s, loc, now.Add(-window))
	if !ok {
		return false
	}
	return !next.After(now)
}

// dateConstraintsMatch re-verifies a candidate's month, day-of-month
// and day-of-week against the schedule. Two underlying behaviors are
// corrected here: classic cron ORs day-of-month and day-of-week when
// both are restricted (they must both hold), and nonexistent dates such
// as February 31 are rolled over into the next month instead of being
// skipped.
func (s Schedule) dateConstraintsMatch(t time.Time) bool {
	if s.Month != "*" && !expandField(fieldSpecs[3], s.Month)[int(t.Month())] {
		return false
	}
	if s.Day != "*" && !expandField(fieldSpecs[2], s.Day)[t.Day()] {
		return false
	}
	if s.Weekday != "*" && !expandField(fieldSpecs[4], s.Weekday)[int(t.Weekday())] {
		return false
	}
	return true
}
