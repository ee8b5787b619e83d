// Package clock is the single source of truth for time and the default
// timezone. All time-dependent code takes a Clock so tests can substitute
// a fake with virtual time.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current instant and the configured default timezone.
// Now always returns UTC; schedule evaluation converts into the task's
// zone at the comparison site, never the other way around.
type Clock interface {
	Now() time.Time
	DefaultTimezone() *time.Location
}

// System is the real wall clock.
type System struct {
	tz *time.Location
}

// NewSystem creates a system clock with the given IANA zone as default.
// An empty name means UTC.
func NewSystem(tzName string) (*System, error) {
	if tzName == "" {
		return &System{tz: time.UTC}, nil
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, err
	}
	return &System{tz: loc}, nil
}

func (s *System) Now() time.Time { return time.Now().UTC() }

func (s *System) DefaultTimezone() *time.Location { return s.tz }

// Fake is a settable clock for tests.
type Fake struct {
	mu sync.Mutex
	t  time.Time
	tz *time.Location
}

// NewFake creates a fake clock frozen at t with the given default zone.
func NewFake(t time.Time, tz *time.Location) *Fake {
	if tz == nil {
		tz = time.UTC
	}
	return &Fake{t: t.UTC(), tz: tz}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *Fake) DefaultTimezone() *time.Location { return f.tz }

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t.UTC()
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}
