// Package task defines the persistent task model: a discriminated sum of
// scheduled, adhoc and planned variants sharing a common header, plus the
// state machine and lifecycle hooks the scheduler drives.
package task

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/taskhive/internal/clock"
	"github.com/nextlevelbuilder/taskhive/internal/cron"
)

// Type discriminates the three task variants.
type Type string

const (
	TypeScheduled Type = "scheduled"
	TypeAdHoc     Type = "adhoc"
	TypePlanned   Type = "planned"
)

// ValidType reports whether t is a known variant.
func ValidType(t Type) bool {
	return t == TypeScheduled || t == TypeAdHoc || t == TypePlanned
}

// Switch is a tri-state agent feature toggle.
type Switch string

const (
	SwitchOn   Switch = "on"
	SwitchOff  Switch = "off"
	SwitchAuto Switch = "auto"
)

// MaxPromptBytes caps the prompt length (64KB).
const MaxPromptBytes = 64 * 1024

// ScheduleSpec is a cron schedule plus the IANA zone it is evaluated in.
// An empty timezone means the clock's default.
type ScheduleSpec struct {
	cron.Schedule
	Timezone string `json:"timezone,omitempty"`
}

// Location resolves the evaluation zone, falling back to def.
func (s ScheduleSpec) Location(def *time.Location) (*time.Location, error) {
	if s.Timezone == "" {
		return def, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Task is a persistent job definition. The Type field discriminates the
// variant; exactly one of Schedule, Token or Plan is meaningful.
type Task struct {
	UUID          uuid.UUID `json:"uuid"`
	Type          Type      `json:"type"`
	Name          string    `json:"name"`
	State         State     `json:"state"`
	SystemPrompt  string    `json:"system_prompt,omitempty"`
	Prompt        string    `json:"prompt"`
	Attachments   []string  `json:"attachments,omitempty"`
	CtxPlanning   Switch    `json:"ctx_planning"`
	CtxReasoning  Switch    `json:"ctx_reasoning"`
	CtxDeepSearch Switch    `json:"ctx_deep_search"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastResult string     `json:"last_result,omitempty"`
	LastError  string     `json:"last_error,omitempty"`

	// MaxRunSeconds optionally bounds a single execution; 0 means no limit.
	// On expiry the run is cancelled with outcome error.
	MaxRunSeconds int `json:"max_run_seconds,omitempty"`

	Schedule *ScheduleSpec `json:"schedule,omitempty"` // scheduled
	Token    string        `json:"token,omitempty"`    // adhoc
	Plan     *Plan         `json:"plan,omitempty"`     // planned
}

// Clone deep-copies the task. Store reads hand out clones only; callers
// never alias the canonical object.
func (t *Task) Clone() *Task {
	cp := *t
	cp.Attachments = append([]string{}, t.Attachments...)
	if t.LastRun != nil {
		lr := *t.LastRun
		cp.LastRun = &lr
	}
	if t.Schedule != nil {
		s := *t.Schedule
		cp.Schedule = &s
	}
	cp.Plan = t.Plan.Clone()
	return &cp
}

// Validate checks all header and variant fields. Returns a typed *Error
// naming the offending field on failure.
func (t *Task) Validate() error {
	if t.Name == "" {
		return FieldErrf(KindMissingField, "name", "name is required")
	}
	if t.Prompt == "" {
		return FieldErrf(KindMissingField, "prompt", "prompt is required")
	}
	if len(t.Prompt) > MaxPromptBytes {
		return FieldErrf(KindPromptTooLong, "prompt", "prompt exceeds %d bytes", MaxPromptBytes)
	}
	if !ValidState(t.State) {
		return FieldErrf(KindBadField, "state", "unknown state %q", t.State)
	}
	for _, p := range t.Attachments {
		if !filepath.IsAbs(p) {
			return FieldErrf(KindPathNotAbsolute, "attachments", "attachment path %q is not absolute", p)
		}
	}
	if err := validateSwitch("ctx_planning", t.CtxPlanning, true); err != nil {
		return err
	}
	if err := validateSwitch("ctx_reasoning", t.CtxReasoning, true); err != nil {
		return err
	}
	if err := validateSwitch("ctx_deep_search", t.CtxDeepSearch, false); err != nil {
		return err
	}

	switch t.Type {
	case TypeScheduled:
		if t.Schedule == nil {
			return FieldErrf(KindMissingField, "schedule", "scheduled task requires a schedule")
		}
		if _, err := cron.Parse(t.Schedule.String()); err != nil {
			return FieldErrf(KindBadCron, "schedule", "%s", err.Error())
		}
		if t.Schedule.Timezone != "" {
			if _, err := time.LoadLocation(t.Schedule.Timezone); err != nil {
				return FieldErrf(KindBadTimezone, "timezone", "unknown timezone %q", t.Schedule.Timezone)
			}
		}
	case TypeAdHoc:
		if err := ValidateToken(t.Token); err != nil {
			return err
		}
	case TypePlanned:
		if t.Plan == nil {
			return FieldErrf(KindMissingField, "plan", "planned task requires a plan")
		}
		// in_progress is non-empty iff the task is running.
		if t.Plan.InProgress != nil && t.State != StateRunning {
			return FieldErrf(KindBadField, "plan", "plan has an in-progress item but the task is not running")
		}
		if t.Plan.InProgress == nil && t.State == StateRunning {
			return FieldErrf(KindBadField, "plan", "running planned task has no in-progress item")
		}
	default:
		return FieldErrf(KindBadField, "type", "unknown task type %q", t.Type)
	}
	return nil
}

// ValidateToken checks an adhoc trigger token: 8-64 chars of [A-Za-z0-9_-],
// case-sensitive.
func ValidateToken(token string) error {
	if token == "" {
		return FieldErrf(KindMissingField, "token", "adhoc task requires a token")
	}
	if len(token) < 8 || len(token) > 64 {
		return FieldErrf(KindBadToken, "token", "token must be 8-64 characters")
	}
	for _, c := range token {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return FieldErrf(KindBadToken, "token", "token contains invalid character %q", c)
		}
	}
	return nil
}

func validateSwitch(field string, v Switch, allowAuto bool) error {
	switch v {
	case SwitchOn, SwitchOff:
		return nil
	case SwitchAuto:
		if allowAuto {
			return nil
		}
	}
	return FieldErrf(KindBadField, field, "invalid value %q", v)
}

// CheckSchedule is the due predicate used by the store's due filter.
// AdHoc tasks are never automatically due; scheduled tasks fire per cron
// within the polling window; planned tasks fire when the earliest todo
// waypoint is reached.
func (t *Task) CheckSchedule(clk clock.Clock, window time.Duration) bool {
	switch t.Type {
	case TypeScheduled:
		if t.Schedule == nil {
			return false
		}
		loc, err := t.Schedule.Location(clk.DefaultTimezone())
		if err != nil {
			return false
		}
		// Evaluate over (now-window, now] so a firing at the boundary
		// instant is picked up exactly once per tick.
		return cron.DueWithin(t.Schedule.Schedule, loc, clk.Now(), window)
	case TypePlanned:
		return t.Plan != nil && t.Plan.ShouldLaunch(clk.Now()) != nil
	default:
		return false
	}
}
