package task

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/taskhive/internal/clock"
	"github.com/nextlevelbuilder/taskhive/internal/cron"
)

func validScheduled() *Task {
	return &Task{
		Type:          TypeScheduled,
		Name:          "daily-digest",
		State:         StateIdle,
		Prompt:        "Summarize yesterday's activity.",
		CtxPlanning:   SwitchAuto,
		CtxReasoning:  SwitchAuto,
		CtxDeepSearch: SwitchOff,
		Schedule:      &ScheduleSpec{Schedule: cron.MustParse("0 9 * * *")},
	}
}

func validAdHoc() *Task {
	t := validScheduled()
	t.Type = TypeAdHoc
	t.Name = "on-demand-report"
	t.Schedule = nil
	t.Token = "report_token_1"
	return t
}

func validPlanned(waypoints ...time.Time) *Task {
	t := validScheduled()
	t.Type = TypePlanned
	t.Name = "launch-plan"
	t.Schedule = nil
	t.Plan = &Plan{}
	for _, w := range waypoints {
		t.Plan.Add(w)
	}
	return t
}

func kindOf(t *testing.T, err error) string {
	t.Helper()
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("error %v is not a *Error", err)
	}
	return te.Kind
}

func TestValidate_Accepts(t *testing.T) {
	for _, tk := range []*Task{validScheduled(), validAdHoc(), validPlanned(ts(10))} {
		if err := tk.Validate(); err != nil {
			t.Errorf("Validate(%s %q) = %v", tk.Type, tk.Name, err)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Task)
		kind   string
	}{
		{"missing name", func(tk *Task) { tk.Name = "" }, KindMissingField},
		{"missing prompt", func(tk *Task) { tk.Prompt = "" }, KindMissingField},
		{"prompt too long", func(tk *Task) { tk.Prompt = strings.Repeat("x", MaxPromptBytes+1) }, KindPromptTooLong},
		{"unknown state", func(tk *Task) { tk.State = "paused" }, KindBadField},
		{"relative attachment", func(tk *Task) { tk.Attachments = []string{"notes.txt"} }, KindPathNotAbsolute},
		{"bad switch", func(tk *Task) { tk.CtxPlanning = "maybe" }, KindBadField},
		{"deep search auto", func(tk *Task) { tk.CtxDeepSearch = SwitchAuto }, KindBadField},
		{"unknown type", func(tk *Task) { tk.Type = "periodic" }, KindBadField},
		{"scheduled without schedule", func(tk *Task) { tk.Schedule = nil }, KindMissingField},
		{"bad cron field", func(tk *Task) { tk.Schedule.Minute = "61" }, KindBadCron},
		{"bad timezone", func(tk *Task) { tk.Schedule.Timezone = "Mars/Olympus" }, KindBadTimezone},
	}
	for _, tc := range cases {
		tk := validScheduled()
		tc.mutate(tk)
		err := tk.Validate()
		if err == nil {
			t.Errorf("%s: Validate passed, want %s", tc.name, tc.kind)
			continue
		}
		if got := kindOf(t, err); got != tc.kind {
			t.Errorf("%s: kind = %s, want %s", tc.name, got, tc.kind)
		}
	}
}

func TestValidate_PlannedInProgressRequiresRunning(t *testing.T) {
	tk := validPlanned(ts(10), ts(20))
	if err := tk.OnRun(ts(30)); err != nil {
		t.Fatal(err)
	}

	// Claimed waypoint while idle violates the plan invariant.
	if err := tk.Validate(); err == nil {
		t.Error("idle task with an in-progress waypoint must not validate")
	}
	tk.State = StateRunning
	if err := tk.Validate(); err != nil {
		t.Errorf("running task with an in-progress waypoint: %v", err)
	}
}

func TestValidateToken(t *testing.T) {
	good := []string{"abcd1234", "A-long_token-42", strings.Repeat("a", 64)}
	for _, tok := range good {
		if err := ValidateToken(tok); err != nil {
			t.Errorf("ValidateToken(%q) = %v", tok, err)
		}
	}
	bad := []struct {
		token string
		kind  string
	}{
		{"", KindMissingField},
		{"short", KindBadToken},
		{strings.Repeat("a", 65), KindBadToken},
		{"has space!", KindBadToken},
		{"unicode_é_token", KindBadToken},
	}
	for _, tc := range bad {
		err := ValidateToken(tc.token)
		if err == nil {
			t.Errorf("ValidateToken(%q) passed", tc.token)
			continue
		}
		if got := kindOf(t, err); got != tc.kind {
			t.Errorf("ValidateToken(%q) kind = %s, want %s", tc.token, got, tc.kind)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]State{
		{StateIdle, StateRunning},
		{StateIdle, StateDisabled},
		{StateRunning, StateIdle},
		{StateRunning, StateError},
		{StateDisabled, StateIdle},
		{StateError, StateIdle},
		{StateError, StateDisabled},
		{StateIdle, StateIdle}, // self loop on a settled state
	}
	for _, tc := range allowed {
		if !CanTransition(tc[0], tc[1]) {
			t.Errorf("%s -> %s should be legal", tc[0], tc[1])
		}
	}
	forbidden := [][2]State{
		{StateDisabled, StateRunning},
		{StateError, StateRunning},
		{StateRunning, StateDisabled},
		{StateIdle, StateError},
		{StateDisabled, StateError},
		{StateRunning, StateRunning},
	}
	for _, tc := range forbidden {
		if CanTransition(tc[0], tc[1]) {
			t.Errorf("%s -> %s should be rejected", tc[0], tc[1])
		}
	}
}

func TestCanUserSet(t *testing.T) {
	if CanUserSet(StateIdle, StateRunning) {
		t.Error("clients may not set running")
	}
	if CanUserSet(StateIdle, StateError) {
		t.Error("clients may not set error")
	}
	if !CanUserSet(StateIdle, StateDisabled) || !CanUserSet(StateDisabled, StateIdle) {
		t.Error("enable/disable must be user-settable")
	}
	if !CanUserSet(StateError, StateIdle) {
		t.Error("clearing error back to idle must be user-settable")
	}
	// A running task is off-limits entirely: taking running -> idle away
	// from the scheduler would let a second execution pass the idle gate
	// while the first is still in flight.
	if CanUserSet(StateRunning, StateIdle) {
		t.Error("clients may not reset a running task to idle")
	}
	if CanUserSet(StateRunning, StateDisabled) {
		t.Error("clients may not disable a running task")
	}
}

func TestHooks_PlannedLifecycle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)

	// Success path: claimed waypoint lands in done.
	tk := validPlanned(ts(10), ts(20))
	if err := tk.OnRun(now); err != nil {
		t.Fatalf("OnRun: %v", err)
	}
	if tk.Plan.InProgress == nil || !tk.Plan.InProgress.Equal(ts(10)) {
		t.Fatal("OnRun did not claim the head waypoint")
	}
	if err := tk.OnSuccess("done"); err != nil {
		t.Fatalf("OnSuccess: %v", err)
	}
	if tk.LastResult != "done" || tk.LastError != "" {
		t.Error("OnSuccess did not record the result")
	}
	if len(tk.Plan.Done) != 1 || len(tk.Plan.Todo) != 1 {
		t.Errorf("after success: todo=%v done=%v", tk.Plan.Todo, tk.Plan.Done)
	}

	// Error path: the waypoint still moves to done, not back to todo.
	if err := tk.OnRun(now); err != nil {
		t.Fatalf("OnRun: %v", err)
	}
	if err := tk.OnError("agent exploded"); err != nil {
		t.Fatalf("OnError: %v", err)
	}
	if tk.LastError != "agent exploded" {
		t.Error("OnError did not record the error")
	}
	if len(tk.Plan.Done) != 2 || len(tk.Plan.Todo) != 0 {
		t.Errorf("after error: todo=%v done=%v (failed waypoints advance)", tk.Plan.Todo, tk.Plan.Done)
	}
}

func TestHooks_PlannedCancelRequeues(t *testing.T) {
	tk := validPlanned(ts(10), ts(20))
	if err := tk.OnRun(ts(30)); err != nil {
		t.Fatal(err)
	}
	if err := tk.OnCancel(); err != nil {
		t.Fatalf("OnCancel: %v", err)
	}
	if tk.Plan.InProgress != nil {
		t.Error("cancel left a waypoint in progress")
	}
	if len(tk.Plan.Todo) != 2 || !tk.Plan.Todo[0].Equal(ts(10)) {
		t.Errorf("cancel must requeue at the head, todo=%v", tk.Plan.Todo)
	}
}

func TestHooks_PlannedEmptyTodoRejectsRun(t *testing.T) {
	tk := validPlanned()
	if err := tk.OnRun(ts(30)); err == nil {
		t.Error("planned task with an empty todo must reject a run")
	}
}

func TestHooks_OnFinishStampsLastRun(t *testing.T) {
	tk := validAdHoc()
	if tk.LastRun != nil {
		t.Fatal("new task should have no last_run")
	}
	now := time.Date(2024, 3, 4, 5, 6, 7, 0, time.FixedZone("X", 3600))
	tk.OnFinish(now)
	if tk.LastRun == nil || !tk.LastRun.Equal(now) {
		t.Fatal("OnFinish did not stamp last_run")
	}
	if tk.LastRun.Location() != time.UTC {
		t.Error("last_run should be stored in UTC")
	}
}

func TestCheckSchedule(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), nil)
	window := time.Minute

	sched := validScheduled() // 0 9 * * * UTC
	if !sched.CheckSchedule(clk, window) {
		t.Error("scheduled task should be due at 09:00")
	}
	clk.Set(time.Date(2024, 1, 1, 9, 2, 0, 0, time.UTC))
	if sched.CheckSchedule(clk, window) {
		t.Error("scheduled task should not be due at 09:02")
	}

	adhoc := validAdHoc()
	if adhoc.CheckSchedule(clk, window) {
		t.Error("adhoc tasks are never automatically due")
	}

	planned := validPlanned(time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC))
	if !planned.CheckSchedule(clk, window) {
		t.Error("planned task with a past waypoint should be due")
	}
	planned = validPlanned(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	if planned.CheckSchedule(clk, window) {
		t.Error("planned task with only future waypoints should not be due")
	}
}

func TestClone_DeepCopies(t *testing.T) {
	tk := validPlanned(ts(10))
	tk.Attachments = []string{"/data/a.txt"}
	cp := tk.Clone()

	cp.Attachments[0] = "/data/b.txt"
	cp.Plan.Add(ts(20))
	if tk.Attachments[0] != "/data/a.txt" {
		t.Error("clone shares the attachments slice")
	}
	if len(tk.Plan.Todo) != 1 {
		t.Error("clone shares the plan")
	}

	sc := validScheduled()
	scp := sc.Clone()
	scp.Schedule.Minute = "30"
	if sc.Schedule.Minute == "30" {
		t.Error("clone shares the schedule")
	}
}
