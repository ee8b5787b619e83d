package task

import (
	"testing"
	"time"
)

func ts(min int) time.Time {
	return time.Date(2024, 1, 1, 0, min, 0, 0, time.UTC)
}

func TestPlan_AddKeepsOrder(t *testing.T) {
	p := &Plan{}
	p.Add(ts(30))
	p.Add(ts(10))
	p.Add(ts(20))

	if len(p.Todo) != 3 {
		t.Fatalf("todo length = %d, want 3", len(p.Todo))
	}
	for i, want := range []time.Time{ts(10), ts(20), ts(30)} {
		if !p.Todo[i].Equal(want) {
			t.Errorf("todo[%d] = %s, want %s", i, p.Todo[i], want)
		}
	}

	// Duplicate insert is a no-op, wherever the instant lives.
	p.Add(ts(20))
	if len(p.Todo) != 3 {
		t.Errorf("duplicate add changed todo length to %d", len(p.Todo))
	}
}

func TestPlan_ShouldLaunch(t *testing.T) {
	p := &Plan{}
	if p.ShouldLaunch(ts(59)) != nil {
		t.Error("empty plan is never due")
	}

	p.Add(ts(10))
	p.Add(ts(40))

	if p.ShouldLaunch(ts(5)) != nil {
		t.Error("head in the future is not due")
	}
	got := p.ShouldLaunch(ts(10))
	if got == nil || !got.Equal(ts(10)) {
		t.Errorf("head at now should launch, got %v", got)
	}
	got = p.ShouldLaunch(ts(59))
	if got == nil || !got.Equal(ts(10)) {
		t.Error("only the head is offered, even when later items are also past")
	}
}

func TestPlan_Progression(t *testing.T) {
	p := &Plan{}
	p.Add(ts(10))
	p.Add(ts(20))

	if err := p.SetInProgress(ts(20)); err == nil {
		t.Error("only the head may go in progress")
	}
	if err := p.SetInProgress(ts(10)); err != nil {
		t.Fatalf("SetInProgress(head): %v", err)
	}
	if p.InProgress == nil || !p.InProgress.Equal(ts(10)) {
		t.Fatal("in_progress not set")
	}
	if err := p.SetInProgress(ts(20)); err == nil {
		t.Error("second SetInProgress must fail while one is in flight")
	}

	if err := p.SetDone(ts(20)); err == nil {
		t.Error("SetDone requires the in-progress instant")
	}
	if err := p.SetDone(ts(10)); err != nil {
		t.Fatalf("SetDone: %v", err)
	}
	if p.InProgress != nil {
		t.Error("in_progress should be cleared after SetDone")
	}
	if len(p.Done) != 1 || !p.Done[0].Equal(ts(10)) {
		t.Errorf("done = %v, want [%s]", p.Done, ts(10))
	}
	if len(p.Todo) != 1 || !p.Todo[0].Equal(ts(20)) {
		t.Errorf("todo = %v, want [%s]", p.Todo, ts(20))
	}
}

func TestPlan_RemoveInProgress(t *testing.T) {
	p := &Plan{}
	p.Add(ts(10))
	p.Add(ts(20))

	if err := p.RemoveInProgress(); err == nil {
		t.Error("RemoveInProgress with nothing in flight must fail")
	}

	if err := p.SetInProgress(ts(10)); err != nil {
		t.Fatal(err)
	}
	if err := p.RemoveInProgress(); err != nil {
		t.Fatalf("RemoveInProgress: %v", err)
	}
	if p.InProgress != nil {
		t.Error("in_progress should be empty after removal")
	}
	if len(p.Todo) != 2 || !p.Todo[0].Equal(ts(10)) {
		t.Errorf("cancelled item must return to the head of todo, got %v", p.Todo)
	}
}

func TestPlan_Normalize(t *testing.T) {
	inProg := ts(10)
	p := &Plan{
		Todo:       []time.Time{ts(30), ts(10), ts(20)}, // out of order, 10 duplicated below
		InProgress: &inProg,
		Done:       []time.Time{ts(5)},
	}
	p.Normalize()

	if len(p.Todo) != 2 || !p.Todo[0].Equal(ts(20)) || !p.Todo[1].Equal(ts(30)) {
		t.Errorf("normalize: todo = %v", p.Todo)
	}
	if p.InProgress == nil || !p.InProgress.Equal(ts(10)) {
		t.Error("normalize dropped in_progress")
	}
	if len(p.Done) != 1 {
		t.Errorf("normalize: done = %v", p.Done)
	}
}

func TestPlan_Clone(t *testing.T) {
	p := &Plan{}
	p.Add(ts(10))
	cp := p.Clone()
	cp.Add(ts(20))

	if len(p.Todo) != 1 {
		t.Error("mutating the clone changed the original")
	}
}
