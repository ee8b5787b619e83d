package task

import (
	"sort"
	"time"
)

// Plan is a progression of datetime waypoints. Every instant lives in
// exactly one of the three partitions; todo stays sorted ascending and
// in_progress holds at most one instant, always taken from the head of
// todo.
type Plan struct {
	Todo       []time.Time `json:"todo"`
	InProgress *time.Time  `json:"in_progress,omitempty"`
	Done       []time.Time `json:"done,omitempty"`
}

// Add inserts an instant into todo, keeping ascending order. A no-op if
// the instant is already present in any partition.
func (p *Plan) Add(t time.Time) {
	t = t.UTC()
	if p.contains(t) {
		return
	}
	p.Todo = append(p.Todo, t)
	sort.Slice(p.Todo, func(i, j int) bool { return p.Todo[i].Before(p.Todo[j]) })
}

// ShouldLaunch returns the head of todo iff it is due at now.
func (p *Plan) ShouldLaunch(now time.Time) *time.Time {
	if len(p.Todo) == 0 {
		return nil
	}
	head := p.Todo[0]
	if head.After(now) {
		return nil
	}
	return &head
}

// SetInProgress moves the head of todo to in_progress. The instant must
// be the current head and in_progress must be empty.
func (p *Plan) SetInProgress(t time.Time) error {
	if p.InProgress != nil {
		return Errf(KindInvalidTransition, "plan already has an item in progress")
	}
	if len(p.Todo) == 0 || !p.Todo[0].Equal(t) {
		return Errf(KindInvalidTransition, "instant %s is not the head of todo", t.Format(time.RFC3339))
	}
	head := p.Todo[0].UTC()
	p.Todo = append([]time.Time{}, p.Todo[1:]...)
	p.InProgress = &head
	return nil
}

// SetDone moves the in-progress instant to done and clears in_progress.
func (p *Plan) SetDone(t time.Time) error {
	if p.InProgress == nil || !p.InProgress.Equal(t) {
		return Errf(KindInvalidTransition, "instant %s is not in progress", t.Format(time.RFC3339))
	}
	p.Done = append(p.Done, p.InProgress.UTC())
	p.InProgress = nil
	return nil
}

// RemoveInProgress returns the in-progress instant to the head of todo.
// Used on cancellation; the only path that moves an item backwards.
func (p *Plan) RemoveInProgress() error {
	if p.InProgress == nil {
		return Errf(KindInvalidTransition, "plan has no item in progress")
	}
	p.Todo = append([]time.Time{p.InProgress.UTC()}, p.Todo...)
	p.InProgress = nil
	return nil
}

// Normalize sorts todo, forces UTC everywhere, and drops duplicates
// across partitions. Applied when a plan arrives from a client.
func (p *Plan) Normalize() {
	seen := make(map[int64]bool)
	mark := func(t time.Time) bool {
		k := t.Unix()
		if seen[k] {
			return false
		}
		seen[k] = true
		return true
	}

	done := p.Done[:0]
	for _, t := range p.Done {
		if mark(t) {
			done = append(done, t.UTC())
		}
	}
	p.Done = done

	if p.InProgress != nil {
		if mark(*p.InProgress) {
			u := p.InProgress.UTC()
			p.InProgress = &u
		} else {
			p.InProgress = nil
		}
	}

	todo := p.Todo[:0]
	for _, t := range p.Todo {
		if mark(t) {
			todo = append(todo, t.UTC())
		}
	}
	sort.Slice(todo, func(i, j int) bool { return todo[i].Before(todo[j]) })
	p.Todo = todo
}

// Clone deep-copies the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := &Plan{
		Todo: append([]time.Time{}, p.Todo...),
		Done: append([]time.Time{}, p.Done...),
	}
	if p.InProgress != nil {
		t := *p.InProgress
		cp.InProgress = &t
	}
	return cp
}

func (p *Plan) contains(t time.Time) bool {
	for _, x := range p.Todo {
		if x.Equal(t) {
			return true
		}
	}
	for _, x := range p.Done {
		if x.Equal(t) {
			return true
		}
	}
	return p.InProgress != nil && p.InProgress.Equal(t)
}
