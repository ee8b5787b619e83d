package task

import "time"

// Lifecycle hooks invoked by the scheduler around an agent call. All of
// them run under the store lock via Update; they mutate only variant
// payloads and the last_* header fields, never State (the scheduler owns
// state transitions).

// OnRun prepares the variant for execution. For a planned task it claims
// the head of todo; a planned task with nothing pending rejects the run.
func (t *Task) OnRun(now time.Time) error {
	if t.Type != TypePlanned {
		return nil
	}
	if t.Plan == nil || len(t.Plan.Todo) == 0 {
		return Errf(KindInvalidTransition, "plan has no pending items")
	}
	return t.Plan.SetInProgress(t.Plan.Todo[0])
}

// OnSuccess records a successful run. Planned tasks move the in-progress
// waypoint to done.
func (t *Task) OnSuccess(result string) error {
	t.LastResult = result
	t.LastError = ""
	if t.Type == TypePlanned && t.Plan != nil && t.Plan.InProgress != nil {
		return t.Plan.SetDone(*t.Plan.InProgress)
	}
	return nil
}

// OnError records a failed run. Planned tasks still move the in-progress
// waypoint to done: leaving it parked would block all future progression,
// and cancellation is the only path that puts an item back into todo.
func (t *Task) OnError(runErr string) error {
	t.LastError = runErr
	if t.Type == TypePlanned && t.Plan != nil && t.Plan.InProgress != nil {
		return t.Plan.SetDone(*t.Plan.InProgress)
	}
	return nil
}

// OnCancel undoes a run that never completed. Planned tasks return the
// in-progress waypoint to the head of todo.
func (t *Task) OnCancel() error {
	if t.Type == TypePlanned && t.Plan != nil && t.Plan.InProgress != nil {
		return t.Plan.RemoveInProgress()
	}
	return nil
}

// OnFinish runs on every outcome, including cancellation. It stamps
// last_run exactly once per completed execution.
func (t *Task) OnFinish(now time.Time) {
	now = now.UTC()
	t.LastRun = &now
}
