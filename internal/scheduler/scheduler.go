// Package scheduler orchestrates task execution: it discovers due tasks
// on tick, runs them through a bounded worker lane, and serializes every
// lifecycle transition through the task store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/taskhive/internal/clock"
	"github.com/nextlevelbuilder/taskhive/internal/contextstore"
	"github.com/nextlevelbuilder/taskhive/internal/cron"
	"github.com/nextlevelbuilder/taskhive/internal/store"
	"github.com/nextlevelbuilder/taskhive/internal/task"
)

// Config tunes the execution runtime.
type Config struct {
	// Workers bounds concurrent agent runs.
	Workers int
	// QueueCap bounds queued runs beyond the active ones; overflow is
	// skipped for the tick and re-picked next tick if still due.
	QueueCap int
	// TickWindow is the default due window; it must equal the period of
	// whatever drives the tick endpoint.
	TickWindow time.Duration
	// CancelGrace is how long a cancelled run may keep running before the
	// scheduler force-finalizes it and orphans the agent call.
	CancelGrace time.Duration
	Retry       RetryConfig
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		QueueCap:    16,
		TickWindow:  60 * time.Second,
		CancelGrace: 30 * time.Second,
		Retry:       DefaultRetryConfig(),
	}
}

// runHandle tracks one in-flight execution. seq is the monotonic run
// sequence for the task; outcomes carrying a stale seq are discarded so
// an agent that ignored cancellation can never write back.
type runHandle struct {
	seq    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler is the process-wide execution engine. Construct with New at
// process start, release with Shutdown; there is no lazy initialization.
type Scheduler struct {
	cfg      Config
	clk      clock.Clock
	store    *store.TaskStore
	contexts contextstore.Store
	runner   AgentRunner
	lane     *Lane
	log      runLog

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu     sync.Mutex
	seq    map[uuid.UUID]uint64
	runs   map[uuid.UUID]*runHandle
	closed bool
}

// New creates a scheduler over its collaborators and starts the worker
// lane.
func New(cfg Config, clk clock.Clock, st *store.TaskStore, contexts contextstore.Store, runner AgentRunner) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.TickWindow <= 0 {
		cfg.TickWindow = DefaultConfig().TickWindow
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = DefaultConfig().CancelGrace
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:        cfg,
		clk:        clk,
		store:      st,
		contexts:   contexts,
		runner:     runner,
		lane:       NewLane("agent", cfg.Workers, cfg.QueueCap),
		baseCtx:    ctx,
		baseCancel: cancel,
		seq:        make(map[uuid.UUID]uint64),
		runs:       make(map[uuid.UUID]*runHandle),
	}
	slog.Info("scheduler started", "workers", cfg.Workers, "tick_window", cfg.TickWindow)
	return s
}

// Shutdown cancels in-flight runs and stops the workers.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.baseCancel()
	s.lane.Stop()
	slog.Info("scheduler stopped")
}

// Tick reloads the store, collects due tasks and dispatches each to the
// worker lane. Returns the number dispatched. Safe to call concurrently;
// overlapping ticks coalesce on the idle filter.
func (s *Scheduler) Tick(window time.Duration) (int, error) {
	if window <= 0 {
		window = s.cfg.TickWindow
	}
	if err := s.store.Reload(); err != nil {
		slog.Warn("tick: store reload failed", "error", err)
	}

	dispatched := 0
	for _, t := range s.store.DueTasks(window) {
		if err := s.dispatch(t.UUID); err != nil {
			var te *task.Error
			if errors.As(err, &te) {
				// Lost the idle race to a concurrent tick or manual run.
				slog.Debug("tick: task skipped", "uuid", t.UUID, "reason", te.Kind)
			} else {
				slog.Warn("tick: task skipped", "uuid", t.UUID, "name", t.Name, "error", err)
			}
			continue
		}
		dispatched++
	}
	if dispatched > 0 {
		slog.Info("tick dispatched", "count", dispatched, "window", window)
	}
	return dispatched, nil
}

// Run manually triggers a task. The state transition to running happens
// before this returns; the agent call completes in the background.
func (s *Scheduler) Run(id uuid.UUID) error {
	t, err := s.store.Get(id)
	if err != nil {
		return err
	}
	switch t.State {
	case task.StateRunning:
		return task.Errf(task.KindAlreadyRunning, "task %s is already running", id)
	case task.StateDisabled:
		return task.Errf(task.KindDisabled, "task %s is disabled", id)
	case task.StateError:
		return task.Errf(task.KindInvalidTransition, "task %s is in error state; reset it to idle first", id)
	}
	return s.dispatch(id)
}

// Cancel signals the in-flight run for id. Best-effort: if the agent
// ignores the signal past the grace period the run is force-finalized as
// cancelled and its eventual outcome discarded.
func (s *Scheduler) Cancel(id uuid.UUID) error {
	s.mu.Lock()
	handle, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		return task.Errf(task.KindNotFound, "no run in flight for task %s", id)
	}

	handle.cancel()
	go func() {
		select {
		case <-handle.done:
		case <-time.After(s.cfg.CancelGrace):
			s.forceCancel(id, handle)
		}
	}()
	return nil
}

// RunLog returns recent execution records, newest first. A nil uuid
// returns records for all tasks.
func (s *Scheduler) RunLog(id uuid.UUID, limit int) []RunRecord {
	return s.log.recent(id, limit)
}

// Status reports the runtime snapshot served by the status endpoint.
func (s *Scheduler) Status() map[string]any {
	s.mu.Lock()
	closed := s.closed
	inFlight := len(s.runs)
	s.mu.Unlock()

	stats := s.lane.Stats()
	st := map[string]any{
		"running":     !closed,
		"tasks":       len(s.store.List()),
		"in_flight":   inFlight,
		"workers":     stats.Concurrency,
		"queue_depth": stats.Queued,
	}
	if next := s.NextWake(); next != nil {
		st["next_wake"] = next.Format(time.RFC3339)
	}
	return st
}

// NextWake returns the earliest upcoming fire instant across idle
// scheduled and planned tasks, or nil when nothing is pending.
func (s *Scheduler) NextWake() *time.Time {
	now := s.clk.Now()
	var earliest *time.Time

	consider := func(t time.Time) {
		if earliest == nil || t.Before(*earliest) {
			earliest = &t
		}
	}

	for _, t := range s.store.List() {
		if t.State != task.StateIdle {
			continue
		}
		switch t.Type {
		case task.TypeScheduled:
			loc, err := t.Schedule.Location(s.clk.DefaultTimezone())
			if err != nil {
				continue
			}
			if next, ok := cron.NextAfter(t.Schedule.Schedule, loc, now); ok {
				consider(next)
			}
		case task.TypePlanned:
			if len(t.Plan.Todo) > 0 {
				consider(t.Plan.Todo[0])
			}
		}
	}
	return earliest
}

// dispatch performs the acquire-and-transition step under the store lock
// and hands the run to the worker lane. At most one execution per uuid
// can pass the idle check.
func (s *Scheduler) dispatch(id uuid.UUID) error {
	now := s.clk.Now()
	claimed, err := s.store.Update(id, func(t *task.Task) error {
		switch t.State {
		case task.StateIdle:
		case task.StateRunning:
			return task.Errf(task.KindAlreadyRunning, "task %s is already running", id)
		case task.StateDisabled:
			return task.Errf(task.KindDisabled, "task %s is disabled", id)
		default:
			return task.Errf(task.KindInvalidTransition, "task %s is in state %s", id, t.State)
		}
		if err := t.OnRun(now); err != nil {
			return err
		}
		t.State = task.StateRunning
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.revertClaim(id)
		return ErrShutdown
	}
	s.seq[id]++
	var runCtx context.Context
	var cancel context.CancelFunc
	if claimed.MaxRunSeconds > 0 {
		runCtx, cancel = context.WithTimeout(s.baseCtx, time.Duration(claimed.MaxRunSeconds)*time.Second)
	} else {
		runCtx, cancel = context.WithCancel(s.baseCtx)
	}
	handle := &runHandle{seq: s.seq[id], cancel: cancel, done: make(chan struct{})}
	s.runs[id] = handle
	s.mu.Unlock()

	if err := s.lane.Submit(func() { s.executeRun(claimed, handle, runCtx) }); err != nil {
		cancel()
		s.mu.Lock()
		delete(s.runs, id)
		s.mu.Unlock()
		s.revertClaim(id)
		slog.Warn("run skipped: worker lane saturated", "uuid", id, "name", claimed.Name)
		return err
	}

	slog.Info("task run dispatched", "uuid", id, "name", claimed.Name, "seq", handle.seq)
	return nil
}

// revertClaim undoes an acquire-and-transition that never reached a
// worker: state back to idle, planned waypoint back to todo. last_run is
// untouched because no execution happened.
func (s *Scheduler) revertClaim(id uuid.UUID) {
	_, err := s.store.Update(id, func(t *task.Task) error {
		if t.State != task.StateRunning {
			return store.ErrAbort
		}
		if err := t.OnCancel(); err != nil {
			return err
		}
		t.State = task.StateIdle
		return nil
	})
	if err != nil {
		slog.Error("failed to revert claimed task", "uuid", id, "error", err)
	}
}

// executeRun is the worker-side body: resolve the conversation context,
// invoke the agent, classify the outcome and finalize. Everything here
// runs outside the store lock.
func (s *Scheduler) executeRun(t *task.Task, handle *runHandle, runCtx context.Context) {
	defer handle.cancel()
	started := s.clk.Now()

	ref, err := s.contexts.GetOrCreate(t.UUID.String())
	if err != nil {
		close(handle.done)
		s.finalize(t.UUID, handle.seq, started, OutcomeError, "", fmt.Sprintf("resolve context: %v", err))
		return
	}

	bundle := Bundle{
		SystemPrompt:  t.SystemPrompt,
		Prompt:        t.Prompt,
		Attachments:   t.Attachments,
		CtxPlanning:   t.CtxPlanning,
		CtxReasoning:  t.CtxReasoning,
		CtxDeepSearch: t.CtxDeepSearch,
		ContextRef:    ref,
	}

	result, attempts, err := runWithRetry(runCtx, s.cfg.Retry, func() (string, error) {
		return s.runner.Run(runCtx, bundle)
	})
	if attempts > 1 {
		slog.Info("task run retried", "uuid", t.UUID, "attempts", attempts, "success", err == nil)
	}
	close(handle.done)

	switch {
	case err == nil:
		s.finalize(t.UUID, handle.seq, started, OutcomeSuccess, result, "")
	case errors.Is(err, context.DeadlineExceeded) || runCtx.Err() == context.DeadlineExceeded:
		s.finalize(t.UUID, handle.seq, started, OutcomeError,
			"", fmt.Sprintf("run exceeded max duration of %ds", t.MaxRunSeconds))
	case errors.Is(err, context.Canceled) || runCtx.Err() == context.Canceled:
		s.finalize(t.UUID, handle.seq, started, OutcomeCancelled, "", "")
	default:
		s.finalize(t.UUID, handle.seq, started, OutcomeError, "", err.Error())
	}
}

// finalize applies the outcome under the store lock. Stale sequences
// (superseded by force-cancel) are discarded without touching the task.
func (s *Scheduler) finalize(id uuid.UUID, seq uint64, started time.Time, outcome Outcome, result, runErr string) {
	s.mu.Lock()
	if s.seq[id] != seq {
		s.mu.Unlock()
		slog.Warn("stale run outcome discarded", "uuid", id, "seq", seq, "outcome", outcome)
		return
	}
	delete(s.runs, id)
	s.mu.Unlock()

	now := s.clk.Now()
	_, err := s.store.Update(id, func(t *task.Task) error {
		if t.State != task.StateRunning {
			return store.ErrAbort
		}
		var hookErr error
		switch outcome {
		case OutcomeSuccess:
			hookErr = t.OnSuccess(truncateOutput(result))
			t.State = task.StateIdle
		case OutcomeError:
			hookErr = t.OnError(truncateOutput(runErr))
			t.State = task.StateError
		case OutcomeCancelled:
			hookErr = t.OnCancel()
			t.State = task.StateIdle
		}
		if hookErr != nil {
			return hookErr
		}
		t.OnFinish(now)
		return nil
	})
	if err != nil {
		slog.Error("failed to finalize run", "uuid", id, "outcome", outcome, "error", err)
	}

	s.log.append(RunRecord{
		TaskUUID:   id,
		StartedAt:  started,
		FinishedAt: now,
		Outcome:    outcome,
		Result:     truncateOutput(result),
		Error:      truncateOutput(runErr),
	})

	switch outcome {
	case OutcomeError:
		slog.Error("task run failed", "uuid", id, "error", runErr)
	default:
		slog.Info("task run finished", "uuid", id, "outcome", outcome)
	}
}

// forceCancel finalizes a run whose agent ignored cancellation past the
// grace period. Bumping the sequence orphans the still-running agent
// call: when it eventually returns, its outcome is stale and dropped.
func (s *Scheduler) forceCancel(id uuid.UUID, handle *runHandle) {
	s.mu.Lock()
	if s.seq[id] != handle.seq {
		s.mu.Unlock()
		return
	}
	s.seq[id]++
	delete(s.runs, id)
	s.mu.Unlock()

	now := s.clk.Now()
	_, err := s.store.Update(id, func(t *task.Task) error {
		if t.State != task.StateRunning {
			return store.ErrAbort
		}
		if hookErr := t.OnCancel(); hookErr != nil {
			return hookErr
		}
		t.State = task.StateIdle
		t.OnFinish(now)
		return nil
	})
	if err != nil {
		slog.Error("failed to force-cancel run", "uuid", id, "error", err)
	}
	slog.Warn("run force-cancelled after grace period", "uuid", id, "seq", handle.seq)
}
