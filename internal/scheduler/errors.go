package scheduler

import "errors"

var (
	// ErrLaneSaturated is returned when the worker lane's queue is full.
	// The tick that hit it skips the task; the next tick re-picks it if
	// still due.
	ErrLaneSaturated = errors.New("worker lane queue is full")

	// ErrShutdown is returned when work is submitted after Shutdown.
	ErrShutdown = errors.New("scheduler is shut down")
)
