package scheduler

import (
	"sync"
	"sync/atomic"
)

// Lane is a bounded worker pool: a fixed number of workers draining a
// bounded queue. Submission never blocks; a full queue is an error the
// caller handles (for ticks: log and skip).
type Lane struct {
	name        string
	concurrency int

	jobs     chan func()
	wg       sync.WaitGroup
	active   atomic.Int32
	stopOnce sync.Once
	stopped  atomic.Bool
}

// LaneStats is a utilization snapshot.
type LaneStats struct {
	Name        string `json:"name"`
	Concurrency int    `json:"concurrency"`
	Active      int    `json:"active"`
	Queued      int    `json:"queued"`
}

// NewLane starts concurrency workers over a queue of the given capacity.
func NewLane(name string, concurrency, capacity int) *Lane {
	if concurrency <= 0 {
		concurrency = 1
	}
	if capacity <= 0 {
		capacity = concurrency * 4
	}
	l := &Lane{
		name:        name,
		concurrency: concurrency,
		jobs:        make(chan func(), capacity),
	}
	for i := 0; i < concurrency; i++ {
		l.wg.Add(1)
		go l.worker()
	}
	return l
}

func (l *Lane) worker() {
	defer l.wg.Done()
	for fn := range l.jobs {
		l.active.Add(1)
		fn()
		l.active.Add(-1)
	}
}

// Submit enqueues fn. Returns ErrLaneSaturated when the queue is full
// and ErrShutdown after Stop.
func (l *Lane) Submit(fn func()) error {
	if l.stopped.Load() {
		return ErrShutdown
	}
	select {
	case l.jobs <- fn:
		return nil
	default:
		return ErrLaneSaturated
	}
}

// Stop closes the queue and waits for in-flight work to finish.
func (l *Lane) Stop() {
	l.stopOnce.Do(func() {
		l.stopped.Store(true)
		close(l.jobs)
		l.wg.Wait()
	})
}

// Stats returns a utilization snapshot.
func (l *Lane) Stats() LaneStats {
	return LaneStats{
		Name:        l.name,
		Concurrency: l.concurrency,
		Active:      int(l.active.Load()),
		Queued:      len(l.jobs),
	}
}
