package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies a completed run.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// RunRecord is the transient per-run record kept in the run log.
type RunRecord struct {
	TaskUUID   uuid.UUID `json:"task_uuid"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    Outcome   `json:"outcome"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// runLogCap bounds the in-memory run history.
const runLogCap = 200

// runLog is a fixed-size in-memory ring of recent executions.
type runLog struct {
	mu      sync.Mutex
	entries []RunRecord
}

func (l *runLog) append(rec RunRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, rec)
	if len(l.entries) > runLogCap {
		l.entries = l.entries[len(l.entries)-runLogCap:]
	}
}

// recent returns up to limit entries, newest first, optionally filtered
// by task uuid (uuid.Nil means all tasks).
func (l *runLog) recent(id uuid.UUID, limit int) []RunRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	var out []RunRecord
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if id == uuid.Nil || l.entries[i].TaskUUID == id {
			out = append(out, l.entries[i])
		}
	}
	return out
}
