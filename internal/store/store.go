// Package store owns the durable task collection: a single JSON document
// guarded by one lock, written atomically via temp-file rename. All task
// mutations in the process flow through it.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/taskhive/internal/clock"
	"github.com/nextlevelbuilder/taskhive/internal/contextstore"
	"github.com/nextlevelbuilder/taskhive/internal/task"
)

// ErrAbort makes an Update mutator back out without applying or
// persisting anything.
var ErrAbort = errors.New("update aborted")

// document is the on-disk root: {"version": 1, "tasks": [...]}.
type document struct {
	Version int          `json:"version"`
	Tasks   []*task.Task `json:"tasks"`
}

const storeVersion = 1

// TaskStore is the authoritative, concurrency-safe task collection.
// The single lock serializes every read and write; unexported *Locked
// helpers let compound operations reuse lookups without re-entry.
type TaskStore struct {
	mu       sync.Mutex
	path     string
	clk      clock.Clock
	contexts contextstore.Store
	tasks    []*task.Task
}

// NewTaskStore loads (or initializes) the task file at path. contexts may
// be nil; when set, Remove deletes the task's conversation record in the
// same critical section.
func NewTaskStore(path string, clk clock.Clock, contexts contextstore.Store) (*TaskStore, error) {
	s := &TaskStore{path: path, clk: clk, contexts: contexts}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the store file path.
func (s *TaskStore) Path() string { return s.path }

// List returns a deep-copied snapshot of all tasks.
func (s *TaskStore) List() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*task.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Get returns a deep copy of the task with the given uuid.
func (s *TaskStore) Get(id uuid.UUID) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

// GetByName returns a deep copy of the task with the given name.
func (s *TaskStore) GetByName(name string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.Name == name {
			return t.Clone(), nil
		}
	}
	return nil, task.Errf(task.KindNotFound, "no task named %q", name)
}

// Add validates and inserts a new task, assigning uuid and timestamps.
// Fails with DuplicateName or DuplicateToken; persists atomically.
func (s *TaskStore) Add(t *task.Task) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t = t.Clone()
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	t.State = task.StateIdle
	now := s.clk.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Plan != nil {
		t.Plan.Normalize()
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkUniqueLocked(t, uuid.Nil); err != nil {
		return nil, err
	}

	s.tasks = append(s.tasks, t)
	if err := s.saveLocked(); err != nil {
		s.tasks = s.tasks[:len(s.tasks)-1]
		return nil, err
	}

	slog.Info("task added", "uuid", t.UUID, "name", t.Name, "type", t.Type)
	return t.Clone(), nil
}

// Remove deletes a task and, in the same critical section, its
// conversation record.
func (s *TaskStore) Remove(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return task.Errf(task.KindNotFound, "no task with uuid %s", id)
	}

	removed := s.tasks[idx]
	s.tasks = append(s.tasks[:idx], s.tasks[idx+1:]...)
	if err := s.saveLocked(); err != nil {
		s.tasks = append(s.tasks[:idx], append([]*task.Task{removed}, s.tasks[idx:]...)...)
		return err
	}

	if s.contexts != nil {
		if err := s.contexts.Delete(id.String()); err != nil {
			slog.Warn("task context delete failed", "uuid", id, "error", err)
		}
	}

	slog.Info("task removed", "uuid", id, "name", removed.Name)
	return nil
}

// Update reads the task under the lock, passes a deep copy to mutator,
// validates invariants (field validity, uniqueness, state transition),
// replaces the canonical object and persists. A mutator returning
// ErrAbort makes the whole update a no-op. This is the only sanctioned
// way to change task fields.
func (s *TaskStore) Update(id uuid.UUID, mutator func(*task.Task) error) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, task.Errf(task.KindNotFound, "no task with uuid %s", id)
	}
	old := s.tasks[idx]

	next := old.Clone()
	if err := mutator(next); err != nil {
		if errors.Is(err, ErrAbort) {
			return old.Clone(), nil
		}
		return nil, err
	}

	// Identity and provenance are immutable.
	if next.UUID != old.UUID {
		return nil, task.FieldErrf(task.KindBadField, "uuid", "uuid is immutable")
	}
	if next.Type != old.Type {
		return nil, task.FieldErrf(task.KindBadField, "type", "task type is immutable")
	}
	next.CreatedAt = old.CreatedAt

	if next.State != old.State && !task.CanTransition(old.State, next.State) {
		return nil, task.Errf(task.KindInvalidTransition, "cannot transition %s -> %s", old.State, next.State)
	}
	if next.Plan != nil {
		next.Plan.Normalize()
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkUniqueLocked(next, old.UUID); err != nil {
		return nil, err
	}

	// updated_at is monotonically non-decreasing per uuid.
	now := s.clk.Now()
	if now.Before(old.UpdatedAt) {
		now = old.UpdatedAt
	}
	next.UpdatedAt = now

	s.tasks[idx] = next
	if err := s.saveLocked(); err != nil {
		s.tasks[idx] = old
		return nil, err
	}
	return next.Clone(), nil
}

// DueTasks returns deep copies of idle tasks whose variant predicate
// reports a firing within the window.
func (s *TaskStore) DueTasks(window time.Duration) []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*task.Task
	for _, t := range s.tasks {
		if t.State != task.StateIdle {
			continue
		}
		if t.CheckSchedule(s.clk, window) {
			due = append(due, t.Clone())
		}
	}
	return due
}

// Reload re-reads the file and merges by uuid: disk is authoritative,
// except that a task currently running in memory keeps its in-memory
// image so an out-of-band edit cannot break a run in flight.
func (s *TaskStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := readDocument(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	running := make(map[uuid.UUID]*task.Task)
	for _, t := range s.tasks {
		if t.State == task.StateRunning {
			running[t.UUID] = t
		}
	}

	merged := make([]*task.Task, 0, len(doc.Tasks))
	seen := make(map[uuid.UUID]bool)
	for _, t := range doc.Tasks {
		if inMem, ok := running[t.UUID]; ok {
			merged = append(merged, inMem)
		} else {
			merged = append(merged, t)
		}
		seen[t.UUID] = true
	}
	// A running task deleted on disk stays until its run completes.
	for id, t := range running {
		if !seen[id] {
			merged = append(merged, t)
		}
	}

	s.tasks = merged
	return nil
}

// --- locked helpers ---

func (s *TaskStore) getLocked(id uuid.UUID) (*task.Task, error) {
	if idx := s.indexLocked(id); idx >= 0 {
		return s.tasks[idx].Clone(), nil
	}
	return nil, task.Errf(task.KindNotFound, "no task with uuid %s", id)
}

func (s *TaskStore) indexLocked(id uuid.UUID) int {
	for i, t := range s.tasks {
		if t.UUID == id {
			return i
		}
	}
	return -1
}

// checkUniqueLocked enforces name uniqueness across all tasks and token
// uniqueness across adhoc tasks, ignoring the task with uuid self.
func (s *TaskStore) checkUniqueLocked(candidate *task.Task, self uuid.UUID) error {
	for _, t := range s.tasks {
		if t.UUID == self || t.UUID == candidate.UUID {
			continue
		}
		if t.Name == candidate.Name {
			return task.FieldErrf(task.KindDuplicateName, "name", "a task named %q already exists", candidate.Name)
		}
		if candidate.Type == task.TypeAdHoc && t.Type == task.TypeAdHoc && t.Token == candidate.Token {
			return task.FieldErrf(task.KindDuplicateToken, "token", "token already in use")
		}
	}
	return nil
}

// --- persistence ---

func (s *TaskStore) loadLocked() error {
	// A leftover temp file means a previous write died before rename;
	// the main file still holds the pre-image.
	_ = os.Remove(s.path + ".tmp")

	doc, err := readDocument(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.tasks = nil
			return nil
		}
		return err
	}
	s.tasks = doc.Tasks
	return nil
}

// saveLocked writes the document via temp-file + rename so readers see
// either the pre- or post-image, never a partial write.
func (s *TaskStore) saveLocked() error {
	doc := document{Version: storeVersion, Tasks: s.tasks}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return task.Errf(task.KindIOError, "encode store: %v", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return task.Errf(task.KindIOError, "write store: %v", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return task.Errf(task.KindIOError, "rename store: %v", err)
	}
	return nil
}

func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, task.Errf(task.KindCorruptStore, "decode store: %v", err)
	}
	if doc.Version != storeVersion {
		return nil, task.Errf(task.KindCorruptStore, "unsupported store version %d", doc.Version)
	}
	return &doc, nil
}
