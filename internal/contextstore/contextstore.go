// Package contextstore holds the conversation records task runs attach
// to. The scheduler shares the underlying store with unrelated chat
// sessions; disambiguation is purely by key, a task context's key is the
// task uuid.
package contextstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Ref identifies a conversation record. The scheduler passes it to the
// agent runtime; the record content is opaque here.
type Ref struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the minimal contract the scheduler needs: get-or-create on
// run, delete on task removal.
type Store interface {
	GetOrCreate(key string) (Ref, error)
	Delete(key string) error
}

// FileStore keeps one JSON record per key under a directory.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the backing directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create context dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// GetOrCreate returns the record for key, creating it if absent.
func (s *FileStore) GetOrCreate(key string) (Ref, error) {
	if err := validKey(key); err != nil {
		return Ref{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err == nil {
		var ref Ref
		if jsonErr := json.Unmarshal(data, &ref); jsonErr == nil && ref.Key == key {
			return ref, nil
		}
		// Unreadable record: recreate rather than fail the run.
	} else if !os.IsNotExist(err) {
		return Ref{}, fmt.Errorf("read context %s: %w", key, err)
	}

	ref := Ref{Key: key, CreatedAt: time.Now().UTC()}
	data, err = json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return Ref{}, err
	}
	if err := os.WriteFile(s.path(key), data, 0o644); err != nil {
		return Ref{}, fmt.Errorf("write context %s: %w", key, err)
	}
	return ref, nil
}

// Delete removes the record for key. Missing records are not an error.
func (s *FileStore) Delete(key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete context %s: %w", key, err)
	}
	return nil
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("invalid context key %q", key)
	}
	return nil
}
