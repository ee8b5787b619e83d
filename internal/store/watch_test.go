package store

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nextlevelbuilder/taskhive/internal/task"
)

func TestWatcher_ReloadsOnOutOfBandEdit(t *testing.T) {
	s, clk := newTestStore(t)
	added, err := s.Add(scheduledTask("watched", "0 9 * * *"))
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(s)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	reloaded := make(chan struct{}, 1)
	w.OnReload(func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	// Edit the file the way an external tool would: rewrite in place.
	edited := added.Clone()
	edited.Prompt = "edited externally"
	edited.UpdatedAt = clk.Now()
	doc := document{Version: storeVersion, Tasks: []*task.Task{edited}}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), data, 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never reloaded after an external edit")
	}

	got, err := s.Get(added.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Prompt != "edited externally" {
		t.Errorf("reload did not pick up the edit: prompt = %q", got.Prompt)
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	s, _ := newTestStore(t)

	w, err := NewWatcher(s)
	if err != nil {
		t.Fatal(err)
	}
	reloaded := make(chan struct{}, 1)
	w.OnReload(func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	other := s.Path() + ".other"
	if err := os.WriteFile(other, []byte("noise"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
		t.Error("watcher reloaded for an unrelated file")
	case <-time.After(600 * time.Millisecond):
	}
}
