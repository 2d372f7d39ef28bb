package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEventWriterCreatesFile(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)

	if err := w.Notify(Event{Type: EventBackupCompleted, SnapshotID: "snap-abc123", Version: 4}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 event file, got %d", len(entries))
	}
	if filepath.Ext(entries[0].Name()) != ".event" {
		t.Errorf("expected .event extension, got %s", entries[0].Name())
	}
}

func TestEventWatcherReceivesEvent(t *testing.T) {
	dir := t.TempDir()

	received := make(chan Event, 1)

	watcher := NewEventWatcher(dir, Handlers{
		BackupCompleted: func(evt Event) { received <- evt },
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Give fsnotify a moment to register
	time.Sleep(50 * time.Millisecond)

	writer := NewEventWriter(dir)
	if err := writer.Notify(Event{Type: EventBackupCompleted, SnapshotID: "snap-test123", Version: 7}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	select {
	case evt := <-received:
		if evt.Type != EventBackupCompleted {
			t.Errorf("expected event type %s, got %s", EventBackupCompleted, evt.Type)
		}
		if evt.SnapshotID != "snap-test123" {
			t.Errorf("expected snap-test123, got %s", evt.SnapshotID)
		}
		if evt.Version != 7 {
			t.Errorf("expected version 7, got %d", evt.Version)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventWatcherDrainsExisting(t *testing.T) {
	dir := t.TempDir()

	// Write events BEFORE starting watcher
	writer := NewEventWriter(dir)
	_ = writer.Notify(Event{Type: EventBackupCompleted, SnapshotID: "snap-drain1"})
	_ = writer.Notify(Event{Type: EventRecoveryPerformed, SnapshotID: "snap-drain2"})

	received := make(chan string, 10)
	onEvent := func(evt Event) { received <- evt.SnapshotID }
	watcher := NewEventWatcher(dir, Handlers{
		BackupCompleted:   onEvent,
		RecoveryPerformed: onEvent,
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-received:
			got[id] = true
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout; drained %d of 2 events", len(got))
		}
	}

	if !got["snap-drain1"] || !got["snap-drain2"] {
		t.Errorf("expected both pre-existing events, got %v", got)
	}
}

func TestEventWatcherRoutesByType(t *testing.T) {
	dir := t.TempDir()

	completed := make(chan Event, 1)
	failed := make(chan Event, 1)
	watcher := NewEventWatcher(dir, Handlers{
		BackupCompleted: func(evt Event) { completed <- evt },
		BackupFailed:    func(evt Event) { failed <- evt },
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(50 * time.Millisecond)

	writer := NewEventWriter(dir)
	_ = writer.Notify(Event{Type: EventBackupFailed, Detail: "disk full"})
	_ = writer.Notify(Event{Type: "unknown_future_event"})
	_ = writer.Notify(Event{Type: EventBackupCompleted, SnapshotID: "snap-route", Version: 2})

	select {
	case evt := <-failed:
		if evt.Detail != "disk full" {
			t.Errorf("expected failure detail, got %q", evt.Detail)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for failure event")
	}

	select {
	case evt := <-completed:
		if evt.SnapshotID != "snap-route" {
			t.Errorf("expected snap-route, got %s", evt.SnapshotID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for completed event")
	}

	// The unknown event type is dropped, not delivered to either handler.
	select {
	case evt := <-completed:
		t.Errorf("unexpected extra event: %+v", evt)
	case evt := <-failed:
		t.Errorf("unexpected extra event: %+v", evt)
	default:
	}
}
