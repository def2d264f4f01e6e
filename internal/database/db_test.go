package database

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"capturehub/internal/events"
)

func withTempDB(t *testing.T) string {
	t.Helper()
	CloseDB()
	path := filepath.Join(t.TempDir(), "journal.db")
	if err := InitDB(path); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(CloseDB)
	return path
}

func TestLogLifecycleEventRequiresDB(t *testing.T) {
	CloseDB()
	if _, err := LogLifecycleEvent(events.Event{Kind: events.ServerStarted}); err == nil {
		t.Fatal("expected error without an open journal")
	}
	if err := InitDB("  "); err == nil {
		t.Fatal("expected error for empty journal path")
	}
}

func TestInitDBIsIdempotentForSamePath(t *testing.T) {
	path := withTempDB(t)
	first := GetDB()
	if err := InitDB(path); err != nil {
		t.Fatalf("InitDB again: %v", err)
	}
	if GetDB() != first {
		t.Fatal("expected same handle for repeated InitDB")
	}
	if err := Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestGetEventsPage(t *testing.T) {
	_ = withTempDB(t)

	kinds := []events.Kind{events.ServerStarted, events.WorkerCaptured, events.WorkerEvicted}
	for i, kind := range kinds {
		if _, err := LogLifecycleEvent(events.Event{Kind: kind, WorkerID: "b1", WorkerCount: i, At: time.Now()}); err != nil {
			t.Fatalf("LogLifecycleEvent[%d]: %v", i, err)
		}
	}

	page1, cursor1, hasMore1, err := GetEventsPage(2, 0)
	if err != nil {
		t.Fatalf("GetEventsPage page1: %v", err)
	}
	if len(page1) != 2 || !hasMore1 || cursor1 <= 0 {
		t.Fatalf("expected 2 events with more, got %d hasMore=%v cursor=%d", len(page1), hasMore1, cursor1)
	}
	if page1[0].Kind != string(events.WorkerEvicted) {
		t.Fatalf("expected newest first, got %s", page1[0].Kind)
	}

	page2, cursor2, hasMore2, err := GetEventsPage(2, cursor1)
	if err != nil {
		t.Fatalf("GetEventsPage page2: %v", err)
	}
	if len(page2) != 1 || hasMore2 || cursor2 != 0 {
		t.Fatalf("expected final page of 1, got %d hasMore=%v cursor=%d", len(page2), hasMore2, cursor2)
	}
	if page2[0].Kind != string(events.ServerStarted) {
		t.Fatalf("expected oldest event on page2, got %s", page2[0].Kind)
	}
}

func TestGetWorkerEvents(t *testing.T) {
	_ = withTempDB(t)

	_, _ = LogLifecycleEvent(events.Event{Kind: events.WorkerCaptured, WorkerID: "b1"})
	_, _ = LogLifecycleEvent(events.Event{Kind: events.WorkerCaptured, WorkerID: "b2"})
	_, _ = LogLifecycleEvent(events.Event{Kind: events.WorkerEvicted, WorkerID: "b1"})

	history, err := GetWorkerEvents("b1", 10)
	if err != nil {
		t.Fatalf("GetWorkerEvents: %v", err)
	}
	if len(history) != 2 || history[0].Kind != string(events.WorkerCaptured) || history[1].Kind != string(events.WorkerEvicted) {
		t.Fatalf("unexpected history %+v", history)
	}
	if _, err := GetWorkerEvents(" ", 10); err == nil {
		t.Fatal("expected error for empty worker id")
	}
}

func TestGetWorkerEventsOrdersBySeq(t *testing.T) {
	_ = withTempDB(t)

	// Delivered out of order: the release reached the journal first.
	_, _ = LogLifecycleEvent(events.Event{Kind: events.WorkerReleased, Seq: 2, WorkerID: "b1"})
	_, _ = LogLifecycleEvent(events.Event{Kind: events.WorkerCaptured, Seq: 1, WorkerID: "b1"})

	history, err := GetWorkerEvents("b1", 10)
	if err != nil {
		t.Fatalf("GetWorkerEvents: %v", err)
	}
	if len(history) != 2 || history[0].Kind != string(events.WorkerCaptured) || history[1].Seq != 2 {
		t.Fatalf("expected capture before release, got %+v", history)
	}
}

func TestFollowJournalsBusEvents(t *testing.T) {
	_ = withTempDB(t)
	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	done := Follow(ctx, bus, 16, slog.New(slog.NewTextHandler(io.Discard, nil)))

	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	bus.Publish(events.Event{Kind: events.ServerStarted, At: time.Now()})
	bus.Publish(events.Event{Kind: events.ServerStopped, At: time.Now()})
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("journal follower did not exit")
	}

	page, _, _, err := GetEventsPage(10, 0)
	if err != nil {
		t.Fatalf("GetEventsPage: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected both events journaled, got %d", len(page))
	}
	if bus.Subscribers() != 0 {
		t.Fatalf("expected subscription released, got %d", bus.Subscribers())
	}
}
