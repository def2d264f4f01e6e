package cmd

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"capturehub/internal/database"
	"capturehub/internal/events"
)

func TestStartJournalDrainsBeforeClosing(t *testing.T) {
	database.CloseDB()
	path := filepath.Join(t.TempDir(), "journal.db")
	bus := events.NewBus()

	stop, err := startJournal(path, bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("startJournal: %v", err)
	}
	bus.Publish(events.Event{Kind: events.ServerStopped, At: time.Now()})
	stop()
	stop()

	if database.GetDB() != nil {
		t.Fatal("expected journal closed after stop")
	}
	if err := database.InitDB(path); err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	t.Cleanup(database.CloseDB)
	page, _, _, err := database.GetEventsPage(10, 0)
	if err != nil {
		t.Fatalf("GetEventsPage: %v", err)
	}
	if len(page) != 1 || page[0].Kind != string(events.ServerStopped) {
		t.Fatalf("expected the stop event journaled before close, got %+v", page)
	}
}

func TestStartJournalDisabled(t *testing.T) {
	stop, err := startJournal("", events.NewBus(), nil)
	if err != nil {
		t.Fatalf("startJournal: %v", err)
	}
	stop()
}
