// Package database journals lifecycle events to sqlite. Worker and file
// state are never stored here; the journal is an append-only audit trail.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"capturehub/internal/events"
)

var (
	db     *sql.DB
	dbPath string
	dbMu   sync.Mutex
)

// LifecycleEvent is one persisted bus event.
type LifecycleEvent struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	Seq         uint64 `json:"seq,omitempty"`
	WorkerID    string `json:"worker_id,omitempty"`
	Detail      string `json:"detail,omitempty"`
	WorkerCount int    `json:"worker_count"`
	At          string `json:"at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS lifecycle_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	seq INTEGER NOT NULL DEFAULT 0,
	worker_id TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	worker_count INTEGER NOT NULL DEFAULT 0,
	at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lifecycle_events_worker ON lifecycle_events(worker_id);
`

// InitDB opens (or creates) the journal at path and applies the schema.
func InitDB(path string) error {
	dbMu.Lock()
	defer dbMu.Unlock()

	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("journal path is required")
	}
	if db != nil {
		if path == dbPath {
			return nil
		}
		_ = db.Close()
		db = nil
	}

	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY churn.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return fmt.Errorf("apply journal schema: %w", err)
	}
	db = conn
	dbPath = path
	return nil
}

// GetDB returns the open handle, or nil when the journal is disabled.
func GetDB() *sql.DB {
	dbMu.Lock()
	defer dbMu.Unlock()
	return db
}

func CloseDB() {
	dbMu.Lock()
	defer dbMu.Unlock()
	if db != nil {
		_ = db.Close()
		db = nil
		dbPath = ""
	}
}

// Ping reports whether the journal is reachable.
func Ping(ctx context.Context) error {
	conn := GetDB()
	if conn == nil {
		return fmt.Errorf("db not initialized")
	}
	return conn.PingContext(ctx)
}

func LogLifecycleEvent(ev events.Event) (int64, error) {
	conn := GetDB()
	if conn == nil {
		return 0, fmt.Errorf("db not initialized")
	}
	if strings.TrimSpace(string(ev.Kind)) == "" {
		return 0, fmt.Errorf("event kind is required")
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	res, err := conn.Exec(
		`INSERT INTO lifecycle_events(kind, seq, worker_id, detail, worker_count, at) VALUES(?, ?, ?, ?, ?, ?)`,
		string(ev.Kind), int64(ev.Seq), ev.WorkerID, ev.Detail, ev.WorkerCount, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetEventsPage returns events newest first. cursor is the id to continue
// below; 0 starts at the newest. nextCursor is 0 when no rows remain.
func GetEventsPage(limit int, cursor int64) ([]LifecycleEvent, int64, bool, error) {
	conn := GetDB()
	if conn == nil {
		return nil, 0, false, fmt.Errorf("db not initialized")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, kind, seq, worker_id, detail, worker_count, at FROM lifecycle_events`
	args := []interface{}{}
	if cursor > 0 {
		query += ` WHERE id < ?`
		args = append(args, cursor)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := conn.Query(query, args...)
	if err != nil {
		return nil, 0, false, err
	}
	defer rows.Close()

	out := make([]LifecycleEvent, 0, limit)
	for rows.Next() {
		var ev LifecycleEvent
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Seq, &ev.WorkerID, &ev.Detail, &ev.WorkerCount, &ev.At); err != nil {
			return nil, 0, false, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, false, err
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
		return out, out[len(out)-1].ID, true, nil
	}
	return out, 0, false, nil
}

// GetWorkerEvents returns the history of one worker in registry order.
func GetWorkerEvents(workerID string, limit int) ([]LifecycleEvent, error) {
	conn := GetDB()
	if conn == nil {
		return nil, fmt.Errorf("db not initialized")
	}
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return nil, fmt.Errorf("worker_id is required")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := conn.Query(`
SELECT id, kind, seq, worker_id, detail, worker_count, at
FROM lifecycle_events
WHERE worker_id = ?
ORDER BY seq ASC, id ASC
LIMIT ?`, workerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LifecycleEvent
	for rows.Next() {
		var ev LifecycleEvent
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Seq, &ev.WorkerID, &ev.Detail, &ev.WorkerCount, &ev.At); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Follow subscribes to bus and journals every event until ctx is done or
// the subscription is closed. The returned channel closes when the
// goroutine exits. Write failures are logged and skipped.
func Follow(ctx context.Context, bus *events.Bus, buffer int, logger *slog.Logger) <-chan struct{} {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "journal")
	ch, cancel := bus.Subscribe(buffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				drain(ch, logger)
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if _, err := LogLifecycleEvent(ev); err != nil {
					logger.Warn("journal write failed", "kind", ev.Kind, "error", err)
				}
			}
		}
	}()
	return done
}

// drain journals whatever is already buffered, so a stop event published
// just before shutdown is kept.
func drain(ch <-chan events.Event, logger *slog.Logger) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if _, err := LogLifecycleEvent(ev); err != nil {
				logger.Warn("journal write failed", "kind", ev.Kind, "error", err)
			}
		default:
			return
		}
	}
}
