// Package browser keeps the set of captured browsers and evicts the ones
// that stop sending heartbeats.
package browser

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"capturehub/internal/events"
)

// ErrNotFound is returned when a worker id is not (or no longer) captured.
var ErrNotFound = errors.New("browser not captured")

// Status is the lifecycle phase of a captured browser.
type Status string

const (
	StatusCapturing Status = "capturing"
	StatusIdle      Status = "idle"
	StatusBusy      Status = "busy"
	StatusDead      Status = "dead"
)

// ParseStatus normalizes raw into a known Status.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusCapturing, StatusIdle, StatusBusy, StatusDead:
		return s, nil
	default:
		return "", fmt.Errorf("unknown browser status %q", raw)
	}
}

// Descriptor is what a browser reports about itself when it connects.
type Descriptor struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	OS        string `json:"os,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Worker is a snapshot of one captured browser.
type Worker struct {
	ID            string     `json:"id"`
	Descriptor    Descriptor `json:"descriptor"`
	CapturedAt    time.Time  `json:"captured_at"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
	Status        Status     `json:"status"`
}

// Registry is the only owner of worker state. Callers get copies.
// Events are published after the lock is released, so subscribers may
// see them out of order; Seq is assigned under the lock and gives the
// order in which the mutations happened.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	seq     uint64

	bus     *events.Bus
	nowFunc func() time.Time
	newID   func() string
}

// NewRegistry returns an empty registry publishing to bus (may be nil).
func NewRegistry(bus *events.Bus) *Registry {
	return &Registry{
		workers: make(map[string]*Worker),
		bus:     bus,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// Capture registers a new browser and returns its snapshot.
func (r *Registry) Capture(desc Descriptor) Worker {
	r.mu.Lock()
	now := r.nowFunc()
	w := &Worker{
		ID:            r.newID(),
		Descriptor:    desc,
		CapturedAt:    now,
		LastHeartbeat: now,
		Status:        StatusIdle,
	}
	r.workers[w.ID] = w
	snap, count, seq := *w, len(r.workers), r.nextSeq()
	r.mu.Unlock()

	r.publish(events.WorkerCaptured, seq, snap.ID, desc.Name, count)
	return snap
}

// Touch records a heartbeat.
func (r *Registry) Touch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("touch %s: %w", id, ErrNotFound)
	}
	w.LastHeartbeat = r.nowFunc()
	return nil
}

// SetStatus moves a worker to status. Any status except dead counts as a
// heartbeat, so a dead worker is left for the reaper.
func (r *Registry) SetStatus(id string, status Status) error {
	r.mu.Lock()
	w, ok := r.workers[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("set status %s: %w", id, ErrNotFound)
	}
	w.Status = status
	if status != StatusDead {
		w.LastHeartbeat = r.nowFunc()
	}
	count, seq := len(r.workers), r.nextSeq()
	r.mu.Unlock()

	r.publish(events.WorkerStatus, seq, id, string(status), count)
	return nil
}

func (r *Registry) Get(id string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	if !ok {
		return Worker{}, false
	}
	return *w, true
}

// List returns a snapshot ordered by capture time.
func (r *Registry) List() []Worker {
	r.mu.RLock()
	out := make([]Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, *w)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Remove releases a worker. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.workers[id]
	var seq uint64
	if ok {
		delete(r.workers, id)
		seq = r.nextSeq()
	}
	count := len(r.workers)
	r.mu.Unlock()

	if ok {
		r.publish(events.WorkerReleased, seq, id, "", count)
	}
	return ok
}

// RemoveIfStale evicts id only if its last heartbeat is still before
// cutoff. The check and the delete happen under one write lock so a
// heartbeat that lands between a sweep's snapshot and its eviction wins.
func (r *Registry) RemoveIfStale(id string, cutoff time.Time) bool {
	r.mu.Lock()
	w, ok := r.workers[id]
	if !ok || !w.LastHeartbeat.Before(cutoff) {
		r.mu.Unlock()
		return false
	}
	delete(r.workers, id)
	count, seq := len(r.workers), r.nextSeq()
	r.mu.Unlock()

	r.publish(events.WorkerEvicted, seq, id, "heartbeat timeout", count)
	return true
}

// nextSeq must be called with r.mu held for writing.
func (r *Registry) nextSeq() uint64 {
	r.seq++
	return r.seq
}

func (r *Registry) publish(kind events.Kind, seq uint64, id, detail string, count int) {
	r.bus.Publish(events.Event{
		Kind:        kind,
		Seq:         seq,
		WorkerID:    id,
		Detail:      detail,
		WorkerCount: count,
		At:          r.nowFunc(),
	})
}
