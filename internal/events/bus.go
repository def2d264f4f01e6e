// Package events fans out server and worker lifecycle notifications to
// interested observers. Publishing never blocks: a subscriber that falls
// behind loses events rather than stalling the publisher.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind names a lifecycle transition.
type Kind string

const (
	ServerStarted  Kind = "server.started"
	ServerStopped  Kind = "server.stopped"
	WorkerCaptured Kind = "worker.captured"
	WorkerReleased Kind = "worker.released"
	WorkerEvicted  Kind = "worker.evicted"
	WorkerStatus   Kind = "worker.status"
)

// Event is a single notification. WorkerCount is the registry size right
// after the transition (zero for server events that do not track it).
type Event struct {
	Kind        Kind      `json:"kind"`
	Seq         uint64    `json:"seq,omitempty"`
	WorkerID    string    `json:"worker_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	WorkerCount int       `json:"worker_count"`
	At          time.Time `json:"at"`
}

type subscriber struct {
	ch chan Event
}

// Bus is safe for concurrent use. The zero value is ready to use.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	dropped atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers an observer with the given channel capacity. The
// returned cancel func unregisters it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	s := &subscriber{ch: make(chan Event, buffer)}

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[*subscriber]struct{})
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber that has room.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber
// channel was full.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
