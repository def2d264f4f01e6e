package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPeriodFactor is the sweep period as a multiple of the timeout.
const DefaultPeriodFactor = 2

// Reaper periodically evicts browsers whose heartbeat is older than the
// configured timeout.
type Reaper struct {
	registry *Registry
	timeout  time.Duration
	factor   int
	logger   *slog.Logger
	nowFunc  func() time.Time
	ticks    func(time.Duration) (<-chan time.Time, func())

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// ReaperOption customizes a Reaper.
type ReaperOption func(*Reaper)

// WithPeriodFactor sets the sweep period as a multiple of the timeout.
func WithPeriodFactor(factor int) ReaperOption {
	return func(r *Reaper) {
		if factor > 0 {
			r.factor = factor
		}
	}
}

func WithLogger(logger *slog.Logger) ReaperOption {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger.With("component", "reaper")
		}
	}
}

// WithClock replaces the time source and the tick source, for tests.
func WithClock(now func() time.Time, ticks func(time.Duration) (<-chan time.Time, func())) ReaperOption {
	return func(r *Reaper) {
		if now != nil {
			r.nowFunc = now
		}
		if ticks != nil {
			r.ticks = ticks
		}
	}
}

func NewReaper(registry *Registry, timeout time.Duration, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		registry: registry,
		timeout:  timeout,
		factor:   DefaultPeriodFactor,
		logger:   slog.Default().With("component", "reaper"),
		nowFunc:  time.Now,
		ticks: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reaper) Timeout() time.Duration { return r.timeout }

// Period is the interval between sweeps.
func (r *Reaper) Period() time.Duration {
	return time.Duration(r.factor) * r.timeout
}

// Sweep evicts every browser silent for longer than the timeout and
// returns the evicted ids.
func (r *Reaper) Sweep(now time.Time) []string {
	cutoff := now.Add(-r.timeout)
	var evicted []string
	for _, w := range r.registry.List() {
		if !w.LastHeartbeat.Before(cutoff) {
			continue
		}
		if r.registry.RemoveIfStale(w.ID, cutoff) {
			evicted = append(evicted, w.ID)
			r.logger.Info("browser evicted",
				"browser_id", w.ID,
				"name", w.Descriptor.Name,
				"silent_for", now.Sub(w.LastHeartbeat).Round(time.Millisecond))
		}
	}
	return evicted
}

// Start launches the sweep loop. Calling Start on a running or stopped
// reaper does nothing.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil || r.stopped || r.timeout <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	tick, stopTicks := r.ticks(r.Period())
	go func(done chan struct{}) {
		defer close(done)
		defer stopTicks()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				// Cancellation wins over a tick that raced it.
				if ctx.Err() != nil {
					return
				}
				r.Sweep(r.nowFunc())
			}
		}
	}(r.done)
}

// Stop cancels the loop and waits for it to exit. No sweep runs after
// Stop returns.
func (r *Reaper) Stop() {
	r.mu.Lock()
	r.stopped = true
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
