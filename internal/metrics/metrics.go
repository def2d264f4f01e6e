// Package metrics keeps in-process counters and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Gauges are point-in-time values sampled by the caller at scrape time.
type Gauges struct {
	Workers        int
	CachedFiles    int
	Subscribers    int
	DroppedEvents  uint64
	GatewayRoutes  int
	ReaperPeriodS  float64
	BrowserTimeout float64
}

type requestKey struct {
	method string
	status int
}

// Store is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	requests  map[requestKey]uint64
	outcomes  map[string]uint64
	captures  uint64
	releases  uint64
	evictions uint64
	heartbeat uint64
	stale     uint64
}

func NewStore() *Store {
	return &Store{
		requests: make(map[requestKey]uint64),
		outcomes: make(map[string]uint64),
	}
}

func (s *Store) IncRequest(method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[requestKey{method: strings.ToUpper(method), status: status}]++
}

// IncOutcome counts a dispatch outcome such as "handled" or "not_found".
func (s *Store) IncOutcome(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[outcome]++
}

func (s *Store) IncCapture() {
	s.mu.Lock()
	s.captures++
	s.mu.Unlock()
}

func (s *Store) IncRelease() {
	s.mu.Lock()
	s.releases++
	s.mu.Unlock()
}

func (s *Store) AddEvictions(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.evictions += uint64(n)
	s.mu.Unlock()
}

// IncHeartbeat counts a heartbeat; stale marks one for an unknown worker.
func (s *Store) IncHeartbeat(stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stale {
		s.stale++
		return
	}
	s.heartbeat++
}

// Prometheus renders counters plus the supplied gauges.
func (s *Store) Prometheus(g Gauges) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
	}
	gauge := func(name, help, value string) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %s\n", name, help, name, name, value)
	}

	b.WriteString("# HELP capturehub_http_requests_total HTTP requests by method and status.\n")
	b.WriteString("# TYPE capturehub_http_requests_total counter\n")
	keys := make([]requestKey, 0, len(s.requests))
	for k := range s.requests {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].method != keys[j].method {
			return keys[i].method < keys[j].method
		}
		return keys[i].status < keys[j].status
	})
	for _, k := range keys {
		fmt.Fprintf(&b, "capturehub_http_requests_total{method=%q,status=\"%d\"} %d\n", k.method, k.status, s.requests[k])
	}

	b.WriteString("# HELP capturehub_dispatch_outcomes_total Router dispatch outcomes.\n")
	b.WriteString("# TYPE capturehub_dispatch_outcomes_total counter\n")
	outcomes := make([]string, 0, len(s.outcomes))
	for o := range s.outcomes {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(&b, "capturehub_dispatch_outcomes_total{outcome=%q} %d\n", o, s.outcomes[o])
	}

	counter("capturehub_captures_total", "Browsers captured.", s.captures)
	counter("capturehub_releases_total", "Browsers released by request.", s.releases)
	counter("capturehub_evictions_total", "Browsers evicted by the reaper.", s.evictions)
	counter("capturehub_heartbeats_total", "Heartbeats accepted.", s.heartbeat)
	counter("capturehub_stale_heartbeats_total", "Heartbeats for browsers no longer captured.", s.stale)
	counter("capturehub_events_dropped_total", "Lifecycle events dropped for slow subscribers.", g.DroppedEvents)

	gauge("capturehub_workers", "Currently captured browsers.", fmt.Sprintf("%d", g.Workers))
	gauge("capturehub_cached_files", "Files held in the file-set cache.", fmt.Sprintf("%d", g.CachedFiles))
	gauge("capturehub_event_subscribers", "Active lifecycle event subscribers.", fmt.Sprintf("%d", g.Subscribers))
	gauge("capturehub_gateway_routes", "Configured gateway routes.", fmt.Sprintf("%d", g.GatewayRoutes))
	gauge("capturehub_browser_timeout_seconds", "Heartbeat age after which a browser is evicted.", fmt.Sprintf("%.1f", g.BrowserTimeout))
	gauge("capturehub_reaper_period_seconds", "Interval between reaper sweeps.", fmt.Sprintf("%.1f", g.ReaperPeriodS))
	return b.String()
}
