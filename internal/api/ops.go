package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"capturehub/internal/database"
	"capturehub/internal/events"
	"capturehub/internal/gateway"
	"capturehub/internal/metrics"
	"capturehub/internal/state"
)

const (
	probeTimeout      = 2 * time.Second
	keepaliveInterval = 15 * time.Second
)

type paginatedEventsResponse struct {
	Items      []database.LifecycleEvent `json:"items"`
	NextCursor string                    `json:"next_cursor,omitempty"`
	HasMore    bool                      `json:"has_more"`
	Limit      int                       `json:"limit"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks the journal and every gateway destination.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := true
	checks := make(map[string]interface{}, 2)

	journalCheck := map[string]interface{}{
		"name":    "journal",
		"healthy": true,
		"target":  "sqlite",
	}
	if s.journal {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := database.Ping(ctx)
		cancel()
		if err != nil {
			journalCheck["healthy"] = false
			journalCheck["error"] = err.Error()
			ready = false
		}
	} else {
		journalCheck["target"] = "disabled"
	}
	checks["journal"] = journalCheck

	if s.gateway != nil {
		if dests := s.gateway.Destinations(); len(dests) > 0 {
			results, healthy := gateway.Probe(dests, probeTimeout)
			checks["gateway"] = results
			if !healthy {
				ready = false
			}
		}
	}

	payload := map[string]interface{}{
		"status": "ready",
		"checks": checks,
	}
	if !ready {
		payload["status"] = "not-ready"
		writeJSON(w, http.StatusServiceUnavailable, payload)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) gauges() metrics.Gauges {
	g := metrics.Gauges{
		Workers:        s.registry.Len(),
		CachedFiles:    s.cache.Len(),
		Subscribers:    s.bus.Subscribers(),
		DroppedEvents:  s.bus.Dropped(),
		BrowserTimeout: s.timeout.Seconds(),
	}
	if s.reaper != nil {
		g.ReaperPeriodS = s.reaper.Period().Seconds()
	}
	if s.gateway != nil {
		g.GatewayRoutes = len(s.gateway.Matchers())
	}
	return g
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = fmt.Fprint(w, s.metrics.Prometheus(s.gauges()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state.UpdateCounts(s.registry.Len(), s.cache.Len(), "")
	payload := map[string]interface{}{
		"server": state.GetState(),
	}
	pid := os.Getpid()
	stats, err := s.monitor.GetStats(pid)
	if err != nil {
		payload["process_error"] = err.Error()
	} else {
		payload["process"] = stats
		if leaking, details := s.monitor.DetectGrowth(pid, stats); leaking {
			s.logger.Warn("resource growth detected", "details", details)
			payload["resource_warning"] = details
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeSSE(w http.ResponseWriter, event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, raw)
	return err
}

// handleStream sends a worker snapshot followed by every lifecycle event
// as server-sent events until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if err := rc.Flush(); err != nil {
		writeJSONErrorForRequest(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	_ = rc.SetWriteDeadline(time.Time{})

	ch, cancel := s.bus.Subscribe(streamBuffer)
	defer cancel()

	if err := writeSSE(w, "snapshot", map[string]interface{}{"workers": s.registry.List()}); err != nil {
		return
	}
	_ = rc.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.stopping:
			_ = writeSSE(w, "server.stopping", map[string]interface{}{"workers": s.registry.Len()})
			_ = rc.Flush()
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, string(ev.Kind), ev); err != nil {
				return
			}
			_ = rc.Flush()
			if ev.Kind == events.ServerStopped {
				return
			}
		}
	}
}

func parseCursorPageQuery(rawLimit, rawCursor string, defaultLimit, maxLimit int) (int, int64, error) {
	limit := defaultLimit
	rawLimit = strings.TrimSpace(rawLimit)
	if rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 1 || parsed > maxLimit {
			return 0, 0, fmt.Errorf("limit must be an integer between 1 and %d", maxLimit)
		}
		limit = parsed
	}

	cursor := int64(0)
	rawCursor = strings.TrimSpace(rawCursor)
	if rawCursor != "" {
		parsed, err := strconv.ParseInt(rawCursor, 10, 64)
		if err != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("cursor must be a positive integer")
		}
		cursor = parsed
	}
	return limit, cursor, nil
}

func (s *Server) journalAvailable(w http.ResponseWriter, r *http.Request) bool {
	if !s.journal || database.GetDB() == nil {
		writeJSONErrorForRequest(w, r, http.StatusServiceUnavailable, "lifecycle journal disabled; set journal_path to enable it")
		return false
	}
	return true
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.journalAvailable(w, r) {
		return
	}
	q := r.URL.Query()
	limit, cursor, err := parseCursorPageQuery(q.Get("limit"), q.Get("cursor"), defaultPageLimit, maxPageLimit)
	if err != nil {
		writeJSONErrorForRequest(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, next, hasMore, err := database.GetEventsPage(limit, cursor)
	if err != nil {
		writeJSONErrorForRequest(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	resp := paginatedEventsResponse{Items: items, HasMore: hasMore, Limit: limit}
	if next > 0 {
		resp.NextCursor = strconv.FormatInt(next, 10)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWorkerEvents(w http.ResponseWriter, r *http.Request) {
	if !s.journalAvailable(w, r) {
		return
	}
	id := s.pathID(r, "/events/")
	if id == "" {
		writeJSONErrorForRequest(w, r, http.StatusBadRequest, "browser id is required")
		return
	}
	items, err := database.GetWorkerEvents(id, maxPageLimit)
	if err != nil {
		writeJSONErrorForRequest(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []database.LifecycleEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "items": items})
}
