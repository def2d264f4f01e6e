package api

import (
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type limiterEntry struct {
	windowStart  time.Time
	requestCount int
	lastSeen     time.Time
}

// rateLimiter is a per-client fixed one-minute window.
type rateLimiter struct {
	mu           sync.Mutex
	requestLimit int
	window       time.Duration
	maxEntries   int
	staleTTL     time.Duration
	pruneEvery   uint64
	opCount      uint64
	entries      map[string]*limiterEntry
	nowFunc      func() time.Time
}

func newRateLimiter(requestLimit int) *rateLimiter {
	return newRateLimiterWithBounds(requestLimit, 10_000, 0, 256)
}

func newRateLimiterWithBounds(requestLimit, maxEntries int, staleTTL time.Duration, pruneEvery uint64) *rateLimiter {
	if requestLimit <= 0 {
		requestLimit = 600
	}
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	if staleTTL <= 0 {
		staleTTL = 30 * time.Minute
	}
	if pruneEvery == 0 {
		pruneEvery = 256
	}
	return &rateLimiter{
		requestLimit: requestLimit,
		window:       time.Minute,
		maxEntries:   maxEntries,
		staleTTL:     staleTTL,
		pruneEvery:   pruneEvery,
		entries:      make(map[string]*limiterEntry),
		nowFunc:      time.Now,
	}
}

func (r *rateLimiter) allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	e := r.getEntry(ip, now)
	if r.shouldPruneLocked() {
		r.pruneLocked(now)
	}
	if now.Sub(e.windowStart) >= r.window {
		e.windowStart = now
		e.requestCount = 0
	}
	e.requestCount++
	return e.requestCount <= r.requestLimit
}

func (r *rateLimiter) getEntry(ip string, now time.Time) *limiterEntry {
	e, ok := r.entries[ip]
	if !ok {
		e = &limiterEntry{
			windowStart: now,
			lastSeen:    now,
		}
		r.entries[ip] = e
		return e
	}
	e.lastSeen = now
	return e
}

func (r *rateLimiter) shouldPruneLocked() bool {
	r.opCount++
	if len(r.entries) > r.maxEntries {
		return true
	}
	return r.opCount%r.pruneEvery == 0
}

func (r *rateLimiter) pruneLocked(now time.Time) {
	if len(r.entries) == 0 {
		return
	}

	cutoff := now.Add(-r.staleTTL)
	for ip, entry := range r.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(r.entries, ip)
		}
	}
	if len(r.entries) <= r.maxEntries {
		return
	}

	// Still over capacity: drop the least recently seen clients.
	type evictCandidate struct {
		ip       string
		lastSeen time.Time
	}
	candidates := make([]evictCandidate, 0, len(r.entries))
	for ip, entry := range r.entries {
		candidates = append(candidates, evictCandidate{ip: ip, lastSeen: entry.lastSeen})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].lastSeen.Equal(candidates[j].lastSeen) {
			return candidates[i].ip < candidates[j].ip
		}
		return candidates[i].lastSeen.Before(candidates[j].lastSeen)
	})

	over := len(r.entries) - r.maxEntries
	for i := 0; i < over && i < len(candidates); i++ {
		delete(r.entries, candidates[i].ip)
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil {
		return host
	}
	if strings.Contains(remoteAddr, ":") && strings.Count(remoteAddr, ":") == 1 {
		if _, pErr := strconv.Atoi(strings.Split(remoteAddr, ":")[1]); pErr == nil {
			return strings.Split(remoteAddr, ":")[0]
		}
	}
	return remoteAddr
}
