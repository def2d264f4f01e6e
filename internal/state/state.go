package state

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	StatusStarting = "STARTING"
	StatusRunning  = "RUNNING"
	StatusStopping = "STOPPING"
	StatusStopped  = "STOPPED"
)

// ServerState holds the runtime state of the hub process
type ServerState struct {
	Status         string `json:"status"` // STARTING, RUNNING, STOPPING, STOPPED
	Addr           string `json:"addr"`
	PID            int    `json:"pid"`
	StartedAt      int64  `json:"started_at"`
	Workers        int    `json:"workers"`
	CachedFiles    int    `json:"cached_files"`
	LastEvent      string `json:"last_event"`
	BrowserTimeout string `json:"browser_timeout"`
	Timestamp      int64  `json:"timestamp"`
}

var (
	currentState = ServerState{Status: StatusStopped}
	mu           sync.RWMutex
)

// UpdateServer records a lifecycle transition of the listener.
func UpdateServer(status, addr string, pid int, browserTimeout time.Duration) {
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UnixMilli()
	if status == StatusRunning && currentState.Status != StatusRunning {
		currentState.StartedAt = now
	}
	currentState.Status = status
	currentState.Addr = addr
	currentState.PID = pid
	currentState.BrowserTimeout = browserTimeout.String()
	currentState.Timestamp = now
}

// UpdateCounts refreshes registry-derived counters while preserving server identity.
func UpdateCounts(workers, cachedFiles int, lastEvent string) {
	mu.Lock()
	defer mu.Unlock()
	currentState.Workers = workers
	currentState.CachedFiles = cachedFiles
	if lastEvent != "" {
		currentState.LastEvent = lastEvent
	}
	currentState.Timestamp = time.Now().UnixMilli()
}

// GetState safely returns a copy of the current state
func GetState() ServerState {
	mu.RLock()
	defer mu.RUnlock()
	return currentState
}

// Reset restores the initial stopped state.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	currentState = ServerState{Status: StatusStopped}
}

// JSON returns the state as a JSON byte slice (for API)
func JSON() ([]byte, error) {
	mu.RLock()
	defer mu.RUnlock()
	return json.Marshal(currentState)
}
