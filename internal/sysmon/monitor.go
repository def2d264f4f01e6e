// Package sysmon samples resource usage of the hub process itself.
package sysmon

import (
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// SysStats holds process resource counters.
type SysStats struct {
	OpenFDs     int    `json:"open_fds"`
	SocketCount int    `json:"sockets"`
	Threads     int    `json:"threads"`
	RSSBytes    uint64 `json:"rss_bytes"`
}

// Monitor remembers a baseline per PID so growth can be reported.
type Monitor struct {
	mu        sync.Mutex
	baselines map[int]SysStats
}

func NewMonitor() *Monitor {
	return &Monitor{
		baselines: make(map[int]SysStats),
	}
}

// GetStats samples the process. Counters the platform cannot report are
// left at zero.
func (m *Monitor) GetStats(pid int) (SysStats, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return SysStats{}, err
	}

	var stats SysStats
	if fds, err := proc.NumFDs(); err == nil {
		stats.OpenFDs = int(fds)
	}
	if conns, err := proc.Connections(); err == nil {
		stats.SocketCount = len(conns)
	}
	if threads, err := proc.NumThreads(); err == nil {
		stats.Threads = int(threads)
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	return stats, nil
}

// IsMonitoring reports whether a baseline exists for pid.
func (m *Monitor) IsMonitoring(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.baselines[pid]
	return ok
}

// DetectGrowth compares current against the stored baseline and flags
// socket or descriptor counts that look like a leak, typically from
// proxied connections that are never closed. The first call for a pid
// stores the baseline.
func (m *Monitor) DetectGrowth(pid int, current SysStats) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base, ok := m.baselines[pid]
	if !ok {
		m.baselines[pid] = current
		return false, ""
	}

	leaking := false
	var details string

	if current.SocketCount > 50 && current.SocketCount > base.SocketCount*2 {
		leaking = true
		if base.SocketCount > 0 {
			percentage := (current.SocketCount - base.SocketCount) * 100 / base.SocketCount
			details = fmt.Sprintf("Sockets: %d -> %d (+%d%%)", base.SocketCount, current.SocketCount, percentage)
		} else {
			details = fmt.Sprintf("Sockets: %d -> %d (New)", base.SocketCount, current.SocketCount)
		}
	}

	if current.OpenFDs > base.OpenFDs*3 && current.OpenFDs > 20 {
		if leaking {
			details = details + " | "
		}
		leaking = true
		details = details + fmt.Sprintf("FDs: %d -> %d", base.OpenFDs, current.OpenFDs)
	}

	// Baseline only ratchets down.
	if current.SocketCount < base.SocketCount {
		base.SocketCount = current.SocketCount
		m.baselines[pid] = base
	}

	return leaking, details
}
