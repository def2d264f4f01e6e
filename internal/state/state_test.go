package state

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUpdateServerTracksStartTime(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	UpdateServer(StatusRunning, "127.0.0.1:4224", 42, 30*time.Second)
	first := GetState()
	if first.Status != StatusRunning || first.StartedAt == 0 {
		t.Fatalf("expected running state with start time, got %+v", first)
	}

	UpdateCounts(3, 7, "worker.captured")
	UpdateServer(StatusRunning, "127.0.0.1:4224", 42, 30*time.Second)
	second := GetState()
	if second.StartedAt != first.StartedAt {
		t.Fatalf("expected start time preserved, got %d then %d", first.StartedAt, second.StartedAt)
	}
	if second.Workers != 3 || second.CachedFiles != 7 || second.LastEvent != "worker.captured" {
		t.Fatalf("expected counts preserved, got %+v", second)
	}
}

func TestUpdateCountsKeepsLastEventWhenEmpty(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	UpdateCounts(1, 0, "worker.evicted")
	UpdateCounts(0, 0, "")
	if got := GetState().LastEvent; got != "worker.evicted" {
		t.Fatalf("expected last event retained, got %q", got)
	}
}

func TestJSONUsesSnakeCaseFields(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	UpdateServer(StatusStopping, "127.0.0.1:1", 7, time.Second)
	raw, err := JSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["status"] != StatusStopping || decoded["browser_timeout"] != "1s" {
		t.Fatalf("unexpected payload %v", decoded)
	}
}
