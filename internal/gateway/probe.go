package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Target  string `json:"target,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Probe checks every destination concurrently. Any response below 500
// counts as healthy.
func Probe(destinations []string, timeout time.Duration) ([]CheckResult, bool) {
	results := make([]CheckResult, len(destinations))
	client := &http.Client{Timeout: timeout}

	var wg sync.WaitGroup
	for i, dest := range destinations {
		wg.Add(1)
		go func(i int, dest string) {
			defer wg.Done()
			results[i] = probeHTTP(client, fmt.Sprintf("gateway_%d", i), dest)
		}(i, dest)
	}
	wg.Wait()

	healthy := true
	for _, r := range results {
		if !r.Healthy {
			healthy = false
		}
	}
	return results, healthy
}

func probeHTTP(client *http.Client, name, url string) CheckResult {
	res := CheckResult{Name: name, Target: url}
	resp, err := client.Head(url)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		res.Error = fmt.Sprintf("upstream status: %d", resp.StatusCode)
		return res
	}
	res.Healthy = true
	return res
}
