// Command healthcheck probes a running hub for container HEALTHCHECK use.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultHealthcheckHost = "127.0.0.1"
	defaultHealthcheckPort = "4224"
	envHealthcheckURL      = "CAPTUREHUB_HEALTHCHECK_URL"
	envPort                = "CAPTUREHUB_PORT"
	envHandlerPrefix       = "CAPTUREHUB_HANDLER_PREFIX"
)

// resolveHealthcheckURL prefers an explicit URL, then derives one from
// the same port and prefix settings the server reads.
func resolveHealthcheckURL() string {
	if raw := strings.TrimSpace(os.Getenv(envHealthcheckURL)); raw != "" {
		return raw
	}
	port := strings.TrimSpace(os.Getenv(envPort))
	if port == "" {
		port = defaultHealthcheckPort
	}
	prefix := strings.TrimRight(strings.TrimSpace(os.Getenv(envHandlerPrefix)), "/")
	return "http://" + defaultHealthcheckHost + ":" + port + prefix + "/healthz"
}

func probeHealth(client *http.Client, healthURL string) error {
	resp, err := client.Get(healthURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected health status %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return fmt.Errorf("decode health body: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("unexpected health body status %q", body.Status)
	}
	return nil
}

func main() {
	client := &http.Client{Timeout: 2 * time.Second}
	healthURL := resolveHealthcheckURL()
	err := probeHealth(client, healthURL)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			fmt.Printf("Healthcheck timed out: %s\n", healthURL)
		} else {
			fmt.Printf("Healthcheck failed (%s): %v\n", healthURL, err)
		}
		os.Exit(1)
	}
	os.Exit(0)
}
