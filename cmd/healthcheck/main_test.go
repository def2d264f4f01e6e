package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResolveHealthcheckURLDefaultsToLoopback(t *testing.T) {
	t.Setenv(envHealthcheckURL, "")
	t.Setenv(envPort, "")
	t.Setenv(envHandlerPrefix, "")
	if got := resolveHealthcheckURL(); got != "http://127.0.0.1:4224/healthz" {
		t.Fatalf("expected default healthcheck url, got %q", got)
	}
}

func TestResolveHealthcheckURLUsesEnvOverride(t *testing.T) {
	want := "http://127.0.0.1:18080/healthz"
	t.Setenv(envHealthcheckURL, want)
	if got := resolveHealthcheckURL(); got != want {
		t.Fatalf("expected env override %q, got %q", want, got)
	}
}

func TestResolveHealthcheckURLFollowsServerSettings(t *testing.T) {
	t.Setenv(envHealthcheckURL, "")
	t.Setenv(envPort, "9100")
	t.Setenv(envHandlerPrefix, "/hub/")
	if got := resolveHealthcheckURL(); got != "http://127.0.0.1:9100/hub/healthz" {
		t.Fatalf("expected derived url, got %q", got)
	}
}

func TestProbeHealthPassesOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 500 * time.Millisecond}
	if err := probeHealth(client, srv.URL); err != nil {
		t.Fatalf("expected probe to pass, got error: %v", err)
	}
}

func TestProbeHealthFailsOnUnexpectedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"starting"}`))
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 500 * time.Millisecond}
	if err := probeHealth(client, srv.URL); err == nil {
		t.Fatal("expected probe to fail on non-ok body")
	}
}

func TestProbeHealthFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 500 * time.Millisecond}
	if err := probeHealth(client, srv.URL); err == nil {
		t.Fatal("expected probe to fail on non-2xx status")
	}
}

func TestProbeHealthFailsOnConnectionError(t *testing.T) {
	client := &http.Client{Timeout: 200 * time.Millisecond}
	if err := probeHealth(client, "http://127.0.0.1:1/healthz"); err == nil {
		t.Fatal("expected probe to fail on connection error")
	}
}
