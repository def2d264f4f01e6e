package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"capturehub/internal/router"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestGatewayProxiesMatchingRoute(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "upstream:"+r.URL.Path)
	}))
	defer upstream.Close()

	g, err := New([]Route{{Method: "get", Pattern: "/app/*", Destination: upstream.URL}}, nil, nil, discardLogger)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	matchers := g.Matchers()
	if len(matchers) != 1 || matchers[0] != router.NewRequestMatcher(router.GET, "/app/*") {
		t.Fatalf("unexpected matchers %v", matchers)
	}

	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/main.js", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from upstream, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "upstream:/app/main.js" {
		t.Fatalf("expected proxied body, got %q", got)
	}
}

func TestGatewayConsultsAuthStrategies(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	allow := AuthFunc(func(*http.Request) bool { return true })
	requireHeader := AuthFunc(func(r *http.Request) bool { return r.Header.Get("X-Hub-Token") == "ok" })
	g, err := New([]Route{{Method: "GET", Pattern: "/app/*", Destination: upstream.URL}},
		[]AuthStrategy{allow, requireHeader}, nil, discardLogger)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/x", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/app/x", nil)
	req.Header.Set("X-Hub-Token", "ok")
	rec = httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

func TestGatewayRejectsInvalidRoutes(t *testing.T) {
	bad := []Route{
		{Method: "BREW", Pattern: "/x", Destination: "http://127.0.0.1:1"},
		{Method: "GET", Pattern: "x", Destination: "http://127.0.0.1:1"},
		{Method: "GET", Pattern: "/x", Destination: "not-a-url"},
	}
	for _, rt := range bad {
		if _, err := New([]Route{rt}, nil, nil, discardLogger); err == nil {
			t.Fatalf("expected error for route %+v", rt)
		}
	}
}

func TestGatewayReplaceKeepsOldRoutesOnError(t *testing.T) {
	g, err := New([]Route{{Method: "GET", Pattern: "/a/*", Destination: "http://127.0.0.1:1"}}, nil, nil, discardLogger)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	if err := g.Replace([]Route{{Method: "GET", Pattern: "bad", Destination: "http://127.0.0.1:1"}}); err == nil {
		t.Fatal("expected replace to fail")
	}
	if len(g.Matchers()) != 1 {
		t.Fatalf("expected old routes retained, got %v", g.Matchers())
	}
	if err := g.Replace(nil); err != nil {
		t.Fatalf("replace with empty set: %v", err)
	}
	if len(g.Matchers()) != 0 || len(g.Destinations()) != 0 {
		t.Fatal("expected empty route set")
	}
}

func TestProbeReportsReachability(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ok.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	results, healthy := Probe([]string{ok.URL}, 500*time.Millisecond)
	if !healthy || !results[0].Healthy {
		t.Fatalf("expected reachable upstream to be healthy, got %+v", results)
	}

	results, healthy = Probe([]string{ok.URL, broken.URL, "http://127.0.0.1:1"}, 500*time.Millisecond)
	if healthy {
		t.Fatal("expected overall probe to fail")
	}
	if results[1].Healthy || results[2].Healthy {
		t.Fatalf("expected broken upstreams to be unhealthy, got %+v", results)
	}
}

var _ router.CompiledGateway = (*Gateway)(nil)

func TestCompiledMatchersFollowReplace(t *testing.T) {
	g, err := New([]Route{{Method: "GET", Pattern: "/app/*", Destination: "http://127.0.0.1:1"}}, nil, nil, discardLogger)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	first := g.CompiledMatchers()
	if len(first) != 1 || !first[0].Path.Match("/app/x.js") || first[0].Matcher.Method != router.GET {
		t.Fatalf("unexpected compiled matchers %+v", first)
	}
	if again := g.CompiledMatchers(); &again[0] != &first[0] {
		t.Fatal("expected compiled matchers reused between calls")
	}

	if err := g.Replace([]Route{{Method: "POST", Pattern: "/api/*", Destination: "http://127.0.0.1:1"}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	next := g.CompiledMatchers()
	if len(next) != 1 || next[0].Matcher.Method != router.POST || next[0].Path.Match("/app/x.js") {
		t.Fatalf("expected replaced matchers, got %+v", next)
	}
}
