// Package gateway forwards requests that match no internal route to
// configured upstream destinations.
package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync/atomic"

	"capturehub/internal/router"
)

// Route maps a method and path pattern to an upstream base URL.
type Route struct {
	Method      string `json:"method" mapstructure:"method"`
	Pattern     string `json:"pattern" mapstructure:"pattern"`
	Destination string `json:"destination" mapstructure:"destination"`
}

// AuthStrategy decides whether a request may be forwarded. Concrete
// mechanisms are supplied by the embedding application.
type AuthStrategy interface {
	Allow(r *http.Request) bool
}

// AuthFunc adapts a function into an AuthStrategy.
type AuthFunc func(r *http.Request) bool

func (f AuthFunc) Allow(r *http.Request) bool { return f(r) }

type routeSet struct {
	targets  []target
	compiled []router.CompiledMatcher
}

type target struct {
	matcher router.RequestMatcher
	path    router.PathMatcher
	dest    *url.URL
	proxy   *httputil.ReverseProxy
}

// Gateway implements router.Gateway. Its routes can be swapped at
// runtime without locking request handling.
type Gateway struct {
	targets atomic.Pointer[routeSet]
	auth    []AuthStrategy
	deny    func(w http.ResponseWriter, r *http.Request)
	logger  *slog.Logger
}

// New validates routes and builds a gateway. deny writes the response for
// requests rejected by an auth strategy; nil falls back to a bare 401.
func New(routes []Route, auth []AuthStrategy, deny func(http.ResponseWriter, *http.Request), logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deny == nil {
		deny = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}
	g := &Gateway{auth: auth, deny: deny, logger: logger.With("component", "gateway")}
	if err := g.Replace(routes); err != nil {
		return nil, err
	}
	return g, nil
}

// Replace swaps the route set atomically. On error the old set stays.
func (g *Gateway) Replace(routes []Route) error {
	next := &routeSet{
		targets:  make([]target, 0, len(routes)),
		compiled: make([]router.CompiledMatcher, 0, len(routes)),
	}
	for i, rt := range routes {
		t, err := g.compile(rt)
		if err != nil {
			return fmt.Errorf("gateway route %d: %w", i, err)
		}
		next.targets = append(next.targets, t)
		next.compiled = append(next.compiled, router.CompiledMatcher{Matcher: t.matcher, Path: t.path})
	}
	g.targets.Store(next)
	return nil
}

func (g *Gateway) compile(rt Route) (target, error) {
	method, ok := router.ParseMethod(strings.ToUpper(strings.TrimSpace(rt.Method)))
	if !ok {
		return target{}, fmt.Errorf("unsupported method %q", rt.Method)
	}
	m := router.NewRequestMatcher(method, strings.TrimSpace(rt.Pattern))
	pm, err := m.Compile()
	if err != nil {
		return target{}, err
	}
	dest, err := url.Parse(strings.TrimSpace(rt.Destination))
	if err != nil || dest.Scheme == "" || dest.Host == "" {
		return target{}, fmt.Errorf("destination %q must be an absolute URL", rt.Destination)
	}
	proxy := httputil.NewSingleHostReverseProxy(dest)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.logger.Warn("proxy request failed", "destination", dest.String(), "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusBadGateway)
	}
	return target{matcher: m, path: pm, dest: dest, proxy: proxy}, nil
}

func (g *Gateway) current() []target {
	if p := g.targets.Load(); p != nil {
		return p.targets
	}
	return nil
}

// CompiledMatchers returns the matchers compiled by the last Replace.
// Callers must not modify the slice.
func (g *Gateway) CompiledMatchers() []router.CompiledMatcher {
	if p := g.targets.Load(); p != nil {
		return p.compiled
	}
	return nil
}

// Matchers returns the configured matchers in priority order.
func (g *Gateway) Matchers() []router.RequestMatcher {
	ts := g.current()
	out := make([]router.RequestMatcher, len(ts))
	for i, t := range ts {
		out[i] = t.matcher
	}
	return out
}

// Destinations lists the upstream URLs, for readiness probes.
func (g *Gateway) Destinations() []string {
	ts := g.current()
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.dest.String())
	}
	return out
}

// Handler forwards to the first matching destination after every auth
// strategy approves.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(g.serve)
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	for _, a := range g.auth {
		if !a.Allow(r) {
			g.deny(w, r)
			return
		}
	}
	for _, t := range g.current() {
		if string(t.matcher.Method) == r.Method && t.path.Match(r.URL.Path) {
			t.proxy.ServeHTTP(w, r)
			return
		}
	}
	// Routes were swapped between dispatch and serve.
	w.WriteHeader(http.StatusBadGateway)
}
