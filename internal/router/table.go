package router

import (
	"fmt"
)

// Route binds a matcher to its handler provider.
type Route struct {
	Matcher  RequestMatcher
	Provider HandlerProvider
}

type compiledRoute struct {
	matcher  RequestMatcher
	path     PathMatcher
	provider HandlerProvider
}

// RouteTable is an ordered, immutable list of routes. The first matching
// route wins; patterns may overlap.
type RouteTable struct {
	routes []compiledRoute
}

// NewRouteTable builds a table from matchers in priority order and the
// providers keyed by matcher.
func NewRouteTable(matchers []RequestMatcher, providers map[RequestMatcher]HandlerProvider) (*RouteTable, error) {
	t := &RouteTable{routes: make([]compiledRoute, 0, len(matchers))}
	seen := make(map[RequestMatcher]struct{}, len(matchers))
	for _, m := range matchers {
		if _, dup := seen[m]; dup {
			return nil, fmt.Errorf("duplicate route %s", m)
		}
		seen[m] = struct{}{}

		provider, ok := providers[m]
		if !ok || provider == nil {
			return nil, fmt.Errorf("route %s has no handler provider", m)
		}
		pm, err := m.Compile()
		if err != nil {
			return nil, err
		}
		t.routes = append(t.routes, compiledRoute{matcher: m, path: pm, provider: provider})
	}
	return t, nil
}

// Routes builds a table from routes in priority order.
func Routes(routes ...Route) (*RouteTable, error) {
	matchers := make([]RequestMatcher, 0, len(routes))
	providers := make(map[RequestMatcher]HandlerProvider, len(routes))
	for _, r := range routes {
		matchers = append(matchers, r.Matcher)
		providers[r.Matcher] = r.Provider
	}
	return NewRouteTable(matchers, providers)
}

// Matchers returns the table's matchers in priority order.
func (t *RouteTable) Matchers() []RequestMatcher {
	out := make([]RequestMatcher, len(t.routes))
	for i, rt := range t.routes {
		out[i] = rt.matcher
	}
	return out
}

func (t *RouteTable) Len() int { return len(t.routes) }

func (t *RouteTable) lookup(method Method, path string) (compiledRoute, bool) {
	for _, rt := range t.routes {
		if rt.matcher.Method == method && rt.path.Match(path) {
			return rt, true
		}
	}
	return compiledRoute{}, false
}

// pathKnown reports whether any route matches path for any method.
func (t *RouteTable) pathKnown(path string) bool {
	for _, rt := range t.routes {
		if rt.path.Match(path) {
			return true
		}
	}
	return false
}
