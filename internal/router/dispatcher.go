package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

var (
	// ErrUnsupportedMethod means the verb is outside the known set.
	ErrUnsupportedMethod = errors.New("unsupported method")
	// ErrMethodNotAllowed means the path exists but not for this verb.
	ErrMethodNotAllowed = errors.New("method not allowed for path")
)

// suggestionThreshold is the minimum similarity for a "did you mean" hint.
const suggestionThreshold = 0.7

// HandlerProvider builds a handler on demand. It is only called for the
// route that wins the match.
type HandlerProvider func() http.Handler

// HandlerFunc adapts an http.HandlerFunc into a provider.
func HandlerFunc(fn http.HandlerFunc) HandlerProvider {
	return func() http.Handler { return fn }
}

// Gateway is the fallback consulted only when no internal route matches.
type Gateway interface {
	Matchers() []RequestMatcher
	Handler() http.Handler
}

// CompiledGateway is a Gateway that keeps its matchers compiled. The
// dispatcher uses them as-is instead of compiling on every miss.
type CompiledGateway interface {
	Gateway
	CompiledMatchers() []CompiledMatcher
}

// ErrorSender writes the two miss responses.
type ErrorSender interface {
	// MethodNotAllowed covers both ErrUnsupportedMethod and
	// ErrMethodNotAllowed; cause tells them apart.
	MethodNotAllowed(w http.ResponseWriter, r *http.Request, cause error)
	NotFound(w http.ResponseWriter, r *http.Request, message string)
}

// Outcome reports what Dispatch did with a request.
type Outcome int

const (
	Handled Outcome = iota
	Proxied
	UnsupportedMethod
	MethodNotAllowed
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Handled:
		return "handled"
	case Proxied:
		return "proxied"
	case UnsupportedMethod:
		return "unsupported_method"
	case MethodNotAllowed:
		return "method_not_allowed"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Dispatcher routes requests through a RouteTable.
type Dispatcher struct {
	table   *RouteTable
	gateway Gateway
	sender  ErrorSender
	logger  *slog.Logger

	// OnOutcome, when set, observes every dispatch.
	OnOutcome func(r *http.Request, o Outcome)
}

// NewDispatcher wires a dispatcher. gateway may be nil.
func NewDispatcher(table *RouteTable, gateway Gateway, sender ErrorSender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		table:   table,
		gateway: gateway,
		sender:  sender,
		logger:  logger.With("component", "dispatcher"),
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.Dispatch(w, r)
}

// Dispatch resolves and invokes the handler for r, or sends the
// appropriate error response.
func (d *Dispatcher) Dispatch(w http.ResponseWriter, r *http.Request) Outcome {
	o := d.dispatch(w, r)
	d.logger.Debug("dispatch", "method", r.Method, "path", r.URL.Path, "outcome", o.String())
	if d.OnOutcome != nil {
		d.OnOutcome(r, o)
	}
	return o
}

func (d *Dispatcher) dispatch(w http.ResponseWriter, r *http.Request) Outcome {
	method, ok := ParseMethod(r.Method)
	if !ok {
		d.sender.MethodNotAllowed(w, r, fmt.Errorf("%w: %q", ErrUnsupportedMethod, r.Method))
		return UnsupportedMethod
	}
	path := r.URL.Path

	if rt, ok := d.table.lookup(method, path); ok {
		rt.provider().ServeHTTP(w, r)
		return Handled
	}

	var gatewayRoutes []CompiledMatcher
	if d.gateway != nil {
		gatewayRoutes = d.gatewayMatchers()
		for _, gm := range gatewayRoutes {
			if gm.Matcher.Method == method && gm.Path.Match(path) {
				d.gateway.Handler().ServeHTTP(w, r)
				return Proxied
			}
		}
	}

	if d.table.pathKnown(path) || anyPathMatch(gatewayRoutes, path) {
		d.sender.MethodNotAllowed(w, r, fmt.Errorf("%w: %s %s", ErrMethodNotAllowed, method, path))
		return MethodNotAllowed
	}

	d.sender.NotFound(w, r, d.notFoundMessage(method, path, gatewayRoutes))
	return NotFound
}

func (d *Dispatcher) notFoundMessage(method Method, path string, gatewayRoutes []CompiledMatcher) string {
	msg := fmt.Sprintf("no handler registered for %s %s", method, path)
	if hint := d.suggest(path, gatewayRoutes); hint != "" {
		msg += fmt.Sprintf("; did you mean %s?", hint)
	}
	return msg
}

// suggest returns the registered pattern closest to path, if any is
// similar enough to be a plausible typo.
func (d *Dispatcher) suggest(path string, gatewayRoutes []CompiledMatcher) string {
	lev := metrics.NewLevenshtein()
	best, bestScore := "", 0.0
	consider := func(pattern string) {
		score := strutil.Similarity(path, pattern, lev)
		if score > bestScore {
			best, bestScore = pattern, score
		}
	}
	for _, rt := range d.table.routes {
		consider(rt.matcher.Pattern)
	}
	for _, gm := range gatewayRoutes {
		consider(gm.Matcher.Pattern)
	}
	if bestScore < suggestionThreshold {
		return ""
	}
	return best
}

// CompiledMatcher pairs a matcher with its compiled path pattern.
type CompiledMatcher struct {
	Matcher RequestMatcher
	Path    PathMatcher
}

func (d *Dispatcher) gatewayMatchers() []CompiledMatcher {
	if cg, ok := d.gateway.(CompiledGateway); ok {
		return cg.CompiledMatchers()
	}
	return compileAll(d.gateway.Matchers(), d.logger)
}

func compileAll(matchers []RequestMatcher, logger *slog.Logger) []CompiledMatcher {
	out := make([]CompiledMatcher, 0, len(matchers))
	for _, m := range matchers {
		pm, err := m.Compile()
		if err != nil {
			logger.Warn("skipping invalid gateway matcher", "matcher", m.String(), "error", err)
			continue
		}
		out = append(out, CompiledMatcher{Matcher: m, Path: pm})
	}
	return out
}

func anyPathMatch(ms []CompiledMatcher, path string) bool {
	for _, m := range ms {
		if m.Path.Match(path) {
			return true
		}
	}
	return false
}
