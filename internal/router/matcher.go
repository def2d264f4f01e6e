// Package router dispatches inbound requests to handlers by method and
// path pattern, distinguishing "method not allowed" from "not found".
package router

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Method is one of the HTTP verbs the server understands.
type Method string

const (
	GET     Method = "GET"
	HEAD    Method = "HEAD"
	POST    Method = "POST"
	PUT     Method = "PUT"
	PATCH   Method = "PATCH"
	DELETE  Method = "DELETE"
	OPTIONS Method = "OPTIONS"
	TRACE   Method = "TRACE"
)

var knownMethods = map[Method]struct{}{
	GET: {}, HEAD: {}, POST: {}, PUT: {}, PATCH: {}, DELETE: {}, OPTIONS: {}, TRACE: {},
}

// ParseMethod accepts only the exact uppercase verbs in the known set.
func ParseMethod(raw string) (Method, bool) {
	m := Method(raw)
	_, ok := knownMethods[m]
	return m, ok
}

// RequestMatcher pairs a method with a path pattern. A trailing "*"
// matches any remaining suffix; every other character is literal.
// RequestMatcher is comparable and serves as a map key.
type RequestMatcher struct {
	Method  Method
	Pattern string
}

func NewRequestMatcher(method Method, pattern string) RequestMatcher {
	return RequestMatcher{Method: method, Pattern: pattern}
}

func (m RequestMatcher) String() string {
	return string(m.Method) + " " + m.Pattern
}

// Compile validates the matcher and returns its path matcher.
func (m RequestMatcher) Compile() (PathMatcher, error) {
	if _, ok := ParseMethod(string(m.Method)); !ok {
		return nil, fmt.Errorf("matcher %s: unsupported method", m)
	}
	return CompilePattern(m.Pattern)
}

// Matches reports whether method and path satisfy the matcher. It
// compiles on every call; route tables keep compiled forms instead.
func (m RequestMatcher) Matches(method Method, path string) bool {
	if m.Method != method {
		return false
	}
	pm, err := CompilePattern(m.Pattern)
	return err == nil && pm.Match(path)
}

// PathMatcher matches a request path.
type PathMatcher interface {
	Match(path string) bool
}

// CompilePattern turns a path pattern into a PathMatcher.
func CompilePattern(pattern string) (PathMatcher, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("pattern %q must start with /", pattern)
	}
	literal, wildcard := strings.CutSuffix(pattern, "*")
	if strings.Contains(literal, "*") {
		return nil, fmt.Errorf("pattern %q: wildcard only allowed as the final character", pattern)
	}
	expr := glob.QuoteMeta(literal)
	if wildcard {
		expr += "*"
	}
	g, err := glob.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return g, nil
}

// WithPrefix mounts pattern under a handler path prefix such as "/hub".
func WithPrefix(prefix, pattern string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return pattern
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix + pattern
}
