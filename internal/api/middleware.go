package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"capturehub/internal/router"
)

type requestContextKey string

const requestIDContextKey requestContextKey = "capturehub_request_id"

const (
	requestIDHeader    = "X-Request-Id"
	maxRequestIDLength = 128
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach Flush and deadlines on the
// underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = withRequestID(r)
		if rid := requestIDFromRequest(r); rid != "" {
			rec.Header().Set(requestIDHeader, rid)
		}
		rec.Header().Set("X-Content-Type-Options", "nosniff")

		if !s.limiter.allow(clientIP(r.RemoteAddr)) {
			writeJSONErrorForRequest(rec, r, http.StatusTooManyRequests, "rate limit exceeded")
			s.metrics.IncRequest(methodLabel(r.Method), rec.status)
			return
		}

		next.ServeHTTP(rec, r)
		s.metrics.IncRequest(methodLabel(r.Method), rec.status)
	})
}

// methodLabel folds verbs outside the supported set into "OTHER" so
// client input cannot mint new metric series.
func methodLabel(raw string) string {
	if m, ok := router.ParseMethod(raw); ok {
		return string(m)
	}
	return "OTHER"
}

func withRequestID(r *http.Request) *http.Request {
	if r == nil {
		return r
	}
	if existing := requestIDFromRequest(r); existing != "" {
		ctx := context.WithValue(r.Context(), requestIDContextKey, existing)
		return r.WithContext(ctx)
	}
	rid := "req_" + uuid.NewString()
	ctx := context.WithValue(r.Context(), requestIDContextKey, rid)
	return r.WithContext(ctx)
}

func isValidRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, ch := range id {
		if ch < 33 || ch > 126 {
			return false
		}
	}
	return true
}

func requestIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if rid, ok := r.Context().Value(requestIDContextKey).(string); ok && isValidRequestID(strings.TrimSpace(rid)) {
		return strings.TrimSpace(rid)
	}
	rid := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if isValidRequestID(rid) {
		return rid
	}
	return ""
}
