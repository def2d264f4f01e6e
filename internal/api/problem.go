package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"capturehub/internal/router"
)

const problemTypeBaseURI = "https://capturehub.dev/problems/"

const (
	problemBrowserUnavailable = problemTypeBaseURI + "browser-unavailable"
	problemUnsupportedMethod  = problemTypeBaseURI + "unsupported-method"
	problemRouteNotFound      = problemTypeBaseURI + "route-not-found"
	problemJournalDisabled    = problemTypeBaseURI + "journal-disabled"
)

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("encode response failed", "component", "api", "error", err)
	}
}

func problemTypeURI(statusCode int, detail string) string {
	detailLower := strings.ToLower(strings.TrimSpace(detail))
	switch statusCode {
	case http.StatusBadRequest:
		return problemTypeBaseURI + "bad-request"
	case http.StatusUnauthorized:
		return problemTypeBaseURI + "unauthorized"
	case http.StatusNotFound:
		return problemTypeBaseURI + "not-found"
	case http.StatusMethodNotAllowed:
		return problemTypeBaseURI + "method-not-allowed"
	case http.StatusGone:
		return problemBrowserUnavailable
	case http.StatusRequestEntityTooLarge:
		return problemTypeBaseURI + "payload-too-large"
	case http.StatusTooManyRequests:
		return problemTypeBaseURI + "rate-limited"
	case http.StatusServiceUnavailable:
		if strings.Contains(detailLower, "journal") {
			return problemJournalDisabled
		}
		return problemTypeBaseURI + "not-ready"
	case http.StatusInternalServerError:
		return problemTypeBaseURI + "internal"
	default:
		return problemTypeBaseURI + "http-" + strconv.Itoa(statusCode)
	}
}

func problemPayload(r *http.Request, statusCode int, detail string, extra map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{
		"type":   problemTypeURI(statusCode, detail),
		"title":  http.StatusText(statusCode),
		"status": statusCode,
	}
	if payload["title"] == "" {
		payload["title"] = "Error"
	}
	if detail != "" {
		payload["detail"] = detail
		// Compatibility field for clients that only read "error".
		payload["error"] = detail
	}
	if r != nil && r.URL != nil {
		if instance := strings.TrimSpace(r.URL.Path); instance != "" {
			payload["instance"] = instance
		}
	}
	if rid := requestIDFromRequest(r); rid != "" {
		payload["request_id"] = rid
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

func writeProblem(w http.ResponseWriter, statusCode int, payload map[string]interface{}) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("encode problem response failed", "component", "api", "error", err)
	}
}

func writeJSONErrorForRequest(w http.ResponseWriter, r *http.Request, statusCode int, msg string) {
	writeProblemForRequest(w, r, statusCode, msg, nil)
}

func writeProblemForRequest(w http.ResponseWriter, r *http.Request, statusCode int, msg string, extra map[string]interface{}) {
	if r != nil {
		r = withRequestID(r)
		if rid := requestIDFromRequest(r); rid != "" {
			w.Header().Set(requestIDHeader, rid)
		}
	}
	writeProblem(w, statusCode, problemPayload(r, statusCode, msg, extra))
}

// WriteUnauthorized is the gateway deny response.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request) {
	writeJSONErrorForRequest(w, r, http.StatusUnauthorized, "request rejected by gateway auth strategy")
}

// problemSender renders dispatcher failures as problem documents.
type problemSender struct{}

func (problemSender) MethodNotAllowed(w http.ResponseWriter, r *http.Request, cause error) {
	var extra map[string]interface{}
	if errors.Is(cause, router.ErrUnsupportedMethod) {
		extra = map[string]interface{}{"type": problemUnsupportedMethod}
	}
	writeProblemForRequest(w, r, http.StatusMethodNotAllowed, cause.Error(), extra)
}

func (problemSender) NotFound(w http.ResponseWriter, r *http.Request, message string) {
	writeProblemForRequest(w, r, http.StatusNotFound, message, map[string]interface{}{"type": problemRouteNotFound})
}
