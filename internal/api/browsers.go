package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"capturehub/internal/browser"
	"capturehub/internal/router"
)

type captureResponse struct {
	Worker           browser.Worker `json:"worker"`
	HeartbeatPath    string         `json:"heartbeat_path"`
	BrowserTimeoutMS int64          `json:"browser_timeout_ms"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// decodeBody reads a JSON body into dst. An empty body is accepted when
// allowEmpty is set and leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) && allowEmpty {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSONErrorForRequest(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	writeJSONErrorForRequest(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
	return false
}

// pathID extracts the wildcard segment following base.
func (s *Server) pathID(r *http.Request, base string) string {
	return strings.TrimSpace(strings.TrimPrefix(r.URL.Path, router.WithPrefix(s.prefix, base)))
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var desc browser.Descriptor
	if !decodeBody(w, r, &desc, true) {
		return
	}
	desc.Name = strings.TrimSpace(desc.Name)
	if desc.Name == "" {
		desc.Name = "unknown"
	}
	if strings.TrimSpace(desc.UserAgent) == "" {
		desc.UserAgent = r.UserAgent()
	}

	worker := s.registry.Capture(desc)
	s.metrics.IncCapture()
	s.logger.Info("browser captured", "id", worker.ID, "name", desc.Name, "version", desc.Version)

	writeJSON(w, http.StatusCreated, captureResponse{
		Worker:           worker,
		HeartbeatPath:    router.WithPrefix(s.prefix, "/heartbeat/") + worker.ID,
		BrowserTimeoutMS: s.timeout.Milliseconds(),
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := s.pathID(r, "/heartbeat/")
	if id == "" {
		writeJSONErrorForRequest(w, r, http.StatusBadRequest, "browser id is required")
		return
	}
	if err := s.registry.Touch(id); err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			s.metrics.IncHeartbeat(true)
			writeJSONErrorForRequest(w, r, http.StatusGone, "browser "+id+" is no longer captured; capture again")
			return
		}
		writeJSONErrorForRequest(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.IncHeartbeat(false)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": id})
}

func (s *Server) handleListBrowsers(w http.ResponseWriter, r *http.Request) {
	workers := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": workers,
		"count": len(workers),
	})
}

func (s *Server) handleGetBrowser(w http.ResponseWriter, r *http.Request) {
	id := s.pathID(r, "/browsers/")
	worker, ok := s.registry.Get(id)
	if !ok {
		writeJSONErrorForRequest(w, r, http.StatusNotFound, "browser "+id+" not captured")
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

func (s *Server) handleSetBrowserStatus(w http.ResponseWriter, r *http.Request) {
	id := s.pathID(r, "/browsers/")
	var req statusRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	status, err := browser.ParseStatus(req.Status)
	if err != nil {
		writeJSONErrorForRequest(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.registry.SetStatus(id, status); err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			writeJSONErrorForRequest(w, r, http.StatusGone, "browser "+id+" is no longer captured")
			return
		}
		writeJSONErrorForRequest(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	worker, _ := s.registry.Get(id)
	writeJSON(w, http.StatusOK, worker)
}

// handleReleaseBrowser is idempotent: releasing an unknown id succeeds.
func (s *Server) handleReleaseBrowser(w http.ResponseWriter, r *http.Request) {
	id := s.pathID(r, "/browsers/")
	if s.registry.Remove(id) {
		s.metrics.IncRelease()
		s.logger.Info("browser released", "id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}
