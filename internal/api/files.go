package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"capturehub/internal/actions"
	"capturehub/internal/fileset"
)

type fileSetRequest struct {
	Files []fileset.FileInfo `json:"files"`
}

func validateFiles(files []fileset.FileInfo) string {
	for i, f := range files {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Sprintf("files[%d].id is required", i)
		}
	}
	return ""
}

// handleFileSet answers which of the client's files the hub needs again.
func (s *Server) handleFileSet(w http.ResponseWriter, r *http.Request) {
	var req fileSetRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if msg := validateFiles(req.Files); msg != "" {
		writeJSONErrorForRequest(w, r, http.StatusBadRequest, msg)
		return
	}
	expired := s.cache.Expired(req.Files)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"expired": expired,
		"count":   len(expired),
	})
}

func (s *Server) handleStoreFiles(w http.ResponseWriter, r *http.Request) {
	var req fileSetRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if msg := validateFiles(req.Files); msg != "" {
		writeJSONErrorForRequest(w, r, http.StatusBadRequest, msg)
		return
	}
	s.cache.Put(req.Files...)
	writeJSON(w, http.StatusOK, map[string]int{
		"stored": len(req.Files),
		"cached": s.cache.Len(),
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files := s.cache.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": files,
		"count": len(files),
	})
}

func (s *Server) handleClearFiles(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var opts actions.Options
	if !decodeBody(w, r, &opts, false) {
		return
	}
	list, err := actions.NewProvider(opts, s.processors...).Get()
	if err != nil {
		if errors.Is(err, actions.ErrMisconfigured) {
			writeJSONErrorForRequest(w, r, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Warn("action plan failed", "error", err)
		writeJSONErrorForRequest(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []actions.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": list})
}
