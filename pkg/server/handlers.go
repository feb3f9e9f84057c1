package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/haivivi/voicemood/pkg/history"
)

// StatusCaptureFailed is reported when the capture device cannot be opened.
const StatusCaptureFailed = "capture_failed"

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

type startResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type statusResponse struct {
	IsRecording  bool `json:"is_recording"`
	ModelsLoaded bool `json:"models_loaded"`
}

type healthResponse struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
}

type recordingsResponse struct {
	Recordings []*history.Recording `json:"recordings"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	status, err := s.session.Start(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, startResponse{Status: StatusCaptureFailed, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, startResponse{Status: string(status)})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	res := s.session.Stop(r.Context())
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		IsRecording:  s.session.IsRecording(),
		ModelsLoaded: s.models.Loaded(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", ModelsLoaded: s.models.Loaded()})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}
	recs, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list recordings", "error", err)
		writeError(w, http.StatusInternalServerError, "list recordings failed")
		return
	}
	if recs == nil {
		recs = []*history.Recording{}
	}
	writeJSON(w, http.StatusOK, recordingsResponse{Recordings: recs})
}

func (s *Server) handleRecordingAudio(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	id := r.PathValue("id")
	rc, err := s.history.Audio(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "recording not found")
		return
	}
	if err != nil {
		s.logger.Error("open recording audio", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "read audio failed")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `inline; filename="`+id+`.wav"`)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("write recording audio", "id", id, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
