package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/unitd/internal/journal"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if sess := s.deps.Session; sess != nil {
		resp.SessionID = sess.ID()
		resp.Running, resp.Zombies = sess.Counts()
		resp.PendingWaits = sess.PendingWaits()
		resp.Foreground = sess.Foreground()
		if sess.Finished() {
			resp.Status = "finished"
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleProcesses handles GET /processes.
func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	sess := s.deps.Session
	if sess == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no session")
		return
	}

	fg := sess.Foreground()
	entries := sess.Snapshot()
	resp := ProcessesResponse{
		SessionID:  sess.ID(),
		Foreground: fg,
		Finished:   sess.Finished(),
		Processes:  make([]Process, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Processes = append(resp.Processes, processFromEntry(e, fg))
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleProcess handles GET /processes/{pid}.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	sess := s.deps.Session
	if sess == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no session")
		return
	}
	pid, err := strconv.Atoi(chi.URLParam(r, "pid"))
	if err != nil || pid <= 0 {
		s.writeError(w, http.StatusBadRequest, "pid must be a positive integer")
		return
	}

	fg := sess.Foreground()
	for _, e := range sess.Snapshot() {
		if e.PID == pid {
			respondJSON(w, http.StatusOK, processFromEntry(e, fg))
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "no such process")
}

// handleHistory handles GET /history?limit=&session=.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history is not recorded")
		return
	}

	f := journal.Filter{SessionID: r.URL.Query().Get("session")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	records, err := s.deps.History.List(r.Context(), f)
	if err != nil {
		s.logger.Error("failed to list history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	respondJSON(w, http.StatusOK, records)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
