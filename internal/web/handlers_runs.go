package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/datastorer/internal/history"
)

// handleListRuns returns recent runs as JSON. ?limit=N caps the count.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.recentRuns(r)
	if err != nil {
		s.respondError(w, r, err, "")
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, s.logger, map[string]any{"runs": runs})
}

// handleRunsPage renders recent runs as HTML.
func (s *Server) handleRunsPage(w http.ResponseWriter, r *http.Request) {
	runs, err := s.recentRuns(r)
	if err != nil {
		s.respondError(w, r, err, "")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := RunsPage(runs, s.limiter.Status(), time.Now()).Render(r.Context(), w); err != nil {
		s.logger.Error("render runs page", "error", err)
	}
}

func (s *Server) recentRuns(r *http.Request) ([]history.Run, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Recent(r.Context(), parseIntParam(r, "limit", history.DefaultLimit))
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
