// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/khaas/earshot/internal/deliver"
	"github.com/khaas/earshot/internal/detect"
	"github.com/khaas/earshot/internal/log"
)

const defaultListLimit = 50

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Health(r.Context()))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := s.health.Ready(r.Context())
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleListRecordings returns persisted delivery records, newest
// first. Responses are cached briefly since the dashboard polls.
func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be an integer in 1..500")
			return
		}
		limit = n
	}

	cacheKey := fmt.Sprintf("recordings:%d", limit)
	if body, ok := s.cache.Get(cacheKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		_, _ = w.Write(body)
		return
	}

	records, err := s.records.List(r.Context(), limit)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("list recordings failed")
		writeError(w, http.StatusInternalServerError, "record store unavailable")
		return
	}
	if records == nil {
		records = []deliver.Record{}
	}

	body, err := json.Marshal(records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}
	s.cache.Set(cacheKey, body, s.cfg.CacheTTL)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "miss")
	_, _ = w.Write(body)
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.records.Get(r.Context(), detect.EventID(id))
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("get recording failed")
		writeError(w, http.StatusInternalServerError, "record store unavailable")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no record for event "+id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleTriggerFeed relays the latest remote trigger feed so dashboards
// do not need the channel credentials.
func (s *Server) handleTriggerFeed(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TriggerFeedURL == "" {
		writeError(w, http.StatusNotFound, "no trigger feed configured")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.cfg.TriggerFeedURL, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "feed request failed")
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "trigger feed unreachable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("trigger feed returned %d", resp.StatusCode))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.Copy(w, resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
