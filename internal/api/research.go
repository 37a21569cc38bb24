package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

func (s *Server) handleResearchURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, s.logger, http.StatusBadRequest, "URL is required")
		return
	}

	result := s.researcher.AddURL(r.Context(), req.URL)
	writeJSON(w, s.logger, http.StatusOK, map[string]string{
		"result": result,
		"url":    req.URL,
	})
}

func (s *Server) handleResearchTopic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic      string `json:"topic"`
		NumSources int    `json:"num_sources"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		writeError(w, s.logger, http.StatusBadRequest, "Topic is required")
		return
	}

	result := s.researcher.ResearchTopic(r.Context(), req.Topic, req.NumSources)
	writeJSON(w, s.logger, http.StatusOK, map[string]string{
		"result": result,
		"topic":  req.Topic,
	})
}
