package api

import "net/http"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"message": "RAG Bot API is running!",
		"endpoints": map[string]string{
			"health":   "/health",
			"upload":   "/upload",
			"query":    "/query",
			"stats":    "/stats",
			"research": "/research/url",
			"slack":    "/slack/events",
			"whatsapp": "/whatsapp/webhook",
			"voice":    "/voice/webhook",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	enabled := func(on bool) string {
		if on {
			return "enabled"
		}
		return "disabled"
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]string{
		"status":       "healthy",
		"rag_system":   "operational",
		"slack_bot":    enabled(s.slack != nil && s.cfg.SlackSigningSecret != ""),
		"whatsapp_bot": enabled(s.messaging != nil),
		"voice_agent":  enabled(s.voice != nil),
	})
}
