package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// handleSlackEvents verifies and dispatches Slack Events API callbacks.
// The URL-verification handshake is answered inline; everything else
// goes to the bot after the signature checks out.
func (s *Server) handleSlackEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "reading body failed")
		return
	}

	verifier, err := slack.NewSecretsVerifier(r.Header, s.cfg.SlackSigningSecret)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "missing signature headers")
		return
	}
	if _, err := verifier.Write(body); err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "signature verification failed")
		return
	}
	if err := verifier.Ensure(); err != nil {
		s.logger.Warn("slack signature mismatch", "error", err)
		writeError(w, s.logger, http.StatusUnauthorized, "invalid signature")
		return
	}

	event, err := slackevents.ParseEvent(body, slackevents.OptionNoVerifyToken())
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "parsing event failed")
		return
	}

	if event.Type == slackevents.URLVerification {
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			writeError(w, s.logger, http.StatusBadRequest, "parsing challenge failed")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(challenge.Challenge))
		return
	}

	s.slack.HandleEvent(r.Context(), event)
	w.WriteHeader(http.StatusOK)
}
