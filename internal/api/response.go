package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/twiml"
)

// writeJSON encodes v into a buffer before touching the ResponseWriter,
// so an encoding failure can still become a clean 500 instead of a
// half-written body.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logger.Error("encoding response failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Warn("writing response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger log.Logger, status int, message string) {
	writeJSON(w, logger, status, map[string]string{"error": message})
}

// writeTwiML renders a TwiML document. Telephony webhooks must always
// answer with well-formed XML, so a render failure degrades to a
// minimal apology document rather than a non-XML error page.
func writeTwiML(w http.ResponseWriter, logger log.Logger, resp *twiml.Response) {
	body, err := resp.Render()
	if err != nil {
		logger.Error("rendering twiml failed", "error", err)
		body = []byte(`<?xml version="1.0" encoding="UTF-8"?><Response><Say>Sorry, something went wrong.</Say></Response>`)
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logger.Warn("writing twiml failed", "error", err)
	}
}
