package api

import (
	"net/http"
	"strings"

	"github.com/ragline/ragline/internal/channel"
	"github.com/ragline/ragline/internal/twiml"
)

// handleWhatsApp answers Twilio's WhatsApp webhook. The sender arrives
// as "whatsapp:+1555..."; the prefix is stripped so WhatsApp and SMS
// resolve the same phone number to the same user.
func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTwiML(w, s.logger, twiml.New().Message("Sorry, I couldn't read your message. Please try again."))
		return
	}

	from := strings.TrimPrefix(r.PostFormValue("From"), "whatsapp:")
	body := r.PostFormValue("Body")

	if mediaURL := r.PostFormValue("MediaUrl0"); mediaURL != "" {
		s.logger.Info("whatsapp media received",
			"media_url", mediaURL,
			"media_type", r.PostFormValue("MediaContentType0"))
	}

	reply := s.messaging.HandleMessage(r.Context(), from, body, channel.ChannelWhatsApp)
	writeTwiML(w, s.logger, twiml.New().Message(reply))
}

func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTwiML(w, s.logger, twiml.New().Message("Sorry, I couldn't read your message. Please try again."))
		return
	}

	reply := s.messaging.HandleMessage(r.Context(), r.PostFormValue("From"), r.PostFormValue("Body"), channel.ChannelSMS)
	writeTwiML(w, s.logger, twiml.New().Message(reply))
}

func (s *Server) handleVoiceWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTwiML(w, s.logger, twiml.New().Say("Sorry, something went wrong. Goodbye.").Hangup())
		return
	}

	writeTwiML(w, s.logger, s.voice.HandleIncomingCall(r.PostFormValue("From")))
}

func (s *Server) handleVoiceProcess(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTwiML(w, s.logger, twiml.New().Say("Sorry, something went wrong. Goodbye.").Hangup())
		return
	}

	resp := s.voice.ProcessSpeech(r.Context(), r.PostFormValue("CallSid"), r.PostFormValue("SpeechResult"))
	writeTwiML(w, s.logger, resp)
}
