// Package api exposes the HTTP surface: the knowledge-base API, the
// research endpoints, and the webhook endpoints for the messaging,
// voice, and Slack channels.
package api

import (
	"context"
	"net/http"

	"github.com/slack-go/slack/slackevents"

	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/rag"
	"github.com/ragline/ragline/internal/twiml"
)

// Knowledge is the shared engine surface the API serves.
type Knowledge interface {
	Query(ctx context.Context, question string) (string, error)
	AddDocument(ctx context.Context, text string, metadata map[string]string) (int, error)
	AddPDF(ctx context.Context, content []byte, filename string) (int, error)
	Stats() rag.CollectionStats
}

// Research is the research pipeline surface.
type Research interface {
	AddURL(ctx context.Context, url string) string
	ResearchTopic(ctx context.Context, topic string, numSources int) string
}

// Messenger handles WhatsApp/SMS messages.
type Messenger interface {
	HandleMessage(ctx context.Context, phone, body, channel string) string
}

// Voice handles phone calls.
type Voice interface {
	HandleIncomingCall(from string) *twiml.Response
	ProcessSpeech(ctx context.Context, callSID, speech string) *twiml.Response
}

// SlackEvents consumes parsed Slack callback events.
type SlackEvents interface {
	HandleEvent(ctx context.Context, event slackevents.EventsAPIEvent)
}

// Config tunes the HTTP layer.
type Config struct {
	UploadDir          string  // where raw uploads are archived; empty disables archiving
	SlackSigningSecret string  // empty disables the Slack endpoint
	RateLimitRPS       float64 // per-IP requests per second
	RateLimitBurst     int
}

// Server holds the HTTP handlers and their dependencies. The voice,
// messaging and Slack adapters are optional; nil disables the matching
// webhooks (Slack) or reports them disabled (health).
type Server struct {
	cfg        Config
	logger     log.Logger
	engine     Knowledge
	researcher Research
	messaging  Messenger
	voice      Voice
	slack      SlackEvents
}

// NewServer creates the HTTP layer.
func NewServer(cfg Config, logger log.Logger, engine Knowledge, researcher Research, messaging Messenger, voice Voice, slack SlackEvents) *Server {
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	return &Server{
		cfg:        cfg,
		logger:     logger,
		engine:     engine,
		researcher: researcher,
		messaging:  messaging,
		voice:      voice,
		slack:      slack,
	}
}

// RegisterRoutes attaches all endpoints to mux. The Slack endpoint is
// registered only when a signing secret is configured.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /stats", s.handleStats)

	mux.HandleFunc("POST /research/url", s.handleResearchURL)
	mux.HandleFunc("POST /research/topic", s.handleResearchTopic)

	mux.HandleFunc("POST /whatsapp/webhook", s.handleWhatsApp)
	mux.HandleFunc("POST /sms/webhook", s.handleSMS)
	mux.HandleFunc("POST /voice/webhook", s.handleVoiceWebhook)
	mux.HandleFunc("POST /voice/process", s.handleVoiceProcess)

	if s.slack != nil && s.cfg.SlackSigningSecret != "" {
		mux.HandleFunc("POST /slack/events", s.handleSlackEvents)
	}
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(newRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst), s.logger)(handler)
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	return handler
}
