package channel

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/twiml"
)

// Answerer is the slice of the shared engine voice and Slack need.
type Answerer interface {
	Query(ctx context.Context, question string) (string, error)
}

// Voice webhook paths, referenced from the TwiML the agent emits.
const (
	VoiceWebhookPath = "/voice/webhook"
	VoiceProcessPath = "/voice/process"
)

// ttsMaxChars caps spoken answers; long answers are cut and elided.
const ttsMaxChars = 500

// VoiceAgent turns phone calls into knowledge-base queries. A call
// alternates between question turns and yes/no continuation turns; the
// agent tracks which turn each call SID is in.
type VoiceAgent struct {
	engine Answerer
	logger log.Logger

	mu           sync.Mutex
	continuation map[string]struct{}
}

// NewVoiceAgent creates the voice adapter.
func NewVoiceAgent(engine Answerer, logger log.Logger) *VoiceAgent {
	return &VoiceAgent{
		engine:       engine,
		logger:       logger,
		continuation: make(map[string]struct{}),
	}
}

// HandleIncomingCall answers a new call: greeting, a speech gather, and
// a goodbye if the caller says nothing.
func (a *VoiceAgent) HandleIncomingCall(from string) *twiml.Response {
	a.logger.Info("incoming call", "from", from)

	return twiml.New().
		Say("Hello! Welcome to the RAG Bot voice assistant. I can answer questions based on my knowledge base. Please ask your question after the beep.").
		GatherSpeech(twiml.GatherOpts{Action: VoiceProcessPath}).
		Say("I didn't hear anything. Please call back if you have a question. Goodbye!")
}

// ProcessSpeech handles a transcription callback. Calls awaiting a
// continuation decision are routed to yes/no handling; otherwise the
// speech is a question for the engine.
func (a *VoiceAgent) ProcessSpeech(ctx context.Context, callSID, speech string) *twiml.Response {
	if a.inContinuation(callSID) {
		a.clearContinuation(callSID)
		return a.handleContinue(speech)
	}

	if strings.TrimSpace(speech) == "" {
		return twiml.New().
			Say("I'm sorry, I didn't catch that. Please try again.").
			Redirect(VoiceWebhookPath)
	}

	answer, err := a.engine.Query(ctx, speech)
	if err != nil {
		a.logger.Error("voice query failed", "call_sid", callSID, "error", err)
		return twiml.New().
			Say("I'm sorry, I encountered an error processing your question. Please try again later.").
			Hangup()
	}

	a.markContinuation(callSID)
	return twiml.New().
		Say(CleanForSpeech(answer)).
		GatherSpeech(twiml.GatherOpts{
			Action: VoiceProcessPath,
			Prompt: "Would you like to ask another question? Say yes or no.",
			Hints:  "yes, no, another question",
		}).
		Say("Thank you for using RAG Bot. Goodbye!").
		Hangup()
}

func (a *VoiceAgent) handleContinue(speech string) *twiml.Response {
	lower := strings.ToLower(speech)
	for _, word := range []string{"yes", "yeah", "sure", "another"} {
		if strings.Contains(lower, word) {
			return twiml.New().
				Say("Great! Please ask your next question.").
				Redirect(VoiceWebhookPath)
		}
	}
	return twiml.New().
		Say("Thank you for using RAG Bot. Have a great day! Goodbye!").
		Hangup()
}

func (a *VoiceAgent) inContinuation(callSID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.continuation[callSID]
	return ok
}

func (a *VoiceAgent) markContinuation(callSID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.continuation[callSID] = struct{}{}
}

func (a *VoiceAgent) clearContinuation(callSID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.continuation, callSID)
}

var nonSpeakable = regexp.MustCompile(`[^\p{L}\p{N}\s.,!?-]`)

// CleanForSpeech strips markdown markers and non-speakable characters
// from an answer and caps it for TTS.
func CleanForSpeech(text string) string {
	replacer := strings.NewReplacer("**", "", "*", "", "_", "", "`", "")
	text = replacer.Replace(text)
	text = nonSpeakable.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if len(text) > ttsMaxChars {
		text = text[:ttsMaxChars-3] + "..."
	}
	return text
}
