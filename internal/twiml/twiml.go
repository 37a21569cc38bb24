// Package twiml renders the Twilio Markup Language documents returned
// by the messaging and voice webhooks. Only the verbs the gateway uses
// are modeled. Webhooks must always answer with a well-formed document,
// even on internal failure, or the caller hears a carrier error.
package twiml

import (
	"encoding/xml"
	"fmt"
)

// DefaultVoice is the Twilio TTS voice for all spoken prompts.
const DefaultVoice = "Polly.Joanna"

// Response is the root TwiML document. Verbs render in the order they
// were added.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// Say speaks text to the caller.
type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Message sends an SMS or WhatsApp reply.
type Message struct {
	XMLName xml.Name `xml:"Message"`
	Body    string   `xml:",chardata"`
}

// Gather collects caller input, speaking its nested verbs as the
// prompt.
type Gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Hints         string   `xml:"hints,attr,omitempty"`
	Verbs         []any
}

// Redirect hands the call to another webhook.
type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	URL     string   `xml:",chardata"`
}

// Hangup ends the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// New creates an empty response.
func New() *Response {
	return &Response{}
}

// Say appends a spoken prompt in the default voice.
func (r *Response) Say(text string) *Response {
	r.Verbs = append(r.Verbs, Say{Voice: DefaultVoice, Text: text})
	return r
}

// Message appends a text reply.
func (r *Response) Message(body string) *Response {
	r.Verbs = append(r.Verbs, Message{Body: body})
	return r
}

// GatherOpts configures a speech gather.
type GatherOpts struct {
	Action  string // webhook that receives the transcription
	Prompt  string // spoken inside the gather; empty means silent
	Hints   string // recognition hints, comma separated
	Timeout int
}

// GatherSpeech appends a speech gather that posts the transcription to
// the configured action.
func (r *Response) GatherSpeech(opts GatherOpts) *Response {
	g := Gather{
		Input:         "speech",
		Action:        opts.Action,
		Timeout:       opts.Timeout,
		SpeechTimeout: "auto",
		Hints:         opts.Hints,
	}
	if opts.Prompt != "" {
		g.Verbs = []any{Say{Voice: DefaultVoice, Text: opts.Prompt}}
	}
	r.Verbs = append(r.Verbs, g)
	return r
}

// Redirect appends a redirect to another webhook.
func (r *Response) Redirect(url string) *Response {
	r.Verbs = append(r.Verbs, Redirect{URL: url})
	return r
}

// Hangup appends a hangup.
func (r *Response) Hangup() *Response {
	r.Verbs = append(r.Verbs, Hangup{})
	return r
}

// Render marshals the document with the XML declaration Twilio expects.
func (r *Response) Render() ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("rendering twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
