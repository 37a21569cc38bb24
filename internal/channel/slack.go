package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/rag"
)

// SlackKnowledgeBase is the slice of the shared engine the Slack bot
// needs: answering, stats, and PDF ingestion for shared files.
type SlackKnowledgeBase interface {
	Answerer
	Stats() rag.CollectionStats
	AddPDF(ctx context.Context, content []byte, filename string) (int, error)
}

// slackAPI is the subset of the Slack Web API the bot calls, extracted
// so tests can substitute a fake.
type slackAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	GetFileInfo(fileID string, count, page int) (*slack.File, []slack.Comment, *slack.Paging, error)
	GetFile(downloadURL string, w io.Writer) error
}

// SlackBot answers workspace messages and mentions from the shared
// knowledge base and ingests PDFs shared in channels it can see.
type SlackBot struct {
	api    slackAPI
	engine SlackKnowledgeBase
	logger log.Logger
}

// NewSlackBot creates the Slack adapter around an API client, normally
// slack.New(botToken).
func NewSlackBot(api slackAPI, engine SlackKnowledgeBase, logger log.Logger) *SlackBot {
	return &SlackBot{api: api, engine: engine, logger: logger}
}

// HandleEvent dispatches a callback event to the matching handler.
// Unknown event types are ignored.
func (b *SlackBot) HandleEvent(ctx context.Context, event slackevents.EventsAPIEvent) {
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		b.handleMention(ctx, ev)
	case *slackevents.MessageEvent:
		b.handleMessage(ctx, ev)
	case *slackevents.FileSharedEvent:
		b.handleFileShared(ctx, ev)
	default:
		b.logger.Debug("ignoring slack event", "type", event.InnerEvent.Type)
	}
}

// handleMessage answers keyword messages. Messages from bots (including
// our own replies) are ignored so the bot cannot talk to itself.
func (b *SlackBot) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev.BotID != "" {
		return
	}

	text := strings.ToLower(ev.Text)
	switch {
	case strings.Contains(text, "hello"):
		b.post(ev.Channel, fmt.Sprintf("Hello <@%s>! I'm your RAG bot. Ask me anything about the documents in my knowledge base!", ev.User))
	case strings.Contains(text, "help"):
		b.post(ev.Channel, slackHelpMessage)
	case strings.Contains(text, "stats"):
		stats := b.engine.Stats()
		b.post(ev.Channel, fmt.Sprintf("📊 *Knowledge Base Statistics*\n\n• Total document chunks: %d\n• Collection: %s",
			stats.TotalDocuments, stats.CollectionName))
	}
}

// handleMention answers "@bot question" mentions. The leading mention
// token is stripped; what remains is the question.
func (b *SlackBot) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	fields := strings.Fields(ev.Text)
	question := ""
	if len(fields) > 1 {
		question = strings.Join(fields[1:], " ")
	}

	if question == "" {
		b.post(ev.Channel, "Please ask me a question! For example: @ragbot What is machine learning?")
		return
	}

	b.post(ev.Channel, "🤔 Let me search through the knowledge base...")

	answer, err := b.engine.Query(ctx, question)
	if err != nil {
		b.logger.Error("slack query failed", "channel", ev.Channel, "error", err)
		b.post(ev.Channel, fmt.Sprintf("Sorry, I encountered an error: %v", err))
		return
	}

	b.post(ev.Channel, fmt.Sprintf("💡 *Answer to: \"%s\"*\n\n%s\n\n_Powered by GPT-OSS_", question, answer))
}

// handleFileShared ingests shared PDFs into the shared knowledge base.
func (b *SlackBot) handleFileShared(ctx context.Context, ev *slackevents.FileSharedEvent) {
	file, _, _, err := b.api.GetFileInfo(ev.FileID, 0, 0)
	if err != nil {
		b.logger.Error("slack file lookup failed", "file_id", ev.FileID, "error", err)
		b.post(ev.ChannelID, fmt.Sprintf("Error processing file: %v", err))
		return
	}

	if file.Mimetype != "application/pdf" {
		b.post(ev.ChannelID, "📄 I currently only support PDF files. Please upload a PDF document.")
		return
	}

	var buf bytes.Buffer
	if err := b.api.GetFile(file.URLPrivateDownload, &buf); err != nil {
		b.logger.Error("slack file download failed", "file_id", ev.FileID, "error", err)
		b.post(ev.ChannelID, "❌ Failed to download the file")
		return
	}

	n, err := b.engine.AddPDF(ctx, buf.Bytes(), file.Name)
	if err != nil {
		b.logger.Error("slack pdf ingest failed", "file", file.Name, "error", err)
		b.post(ev.ChannelID, fmt.Sprintf("Error processing file: %v", err))
		return
	}

	b.post(ev.ChannelID, fmt.Sprintf("✅ Successfully processed: %s\nAdded %d chunks from document", file.Name, n))
}

func (b *SlackBot) post(channel, text string) {
	if _, _, err := b.api.PostMessage(channel, slack.MsgOptionText(text, false)); err != nil {
		b.logger.Error("posting slack message failed", "channel", channel, "error", err)
	}
}

const slackHelpMessage = `🤖 *RAG Bot Help*

I can help you find information from uploaded documents. Here's what you can do:

• Ask me questions about any topic in the knowledge base
• Upload a PDF and I'll add it to the knowledge base
• Use ` + "`stats`" + ` to see knowledge base statistics
• Use ` + "`hello`" + ` to get a greeting
• Use ` + "`help`" + ` to see this message

Just mention me (@ragbot) followed by your question!`
