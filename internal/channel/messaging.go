// Package channel adapts inbound messaging channels (WhatsApp, SMS,
// voice calls, Slack) to the query engines. Adapters never let an
// internal error escape to the transport: every failure becomes a
// user-facing apology in the channel's own format.
package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/user"
)

// Channel names. WhatsApp and SMS share the bot but keep separate
// conversation histories.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
)

const messagingErrorReply = "Sorry, I encountered an error processing your message. Please try again."

// UserQuerier is the slice of the per-user engine the messaging bot
// needs.
type UserQuerier interface {
	QueryWithContext(ctx context.Context, userID, question, channel string) (string, error)
	UserStats(ctx context.Context, userID string) (*user.Stats, error)
}

// UserRegistry resolves phone numbers to users.
type UserRegistry interface {
	GetOrCreate(ctx context.Context, phone, name string) (*user.User, error)
	IncrementMessages(ctx context.Context, id string) error
}

// MessagingBot handles WhatsApp and SMS conversations. Each sender gets
// a private knowledge base and per-channel history, resolved from their
// phone number.
type MessagingBot struct {
	users  UserRegistry
	engine UserQuerier
	logger log.Logger
}

// NewMessagingBot creates the WhatsApp/SMS adapter.
func NewMessagingBot(users UserRegistry, engine UserQuerier, logger log.Logger) *MessagingBot {
	return &MessagingBot{users: users, engine: engine, logger: logger}
}

// HandleMessage processes one inbound message and returns the reply
// text. Command words are handled locally; everything else is a query
// against the sender's private knowledge base. The reply is always a
// usable string, never an error.
func (b *MessagingBot) HandleMessage(ctx context.Context, phone, body, channel string) string {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case "hello", "hi", "start":
		return welcomeMessage
	case "help", "?":
		return helpMessage
	case "stats":
		return b.statsMessage(ctx, phone)
	}

	u, err := b.users.GetOrCreate(ctx, phone, "")
	if err != nil {
		b.logger.Error("resolving user failed", "channel", channel, "error", err)
		return messagingErrorReply
	}
	if err := b.users.IncrementMessages(ctx, u.ID); err != nil {
		b.logger.Warn("message counter update failed", "user_id", u.ID, "error", err)
	}

	answer, err := b.engine.QueryWithContext(ctx, u.ID, strings.TrimSpace(body), channel)
	if err != nil {
		b.logger.Error("query failed", "user_id", u.ID, "channel", channel, "error", err)
		return messagingErrorReply
	}

	return fmt.Sprintf("🤖 *RAG Bot Response:*\n\n%s\n\n_Powered by GPT-OSS_", answer)
}

func (b *MessagingBot) statsMessage(ctx context.Context, phone string) string {
	u, err := b.users.GetOrCreate(ctx, phone, "")
	if err != nil {
		b.logger.Error("resolving user for stats failed", "error", err)
		return messagingErrorReply
	}

	stats, err := b.engine.UserStats(ctx, u.ID)
	if err != nil {
		b.logger.Error("loading stats failed", "user_id", u.ID, "error", err)
		return fmt.Sprintf("Error getting stats: %v", err)
	}

	return fmt.Sprintf(`📊 *Your Stats*

• Name: %s
• Document chunks: %d
• Messages sent: %d
• Member for: %d days

Ready to answer your questions!`,
		stats.Name, stats.DocumentChunks, stats.TotalMessages, stats.MemberSinceDays)
}

const welcomeMessage = `🤖 *Welcome to RAG Bot!*

I can help you find information from your knowledge base.

Send me any question and I'll search through your uploaded documents to provide you with relevant answers.

Type 'help' for more information or just ask me anything!`

const helpMessage = `🤖 *RAG Bot Help*

*Commands:*
• hello/hi - Get welcome message
• help/? - Show this help
• stats - Show your knowledge base statistics

*Usage:*
Just send me any question about topics in your knowledge base!

Examples:
• "What is machine learning?"
• "How does neural networks work?"
• "Explain quantum computing"

I'll search through your uploaded documents to find the best answer for you!`
