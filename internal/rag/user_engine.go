package rag

import (
	"context"
	"fmt"

	"github.com/ragline/ragline/internal/ai"
	"github.com/ragline/ragline/internal/knowledge"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/user"
)

// UserEngine answers questions from a user's private knowledge base,
// carrying conversation history across turns like a chat session.
type UserEngine struct {
	store  *knowledge.Store
	chat   ai.ChatClient
	users  *user.Store
	logger log.Logger
	opts   Options
}

// NewUserEngine creates the per-user engine.
func NewUserEngine(store *knowledge.Store, chat ai.ChatClient, users *user.Store, logger log.Logger, opts Options) *UserEngine {
	return &UserEngine{store: store, chat: chat, users: users, logger: logger, opts: opts.withDefaults()}
}

// AddDocumentForUser chunks and stores text in the user's private
// collection and bumps their document counter. Chunk IDs carry the user
// ID so identical filenames from different users never collide.
func (e *UserEngine) AddDocumentForUser(ctx context.Context, userID, text string, metadata map[string]string) (int, error) {
	u, err := e.users.Get(ctx, userID)
	if err != nil {
		return 0, err
	}

	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["user_id"] = userID

	docs, err := chunkDocuments(userID, text, metadata, e.opts)
	if err != nil {
		return 0, err
	}
	if err := e.store.Add(ctx, u.CollectionName, docs); err != nil {
		return 0, err
	}
	if err := e.users.IncrementDocuments(ctx, userID); err != nil {
		return 0, fmt.Errorf("updating document count: %w", err)
	}

	e.logger.Info("added user document", "user_id", userID, "chunks", len(docs))
	return len(docs), nil
}

// QueryWithContext answers a question against the user's private
// knowledge base with recent conversation history in the prompt. Both
// the question and the answer are recorded in the session regardless of
// whether the model or a fallback produced the answer, so history stays
// coherent across degraded turns.
//
// Retrieval failures degrade to an empty hit set rather than failing the
// turn; only an unknown user or a broken session store is an error.
func (e *UserEngine) QueryWithContext(ctx context.Context, userID, question, channel string) (string, error) {
	u, err := e.users.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	history, err := e.users.RecentMessages(ctx, userID, channel, 10)
	if err != nil {
		return "", fmt.Errorf("loading conversation history: %w", err)
	}

	hits, err := e.store.Query(ctx, u.CollectionName, question, knowledge.WithTopK(e.opts.TopK))
	if err != nil {
		e.logger.Warn("user retrieval failed, answering without context", "user_id", userID, "error", err)
		hits = nil
	}

	answer, err := e.chat.Chat(ctx, contextualPrompt(history, joinContext(hits)), question)
	if err != nil {
		e.logger.Warn("model call failed, using knowledge base fallback", "user_id", userID, "error", err)
		answer = userFallback(hits)
	}

	if err := e.users.AppendMessage(ctx, userID, channel, "user", question); err != nil {
		return "", fmt.Errorf("recording question: %w", err)
	}
	if err := e.users.AppendMessage(ctx, userID, channel, "assistant", answer); err != nil {
		return "", fmt.Errorf("recording answer: %w", err)
	}

	return answer, nil
}

// ClearConversation drops the user's session history for a channel.
func (e *UserEngine) ClearConversation(ctx context.Context, userID, channel string) error {
	return e.users.ClearSession(ctx, userID, channel)
}

// UserStats reports the per-user summary.
func (e *UserEngine) UserStats(ctx context.Context, userID string) (*user.Stats, error) {
	return e.users.Stats(ctx, userID)
}
