// Package ai wraps the OpenAI-compatible inference router used for chat
// completions and sentence embeddings.
//
// The Hugging Face router speaks the OpenAI wire protocol, so the official
// openai-go client is pointed at its base URL. One Client serves both the
// chat model and the embedding model; callers decide how to degrade when a
// call fails (see internal/rag fallback behavior).
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ragline/ragline/internal/log"
)

// ErrEmptyCompletion indicates the model returned no usable content.
// Callers treat this the same as a transport failure and fall back.
var ErrEmptyCompletion = errors.New("empty completion")

// ChatClient is the chat-completion surface consumed by the query engines.
// Implemented by *Client in production and by scripted fakes in tests.
type ChatClient interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// Embedder maps text to a fixed-length vector. The same embedder must be
// used for ingestion and retrieval or similarity scores are meaningless.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config configures the inference client.
type Config struct {
	BaseURL        string
	APIToken       string
	Model          string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float64
}

// Client calls the hosted router for chat completions and embeddings.
type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	maxTokens      int64
	temperature    float64
	logger         log.Logger
}

// NewClient creates a client for the configured router.
func NewClient(cfg Config, logger log.Logger) *Client {
	opts := []option.RequestOption{option.WithBaseURL(cfg.BaseURL)}
	if cfg.APIToken != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIToken))
	}

	client := openai.NewClient(opts...)
	return &Client{
		client:         &client,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		maxTokens:      int64(cfg.MaxTokens),
		temperature:    cfg.Temperature,
		logger:         logger,
	}
}

// Chat sends one completion request with a system instruction and a user
// message. Exactly one request per call; no retry. Returns
// ErrEmptyCompletion when the router answers without usable content so the
// caller can take its fallback path.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       c.model,
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrEmptyCompletion)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: whitespace-only content", ErrEmptyCompletion)
	}

	return content, nil
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: c.embeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("embedding: no vector returned")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}

	c.logger.Debug("embedded text", "chars", len(text), "dimensions", len(vec))
	return vec, nil
}
