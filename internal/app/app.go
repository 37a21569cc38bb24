// Package app wires the application together: storage, inference,
// retrieval engines, channel adapters, and the HTTP surface.
//
// Setup owns the filesystem layout under the data directory and takes an
// exclusive lock on it, so two instances never share the same vector
// store and user database.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/slack-go/slack"

	"github.com/ragline/ragline/internal/ai"
	"github.com/ragline/ragline/internal/api"
	"github.com/ragline/ragline/internal/channel"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/knowledge"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/observability"
	"github.com/ragline/ragline/internal/rag"
	"github.com/ragline/ragline/internal/research"
	"github.com/ragline/ragline/internal/security"
	"github.com/ragline/ragline/internal/user"
)

// ErrAlreadyRunning indicates another process holds the data directory
// lock.
var ErrAlreadyRunning = errors.New("data directory locked by another instance")

// lockFile is the name of the instance lock inside the data directory.
const lockFile = "ragline.lock"

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger log.Logger

	Knowledge  *knowledge.Store
	Users      *user.Store
	Engine     *rag.Engine
	UserEngine *rag.UserEngine
	Researcher *research.Researcher
	Server     *api.Server

	lock            *flock.Flock
	shutdownTracing func(context.Context) error
}

// Setup builds the application from configuration. On success the caller
// owns the returned App and must Close it; on failure everything opened
// so far is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	dataDir := cfg.Storage.DataDir
	chromaDir := cfg.Storage.ChromaDir
	if chromaDir == "" {
		chromaDir = filepath.Join(dataDir, "chroma")
	}

	for _, dir := range []string{dataDir, chromaDir, cfg.Storage.UploadDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	lock := flock.New(filepath.Join(dataDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking data directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, dataDir)
	}

	a := &App{Config: cfg, Logger: logger, lock: lock}
	if err := a.setup(ctx, chromaDir); err != nil {
		closeErr := a.Close(context.Background())
		return nil, errors.Join(err, closeErr)
	}
	return a, nil
}

func (a *App) setup(ctx context.Context, chromaDir string) error {
	cfg := a.Config

	client := ai.NewClient(ai.Config{
		BaseURL:        cfg.AI.BaseURL,
		APIToken:       cfg.AI.APIToken,
		Model:          cfg.AI.Model,
		EmbeddingModel: cfg.AI.EmbeddingModel,
		MaxTokens:      cfg.AI.MaxTokens,
		Temperature:    cfg.AI.Temperature,
	}, a.Logger)

	store, err := knowledge.NewPersistent(chromaDir, client, a.Logger)
	if err != nil {
		return fmt.Errorf("opening knowledge store: %w", err)
	}
	a.Knowledge = store

	users, err := user.Open(filepath.Join(cfg.Storage.DataDir, "users.db"), store, a.Logger)
	if err != nil {
		return fmt.Errorf("opening user registry: %w", err)
	}
	a.Users = users

	opts := rag.Options{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		TopK:         cfg.RAG.TopK,
	}
	engine, err := rag.NewEngine(store, client, a.Logger, opts)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	a.Engine = engine
	a.UserEngine = rag.NewUserEngine(store, client, users, a.Logger, opts)

	validator := security.NewURLValidator()
	timeout := time.Duration(cfg.Research.TimeoutMS) * time.Millisecond
	scraper := research.NewScraper(validator, research.ScraperConfig{
		Timeout:     timeout,
		MaxChars:    cfg.Research.MaxChars,
		UserAgent:   cfg.Research.UserAgent,
		Parallelism: cfg.Research.Parallelism,
		Delay:       time.Duration(cfg.Research.DelayMS) * time.Millisecond,
	}, a.Logger)
	httpClient := validator.Client(timeout)
	a.Researcher = research.NewResearcher(
		scraper,
		research.NewDuckDuckGo(httpClient, ""),
		research.NewWikipedia(httpClient, ""),
		engine,
		a.Logger,
		"",
	)

	messaging := channel.NewMessagingBot(users, a.UserEngine, a.Logger)
	voice := channel.NewVoiceAgent(engine, a.Logger)

	var slackBot api.SlackEvents
	if cfg.Slack.Enabled() {
		slackBot = channel.NewSlackBot(slack.New(cfg.Slack.BotToken), engine, a.Logger)
		a.Logger.Info("slack channel enabled")
	}

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Enabled:     cfg.Tracing.Enabled,
		AgentHost:   cfg.Tracing.AgentHost,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	a.shutdownTracing = shutdownTracing

	a.Server = api.NewServer(api.Config{
		UploadDir:          cfg.Storage.UploadDir,
		SlackSigningSecret: cfg.Slack.SigningSecret,
		RateLimitBurst:     cfg.Server.RateBurst,
	}, a.Logger, engine, a.Researcher, messaging, voice, slackBot)

	return nil
}

// Handler returns the HTTP handler, wrapped with tracing when enabled.
func (a *App) Handler() http.Handler {
	return observability.Middleware(a.Config.Tracing.Enabled, a.Server.Handler())
}

// Close releases all resources: flushes pending spans, closes the user
// database, and releases the instance lock.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down tracing: %w", err))
		}
	}
	if a.Users != nil {
		if err := a.Users.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing user registry: %w", err))
		}
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("releasing data directory lock: %w", err))
		}
	}

	return errors.Join(errs...)
}
