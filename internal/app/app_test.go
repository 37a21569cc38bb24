package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dataDir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8000},
		AI: config.AIConfig{
			BaseURL:        "http://127.0.0.1:1",
			APIToken:       "test-token",
			Model:          "test-model",
			EmbeddingModel: "test-embedder",
			MaxTokens:      300,
			Temperature:    0.7,
		},
		Storage: config.StorageConfig{
			DataDir:   dataDir,
			UploadDir: filepath.Join(dataDir, "uploads"),
		},
		RAG:      config.RAGConfig{ChunkSize: 1000, ChunkOverlap: 200, TopK: 5},
		Research: config.ResearchConfig{TimeoutMS: 1000, MaxChars: 10000},
	}
}

func TestSetup(t *testing.T) {
	cfg := testConfig(t)

	a, err := Setup(context.Background(), cfg, log.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	require.NotNil(t, a.Engine)
	require.NotNil(t, a.UserEngine)
	require.NotNil(t, a.Researcher)
	require.NotNil(t, a.Server)

	// The data directory layout is created on setup.
	for _, dir := range []string{
		filepath.Join(cfg.Storage.DataDir, "chroma"),
		cfg.Storage.UploadDir,
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.FileExists(t, filepath.Join(cfg.Storage.DataDir, "users.db"))
}

func TestSetup_HandlerServesHealth(t *testing.T) {
	a, err := Setup(context.Background(), testConfig(t), log.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "enabled", body["whatsapp_bot"])
	assert.Equal(t, "enabled", body["voice_agent"])
	// No Slack credentials configured.
	assert.Equal(t, "disabled", body["slack_bot"])
}

func TestSetup_RefusesSecondInstance(t *testing.T) {
	cfg := testConfig(t)

	first, err := Setup(context.Background(), cfg, log.NewNop())
	require.NoError(t, err)

	_, err = Setup(context.Background(), cfg, log.NewNop())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	// Releasing the lock makes the data directory usable again.
	require.NoError(t, first.Close(context.Background()))

	second, err := Setup(context.Background(), cfg, log.NewNop())
	require.NoError(t, err)
	require.NoError(t, second.Close(context.Background()))
}
