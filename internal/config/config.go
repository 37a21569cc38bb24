// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./ragline.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Server: listen address, rate limiting, proxy trust
//   - AI: hosted chat-completion router and embedding model
//   - Slack / Twilio: channel credentials (optional; channels disable
//     themselves when credentials are absent)
//   - Storage: data directory, vector store directory, upload directory
//   - RAG: chunking and retrieval parameters
//   - Research: web scraping limits
//   - Tracing: optional OpenTelemetry export
//
// Security: sensitive values (API tokens, signing secrets) are masked in
// MarshalJSON and String so a logged config never leaks credentials.
//
// Error handling uses sentinel errors checked with errors.Is(), wrapped
// with fmt.Errorf("%w: details", ErrXxx) for context.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIToken indicates the required inference API token is missing.
	ErrMissingAPIToken = errors.New("missing API token")

	// ErrInvalidPort indicates the server port is out of range.
	ErrInvalidPort = errors.New("invalid port")

	// ErrInvalidChunking indicates chunk size/overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates the retrieval top-K value is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidTemperature indicates the sampling temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the completion token budget is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidResearch indicates the web research limits are invalid.
	ErrInvalidResearch = errors.New("invalid research configuration")
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host       string `mapstructure:"host" json:"host"`
	Port       int    `mapstructure:"port" json:"port"`
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)
}

// AIConfig holds settings for the OpenAI-compatible inference router.
type AIConfig struct {
	APIToken       string  `mapstructure:"api_token" json:"api_token"` // SENSITIVE: masked in MarshalJSON
	BaseURL        string  `mapstructure:"base_url" json:"base_url"`
	Model          string  `mapstructure:"model" json:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model" json:"embedding_model"`
	MaxTokens      int     `mapstructure:"max_tokens" json:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature" json:"temperature"`
}

// SlackConfig holds Slack bot credentials. Both values must be set for the
// Slack channel to be enabled.
type SlackConfig struct {
	BotToken      string `mapstructure:"bot_token" json:"bot_token"`           // SENSITIVE: masked in MarshalJSON
	SigningSecret string `mapstructure:"signing_secret" json:"signing_secret"` // SENSITIVE: masked in MarshalJSON
}

// Enabled reports whether Slack credentials are configured.
func (s SlackConfig) Enabled() bool {
	return s.BotToken != "" && s.SigningSecret != ""
}

// TwilioConfig holds telephony credentials. Webhooks work without them;
// they are only required for outbound messaging.
type TwilioConfig struct {
	AccountSID  string `mapstructure:"account_sid" json:"account_sid"`
	AuthToken   string `mapstructure:"auth_token" json:"auth_token"` // SENSITIVE: masked in MarshalJSON
	PhoneNumber string `mapstructure:"phone_number" json:"phone_number"`
}

// StorageConfig holds filesystem layout settings.
type StorageConfig struct {
	DataDir   string `mapstructure:"data_dir" json:"data_dir"`
	ChromaDir string `mapstructure:"chroma_dir" json:"chroma_dir"`
	UploadDir string `mapstructure:"upload_dir" json:"upload_dir"`
}

// RAGConfig holds chunking and retrieval parameters.
type RAGConfig struct {
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`       // words per chunk
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"` // words shared between consecutive chunks
	TopK         int `mapstructure:"top_k" json:"top_k"`
}

// ResearchConfig holds web research limits.
type ResearchConfig struct {
	TimeoutMS   int    `mapstructure:"timeout_ms" json:"timeout_ms"`
	MaxChars    int    `mapstructure:"max_chars" json:"max_chars"`
	Parallelism int    `mapstructure:"parallelism" json:"parallelism"`
	DelayMS     int    `mapstructure:"delay_ms" json:"delay_ms"`
	UserAgent   string `mapstructure:"user_agent" json:"user_agent"`
}

// TracingConfig holds optional OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (tokens, secrets), update MarshalJSON.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" json:"server"`
	AI       AIConfig       `mapstructure:"ai" json:"ai"`
	Slack    SlackConfig    `mapstructure:"slack" json:"slack"`
	Twilio   TwilioConfig   `mapstructure:"twilio" json:"twilio"`
	Storage  StorageConfig  `mapstructure:"storage" json:"storage"`
	RAG      RAGConfig      `mapstructure:"rag" json:"rag"`
	Research ResearchConfig `mapstructure:"research" json:"research"`
	Tracing  TracingConfig  `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("ragline")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Also accept a plain config.yaml before falling back to defaults.
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			if !errors.As(err, &configNotFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			slog.Debug("configuration file not found, using default values",
				"config_names", []string{"ragline.yaml", "config.yaml"})
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.rate_burst", 60)
	v.SetDefault("server.trust_proxy", false)

	// AI defaults (Hugging Face inference router, OpenAI-compatible)
	v.SetDefault("ai.base_url", "https://router.huggingface.co/v1")
	v.SetDefault("ai.model", "openai/gpt-oss-20b:fireworks-ai")
	v.SetDefault("ai.embedding_model", "sentence-transformers/all-MiniLM-L6-v2")
	v.SetDefault("ai.max_tokens", 300)
	v.SetDefault("ai.temperature", 0.7)

	// Storage defaults
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.chroma_dir", "")
	v.SetDefault("storage.upload_dir", "./uploads")

	// RAG defaults
	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.top_k", 5)

	// Research defaults
	v.SetDefault("research.timeout_ms", 10000)
	v.SetDefault("research.max_chars", 10000)
	v.SetDefault("research.parallelism", 2)
	v.SetDefault("research.delay_ms", 1000)
	v.SetDefault("research.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.agent_host", "localhost:4318")
	v.SetDefault("tracing.service_name", "ragline")
	v.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
// Secrets and deployment-specific values only; everything else comes from
// the config file or defaults.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("server.host", "RAGLINE_HOST")
	mustBind("server.port", "PORT")
	mustBind("server.rate_burst", "RAGLINE_RATE_BURST")
	mustBind("server.trust_proxy", "RAGLINE_TRUST_PROXY")

	mustBind("ai.api_token", "HUGGINGFACE_API_TOKEN")
	mustBind("ai.base_url", "HUGGINGFACE_BASE_URL")
	mustBind("ai.model", "HUGGINGFACE_MODEL")
	mustBind("ai.embedding_model", "EMBEDDING_MODEL")

	mustBind("slack.bot_token", "SLACK_BOT_TOKEN")
	mustBind("slack.signing_secret", "SLACK_SIGNING_SECRET")

	mustBind("twilio.account_sid", "TWILIO_ACCOUNT_SID")
	mustBind("twilio.auth_token", "TWILIO_AUTH_TOKEN")
	mustBind("twilio.phone_number", "TWILIO_PHONE_NUMBER")

	mustBind("storage.data_dir", "RAGLINE_DATA_DIR")
	mustBind("storage.chroma_dir", "CHROMA_PERSIST_DIRECTORY")
	mustBind("storage.upload_dir", "UPLOAD_DIRECTORY")

	mustBind("tracing.enabled", "RAGLINE_TRACING")
	mustBind("tracing.agent_host", "OTEL_AGENT_HOST")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid accidental substring matches against
// real secret material.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked; longer secrets keep the
// first and last two characters for debug utility.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - AI.APIToken
//   - Slack.BotToken, Slack.SigningSecret
//   - Twilio.AuthToken
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.AI.APIToken = maskSecret(a.AI.APIToken)
	a.Slack.BotToken = maskSecret(a.Slack.BotToken)
	a.Slack.SigningSecret = maskSecret(a.Slack.SigningSecret)
	a.Twilio.AuthToken = maskSecret(a.Twilio.AuthToken)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// Addr returns the host:port pair the HTTP listener binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
