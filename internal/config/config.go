// Package config provides configuration loading and structs for the otasuke server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables holding secrets. They are never read from the YAML file.
const (
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvAPIKeys         = "OTASUKE_API_KEYS"
)

// Config holds all configuration for the application.
type Config struct {
	Debug        bool               `yaml:"debug"`
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Vector       VectorConfig       `yaml:"vector"`
	LLM          LLMConfig          `yaml:"llm"`
	Conversation ConversationConfig `yaml:"conversation"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Session      SessionConfig      `yaml:"session"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Auth         AuthConfig         `yaml:"auth"`
	Business     BusinessConfig     `yaml:"business"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"`
}

// StorageConfig holds paths for the knowledge database and indices.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	VectorIndexPath  string `yaml:"vector_index_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	APIKey     string `yaml:"-"`
}

// VectorConfig selects the vector index implementation.
type VectorConfig struct {
	IndexType string `yaml:"index_type"`
}

// LLMConfig selects and tunes the language model provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     *int          `yaml:"retries"`
	APIKey      string        `yaml:"-"`
}

// RetriesOrDefault returns the number of extra generation attempts; defaults to 1 when unset.
func (l *LLMConfig) RetriesOrDefault() int {
	if l.Retries != nil {
		return *l.Retries
	}
	return 1
}

// ConversationConfig bounds what the pipeline puts into a prompt.
type ConversationConfig struct {
	Window           int `yaml:"window"`
	MaxMessageLength int `yaml:"max_message_length"`
	PromptBudget     int `yaml:"prompt_budget"`
}

// RetrievalConfig tunes knowledge retrieval for each answer.
type RetrievalConfig struct {
	K                      int           `yaml:"k"`
	Timeout                time.Duration `yaml:"timeout"`
	IncludeRecentUserTurns bool          `yaml:"include_recent_user_turns"`
}

// SessionConfig bounds the in-memory session store.
type SessionConfig struct {
	MaxTurns    int           `yaml:"max_turns"`
	MaxSessions int           `yaml:"max_sessions"`
	TTL         time.Duration `yaml:"ttl"`
	Shards      int           `yaml:"shards"`
}

// KnowledgeConfig holds knowledge base ingestion settings.
type KnowledgeConfig struct {
	Path         string   `yaml:"path"`
	Extensions   []string `yaml:"extensions"`
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Watch        bool     `yaml:"watch"`
	SeedSamples  *bool    `yaml:"seed_samples"`
	Workers      int      `yaml:"workers"`
}

// SeedSamplesOrDefault returns whether to write sample documents into an empty
// knowledge directory; defaults to true when unset.
func (k *KnowledgeConfig) SeedSamplesOrDefault() bool {
	if k.SeedSamples != nil {
		return *k.SeedSamples
	}
	return true
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	Enabled           *bool `yaml:"enabled"`
	RequestsPerMinute int   `yaml:"requests_per_minute"`
}

// EnabledOrDefault returns whether rate limiting is on; defaults to true when unset.
func (r *RateLimitConfig) EnabledOrDefault() bool {
	if r.Enabled != nil {
		return *r.Enabled
	}
	return true
}

// AuthConfig holds API key settings. Keys come from OTASUKE_API_KEYS.
type AuthConfig struct {
	RequireAPIKey bool     `yaml:"require_api_key"`
	Header        string   `yaml:"header"`
	APIKeys       []string `yaml:"-"`
}

// BusinessConfig holds the company details rendered into the assistant persona.
type BusinessConfig struct {
	CompanyName   string `yaml:"company_name"`
	SupportEmail  string `yaml:"support_email"`
	BusinessHours string `yaml:"business_hours"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads and parses the config file at path, expands paths, applies defaults,
// reads secrets from the environment, and validates the result.
// A .env file next to the config file is loaded first when present.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	loadDotEnv(filepath.Join(configDir, ".env"))

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Knowledge.Path = expandPath(cfg.Knowledge.Path, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Logging.File != "" {
		cfg.Logging.File = expandPath(cfg.Logging.File, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path. Secrets are never written.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// loadDotEnv loads variables from path without overriding ones already set.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// ApplyEnv copies secrets from the environment into cfg.
func ApplyEnv(cfg *Config) {
	switch cfg.LLM.Provider {
	case "anthropic":
		cfg.LLM.APIKey = os.Getenv(EnvAnthropicAPIKey)
	default:
		cfg.LLM.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	cfg.Embedding.APIKey = os.Getenv(EnvOpenAIAPIKey)
	cfg.Auth.APIKeys = splitList(os.Getenv(EnvAPIKeys))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AnswerDeadline is the longest one answer can take: the retrieval timeout plus a
// full generation timeout for every attempt.
func (c *Config) AnswerDeadline() time.Duration {
	attempts := 1 + c.LLM.RetriesOrDefault()
	if attempts < 1 {
		attempts = 1
	}
	return c.Retrieval.Timeout + time.Duration(attempts)*c.LLM.Timeout
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.Session.MaxTurns < c.Conversation.Window {
		errs = append(errs, fmt.Errorf("session.max_turns (%d) must be >= conversation.window (%d)",
			c.Session.MaxTurns, c.Conversation.Window))
	}
	if c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		errs = append(errs, fmt.Errorf("knowledge.chunk_overlap (%d) must be < knowledge.chunk_size (%d)",
			c.Knowledge.ChunkOverlap, c.Knowledge.ChunkSize))
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q (supported: openai, anthropic)", c.LLM.Provider))
	}
	switch c.Embedding.Provider {
	case "openai", "onnx", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.provider %q (supported: openai, onnx, mock)", c.Embedding.Provider))
	}
	if c.LLM.RetriesOrDefault() < 0 {
		errs = append(errs, errors.New("llm.retries must not be negative"))
	}
	if c.Server.RequestTimeout > 0 && c.Server.RequestTimeout < c.AnswerDeadline() {
		errs = append(errs, fmt.Errorf("server.request_timeout (%s) must be >= retrieval.timeout + (1+llm.retries) * llm.timeout (%s)",
			c.Server.RequestTimeout, c.AnswerDeadline()))
	}
	if c.Auth.RequireAPIKey && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth.require_api_key is set but %s is empty", EnvAPIKeys))
	}
	return errors.Join(errs...)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
