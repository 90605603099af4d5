package config

import "time"

// Default values shared by ApplyDefaults and callers that build configs in code.
const (
	DefaultWindow           = 10
	DefaultMaxTurns         = 20
	DefaultMaxMessageLength = 2000
	DefaultPromptBudget     = 12000
	DefaultRetrievalK       = 4
	DefaultRetrievalTimeout = 5 * time.Second
	DefaultLLMTimeout       = 30 * time.Second

	// requestTimeoutSlack covers validation, prompt assembly and the session append
	// on top of the answer's retrieval and generation timeouts.
	requestTimeoutSlack = 15 * time.Second
)

// DefaultExtensions are the knowledge base file types indexed when none are configured.
var DefaultExtensions = []string{".txt", ".md", ".csv", ".pdf", ".docx", ".xlsx", ".rtf", ".odt"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/knowledge.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "./data/vectorstore/index.bin"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "./data/keyword"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		if cfg.Embedding.Provider == "openai" {
			cfg.Embedding.Dimensions = 1536
		} else {
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		if cfg.LLM.Provider == "anthropic" {
			cfg.LLM.Model = "claude-3-5-sonnet-latest"
		} else {
			cfg.LLM.Model = "gpt-4-turbo-preview"
		}
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1000
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = DefaultLLMTimeout
	}

	if cfg.Conversation.Window == 0 {
		cfg.Conversation.Window = DefaultWindow
	}
	if cfg.Conversation.MaxMessageLength == 0 {
		cfg.Conversation.MaxMessageLength = DefaultMaxMessageLength
	}
	if cfg.Conversation.PromptBudget == 0 {
		cfg.Conversation.PromptBudget = DefaultPromptBudget
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = DefaultRetrievalK
	}
	if cfg.Retrieval.Timeout == 0 {
		cfg.Retrieval.Timeout = DefaultRetrievalTimeout
	}

	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = cfg.AnswerDeadline() + requestTimeoutSlack
	}

	if cfg.Session.MaxTurns == 0 {
		cfg.Session.MaxTurns = DefaultMaxTurns
		if cfg.Session.MaxTurns < cfg.Conversation.Window {
			cfg.Session.MaxTurns = cfg.Conversation.Window
		}
	}
	if cfg.Session.MaxSessions == 0 {
		cfg.Session.MaxSessions = 10000
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.Shards == 0 {
		cfg.Session.Shards = 32
	}

	if cfg.Knowledge.Path == "" {
		cfg.Knowledge.Path = "./data/knowledge_base"
	}
	if cfg.Knowledge.Extensions == nil {
		cfg.Knowledge.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Knowledge.ChunkSize == 0 {
		cfg.Knowledge.ChunkSize = 1000
	}
	if cfg.Knowledge.ChunkOverlap == 0 {
		cfg.Knowledge.ChunkOverlap = 200
	}
	if cfg.Knowledge.Workers == 0 {
		cfg.Knowledge.Workers = 4
	}

	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 60
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "X-API-Key"
	}
	if cfg.Business.CompanyName == "" {
		cfg.Business.CompanyName = "Your Company"
	}
	if cfg.Business.SupportEmail == "" {
		cfg.Business.SupportEmail = "support@yourcompany.com"
	}
	if cfg.Business.BusinessHours == "" {
		cfg.Business.BusinessHours = "Monday-Friday, 9 AM - 5 PM EST"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
