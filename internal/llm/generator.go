// Package llm adapts hosted chat models to a single Generator interface.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/otasuke/internal/config"
)

// ErrMissingAPIKey is returned when a provider is configured without its key.
var ErrMissingAPIKey = errors.New("missing API key")

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("model returned no text")

// Role of a Message in the conversation sent to the model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation context.
type Message struct {
	Role    Role
	Content string
}

// Request is everything a Generator needs for one completion. Messages are in
// chronological order and end with the user message to answer.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Generator produces a reply for a request. Implementations do not retry.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// New builds the generator selected by cfg.Provider.
func New(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "anthropic":
		return NewAnthropicGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: openai, anthropic)", cfg.Provider)
	}
}
