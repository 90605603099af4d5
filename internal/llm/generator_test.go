package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/otasuke/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var conversation = Request{
	System: "You are a helpful support assistant.",
	Messages: []Message{
		{Role: RoleUser, Content: "Hi"},
		{Role: RoleAssistant, Content: "Hello! How can I help?"},
		{Role: RoleUser, Content: "What are your hours?"},
	},
	MaxTokens:   200,
	Temperature: 0.2,
}

func TestOpenAIGenerator(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  We are open 9-5.  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator("sk-test", srv.URL+"/v1", "gpt-test")
	require.NoError(t, err)
	text, err := g.Generate(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, "We are open 9-5.", text)
	assert.Equal(t, "openai/gpt-test", g.Name())

	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, 200, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "What are your hours?", got.Messages[3].Content)
}

func TestOpenAIGenerator_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
		}))
		defer srv.Close()
		g, err := NewOpenAIGenerator("sk-test", srv.URL+"/v1", "gpt-test")
		require.NoError(t, err)
		_, err = g.Generate(context.Background(), conversation)
		assert.Error(t, err)
	})
	t.Run("empty content", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":""}}]}`))
		}))
		defer srv.Close()
		g, err := NewOpenAIGenerator("sk-test", srv.URL+"/v1", "gpt-test")
		require.NoError(t, err)
		_, err = g.Generate(context.Background(), conversation)
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
	t.Run("missing key", func(t *testing.T) {
		_, err := NewOpenAIGenerator("", "", "")
		assert.ErrorIs(t, err, ErrMissingAPIKey)
	})
}

func TestAnthropicGenerator(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",` +
			`"content":[{"type":"text","text":"We are open"},{"type":"text","text":"9-5."}],` +
			`"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":4}}`))
	}))
	defer srv.Close()

	g, err := NewAnthropicGenerator("ak-test", srv.URL, "claude-test")
	require.NoError(t, err)
	text, err := g.Generate(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, "We are open\n9-5.", text)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, 200, got.MaxTokens)
	require.Len(t, got.System, 1)
	assert.Equal(t, conversation.System, got.System[0].Text)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "assistant", got.Messages[1].Role)
}

func TestAnthropicGenerator_ServerErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`))
	}))
	defer srv.Close()

	g, err := NewAnthropicGenerator("ak-test", srv.URL, "claude-test")
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), conversation)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNew(t *testing.T) {
	g, err := New(config.LLMConfig{Provider: "openai", APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, g)

	g, err = New(config.LLMConfig{Provider: "anthropic", APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicGenerator{}, g)

	_, err = New(config.LLMConfig{Provider: "anthropic"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(config.LLMConfig{Provider: "llama", APIKey: "k"})
	assert.Error(t, err)
}
