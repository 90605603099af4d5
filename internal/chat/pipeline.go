// Package chat answers customer messages: it reads the session transcript,
// retrieves knowledge, asks the model and records the exchange.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/otasuke/internal/config"
	"github.com/hyperjump/otasuke/internal/llm"
	"github.com/hyperjump/otasuke/internal/models"
	"github.com/hyperjump/otasuke/internal/prompt"
	"github.com/hyperjump/otasuke/pkg/utils"
	"go.uber.org/zap"
)

// MaxSessionIDLength is the longest accepted session id, in bytes.
const MaxSessionIDLength = 128

// Retriever finds knowledge chunks for a query.
type Retriever interface {
	Query(ctx context.Context, text string, k int) (models.RetrievalResult, error)
}

// Memory stores session transcripts.
type Memory interface {
	Get(id string) []models.Turn
	AppendExchange(id string, user, assistant models.Turn) (int, int)
	Clear(id string) bool
	List() []string
}

// Request is one incoming user message.
type Request struct {
	SessionID string
	Message   string
	// Metadata is logged but never stored.
	Metadata map[string]interface{}
}

// Pipeline answers messages. It holds no lock across retrieval or generation, so
// concurrent answers only contend on the session store's shard locks.
type Pipeline struct {
	memory    Memory
	retriever Retriever
	generator llm.Generator
	logger    *zap.Logger
	now       func() time.Time

	persona           string
	window            int
	maxMessageLength  int
	promptBudget      int
	retrievalK        int
	retrievalTimeout  time.Duration
	includeRecentUser bool
	generationTimeout time.Duration
	retries           int
	maxTokens         int
	temperature       float64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithPersona sets the preamble that opens every prompt.
func WithPersona(persona string) Option {
	return func(p *Pipeline) { p.persona = persona }
}

// WithWindow sets N, the number of most recent turns given to the model.
func WithWindow(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.window = n
		}
	}
}

// WithMaxMessageLength sets the longest accepted message, in characters.
func WithMaxMessageLength(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxMessageLength = n
		}
	}
}

// WithPromptBudget sets the prompt size limit in characters. Zero disables truncation.
func WithPromptBudget(n int) Option {
	return func(p *Pipeline) { p.promptBudget = n }
}

// WithRetrieval sets how many chunks to retrieve and how long to wait for them.
func WithRetrieval(k int, timeout time.Duration) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.retrievalK = k
		}
		if timeout > 0 {
			p.retrievalTimeout = timeout
		}
	}
}

// WithRecentUserTurnsInQuery adds the user turns of the window to the retrieval query,
// so follow-up questions find the same knowledge as the question they follow.
func WithRecentUserTurnsInQuery(on bool) Option {
	return func(p *Pipeline) { p.includeRecentUser = on }
}

// WithGeneration sets the per-attempt timeout and the number of extra attempts.
func WithGeneration(timeout time.Duration, retries int) Option {
	return func(p *Pipeline) {
		if timeout > 0 {
			p.generationTimeout = timeout
		}
		if retries >= 0 {
			p.retries = retries
		}
	}
}

// WithSampling sets max tokens and temperature passed to the model.
func WithSampling(maxTokens int, temperature float64) Option {
	return func(p *Pipeline) {
		p.maxTokens = maxTokens
		p.temperature = temperature
	}
}

// ConfigOptions translates the loaded configuration into pipeline options.
func ConfigOptions(cfg *config.Config) []Option {
	return []Option{
		WithPersona(prompt.Persona(cfg.Business)),
		WithWindow(cfg.Conversation.Window),
		WithMaxMessageLength(cfg.Conversation.MaxMessageLength),
		WithPromptBudget(cfg.Conversation.PromptBudget),
		WithRetrieval(cfg.Retrieval.K, cfg.Retrieval.Timeout),
		WithRecentUserTurnsInQuery(cfg.Retrieval.IncludeRecentUserTurns),
		WithGeneration(cfg.LLM.Timeout, cfg.LLM.RetriesOrDefault()),
		WithSampling(cfg.LLM.MaxTokens, cfg.LLM.Temperature),
	}
}

// NewPipeline creates a Pipeline. A nil retriever answers every message ungrounded.
func NewPipeline(memory Memory, retriever Retriever, generator llm.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		memory:            memory,
		retriever:         retriever,
		generator:         generator,
		logger:            zap.NewNop(),
		now:               time.Now,
		persona:           prompt.Persona(config.BusinessConfig{}),
		window:            config.DefaultWindow,
		maxMessageLength:  config.DefaultMaxMessageLength,
		promptBudget:      config.DefaultPromptBudget,
		retrievalK:        config.DefaultRetrievalK,
		retrievalTimeout:  config.DefaultRetrievalTimeout,
		generationTimeout: config.DefaultLLMTimeout,
		retries:           1,
		maxTokens:         1000,
		temperature:       0.7,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Answer runs one exchange. On success the user message and the reply are appended
// to the session together; on failure the session is unchanged. Only ErrInvalidInput
// and ErrGenerationFailed are returned.
func (p *Pipeline) Answer(ctx context.Context, req Request) (*models.AnswerRecord, error) {
	received := p.now()
	message, err := p.validate(req)
	if err != nil {
		return nil, err
	}
	sid := req.SessionID
	p.trace(sid, "validated", zap.Int("message_length", utils.RuneLen(message)), zap.Any("metadata", req.Metadata))

	window := lastTurns(p.memory.Get(sid), p.window)
	p.trace(sid, "context_loaded", zap.Int("turns", len(window)))

	strategy := p.retrieve(ctx, sid, p.retrievalQuery(window, message))

	pr := prompt.Assemble(prompt.Input{
		Preamble: strategy.preamble(p.persona),
		Chunks:   strategy.chunks(),
		History:  window,
		Message:  message,
		Budget:   p.promptBudget,
	})
	p.trace(sid, "prompt_assembled",
		zap.Int("size", pr.Size), zap.Int("chunks", len(pr.Chunks)), zap.Int("turns", len(pr.History)))

	text, err := p.generate(ctx, sid, llm.Request{
		System:      pr.System,
		Messages:    pr.Messages,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		p.logger.Error("generation failed", zap.String("session_id", sid), zap.Error(err))
		return nil, err
	}

	citations := pr.Citations()
	answered := p.now()
	_, turnIndex := p.memory.AppendExchange(sid,
		models.Turn{Role: models.RoleUser, Text: message, Timestamp: received},
		models.Turn{Role: models.RoleAssistant, Text: text, Timestamp: answered, Citations: citations})
	p.trace(sid, "memory_updated", zap.Int("turn_index", turnIndex))

	return &models.AnswerRecord{
		Text:      text,
		Citations: citations,
		SessionID: sid,
		TurnIndex: turnIndex,
		Grounded:  strategy.grounded(),
		Timestamp: answered,
	}, nil
}

func (p *Pipeline) validate(req Request) (string, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return "", fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	if len(req.SessionID) > MaxSessionIDLength {
		return "", fmt.Errorf("%w: session id longer than %d bytes", ErrInvalidInput, MaxSessionIDLength)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if n := utils.RuneLen(message); n > p.maxMessageLength {
		return "", fmt.Errorf("%w: message has %d characters, limit is %d", ErrInvalidInput, n, p.maxMessageLength)
	}
	return message, nil
}

func lastTurns(turns []models.Turn, n int) []models.Turn {
	if len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}

func (p *Pipeline) retrievalQuery(window []models.Turn, message string) string {
	if !p.includeRecentUser {
		return message
	}
	var parts []string
	for _, t := range window {
		if t.Role == models.RoleUser {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(append(parts, message), "\n")
}

func (p *Pipeline) retrieve(ctx context.Context, sid, query string) answerStrategy {
	p.trace(sid, "retrieving", zap.Int("k", p.retrievalK))
	if p.retriever == nil {
		p.trace(sid, "degraded", zap.Error(errNoKnowledgeBase))
		return degradedStrategy{}
	}
	rctx, cancel := context.WithTimeout(ctx, p.retrievalTimeout)
	defer cancel()
	result, err := p.retriever.Query(rctx, query, p.retrievalK)
	if err != nil {
		p.logger.Warn("retrieval unavailable, answering without knowledge base",
			zap.String("session_id", sid), zap.Error(err))
		return degradedStrategy{}
	}
	return groundedStrategy{result: result}
}

// generate calls the model with a fresh timeout per attempt. Failed attempts are
// retried with the same request unless the caller's context is done.
func (p *Pipeline) generate(ctx context.Context, sid string, req llm.Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				break
			}
			p.trace(sid, "retry", zap.Int("attempt", attempt+1), zap.Error(lastErr))
		}
		p.trace(sid, "generating", zap.Int("attempt", attempt+1))
		actx, cancel := context.WithTimeout(ctx, p.generationTimeout)
		text, err := p.generator.Generate(actx, req)
		cancel()
		if err == nil && strings.TrimSpace(text) == "" {
			err = llm.ErrEmptyResponse
		}
		if err == nil {
			p.trace(sid, "success", zap.Int("attempt", attempt+1))
			return strings.TrimSpace(text), nil
		}
		lastErr = err
	}
	p.trace(sid, "failed")
	return "", fmt.Errorf("%w: %w", ErrGenerationFailed, lastErr)
}

func (p *Pipeline) trace(sid, state string, fields ...zap.Field) {
	if ce := p.logger.Check(zap.DebugLevel, "answer state"); ce != nil {
		ce.Write(append([]zap.Field{zap.String("session_id", sid), zap.String("state", state)}, fields...)...)
	}
}

// History returns the session transcript, oldest turn first.
func (p *Pipeline) History(sessionID string) []models.Turn {
	return p.memory.Get(sessionID)
}

// Clear forgets the session and reports whether it existed.
func (p *Pipeline) Clear(sessionID string) bool {
	return p.memory.Clear(sessionID)
}

// Sessions lists the live session ids.
func (p *Pipeline) Sessions() []string {
	return p.memory.List()
}
