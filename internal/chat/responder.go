// Package chat generates replies through a remote OpenAI-compatible
// text-generation endpoint.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/venomvoice/voicecore/internal/config"
)

// Message is one immutable conversation turn.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// Usage is the upstream's token accounting; may be absent.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

var (
	// ErrMissingAPIKey means the bearer credential env var is unset. It is
	// checked at call time, never cached.
	ErrMissingAPIKey = errors.New("chat api key not configured")
	// ErrUpstreamUnavailable covers network failures and non-2xx responses.
	ErrUpstreamUnavailable = errors.New("chat upstream unavailable")
	// ErrUpstreamContract covers responses missing the expected reply field.
	ErrUpstreamContract = errors.New("chat upstream contract violation")
)

// historyLimit caps the turns forwarded upstream; older turns are dropped.
const historyLimit = 10

// Responder builds message lists and delegates generation to the upstream.
// Calls are never retried here; retry policy belongs to the caller.
type Responder struct {
	cfg    config.ChatConfig
	logger *slog.Logger
}

func NewResponder(cfg config.ChatConfig, logger *slog.Logger) *Responder {
	return &Responder{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "chat-responder")),
	}
}

func (r *Responder) client() (*openai.Client, error) {
	apiKey := os.Getenv(r.cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set %s", ErrMissingAPIKey, r.cfg.APIKeyEnv)
	}
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = r.cfg.Endpoint
	return openai.NewClientWithConfig(clientCfg), nil
}

// buildMessages assembles exactly one system message, the most recent
// history turns (at most historyLimit, in original order) and the new user
// message.
func (r *Responder) buildMessages(message string, history []Message, systemPrompt string) []openai.ChatCompletionMessage {
	if systemPrompt == "" {
		systemPrompt = r.cfg.SystemPrompt
	}
	if systemPrompt == "" {
		systemPrompt = config.DefaultSystemPrompt
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	recent := history
	if len(recent) > historyLimit {
		recent = recent[len(recent)-historyLimit:]
	}
	for _, turn := range recent {
		messages = append(messages, openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Content})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})
}

// Respond sends the system prompt, the most recent history turns and the new
// user message upstream, and returns the first generated alternative.
func (r *Responder) Respond(ctx context.Context, message string, history []Message, systemPrompt string, temperature float64, maxTokens int) (string, *Usage, error) {
	client, err := r.client()
	if err != nil {
		return "", nil, err
	}

	if maxTokens <= 0 {
		maxTokens = r.cfg.MaxTokens
	}
	messages := r.buildMessages(message, history, systemPrompt)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		Messages:    messages,
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("%w: response carries no choices", ErrUpstreamContract)
	}

	r.logger.Info("chat completion",
		slog.Int("messages", len(messages)),
		slog.Duration("latency", time.Since(start)),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens))

	usage := &Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// Check probes the credential and upstream connectivity with a minimal
// completion request.
func (r *Responder) Check(ctx context.Context) error {
	client, err := r.client()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a helpful assistant."},
			{Role: openai.ChatMessageRoleUser, Content: "Hello, this is a test message."},
		},
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("%w: response carries no choices", ErrUpstreamContract)
	}
	return nil
}
