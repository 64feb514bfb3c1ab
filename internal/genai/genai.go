// Package genai provides the LLM-backed dialogue capability using the OpenAI and Anthropic APIs.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// Provider names used for routing and metrics.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Defaults applied when options leave a setting unset.
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	DefaultTemperature    = 0.7
	DefaultMaxTokens      = 2000
)

var (
	// ErrNoChoicesReturned is returned when the OpenAI API answers without choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("empty response from provider")
	// ErrMissingAPIKey is returned when a client is created without credentials.
	ErrMissingAPIKey = errors.New("API key not set")
)

// Provider sends one dialogue turn to an LLM and returns its raw text reply.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req models.DialogueRequest) (string, error)
}

// Option configures a provider client.
type Option func(*clientConfig)

type clientConfig struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) { c.apiKey = key }
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *clientConfig) { c.model = model }
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *clientConfig) { c.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(c *clientConfig) { c.maxTokens = n }
}

// WithDebugMode writes every request and response under stateDir/debug.
func WithDebugMode(enabled bool, stateDir string) Option {
	return func(c *clientConfig) {
		c.debugMode = enabled
		c.stateDir = stateDir
	}
}

func newClientConfig(defaultModel string, opts []Option) clientConfig {
	cfg := clientConfig{
		model:       defaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Client wraps the OpenAI chat completion service in JSON mode.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
}

// NewClient initializes an OpenAI client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := newClientConfig(DefaultOpenAIModel, opts)
	if cfg.apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("OpenAI client created", "model", cfg.model, "baseURL", cfg.baseURL, "debugMode", cfg.debugMode)
	return &Client{
		chat:        completionsAdapter{svc: &cli.Chat.Completions},
		model:       cfg.model,
		temperature: cfg.temperature,
		maxTokens:   cfg.maxTokens,
		debugMode:   cfg.debugMode,
		stateDir:    cfg.stateDir,
	}, nil
}

// Name implements Provider.
func (c *Client) Name() string { return ProviderOpenAI }

// Complete implements Provider. The reply is requested as a JSON object.
func (c *Client) Complete(ctx context.Context, req models.DialogueRequest) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(req.SystemPrompt)}
	for _, msg := range req.History {
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.UserText))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(int64(c.maxTokens)),
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("OpenAI Complete failed", "sessionID", req.SessionID, "model", c.model, "error", err)
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	if c.debugMode {
		writeDebugLog(c.stateDir, "OpenAI.Complete", c.model, req, content)
	}
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
