package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// jsonContract is appended to the system prompt because the Messages API has no JSON mode.
const jsonContract = `

CRITICAL: You MUST respond with valid JSON only. No markdown, no explanations outside JSON.

Required JSON structure:
{
    "next_question": "string - REQUIRED, never null",
    "extracted_data": {},
    "confidence": {},
    "needs_clarification": false,
    "clarification_question": null,
    "stage_complete": false,
    "reasoning": "string - explain your thinking"
}

Rules:
- next_question MUST always be a non-empty string
- If you have nothing to ask, use "Is there anything else you'd like to add?"
- Never use null for next_question
- Always provide reasoning field`

type messageService interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicClient wraps the Anthropic Messages API.
type AnthropicClient struct {
	messages    messageService
	model       string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
}

// NewAnthropicClient initializes an Anthropic client. An API key is required.
func NewAnthropicClient(opts ...Option) (*AnthropicClient, error) {
	cfg := newClientConfig(DefaultAnthropicModel, opts)
	if cfg.apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	cli := anthropic.NewClient(reqOpts...)
	slog.Debug("Anthropic client created", "model", cfg.model, "baseURL", cfg.baseURL, "debugMode", cfg.debugMode)
	return &AnthropicClient{
		messages:    &cli.Messages,
		model:       cfg.model,
		temperature: cfg.temperature,
		maxTokens:   cfg.maxTokens,
		debugMode:   cfg.debugMode,
		stateDir:    cfg.stateDir,
	}, nil
}

// Name implements Provider.
func (c *AnthropicClient) Name() string { return ProviderAnthropic }

// Complete implements Provider.
func (c *AnthropicClient) Complete(ctx context.Context, req models.DialogueRequest) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, msg := range req.History {
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case models.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserText)))

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.maxTokens),
		System:      []anthropic.TextBlockParam{{Text: req.SystemPrompt + jsonContract}},
		Messages:    messages,
		Temperature: anthropic.Float(c.temperature),
	}

	msg, err := c.messages.New(ctx, params)
	if err != nil {
		slog.Error("Anthropic Complete failed", "sessionID", req.SessionID, "model", c.model, "error", err)
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	content := text.String()
	if c.debugMode {
		writeDebugLog(c.stateDir, "Anthropic.Complete", c.model, req, content)
	}
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
