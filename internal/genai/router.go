package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/AgentBuilder/internal/metrics"
	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// DefaultHistoryWindow is the number of prior messages sent with each turn.
const DefaultHistoryWindow = 10

// ErrNoProviderConfigured is returned when the router has no provider to call.
var ErrNoProviderConfigured = errors.New("no LLM provider configured")

// conversationalStages prefer the Anthropic provider; all other stages prefer OpenAI.
var conversationalStages = map[models.Stage]bool{
	models.StageInitial:           true,
	models.StageExploringTools:    true,
	models.StageReviewingWorkflow: true,
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithHistoryWindow sets how many prior messages are forwarded. Zero or less sends none.
func WithHistoryWindow(n int) RouterOption {
	return func(r *Router) { r.historyWindow = n }
}

// Router picks a provider per stage and turns its reply into a DialogueResult.
type Router struct {
	openai        Provider
	anthropic     Provider
	historyWindow int
}

// NewRouter creates a Router. Either provider may be nil, but not both.
func NewRouter(openai, anthropic Provider, opts ...RouterOption) (*Router, error) {
	if openai == nil && anthropic == nil {
		return nil, ErrNoProviderConfigured
	}
	r := &Router{openai: openai, anthropic: anthropic, historyWindow: DefaultHistoryWindow}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Route returns the provider for a stage. Conversational stages prefer Anthropic,
// structured ones prefer OpenAI, and either falls back to whichever is available.
func (r *Router) Route(stage models.Stage) (Provider, error) {
	preferred, other := r.openai, r.anthropic
	if conversationalStages[stage] {
		preferred, other = r.anthropic, r.openai
	}
	switch {
	case preferred != nil:
		return preferred, nil
	case other != nil:
		return other, nil
	default:
		return nil, ErrNoProviderConfigured
	}
}

// Invoke implements the orchestrator's dialogue capability.
func (r *Router) Invoke(ctx context.Context, req models.DialogueRequest) (*models.DialogueResult, error) {
	provider, err := r.Route(req.Stage)
	if err != nil {
		return nil, err
	}
	req.History = windowHistory(req.History, r.historyWindow)
	slog.Debug("Router Invoke", "sessionID", req.SessionID, "stage", req.Stage, "provider", provider.Name(), "history", len(req.History))

	start := time.Now()
	content, err := provider.Complete(ctx, req)
	if err != nil {
		metrics.RecordDialogueCall(provider.Name(), metrics.StatusError, time.Since(start))
		return nil, fmt.Errorf("%s: %w", provider.Name(), err)
	}

	result, err := ParseDialogueResult(content)
	if err != nil {
		metrics.RecordDialogueCall(provider.Name(), metrics.StatusError, time.Since(start))
		slog.Warn("Router Invoke unparseable reply", "sessionID", req.SessionID, "provider", provider.Name(), "error", err)
		return nil, fmt.Errorf("%s: %w", provider.Name(), err)
	}
	metrics.RecordDialogueCall(provider.Name(), metrics.StatusSuccess, time.Since(start))
	return result, nil
}

func windowHistory(history []models.ConversationMessage, n int) []models.ConversationMessage {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}
