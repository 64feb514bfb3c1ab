package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/AgentBuilder/internal/metrics"
	"github.com/BTreeMap/AgentBuilder/internal/models"
	"github.com/BTreeMap/AgentBuilder/internal/workflow"
)

// DefaultDialogueTimeout bounds one dialogue call when the caller configures a timeout.
const DefaultDialogueTimeout = 60 * time.Second

// Fixed replies used by the orchestrator.
const (
	InitialQuestion = "Hello! I'm here to help you design a voice agent. To get started, what kind of voice agent would you like to create? For example, are you building a customer support agent, a booking assistant, an educational tutor, or something else?"

	FallbackQuestion = "I apologize, but I encountered an error. Could you please rephrase that?"

	workflowIntro   = "\n📋 Here's your agent workflow:\n"
	workflowConfirm = "\nDoes this look good to you? Would you like to make any changes?"
)

// transitionMessages are prepended to the reply when a turn enters the keyed stage.
var transitionMessages = map[models.Stage]string{
	models.StageCollectingBasics:  "",
	models.StageExploringTools:    "\n\nGreat! Now let's talk about integrations.",
	models.StageConfiguringTools:  "\n\nPerfect! Let's configure your tools.",
	models.StageReviewingWorkflow: "\n\nExcellent! Let me summarize what we've built.",
	models.StageFinalizing:        "\n\nPerfect! Generating your agent configuration...",
	models.StageCompleted:         "\n\n✅ Your voice agent is ready!",
}

// ErrNilState is returned when ProcessMessage is called without a session.
var ErrNilState = errors.New("session state is nil")

// DialogueCapability produces the structured reply for one user message.
// Implementations guarantee a non-empty NextQuestion on success.
type DialogueCapability interface {
	Invoke(ctx context.Context, req models.DialogueRequest) (*models.DialogueResult, error)
}

// PromptProvider returns the system prompt for a stage given its context.
type PromptProvider interface {
	SystemPrompt(stage models.Stage, context map[string]any) string
}

// Synthesizer compiles a session into a workflow.
type Synthesizer interface {
	Synthesize(state *models.SessionState) *models.WorkflowData
}

// FinalPromptGenerator produces the deployable system prompt of a completed session.
type FinalPromptGenerator interface {
	FinalPrompt(state *models.SessionState) string
}

// DialogueError wraps a dialogue capability failure that was replaced by the fallback reply.
type DialogueError struct {
	Stage models.Stage
	Err   error
}

func (e *DialogueError) Error() string {
	return fmt.Sprintf("dialogue capability failed in stage %s: %v", e.Stage, e.Err)
}

func (e *DialogueError) Unwrap() error { return e.Err }

// TurnResult is the outcome of one ProcessMessage call.
type TurnResult struct {
	Reply         string
	State         *models.SessionState
	StageChanged  bool
	PreviousStage models.Stage
	Stage         models.Stage
	Reason        string
	Complete      bool
	// Degraded is set when the dialogue capability failed and the fallback reply was used.
	Degraded    bool
	DialogueErr error
	Merge       MergeResult
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSynthesizer overrides the workflow synthesizer.
func WithSynthesizer(s Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synth = s }
}

// WithFinalPromptGenerator sets the generator used when a session completes.
func WithFinalPromptGenerator(g FinalPromptGenerator) OrchestratorOption {
	return func(o *Orchestrator) { o.finalPrompts = g }
}

// WithDialogueTimeout bounds each dialogue capability call.
func WithDialogueTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.dialogueTimeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs one request/response cycle of the agent-building dialogue.
// It holds no per-session state; callers serialize calls per session.
type Orchestrator struct {
	dialogue        DialogueCapability
	prompts         PromptProvider
	synth           Synthesizer
	finalPrompts    FinalPromptGenerator
	dialogueTimeout time.Duration
	now             func() time.Time
}

// NewOrchestrator creates an Orchestrator from its collaborators.
func NewOrchestrator(dialogue DialogueCapability, prompts PromptProvider, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		dialogue: dialogue,
		prompts:  prompts,
		synth:    workflow.NewSynthesizer(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	slog.Debug("Orchestrator created", "dialogueTimeout", o.dialogueTimeout, "finalPrompts", o.finalPrompts != nil)
	return o
}

// InitialQuestion returns the opening question of a new session.
func (o *Orchestrator) InitialQuestion() string {
	return InitialQuestion
}

// ResumeMessage returns the greeting shown when a session is resumed.
func (o *Orchestrator) ResumeMessage(state *models.SessionState) string {
	agentType := models.StringValue(state.AgentType)
	if agentType == "" {
		agentType = "voice agent"
	}
	return fmt.Sprintf("Welcome back! We were working on creating your %s. Let's continue where we left off.", agentType)
}

// Synthesize compiles the current state into a new workflow.
func (o *Orchestrator) Synthesize(state *models.SessionState) *models.WorkflowData {
	metrics.RecordWorkflowSynthesis()
	return o.synth.Synthesize(state)
}

// ProcessMessage handles one user message: it consults the dialogue capability,
// merges the extracted facts, advances the stage, and composes the reply. state is
// mutated in place. Dialogue failures are reported through TurnResult.Degraded and
// never returned as errors.
func (o *Orchestrator) ProcessMessage(ctx context.Context, state *models.SessionState, userText string) (*TurnResult, error) {
	if state == nil {
		return nil, ErrNilState
	}
	prev := state.Stage
	slog.Debug("Orchestrator ProcessMessage", "sessionID", state.SessionID, "stage", prev)

	stageCtx := BuildStageContext(state)
	systemPrompt := o.prompts.SystemPrompt(prev, stageCtx)

	turn := &TurnResult{State: state, PreviousStage: prev}
	result, err := o.invokeDialogue(ctx, models.DialogueRequest{
		SessionID:    state.SessionID,
		SystemPrompt: systemPrompt,
		UserText:     userText,
		History:      append([]models.ConversationMessage(nil), state.ConversationHistory...),
		Stage:        prev,
	})
	if err != nil {
		turn.Degraded = true
		turn.DialogueErr = &DialogueError{Stage: prev, Err: err}
		metrics.RecordDialogueFallback()
		slog.Warn("Orchestrator ProcessMessage dialogue failed, using fallback", "sessionID", state.SessionID, "stage", prev, "error", err)
		result = fallbackResult()
	}

	now := o.now()
	state.AppendMessage(models.RoleUser, userText, now)

	turn.Merge = MergeExtraction(state, result)

	next, reason := DetermineNextStage(state.Stage, state, result.StageComplete)
	if next != prev {
		state.Stage = next
		turn.StageChanged = true
		turn.Reason = reason
		metrics.RecordStageTransition(string(prev), string(next))
		slog.Info("Stage transition", "sessionID", state.SessionID, "from", prev, "to", next, "reason", reason)

		if next == models.StageReviewingWorkflow {
			o.attachWorkflow(state, now)
		}
		if next == models.StageCompleted {
			o.complete(state, now)
		}
	}

	turn.Reply = composeReply(state, result, turn.StageChanged)
	state.AppendMessage(models.RoleAssistant, turn.Reply, now)
	state.UpdatedAt = now

	turn.Stage = state.Stage
	turn.Complete = state.Stage == models.StageCompleted
	metrics.RecordTurn(string(prev))
	return turn, nil
}

func (o *Orchestrator) invokeDialogue(ctx context.Context, req models.DialogueRequest) (*models.DialogueResult, error) {
	if o.dialogueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.dialogueTimeout)
		defer cancel()
	}
	result, err := o.dialogue.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("dialogue capability returned no result")
	}
	return result, nil
}

// attachWorkflow synthesizes the workflow summary unless one is already attached.
func (o *Orchestrator) attachWorkflow(state *models.SessionState, now time.Time) bool {
	if state.Workflow != nil {
		slog.Debug("Orchestrator workflow already attached", "sessionID", state.SessionID)
		return false
	}
	data := o.Synthesize(state)
	state.Workflow = &models.WorkflowAttachment{
		Summary:     workflow.TextSummary(data),
		GeneratedAt: now,
	}
	slog.Info("Workflow attached", "sessionID", state.SessionID, "nodes", len(data.Nodes), "edges", len(data.Edges))
	return true
}

func (o *Orchestrator) complete(state *models.SessionState, now time.Time) {
	state.Status = models.SessionStatusCompleted
	state.CompletedAt = &now
	if o.finalPrompts != nil && state.FinalPrompt == "" {
		state.FinalPrompt = o.finalPrompts.FinalPrompt(state)
	}
	slog.Info("Session completed", "sessionID", state.SessionID, "finalPrompt", state.FinalPrompt != "")
}

func composeReply(state *models.SessionState, result *models.DialogueResult, changed bool) string {
	var parts []string
	if changed {
		if msg := transitionMessages[state.Stage]; msg != "" {
			parts = append(parts, msg)
		}
	}

	switch {
	case state.Stage == models.StageReviewingWorkflow && state.Workflow != nil && state.Workflow.Summary != "":
		parts = append(parts, workflowIntro, state.Workflow.Summary, workflowConfirm)
	case result.NeedsClarification && result.ClarificationQuestion != "":
		parts = append(parts, result.ClarificationQuestion)
	default:
		parts = append(parts, result.NextQuestion)
	}
	return strings.Join(parts, "\n")
}

func fallbackResult() *models.DialogueResult {
	return &models.DialogueResult{
		NextQuestion:       FallbackQuestion,
		NeedsClarification: true,
	}
}
