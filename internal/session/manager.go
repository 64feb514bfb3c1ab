// Package session sequences orchestrator turns against a session store.
//
// Manager is the single writer for a session: every mutating call holds the
// session lock across load, process and save.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/AgentBuilder/internal/flow"
	"github.com/BTreeMap/AgentBuilder/internal/models"
	"github.com/BTreeMap/AgentBuilder/internal/prompt"
	"github.com/BTreeMap/AgentBuilder/internal/store"
	"github.com/BTreeMap/AgentBuilder/internal/workflow"
)

// DefaultLockTimeout bounds how long a request waits for a busy session.
const DefaultLockTimeout = 90 * time.Second

var (
	// ErrSessionNotActive is returned when a message targets a completed or abandoned session.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrWorkflowNotReady is returned when a workflow is requested before the review stage.
	ErrWorkflowNotReady = errors.New("workflow not ready")
	// ErrMissingFacts is returned when prompts are requested before agent type and goals are known.
	ErrMissingFacts = errors.New("session must have agent_type and goals")
)

// whatsAppNamespace scopes deterministic session ids derived from WhatsApp senders.
var whatsAppNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("agentbuilder:whatsapp"))

// WhatsAppSessionID maps a WhatsApp sender to a stable session id.
func WhatsAppSessionID(sender string) string {
	return uuid.NewSHA1(whatsAppNamespace, []byte(sender)).String()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLockTimeout sets how long a call waits for a busy session. Zero waits until ctx is done.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) { m.lockTimeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// Manager runs session operations for the HTTP API, the WhatsApp webhook and the CLI.
type Manager struct {
	orch        *flow.Orchestrator
	store       store.SessionStore
	prompts     *prompt.Generator
	locks       *flow.SessionLocker
	lockTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

// NewManager creates a Manager.
func NewManager(orch *flow.Orchestrator, st store.SessionStore, gen *prompt.Generator, opts ...Option) *Manager {
	m := &Manager{
		orch:        orch,
		store:       st,
		prompts:     gen,
		locks:       flow.NewSessionLocker(),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the backing session store.
func (m *Manager) Store() store.SessionStore { return m.store }

func (m *Manager) lock(ctx context.Context, sessionID string) (func(), error) {
	if m.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.lockTimeout)
		defer cancel()
	}
	return m.locks.Lock(ctx, sessionID)
}

// Create starts a session. A non-empty initialMessage is processed as the first turn.
func (m *Manager) Create(ctx context.Context, initialMessage string) (*models.SessionResponse, error) {
	state := models.NewSessionState(m.newID(), m.now())
	reply := m.orch.InitialQuestion()

	if initialMessage != "" {
		req := models.MessageRequest{Message: initialMessage}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		turn, err := m.orch.ProcessMessage(ctx, state, initialMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to process initial message: %w", err)
		}
		reply = turn.Reply
	}

	if err := m.store.Save(ctx, state); err != nil {
		slog.Error("Manager.Create: failed to save session", "error", err, "sessionID", state.SessionID)
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	slog.Info("Session created", "sessionID", state.SessionID, "stage", state.Stage)
	return &models.SessionResponse{
		SessionID: state.SessionID,
		Status:    state.Status,
		Stage:     state.Stage,
		CreatedAt: state.CreatedAt,
		Message:   reply,
	}, nil
}

// Process runs one user message through the orchestrator and saves the result.
func (m *Manager) Process(ctx context.Context, sessionID, text string) (*models.MessageResponse, error) {
	req := models.MessageRequest{Message: text}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Status != models.SessionStatusActive {
		return nil, fmt.Errorf("%w: status %s", ErrSessionNotActive, state.Status)
	}
	return m.processLocked(ctx, state, text)
}

// ReplyText is the outbound channel text for a turn: the reply, followed by the
// final prompt once the session completes.
func ReplyText(resp *models.MessageResponse) string {
	if resp.IsComplete && resp.FinalPrompt != "" {
		return resp.AIResponse + "\n\n" + resp.FinalPrompt
	}
	return resp.AIResponse
}

// Converse processes a message for a channel that addresses sessions by a stable id.
// A missing, expired, finished or abandoned session is replaced with a fresh one.
//
// A non-empty messageID makes the call idempotent: a message id already processed
// is not run again, and the returned reply is the one recorded for it with
// duplicate set to true.
func (m *Manager) Converse(ctx context.Context, sessionID, messageID, text string) (resp *models.MessageResponse, duplicate bool, err error) {
	req := models.MessageRequest{Message: text}
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	if messageID != "" {
		rec, err := m.store.GetInbound(ctx, messageID)
		switch {
		case err == nil:
			slog.Info("Manager.Converse: duplicate delivery, not reprocessing", "sessionID", sessionID, "messageID", messageID)
			return &models.MessageResponse{SessionID: rec.SessionID, AIResponse: rec.Reply}, true, nil
		case !errors.Is(err, store.ErrInboundNotFound):
			return nil, false, fmt.Errorf("failed to check inbound message: %w", err)
		}
	}

	state, err := m.store.Load(ctx, sessionID)
	switch {
	case err == nil && state.Status == models.SessionStatusActive:
	case err == nil, errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrSessionExpired):
		if delErr := m.store.Delete(ctx, sessionID); delErr != nil {
			return nil, false, fmt.Errorf("failed to clear previous session: %w", delErr)
		}
		state = models.NewSessionState(sessionID, m.now())
		slog.Info("Manager.Converse: starting new session", "sessionID", sessionID)
	default:
		return nil, false, err
	}

	resp, err = m.processLocked(ctx, state, text)
	if err != nil {
		return nil, false, err
	}
	if messageID != "" {
		rec := &store.InboundRecord{MessageID: messageID, SessionID: sessionID, Reply: ReplyText(resp), ReceivedAt: m.now()}
		if _, err := m.store.RecordInbound(ctx, rec); err != nil {
			// The turn is committed; a redelivery may be processed again.
			slog.Error("Manager.Converse: failed to record inbound message", "error", err, "sessionID", sessionID, "messageID", messageID)
		}
	}
	return resp, false, nil
}

func (m *Manager) processLocked(ctx context.Context, state *models.SessionState, text string) (*models.MessageResponse, error) {
	turn, err := m.orch.ProcessMessage(ctx, state, text)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, state); err != nil {
		slog.Error("Manager.Process: failed to save session", "error", err, "sessionID", state.SessionID)
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	resp := &models.MessageResponse{
		SessionID:  state.SessionID,
		Stage:      turn.Stage,
		AIResponse: turn.Reply,
		IsComplete: turn.Complete,
		Degraded:   turn.Degraded,
	}
	if turn.StageChanged && turn.Stage == models.StageReviewingWorkflow {
		resp.Workflow = state.Workflow
	}
	if turn.Complete {
		resp.FinalPrompt = state.FinalPrompt
	}
	return resp, nil
}

// Status reports progress and collected facts.
func (m *Manager) Status(ctx context.Context, sessionID string) (*models.SessionStatusResponse, error) {
	state, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &models.SessionStatusResponse{
		SessionID:          state.SessionID,
		Status:             state.Status,
		Stage:              state.Stage,
		ProgressPercentage: state.ProgressPercentage(),
		CollectedInfo:      state.CollectedInfo(),
		CreatedAt:          state.CreatedAt,
		UpdatedAt:          state.UpdatedAt,
	}, nil
}

// Resume extends the session expiry and returns the welcome-back message.
func (m *Manager) Resume(ctx context.Context, sessionID string) (*models.MessageResponse, error) {
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := m.store.Extend(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}
	slog.Debug("Manager.Resume: session extended", "sessionID", sessionID)
	return &models.MessageResponse{
		SessionID:  sessionID,
		Stage:      state.Stage,
		AIResponse: m.orch.ResumeMessage(state),
		IsComplete: state.Stage == models.StageCompleted,
	}, nil
}

// Delete abandons a session. The record is kept with status abandoned until the
// sweeper purges it; an expired session is removed outright. Deleting an abandoned
// session again is a no-op.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	state, err := m.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrSessionExpired):
		if err := m.store.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		slog.Info("Expired session deleted", "sessionID", sessionID)
		return nil
	case err != nil:
		return err
	case state.Status == models.SessionStatusAbandoned:
		return nil
	}

	state.Status = models.SessionStatusAbandoned
	state.UpdatedAt = m.now()
	if err := m.store.Save(ctx, state); err != nil {
		slog.Error("Manager.Delete: failed to save session", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to abandon session: %w", err)
	}
	slog.Info("Session abandoned", "sessionID", sessionID, "stage", state.Stage)
	return nil
}

// Active lists the ids of unexpired active sessions.
func (m *Manager) Active(ctx context.Context) ([]string, error) {
	return m.store.ListActive(ctx)
}

func workflowReady(stage models.Stage) bool {
	switch stage {
	case models.StageReviewingWorkflow, models.StageFinalizing, models.StageCompleted:
		return true
	}
	return false
}

func (m *Manager) workflowResponse(rec *store.WorkflowRecord) *models.WorkflowResponse {
	return &models.WorkflowResponse{
		WorkflowID:     rec.ID,
		SessionID:      rec.SessionID,
		Workflow:       rec.Workflow,
		MermaidDiagram: rec.MermaidDiagram,
		TextSummary:    workflow.TextSummary(rec.Workflow),
		IsApproved:     rec.IsApproved,
		Version:        rec.Version,
	}
}

// Workflow returns the saved workflow, synthesizing and saving it on first request.
func (m *Manager) Workflow(ctx context.Context, sessionID string) (*models.WorkflowResponse, error) {
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := m.store.GetWorkflow(ctx, sessionID)
	if err == nil {
		return m.workflowResponse(rec), nil
	}
	if !errors.Is(err, store.ErrWorkflowNotFound) {
		return nil, err
	}

	state, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !workflowReady(state.Stage) {
		return nil, fmt.Errorf("%w: current stage %s", ErrWorkflowNotReady, state.Stage)
	}
	wf := m.orch.Synthesize(state)
	rec = store.NewWorkflowRecord(sessionID, wf, workflow.Mermaid(wf), m.now())
	if err := m.store.SaveWorkflow(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}
	slog.Info("Workflow saved", "sessionID", sessionID, "workflowID", rec.ID)
	return m.workflowResponse(rec), nil
}

// Review records an approval decision on the saved workflow.
func (m *Manager) Review(ctx context.Context, sessionID string, req models.WorkflowReviewRequest) (*models.WorkflowResponse, error) {
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := m.store.GetWorkflow(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec.Review(req.Approved, m.now())
	if err := m.store.SaveWorkflow(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save workflow review: %w", err)
	}
	slog.Info("Workflow reviewed", "sessionID", sessionID, "approved", req.Approved, "feedback", req.Feedback)
	return m.workflowResponse(rec), nil
}

// Regenerate re-synthesizes the workflow from current state, bumping its version.
func (m *Manager) Regenerate(ctx context.Context, sessionID string) (*models.WorkflowResponse, error) {
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	wf := m.orch.Synthesize(state)
	mermaid := workflow.Mermaid(wf)
	now := m.now()

	rec, err := m.store.GetWorkflow(ctx, sessionID)
	switch {
	case err == nil:
		rec.Regenerate(wf, mermaid, now)
	case errors.Is(err, store.ErrWorkflowNotFound):
		rec = store.NewWorkflowRecord(sessionID, wf, mermaid, now)
	default:
		return nil, err
	}
	if err := m.store.SaveWorkflow(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}
	slog.Info("Workflow regenerated", "sessionID", sessionID, "version", rec.Version)
	return m.workflowResponse(rec), nil
}

func (m *Manager) loadWithFacts(ctx context.Context, sessionID string) (*models.SessionState, error) {
	state, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if models.StringValue(state.AgentType) == "" || models.StringValue(state.Goals) == "" {
		return nil, ErrMissingFacts
	}
	return state, nil
}

// Prompts generates platform prompts. Empty formats selects every platform.
func (m *Manager) Prompts(ctx context.Context, sessionID string, formats []models.PromptFormat) (map[string]models.GeneratedPrompt, error) {
	state, err := m.loadWithFacts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	prompts, _ := m.prompts.GenerateAll(state, formats)
	return prompts, nil
}

// Export is a rendered export package.
type Export struct {
	Package     *models.PromptExport
	Format      models.ExportFormat
	Content     string
	ContentType string
	Filename    string
}

// Export renders the session's agent package. The saved workflow is preferred;
// otherwise a fresh one is synthesized without being saved.
func (m *Manager) Export(ctx context.Context, sessionID string, format models.ExportFormat, includeWorkflow bool) (*Export, error) {
	state, err := m.loadWithFacts(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var wf *models.WorkflowData
	if includeWorkflow {
		rec, err := m.store.GetWorkflow(ctx, sessionID)
		switch {
		case err == nil:
			wf = rec.Workflow
		case errors.Is(err, store.ErrWorkflowNotFound):
			wf = m.orch.Synthesize(state)
		default:
			return nil, err
		}
	}

	pkg := m.prompts.CreateExport(state, wf, nil)
	content, err := m.prompts.Render(pkg, format)
	if err != nil {
		return nil, err
	}
	contentType, _ := prompt.ExportFileType(format)
	return &Export{
		Package:     pkg,
		Format:      format,
		Content:     content,
		ContentType: contentType,
		Filename:    prompt.ExportFilename(pkg, format),
	}, nil
}
