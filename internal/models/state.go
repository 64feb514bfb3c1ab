// Package models defines the session and stage structures shared by AgentBuilder components.
package models

import (
	"fmt"
	"time"
)

// Stage is one phase of the agent-building dialogue.
type Stage string

const (
	// StageInitial is the stage of a freshly created session.
	StageInitial Stage = "initial"
	// StageCollectingBasics gathers agent type, goals and tone.
	StageCollectingBasics Stage = "collecting_basics"
	// StageExploringTools asks whether the agent needs external tools.
	StageExploringTools Stage = "exploring_tools"
	// StageConfiguringTools collects tool specifications.
	StageConfiguringTools Stage = "configuring_tools"
	// StageReviewingWorkflow presents the synthesized workflow for approval.
	StageReviewingWorkflow Stage = "reviewing_workflow"
	// StageFinalizing generates the final configuration.
	StageFinalizing Stage = "finalizing"
	// StageCompleted is terminal.
	StageCompleted Stage = "completed"
)

// Stages lists every stage in dialogue order.
var Stages = []Stage{
	StageInitial,
	StageCollectingBasics,
	StageExploringTools,
	StageConfiguringTools,
	StageReviewingWorkflow,
	StageFinalizing,
	StageCompleted,
}

// String implements fmt.Stringer.
func (s Stage) String() string { return string(s) }

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	return s.Ordinal() >= 0
}

// Ordinal returns the position of s in dialogue order, or -1 for unknown stages.
func (s Stage) Ordinal() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// ParseStage converts a wire value into a Stage.
func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", v)
	}
	return s, nil
}

// SessionStatus is the lifecycle status of a session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// Field names recorded in SessionState.CollectedFields.
const (
	FieldAgentType = "agent_type"
	FieldGoals     = "goals"
	FieldTone      = "tone"
	FieldUseTools  = "use_tools"
	FieldTools     = "tools"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage represents a single message in the conversation history.
type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolSpec describes one external capability the built agent may invoke.
type ToolSpec struct {
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	Endpoint          string         `json:"endpoint,omitempty"`
	Method            string         `json:"method"`
	InputSchema       map[string]any `json:"input_schema"`
	OutputSchema      map[string]any `json:"output_schema"`
	UsageContext      string         `json:"usage_context,omitempty"`
	TriggerConditions string         `json:"trigger_conditions,omitempty"`
}

// WorkflowAttachment is the workflow summary attached on entry into the review stage.
type WorkflowAttachment struct {
	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SessionState is the accumulating record of one agent-building conversation.
type SessionState struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Stage     Stage         `json:"stage"`

	AgentType *string    `json:"agent_type,omitempty"`
	Goals     *string    `json:"goals,omitempty"`
	Tone      *string    `json:"tone,omitempty"`
	UseTools  *bool      `json:"use_tools,omitempty"`
	Tools     []ToolSpec `json:"tools"`

	TargetUsers      string `json:"target_users,omitempty"`
	GreetingStyle    string `json:"greeting_style,omitempty"`
	ConversationFlow string `json:"conversation_flow,omitempty"`
	EscalationRules  string `json:"escalation_rules,omitempty"`
	SuccessCriteria  string `json:"success_criteria,omitempty"`
	BrandVoice       string `json:"brand_voice,omitempty"`
	VerbosityLevel   string `json:"verbosity_level,omitempty"`
	AdditionalNotes  string `json:"additional_notes,omitempty"`

	ExampleInteractions []string `json:"example_interactions,omitempty"`
	Constraints         []string `json:"constraints,omitempty"`
	EdgeCases           []string `json:"edge_cases,omitempty"`

	CollectedFields     []string              `json:"collected_fields"`
	ConversationHistory []ConversationMessage `json:"conversation_history"`

	Workflow    *WorkflowAttachment `json:"workflow,omitempty"`
	FinalPrompt string              `json:"final_prompt,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewSessionState returns an active session in the initial stage.
func NewSessionState(id string, now time.Time) *SessionState {
	return &SessionState{
		SessionID:           id,
		Status:              SessionStatusActive,
		Stage:               StageInitial,
		Tools:               []ToolSpec{},
		CollectedFields:     []string{},
		ConversationHistory: []ConversationMessage{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// HasCollected reports whether field has crossed the confidence gate.
func (s *SessionState) HasCollected(field string) bool {
	for _, f := range s.CollectedFields {
		if f == field {
			return true
		}
	}
	return false
}

// MarkCollected adds field to CollectedFields and reports whether it was new.
func (s *SessionState) MarkCollected(field string) bool {
	if s.HasCollected(field) {
		return false
	}
	s.CollectedFields = append(s.CollectedFields, field)
	return true
}

// AppendMessage appends a message to the conversation history.
func (s *SessionState) AppendMessage(role, content string, at time.Time) {
	s.ConversationHistory = append(s.ConversationHistory, ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: at,
	})
}

// ToolsEnabled reports whether the user opted into tool integrations.
func (s *SessionState) ToolsEnabled() bool {
	return s.UseTools != nil && *s.UseTools
}

// ProgressPercentage is the share of required fields collected, capped at 100.
func (s *SessionState) ProgressPercentage() int {
	total := 3
	if s.ToolsEnabled() {
		total += len(s.Tools)
	}
	pct := len(s.CollectedFields) * 100 / total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Clone returns a deep copy of the session state.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	c := *s
	c.AgentType = clonePtr(s.AgentType)
	c.Goals = clonePtr(s.Goals)
	c.Tone = clonePtr(s.Tone)
	c.UseTools = clonePtr(s.UseTools)
	c.Tools = make([]ToolSpec, len(s.Tools))
	for i, t := range s.Tools {
		t.InputSchema = cloneMap(t.InputSchema)
		t.OutputSchema = cloneMap(t.OutputSchema)
		c.Tools[i] = t
	}
	c.ExampleInteractions = append([]string(nil), s.ExampleInteractions...)
	c.Constraints = append([]string(nil), s.Constraints...)
	c.EdgeCases = append([]string(nil), s.EdgeCases...)
	c.CollectedFields = append([]string{}, s.CollectedFields...)
	c.ConversationHistory = append([]ConversationMessage{}, s.ConversationHistory...)
	if s.Workflow != nil {
		w := *s.Workflow
		c.Workflow = &w
	}
	c.CompletedAt = clonePtr(s.CompletedAt)
	return &c
}

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
