package models

import (
	"errors"
	"strings"
	"time"
)

// MaxMessageLength is the maximum accepted length of one user message.
const MaxMessageLength = 4096

var (
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// SessionCreateRequest is the payload for starting a session.
type SessionCreateRequest struct {
	InitialMessage string `json:"initial_message,omitempty"`
}

// SessionResponse is returned when a session is created or resumed.
type SessionResponse struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Stage     Stage         `json:"stage"`
	CreatedAt time.Time     `json:"created_at"`
	Message   string        `json:"message,omitempty"`
}

// MessageRequest carries one user message.
type MessageRequest struct {
	Message string `json:"message"`
}

// Validate checks the message is present and within bounds.
func (r *MessageRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// MessageResponse is the reply to one user message.
type MessageResponse struct {
	SessionID   string              `json:"session_id"`
	Stage       Stage               `json:"stage"`
	AIResponse  string              `json:"ai_response"`
	IsComplete  bool                `json:"is_complete"`
	Degraded    bool                `json:"degraded,omitempty"`
	FinalPrompt string              `json:"final_prompt,omitempty"`
	Workflow    *WorkflowAttachment `json:"workflow,omitempty"`
}

// SessionStatusResponse reports session progress.
type SessionStatusResponse struct {
	SessionID          string         `json:"session_id"`
	Status             SessionStatus  `json:"status"`
	Stage              Stage          `json:"stage"`
	ProgressPercentage int            `json:"progress_percentage"`
	CollectedInfo      map[string]any `json:"collected_info"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// WorkflowResponse is a workflow with its rendered forms.
type WorkflowResponse struct {
	WorkflowID     string        `json:"workflow_id,omitempty"`
	SessionID      string        `json:"session_id"`
	Workflow       *WorkflowData `json:"workflow"`
	MermaidDiagram string        `json:"mermaid_diagram"`
	TextSummary    string        `json:"text_summary"`
	IsApproved     bool          `json:"is_approved"`
	Version        int           `json:"version"`
}

// WorkflowReviewRequest approves or rejects a workflow.
type WorkflowReviewRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// PromptGenerateRequest selects platform formats; empty means all.
type PromptGenerateRequest struct {
	Formats []PromptFormat `json:"formats,omitempty"`
}

// CollectedInfo summarizes the facts gathered so far.
func (s *SessionState) CollectedInfo() map[string]any {
	info := map[string]any{
		"agent_type":       s.AgentType,
		"goals":            s.Goals,
		"tone":             s.Tone,
		"use_tools":        s.UseTools,
		"tools_count":      len(s.Tools),
		"collected_fields": s.CollectedFields,
	}
	return info
}
