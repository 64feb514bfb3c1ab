package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// WorkflowRecord is the saved workflow of a session and its review state.
type WorkflowRecord struct {
	ID             string               `json:"id"`
	SessionID      string               `json:"session_id"`
	Workflow       *models.WorkflowData `json:"workflow"`
	MermaidDiagram string               `json:"mermaid_diagram"`
	IsApproved     bool                 `json:"is_approved"`
	Version        int                  `json:"version"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	ApprovedAt     *time.Time           `json:"approved_at,omitempty"`
}

// NewWorkflowRecord creates the first version of a session's workflow.
func NewWorkflowRecord(sessionID string, wf *models.WorkflowData, mermaid string, now time.Time) *WorkflowRecord {
	return &WorkflowRecord{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		Workflow:       wf,
		MermaidDiagram: mermaid,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Regenerate replaces the workflow, bumps the version and clears any approval.
func (r *WorkflowRecord) Regenerate(wf *models.WorkflowData, mermaid string, now time.Time) {
	r.Workflow = wf
	r.MermaidDiagram = mermaid
	r.Version++
	r.IsApproved = false
	r.ApprovedAt = nil
	r.UpdatedAt = now
}

// Review records an approval decision.
func (r *WorkflowRecord) Review(approved bool, now time.Time) {
	r.IsApproved = approved
	if approved {
		r.ApprovedAt = &now
	} else {
		r.ApprovedAt = nil
	}
	r.UpdatedAt = now
}
