package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func encodeState(state *models.SessionState) (string, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to encode session %s: %w", state.SessionID, err)
	}
	return string(b), nil
}

func decodeState(sessionID, raw string) (*models.SessionState, error) {
	var state models.SessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &state, nil
}

func encodeWorkflow(rec *WorkflowRecord) (string, error) {
	b, err := json.Marshal(rec.Workflow)
	if err != nil {
		return "", fmt.Errorf("failed to encode workflow for session %s: %w", rec.SessionID, err)
	}
	return string(b), nil
}

// scanWorkflow reads the workflow columns in the order
// id, session_id, workflow_json, mermaid_diagram, is_approved, version, created_at, updated_at, approved_at.
func scanWorkflow(row rowScanner) (*WorkflowRecord, error) {
	var rec WorkflowRecord
	var workflowJSON string
	var approvedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.SessionID, &workflowJSON, &rec.MermaidDiagram, &rec.IsApproved,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt, &approvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow row: %w", err)
	}
	if err := json.Unmarshal([]byte(workflowJSON), &rec.Workflow); err != nil {
		return nil, fmt.Errorf("failed to decode workflow for session %s: %w", rec.SessionID, err)
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		rec.ApprovedAt = &t
	}
	return &rec, nil
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return ids, nil
}

// nullableTime converts an optional time to a nullable column value.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
