package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/AgentBuilder/internal/store"
)

// RecoverState reloads every active session after a restart so undecodable records
// are reported at startup, and saves the workflow of any session that reached review
// without one. It returns the number of sessions recovered.
func (m *Manager) RecoverState(ctx context.Context) (int, error) {
	ids, err := m.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions: %w", err)
	}

	var errs []error
	recovered := 0
	for _, id := range ids {
		state, err := m.store.Load(ctx, id)
		if errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, store.ErrSessionExpired) {
			slog.Debug("Manager.RecoverState: session gone before recovery", "sessionID", id)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
			continue
		}

		if workflowReady(state.Stage) {
			_, err := m.store.GetWorkflow(ctx, id)
			if errors.Is(err, store.ErrWorkflowNotFound) {
				slog.Info("Manager.RecoverState: restoring missing workflow", "sessionID", id, "stage", state.Stage)
				_, err = m.Workflow(ctx, id)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("session %s workflow: %w", id, err))
				continue
			}
		}
		recovered++
	}
	return recovered, errors.Join(errs...)
}
