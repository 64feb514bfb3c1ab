// Package flow implements the stage-progression engine that drives an agent-building conversation.
package flow

import (
	"strings"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// Transition reasons returned by DetermineNextStage.
const (
	ReasonInitialContact   = "initial contact made"
	ReasonBasicsCollected  = "basics collected"
	ReasonToolsRequested   = "tools requested"
	ReasonToolsDeclined    = "tools declined"
	ReasonToolsConfigured  = "tools configured"
	ReasonWorkflowApproved = "workflow approved"
	ReasonFinalized        = "finalized"
)

// IsStageComplete reports whether the current stage of state has everything it needs.
// approved is the external user-approval signal that gates the review and finalizing
// stages; it is ignored by every other stage.
func IsStageComplete(state *models.SessionState, approved bool) bool {
	switch state.Stage {
	case models.StageInitial:
		return len(state.ConversationHistory) >= 1
	case models.StageCollectingBasics:
		return nonEmpty(state.AgentType) && nonEmpty(state.Goals) && nonEmpty(state.Tone)
	case models.StageExploringTools:
		return state.UseTools != nil
	case models.StageConfiguringTools:
		return (state.UseTools != nil && !*state.UseTools) || len(state.Tools) > 0
	case models.StageReviewingWorkflow, models.StageFinalizing:
		return approved
	case models.StageCompleted:
		return true
	default:
		return false
	}
}

// DetermineNextStage returns the stage that follows stage for the given state, and
// the reason for moving. When the stage is not complete it returns stage unchanged
// with an empty reason. At most one step is taken per call.
func DetermineNextStage(stage models.Stage, state *models.SessionState, approved bool) (models.Stage, string) {
	view := *state
	view.Stage = stage
	if !IsStageComplete(&view, approved) {
		return stage, ""
	}

	switch stage {
	case models.StageInitial:
		return models.StageCollectingBasics, ReasonInitialContact
	case models.StageCollectingBasics:
		return models.StageExploringTools, ReasonBasicsCollected
	case models.StageExploringTools:
		if *state.UseTools {
			return models.StageConfiguringTools, ReasonToolsRequested
		}
		return models.StageReviewingWorkflow, ReasonToolsDeclined
	case models.StageConfiguringTools:
		return models.StageReviewingWorkflow, ReasonToolsConfigured
	case models.StageReviewingWorkflow:
		return models.StageFinalizing, ReasonWorkflowApproved
	case models.StageFinalizing:
		return models.StageCompleted, ReasonFinalized
	default:
		return stage, ""
	}
}

func nonEmpty(p *string) bool {
	return p != nil && strings.TrimSpace(*p) != ""
}
