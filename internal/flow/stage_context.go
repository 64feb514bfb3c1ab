package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// BuildStageContext derives the prompt context for the current stage of state.
// Stages without stage-specific context get an empty map.
func BuildStageContext(state *models.SessionState) map[string]any {
	ctx := map[string]any{}
	agentType := models.StringValue(state.AgentType)
	goals := models.StringValue(state.Goals)
	tone := models.StringValue(state.Tone)

	switch state.Stage {
	case models.StageCollectingBasics:
		var collected, missing []string
		for _, f := range []struct {
			name  string
			value string
		}{
			{models.FieldAgentType, agentType},
			{models.FieldGoals, goals},
			{models.FieldTone, tone},
		} {
			if f.value != "" {
				collected = append(collected, fmt.Sprintf("%s: %s", f.name, f.value))
			} else {
				missing = append(missing, f.name)
			}
		}
		ctx["state"] = "Stage: " + string(state.Stage)
		ctx["collected"] = joinOr(collected, "Nothing yet")
		ctx["missing"] = joinOr(missing, "All collected!")

	case models.StageExploringTools:
		ctx["agent_info"] = fmt.Sprintf("Type: %s, Goals: %s, Tone: %s", agentType, goals, tone)

	case models.StageConfiguringTools:
		ctx["agent_info"] = fmt.Sprintf("Type: %s, Goals: %s", agentType, goals)
		if len(state.Tools) > 0 {
			ctx["tools"] = fmt.Sprintf("%d tool(s) configured", len(state.Tools))
		} else {
			ctx["tools"] = "No tools yet"
		}

	case models.StageReviewingWorkflow:
		ctx["full_state"] = map[string]any{
			"agent_type": agentType,
			"goals":      goals,
			"tone":       tone,
			"tools":      len(state.Tools),
		}
	}
	return ctx
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
