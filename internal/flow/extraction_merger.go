package flow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/BTreeMap/AgentBuilder/internal/metrics"
	"github.com/BTreeMap/AgentBuilder/internal/models"
)

const (
	// CollectionThreshold is the confidence a gated scalar must exceed to be accepted.
	CollectionThreshold = 0.6
	// ToolDetailsThreshold is the confidence tool details must exceed to be considered.
	ToolDetailsThreshold = 0.5
	// DefaultToolMethod is used when tool details omit an HTTP method.
	DefaultToolMethod = "POST"
)

//go:embed tool_spec.schema.json
var toolSpecSchemaJSON []byte

var toolSpecSchema = mustCompileSchema(toolSpecSchemaJSON)

func mustCompileSchema(raw []byte) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded tool spec schema: %v", err))
	}
	return schema
}

// ToolValidationError reports extracted tool details that do not match the Tool Spec shape.
type ToolValidationError struct {
	Problems []string
}

func (e *ToolValidationError) Error() string {
	return "invalid tool details: " + strings.Join(e.Problems, "; ")
}

// MergeResult reports what one extraction changed.
type MergeResult struct {
	// NewlyCollected lists fields added to collected_fields by this merge.
	NewlyCollected []string
	// Updated lists every field whose value changed.
	Updated []string
	// Rejected lists gated fields that carried a value below the threshold.
	Rejected []string
	// ToolAdded is the tool appended by this merge, if any.
	ToolAdded *models.ToolSpec
	// ToolErr is set when tool details were present but failed validation.
	ToolErr error
}

// MergeExtraction applies one round of extracted data onto state in place.
func MergeExtraction(state *models.SessionState, result *models.DialogueResult) MergeResult {
	var res MergeResult
	data := result.ExtractedData
	conf := result.Confidence

	mergeGatedString(state, &res, models.FieldAgentType, &state.AgentType, data.AgentType, conf.AgentType)
	mergeGatedString(state, &res, models.FieldGoals, &state.Goals, data.Goals, conf.Goals)
	mergeGatedString(state, &res, models.FieldTone, &state.Tone, data.Tone, conf.Tone)

	if data.UseTools != nil {
		if conf.UseTools > CollectionThreshold {
			if state.UseTools == nil || *state.UseTools != *data.UseTools {
				res.Updated = append(res.Updated, models.FieldUseTools)
			}
			state.UseTools = models.Ptr(*data.UseTools)
			if state.MarkCollected(models.FieldUseTools) {
				res.NewlyCollected = append(res.NewlyCollected, models.FieldUseTools)
			}
		} else {
			res.Rejected = append(res.Rejected, models.FieldUseTools)
			metrics.RecordMergeRejection(models.FieldUseTools)
		}
	}

	mergeNarrative(&res, "target_users", &state.TargetUsers, data.TargetUsers)
	mergeNarrative(&res, "greeting_style", &state.GreetingStyle, data.GreetingStyle)
	mergeNarrative(&res, "conversation_flow", &state.ConversationFlow, data.ConversationFlow)
	mergeNarrative(&res, "escalation_rules", &state.EscalationRules, data.EscalationRules)
	mergeNarrative(&res, "success_criteria", &state.SuccessCriteria, data.SuccessCriteria)
	mergeNarrative(&res, "brand_voice", &state.BrandVoice, data.BrandVoice)
	mergeNarrative(&res, "verbosity_level", &state.VerbosityLevel, data.VerbosityLevel)

	if notes := strings.TrimSpace(data.AdditionalNotes); notes != "" {
		if state.AdditionalNotes == "" {
			state.AdditionalNotes = notes
		} else {
			state.AdditionalNotes += "\n" + notes
		}
		res.Updated = append(res.Updated, "additional_notes")
	}

	mergeAppend(&res, "example_interactions", &state.ExampleInteractions, data.ExampleInteractions)
	mergeAppend(&res, "constraints", &state.Constraints, data.Constraints)
	mergeAppend(&res, "edge_cases", &state.EdgeCases, data.EdgeCases)

	if len(data.ToolDetails) > 0 {
		mergeToolDetails(state, &res, data.ToolDetails, conf.ToolDetails)
	}

	if len(res.Updated) > 0 {
		slog.Debug("MergeExtraction applied", "sessionID", state.SessionID, "updated", res.Updated, "newlyCollected", res.NewlyCollected)
	}
	return res
}

func mergeGatedString(state *models.SessionState, res *MergeResult, field string, dst **string, value string, confidence float64) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if confidence <= CollectionThreshold {
		slog.Debug("MergeExtraction below confidence gate", "sessionID", state.SessionID, "field", field, "confidence", confidence)
		res.Rejected = append(res.Rejected, field)
		metrics.RecordMergeRejection(field)
		return
	}
	if models.StringValue(*dst) != value {
		res.Updated = append(res.Updated, field)
	}
	*dst = models.Ptr(value)
	if state.MarkCollected(field) {
		res.NewlyCollected = append(res.NewlyCollected, field)
	}
}

func mergeNarrative(res *MergeResult, field string, dst *string, value string) {
	value = strings.TrimSpace(value)
	if value == "" || value == *dst {
		return
	}
	*dst = value
	res.Updated = append(res.Updated, field)
}

func mergeAppend(res *MergeResult, field string, dst *[]string, items []string) {
	added := false
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		*dst = append(*dst, item)
		added = true
	}
	if added {
		res.Updated = append(res.Updated, field)
	}
}

func mergeToolDetails(state *models.SessionState, res *MergeResult, details map[string]any, confidence float64) {
	if state.Stage != models.StageConfiguringTools {
		slog.Debug("MergeExtraction ignoring tool details outside tool configuration", "sessionID", state.SessionID, "stage", state.Stage)
		return
	}
	if confidence <= ToolDetailsThreshold {
		slog.Debug("MergeExtraction tool details below confidence gate", "sessionID", state.SessionID, "confidence", confidence)
		res.Rejected = append(res.Rejected, "tool_details")
		metrics.RecordMergeRejection("tool_details")
		return
	}

	tool, err := ParseToolSpec(details)
	if err != nil {
		slog.Warn("MergeExtraction dropped invalid tool details", "sessionID", state.SessionID, "error", err)
		metrics.RecordToolValidationFailure()
		res.ToolErr = err
		return
	}

	state.Tools = append(state.Tools, *tool)
	res.ToolAdded = tool
	res.Updated = append(res.Updated, models.FieldTools)
	if state.MarkCollected(models.FieldTools) {
		res.NewlyCollected = append(res.NewlyCollected, models.FieldTools)
	}
	slog.Info("Tool configured", "sessionID", state.SessionID, "tool", tool.Name, "count", len(state.Tools))
}

// ParseToolSpec validates raw tool details against the Tool Spec schema and
// converts them, applying the default method and empty schemas.
func ParseToolSpec(details map[string]any) (*models.ToolSpec, error) {
	result, err := toolSpecSchema.Validate(gojsonschema.NewGoLoader(details))
	if err != nil {
		return nil, &ToolValidationError{Problems: []string{err.Error()}}
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, &ToolValidationError{Problems: problems}
	}

	raw, err := json.Marshal(details)
	if err != nil {
		return nil, &ToolValidationError{Problems: []string{err.Error()}}
	}
	var tool models.ToolSpec
	if err := json.Unmarshal(raw, &tool); err != nil {
		return nil, &ToolValidationError{Problems: []string{err.Error()}}
	}

	tool.Name = strings.TrimSpace(tool.Name)
	tool.Method = strings.ToUpper(strings.TrimSpace(tool.Method))
	if tool.Method == "" {
		tool.Method = DefaultToolMethod
	}
	if tool.InputSchema == nil {
		tool.InputSchema = map[string]any{}
	}
	if tool.OutputSchema == nil {
		tool.OutputSchema = map[string]any{}
	}
	return &tool, nil
}
