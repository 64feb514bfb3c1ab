package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

func TestConfidenceGate(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		accepted   bool
	}{
		{"well below", 0.2, false},
		{"at threshold", 0.6, false},
		{"just above", 0.61, true},
		{"certain", 1.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState(models.StageCollectingBasics)
			res := MergeExtraction(s, &models.DialogueResult{
				ExtractedData: models.ExtractedData{AgentType: "support", Goals: "help", Tone: "calm", UseTools: models.Ptr(true)},
				Confidence:    models.ConfidenceScores{AgentType: tt.confidence, Goals: tt.confidence, Tone: tt.confidence, UseTools: tt.confidence},
			})
			if tt.accepted {
				assert.Equal(t, "support", models.StringValue(s.AgentType))
				assert.Equal(t, "help", models.StringValue(s.Goals))
				assert.Equal(t, "calm", models.StringValue(s.Tone))
				require.NotNil(t, s.UseTools)
				assert.True(t, *s.UseTools)
				assert.ElementsMatch(t, []string{"agent_type", "goals", "tone", "use_tools"}, s.CollectedFields)
				assert.ElementsMatch(t, s.CollectedFields, res.NewlyCollected)
				assert.Empty(t, res.Rejected)
			} else {
				assert.Nil(t, s.AgentType)
				assert.Nil(t, s.Goals)
				assert.Nil(t, s.Tone)
				assert.Nil(t, s.UseTools)
				assert.Empty(t, s.CollectedFields)
				assert.Len(t, res.Rejected, 4)
			}
		})
	}
}

func TestLowConfidenceAgentTypeLeavesStateUntouched(t *testing.T) {
	s := newState(models.StageInitial)
	MergeExtraction(s, &models.DialogueResult{
		ExtractedData: models.ExtractedData{AgentType: "x"},
		Confidence:    models.ConfidenceScores{AgentType: 0.5},
	})
	assert.Nil(t, s.AgentType)
	assert.Empty(t, s.CollectedFields)
}

func TestGatedFieldCollectedOnce(t *testing.T) {
	s := newState(models.StageCollectingBasics)
	r := &models.DialogueResult{
		ExtractedData: models.ExtractedData{Tone: "warm"},
		Confidence:    models.ConfidenceScores{Tone: 0.9},
	}
	first := MergeExtraction(s, r)
	r.ExtractedData.Tone = "formal"
	second := MergeExtraction(s, r)

	assert.Equal(t, []string{"tone"}, first.NewlyCollected)
	assert.Empty(t, second.NewlyCollected)
	assert.Equal(t, []string{"tone"}, second.Updated)
	assert.Equal(t, []string{"tone"}, s.CollectedFields)
	assert.Equal(t, "formal", *s.Tone)
}

func TestUseToolsFalseIsAccepted(t *testing.T) {
	s := newState(models.StageExploringTools)
	MergeExtraction(s, &models.DialogueResult{
		ExtractedData: models.ExtractedData{UseTools: models.Ptr(false)},
		Confidence:    models.ConfidenceScores{UseTools: 0.95},
	})
	require.NotNil(t, s.UseTools)
	assert.False(t, *s.UseTools)
	assert.True(t, s.HasCollected("use_tools"))
}

func TestNarrativeFieldsLastWriteWins(t *testing.T) {
	s := newState(models.StageCollectingBasics)
	MergeExtraction(s, &models.DialogueResult{ExtractedData: models.ExtractedData{TargetUsers: "shoppers", BrandVoice: "bold"}})
	MergeExtraction(s, &models.DialogueResult{ExtractedData: models.ExtractedData{TargetUsers: "travelers"}})

	assert.Equal(t, "travelers", s.TargetUsers)
	assert.Equal(t, "bold", s.BrandVoice)
	assert.Empty(t, s.CollectedFields)
}

func TestAppendAndNotes(t *testing.T) {
	s := newState(models.StageCollectingBasics)
	MergeExtraction(s, &models.DialogueResult{ExtractedData: models.ExtractedData{
		Constraints:     []string{"no medical advice"},
		EdgeCases:       []string{"angry caller"},
		AdditionalNotes: "first note",
	}})
	MergeExtraction(s, &models.DialogueResult{ExtractedData: models.ExtractedData{
		Constraints:         []string{"no medical advice", ""},
		ExampleInteractions: []string{"User: where is my order?"},
		AdditionalNotes:     "second note",
	}})

	assert.Equal(t, []string{"no medical advice", "no medical advice"}, s.Constraints)
	assert.Equal(t, []string{"angry caller"}, s.EdgeCases)
	assert.Equal(t, []string{"User: where is my order?"}, s.ExampleInteractions)
	assert.Equal(t, "first note\nsecond note", s.AdditionalNotes)
}

func TestToolDetailsAccepted(t *testing.T) {
	s := newState(models.StageConfiguringTools)
	s.UseTools = models.Ptr(true)
	res := MergeExtraction(s, &models.DialogueResult{
		ExtractedData: models.ExtractedData{ToolDetails: map[string]any{
			"name":          "Order API",
			"endpoint":      "https://api.example.com/orders",
			"method":        "get",
			"usage_context": "order lookups",
		}},
		Confidence: models.ConfidenceScores{ToolDetails: 0.8},
	})

	require.NoError(t, res.ToolErr)
	require.Len(t, s.Tools, 1)
	tool := s.Tools[0]
	assert.Equal(t, "Order API", tool.Name)
	assert.Equal(t, "GET", tool.Method)
	assert.Equal(t, map[string]any{}, tool.InputSchema)
	assert.Equal(t, map[string]any{}, tool.OutputSchema)
	assert.Equal(t, []string{"tools"}, res.NewlyCollected)
	assert.NotNil(t, res.ToolAdded)
}

func TestToolDetailsDefaultMethod(t *testing.T) {
	tool, err := ParseToolSpec(map[string]any{"name": "Notifier", "input_schema": map[string]any{"type": "object"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultToolMethod, tool.Method)
	assert.Equal(t, "object", tool.InputSchema["type"])
}

func TestToolDetailsRejected(t *testing.T) {
	tests := []struct {
		name    string
		details map[string]any
	}{
		{"missing name", map[string]any{"endpoint": "https://x"}},
		{"blank name", map[string]any{"name": "   "}},
		{"numeric name", map[string]any{"name": 42}},
		{"bad method", map[string]any{"name": "x", "method": "FETCH"}},
		{"schema not object", map[string]any{"name": "x", "input_schema": "string"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState(models.StageConfiguringTools)
			res := MergeExtraction(s, &models.DialogueResult{
				ExtractedData: models.ExtractedData{ToolDetails: tt.details},
				Confidence:    models.ConfidenceScores{ToolDetails: 0.9},
			})
			var verr *ToolValidationError
			require.True(t, errors.As(res.ToolErr, &verr), "expected ToolValidationError, got %v", res.ToolErr)
			assert.NotEmpty(t, verr.Problems)
			assert.Empty(t, s.Tools)
			assert.False(t, s.HasCollected("tools"))
		})
	}
}

func TestToolDetailsIgnoredOutsideConfiguringOrLowConfidence(t *testing.T) {
	details := map[string]any{"name": "Order API"}

	s := newState(models.StageExploringTools)
	res := MergeExtraction(s, &models.DialogueResult{
		ExtractedData: models.ExtractedData{ToolDetails: details},
		Confidence:    models.ConfidenceScores{ToolDetails: 0.9},
	})
	assert.Empty(t, s.Tools)
	assert.NoError(t, res.ToolErr)

	s = newState(models.StageConfiguringTools)
	res = MergeExtraction(s, &models.DialogueResult{
		ExtractedData: models.ExtractedData{ToolDetails: details},
		Confidence:    models.ConfidenceScores{ToolDetails: 0.5},
	})
	assert.Empty(t, s.Tools)
	assert.Equal(t, []string{"tool_details"}, res.Rejected)
}
