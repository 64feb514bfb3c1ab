package genai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// Replies substituted when the model's answer is usable but incomplete.
const (
	DefaultNextQuestion  = "Could you tell me more about that?"
	UnparsedNextQuestion = "Could you provide more details?"
)

// maxPlainTextReply is the longest non-JSON reply accepted verbatim as the next question.
const maxPlainTextReply = 500

// ErrMalformedResponse is returned when a fenced block does not hold valid JSON.
var ErrMalformedResponse = errors.New("malformed dialogue response")

// ParseDialogueResult converts a raw model reply into a DialogueResult.
//
// Bare JSON is decoded directly. Otherwise the first ```json or ``` fenced block is
// decoded. A reply with no fence is treated as plain text: short text becomes the
// next question, long text is replaced by DefaultNextQuestion. A JSON object whose
// fields have the wrong types yields a minimal result asking for more details.
func ParseDialogueResult(content string) (*models.DialogueResult, error) {
	raw := strings.TrimSpace(content)

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		block, fenced := fencedBlock(raw)
		if !fenced {
			next := raw
			if len(next) >= maxPlainTextReply || next == "" {
				next = DefaultNextQuestion
			}
			return &models.DialogueResult{NextQuestion: next, Reasoning: "Direct text response"}, nil
		}
		if err := json.Unmarshal([]byte(block), &obj); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
	}

	data, _ := json.Marshal(obj)
	var result models.DialogueResult
	if err := json.Unmarshal(data, &result); err != nil {
		return &models.DialogueResult{
			NextQuestion: UnparsedNextQuestion,
			Reasoning:    "Fallback due to parsing error: " + err.Error(),
		}, nil
	}
	if strings.TrimSpace(result.NextQuestion) == "" {
		result.NextQuestion = DefaultNextQuestion
	}
	return &result, nil
}

// fencedBlock returns the contents of the first markdown code fence in s.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```json")
	if start >= 0 {
		start += len("```json")
	} else if start = strings.Index(s, "```"); start >= 0 {
		start += len("```")
	} else {
		return "", false
	}
	end := strings.Index(s[start:], "```")
	if end < 0 {
		return strings.TrimSpace(s[start:]), true
	}
	return strings.TrimSpace(s[start : start+end]), true
}
