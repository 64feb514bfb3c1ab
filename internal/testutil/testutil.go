// Package testutil provides common test utilities and helpers for AgentBuilder tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// DefaultReply is returned by ScriptedDialogue once its script is exhausted.
const DefaultReply = "Anything else?"

// ScriptedDialogue is a dialogue capability that replays queued steps in order.
// It is safe for concurrent use.
type ScriptedDialogue struct {
	mu       sync.Mutex
	steps    []scriptStep
	requests []models.DialogueRequest
}

type scriptStep struct {
	result *models.DialogueResult
	err    error
}

// NewScriptedDialogue creates a dialogue that returns results one per call.
func NewScriptedDialogue(results ...*models.DialogueResult) *ScriptedDialogue {
	d := &ScriptedDialogue{}
	d.Push(results...)
	return d
}

// Push queues results.
func (d *ScriptedDialogue) Push(results ...*models.DialogueResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range results {
		d.steps = append(d.steps, scriptStep{result: r})
	}
}

// PushError queues a failing call.
func (d *ScriptedDialogue) PushError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.steps = append(d.steps, scriptStep{err: err})
}

// Invoke implements flow.DialogueCapability.
func (d *ScriptedDialogue) Invoke(ctx context.Context, req models.DialogueRequest) (*models.DialogueResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if len(d.steps) == 0 {
		return Reply(DefaultReply), nil
	}
	step := d.steps[0]
	d.steps = d.steps[1:]
	if step.err != nil {
		return nil, step.err
	}
	return step.result, nil
}

// Requests returns a copy of the requests seen so far.
func (d *ScriptedDialogue) Requests() []models.DialogueRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.DialogueRequest(nil), d.requests...)
}

// Reply is a result that only asks the next question.
func Reply(next string) *models.DialogueResult {
	return &models.DialogueResult{NextQuestion: next}
}

// Basics is a result that collects agent type, goals and tone with high confidence.
func Basics(agentType, goals, tone string) *models.DialogueResult {
	return &models.DialogueResult{
		NextQuestion: "Will your agent need any external tools?",
		ExtractedData: models.ExtractedData{
			AgentType: agentType,
			Goals:     goals,
			Tone:      tone,
		},
		Confidence:    models.ConfidenceScores{AgentType: 0.9, Goals: 0.9, Tone: 0.9},
		StageComplete: true,
	}
}

// UseTools is a result that answers the tools question with high confidence.
func UseTools(enabled bool) *models.DialogueResult {
	return &models.DialogueResult{
		NextQuestion:  "Got it.",
		ExtractedData: models.ExtractedData{UseTools: models.Ptr(enabled)},
		Confidence:    models.ConfidenceScores{UseTools: 0.9},
		StageComplete: true,
	}
}

// Approve is a result that signals user approval of the current stage.
func Approve() *models.DialogueResult {
	return &models.DialogueResult{NextQuestion: "Great, moving on.", StageComplete: true}
}

// CompletionScript walks a new session without tools to the completed stage.
func CompletionScript() []*models.DialogueResult {
	return []*models.DialogueResult{
		Reply("What should the agent do?"),
		Basics("customer support", "answer billing questions", "friendly"),
		UseTools(false),
		Approve(),
		Approve(),
	}
}

// StateOption customizes a state built by NewState.
type StateOption func(*models.SessionState)

// WithStage sets the stage.
func WithStage(stage models.Stage) StateOption {
	return func(s *models.SessionState) { s.Stage = stage }
}

// WithBasics sets and marks collected the three basic facts.
func WithBasics(agentType, goals, tone string) StateOption {
	return func(s *models.SessionState) {
		s.AgentType = models.Ptr(agentType)
		s.Goals = models.Ptr(goals)
		s.Tone = models.Ptr(tone)
		s.MarkCollected(models.FieldAgentType)
		s.MarkCollected(models.FieldGoals)
		s.MarkCollected(models.FieldTone)
	}
}

// WithTools enables tools and sets the tool list.
func WithTools(tools ...models.ToolSpec) StateOption {
	return func(s *models.SessionState) {
		s.UseTools = models.Ptr(true)
		s.Tools = append(s.Tools, tools...)
		s.MarkCollected(models.FieldUseTools)
		if len(tools) > 0 {
			s.MarkCollected(models.FieldTools)
		}
	}
}

// WithoutTools records that the user declined tools.
func WithoutTools() StateOption {
	return func(s *models.SessionState) {
		s.UseTools = models.Ptr(false)
		s.MarkCollected(models.FieldUseTools)
	}
}

// FixedTime is the timestamp used by NewState.
var FixedTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// NewState builds an active session state for tests.
func NewState(id string, opts ...StateOption) *models.SessionState {
	s := models.NewSessionState(id, FixedTime)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes an APIResponse body and validates its status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if response.Status != expectedStatus {
		t.Errorf("expected status '%s', got '%s' (message %q)", expectedStatus, response.Status, response.Message)
	}
	return response
}

// DecodeResult re-decodes the result field of an APIResponse into target.
func DecodeResult(t *testing.T, response models.APIResponse, target interface{}) {
	t.Helper()
	MustUnmarshalJSON(t, MustMarshalJSON(t, response.Result), target)
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
