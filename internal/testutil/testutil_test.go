package testutil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

func TestScriptedDialogueReplaysInOrder(t *testing.T) {
	d := NewScriptedDialogue(Reply("first"), Reply("second"))
	d.PushError(errors.New("boom"))

	ctx := context.Background()
	for _, want := range []string{"first", "second"} {
		res, err := d.Invoke(ctx, models.DialogueRequest{UserText: want})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.NextQuestion != want {
			t.Errorf("expected %q, got %q", want, res.NextQuestion)
		}
	}
	if _, err := d.Invoke(ctx, models.DialogueRequest{}); err == nil {
		t.Error("expected scripted error")
	}
	res, err := d.Invoke(ctx, models.DialogueRequest{})
	if err != nil || res.NextQuestion != DefaultReply {
		t.Errorf("expected default reply after script, got %+v, %v", res, err)
	}
	if got := len(d.Requests()); got != 4 {
		t.Errorf("expected 4 recorded requests, got %d", got)
	}
}

func TestNewState(t *testing.T) {
	s := NewState("s1", WithBasics("tutor", "teach math", "patient"), WithTools(models.ToolSpec{Name: "grader"}))
	if s.Stage != models.StageInitial || s.Status != models.SessionStatusActive {
		t.Errorf("unexpected stage/status: %s/%s", s.Stage, s.Status)
	}
	if !s.ToolsEnabled() || len(s.Tools) != 1 {
		t.Errorf("expected one enabled tool, got %+v", s.Tools)
	}
	for _, f := range []string{models.FieldAgentType, models.FieldGoals, models.FieldTone, models.FieldUseTools, models.FieldTools} {
		if !s.HasCollected(f) {
			t.Errorf("expected %s to be collected", f)
		}
	}

	declined := NewState("s2", WithStage(models.StageExploringTools), WithoutTools())
	if declined.ToolsEnabled() || declined.Stage != models.StageExploringTools {
		t.Errorf("unexpected declined state: %+v", declined)
	}
}

func TestAssertHTTPStatus(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusNotFound} {
		AssertHTTPStatus(t, code, code, "matching status codes")
	}
}

func TestAssertJSONResponseAndDecodeResult(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.WriteHeader(http.StatusOK)
	rr.Body.Write(MustMarshalJSON(t, models.Success(map[string]string{"session_id": "abc"})))

	resp := AssertJSONResponse(t, rr, string(models.APIStatusOK))
	var out struct {
		SessionID string `json:"session_id"`
	}
	DecodeResult(t, resp, &out)
	if out.SessionID != "abc" {
		t.Errorf("expected session_id abc, got %q", out.SessionID)
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodPost, "/sessions", map[string]string{"initial_message": "hi"})
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON content type, got %q", req.Header.Get("Content-Type"))
	}
	empty := CreateHTTPRequest(t, http.MethodGet, "/health", nil)
	if empty.Header.Get("Content-Type") != "" {
		t.Error("expected no content type for empty body")
	}
}
