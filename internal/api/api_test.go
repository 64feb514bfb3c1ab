package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/BTreeMap/AgentBuilder/internal/flow"
	"github.com/BTreeMap/AgentBuilder/internal/models"
	"github.com/BTreeMap/AgentBuilder/internal/prompt"
	"github.com/BTreeMap/AgentBuilder/internal/session"
	"github.com/BTreeMap/AgentBuilder/internal/store"
	"github.com/BTreeMap/AgentBuilder/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testEnv struct {
	server   *Server
	handler  http.Handler
	store    store.SessionStore
	dialogue *testutil.ScriptedDialogue
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	catalog, err := prompt.NewCatalog()
	require.NoError(t, err)
	gen := prompt.NewGenerator()
	d := testutil.NewScriptedDialogue()
	orch := flow.NewOrchestrator(d, catalog, flow.WithFinalPromptGenerator(gen))
	mgr := session.NewManager(orch, st, gen, session.WithLockTimeout(time.Second))

	srv := NewServer(mgr, opts...)
	return &testEnv{server: srv, handler: srv.Handler(), store: st, dialogue: d}
}

func (e *testEnv) do(t *testing.T, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, testutil.CreateHTTPRequest(t, method, url, body))
	return rr
}

func (e *testEnv) seed(t *testing.T, state *models.SessionState) {
	t.Helper()
	require.NoError(t, e.store.Save(context.Background(), state))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/health", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	testutil.AssertJSONResponse(t, rr, string(models.APIStatusOK))
}

func TestCreateSessionAndSendMessages(t *testing.T) {
	env := newTestEnv(t)
	env.dialogue.Push(testutil.CompletionScript()...)

	rr := env.do(t, http.MethodPost, "/sessions", nil)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create session")
	var created models.SessionResponse
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, "ok"), &created)
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, models.StageInitial, created.Stage)
	assert.Equal(t, flow.InitialQuestion, created.Message)

	base := "/sessions/" + created.SessionID
	var last models.MessageResponse
	for _, msg := range []string{"hi", "support agent for billing, friendly", "no tools", "yes", "done"} {
		rr = env.do(t, http.MethodPost, base+"/messages", models.MessageRequest{Message: msg})
		testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "send "+msg)
		testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, "ok"), &last)
		if last.Stage == models.StageReviewingWorkflow {
			require.NotNil(t, last.Workflow)
		}
	}
	assert.True(t, last.IsComplete)
	assert.NotEmpty(t, last.FinalPrompt)

	rr = env.do(t, http.MethodPost, base+"/messages", models.MessageRequest{Message: "again"})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "message to completed session")
	testutil.AssertJSONResponse(t, rr, "error")

	rr = env.do(t, http.MethodGet, base+"/status", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "status")
	var status models.SessionStatusResponse
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, "ok"), &status)
	assert.Equal(t, models.SessionStatusCompleted, status.Status)
	assert.Equal(t, 100, status.ProgressPercentage)
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testutil.NewState("s1"))

	tests := []struct {
		name string
		url  string
		body interface{}
		code int
	}{
		{"empty message", "/sessions/s1/messages", models.MessageRequest{Message: " "}, http.StatusBadRequest},
		{"too long", "/sessions/s1/messages", models.MessageRequest{Message: strings.Repeat("a", models.MaxMessageLength+1)}, http.StatusBadRequest},
		{"unknown session", "/sessions/nope/messages", models.MessageRequest{Message: "hi"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tt.url, tt.body)
			testutil.AssertHTTPStatus(t, tt.code, rr.Code, tt.name)
			testutil.AssertJSONResponse(t, rr, "error")
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/sessions/s1/messages", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid JSON")
}

func TestResumeAndDelete(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testutil.NewState("s1", testutil.WithBasics("tutor", "teach", "kind")))

	rr := env.do(t, http.MethodPost, "/sessions/s1/resume", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "resume")
	var resumed models.MessageResponse
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, "ok"), &resumed)
	assert.Contains(t, resumed.AIResponse, "tutor")

	rr = env.do(t, http.MethodDelete, "/sessions/s1", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "delete")

	rr = env.do(t, http.MethodGet, "/sessions/s1/status", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "status after delete")
	var status models.SessionStatusResponse
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, "ok"), &status)
	assert.Equal(t, models.SessionStatusAbandoned, status.Status)

	rr = env.do(t, http.MethodPost, "/sessions/s1/messages", models.MessageRequest{Message: "hello?"})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "message after delete")

	rr = env.do(t, http.MethodDelete, "/sessions/nope", nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "delete unknown")
}

func TestWorkflowEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testutil.NewState("early", testutil.WithStage(models.StageCollectingBasics)))
	env.seed(t, testutil.NewState("s1",
		testutil.WithStage(models.StageReviewingWorkflow),
		testutil.WithBasics("booking assistant", "book tables", "warm"),
		testutil.WithoutTools(),
	))

	rr := env.do(t, http.MethodGet, "/sessions/early/workflow", nil)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "workflow not ready")

	rr = env.do(t, http.MethodPost, "/sessions/s1/workflow/review", models.WorkflowReviewRequest{Approved: true})
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "review before workflow exists")

	rr = env.do(t, http.MethodGet, "/sessions/s1/workflow", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get workflow")
	var wf models.WorkflowResponse
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, "ok"), &wf)
	assert.Equal(t, 1, wf.Version)
	assert.Contains(t, wf.MermaidDiagram, "flowchart TD")
	require.NotNil(t, wf.Workflow)
	assert.NotEmpty(t, wf.Workflow.Nodes)

	rr = env.do(t, http.MethodPost, "/sessions/s1/workflow/review", models.WorkflowReviewRequest{Approved: true})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "approve")
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, "ok"), &wf)
	assert.True(t, wf.IsApproved)

	rr = env.do(t, http.MethodPost, "/sessions/s1/workflow/regenerate", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "regenerate")
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, "ok"), &wf)
	assert.Equal(t, 2, wf.Version)
	assert.False(t, wf.IsApproved)
}

func TestPromptsAndExport(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testutil.NewState("bare"))
	env.seed(t, testutil.NewState("s1",
		testutil.WithStage(models.StageCompleted),
		testutil.WithBasics("customer support", "resolve tickets", "calm"),
		testutil.WithoutTools(),
	))

	rr := env.do(t, http.MethodPost, "/sessions/bare/prompts", nil)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "prompts without facts")

	rr = env.do(t, http.MethodPost, "/sessions/s1/prompts", models.PromptGenerateRequest{
		Formats: []models.PromptFormat{models.PromptFormatElevenLabs, models.PromptFormatGeneric},
	})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "prompts")
	var prompts map[string]models.GeneratedPrompt
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, "ok"), &prompts)
	assert.Len(t, prompts, 2)
	assert.Contains(t, prompts["elevenlabs"].SystemPrompt, "voice agent")

	rr = env.do(t, http.MethodGet, "/sessions/s1/export?format=yaml", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "export yaml")
	assert.Equal(t, "application/x-yaml", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "customer_support_agent.yaml")
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "agent_type: customer support")
	assert.Contains(t, string(body), "workflow_diagram:")

	rr = env.do(t, http.MethodGet, "/sessions/s1/export?include_workflow=false", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "export json")
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotContains(t, rr.Body.String(), "workflow_diagram")

	rr = env.do(t, http.MethodGet, "/sessions/s1/export?format=pdf", nil)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "unsupported format")

	rr = env.do(t, http.MethodGet, "/sessions/s1/export?include_workflow=maybe", nil)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "bad include_workflow")
}

func TestUnknownRouteAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/nope", nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown route")

	rr = env.do(t, http.MethodPut, "/sessions", nil)
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "wrong method")

	rr = env.do(t, http.MethodGet, "/metrics", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "metrics")
	assert.Contains(t, rr.Body.String(), "agentbuilder_http_requests_total")
}

func TestTwilioWebhookDisabledByDefault(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/twilio/webhook", nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "webhook without WhatsApp")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, WithShutdownTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
