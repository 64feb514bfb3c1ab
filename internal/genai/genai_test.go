package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
	calls  int
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.calls++
	m.params = params
	return m.resp, m.err
}

func completionWith(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func testRequest() models.DialogueRequest {
	return models.DialogueRequest{
		SessionID:    "s1",
		SystemPrompt: "system prompt",
		UserText:     "I want a booking agent",
		Stage:        models.StageInitial,
		History: []models.ConversationMessage{
			{Role: models.RoleUser, Content: "hi"},
			{Role: models.RoleAssistant, Content: "hello"},
		},
	}
}

func TestComplete_Success(t *testing.T) {
	svc := &mockChatService{resp: completionWith(`{"next_question":"Hello World"}`)}
	client := &Client{chat: svc, model: "test-model", temperature: 0.3, maxTokens: 50}

	out, err := client.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != `{"next_question":"Hello World"}` {
		t.Errorf("unexpected content %q", out)
	}

	p := svc.params
	if string(p.Model) != "test-model" {
		t.Errorf("expected model test-model, got %s", p.Model)
	}
	if len(p.Messages) != 4 {
		t.Fatalf("expected system, 2 history and user messages, got %d", len(p.Messages))
	}
	if p.Messages[0].OfSystem == nil || p.Messages[2].OfAssistant == nil || p.Messages[3].OfUser == nil {
		t.Errorf("unexpected message roles: %+v", p.Messages)
	}
	if p.ResponseFormat.OfJSONObject == nil {
		t.Error("expected JSON object response format")
	}
	if p.Temperature.Value != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", p.Temperature.Value)
	}
	if p.MaxCompletionTokens.Value != 50 {
		t.Errorf("expected max tokens 50, got %v", p.MaxCompletionTokens.Value)
	}
}

func TestComplete_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.Complete(context.Background(), testRequest())
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}}
	_, err := client.Complete(context.Background(), testRequest())
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: completionWith("")}}
	_, err := client.Complete(context.Background(), testRequest())
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected empty response error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	_, err := NewClient()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestNewClient_WithOptions(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-test"), WithTemperature(0.1), WithMaxTokens(10), WithBaseURL("http://localhost:1"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli.model != "gpt-test" || cli.temperature != 0.1 || cli.maxTokens != 10 {
		t.Errorf("options not applied: %+v", cli)
	}
	if cli.Name() != ProviderOpenAI {
		t.Errorf("expected provider name %s, got %s", ProviderOpenAI, cli.Name())
	}
}

func TestNewClient_Defaults(t *testing.T) {
	cli, err := NewClient(WithAPIKey("k"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cli.model != DefaultOpenAIModel || cli.temperature != DefaultTemperature || cli.maxTokens != DefaultMaxTokens {
		t.Errorf("unexpected defaults: %+v", cli)
	}
}
