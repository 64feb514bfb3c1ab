package genai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

type fakeProvider struct {
	name    string
	content string
	err     error
	last    models.DialogueRequest
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req models.DialogueRequest) (string, error) {
	f.calls++
	f.last = req
	return f.content, f.err
}

func TestNewRouterRequiresProvider(t *testing.T) {
	_, err := NewRouter(nil, nil)
	assert.True(t, errors.Is(err, ErrNoProviderConfigured))
}

func TestRouteByStage(t *testing.T) {
	oa := &fakeProvider{name: ProviderOpenAI}
	an := &fakeProvider{name: ProviderAnthropic}
	r, err := NewRouter(oa, an)
	require.NoError(t, err)

	want := map[models.Stage]string{
		models.StageInitial:           ProviderAnthropic,
		models.StageCollectingBasics:  ProviderOpenAI,
		models.StageExploringTools:    ProviderAnthropic,
		models.StageConfiguringTools:  ProviderOpenAI,
		models.StageReviewingWorkflow: ProviderAnthropic,
		models.StageFinalizing:        ProviderOpenAI,
	}
	for stage, name := range want {
		p, err := r.Route(stage)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name(), stage)
	}
}

func TestRouteFallsBackToAvailableProvider(t *testing.T) {
	oa := &fakeProvider{name: ProviderOpenAI}
	r, err := NewRouter(oa, nil)
	require.NoError(t, err)
	p, err := r.Route(models.StageInitial)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p.Name())

	an := &fakeProvider{name: ProviderAnthropic}
	r, err = NewRouter(nil, an)
	require.NoError(t, err)
	p, err = r.Route(models.StageConfiguringTools)
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, p.Name())
}

func TestInvokeWindowsHistory(t *testing.T) {
	oa := &fakeProvider{name: ProviderOpenAI, content: `{"next_question": "Next?"}`}
	r, err := NewRouter(oa, nil, WithHistoryWindow(3))
	require.NoError(t, err)

	req := models.DialogueRequest{SessionID: "s", Stage: models.StageCollectingBasics, UserText: "u"}
	for i := 0; i < 8; i++ {
		req.History = append(req.History, models.ConversationMessage{Role: models.RoleUser, Content: fmt.Sprint(i)})
	}

	got, err := r.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Next?", got.NextQuestion)
	require.Len(t, oa.last.History, 3)
	assert.Equal(t, "5", oa.last.History[0].Content)
	assert.Len(t, req.History, 8, "caller history untouched")
}

func TestInvokeErrors(t *testing.T) {
	oa := &fakeProvider{name: ProviderOpenAI, err: errors.New("rate limited")}
	r, err := NewRouter(oa, nil)
	require.NoError(t, err)
	_, err = r.Invoke(context.Background(), models.DialogueRequest{Stage: models.StageFinalizing})
	assert.ErrorContains(t, err, "openai: rate limited")

	oa.err = nil
	oa.content = "```json\n{broken\n```"
	_, err = r.Invoke(context.Background(), models.DialogueRequest{Stage: models.StageFinalizing})
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestWindowHistory(t *testing.T) {
	h := []models.ConversationMessage{{Content: "a"}, {Content: "b"}}
	assert.Nil(t, windowHistory(h, 0))
	assert.Equal(t, h, windowHistory(h, 10))
	assert.Equal(t, h[1:], windowHistory(h, 1))
}
