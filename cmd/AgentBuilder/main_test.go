package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/AgentBuilder/internal/flow"
	"github.com/BTreeMap/AgentBuilder/internal/genai"
	"github.com/BTreeMap/AgentBuilder/internal/store"
	"github.com/BTreeMap/AgentBuilder/internal/testutil"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	return &Config{
		LogLevel:    "info",
		StateDir:    dir,
		DatabaseURL: filepath.Join(dir, "agentbuilder.db"),
		LockTimeout: time.Second,
	}
}

func TestInitializeLogger(t *testing.T) {
	for _, level := range []string{"debug", "INFO", " warn ", "error"} {
		assert.NoError(t, initializeLogger(level), level)
	}
	assert.Error(t, initializeLogger("loud"))
}

func TestLoadEnvironmentConfig(t *testing.T) {
	t.Setenv("AGENTBUILDER_STATE_DIR", "/tmp/agentbuilder-test")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("HISTORY_WINDOW", "4")
	t.Setenv("TWILIO_VALIDATE_SIGNATURE", "false")
	t.Setenv("API_ADDR", "")

	cfg := loadEnvironmentConfig()
	assert.Equal(t, "/tmp/agentbuilder-test", cfg.StateDir)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 4, cfg.HistoryWindow)
	assert.False(t, cfg.ValidateSignature)
	assert.Equal(t, DefaultAPIAddr, cfg.APIAddr)
	assert.Equal(t, flow.DefaultDialogueTimeout, cfg.DialogueTimeout)
}

func TestStoreDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"default sqlite", Config{StateDir: "/data"}, "/data/" + DefaultDBFileName},
		{"explicit url", Config{StateDir: "/data", DatabaseURL: "postgres://db/agents"}, "postgres://db/agents"},
		{"in memory wins", Config{StateDir: "/data", DatabaseURL: "postgres://db/agents", InMemory: true}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, storeDSN(&tt.cfg))
		})
	}
}

func TestBuildRouter(t *testing.T) {
	cfg := testConfig(t)
	_, err := buildRouter(cfg)
	assert.True(t, errors.Is(err, genai.ErrNoProviderConfigured))

	cfg.OpenAIKey = "sk-test"
	cfg.OpenAIModel = genai.DefaultOpenAIModel
	router, err := buildRouter(cfg)
	require.NoError(t, err)
	assert.NotNil(t, router)
}

func TestBuildAPIOptions(t *testing.T) {
	cfg := testConfig(t)
	opts, err := buildAPIOptions(cfg)
	require.NoError(t, err)
	assert.Len(t, opts, 1, "webhook stays disabled without Twilio credentials")

	cfg.TwilioAccountSID = "AC123"
	cfg.TwilioAuthToken = "token"
	cfg.TwilioFromNumber = "+15550000000"
	cfg.ValidateSignature = true
	_, err = buildAPIOptions(cfg)
	assert.Error(t, err, "signature validation needs a public URL")

	cfg.PublicBaseURL = "https://agents.example.com"
	opts, err = buildAPIOptions(cfg)
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}

func TestRunChatToCompletionThenRender(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(cfg, testutil.NewScriptedDialogue(testutil.CompletionScript()...))
	require.NoError(t, err)

	in := strings.NewReader("hello\n\n/status\na friendly billing support agent\nno tools\nlooks good\nship it\n")
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), a.sessions, "", in, &out))

	transcript := out.String()
	assert.Contains(t, transcript, flow.InitialQuestion)
	assert.Contains(t, transcript, "stage collecting_basics")
	assert.Contains(t, transcript, "--- system prompt ---")
	assert.Contains(t, transcript, "customer support")

	ids, err := a.store.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids, "completed sessions are not active")

	sessionID := strings.Fields(strings.TrimPrefix(transcript, "Session "))[0]
	a.Close()

	render := newRenderCmd(cfg)
	var diagram bytes.Buffer
	render.SetOut(&diagram)
	render.SetArgs([]string{sessionID})
	require.NoError(t, render.Execute())
	assert.True(t, strings.HasPrefix(diagram.String(), "flowchart TD"), diagram.String())

	export := newExportCmd(cfg)
	var exported bytes.Buffer
	export.SetOut(&exported)
	export.SetArgs([]string{sessionID, "--format", "markdown"})
	require.NoError(t, export.Execute())
	assert.Contains(t, exported.String(), "customer support")
}

func TestRunChatQuitAndResume(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(cfg, testutil.NewScriptedDialogue(testutil.Reply("What should the agent do?")))
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runChat(ctx, a.sessions, "", strings.NewReader("hello\n/quit\n"), &out))
	assert.Contains(t, out.String(), "What should the agent do?")
	assert.Contains(t, out.String(), "chat --session")

	ids, err := a.store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	out.Reset()
	require.NoError(t, runChat(ctx, a.sessions, ids[0], strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "(collecting_basics)")
}

func TestRenderMissingSession(t *testing.T) {
	cfg := testConfig(t)
	cmd := newRenderCmd(cfg)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"nope"})
	err := cmd.Execute()
	assert.True(t, errors.Is(err, store.ErrSessionNotFound), "got %v", err)
}
