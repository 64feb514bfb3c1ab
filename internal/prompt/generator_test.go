package prompt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/AgentBuilder/internal/models"
	"github.com/BTreeMap/AgentBuilder/internal/workflow"
)

var genTime = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

func completedState() *models.SessionState {
	s := models.NewSessionState("sess-42", genTime)
	s.Stage = models.StageCompleted
	s.AgentType = models.Ptr("customer support")
	s.Goals = models.Ptr("track orders and handle returns")
	s.Tone = models.Ptr("friendly")
	s.UseTools = models.Ptr(true)
	s.Tools = []models.ToolSpec{{
		Name:        "Order API",
		Description: "Looks up order status",
		Endpoint:    "https://api.example.com/orders",
		Method:      "GET",
		InputSchema: map[string]any{"type": "object"},
	}}
	return s
}

func newTestGenerator() *Generator {
	return NewGenerator(WithGeneratorClock(func() time.Time { return genTime }))
}

func TestGenerateEveryPlatform(t *testing.T) {
	g := newTestGenerator()
	s := completedState()
	for _, f := range models.PromptFormats {
		t.Run(string(f), func(t *testing.T) {
			p := g.Generate(s, f)
			assert.Equal(t, f, p.Format)
			assert.Contains(t, p.SystemPrompt, "track orders and handle returns")
			assert.Contains(t, p.SystemPrompt, "Order API")
			assert.Equal(t, 1, p.Metadata["tool_count"])
			assert.Equal(t, "2025-05-06T07:08:09Z", p.Metadata["generated_at"])
		})
	}
}

func TestGeneratePlatformSpecifics(t *testing.T) {
	g := newTestGenerator()
	s := completedState()

	assert.True(t, strings.HasPrefix(g.Generate(s, models.PromptFormatElevenLabs).SystemPrompt,
		"You are a friendly customer support voice agent designed to track orders and handle returns."))
	assert.True(t, strings.HasPrefix(g.Generate(s, models.PromptFormatOpenAIAssistant).SystemPrompt,
		"# Customer Support Assistant\n\n"))
	assert.Contains(t, g.Generate(s, models.PromptFormatAnthropic).SystemPrompt, `<tool name="Order API">`)
	assert.Contains(t, g.Generate(s, models.PromptFormatGeneric).SystemPrompt, "1. Order API - Looks up order status")
}

func TestGenerateUnknownFormatUsesGeneric(t *testing.T) {
	g := newTestGenerator()
	s := completedState()
	assert.Equal(t,
		g.Generate(s, models.PromptFormatGeneric).SystemPrompt,
		g.Generate(s, models.PromptFormat("fax")).SystemPrompt)
}

func TestGenerateDefaultsForEmptySession(t *testing.T) {
	p := newTestGenerator().Generate(models.NewSessionState("empty", genTime), models.PromptFormatGeneric)
	assert.True(t, strings.HasPrefix(p.SystemPrompt, "You are a helpful assistant assistant. Your purpose is to assist users."))
	assert.NotContains(t, p.SystemPrompt, "Available Tools")
	assert.Equal(t, []string{
		"Ask clarifying questions when needed",
		"Provide clear, actionable responses",
		"Handle errors gracefully",
	}, p.Instructions)
}

func TestInstructions(t *testing.T) {
	s := completedState()
	s.Constraints = []string{"never share card numbers"}
	got := instructions(s)
	assert.Equal(t, []string{
		"Primary goal: track orders and handle returns",
		"Maintain friendly tone",
		"Use available tools when appropriate",
		"Constraint: never share card numbers",
		"Ask clarifying questions when needed",
		"Provide clear, actionable responses",
		"Handle errors gracefully",
	}, got)
}

func TestGenerateAllPreservesOrder(t *testing.T) {
	prompts, order := newTestGenerator().GenerateAll(completedState(), []models.PromptFormat{
		models.PromptFormatAnthropic, models.PromptFormatElevenLabs, models.PromptFormatAnthropic,
	})
	assert.Equal(t, []string{"anthropic", "elevenlabs"}, order)
	assert.Len(t, prompts, 2)

	all, order := newTestGenerator().GenerateAll(completedState(), nil)
	assert.Len(t, all, len(models.PromptFormats))
	assert.Equal(t, "elevenlabs", order[0])
}

func TestToolConfigurations(t *testing.T) {
	g := newTestGenerator()
	s := completedState()
	tools := g.ToolConfigurations(s)
	require.Len(t, tools, 1)
	assert.Equal(t, "GET", tools[0].Method)
	assert.Equal(t, map[string]any{"type": "object"}, tools[0].Parameters)

	s.UseTools = models.Ptr(false)
	assert.Empty(t, g.ToolConfigurations(s))
}

func TestFinalPrompt(t *testing.T) {
	s := completedState()
	g := NewGenerator(WithFinalFormat(models.PromptFormatElevenLabs))
	assert.Equal(t, g.Generate(s, models.PromptFormatElevenLabs).SystemPrompt, g.FinalPrompt(s))
}

func exportPackage(t *testing.T) (*Generator, *models.PromptExport) {
	t.Helper()
	g := newTestGenerator()
	s := completedState()
	wf := workflow.NewSynthesizer().Synthesize(s)
	return g, g.CreateExport(s, wf, []models.PromptFormat{models.PromptFormatGeneric, models.PromptFormatAnthropic})
}

func TestCreateExport(t *testing.T) {
	_, pkg := exportPackage(t)
	assert.Equal(t, "sess-42", pkg.SessionID)
	assert.Equal(t, "customer support", pkg.AgentType)
	assert.Equal(t, "2025-05-06T07:08:09Z", pkg.CreatedAt)
	assert.True(t, strings.HasPrefix(pkg.WorkflowDiagram, "flowchart TD"))
	assert.Contains(t, pkg.WorkflowSummary, "=== CUSTOMER SUPPORT AGENT WORKFLOW ===")
	assert.Len(t, pkg.Tools, 1)
}

func TestRenderJSON(t *testing.T) {
	g, pkg := exportPackage(t)
	out, err := g.Render(pkg, models.ExportFormatJSON)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &back))
	assert.Equal(t, "sess-42", back["session_id"])
	assert.Contains(t, back["prompts"], "anthropic")
	assert.Contains(t, out, "-->", "HTML characters are not escaped")
}

func TestRenderYAML(t *testing.T) {
	g, pkg := exportPackage(t)
	out, err := g.Render(pkg, models.ExportFormatYAML)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &back))
	assert.Equal(t, "customer support", back["agent_type"])
	assert.NotContains(t, back, "PromptOrder")
}

func TestRenderMarkdown(t *testing.T) {
	g, pkg := exportPackage(t)
	out, err := g.Render(pkg, models.ExportFormatMarkdown)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# CUSTOMER SUPPORT Agent Configuration\n"))
	assert.Contains(t, out, "- **Tools:** 1\n")
	assert.Less(t, strings.Index(out, "### GENERIC"), strings.Index(out, "### ANTHROPIC"))
	assert.Contains(t, out, "**Endpoint:** `GET https://api.example.com/orders`")
	assert.Contains(t, out, "```mermaid\nflowchart TD")
}

func TestRenderText(t *testing.T) {
	g, pkg := exportPackage(t)
	out, err := g.Render(pkg, models.ExportFormatText)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("=", 70)+"\n  CUSTOMER SUPPORT AGENT CONFIGURATION\n"))
	assert.Contains(t, out, "\n[ GENERIC ]\n")
	assert.Contains(t, out, "   Endpoint: GET https://api.example.com/orders")
	assert.True(t, strings.HasSuffix(out, strings.Repeat("=", 70)))
}

func TestRenderUnsupported(t *testing.T) {
	g, pkg := exportPackage(t)
	_, err := g.Render(pkg, models.ExportFormat("pdf"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}
