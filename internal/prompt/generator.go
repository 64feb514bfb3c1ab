package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/AgentBuilder/internal/models"
	"github.com/BTreeMap/AgentBuilder/internal/workflow"
)

// ErrUnsupportedFormat is returned for unknown export formats.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Fallbacks used when a session is missing core facts.
const (
	defaultAgentType = "assistant"
	defaultGoals     = "assist users"
	defaultTone      = "helpful"
)

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithFinalFormat sets the platform format used for a session's final prompt.
func WithFinalFormat(f models.PromptFormat) GeneratorOption {
	return func(g *Generator) { g.finalFormat = f }
}

// WithGeneratorClock overrides the time source used for metadata timestamps.
func WithGeneratorClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// Generator turns a finished session into platform prompts and export packages.
type Generator struct {
	finalFormat models.PromptFormat
	now         func() time.Time
}

// NewGenerator creates a Generator. The final prompt defaults to the generic format.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{finalFormat: models.PromptFormatGeneric, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func factsOf(state *models.SessionState) agentFacts {
	f := agentFacts{
		AgentType: models.StringValue(state.AgentType),
		Goals:     models.StringValue(state.Goals),
		Tone:      models.StringValue(state.Tone),
		UseTools:  state.ToolsEnabled(),
		Tools:     state.Tools,
	}
	if f.AgentType == "" {
		f.AgentType = defaultAgentType
	}
	if f.Goals == "" {
		f.Goals = defaultGoals
	}
	if f.Tone == "" {
		f.Tone = defaultTone
	}
	return f
}

// Generate builds the system prompt for one platform. Unknown formats use the generic template.
func (g *Generator) Generate(state *models.SessionState, format models.PromptFormat) models.GeneratedPrompt {
	tmpl, ok := platformTemplates[format]
	if !ok {
		slog.Debug("Generator Generate unknown format, using generic", "format", format)
		tmpl = platformTemplates[models.PromptFormatGeneric]
	}
	return models.GeneratedPrompt{
		Format:       format,
		SystemPrompt: tmpl(factsOf(state)),
		Instructions: instructions(state),
		Metadata: map[string]any{
			"agent_type":   models.StringValue(state.AgentType),
			"goals":        models.StringValue(state.Goals),
			"tone":         models.StringValue(state.Tone),
			"use_tools":    state.ToolsEnabled(),
			"tool_count":   len(state.Tools),
			"generated_at": g.now().UTC().Format(time.RFC3339),
		},
	}
}

// GenerateAll builds prompts for formats, or for every platform when formats is empty.
// The returned keys preserve the order of formats.
func (g *Generator) GenerateAll(state *models.SessionState, formats []models.PromptFormat) (map[string]models.GeneratedPrompt, []string) {
	if len(formats) == 0 {
		formats = models.PromptFormats
	}
	prompts := make(map[string]models.GeneratedPrompt, len(formats))
	var order []string
	for _, f := range formats {
		if _, dup := prompts[string(f)]; dup {
			continue
		}
		prompts[string(f)] = g.Generate(state, f)
		order = append(order, string(f))
	}
	return prompts, order
}

// FinalPrompt returns the deployable system prompt of a completed session.
func (g *Generator) FinalPrompt(state *models.SessionState) string {
	return g.Generate(state, g.finalFormat).SystemPrompt
}

// ToolConfigurations converts configured tools into deployable descriptions.
func (g *Generator) ToolConfigurations(state *models.SessionState) []models.ToolConfiguration {
	if !state.ToolsEnabled() || len(state.Tools) == 0 {
		return []models.ToolConfiguration{}
	}
	out := make([]models.ToolConfiguration, 0, len(state.Tools))
	for _, t := range state.Tools {
		method := t.Method
		if method == "" {
			method = "POST"
		}
		out = append(out, models.ToolConfiguration{
			Name:         toolName(t, "Unnamed Tool"),
			Description:  t.Description,
			Parameters:   orEmpty(t.InputSchema),
			OutputSchema: t.OutputSchema,
			Endpoint:     t.Endpoint,
			Method:       method,
			UsageContext: t.UsageContext,
		})
	}
	return out
}

// CreateExport bundles prompts, tools and the rendered workflow. wf may be nil.
func (g *Generator) CreateExport(state *models.SessionState, wf *models.WorkflowData, formats []models.PromptFormat) *models.PromptExport {
	f := factsOf(state)
	prompts, order := g.GenerateAll(state, formats)
	pkg := &models.PromptExport{
		SessionID:   state.SessionID,
		AgentType:   f.AgentType,
		AgentGoals:  f.Goals,
		AgentTone:   f.Tone,
		Prompts:     prompts,
		PromptOrder: order,
		Tools:       g.ToolConfigurations(state),
		CreatedAt:   g.now().UTC().Format(time.RFC3339),
	}
	if wf != nil {
		pkg.WorkflowDiagram = workflow.Mermaid(wf)
		pkg.WorkflowSummary = workflow.TextSummary(wf)
	}
	return pkg
}

// Render serializes an export package in the requested format.
func (g *Generator) Render(pkg *models.PromptExport, format models.ExportFormat) (string, error) {
	switch format {
	case models.ExportFormatJSON:
		return renderJSON(pkg)
	case models.ExportFormatYAML:
		return renderYAML(pkg)
	case models.ExportFormatMarkdown:
		return renderMarkdown(pkg), nil
	case models.ExportFormatText:
		return renderText(pkg), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func instructions(state *models.SessionState) []string {
	var out []string
	if goals := models.StringValue(state.Goals); goals != "" {
		out = append(out, "Primary goal: "+goals)
	}
	if tone := models.StringValue(state.Tone); tone != "" {
		out = append(out, fmt.Sprintf("Maintain %s tone", tone))
	}
	if state.ToolsEnabled() {
		out = append(out, "Use available tools when appropriate")
	}
	for _, c := range state.Constraints {
		out = append(out, "Constraint: "+c)
	}
	if state.EscalationRules != "" {
		out = append(out, "Escalate when: "+state.EscalationRules)
	}
	return append(out,
		"Ask clarifying questions when needed",
		"Provide clear, actionable responses",
		"Handle errors gracefully",
	)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
