package models

// PromptFormat is a target platform for a generated system prompt.
type PromptFormat string

const (
	PromptFormatElevenLabs      PromptFormat = "elevenlabs"
	PromptFormatOpenAIAssistant PromptFormat = "openai_assistant"
	PromptFormatOpenAIChat      PromptFormat = "openai_chat"
	PromptFormatAnthropic       PromptFormat = "anthropic"
	PromptFormatGeneric         PromptFormat = "generic"
)

// PromptFormats lists every supported platform format.
var PromptFormats = []PromptFormat{
	PromptFormatElevenLabs,
	PromptFormatOpenAIAssistant,
	PromptFormatOpenAIChat,
	PromptFormatAnthropic,
	PromptFormatGeneric,
}

// ExportFormat is a file format for an export package.
type ExportFormat string

const (
	ExportFormatJSON     ExportFormat = "json"
	ExportFormatYAML     ExportFormat = "yaml"
	ExportFormatMarkdown ExportFormat = "markdown"
	ExportFormatText     ExportFormat = "text"
)

// GeneratedPrompt is a system prompt for one platform.
type GeneratedPrompt struct {
	Format       PromptFormat   `json:"format" yaml:"format"`
	SystemPrompt string         `json:"system_prompt" yaml:"system_prompt"`
	Instructions []string       `json:"instructions" yaml:"instructions"`
	Metadata     map[string]any `json:"metadata" yaml:"metadata"`
}

// ToolConfiguration is the deployable description of one tool.
type ToolConfiguration struct {
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description" yaml:"description"`
	Parameters   map[string]any `json:"parameters" yaml:"parameters"`
	OutputSchema map[string]any `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	Endpoint     string         `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Method       string         `json:"method" yaml:"method"`
	UsageContext string         `json:"usage_context,omitempty" yaml:"usage_context,omitempty"`
}

// PromptExport bundles everything needed to deploy a finished agent.
type PromptExport struct {
	SessionID       string                     `json:"session_id" yaml:"session_id"`
	AgentType       string                     `json:"agent_type" yaml:"agent_type"`
	AgentGoals      string                     `json:"agent_goals" yaml:"agent_goals"`
	AgentTone       string                     `json:"agent_tone" yaml:"agent_tone"`
	Prompts         map[string]GeneratedPrompt `json:"prompts" yaml:"prompts"`
	PromptOrder     []string                   `json:"-" yaml:"-"`
	Tools           []ToolConfiguration        `json:"tools" yaml:"tools"`
	WorkflowDiagram string                     `json:"workflow_diagram,omitempty" yaml:"workflow_diagram,omitempty"`
	WorkflowSummary string                     `json:"workflow_summary,omitempty" yaml:"workflow_summary,omitempty"`
	CreatedAt       string                     `json:"created_at" yaml:"created_at"`
}
