package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

func renderJSON(pkg *models.PromptExport) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pkg); err != nil {
		return "", fmt.Errorf("failed to encode export as JSON: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func renderYAML(pkg *models.PromptExport) (string, error) {
	out, err := yaml.Marshal(pkg)
	if err != nil {
		return "", fmt.Errorf("failed to encode export as YAML: %w", err)
	}
	return string(out), nil
}

// promptKeys returns prompt names in generation order, or sorted when unknown.
func promptKeys(pkg *models.PromptExport) []string {
	if len(pkg.PromptOrder) == len(pkg.Prompts) {
		return pkg.PromptOrder
	}
	keys := make([]string, 0, len(pkg.Prompts))
	for k := range pkg.Prompts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func renderMarkdown(pkg *models.PromptExport) string {
	var lines []string
	add := func(s ...string) { lines = append(lines, s...) }

	add(fmt.Sprintf("# %s Agent Configuration", strings.ToUpper(pkg.AgentType)),
		fmt.Sprintf("\n**Generated:** %s", pkg.CreatedAt),
		fmt.Sprintf("**Session ID:** %s\n", pkg.SessionID))

	add("## Overview",
		"- **Type:** "+pkg.AgentType,
		"- **Goals:** "+pkg.AgentGoals,
		"- **Tone:** "+pkg.AgentTone,
		fmt.Sprintf("- **Tools:** %d\n", len(pkg.Tools)))

	add("## System Prompts")
	for _, name := range promptKeys(pkg) {
		add("\n### "+strings.ToUpper(name), "```", pkg.Prompts[name].SystemPrompt, "```\n")
	}

	if len(pkg.Tools) > 0 {
		add("## Tool Configurations")
		for _, t := range pkg.Tools {
			add("\n### "+t.Name, "**Description:** "+t.Description)
			if t.Endpoint != "" {
				add(fmt.Sprintf("**Endpoint:** `%s %s`", t.Method, t.Endpoint))
			}
			add("")
		}
	}

	if pkg.WorkflowDiagram != "" {
		add("## Workflow Diagram", "```mermaid", pkg.WorkflowDiagram, "```\n")
	}
	if pkg.WorkflowSummary != "" {
		add("## Workflow Summary", pkg.WorkflowSummary, "")
	}
	return strings.Join(lines, "\n")
}

func renderText(pkg *models.PromptExport) string {
	rule := strings.Repeat("=", 70)
	thin := strings.Repeat("-", 70)
	var lines []string
	add := func(s ...string) { lines = append(lines, s...) }

	add(rule,
		fmt.Sprintf("  %s AGENT CONFIGURATION", strings.ToUpper(pkg.AgentType)),
		rule,
		"Generated: "+pkg.CreatedAt,
		"Session ID: "+pkg.SessionID,
		"")

	add("OVERVIEW", thin,
		"Type: "+pkg.AgentType,
		"Goals: "+pkg.AgentGoals,
		"Tone: "+pkg.AgentTone,
		fmt.Sprintf("Tools: %d", len(pkg.Tools)),
		"")

	add("SYSTEM PROMPTS", thin)
	for _, name := range promptKeys(pkg) {
		add(fmt.Sprintf("\n[ %s ]", strings.ToUpper(name)), pkg.Prompts[name].SystemPrompt, "")
	}

	if len(pkg.Tools) > 0 {
		add("TOOL CONFIGURATIONS", thin)
		for i, t := range pkg.Tools {
			add(fmt.Sprintf("\n%d. %s", i+1, t.Name), "   Description: "+t.Description)
			if t.Endpoint != "" {
				add(fmt.Sprintf("   Endpoint: %s %s", t.Method, t.Endpoint))
			}
			add("")
		}
	}

	if pkg.WorkflowSummary != "" {
		add("WORKFLOW", thin, pkg.WorkflowSummary, "")
	}
	add(rule)
	return strings.Join(lines, "\n")
}

var exportFileTypes = map[models.ExportFormat][2]string{
	models.ExportFormatJSON:     {"application/json", "json"},
	models.ExportFormatYAML:     {"application/x-yaml", "yaml"},
	models.ExportFormatMarkdown: {"text/markdown", "md"},
	models.ExportFormatText:     {"text/plain", "txt"},
}

// ExportFileType returns the content type and file extension of an export format.
func ExportFileType(format models.ExportFormat) (contentType, ext string) {
	if ft, ok := exportFileTypes[format]; ok {
		return ft[0], ft[1]
	}
	return "application/octet-stream", "txt"
}

// ExportFilename names the downloadable file of an export package.
func ExportFilename(pkg *models.PromptExport, format models.ExportFormat) string {
	_, ext := ExportFileType(format)
	return strings.ReplaceAll(pkg.AgentType, " ", "_") + "_agent." + ext
}
