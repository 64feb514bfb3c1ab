package workflow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// TextSummary renders a human-readable summary of the workflow.
func TextSummary(w *models.WorkflowData) string {
	lines := []string{
		fmt.Sprintf("=== %s AGENT WORKFLOW ===\n", strings.ToUpper(w.AgentType)),
		fmt.Sprintf("Description: %s\n", w.Description),
		"Tone: " + w.Tone,
		fmt.Sprintf("Goals: %s\n", w.Goals),
	}

	if w.UseTools && len(w.Tools) > 0 {
		lines = append(lines, fmt.Sprintf("Tools (%d):", len(w.Tools)))
		for i, t := range w.Tools {
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, t.Name))
			if t.Description != "" {
				lines = append(lines, "     - "+t.Description)
			}
		}
		lines = append(lines, "")
	}

	lines = append(lines,
		"Workflow Steps:",
		fmt.Sprintf("  Total Nodes: %d", len(w.Nodes)),
		fmt.Sprintf("  Total Edges: %d", len(w.Edges)),
		"",
		"Key Steps:",
	)
	for _, n := range w.Nodes {
		switch n.Type {
		case models.NodeTypeGreeting, models.NodeTypeIntentDetection, models.NodeTypeToolCall, models.NodeTypeResponse:
			desc := n.Description
			if desc == "" {
				desc = "N/A"
			}
			lines = append(lines, fmt.Sprintf("  → %s: %s", n.Label, desc))
		}
	}
	return strings.Join(lines, "\n")
}
