package workflow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// mermaidReserved holds lowercased identifiers Mermaid cannot use as node ids.
var mermaidReserved = map[string]bool{
	"end":       true,
	"graph":     true,
	"subgraph":  true,
	"style":     true,
	"class":     true,
	"classdef":  true,
	"click":     true,
	"call":      true,
	"direction": true,
	"td":        true,
	"tb":        true,
	"bt":        true,
	"rl":        true,
	"lr":        true,
}

// MermaidNodeID rewrites ids that collide with Mermaid keywords.
func MermaidNodeID(id string) string {
	if mermaidReserved[strings.ToLower(id)] {
		return id + "Node"
	}
	return id
}

// mermaidText quotes a node or edge label so brackets, braces and pipes stay literal.
func mermaidText(label string) string {
	return `"` + mermaidEscaper.Replace(label) + `"`
}

var mermaidEscaper = strings.NewReplacer(`"`, "#quot;", "\n", " ", "\r", "")

// Mermaid renders the workflow as a Mermaid flowchart.
func Mermaid(w *models.WorkflowData) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	fmt.Fprintf(&b, "    %%%% %s Agent Workflow\n\n", w.AgentType)

	for _, n := range w.Nodes {
		open, closing := "[", "]"
		if n.Type == models.NodeTypeCondition {
			open, closing = "{", "}"
		}
		fmt.Fprintf(&b, "    %s%s%s%s\n", MermaidNodeID(n.ID), open, mermaidText(n.Label), closing)
	}
	b.WriteString("\n")

	for _, e := range w.Edges {
		src, dst := MermaidNodeID(e.Source), MermaidNodeID(e.Target)
		if e.Label != "" {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", src, mermaidText(e.Label), dst)
		} else {
			fmt.Fprintf(&b, "    %s --> %s\n", src, dst)
		}
	}

	b.WriteString("\n    %% Styling\n")
	b.WriteString("    classDef startEnd fill:#90EE90,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef tool fill:#FFE4B5,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef condition fill:#87CEEB,stroke:#333,stroke-width:2px\n")

	var classes []string
	for _, c := range []struct {
		class string
		types []models.NodeType
	}{
		{"startEnd", []models.NodeType{models.NodeTypeStart, models.NodeTypeEnd}},
		{"tool", []models.NodeType{models.NodeTypeToolCall}},
		{"condition", []models.NodeType{models.NodeTypeCondition}},
	} {
		var ids []string
		for _, n := range w.Nodes {
			for _, t := range c.types {
				if n.Type == t {
					ids = append(ids, MermaidNodeID(n.ID))
				}
			}
		}
		if len(ids) > 0 {
			classes = append(classes, fmt.Sprintf("    class %s %s", strings.Join(ids, ","), c.class))
		}
	}
	if len(classes) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(classes, "\n"))
	}
	return b.String()
}
