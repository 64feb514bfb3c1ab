// Package workflow compiles a collected agent design into a workflow graph and renders it.
package workflow

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// Fixed node ids of the workflow skeleton.
const (
	NodeStart           = "start"
	NodeGreeting        = "greeting"
	NodeIntentDetection = "intent_detection"
	NodeResponse        = "response"
	NodeContinueCheck   = "continue_check"
	NodeEnd             = "end"
)

const (
	defaultAgentType = "general"
	defaultTone      = "professional"
	defaultIntent    = "general_inquiry"
)

// toneGreetings is matched in order against the lowercased tone.
var toneGreetings = []struct {
	tone     string
	greeting string
}{
	{"friendly", "Hi there! How can I help you today?"},
	{"professional", "Good day. How may I assist you?"},
	{"empathetic", "Hello! I'm here to help. What can I do for you?"},
	{"casual", "Hey! What's up? How can I help?"},
	{"formal", "Greetings. How may I be of assistance?"},
}

// intentFamilies map goal keywords to intent tags, in emission order.
var intentFamilies = []struct {
	keywords []string
	intent   string
}{
	{[]string{"track", "status"}, "check_status"},
	{[]string{"return", "refund"}, "process_return"},
	{[]string{"book", "schedule"}, "make_booking"},
	{[]string{"cancel"}, "cancel_request"},
	{[]string{"help", "question"}, "get_help"},
}

// Synthesizer compiles session facts into a workflow graph. It is stateless and
// safe for concurrent use.
type Synthesizer struct{}

// NewSynthesizer returns a Synthesizer.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

// Synthesize builds a new workflow from a snapshot of state. Repeated calls over
// an unchanged state produce identical graphs.
func (s *Synthesizer) Synthesize(state *models.SessionState) *models.WorkflowData {
	agentType := models.StringValue(state.AgentType)
	goals := models.StringValue(state.Goals)
	tone := models.StringValue(state.Tone)

	data := &models.WorkflowData{
		SessionID:   state.SessionID,
		AgentType:   orDefault(agentType, defaultAgentType),
		Goals:       goals,
		Tone:        orDefault(tone, defaultTone),
		UseTools:    state.ToolsEnabled(),
		Tools:       append([]models.ToolSpec{}, state.Tools...),
		Description: Describe(state),
		Version:     models.WorkflowVersion,
	}
	data.WorkflowGraph = buildGraph(state)

	slog.Debug("Synthesizer Synthesize", "sessionID", state.SessionID, "nodes", len(data.Nodes), "edges", len(data.Edges))
	return data
}

func buildGraph(state *models.SessionState) models.WorkflowGraph {
	agentType := models.StringValue(state.AgentType)
	goals := models.StringValue(state.Goals)
	tone := models.StringValue(state.Tone)

	var g models.WorkflowGraph
	addNode := func(n models.WorkflowNode) { g.Nodes = append(g.Nodes, n) }
	addEdge := func(e models.WorkflowEdge) { g.Edges = append(g.Edges, e) }

	addNode(models.WorkflowNode{
		ID:          NodeStart,
		Type:        models.NodeTypeStart,
		Label:       "Start",
		Description: "Conversation begins",
		Config:      map[string]any{},
		Position:    &models.Position{X: 100, Y: 50},
	})

	addNode(models.WorkflowNode{
		ID:          NodeGreeting,
		Type:        models.NodeTypeGreeting,
		Label:       "Greet User",
		Description: fmt.Sprintf("Greet user with %s tone", tone),
		Config: map[string]any{
			"tone":              tone,
			"greeting_template": Greeting(tone, agentType),
		},
		Position: &models.Position{X: 100, Y: 150},
	})
	addEdge(models.WorkflowEdge{Source: NodeStart, Target: NodeGreeting})

	addNode(models.WorkflowNode{
		ID:          NodeIntentDetection,
		Type:        models.NodeTypeIntentDetection,
		Label:       "Detect User Intent",
		Description: "Understand user needs related to: " + goals,
		Config:      map[string]any{"expected_intents": Intents(goals)},
		Position:    &models.Position{X: 100, Y: 250},
	})
	addEdge(models.WorkflowEdge{Source: NodeGreeting, Target: NodeIntentDetection})

	if state.ToolsEnabled() && len(state.Tools) > 0 {
		for i, tool := range state.Tools {
			id := ToolNodeID(i, tool.Name)
			description := tool.Description
			if description == "" {
				description = fmt.Sprintf("Use %s tool", tool.Name)
			}
			addNode(models.WorkflowNode{
				ID:          id,
				Type:        models.NodeTypeToolCall,
				Label:       "Call " + tool.Name,
				Description: description,
				Config: map[string]any{
					"tool_name":     tool.Name,
					"endpoint":      tool.Endpoint,
					"method":        tool.Method,
					"input_schema":  tool.InputSchema,
					"output_schema": tool.OutputSchema,
					"usage_context": tool.UsageContext,
				},
				Position: &models.Position{X: 300 + i*200, Y: 350},
			})
			condition := tool.UsageContext
			if condition == "" {
				condition = fmt.Sprintf("When user needs %s", tool.Name)
			}
			addEdge(models.WorkflowEdge{
				Source:    NodeIntentDetection,
				Target:    id,
				Label:     "Use " + tool.Name,
				Condition: condition,
			})
			addEdge(models.WorkflowEdge{Source: id, Target: NodeResponse, Label: "Process result"})
		}
	} else {
		addEdge(models.WorkflowEdge{Source: NodeIntentDetection, Target: NodeResponse})
	}

	addNode(models.WorkflowNode{
		ID:          NodeResponse,
		Type:        models.NodeTypeResponse,
		Label:       "Generate Response",
		Description: fmt.Sprintf("Respond in %s tone addressing: %s", tone, goals),
		Config: map[string]any{
			"tone":                tone,
			"goals":               goals,
			"response_guidelines": ResponseGuidelines(state),
		},
		Position: &models.Position{X: 100, Y: 450},
	})

	addNode(models.WorkflowNode{
		ID:          NodeContinueCheck,
		Type:        models.NodeTypeCondition,
		Label:       "More Questions?",
		Description: "Check if user has more questions",
		Config:      map[string]any{"check": "User has more questions"},
		Position:    &models.Position{X: 100, Y: 550},
	})
	addEdge(models.WorkflowEdge{Source: NodeResponse, Target: NodeContinueCheck})
	addEdge(models.WorkflowEdge{
		Source:    NodeContinueCheck,
		Target:    NodeIntentDetection,
		Label:     "Yes",
		Condition: "User continues conversation",
	})

	addNode(models.WorkflowNode{
		ID:          NodeEnd,
		Type:        models.NodeTypeEnd,
		Label:       "End",
		Description: "Conversation ends",
		Config:      map[string]any{},
		Position:    &models.Position{X: 100, Y: 650},
	})
	addEdge(models.WorkflowEdge{
		Source:    NodeContinueCheck,
		Target:    NodeEnd,
		Label:     "No",
		Condition: "User ends conversation",
	})

	return g
}

// ToolNodeID derives a stable node id from a tool's index and name.
func ToolNodeID(index int, name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return fmt.Sprintf("tool_%d_%s", index, b.String())
}

// Greeting picks a greeting template for tone, falling back to one naming agentType.
func Greeting(tone, agentType string) string {
	lower := strings.ToLower(tone)
	for _, tg := range toneGreetings {
		if strings.Contains(lower, tg.tone) {
			return tg.greeting
		}
	}
	return fmt.Sprintf("Hello! I'm your %s assistant. How can I help you today?", agentType)
}

// Intents derives the expected intent tags from goal keywords.
func Intents(goals string) []string {
	lower := strings.ToLower(goals)
	var intents []string
	for _, family := range intentFamilies {
		for _, kw := range family.keywords {
			if strings.Contains(lower, kw) {
				intents = append(intents, family.intent)
				break
			}
		}
	}
	if len(intents) == 0 {
		intents = []string{defaultIntent}
	}
	return intents
}

// ResponseGuidelines describes how the response node should answer.
func ResponseGuidelines(state *models.SessionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Always respond in a %s manner. ", models.StringValue(state.Tone))
	fmt.Fprintf(&b, "Focus on: %s. ", models.StringValue(state.Goals))
	if state.ToolsEnabled() {
		b.WriteString("Use available tools to provide accurate information. ")
	}
	b.WriteString("Be helpful, clear, and concise.")
	return b.String()
}

// Describe returns a human-readable description of the agent.
func Describe(state *models.SessionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This is a %s voice agent with a %s tone. ", models.StringValue(state.AgentType), models.StringValue(state.Tone))
	fmt.Fprintf(&b, "It is designed to %s. ", models.StringValue(state.Goals))
	if state.ToolsEnabled() && len(state.Tools) > 0 {
		names := make([]string, len(state.Tools))
		for i, t := range state.Tools {
			names[i] = t.Name
		}
		fmt.Fprintf(&b, "It uses the following tools: %s. ", strings.Join(names, ", "))
	} else {
		b.WriteString("It operates without external tool integrations. ")
	}
	return b.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
