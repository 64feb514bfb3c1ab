package models

import "fmt"

// NodeType identifies the role of a workflow node.
type NodeType string

const (
	NodeTypeStart           NodeType = "start"
	NodeTypeGreeting        NodeType = "greeting"
	NodeTypeIntentDetection NodeType = "intent_detection"
	NodeTypeToolCall        NodeType = "tool_call"
	NodeTypeResponse        NodeType = "response"
	NodeTypeCondition       NodeType = "condition"
	NodeTypeEnd             NodeType = "end"
)

// WorkflowVersion is the schema version stamped on synthesized workflows.
const WorkflowVersion = "1.0"

// Position is an advisory layout coordinate.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// WorkflowNode is a single step in the agent's runtime behavior.
type WorkflowNode struct {
	ID          string         `json:"id"`
	Type        NodeType       `json:"type"`
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config"`
	Position    *Position      `json:"position,omitempty"`
}

// WorkflowEdge connects two nodes.
type WorkflowEdge struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Label     string `json:"label,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// WorkflowGraph is the compiled node/edge representation of agent behavior.
type WorkflowGraph struct {
	Nodes []WorkflowNode `json:"nodes"`
	Edges []WorkflowEdge `json:"edges"`
}

// WorkflowData is a synthesized workflow together with the facts it was built from.
type WorkflowData struct {
	SessionID   string     `json:"session_id"`
	AgentType   string     `json:"agent_type"`
	Goals       string     `json:"goals"`
	Tone        string     `json:"tone"`
	UseTools    bool       `json:"use_tools"`
	Tools       []ToolSpec `json:"tools"`
	Description string     `json:"description"`
	Version     string     `json:"version"`
	WorkflowGraph
}

// GraphError describes the first structural violation found in a graph.
type GraphError struct {
	NodeID string
	Reason string
}

func (e *GraphError) Error() string {
	if e.NodeID == "" {
		return "invalid workflow graph: " + e.Reason
	}
	return fmt.Sprintf("invalid workflow graph: node %q: %s", e.NodeID, e.Reason)
}

// Node returns the node with the given id.
func (g *WorkflowGraph) Node(id string) (WorkflowNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return WorkflowNode{}, false
}

// NodesOfType returns the nodes of type t in graph order.
func (g *WorkflowGraph) NodesOfType(t NodeType) []WorkflowNode {
	var out []WorkflowNode
	for _, n := range g.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// EdgesFrom returns the outgoing edges of the node id.
func (g *WorkflowGraph) EdgesFrom(id string) []WorkflowEdge {
	var out []WorkflowEdge
	for _, e := range g.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks that node ids are unique, there is exactly one start and one
// end node, every edge resolves, every non-end node has an outgoing edge, and
// every node is reachable from start.
func (g *WorkflowGraph) Validate() error {
	ids := make(map[string]bool, len(g.Nodes))
	var start, end string
	var starts, ends int
	for _, n := range g.Nodes {
		if n.ID == "" {
			return &GraphError{Reason: "node with empty id"}
		}
		if ids[n.ID] {
			return &GraphError{NodeID: n.ID, Reason: "duplicate node id"}
		}
		ids[n.ID] = true
		switch n.Type {
		case NodeTypeStart:
			starts++
			start = n.ID
		case NodeTypeEnd:
			ends++
			end = n.ID
		}
	}
	if starts != 1 {
		return &GraphError{Reason: fmt.Sprintf("expected exactly one start node, found %d", starts)}
	}
	if ends != 1 {
		return &GraphError{Reason: fmt.Sprintf("expected exactly one end node, found %d", ends)}
	}

	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		if !ids[e.Source] {
			return &GraphError{NodeID: e.Source, Reason: "edge source does not exist"}
		}
		if !ids[e.Target] {
			return &GraphError{NodeID: e.Target, Reason: "edge target does not exist"}
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	for _, n := range g.Nodes {
		if n.Type != NodeTypeEnd && len(adj[n.ID]) == 0 {
			return &GraphError{NodeID: n.ID, Reason: "non-terminal node has no outgoing edge"}
		}
	}

	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, n := range g.Nodes {
		if !seen[n.ID] {
			return &GraphError{NodeID: n.ID, Reason: "unreachable from start"}
		}
	}
	if !seen[end] {
		return &GraphError{NodeID: end, Reason: "end unreachable from start"}
	}
	return nil
}
