package models

import (
	"errors"
	"testing"
)

func linearGraph() WorkflowGraph {
	return WorkflowGraph{
		Nodes: []WorkflowNode{
			{ID: "start", Type: NodeTypeStart},
			{ID: "respond", Type: NodeTypeResponse},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []WorkflowEdge{
			{Source: "start", Target: "respond"},
			{Source: "respond", Target: "end"},
		},
	}
}

func TestValidateAcceptsWellFormedGraph(t *testing.T) {
	g := linearGraph()
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *WorkflowGraph)
	}{
		{"duplicate id", func(g *WorkflowGraph) {
			g.Nodes = append(g.Nodes, WorkflowNode{ID: "respond", Type: NodeTypeResponse})
		}},
		{"second start", func(g *WorkflowGraph) {
			g.Nodes = append(g.Nodes, WorkflowNode{ID: "start2", Type: NodeTypeStart})
			g.Edges = append(g.Edges, WorkflowEdge{Source: "start2", Target: "end"})
		}},
		{"missing end", func(g *WorkflowGraph) {
			g.Nodes = g.Nodes[:2]
			g.Edges = g.Edges[:1]
		}},
		{"dangling edge", func(g *WorkflowGraph) {
			g.Edges = append(g.Edges, WorkflowEdge{Source: "respond", Target: "ghost"})
		}},
		{"dead end", func(g *WorkflowGraph) {
			g.Edges = g.Edges[:1]
		}},
		{"unreachable node", func(g *WorkflowGraph) {
			g.Nodes = append(g.Nodes, WorkflowNode{ID: "island", Type: NodeTypeResponse})
			g.Edges = append(g.Edges, WorkflowEdge{Source: "island", Target: "end"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := linearGraph()
			tt.mutate(&g)
			err := g.Validate()
			var gerr *GraphError
			if !errors.As(err, &gerr) {
				t.Fatalf("expected *GraphError, got %v", err)
			}
		})
	}
}

func TestEdgesFrom(t *testing.T) {
	g := linearGraph()
	if got := g.EdgesFrom("start"); len(got) != 1 || got[0].Target != "respond" {
		t.Errorf("EdgesFrom(start) = %+v", got)
	}
	if got := g.EdgesFrom("end"); len(got) != 0 {
		t.Errorf("EdgesFrom(end) = %+v", got)
	}
}
