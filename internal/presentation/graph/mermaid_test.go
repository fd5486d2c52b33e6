package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/conductor/internal/presentation/graph"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func node(id string, kind domain.NodeKind) *domain.FlowNode {
	in, out := domain.PortsFor(kind)
	return &domain.FlowNode{ID: id, Kind: kind, Label: id, Inputs: in, Outputs: out, Config: domain.DefaultConfig(kind)}
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		graph    *domain.FlowGraph
		contains []string
	}{
		{
			name: "Shapes",
			graph: &domain.FlowGraph{Nodes: []*domain.FlowNode{
				node("start", domain.KindTrigger),
				node("ask", domain.KindAgent),
				node("check", domain.KindCondition),
				node("fetch", domain.KindHTTP),
				node("done", domain.KindOutput),
			}},
			contains: []string{
				"start((\"start\"))",
				"ask([\"ask\"])",
				"check{\"check\"}",
				"fetch[[\"fetch\"]]",
				"done[/\"done\"/]",
			},
		},
		{
			name: "ID Sanitization",
			graph: &domain.FlowGraph{Nodes: []*domain.FlowNode{
				node("node-a.b/c", domain.KindData),
			}},
			contains: []string{"node_a_b_c[\"node-a.b/c\"]"},
		},
		{
			name: "Edge Kinds",
			graph: &domain.FlowGraph{
				Nodes: []*domain.FlowNode{node("a", domain.KindAgent), node("b", domain.KindError), node("c", domain.KindData)},
				Edges: []*domain.FlowEdge{
					{ID: "e1", From: "a", To: "b", Kind: domain.EdgeError},
					{ID: "e2", From: "c", To: "a", Kind: domain.EdgeReverse, Label: "say \"hi\""},
				},
			},
			contains: []string{
				"a -. err .-> b",
				"c <-- \"say 'hi'\" -- a",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := graph.GenerateMermaid(tt.graph, nil)
			assert.True(t, strings.HasPrefix(out, "flowchart LR\n"))
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestGenerateMermaid_MeshSubgraph(t *testing.T) {
	a, b := node("a", domain.KindAgent), node("b", domain.KindAgent)
	a.Config.Agent.Mesh = "review"
	b.Config.Agent.Mesh = "review"
	g := &domain.FlowGraph{
		Nodes: []*domain.FlowNode{a, b},
		Edges: []*domain.FlowEdge{{ID: "e", From: "a", To: "b", Kind: domain.EdgeBidirectional}},
	}

	out := graph.GenerateMermaid(g, nil)

	assert.Contains(t, out, "subgraph mesh_review[\"mesh: review\"]")
	assert.Contains(t, out, "a <--> b")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	g := &domain.FlowGraph{Nodes: []*domain.FlowNode{
		node("a", domain.KindTrigger), node("b", domain.KindAgent), node("c", domain.KindOutput),
	}}
	run := domain.NewRunState("run-1", g)
	run.Nodes["a"].Status = domain.NodeSuccess
	run.Nodes["b"].Status = domain.NodeError
	run.Cursor = "c"

	out := graph.GenerateMermaid(g, graph.OverlayFromRun(run))

	assert.Contains(t, out, "class a success;")
	assert.Contains(t, out, "class b error;")
	assert.Contains(t, out, "class c cursor;")
	assert.NotContains(t, out, "class c idle;")
}

func TestGenerateMermaid_SkipsDanglingEdges(t *testing.T) {
	g := &domain.FlowGraph{
		Nodes: []*domain.FlowNode{node("a", domain.KindTrigger)},
		Edges: []*domain.FlowEdge{{ID: "e", From: "a", To: "ghost", Kind: domain.EdgeForward}},
	}

	assert.NotContains(t, graph.GenerateMermaid(g, nil), "ghost")
}
