package graph_test

import (
	"testing"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateNode_DefaultsPerKind(t *testing.T) {
	tests := []struct {
		kind    domain.NodeKind
		inputs  []string
		outputs []string
	}{
		{domain.KindTrigger, []string{}, []string{"out"}},
		{domain.KindAgent, []string{"in"}, []string{"ok", "err"}},
		{domain.KindCondition, []string{"in"}, []string{"true", "false"}},
		{domain.KindOutput, []string{"in"}, []string{}},
		{domain.KindLoop, []string{"in", "back"}, []string{"body", "done"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			n := graph.CreateNode(tt.kind, "", 10, 20)

			assert.NotEmpty(t, n.ID)
			assert.Equal(t, string(tt.kind), n.Label)
			assert.Equal(t, tt.inputs, n.Inputs)
			assert.Equal(t, tt.outputs, n.Outputs)
			assert.Equal(t, domain.NodeIdle, n.Status)
			assert.NotEmpty(t, n.Icon)
			assert.Positive(t, n.Width)
			assert.Positive(t, n.Height)
		})
	}
}

func TestCreateNode_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := graph.CreateNode(domain.KindAgent, "a", 0, 0).ID
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestConnect(t *testing.T) {
	g := graph.New("test")
	a := graph.CreateNode(domain.KindTrigger, "a", 0, 0)
	b := graph.CreateNode(domain.KindAgent, "b", 0, 0)
	h := graph.CreateNode(domain.KindError, "h", 0, 0)
	require.NoError(t, graph.AddNode(g, a))
	require.NoError(t, graph.AddNode(g, b))
	require.NoError(t, graph.AddNode(g, h))

	e, err := graph.Connect(g, a.ID, b.ID, "", graph.EdgeOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.EdgeForward, e.Kind)
	assert.Equal(t, "out", e.FromPort)
	assert.Equal(t, "in", e.ToPort)

	t.Run("Duplicate Pair", func(t *testing.T) {
		_, err := graph.Connect(g, b.ID, a.ID, domain.EdgeReverse, graph.EdgeOptions{})
		assert.ErrorIs(t, err, domain.ErrDuplicateEdge)
	})

	t.Run("Error Edge Uses Err Port", func(t *testing.T) {
		e, err := graph.Connect(g, b.ID, h.ID, domain.EdgeError, graph.EdgeOptions{})
		require.NoError(t, err)
		assert.Equal(t, "err", e.FromPort)
	})

	t.Run("Undeclared Port", func(t *testing.T) {
		c := graph.CreateNode(domain.KindData, "c", 0, 0)
		require.NoError(t, graph.AddNode(g, c))
		_, err := graph.Connect(g, a.ID, c.ID, "", graph.EdgeOptions{FromPort: "nope"})
		assert.ErrorIs(t, err, domain.ErrInvalidPort)
	})

	t.Run("Unknown Node", func(t *testing.T) {
		_, err := graph.Connect(g, a.ID, "ghost", "", graph.EdgeOptions{})
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	})
}

func TestRemoveNode_DropsAttachedEdges(t *testing.T) {
	g := graph.New("test")
	a := graph.CreateNode(domain.KindTrigger, "a", 0, 0)
	b := graph.CreateNode(domain.KindData, "b", 0, 0)
	c := graph.CreateNode(domain.KindOutput, "c", 0, 0)
	for _, n := range []*domain.FlowNode{a, b, c} {
		require.NoError(t, graph.AddNode(g, n))
	}
	_, err := graph.Connect(g, a.ID, b.ID, "", graph.EdgeOptions{})
	require.NoError(t, err)
	_, err = graph.Connect(g, b.ID, c.ID, "", graph.EdgeOptions{})
	require.NoError(t, err)

	require.NoError(t, graph.RemoveNode(g, b.ID))

	assert.Len(t, g.Nodes, 2)
	assert.Empty(t, g.Edges)
	assert.ErrorIs(t, graph.RemoveNode(g, b.ID), domain.ErrNodeNotFound)
}

func TestIncomingOutgoing_FollowDataDirection(t *testing.T) {
	g := &domain.FlowGraph{
		Nodes: []*domain.FlowNode{{ID: "a"}, {ID: "b"}},
		Edges: []*domain.FlowEdge{{ID: "r", From: "a", To: "b", Kind: domain.EdgeReverse}},
	}

	assert.Len(t, graph.Incoming(g, "a"), 1)
	assert.Empty(t, graph.Incoming(g, "b"))
	assert.Len(t, graph.Outgoing(g, "b"), 1)
}
