package graph_test

import (
	"testing"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapToGrid(t *testing.T) {
	assert.Equal(t, 0.0, graph.SnapToGrid(9))
	assert.Equal(t, 20.0, graph.SnapToGrid(10))
	assert.Equal(t, 100.0, graph.SnapToGrid(107))
	assert.Equal(t, -20.0, graph.SnapToGrid(-13))
}

func TestPortPositions(t *testing.T) {
	n := &domain.FlowNode{X: 100, Y: 50, Width: 200, Height: 90, Inputs: []string{"in"}, Outputs: []string{"ok", "err"}}

	in, ok := graph.GetInputPort(n, "in")
	require.True(t, ok)
	assert.Equal(t, graph.Point{X: 100, Y: 95}, in)

	okPort, _ := graph.GetOutputPort(n, "ok")
	errPort, _ := graph.GetOutputPort(n, "err")
	assert.Equal(t, graph.Point{X: 300, Y: 80}, okPort)
	assert.Equal(t, graph.Point{X: 300, Y: 110}, errPort)

	_, ok = graph.GetOutputPort(n, "missing")
	assert.False(t, ok)
}

func TestHitTestNode_TopmostWins(t *testing.T) {
	below := &domain.FlowNode{ID: "below", X: 0, Y: 0, Width: 100, Height: 100}
	above := &domain.FlowNode{ID: "above", X: 50, Y: 50, Width: 100, Height: 100}
	nodes := []*domain.FlowNode{below, above}

	assert.Equal(t, "above", graph.HitTestNode(nodes, graph.Point{X: 75, Y: 75}).ID)
	assert.Equal(t, "below", graph.HitTestNode(nodes, graph.Point{X: 10, Y: 10}).ID)
	assert.Nil(t, graph.HitTestNode(nodes, graph.Point{X: 500, Y: 500}))
}

func TestHitTestPort(t *testing.T) {
	n := &domain.FlowNode{ID: "n", X: 0, Y: 0, Width: 100, Height: 60, Inputs: []string{"in"}, Outputs: []string{"out"}}

	hit, ok := graph.HitTestPort([]*domain.FlowNode{n}, graph.Point{X: 103, Y: 31})
	require.True(t, ok)
	assert.Equal(t, "out", hit.Port)
	assert.True(t, hit.Output)

	hit, ok = graph.HitTestPort([]*domain.FlowNode{n}, graph.Point{X: 0, Y: 30})
	require.True(t, ok)
	assert.Equal(t, "in", hit.Port)
	assert.False(t, hit.Output)

	_, ok = graph.HitTestPort([]*domain.FlowNode{n}, graph.Point{X: 50, Y: 30})
	assert.False(t, ok)
}

func TestBuildEdgePath(t *testing.T) {
	path := graph.BuildEdgePath(graph.Point{X: 0, Y: 0}, graph.Point{X: 200, Y: 100})
	assert.Equal(t, "M 0.0 0.0 C 100.0 0.0, 100.0 100.0, 200.0 100.0", path)
}
