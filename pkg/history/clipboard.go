package history

import (
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
)

// PasteOffset shifts every paste so copies never sit exactly on their originals.
const PasteOffset = 2 * graph.GridSize

// Clipboard holds detached copies of nodes and the edges between them.
type Clipboard struct {
	nodes  []*domain.FlowNode
	edges  []*domain.FlowEdge
	pastes int
}

// Copy replaces the clipboard content with the given nodes. Only edges whose
// both endpoints are copied are kept. It returns the number of nodes copied.
func (c *Clipboard) Copy(g *domain.FlowGraph, ids []string) int {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	c.nodes = c.nodes[:0]
	c.edges = c.edges[:0]
	c.pastes = 0
	for _, n := range g.Nodes {
		if want[n.ID] {
			c.nodes = append(c.nodes, n.Clone())
		}
	}
	for _, e := range g.Edges {
		if want[e.From] && want[e.To] {
			c.edges = append(c.edges, e.Clone())
		}
	}
	return len(c.nodes)
}

// Empty reports whether there is nothing to paste.
func (c *Clipboard) Empty() bool {
	return len(c.nodes) == 0
}

// Paste adds a fresh copy of the clipboard to g and returns the new node ids
// in clipboard order. Nodes get new ids and are offset; edges are remapped
// through the id translation table and dropped when an endpoint is missing.
func (c *Clipboard) Paste(g *domain.FlowGraph) ([]string, error) {
	if c.Empty() {
		return nil, domain.ErrEmptyClipboard
	}
	c.pastes++
	offset := float64(c.pastes) * PasteOffset

	remap := make(map[string]string, len(c.nodes))
	ids := make([]string, 0, len(c.nodes))
	for _, src := range c.nodes {
		n := src.Clone()
		n.ID = graph.NewID("node")
		n.X = graph.SnapToGrid(n.X + offset)
		n.Y = graph.SnapToGrid(n.Y + offset)
		n.Status = domain.NodeIdle
		if err := graph.AddNode(g, n); err != nil {
			return ids, err
		}
		remap[src.ID] = n.ID
		ids = append(ids, n.ID)
	}
	for _, src := range c.edges {
		from, okFrom := remap[src.From]
		to, okTo := remap[src.To]
		if !okFrom || !okTo {
			continue
		}
		e := src.Clone()
		e.ID = graph.NewID("edge")
		e.From, e.To = from, to
		e.Active = false
		if err := graph.AddEdge(g, e); err != nil {
			return ids, err
		}
	}
	return ids, nil
}
