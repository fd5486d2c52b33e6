package domain

import (
	"sort"
	"time"
)

// FlowGraph is a named, ordered set of nodes and the edges between them.
// Node order is significant: it is the drawing (z-) order and the tie-break
// for every deterministic ordering in the compiler and layout.
type FlowGraph struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Folder      string      `json:"folder,omitempty" yaml:"folder,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []*FlowNode `json:"nodes" yaml:"nodes"`
	Edges       []*FlowEdge `json:"edges" yaml:"edges"`
	CreatedAt   time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" yaml:"updated_at"`
}

// Node returns the node with the given id, or nil.
func (g *FlowGraph) Node(id string) *FlowNode {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Edge returns the edge with the given id, or nil.
func (g *FlowGraph) Edge(id string) *FlowEdge {
	for _, e := range g.Edges {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// NodeIndex returns the position of the node in drawing order, or -1.
func (g *FlowGraph) NodeIndex(id string) int {
	for i, n := range g.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// Touch bumps UpdatedAt. Timestamps are kept in UTC without a monotonic
// reading so they survive a JSON round trip unchanged.
func (g *FlowGraph) Touch(now time.Time) {
	g.UpdatedAt = now.UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = g.UpdatedAt
	}
}

// Clone returns a deep copy of the graph.
func (g *FlowGraph) Clone() *FlowGraph {
	if g == nil {
		return nil
	}
	c := *g
	if g.Nodes != nil {
		c.Nodes = make([]*FlowNode, len(g.Nodes))
		for i, n := range g.Nodes {
			c.Nodes[i] = n.Clone()
		}
	}
	if g.Edges != nil {
		c.Edges = make([]*FlowEdge, len(g.Edges))
		for i, e := range g.Edges {
			c.Edges[i] = e.Clone()
		}
	}
	return &c
}

// FlowSummary is the listing view of a persisted flow.
type FlowSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Folder    string    `json:"folder,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the listing view of the graph.
func (g *FlowGraph) Summary() FlowSummary {
	return FlowSummary{ID: g.ID, Name: g.Name, Folder: g.Folder, UpdatedAt: g.UpdatedAt}
}

// SortSummaries orders summaries by name, then id.
func SortSummaries(list []FlowSummary) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
}
