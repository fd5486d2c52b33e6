package dsl

import (
	"fmt"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
)

// Builder manages the graph construction. Nodes keep the order in which
// they were first added.
type Builder struct {
	id     string
	name   string
	folder string
	nodes  []*NodeBuilder
	index  map[string]*NodeBuilder
}

// New creates a new graph builder. The flow id defaults to name.
func New(name string) *Builder {
	return &Builder{
		id:    name,
		name:  name,
		index: make(map[string]*NodeBuilder),
	}
}

// ID overrides the flow id.
func (b *Builder) ID(id string) *Builder {
	b.id = id
	return b
}

// Folder files the flow under folder.
func (b *Builder) Folder(folder string) *Builder {
	b.folder = folder
	return b
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.index[id]; ok {
		return nb
	}
	nb := &NodeBuilder{id: id}
	b.index[id] = nb
	b.nodes = append(b.nodes, nb)
	return nb
}

// Build creates the nodes and edges, applies the automatic layout and
// checks the result.
func (b *Builder) Build() (*domain.FlowGraph, error) {
	g := graph.New(b.name)
	g.ID = b.id
	g.Folder = b.folder

	for _, nb := range b.nodes {
		if nb.kind == "" {
			return nil, fmt.Errorf("node %s: no kind set", nb.id)
		}
		n := graph.CreateNode(nb.kind, nb.label, 0, 0)
		n.ID = nb.id
		n.Description = nb.description
		n.Config = nb.config
		if err := graph.AddNode(g, n); err != nil {
			return nil, err
		}
	}
	for _, nb := range b.nodes {
		for _, e := range nb.edges {
			if _, err := graph.Connect(g, nb.id, e.to, e.kind, e.opts); err != nil {
				return nil, fmt.Errorf("node %s: %w", nb.id, err)
			}
		}
	}

	graph.ApplyLayout(g)
	if err := graph.Check(g); err != nil {
		return nil, err
	}
	return g, nil
}

// MustBuild is Build for graphs known to be valid. It panics on error.
func (b *Builder) MustBuild() *domain.FlowGraph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
