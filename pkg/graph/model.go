package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/google/uuid"
)

// Clock is replaced in tests that need stable timestamps.
var Clock = time.Now

// New creates an empty graph with a fresh id.
func New(name string) *domain.FlowGraph {
	g := &domain.FlowGraph{
		ID:    NewID("flow"),
		Name:  name,
		Nodes: []*domain.FlowNode{},
		Edges: []*domain.FlowEdge{},
	}
	g.Touch(Clock())
	return g
}

// NewID returns a unique id with a readable prefix.
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return prefix + "-" + id
}

var defaultSizes = map[domain.NodeKind][2]float64{
	domain.KindTrigger:   {160, 60},
	domain.KindAgent:     {200, 80},
	domain.KindCondition: {160, 80},
	domain.KindOutput:    {160, 60},
	domain.KindLoop:      {180, 80},
}

var icons = map[domain.NodeKind]string{
	domain.KindTrigger:   "⚡",
	domain.KindAgent:     "🤖",
	domain.KindTool:      "🔧",
	domain.KindCondition: "◆",
	domain.KindData:      "▤",
	domain.KindCode:      "</>",
	domain.KindError:     "⚠",
	domain.KindOutput:    "⬆",
	domain.KindHTTP:      "🌐",
	domain.KindMCPTool:   "🔌",
	domain.KindLoop:      "↻",
}

// DefaultSize returns the width and height new nodes of kind get.
func DefaultSize(kind domain.NodeKind) (float64, float64) {
	if s, ok := defaultSizes[kind]; ok {
		return s[0], s[1]
	}
	return 180, 70
}

// CreateNode builds a node with the kind's fixed ports, default size, icon
// and an empty config section. It does not add it to any graph.
func CreateNode(kind domain.NodeKind, label string, x, y float64) *domain.FlowNode {
	in, out := domain.PortsFor(kind)
	w, h := DefaultSize(kind)
	if label == "" {
		label = string(kind)
	}
	return &domain.FlowNode{
		ID:      NewID("node"),
		Kind:    kind,
		Label:   label,
		Icon:    icons[kind],
		X:       x,
		Y:       y,
		Width:   w,
		Height:  h,
		Inputs:  in,
		Outputs: out,
		Status:  domain.NodeIdle,
		Config:  domain.DefaultConfig(kind),
	}
}

// EdgeOptions holds the optional parts of an edge.
type EdgeOptions struct {
	FromPort string
	ToPort   string
	Label    string
}

// CreateEdge builds an edge. Duplicate detection is the caller's job
// (see Connect); empty ports are resolved when the edge is added.
func CreateEdge(fromID, toID string, kind domain.EdgeKind, opts EdgeOptions) *domain.FlowEdge {
	if kind == "" {
		kind = domain.EdgeForward
	}
	return &domain.FlowEdge{
		ID:       NewID("edge"),
		From:     fromID,
		FromPort: opts.FromPort,
		To:       toID,
		ToPort:   opts.ToPort,
		Kind:     kind,
		Label:    opts.Label,
	}
}

// AddNode appends n to g.
func AddNode(g *domain.FlowGraph, n *domain.FlowNode) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("node without id: %w", domain.ErrNodeNotFound)
	}
	if g.Node(n.ID) != nil {
		return fmt.Errorf("%s: %w", n.ID, domain.ErrDuplicateNode)
	}
	g.Nodes = append(g.Nodes, n)
	g.Touch(Clock())
	return nil
}

// RemoveNode deletes the node and every edge attached to it.
func RemoveNode(g *domain.FlowGraph, id string) error {
	idx := g.NodeIndex(id)
	if idx < 0 {
		return fmt.Errorf("%s: %w", id, domain.ErrNodeNotFound)
	}
	g.Nodes = append(g.Nodes[:idx], g.Nodes[idx+1:]...)

	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if e.From != id && e.To != id {
			kept = append(kept, e)
		}
	}
	g.Edges = kept
	g.Touch(Clock())
	return nil
}

// MoveNode repositions a node.
func MoveNode(g *domain.FlowGraph, id string, x, y float64) error {
	n := g.Node(id)
	if n == nil {
		return fmt.Errorf("%s: %w", id, domain.ErrNodeNotFound)
	}
	n.X, n.Y = x, y
	g.Touch(Clock())
	return nil
}

// AddEdge validates and appends e. Empty ports default to the first
// declared port (or "err" for error edges).
func AddEdge(g *domain.FlowGraph, e *domain.FlowEdge) error {
	from, to := g.Node(e.From), g.Node(e.To)
	if from == nil {
		return fmt.Errorf("edge source %s: %w", e.From, domain.ErrNodeNotFound)
	}
	if to == nil {
		return fmt.Errorf("edge target %s: %w", e.To, domain.ErrNodeNotFound)
	}
	if HasEdgeBetween(g, e.From, e.To) {
		return fmt.Errorf("%s -> %s: %w", e.From, e.To, domain.ErrDuplicateEdge)
	}

	if e.FromPort == "" {
		e.FromPort = defaultFromPort(from, e.Kind)
	}
	if e.ToPort == "" && len(to.Inputs) > 0 {
		e.ToPort = to.Inputs[0]
	}
	if !from.HasOutput(e.FromPort) {
		return fmt.Errorf("%s has no output %q: %w", from.ID, e.FromPort, domain.ErrInvalidPort)
	}
	if !to.HasInput(e.ToPort) {
		return fmt.Errorf("%s has no input %q: %w", to.ID, e.ToPort, domain.ErrInvalidPort)
	}

	g.Edges = append(g.Edges, e)
	g.Touch(Clock())
	return nil
}

func defaultFromPort(n *domain.FlowNode, kind domain.EdgeKind) string {
	if kind == domain.EdgeError && n.HasOutput(domain.PortErr) {
		return domain.PortErr
	}
	if len(n.Outputs) == 0 {
		return ""
	}
	return n.Outputs[0]
}

// Connect creates and adds an edge in one step.
func Connect(g *domain.FlowGraph, fromID, toID string, kind domain.EdgeKind, opts EdgeOptions) (*domain.FlowEdge, error) {
	e := CreateEdge(fromID, toID, kind, opts)
	if err := AddEdge(g, e); err != nil {
		return nil, err
	}
	return e, nil
}

// RemoveEdge deletes an edge by id.
func RemoveEdge(g *domain.FlowGraph, id string) error {
	for i, e := range g.Edges {
		if e.ID == id {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			g.Touch(Clock())
			return nil
		}
	}
	return fmt.Errorf("%s: %w", id, domain.ErrEdgeNotFound)
}

// HasEdgeBetween reports whether an edge already links the node pair,
// in either drawing direction.
func HasEdgeBetween(g *domain.FlowGraph, a, b string) bool {
	for _, e := range g.Edges {
		if (e.From == a && e.To == b) || (e.From == b && e.To == a) {
			return true
		}
	}
	return false
}

// Incoming returns the edges that deliver data into nodeID, in graph order.
func Incoming(g *domain.FlowGraph, nodeID string) []*domain.FlowEdge {
	var out []*domain.FlowEdge
	for _, e := range g.Edges {
		if e.Feeds(nodeID) {
			out = append(out, e)
		}
	}
	return out
}

// Outgoing returns the edges that carry data produced by nodeID.
func Outgoing(g *domain.FlowGraph, nodeID string) []*domain.FlowEdge {
	var out []*domain.FlowEdge
	for _, e := range g.Edges {
		if _, ok := e.Carries(nodeID); ok {
			out = append(out, e)
		}
	}
	return out
}
