package compiler

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
)

// Compiler turns flow graphs into execution strategies.
type Compiler struct {
	defaultMaxIterations int
	collapse             bool
	logger               *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithDefaultMaxIterations sets the mesh round bound used when no member configures one.
func WithDefaultMaxIterations(n int) Option {
	return func(c *Compiler) {
		if n > 0 {
			c.defaultMaxIterations = n
		}
	}
}

// WithCollapse toggles merging of linear agent chains (enabled by default).
func WithCollapse(enabled bool) Option {
	return func(c *Compiler) {
		c.collapse = enabled
	}
}

// WithLogger sets the logger used for compile diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		defaultMaxIterations: domain.DefaultMaxIterations,
		collapse:             true,
		logger:               logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile is shorthand for New().Compile(g).
func Compile(g *domain.FlowGraph) (*domain.ExecutionStrategy, error) {
	return New().Compile(g)
}

// dep is an ordering constraint: from must finish before to starts.
type dep struct {
	from, to string
	edge     *domain.FlowEdge
}

// vertex is a node of the contracted graph: a single node, a collapsed
// chain or a whole mesh group.
type vertex struct {
	key     string
	unit    domain.ExecutionUnit
	first   int // graph index of the earliest member
	members []string
}

// Compile builds the phased strategy for g. It fails with a *domain.CompileError
// when the dependency graph has a cycle outside mesh groups and loop-back edges.
func (c *Compiler) Compile(g *domain.FlowGraph) (*domain.ExecutionStrategy, error) {
	if g == nil {
		return nil, &domain.CompileError{Reason: "nil graph"}
	}
	if err := checkNodes(g); err != nil {
		return nil, err
	}

	s := &domain.ExecutionStrategy{GraphID: g.ID, Phases: []domain.Phase{}, Order: []string{}}
	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		index[n.ID] = i
	}

	deps := c.dependencies(g, s)
	verts, owner := c.contract(g, deps, index)

	layers, err := layer(verts, owner, deps, g)
	if err != nil {
		return nil, err
	}

	maxLayer := -1
	for _, l := range layers {
		if l > maxLayer {
			maxLayer = l
		}
	}
	byLayer := make([][]*vertex, maxLayer+1)
	for _, v := range verts {
		byLayer[layers[v.key]] = append(byLayer[layers[v.key]], v)
	}
	for i, vs := range byLayer {
		sort.SliceStable(vs, func(a, b int) bool { return vs[a].first < vs[b].first })
		p := domain.Phase{Index: i, Units: make([]domain.ExecutionUnit, 0, len(vs))}
		for _, v := range vs {
			p.Units = append(p.Units, v.unit)
			s.Order = append(s.Order, v.unit.NodeIDs...)
		}
		s.Phases = append(s.Phases, p)
	}

	c.logger.Debug("flow compiled",
		"flow_id", g.ID,
		"phases", len(s.Phases),
		"nodes", s.NodeCount(),
		"ignored_edges", len(s.Ignored),
	)
	return s, nil
}

func checkNodes(g *domain.FlowGraph) error {
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n == nil || n.ID == "" {
			return &domain.CompileError{Reason: "node without id"}
		}
		if seen[n.ID] {
			return &domain.CompileError{Reason: "duplicate node id", NodeIDs: []string{n.ID}}
		}
		seen[n.ID] = true
		if !n.Kind.Valid() {
			return &domain.CompileError{Reason: fmt.Sprintf("unknown node kind %q", n.Kind), NodeIDs: []string{n.ID}}
		}
	}
	return nil
}

// dependencies resolves edges into ordering constraints. Dangling edges are
// recorded in s.Ignored. Loop-back edges and bidirectional edges inside a
// mesh group impose no order.
func (c *Compiler) dependencies(g *domain.FlowGraph, s *domain.ExecutionStrategy) []dep {
	var deps []dep
	for _, e := range g.Edges {
		if graph.DanglingEdge(g, e) != "" {
			s.Ignored = append(s.Ignored, e.ID)
			continue
		}
		to := g.Node(e.To)
		if to.Kind == domain.KindLoop && e.ToPort == domain.PortBack {
			continue
		}
		from := g.Node(e.From)
		switch e.Kind {
		case domain.EdgeReverse:
			deps = append(deps, dep{from: e.To, to: e.From, edge: e})
		case domain.EdgeBidirectional:
			if sameMesh(from, to) {
				continue
			}
			deps = append(deps, dep{from: e.From, to: e.To, edge: e}, dep{from: e.To, to: e.From, edge: e})
		default:
			deps = append(deps, dep{from: e.From, to: e.To, edge: e})
		}
	}
	return deps
}

func sameMesh(a, b *domain.FlowNode) bool {
	ga, gb := meshOf(a), meshOf(b)
	return ga != "" && ga == gb
}

func meshOf(n *domain.FlowNode) string {
	if n.Kind != domain.KindAgent {
		return ""
	}
	return n.Config.MeshGroup()
}

func collapsible(n *domain.FlowNode) bool {
	return n.Kind == domain.KindAgent && meshOf(n) == "" && (n.Config.Agent == nil || !n.Config.Agent.NoCollapse)
}

// contract groups nodes into vertices and returns them with a node→vertex map.
func (c *Compiler) contract(g *domain.FlowGraph, deps []dep, index map[string]int) ([]*vertex, map[string]*vertex) {
	owner := make(map[string]*vertex, len(g.Nodes))
	var verts []*vertex

	// Mesh groups, members in graph order.
	meshes := make(map[string]*vertex)
	for _, n := range g.Nodes {
		group := meshOf(n)
		if group == "" {
			continue
		}
		v, ok := meshes[group]
		if !ok {
			v = &vertex{
				key:   "mesh:" + group,
				first: index[n.ID],
				unit:  domain.ExecutionUnit{Kind: domain.UnitMesh, Group: group},
			}
			meshes[group] = v
			verts = append(verts, v)
		}
		v.members = append(v.members, n.ID)
		if n.Config.Agent.MaxIterations > v.unit.MaxIterations {
			v.unit.MaxIterations = n.Config.Agent.MaxIterations
		}
		owner[n.ID] = v
	}
	for _, v := range meshes {
		v.unit.NodeIDs = v.members
		if v.unit.MaxIterations == 0 {
			v.unit.MaxIterations = c.defaultMaxIterations
		}
	}

	// Collapsible chains.
	if c.collapse {
		for _, chain := range findChains(g, deps) {
			nodes := make([]*domain.FlowNode, len(chain))
			for i, id := range chain {
				nodes[i] = g.Node(id)
			}
			v := &vertex{
				key:     "chain:" + chain[0],
				first:   index[chain[0]],
				members: chain,
				unit: domain.ExecutionUnit{
					Kind:         domain.UnitCollapsedAgent,
					NodeIDs:      chain,
					MergedPrompt: BuildCollapsedPrompt(nodes),
				},
			}
			for _, id := range chain {
				owner[id] = v
			}
			verts = append(verts, v)
		}
	}

	// Everything else runs on its own.
	for i, n := range g.Nodes {
		if owner[n.ID] != nil {
			continue
		}
		v := &vertex{
			key:     "node:" + n.ID,
			first:   i,
			members: []string{n.ID},
			unit:    domain.ExecutionUnit{Kind: unitKindFor(n.Kind), NodeIDs: []string{n.ID}},
		}
		owner[n.ID] = v
		verts = append(verts, v)
	}
	return verts, owner
}

func unitKindFor(kind domain.NodeKind) domain.UnitKind {
	switch kind {
	case domain.KindAgent:
		return domain.UnitSingleAgent
	case domain.KindTrigger, domain.KindOutput, domain.KindError:
		return domain.UnitSingleDirect
	default:
		return domain.UnitDirectAction
	}
}

// findChains returns maximal linear runs of collapsible agents joined by
// forward edges, where each link is the only outgoing constraint of its
// source and the only incoming constraint of its target.
func findChains(g *domain.FlowGraph, deps []dep) [][]string {
	outs := make(map[string][]dep)
	ins := make(map[string][]dep)
	for _, d := range deps {
		outs[d.from] = append(outs[d.from], d)
		ins[d.to] = append(ins[d.to], d)
	}

	next := make(map[string]string)
	prev := make(map[string]string)
	for _, n := range g.Nodes {
		if !collapsible(n) || len(outs[n.ID]) != 1 {
			continue
		}
		d := outs[n.ID][0]
		if d.edge.Kind != domain.EdgeForward || d.edge.From != n.ID || d.to == n.ID {
			continue
		}
		target := g.Node(d.to)
		if !collapsible(target) || len(ins[d.to]) != 1 {
			continue
		}
		next[n.ID] = d.to
		prev[d.to] = n.ID
	}

	var chains [][]string
	for _, n := range g.Nodes {
		if _, linked := next[n.ID]; !linked {
			continue
		}
		if _, hasPrev := prev[n.ID]; hasPrev {
			continue
		}
		chain := []string{n.ID}
		for cur := next[n.ID]; cur != ""; cur = next[cur] {
			chain = append(chain, cur)
		}
		chains = append(chains, chain)
	}
	return chains
}

// layer assigns each vertex its longest-path depth with Kahn's algorithm.
func layer(verts []*vertex, owner map[string]*vertex, deps []dep, g *domain.FlowGraph) (map[string]int, error) {
	succ := make(map[string][]string)
	indeg := make(map[string]int, len(verts))
	seen := make(map[[2]string]bool)
	for _, v := range verts {
		indeg[v.key] = 0
	}
	for _, d := range deps {
		a, b := owner[d.from].key, owner[d.to].key
		if a == b {
			if d.from == d.to {
				return nil, &domain.CompileError{Reason: "cycle detected", NodeIDs: []string{d.from}}
			}
			continue
		}
		if seen[[2]string{a, b}] {
			continue
		}
		seen[[2]string{a, b}] = true
		succ[a] = append(succ[a], b)
		indeg[b]++
	}

	depth := make(map[string]int, len(verts))
	var queue []string
	for _, v := range verts {
		depth[v.key] = 0
		if indeg[v.key] == 0 {
			queue = append(queue, v.key)
		}
	}
	done := 0
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		done++
		for _, s := range succ[k] {
			if depth[k]+1 > depth[s] {
				depth[s] = depth[k] + 1
			}
			indeg[s]--
			if indeg[s] == 0 {
				queue = append(queue, s)
			}
		}
	}

	if done < len(verts) {
		var stuck []string
		for _, n := range g.Nodes {
			if indeg[owner[n.ID].key] > 0 {
				stuck = append(stuck, n.ID)
			}
		}
		return nil, &domain.CompileError{Reason: "cycle detected", NodeIDs: stuck}
	}
	return depth, nil
}
