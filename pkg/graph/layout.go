package graph

import "github.com/aretw0/conductor/pkg/domain"

const (
	layoutMargin    = 40
	layoutColumnGap = 280
	layoutRowGap    = 120
)

// ApplyLayout places nodes in left-to-right layers by dependency depth.
// Within a layer nodes keep their graph order. The result depends only on
// the graph structure, so applying it twice changes nothing.
func ApplyLayout(g *domain.FlowGraph) {
	depth := Depths(g)

	rows := make(map[int]int)
	for _, n := range g.Nodes {
		d := depth[n.ID]
		n.X = SnapToGrid(layoutMargin + float64(d)*layoutColumnGap)
		n.Y = SnapToGrid(layoutMargin + float64(rows[d])*layoutRowGap)
		rows[d]++
	}
	g.Touch(Clock())
}

// Depths returns the longest-path depth of every node over data-carrying
// edges, ignoring loop-back edges. Cycles are cut by bounding relaxation to
// the node count.
func Depths(g *domain.FlowGraph) map[string]int {
	depth := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		depth[n.ID] = 0
	}

	type link struct{ from, to string }
	var links []link
	for _, e := range g.Edges {
		if e.Kind == domain.EdgeBidirectional || isLoopBack(g, e) {
			continue
		}
		src, dst := e.From, e.To
		if e.Kind == domain.EdgeReverse {
			src, dst = dst, src
		}
		if _, ok := depth[src]; !ok {
			continue
		}
		if _, ok := depth[dst]; !ok {
			continue
		}
		links = append(links, link{src, dst})
	}

	for i := 0; i < len(g.Nodes); i++ {
		changed := false
		for _, l := range links {
			if depth[l.from]+1 > depth[l.to] && depth[l.from]+1 < len(g.Nodes) {
				depth[l.to] = depth[l.from] + 1
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return depth
}

func isLoopBack(g *domain.FlowGraph, e *domain.FlowEdge) bool {
	to := g.Node(e.To)
	return to != nil && to.Kind == domain.KindLoop && e.ToPort == domain.PortBack
}
