package graph

import (
	"fmt"
	"math"

	"github.com/aretw0/conductor/pkg/domain"
)

const (
	// GridSize is the canvas snapping step, in pixels.
	GridSize = 20
	// PortRadius is the hit radius of a port handle.
	PortRadius = 8
)

// Point is a canvas position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SnapToGrid rounds v to the nearest multiple of GridSize.
func SnapToGrid(v float64) float64 {
	return math.Round(v/GridSize) * GridSize
}

// GetOutputPort returns the absolute position of a named output port.
// Output ports sit on the right edge, evenly spaced.
func GetOutputPort(n *domain.FlowNode, port string) (Point, bool) {
	idx := indexOf(n.Outputs, port)
	if idx < 0 {
		return Point{}, false
	}
	return Point{X: n.X + n.Width, Y: portY(n, idx, len(n.Outputs))}, true
}

// GetInputPort returns the absolute position of a named input port.
// Input ports sit on the left edge, evenly spaced.
func GetInputPort(n *domain.FlowNode, port string) (Point, bool) {
	idx := indexOf(n.Inputs, port)
	if idx < 0 {
		return Point{}, false
	}
	return Point{X: n.X, Y: portY(n, idx, len(n.Inputs))}, true
}

func portY(n *domain.FlowNode, idx, count int) float64 {
	return n.Y + n.Height*float64(idx+1)/float64(count+1)
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

// HitTestNode returns the topmost node whose box contains p.
// Later nodes are drawn over earlier ones, so the search runs backwards.
func HitTestNode(nodes []*domain.FlowNode, p Point) *domain.FlowNode {
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if p.X >= n.X && p.X <= n.X+n.Width && p.Y >= n.Y && p.Y <= n.Y+n.Height {
			return n
		}
	}
	return nil
}

// PortHit describes a port found by HitTestPort.
type PortHit struct {
	Node   *domain.FlowNode
	Port   string
	Output bool
	At     Point
}

// HitTestPort returns the topmost port handle within PortRadius of p.
func HitTestPort(nodes []*domain.FlowNode, p Point) (PortHit, bool) {
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		for _, port := range n.Outputs {
			at, _ := GetOutputPort(n, port)
			if within(at, p) {
				return PortHit{Node: n, Port: port, Output: true, At: at}, true
			}
		}
		for _, port := range n.Inputs {
			at, _ := GetInputPort(n, port)
			if within(at, p) {
				return PortHit{Node: n, Port: port, At: at}, true
			}
		}
	}
	return PortHit{}, false
}

func within(a, b Point) bool {
	return math.Hypot(a.X-b.X, a.Y-b.Y) <= PortRadius
}

// BuildEdgePath returns an SVG cubic Bézier path between two ports.
func BuildEdgePath(from, to Point) string {
	dx := math.Max(math.Abs(to.X-from.X)/2, 40)
	return fmt.Sprintf("M %.1f %.1f C %.1f %.1f, %.1f %.1f, %.1f %.1f",
		from.X, from.Y,
		from.X+dx, from.Y,
		to.X-dx, to.Y,
		to.X, to.Y,
	)
}

// EdgePath resolves the ports of e in g and builds its path.
func EdgePath(g *domain.FlowGraph, e *domain.FlowEdge) (string, bool) {
	from, to := g.Node(e.From), g.Node(e.To)
	if from == nil || to == nil {
		return "", false
	}
	a, ok := GetOutputPort(from, e.FromPort)
	if !ok {
		return "", false
	}
	b, ok := GetInputPort(to, e.ToPort)
	if !ok {
		return "", false
	}
	return BuildEdgePath(a, b), true
}
