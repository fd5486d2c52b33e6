package graph

import (
	"errors"
	"fmt"

	"github.com/aretw0/conductor/pkg/domain"
)

// Issue is a single structural problem in a graph.
type Issue struct {
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	switch {
	case i.EdgeID != "":
		return fmt.Sprintf("edge %s: %s", i.EdgeID, i.Message)
	case i.NodeID != "":
		return fmt.Sprintf("node %s: %s", i.NodeID, i.Message)
	default:
		return i.Message
	}
}

// DanglingEdge reports why e cannot be used, or "" when it is sound.
func DanglingEdge(g *domain.FlowGraph, e *domain.FlowEdge) string {
	from, to := g.Node(e.From), g.Node(e.To)
	switch {
	case from == nil:
		return fmt.Sprintf("unknown source node %q", e.From)
	case to == nil:
		return fmt.Sprintf("unknown target node %q", e.To)
	case !from.HasOutput(e.FromPort):
		return fmt.Sprintf("source %q has no output port %q", e.From, e.FromPort)
	case !to.HasInput(e.ToPort):
		return fmt.Sprintf("target %q has no input port %q", e.To, e.ToPort)
	}
	return ""
}

// Validate lists structural issues: duplicate or unknown ids, bad kinds,
// dangling edges and repeated node pairs.
func Validate(g *domain.FlowGraph) []Issue {
	var issues []Issue

	seen := make(map[string]bool)
	for _, n := range g.Nodes {
		if n.ID == "" {
			issues = append(issues, Issue{Message: "node without id"})
			continue
		}
		if seen[n.ID] {
			issues = append(issues, Issue{NodeID: n.ID, Message: "duplicate node id"})
		}
		seen[n.ID] = true
		if !n.Kind.Valid() {
			issues = append(issues, Issue{NodeID: n.ID, Message: fmt.Sprintf("unknown kind %q", n.Kind)})
		}
		if _, err := n.Config.TimeoutDuration(); err != nil {
			issues = append(issues, Issue{NodeID: n.ID, Message: err.Error()})
		}
	}

	pairs := make(map[[2]string]bool)
	for _, e := range g.Edges {
		if msg := DanglingEdge(g, e); msg != "" {
			issues = append(issues, Issue{EdgeID: e.ID, Message: msg})
			continue
		}
		key := [2]string{e.From, e.To}
		if e.From > e.To {
			key = [2]string{e.To, e.From}
		}
		if pairs[key] {
			issues = append(issues, Issue{EdgeID: e.ID, Message: "duplicate connection"})
		}
		pairs[key] = true
	}
	return issues
}

// Check returns Validate's issues joined into one error, or nil.
func Check(g *domain.FlowGraph) error {
	issues := Validate(g)
	if len(issues) == 0 {
		return nil
	}
	errs := make([]error, len(issues))
	for i, issue := range issues {
		errs[i] = errors.New(issue.String())
	}
	return errors.Join(errs...)
}
