package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
)

// Overlay carries run state to paint on top of the flow.
type Overlay struct {
	Status map[string]domain.NodeStatus
	Cursor string
}

// OverlayFromRun builds an overlay from a run snapshot.
func OverlayFromRun(s *domain.FlowRunState) *Overlay {
	if s == nil {
		return nil
	}
	o := &Overlay{Status: make(map[string]domain.NodeStatus, len(s.Nodes)), Cursor: s.Cursor}
	for id, ns := range s.Nodes {
		o.Status[id] = ns.Status
	}
	return o
}

// GenerateMermaid renders g as a left-to-right Mermaid flowchart.
// Node shapes follow the kind:
//   - trigger: ((circle))
//   - agent: ([stadium])
//   - condition: {rhombus}
//   - tool, mcp-tool, code, http: [[subroutine]]
//   - output: [/parallelogram/]
//   - default: [rectangle]
//
// Mesh members are grouped in a subgraph per mesh name.
func GenerateMermaid(g *domain.FlowGraph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("flowchart LR\n")

	meshes := make(map[string][]*domain.FlowNode)
	var meshOrder []string
	for _, n := range g.Nodes {
		if group := n.Config.MeshGroup(); group != "" && n.Kind == domain.KindAgent {
			if _, seen := meshes[group]; !seen {
				meshOrder = append(meshOrder, group)
			}
			meshes[group] = append(meshes[group], n)
			continue
		}
		writeNode(&sb, n, "    ")
	}
	for _, group := range meshOrder {
		fmt.Fprintf(&sb, "    subgraph mesh_%s[\"mesh: %s\"]\n", sanitizeMermaidID(group), escapeLabel(group))
		for _, n := range meshes[group] {
			writeNode(&sb, n, "        ")
		}
		sb.WriteString("    end\n")
	}

	for _, e := range g.Edges {
		if g.Node(e.From) == nil || g.Node(e.To) == nil {
			continue
		}
		from, to := sanitizeMermaidID(e.From), sanitizeMermaidID(e.To)
		arrow := edgeArrow(e)
		if e.Label != "" {
			arrow = labelledArrow(e, escapeLabel(e.Label))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", from, arrow, to)
	}

	if overlay != nil {
		writeOverlay(&sb, g, overlay)
	}
	return sb.String()
}

func writeNode(sb *strings.Builder, n *domain.FlowNode, indent string) {
	opener, closer := shapeFor(n.Kind)
	label := escapeLabel(n.Label)
	if label == "" {
		label = n.ID
	}
	if n.Config.Timeout != "" {
		label = fmt.Sprintf("%s <br/> ⏱️ %s", label, n.Config.Timeout)
	}
	fmt.Fprintf(sb, "%s%s%s\"%s\"%s\n", indent, sanitizeMermaidID(n.ID), opener, label, closer)
}

func shapeFor(kind domain.NodeKind) (string, string) {
	switch kind {
	case domain.KindTrigger:
		return "((", "))"
	case domain.KindAgent:
		return "([", "])"
	case domain.KindCondition:
		return "{", "}"
	case domain.KindTool, domain.KindMCPTool, domain.KindCode, domain.KindHTTP:
		return "[[", "]]"
	case domain.KindOutput:
		return "[/", "/]"
	default:
		return "[", "]"
	}
}

func edgeArrow(e *domain.FlowEdge) string {
	switch e.Kind {
	case domain.EdgeReverse:
		return "<--"
	case domain.EdgeBidirectional:
		return "<-->"
	case domain.EdgeError:
		return "-. err .->"
	default:
		return "-->"
	}
}

func labelledArrow(e *domain.FlowEdge, label string) string {
	switch e.Kind {
	case domain.EdgeReverse:
		return fmt.Sprintf("<-- \"%s\" --", label)
	case domain.EdgeBidirectional:
		return fmt.Sprintf("<-- \"%s\" -->", label)
	case domain.EdgeError:
		return fmt.Sprintf("-. \"%s\" .->", label)
	default:
		return fmt.Sprintf("-- \"%s\" -->", label)
	}
}

func writeOverlay(sb *strings.Builder, g *domain.FlowGraph, o *Overlay) {
	sb.WriteString("\n    %% Run overlay\n")
	// Black text keeps contrast on light fills in both themes.
	sb.WriteString("    classDef running fill:#fff8e1,stroke:#f9a825,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef success fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef error fill:#ffebee,stroke:#c62828,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef paused fill:#e3f2fd,stroke:#1565c0,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef cursor stroke:#fbc02d,stroke-width:4px,color:#000;\n")

	for _, n := range g.Nodes {
		switch st := o.Status[n.ID]; st {
		case domain.NodeRunning, domain.NodeSuccess, domain.NodeError, domain.NodePaused:
			fmt.Fprintf(sb, "    class %s %s;\n", sanitizeMermaidID(n.ID), st)
		}
	}
	if o.Cursor != "" && g.Node(o.Cursor) != nil {
		fmt.Fprintf(sb, "    class %s cursor;\n", sanitizeMermaidID(o.Cursor))
	}
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
