package session

import (
	"fmt"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
)

// Result reports what a command touched.
type Result struct {
	NodeIDs []string `json:"node_ids,omitempty"`
	EdgeID  string   `json:"edge_id,omitempty"`
	// Set is the new breakpoint state for toggle-breakpoint.
	Set bool `json:"set,omitempty"`
}

// Apply dispatches a typed editor command.
func (e *Editor) Apply(cmd domain.Command) (Result, error) {
	switch cmd.Kind {
	case domain.CmdAddNode:
		n, err := e.AddNode(cmd.NodeKind, cmd.Label, cmd.X, cmd.Y)
		if err != nil {
			return Result{}, err
		}
		return Result{NodeIDs: []string{n.ID}}, nil

	case domain.CmdMoveNode:
		return Result{NodeIDs: []string{cmd.NodeID}}, e.MoveNode(cmd.NodeID, cmd.X, cmd.Y)

	case domain.CmdConfigure:
		return Result{NodeIDs: []string{cmd.NodeID}}, e.Configure(cmd.NodeID, cmd.Label, cmd.Config)

	case domain.CmdConnect:
		edge, err := e.Connect(cmd.From, cmd.To, cmd.EdgeKind, graph.EdgeOptions{
			FromPort: cmd.FromPort, ToPort: cmd.ToPort, Label: cmd.Label,
		})
		if err != nil {
			return Result{}, err
		}
		return Result{EdgeID: edge.ID}, nil

	case domain.CmdSelect:
		e.Select(cmd.NodeIDs...)
		return Result{NodeIDs: e.Selection()}, nil

	case domain.CmdDeleteSelection:
		ids, err := e.DeleteSelection()
		return Result{NodeIDs: ids}, err

	case domain.CmdDeleteEdge:
		return Result{EdgeID: cmd.EdgeID}, e.DeleteEdge(cmd.EdgeID)

	case domain.CmdCopy:
		e.Copy()
		return Result{NodeIDs: e.Selection()}, nil

	case domain.CmdCut:
		ids, err := e.Cut()
		return Result{NodeIDs: ids}, err

	case domain.CmdPaste:
		ids, err := e.Paste()
		return Result{NodeIDs: ids}, err

	case domain.CmdUndo:
		return Result{}, e.Undo()

	case domain.CmdRedo:
		return Result{}, e.Redo()

	case domain.CmdLayout:
		return Result{}, e.ApplyLayout()

	case domain.CmdToggleBreakpoint:
		set, err := e.ToggleBreakpoint(cmd.NodeID)
		return Result{NodeIDs: []string{cmd.NodeID}, Set: set}, err

	default:
		return Result{}, fmt.Errorf("unknown editor command %q", cmd.Kind)
	}
}
