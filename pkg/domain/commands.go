package domain

// CommandKind enumerates editor commands accepted by an editor session.
type CommandKind string

const (
	CmdAddNode          CommandKind = "add-node"
	CmdMoveNode         CommandKind = "move-node"
	CmdConfigure        CommandKind = "configure"
	CmdConnect          CommandKind = "connect"
	CmdSelect           CommandKind = "select"
	CmdDeleteSelection  CommandKind = "delete-selection"
	CmdDeleteEdge       CommandKind = "delete-edge"
	CmdCopy             CommandKind = "copy"
	CmdCut              CommandKind = "cut"
	CmdPaste            CommandKind = "paste"
	CmdUndo             CommandKind = "undo"
	CmdRedo             CommandKind = "redo"
	CmdLayout           CommandKind = "layout"
	CmdToggleBreakpoint CommandKind = "toggle-breakpoint"
)

// Command is a typed editor request. Only the fields relevant to Kind are read.
type Command struct {
	Kind CommandKind `json:"kind"`

	NodeKind NodeKind `json:"node_kind,omitempty"`
	Label    string   `json:"label,omitempty"`
	X        float64  `json:"x,omitempty"`
	Y        float64  `json:"y,omitempty"`

	NodeID  string   `json:"node_id,omitempty"`
	NodeIDs []string `json:"node_ids,omitempty"`
	EdgeID  string   `json:"edge_id,omitempty"`

	From     string   `json:"from,omitempty"`
	To       string   `json:"to,omitempty"`
	FromPort string   `json:"from_port,omitempty"`
	ToPort   string   `json:"to_port,omitempty"`
	EdgeKind EdgeKind `json:"edge_kind,omitempty"`

	// Config is the loosely typed section for configure, as collected by a
	// properties panel.
	Config map[string]any `json:"config,omitempty"`
}
