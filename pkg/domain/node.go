package domain

// NodeKind defines what a step does when the conductor reaches it.
type NodeKind string

const (
	// KindTrigger starts a flow, either manually or from a cron schedule.
	KindTrigger NodeKind = "trigger"
	// KindAgent calls the LLM/agent backend with a prompt.
	KindAgent NodeKind = "agent"
	// KindTool invokes a registered tool.
	KindTool NodeKind = "tool"
	// KindCondition evaluates an expression and reports true/false.
	KindCondition NodeKind = "condition"
	// KindData transforms its input.
	KindData NodeKind = "data"
	// KindCode runs a code body in an external interpreter.
	KindCode NodeKind = "code"
	// KindError handles failures routed through error edges.
	KindError NodeKind = "error"
	// KindOutput is a sink that publishes the result of the flow.
	KindOutput NodeKind = "output"
	// KindHTTP performs an HTTP request.
	KindHTTP NodeKind = "http"
	// KindMCPTool invokes a tool exposed by an MCP server.
	KindMCPTool NodeKind = "mcp-tool"
	// KindLoop iterates its body.
	KindLoop NodeKind = "loop"
)

// Kinds lists every node kind in palette order.
var Kinds = []NodeKind{
	KindTrigger, KindAgent, KindTool, KindCondition, KindData, KindCode,
	KindError, KindOutput, KindHTTP, KindMCPTool, KindLoop,
}

// Valid reports whether k is a known node kind.
func (k NodeKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Port names shared by several kinds.
const (
	PortIn    = "in"
	PortOut   = "out"
	PortOK    = "ok"
	PortErr   = "err"
	PortTrue  = "true"
	PortFalse = "false"
	PortBody  = "body"
	PortDone  = "done"
	// PortBack receives loop-back edges; they never constrain ordering.
	PortBack = "back"
)

// PortsFor returns the fixed input and output ports declared by a kind.
// The returned slices are fresh copies.
func PortsFor(kind NodeKind) (inputs, outputs []string) {
	switch kind {
	case KindTrigger:
		return []string{}, []string{PortOut}
	case KindAgent, KindTool, KindHTTP, KindMCPTool, KindCode:
		return []string{PortIn}, []string{PortOK, PortErr}
	case KindCondition:
		return []string{PortIn}, []string{PortTrue, PortFalse}
	case KindData, KindError:
		return []string{PortIn}, []string{PortOut}
	case KindOutput:
		return []string{PortIn}, []string{}
	case KindLoop:
		return []string{PortIn, PortBack}, []string{PortBody, PortDone}
	default:
		return []string{PortIn}, []string{PortOut}
	}
}

// NodeStatus is the visual/run status of a single node.
type NodeStatus string

const (
	NodeIdle    NodeStatus = "idle"
	NodeRunning NodeStatus = "running"
	NodeSuccess NodeStatus = "success"
	NodeError   NodeStatus = "error"
	NodePaused  NodeStatus = "paused"
)

// Terminal reports whether the status is final for a run.
func (s NodeStatus) Terminal() bool {
	return s == NodeSuccess || s == NodeError
}

// FlowNode is a typed step in a flow. Nodes are owned by their FlowGraph.
type FlowNode struct {
	ID          string   `json:"id" yaml:"id"`
	Kind        NodeKind `json:"kind" yaml:"kind"`
	Label       string   `json:"label" yaml:"label"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Icon        string   `json:"icon,omitempty" yaml:"icon,omitempty"`

	// Geometry, in canvas pixels.
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`

	Inputs  []string `json:"inputs" yaml:"inputs"`
	Outputs []string `json:"outputs" yaml:"outputs"`

	Status NodeStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Config NodeConfig `json:"config" yaml:"config"`
}

// HasInput reports whether the node declares the named input port.
func (n *FlowNode) HasInput(port string) bool {
	return contains(n.Inputs, port)
}

// HasOutput reports whether the node declares the named output port.
func (n *FlowNode) HasOutput(port string) bool {
	return contains(n.Outputs, port)
}

// Clone returns a deep copy of the node.
func (n *FlowNode) Clone() *FlowNode {
	if n == nil {
		return nil
	}
	c := *n
	c.Inputs = cloneStrings(n.Inputs)
	c.Outputs = cloneStrings(n.Outputs)
	c.Config = n.Config.Clone()
	return &c
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
