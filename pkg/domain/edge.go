package domain

// EdgeKind defines how data and ordering flow across an edge.
type EdgeKind string

const (
	// EdgeForward carries data from From to To.
	EdgeForward EdgeKind = "forward"
	// EdgeReverse carries data from To back to From.
	EdgeReverse EdgeKind = "reverse"
	// EdgeBidirectional links peers; only legal inside a mesh group.
	EdgeBidirectional EdgeKind = "bidirectional"
	// EdgeError routes a node's "err" output to an error handler.
	EdgeError EdgeKind = "error"
)

// FlowEdge connects two node ports. Edges reference nodes by id and never own them.
type FlowEdge struct {
	ID       string   `json:"id" yaml:"id"`
	From     string   `json:"from" yaml:"from"`
	FromPort string   `json:"from_port" yaml:"from_port"`
	To       string   `json:"to" yaml:"to"`
	ToPort   string   `json:"to_port" yaml:"to_port"`
	Kind     EdgeKind `json:"kind" yaml:"kind"`
	Label    string   `json:"label,omitempty" yaml:"label,omitempty"`

	// Active is true only while a run traverses the edge. Visualization only.
	Active bool `json:"active,omitempty" yaml:"active,omitempty"`
}

// Carries reports whether data produced by nodeID travels along the edge,
// and to which node.
func (e *FlowEdge) Carries(nodeID string) (string, bool) {
	switch e.Kind {
	case EdgeReverse:
		if e.To == nodeID {
			return e.From, true
		}
	case EdgeBidirectional:
		if e.From == nodeID {
			return e.To, true
		}
		if e.To == nodeID {
			return e.From, true
		}
	default:
		if e.From == nodeID {
			return e.To, true
		}
	}
	return "", false
}

// Feeds reports whether the edge delivers data into nodeID.
func (e *FlowEdge) Feeds(nodeID string) bool {
	switch e.Kind {
	case EdgeReverse:
		return e.From == nodeID
	case EdgeBidirectional:
		return e.From == nodeID || e.To == nodeID
	default:
		return e.To == nodeID
	}
}

// Clone returns a copy of the edge.
func (e *FlowEdge) Clone() *FlowEdge {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
