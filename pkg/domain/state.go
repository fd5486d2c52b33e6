package domain

import "time"

// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	RunIdle    RunStatus = "idle"
	RunRunning RunStatus = "running"
	RunPaused  RunStatus = "paused"
	RunError   RunStatus = "error"
	RunDone    RunStatus = "done"
)

// Finished reports whether the run reached a terminal status.
func (s RunStatus) Finished() bool {
	return s == RunError || s == RunDone
}

// NodeRunState is the per-run record of a single node.
type NodeRunState struct {
	Status     NodeStatus `json:"status"`
	Input      string     `json:"input,omitempty"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// OutputLogEntry is an append-only record of a node finishing.
type OutputLogEntry struct {
	NodeID     string     `json:"node_id"`
	Label      string     `json:"label"`
	Kind       NodeKind   `json:"kind"`
	Status     NodeStatus `json:"status"`
	Output     string     `json:"output"`
	DurationMs int64      `json:"duration_ms"`
	Timestamp  time.Time  `json:"timestamp"`
}

// FlowRunState is the mutable record of one run. It is written only by the
// executor that owns the run; everyone else reads snapshots.
type FlowRunState struct {
	RunID       string                   `json:"run_id"`
	FlowID      string                   `json:"flow_id"`
	Status      RunStatus                `json:"status"`
	CurrentStep int                      `json:"current_step"`
	Cursor      string                   `json:"cursor,omitempty"`
	Nodes       map[string]*NodeRunState `json:"nodes"`
	EdgeValues  map[string]string        `json:"edge_values,omitempty"`
	OutputLog   []OutputLogEntry         `json:"output_log"`
	Aborted     bool                     `json:"aborted"`
	StartedAt   time.Time                `json:"started_at"`
	FinishedAt  time.Time                `json:"finished_at,omitempty"`
}

// NewRunState creates an idle run record with every node of g idle.
func NewRunState(runID string, g *FlowGraph) *FlowRunState {
	s := &FlowRunState{
		RunID:      runID,
		Status:     RunIdle,
		Nodes:      make(map[string]*NodeRunState),
		EdgeValues: make(map[string]string),
		OutputLog:  []OutputLogEntry{},
	}
	if g != nil {
		s.FlowID = g.ID
		for _, n := range g.Nodes {
			s.Nodes[n.ID] = &NodeRunState{Status: NodeIdle}
		}
	}
	return s
}

// Node returns the record for nodeID, creating an idle one if missing.
func (s *FlowRunState) Node(nodeID string) *NodeRunState {
	ns, ok := s.Nodes[nodeID]
	if !ok {
		ns = &NodeRunState{Status: NodeIdle}
		s.Nodes[nodeID] = ns
	}
	return ns
}

// Clone returns a deep copy of the run state.
func (s *FlowRunState) Clone() *FlowRunState {
	if s == nil {
		return nil
	}
	c := *s
	c.Nodes = make(map[string]*NodeRunState, len(s.Nodes))
	for id, ns := range s.Nodes {
		v := *ns
		c.Nodes[id] = &v
	}
	c.EdgeValues = make(map[string]string, len(s.EdgeValues))
	for id, v := range s.EdgeValues {
		c.EdgeValues[id] = v
	}
	c.OutputLog = append([]OutputLogEntry{}, s.OutputLog...)
	return &c
}

// Failed returns the ids of nodes that ended in error.
func (s *FlowRunState) Failed() []string {
	var ids []string
	for id, ns := range s.Nodes {
		if ns.Status == NodeError {
			ids = append(ids, id)
		}
	}
	return ids
}
