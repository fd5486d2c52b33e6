package domain

// UnitKind tags the variant of an ExecutionUnit.
type UnitKind string

const (
	// UnitSingleAgent runs agent nodes one LLM call each.
	UnitSingleAgent UnitKind = "single-agent"
	// UnitSingleDirect runs bookkeeping nodes (trigger, output, error) directly.
	UnitSingleDirect UnitKind = "single-direct"
	// UnitDirectAction runs side-effecting nodes through the node executor.
	UnitDirectAction UnitKind = "direct-action"
	// UnitCollapsedAgent runs a linear agent chain as one LLM call.
	UnitCollapsedAgent UnitKind = "collapsed-agent"
	// UnitMesh iterates peer agents until they converge.
	UnitMesh UnitKind = "mesh"
)

// Direct reports whether the unit is one of the direct variants.
func (k UnitKind) Direct() bool {
	return k == UnitSingleAgent || k == UnitSingleDirect || k == UnitDirectAction
}

// ExecutionUnit is one dispatchable piece of work within a phase.
type ExecutionUnit struct {
	Kind    UnitKind `json:"kind"`
	NodeIDs []string `json:"node_ids"`

	// MergedPrompt is set for collapsed units.
	MergedPrompt string `json:"merged_prompt,omitempty"`

	// Mesh fields.
	Group         string `json:"group,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

// Phase is a batch of units with no ordering constraints between them.
type Phase struct {
	Index int             `json:"index"`
	Units []ExecutionUnit `json:"units"`
}

// ExecutionStrategy is the compiled, read-only plan for one run of a graph.
type ExecutionStrategy struct {
	GraphID string  `json:"graph_id"`
	Phases  []Phase `json:"phases"`

	// Order is the flattened node order across phases and units.
	Order []string `json:"order"`

	// Ignored lists edges dropped by the compiler (dangling or undeclared ports).
	Ignored []string `json:"ignored,omitempty"`
}

// Locate returns the phase and unit indexes holding nodeID.
func (s *ExecutionStrategy) Locate(nodeID string) (phase, unit int, ok bool) {
	for pi, p := range s.Phases {
		for ui, u := range p.Units {
			for _, id := range u.NodeIDs {
				if id == nodeID {
					return pi, ui, true
				}
			}
		}
	}
	return -1, -1, false
}

// NodeCount returns the number of node slots across all units.
func (s *ExecutionStrategy) NodeCount() int {
	total := 0
	for _, p := range s.Phases {
		for _, u := range p.Units {
			total += len(u.NodeIDs)
		}
	}
	return total
}
