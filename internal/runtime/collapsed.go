package runtime

import (
	"context"

	"github.com/aretw0/conductor/internal/compiler"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/ports"
)

// runCollapsed executes a linear agent chain as a single agent call and
// splits the answer back into one output per node.
func (r *run) runCollapsed(ctx context.Context, u domain.ExecutionUnit) {
	nodes := r.nodes(u.NodeIDs)
	if len(nodes) == 0 {
		return
	}
	if !r.reach(u.NodeIDs...) {
		return
	}
	for _, n := range nodes {
		if !r.checkpoint(ctx, n.ID) {
			return
		}
	}

	upstream := r.state.gather(nodes[0].ID, r.input)
	started := r.exec.now()
	var inbound []*domain.FlowEdge
	for i, n := range nodes {
		input := ""
		if i == 0 {
			input = upstream
		}
		r.state.nodeRunning(ctx, n.ID, u.Kind, input, started)
		inbound = append(inbound, graph.Incoming(r.g, n.ID)...)
	}
	r.state.edgeActive(ctx, inbound, true)
	defer r.state.edgeActive(ctx, inbound, false)

	prompt := u.MergedPrompt
	if prompt == "" {
		prompt = compiler.BuildCollapsedPrompt(nodes)
	}
	prompt = composePrompt(upstream, prompt)

	cfg := ports.ExecConfigFor(nodes[0])
	callCtx, cancel := withTimeout(ctx, cfg.Timeout)
	defer cancel()

	var out string
	err := safeCall(func() error {
		var err error
		out, err = r.stepAgent(callCtx, nodes[0], prompt, cfg)
		return err
	})
	if err != nil {
		r.fail(ctx, u.Kind, nodes, err, started)
		return
	}

	finished := r.exec.now()
	pieces := compiler.ParseCollapsedOutput(out, len(nodes))
	for i, n := range nodes {
		r.state.nodeSuccess(ctx, n.ID, u.Kind, pieces[i], started, finished)
		r.state.record(n.ID, pieces[i], "", false)
	}
}

func (r *run) nodes(ids []string) []*domain.FlowNode {
	out := make([]*domain.FlowNode, 0, len(ids))
	for _, id := range ids {
		if n := r.g.Node(id); n != nil {
			out = append(out, n)
		}
	}
	return out
}
