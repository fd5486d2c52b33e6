package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/ports"
)

// runMesh iterates peer agents in rounds. Each member sees the previous
// round's outputs of every member; iteration stops when outputs converge or
// the round limit is reached. A failing member drops out of later rounds.
func (r *run) runMesh(ctx context.Context, u domain.ExecutionUnit) {
	members := r.nodes(u.NodeIDs)
	if len(members) == 0 {
		return
	}
	if !r.reach(u.NodeIDs...) {
		return
	}
	for _, n := range members {
		if !r.checkpoint(ctx, n.ID) {
			return
		}
	}
	maxRounds := u.MaxIterations
	if maxRounds <= 0 {
		maxRounds = domain.DefaultMaxIterations
	}

	inMesh := make(map[string]bool, len(members))
	for _, n := range members {
		inMesh[n.ID] = true
	}

	started := r.exec.now()
	upstream := make(map[string]string, len(members))
	var inbound []*domain.FlowEdge
	for _, n := range members {
		upstream[n.ID] = r.state.gather(n.ID, r.input)
		r.state.nodeRunning(ctx, n.ID, u.Kind, upstream[n.ID], started)
		for _, e := range graph.Incoming(r.g, n.ID) {
			if !(inMesh[e.From] && inMesh[e.To]) {
				inbound = append(inbound, e)
			}
		}
	}
	r.state.edgeActive(ctx, inbound, true)
	defer r.state.edgeActive(ctx, inbound, false)

	failed := make(map[string]bool)
	last := make(map[string]string, len(members))
	var prev map[string]string
	shared := ""
	rounds := 0

	for round := 1; round <= maxRounds; round++ {
		if !r.checkpoint(ctx, "") {
			r.abortMesh(ctx, u, members, failed)
			return
		}
		rounds = round
		curr := make(map[string]string, len(members))

		for _, n := range members {
			if failed[n.ID] {
				continue
			}
			if !r.checkpoint(ctx, "") {
				r.abortMesh(ctx, u, members, failed)
				return
			}

			prompt := meshPrompt(round, maxRounds, upstream[n.ID], shared, n.Config.Prompt())
			cfg := ports.ExecConfigFor(n)
			callCtx, cancel := withTimeout(ctx, cfg.Timeout)
			var out string
			err := safeCall(func() error {
				var err error
				out, err = r.stepAgent(callCtx, n, prompt, cfg)
				return err
			})
			cancel()

			if err != nil {
				failed[n.ID] = true
				r.logger.Warn("mesh member failed", "unit", u.Kind, "node_id", n.ID, "round", round,
					"err", &domain.NodeExecutionError{NodeIDs: []string{n.ID}, Unit: u.Kind, Err: err})
				r.state.nodeError(ctx, n.ID, u.Kind, err, started, r.exec.now(), true)
				r.state.record(n.ID, err.Error(), "", true)
				continue
			}
			curr[n.ID] = out
			last[n.ID] = out
			r.state.progress(ctx, n.ID, u.Kind, round, out)
		}

		if len(curr) == 0 {
			break
		}
		shared = meshContext(members, curr)
		converged := CheckConvergence(prev, curr, r.exec.threshold)
		prev = curr
		if converged {
			break
		}
	}

	r.logger.Debug("mesh settled", "group", u.Group, "rounds", rounds, "failed", len(failed))
	finished := r.exec.now()
	for _, n := range members {
		if failed[n.ID] {
			continue
		}
		r.state.nodeSuccess(ctx, n.ID, u.Kind, last[n.ID], started, finished)
		r.state.record(n.ID, last[n.ID], "", false)
	}
}

// abortMesh settles members left running by an abort.
func (r *run) abortMesh(ctx context.Context, u domain.ExecutionUnit, members []*domain.FlowNode, failed map[string]bool) {
	now := r.exec.now()
	for _, n := range members {
		if failed[n.ID] {
			continue
		}
		r.state.nodeError(ctx, n.ID, u.Kind, domain.ErrAborted, now, now, false)
	}
}

func meshPrompt(round, maxRounds int, upstream, shared, prompt string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Round %d/%d\n", round, maxRounds)
	if upstream != "" {
		sb.WriteString("\nInput:\n")
		sb.WriteString(upstream)
		sb.WriteString("\n")
	}
	if shared != "" {
		sb.WriteString("\nPrevious round:\n")
		sb.WriteString(shared)
		sb.WriteString("\n")
	}
	if prompt != "" {
		sb.WriteString("\n")
		sb.WriteString(prompt)
	}
	return sb.String()
}

// meshContext renders one round as "<label>: <output>" lines in member order.
func meshContext(members []*domain.FlowNode, outputs map[string]string) string {
	lines := make([]string, 0, len(outputs))
	for _, n := range members {
		out, ok := outputs[n.ID]
		if !ok {
			continue
		}
		lines = append(lines, n.Label+": "+out)
	}
	return strings.Join(lines, "\n")
}
