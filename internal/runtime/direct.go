package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/ports"
)

// errNoAgent is recorded when an agent step runs without a configured stepper.
var errNoAgent = errors.New("no agent stepper configured")

// runDirect executes the unit's nodes one after another.
func (r *run) runDirect(ctx context.Context, u domain.ExecutionUnit) {
	for _, id := range u.NodeIDs {
		if r.skip[id] || !r.reach(id) {
			continue
		}
		if !r.checkpoint(ctx, id) {
			return
		}
		n := r.g.Node(id)
		if n == nil {
			continue
		}
		r.runNode(ctx, u.Kind, n)
	}
}

// reach reports whether the group gets to run on the routes taken so far:
// some member has a live input from outside the group, or the group has no
// outside inputs at all. Otherwise every member is bypassed.
func (r *run) reach(ids ...string) bool {
	var within map[string]bool
	if len(ids) > 1 {
		within = make(map[string]bool, len(ids))
		for _, id := range ids {
			within[id] = true
		}
	}
	inbound := 0
	for _, id := range ids {
		ok, n := r.state.live(id, within)
		if ok {
			return true
		}
		inbound += n
	}
	if inbound == 0 {
		return true
	}
	r.state.bypass(ids...)
	r.logger.Debug("not reached", "node_id", ids[0], "nodes", len(ids))
	return false
}

func (r *run) runNode(ctx context.Context, unit domain.UnitKind, n *domain.FlowNode) {
	input := r.state.gather(n.ID, r.input)
	started := r.exec.now()
	r.state.nodeRunning(ctx, n.ID, unit, input, started)

	inbound := graph.Incoming(r.g, n.ID)
	r.state.edgeActive(ctx, inbound, true)
	defer r.state.edgeActive(ctx, inbound, false)

	cfg := ports.ExecConfigFor(n)
	callCtx, cancel := withTimeout(ctx, cfg.Timeout)
	defer cancel()

	var res ports.NodeResult
	err := safeCall(func() error {
		var err error
		if unit == domain.UnitSingleAgent {
			res.Output, err = r.stepAgent(callCtx, n, composePrompt(input, n.Config.Prompt()), cfg)
			return err
		}
		res, err = r.exec.nodes.Execute(callCtx, ports.NodeRequest{
			RunID: r.state.s.RunID, Graph: r.g, Node: n, Input: input, Config: cfg,
		})
		return err
	})
	if err != nil {
		r.fail(ctx, unit, []*domain.FlowNode{n}, err, started)
		return
	}
	r.state.nodeSuccess(ctx, n.ID, unit, res.Output, started, r.exec.now())
	r.state.record(n.ID, res.Output, res.Port, false)
}

func (r *run) stepAgent(ctx context.Context, n *domain.FlowNode, prompt string, cfg ports.NodeExecConfig) (string, error) {
	if r.exec.agent == nil {
		return "", errNoAgent
	}
	var agentID string
	if n.Config.Agent != nil {
		agentID = n.Config.Agent.AgentID
	}
	return r.exec.agent.Step(ctx, ports.AgentRequest{
		RunID:   r.state.s.RunID,
		Graph:   r.g,
		Node:    n,
		Input:   prompt,
		Config:  cfg,
		AgentID: agentID,
	})
}

// fail marks every node of a failed group as error with the same message.
// A single step-error event, keyed to the first node, reports the group.
func (r *run) fail(ctx context.Context, unit domain.UnitKind, nodes []*domain.FlowNode, err error, started time.Time) {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	nerr := &domain.NodeExecutionError{NodeIDs: ids, Unit: unit, Err: err}
	r.logger.Warn("unit failed", "unit", unit, "node_id", ids[0], "err", nerr)

	finished := r.exec.now()
	for i, n := range nodes {
		r.state.nodeError(ctx, n.ID, unit, err, started, finished, i == 0)
		r.state.record(n.ID, err.Error(), "", true)
	}
}

// safeCall runs fn, turning a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
