package session

import (
	"context"
	"errors"

	"github.com/aretw0/conductor/internal/runtime"
	"github.com/aretw0/conductor/pkg/domain"
)

var errNoRunner = errors.New("session has no runner")

// Run executes a snapshot of the graph. While it runs, node statuses and edge
// activity are mirrored onto the session graph and edits are refused. cb, if
// set, receives the run's callbacks as well.
func (e *Editor) Run(ctx context.Context, input string, cb *domain.Callbacks) (*domain.FlowRunState, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, domain.ErrRunInProgress
	}
	if e.run == nil {
		e.mu.Unlock()
		return nil, errNoRunner
	}
	e.running = true
	e.resetVisuals()
	snap := e.g.Clone()
	ctrl := runtime.NewController(e.breakpointList()...)
	e.ctrl = ctrl
	e.mu.Unlock()

	e.logger.Debug("session run started", "flow_id", snap.ID)

	mirror := domain.Callbacks{
		OnNodeStatusChange: func(_ context.Context, id string, st domain.NodeStatus) {
			e.mu.Lock()
			defer e.mu.Unlock()
			if n := e.g.Node(id); n != nil {
				n.Status = st
			}
		},
		OnEdgeActive: func(_ context.Context, id string, active bool) {
			e.mu.Lock()
			defer e.mu.Unlock()
			if edge := e.g.Edge(id); edge != nil {
				edge.Active = active
			}
		},
	}
	if cb != nil {
		mirror = mirror.Chain(*cb)
	}

	st, err := e.run(ctx, snap, runtime.RunOptions{Input: input, Controller: ctrl, Callbacks: &mirror})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.ctrl = nil
	for _, edge := range e.g.Edges {
		edge.Active = false
	}
	if st != nil {
		e.lastRun = st
	}
	return st, err
}

// must be called with e.mu held.
func (e *Editor) resetVisuals() {
	for _, n := range e.g.Nodes {
		n.Status = domain.NodeIdle
	}
	for _, edge := range e.g.Edges {
		edge.Active = false
	}
}

// Running reports whether a run started from the session is active.
func (e *Editor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// LastRun returns a copy of the most recent run record, or nil.
func (e *Editor) LastRun() *domain.FlowRunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRun.Clone()
}

// Pause, Resume and Abort steer the active run. They report false when no
// run is active.
func (e *Editor) Pause() bool  { return e.steer((*runtime.Controller).Pause) }
func (e *Editor) Resume() bool { return e.steer((*runtime.Controller).Resume) }
func (e *Editor) Abort() bool  { return e.steer((*runtime.Controller).Abort) }

func (e *Editor) steer(fn func(*runtime.Controller)) bool {
	e.mu.Lock()
	ctrl := e.ctrl
	e.mu.Unlock()
	if ctrl == nil {
		return false
	}
	fn(ctrl)
	return true
}
