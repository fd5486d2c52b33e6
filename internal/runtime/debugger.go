package runtime

import (
	"context"
	"errors"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// ErrDebugFinished is returned by Step once every node has run.
var ErrDebugFinished = errors.New("debug session finished")

// Debugger advances a run one unit at a time. Every step executes the unit
// holding the cursor node; the executed nodes join the skip set so later
// steps (and Continue) never run them twice.
type Debugger struct {
	mu       sync.Mutex
	exec     *Executor
	g        *domain.FlowGraph
	s        *domain.ExecutionStrategy
	opts     RunOptions
	ctrl     *Controller
	state    *domain.FlowRunState
	skip     map[string]bool
	bypassed map[string]bool
	started  bool
	finished bool
}

// NewDebugger prepares a step-debug session over a compiled strategy.
func (e *Executor) NewDebugger(g *domain.FlowGraph, s *domain.ExecutionStrategy, opts RunOptions) *Debugger {
	d := &Debugger{exec: e, g: g, s: s, opts: opts}
	d.reset()
	return d
}

func (d *Debugger) reset() {
	r := d.exec.newRun(d.g, RunOptions{RunID: d.opts.RunID})
	d.state = r.state.s
	d.ctrl = d.opts.Controller
	if d.ctrl == nil {
		d.ctrl = NewController()
	}
	d.ctrl.rearm()
	d.skip = make(map[string]bool)
	d.bypassed = make(map[string]bool)
	for id := range d.opts.SkipNodes {
		d.skip[id] = true
	}
	d.started = false
	d.finished = false
	d.state.Cursor = d.cursorLocked()
}

// Reset discards progress and starts a fresh run record.
func (d *Debugger) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts.RunID = ""
	d.reset()
}

// Cursor returns the id of the next node to run, or "" when done.
func (d *Debugger) Cursor() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursorLocked()
}

func (d *Debugger) cursorLocked() string {
	for _, id := range d.s.Order {
		if !d.skip[id] {
			return id
		}
	}
	return ""
}

// Done reports whether every node has run.
func (d *Debugger) Done() bool {
	return d.Cursor() == ""
}

// State returns a snapshot of the run record.
func (d *Debugger) State() *domain.FlowRunState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Clone()
}

// Controller returns the controller shared by every step.
func (d *Debugger) Controller() *Controller {
	return d.ctrl
}

// Step runs the unit at the cursor. Direct units advance a single node.
func (d *Debugger) Step(ctx context.Context) (*domain.FlowRunState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cursor := d.cursorLocked()
	if cursor == "" || d.finished {
		return d.state.Clone(), ErrDebugFinished
	}
	pi, ui, _ := d.s.Locate(cursor)
	unit := d.s.Phases[pi].Units[ui]
	if unit.Kind.Direct() {
		unit.NodeIDs = []string{cursor}
	}

	d.ctrl.passBreakpoints(unit.NodeIDs...)

	r := d.newRun()
	if !d.started {
		r.start(ctx)
		d.started = true
	} else {
		r.state.setStatus(domain.RunRunning)
	}
	r.state.setStep(pi)
	r.state.setCursor(cursor)

	if r.checkpoint(ctx, "") {
		r.runUnit(ctx, unit)
	}
	for _, id := range unit.NodeIDs {
		d.skip[id] = true
	}

	if r.isAborted() || d.cursorLocked() == "" {
		r.finish(ctx)
		d.finished = true
	} else {
		r.state.setStatus(domain.RunPaused)
		r.state.setCursor(d.cursorLocked())
	}
	return r.state.snapshot(), nil
}

// Continue runs everything left, honoring breakpoints and the controller.
func (d *Debugger) Continue(ctx context.Context) (*domain.FlowRunState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.finished {
		return d.state.Clone(), ErrDebugFinished
	}
	r := d.newRun()
	if !d.started {
		r.start(ctx)
		d.started = true
	} else {
		r.state.setStatus(domain.RunRunning)
	}
	for i, p := range d.s.Phases {
		if !r.checkpoint(ctx, "") {
			break
		}
		r.state.setStep(i)
		r.runPhase(ctx, p)
		if r.isAborted() {
			break
		}
	}
	for _, id := range d.s.Order {
		d.skip[id] = true
	}
	r.finish(ctx)
	d.finished = true
	return r.state.snapshot(), nil
}

// newRun binds a run to the debugger's persistent state and skip set.
func (d *Debugger) newRun() *run {
	opts := d.opts
	opts.State = d.state
	opts.SkipNodes = d.skip
	opts.Controller = d.ctrl
	r := d.exec.newRun(d.g, opts)
	r.state.bypassed = d.bypassed
	return r
}
