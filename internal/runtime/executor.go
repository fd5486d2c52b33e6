package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Executor walks compiled strategies. Phases run in sequence; the units of a
// phase run concurrently and the phase ends when all of them have settled.
// A failing unit never cancels its siblings.
type Executor struct {
	agent     ports.AgentStepper
	nodes     ports.NodeExecutor
	callbacks domain.Callbacks
	logger    *slog.Logger
	threshold float64
	parallel  int
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithCallbacks sets the callbacks every run reports to.
func WithCallbacks(cb domain.Callbacks) Option {
	return func(e *Executor) {
		e.callbacks = cb
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConvergenceThreshold sets the similarity at which mesh rounds stop.
func WithConvergenceThreshold(t float64) Option {
	return func(e *Executor) {
		if t > 0 && t <= 1 {
			e.threshold = t
		}
	}
}

// WithMaxParallel bounds how many units of a phase run at once (0 = unbounded).
func WithMaxParallel(n int) Option {
	return func(e *Executor) {
		e.parallel = n
	}
}

// WithClock overrides time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an executor. agent serves agent nodes and collapsed/mesh units;
// nodes serves everything else and defaults to ports.PassThrough.
func New(agent ports.AgentStepper, nodes ports.NodeExecutor, opts ...Option) *Executor {
	if nodes == nil {
		nodes = ports.PassThrough
	}
	e := &Executor{
		agent:     agent,
		nodes:     nodes,
		logger:    logging.NewNop(),
		threshold: domain.ConvergenceThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOptions tunes a single run.
type RunOptions struct {
	// RunID names the run; a fresh id is generated when empty.
	RunID string
	// Input is handed to nodes without upstream edges (usually the trigger).
	Input string
	// SkipNodes are not executed (already run by a previous debug step).
	SkipNodes map[string]bool
	// Controller pauses, resumes and aborts the run. Optional.
	Controller *Controller
	// State continues an existing run record instead of starting a new one.
	State *domain.FlowRunState
	// Callbacks are chained after the executor's own callbacks.
	Callbacks *domain.Callbacks
}

// Run executes s over g and returns the final run record. Node failures and
// aborts are recorded in the state, not returned; the error is reserved for
// unusable arguments.
func (e *Executor) Run(ctx context.Context, g *domain.FlowGraph, s *domain.ExecutionStrategy, opts RunOptions) (*domain.FlowRunState, error) {
	if g == nil || s == nil {
		return nil, errors.New("run requires a graph and a strategy")
	}
	r := e.newRun(g, opts)
	r.ctrl.rearm()
	r.start(ctx)

	for i, p := range s.Phases {
		if !r.checkpoint(ctx, "") {
			break
		}
		r.state.setStep(i)
		r.logger.Debug("phase started", "phase", i, "units", len(p.Units))
		r.runPhase(ctx, p)
		if r.isAborted() {
			break
		}
	}
	return r.finish(ctx), nil
}

// run is the per-run execution context.
type run struct {
	exec   *Executor
	g      *domain.FlowGraph
	state  *tracker
	ctrl   *Controller
	skip   map[string]bool
	input  string
	logger *slog.Logger

	abortOnce sync.Once
	abortMu   sync.Mutex
	aborted   bool
}

func (e *Executor) newRun(g *domain.FlowGraph, opts RunOptions) *run {
	runID := opts.RunID
	if opts.State != nil && runID == "" {
		runID = opts.State.RunID
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	st := opts.State
	if st == nil {
		st = domain.NewRunState(runID, g)
	}
	st.RunID = runID
	st.FlowID = g.ID

	cb := e.callbacks
	if opts.Callbacks != nil {
		cb = cb.Chain(*opts.Callbacks)
	}
	ctrl := opts.Controller
	if ctrl == nil {
		ctrl = NewController()
	}
	skip := opts.SkipNodes
	if skip == nil {
		skip = map[string]bool{}
	}
	logger := e.logger.With("run_id", runID, "flow_id", g.ID)
	return &run{
		exec:   e,
		g:      g,
		state:  newTracker(st, g, cb, e.now),
		ctrl:   ctrl,
		skip:   skip,
		input:  opts.Input,
		logger: logger,
	}
}

func (r *run) start(ctx context.Context) {
	r.logger.Info("run started", "nodes", len(r.g.Nodes))
	r.state.start(ctx)
}

func (r *run) finish(ctx context.Context) *domain.FlowRunState {
	status := r.state.finish(ctx, r.isAborted())
	r.logger.Info("run finished", "status", status, "failed", len(r.state.snapshot().Failed()))
	return r.state.snapshot()
}

func (r *run) runPhase(ctx context.Context, p domain.Phase) {
	if len(p.Units) == 1 {
		r.runUnit(ctx, p.Units[0])
		return
	}
	var eg errgroup.Group
	if r.exec.parallel > 0 {
		eg.SetLimit(r.exec.parallel)
	}
	for _, u := range p.Units {
		eg.Go(func() error {
			r.runUnit(ctx, u)
			return nil
		})
	}
	_ = eg.Wait()
}

func (r *run) runUnit(ctx context.Context, u domain.ExecutionUnit) {
	if r.skipAll(u.NodeIDs) {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			err := &domain.NodeExecutionError{NodeIDs: u.NodeIDs, Unit: u.Kind, Err: fmt.Errorf("panic: %v", p)}
			r.logger.Error("unit panicked", "unit", u.Kind, "err", err)
			for _, id := range u.NodeIDs {
				if !r.state.terminal(id) && !r.skip[id] && !r.state.isBypassed(id) {
					now := r.exec.now()
					r.state.nodeError(ctx, id, u.Kind, err.Err, now, now, true)
				}
			}
		}
	}()

	switch u.Kind {
	case domain.UnitCollapsedAgent:
		r.runCollapsed(ctx, u)
	case domain.UnitMesh:
		r.runMesh(ctx, u)
	default:
		r.runDirect(ctx, u)
	}
}

func (r *run) skipAll(ids []string) bool {
	if len(r.skip) == 0 {
		return false
	}
	for _, id := range ids {
		if !r.skip[id] {
			return false
		}
	}
	return true
}

// checkpoint is the cooperative poll point: it reports false once the run is
// aborted and blocks while the run is paused. nodeID, when set, is the node
// about to execute and is checked against the breakpoints.
func (r *run) checkpoint(ctx context.Context, nodeID string) bool {
	if r.shouldAbort(ctx) {
		r.markAborted(ctx)
		return false
	}
	if nodeID != "" && r.ctrl.takeBreakpoint(nodeID) {
		r.ctrl.Pause()
	}
	for {
		paused, resumed, abort := r.ctrl.wait()
		if !paused {
			return true
		}
		r.state.pause(ctx, nodeID)
		select {
		case <-resumed:
		case <-abort:
		case <-ctx.Done():
		}
		if r.shouldAbort(ctx) {
			r.markAborted(ctx)
			return false
		}
		r.state.resume(ctx, nodeID)
	}
}

func (r *run) shouldAbort(ctx context.Context) bool {
	return r.isAborted() || r.ctrl.Aborted() || ctx.Err() != nil
}

func (r *run) isAborted() bool {
	r.abortMu.Lock()
	defer r.abortMu.Unlock()
	return r.aborted
}

func (r *run) markAborted(ctx context.Context) {
	r.abortOnce.Do(func() {
		r.abortMu.Lock()
		r.aborted = true
		r.abortMu.Unlock()
		r.logger.Info("run aborted")
		r.state.abort(ctx)
	})
}

// composePrompt prefixes upstream output to a node's own prompt.
func composePrompt(upstream, prompt string) string {
	switch {
	case upstream == "":
		return prompt
	case prompt == "":
		return upstream
	default:
		return "Context:\n" + upstream + "\n\n" + prompt
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
