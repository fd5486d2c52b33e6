package conductor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/conductor/internal/compiler"
	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/internal/runtime"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/history"
	"github.com/aretw0/conductor/pkg/nodes"
	"github.com/aretw0/conductor/pkg/observability"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/session"
)

// RunOptions tunes a single run.
type RunOptions = runtime.RunOptions

// Controller pauses, resumes and aborts a run from any goroutine.
type Controller = runtime.Controller

// Debugger executes a strategy one unit at a time.
type Debugger = runtime.Debugger

// NewController creates a run controller with the given breakpoints.
func NewController(breakpoints ...string) *Controller {
	return runtime.NewController(breakpoints...)
}

// Engine is the high-level entry point of the library. It compiles flow
// graphs into execution strategies and runs them against an agent backend
// and a node executor.
type Engine struct {
	compiler *compiler.Compiler
	executor *runtime.Executor

	agent     ports.AgentStepper
	nodes     ports.NodeExecutor
	runs      ports.RunStore
	metrics   *observability.Metrics
	callbacks domain.Callbacks

	threshold     float64
	maxIterations int
	maxParallel   int
	collapse      bool
	undoLimit     int
	logger        *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCallbacks registers callbacks invoked for every run.
func WithCallbacks(cb domain.Callbacks) Option {
	return func(e *Engine) {
		e.callbacks = e.callbacks.Chain(cb)
	}
}

// WithAgentStepper sets the LLM/agent backend.
func WithAgentStepper(s ports.AgentStepper) Option {
	return func(e *Engine) {
		e.agent = s
	}
}

// WithNodeExecutor replaces the default executor of non-agent nodes.
func WithNodeExecutor(x ports.NodeExecutor) Option {
	return func(e *Engine) {
		if x != nil {
			e.nodes = x
		}
	}
}

// WithConvergenceThreshold sets the similarity at which mesh groups stop.
func WithConvergenceThreshold(t float64) Option {
	return func(e *Engine) {
		e.threshold = t
	}
}

// WithDefaultMaxIterations bounds mesh rounds when no member configures one.
func WithDefaultMaxIterations(n int) Option {
	return func(e *Engine) {
		e.maxIterations = n
	}
}

// WithMaxParallel bounds the units running at once within a phase.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		e.maxParallel = n
	}
}

// WithCollapse toggles merging of agent chains into a single call.
func WithCollapse(enabled bool) Option {
	return func(e *Engine) {
		e.collapse = enabled
	}
}

// WithRunStore persists the final state of every run.
func WithRunStore(s ports.RunStore) Option {
	return func(e *Engine) {
		e.runs = s
	}
}

// WithMetrics feeds run events into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithUndoLimit bounds the undo history of sessions created by the engine.
func WithUndoLimit(n int) Option {
	return func(e *Engine) {
		e.undoLimit = n
	}
}

// New creates an Engine. Without WithNodeExecutor, non-agent nodes run on
// the default nodes.Executor with inline code disabled.
func New(opts ...Option) *Engine {
	e := &Engine{
		threshold:     domain.ConvergenceThreshold,
		maxIterations: domain.DefaultMaxIterations,
		collapse:      true,
		undoLimit:     history.DefaultLimit,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.nodes == nil {
		e.nodes = nodes.New(nodes.WithLogger(e.logger))
	}

	cb := e.callbacks
	if e.metrics != nil {
		cb = cb.Chain(e.metrics.Callbacks())
	}

	e.compiler = compiler.New(
		compiler.WithDefaultMaxIterations(e.maxIterations),
		compiler.WithCollapse(e.collapse),
		compiler.WithLogger(e.logger),
	)
	execOpts := []runtime.Option{
		runtime.WithCallbacks(cb),
		runtime.WithLogger(e.logger),
		runtime.WithConvergenceThreshold(e.threshold),
	}
	if e.maxParallel > 0 {
		execOpts = append(execOpts, runtime.WithMaxParallel(e.maxParallel))
	}
	e.executor = runtime.New(e.agent, e.nodes, execOpts...)
	return e
}

// Compile turns g into an execution strategy.
func (e *Engine) Compile(g *domain.FlowGraph) (*domain.ExecutionStrategy, error) {
	return e.compiler.Compile(g)
}

// Run compiles and executes g. Node failures and aborts are reported in the
// returned state; the error is reserved for graphs that do not compile.
func (e *Engine) Run(ctx context.Context, g *domain.FlowGraph, opts RunOptions) (*domain.FlowRunState, error) {
	s, err := e.Compile(g)
	if err != nil {
		return nil, err
	}
	state, err := e.executor.Run(ctx, g, s, opts)
	if err != nil {
		return nil, err
	}
	e.persist(ctx, state)
	return state, nil
}

func (e *Engine) persist(ctx context.Context, state *domain.FlowRunState) {
	if e.runs == nil || state == nil {
		return
	}
	// The run context may already be cancelled by an abort.
	if err := e.runs.Save(context.WithoutCancel(ctx), state); err != nil {
		e.logger.Warn("failed to save run state", "run_id", state.RunID, "flow_id", state.FlowID, "err", err)
	}
}

// Runs returns the configured run store, or nil.
func (e *Engine) Runs() ports.RunStore {
	return e.runs
}

// NewDebugger compiles g and returns a step debugger over it.
func (e *Engine) NewDebugger(g *domain.FlowGraph, opts RunOptions) (*Debugger, error) {
	s, err := e.Compile(g)
	if err != nil {
		return nil, fmt.Errorf("debugger: %w", err)
	}
	return e.executor.NewDebugger(g, s, opts), nil
}

// NewSession opens an editor session over g whose runs execute on this engine.
func (e *Engine) NewSession(g *domain.FlowGraph, opts ...session.EditorOption) *session.Editor {
	base := []session.EditorOption{
		session.WithUndoLimit(e.undoLimit),
		session.WithRunner(e.Run),
		session.WithEditorLogger(e.logger),
	}
	return session.NewEditor(g, append(base, opts...)...)
}
