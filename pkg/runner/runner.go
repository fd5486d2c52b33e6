package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
)

// Engine is the part of conductor.Engine the runner drives.
type Engine interface {
	Run(ctx context.Context, g *domain.FlowGraph, opts conductor.RunOptions) (*domain.FlowRunState, error)
	NewDebugger(g *domain.FlowGraph, opts conductor.RunOptions) (*conductor.Debugger, error)
}

// Runner executes one flow with reporting, signal handling and interactive
// breakpoints.
type Runner struct {
	engine      Engine
	reporter    Reporter
	prompter    Prompter
	breakpoints []string
	step        bool
	signals     bool
	runID       string
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithReporter sets where events go. Without one, events are dropped.
func WithReporter(r Reporter) Option {
	return func(rn *Runner) {
		rn.reporter = r
	}
}

// WithPrompter answers breakpoint and step prompts. Without one, paused
// runs resume immediately.
func WithPrompter(p Prompter) Option {
	return func(rn *Runner) {
		rn.prompter = p
	}
}

// WithBreakpoints pauses before the given nodes.
func WithBreakpoints(ids ...string) Option {
	return func(rn *Runner) {
		rn.breakpoints = append(rn.breakpoints, ids...)
	}
}

// WithStepMode runs one unit per prompt.
func WithStepMode(step bool) Option {
	return func(rn *Runner) {
		rn.step = step
	}
}

// WithSignals toggles SIGINT/SIGTERM handling (on by default).
func WithSignals(enabled bool) Option {
	return func(rn *Runner) {
		rn.signals = enabled
	}
}

// WithRunID fixes the run id.
func WithRunID(id string) Option {
	return func(rn *Runner) {
		rn.runID = id
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rn *Runner) {
		if logger != nil {
			rn.logger = logger
		}
	}
}

// New creates a Runner over engine.
func New(engine Engine, opts ...Option) *Runner {
	r := &Runner{
		engine:  engine,
		signals: true,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes g with input and reports the final state. The first
// interrupt aborts the run; the state is still reported.
func (r *Runner) Run(ctx context.Context, g *domain.FlowGraph, input string) (*domain.FlowRunState, error) {
	clean, err := SanitizeInput(input)
	if err != nil {
		return nil, err
	}

	ctrl := conductor.NewController(r.breakpoints...)
	if r.signals {
		sm := NewSignalManager(ctx, func() {
			r.logger.Info("interrupt received, aborting run")
			ctrl.Abort()
		})
		defer sm.Stop()
		ctx = sm.Context()
	}

	cb := domain.Callbacks{OnEvent: func(ctx context.Context, e domain.Event) {
		if r.reporter != nil {
			r.reporter.Event(ctx, e)
		}
		if e.Type == domain.EventRunPaused {
			go r.onPause(ctx, ctrl, e)
		}
	}}
	opts := conductor.RunOptions{RunID: r.runID, Input: clean, Controller: ctrl, Callbacks: &cb}

	var state *domain.FlowRunState
	if r.step {
		state, err = r.stepThrough(ctx, g, ctrl, opts)
	} else {
		state, err = r.engine.Run(ctx, g, opts)
	}
	if err != nil {
		return state, err
	}
	if r.reporter != nil {
		if err := r.reporter.Finish(ctx, state); err != nil {
			return state, err
		}
	}
	return state, nil
}

// onPause asks what to do at a breakpoint. No prompter, or no more input,
// means resume.
func (r *Runner) onPause(ctx context.Context, ctrl *conductor.Controller, e domain.Event) {
	if r.prompter == nil {
		ctrl.Resume()
		return
	}
	answer, err := r.prompter.Prompt(ctx, "paused before "+name(e)+": [c]ontinue, [a]bort > ")
	switch {
	case err != nil && !errors.Is(err, io.EOF):
		return
	case isAbort(answer):
		ctrl.Abort()
	default:
		ctrl.Resume()
	}
}

func (r *Runner) stepThrough(ctx context.Context, g *domain.FlowGraph, ctrl *conductor.Controller, opts conductor.RunOptions) (*domain.FlowRunState, error) {
	dbg, err := r.engine.NewDebugger(g, opts)
	if err != nil {
		return nil, err
	}
	for !dbg.Done() {
		if ctrl.Aborted() {
			return dbg.Continue(ctx)
		}
		answer := ""
		if r.prompter != nil {
			answer, err = r.prompter.Prompt(ctx, "next: "+dbg.Cursor()+" [enter] step, [c]ontinue, [a]bort > ")
			if err != nil && !errors.Is(err, io.EOF) {
				return dbg.State(), err
			}
			if errors.Is(err, io.EOF) {
				answer = "c"
			}
		}
		switch {
		case isAbort(answer):
			ctrl.Abort()
			return dbg.Continue(ctx)
		case strings.HasPrefix(strings.ToLower(answer), "c"):
			return dbg.Continue(ctx)
		}
		if _, err := dbg.Step(ctx); err != nil {
			return dbg.State(), err
		}
	}
	return dbg.State(), nil
}

func isAbort(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "a", "abort", "q", "quit":
		return true
	}
	return false
}
