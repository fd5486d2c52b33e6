package nodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// ErrInlineCodeDisabled is returned for code nodes unless inline execution is enabled.
var ErrInlineCodeDisabled = errors.New("inline code execution is disabled")

// MCPCaller invokes a tool exposed by a named MCP server.
type MCPCaller interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error)
}

// OutputSink receives what output nodes publish.
type OutputSink func(ctx context.Context, target, content string) error

// Executor runs every non-agent node kind.
type Executor struct {
	tools      *Registry
	processes  map[string]ProcessConfig
	runner     processRunner
	inlineCode bool
	client     *http.Client
	mcp        MCPCaller
	sink       OutputSink
	logger     *slog.Logger
	eval       evaluator
}

var _ ports.NodeExecutor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithRegistry sets the in-process tool registry.
func WithRegistry(r *Registry) Option {
	return func(e *Executor) {
		if r != nil {
			e.tools = r
		}
	}
}

// WithProcesses allow-lists external commands as tools, as loaded by LoadTools.
func WithProcesses(tools map[string]ProcessConfig) Option {
	return func(e *Executor) {
		for name, t := range tools {
			e.processes[name] = t
		}
	}
}

// WithInlineCode enables code nodes. Code runs with the privileges of the process.
func WithInlineCode(allow bool) Option {
	return func(e *Executor) {
		e.inlineCode = allow
	}
}

// WithBaseDir sets the working directory of external commands.
func WithBaseDir(dir string) Option {
	return func(e *Executor) {
		e.runner.baseDir = dir
	}
}

// WithHTTPClient sets the client used by http nodes.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		if c != nil {
			e.client = c
		}
	}
}

// WithMCP sets the caller used by mcp-tool nodes.
func WithMCP(c MCPCaller) Option {
	return func(e *Executor) {
		e.mcp = c
	}
}

// WithOutputSink sets where output nodes publish.
func WithOutputSink(sink OutputSink) Option {
	return func(e *Executor) {
		e.sink = sink
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

// New creates a node executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		tools:     NewRegistry(),
		processes: make(map[string]ProcessConfig),
		client:    http.DefaultClient,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the in-process tool registry.
func (e *Executor) Registry() *Registry {
	return e.tools
}

// Execute runs one node.
func (e *Executor) Execute(ctx context.Context, req ports.NodeRequest) (ports.NodeResult, error) {
	n := req.Node
	if n == nil {
		return ports.NodeResult{}, errors.New("node request without node")
	}
	vars := env(req.Input, req.RunID, n.ID)
	c := n.Config

	switch n.Kind {
	case domain.KindTrigger:
		if req.Input == "" && c.Trigger != nil {
			return ports.NodeResult{Output: c.Trigger.Payload}, nil
		}
		return ports.NodeResult{Output: req.Input}, nil

	case domain.KindCondition:
		return e.condition(c.Condition, req.Input, vars)

	case domain.KindData:
		if c.Data == nil || strings.TrimSpace(c.Data.Transform) == "" {
			return ports.NodeResult{Output: req.Input}, nil
		}
		return e.transform(c.Data.Transform, vars)

	case domain.KindLoop:
		return e.loop(c.Loop, req.Input, vars)

	case domain.KindTool:
		return e.tool(ctx, c.Tool, req.Input)

	case domain.KindCode:
		return e.code(ctx, c.Code, req.Input)

	case domain.KindHTTP:
		return e.http(ctx, c.HTTP, vars)

	case domain.KindMCPTool:
		return e.mcpTool(ctx, c.MCPTool, req.Input)

	case domain.KindError:
		out := req.Input
		if c.Error != nil && c.Error.Message != "" {
			out = c.Error.Message + ": " + req.Input
		}
		e.logger.Warn("error handler reached", "run_id", req.RunID, "node_id", n.ID, "err", req.Input)
		return ports.NodeResult{Output: out}, nil

	case domain.KindOutput:
		return e.output(ctx, c.Output, req.Input)

	case domain.KindAgent:
		return ports.NodeResult{}, fmt.Errorf("agent node %s needs an agent stepper", n.ID)

	default:
		return ports.NodeResult{}, fmt.Errorf("unsupported node kind %q", n.Kind)
	}
}

func (e *Executor) condition(c *domain.ConditionConfig, input string, vars map[string]any) (ports.NodeResult, error) {
	ok := false
	if c != nil && strings.TrimSpace(c.Expression) != "" {
		var err error
		ok, err = e.eval.EvalBool(c.Expression, vars)
		if err != nil {
			return ports.NodeResult{}, err
		}
	}
	port := domain.PortFalse
	if ok {
		port = domain.PortTrue
	}
	return ports.NodeResult{Output: input, Port: port}, nil
}

func (e *Executor) transform(source string, vars map[string]any) (ports.NodeResult, error) {
	if strings.Contains(source, "{{") {
		out, err := e.eval.Interpolate(source, vars)
		return ports.NodeResult{Output: out}, err
	}
	v, err := e.eval.Eval(source, vars)
	if err != nil {
		return ports.NodeResult{}, err
	}
	return ports.NodeResult{Output: stringify(v)}, nil
}

// loop evaluates the item list and emits it as a JSON array, capped at
// MaxIterations items. Without an items expression, non-empty input lines
// are the items.
func (e *Executor) loop(c *domain.LoopConfig, input string, vars map[string]any) (ports.NodeResult, error) {
	var items []any
	if c != nil && strings.TrimSpace(c.Items) != "" {
		v, err := e.eval.Eval(c.Items, vars)
		if err != nil {
			return ports.NodeResult{}, err
		}
		list, ok := v.([]any)
		if !ok {
			return ports.NodeResult{}, fmt.Errorf("loop items %q evaluated to %T, want a list", c.Items, v)
		}
		items = list
	} else {
		for _, line := range strings.Split(input, "\n") {
			if strings.TrimSpace(line) != "" {
				items = append(items, line)
			}
		}
	}
	if c != nil && c.MaxIterations > 0 && len(items) > c.MaxIterations {
		items = items[:c.MaxIterations]
	}
	if items == nil {
		items = []any{}
	}
	return ports.NodeResult{Output: stringify(items)}, nil
}

func (e *Executor) tool(ctx context.Context, c *domain.ToolConfig, input string) (ports.NodeResult, error) {
	if c == nil || c.Name == "" {
		return ports.NodeResult{}, errors.New("tool node without a tool name")
	}
	args := make(map[string]any, len(c.Args)+1)
	for k, v := range c.Args {
		args[k] = v
	}
	args["input"] = input

	if fn, ok := e.tools.Lookup(c.Name); ok {
		v, err := fn(ctx, args)
		if err != nil {
			return ports.NodeResult{}, fmt.Errorf("tool %s: %w", c.Name, err)
		}
		return ports.NodeResult{Output: stringify(v)}, nil
	}
	if p, ok := e.processes[c.Name]; ok {
		delete(args, "input")
		out, err := e.runner.run(ctx, p.Command, p.Args, p.Environment, input, args)
		return ports.NodeResult{Output: out}, err
	}
	return ports.NodeResult{}, fmt.Errorf("tool not registered: %s", c.Name)
}

func (e *Executor) code(ctx context.Context, c *domain.CodeConfig, input string) (ports.NodeResult, error) {
	if !e.inlineCode {
		return ports.NodeResult{}, ErrInlineCodeDisabled
	}
	if c == nil || strings.TrimSpace(c.Body) == "" {
		return ports.NodeResult{Output: input}, nil
	}
	interp, ok := Interpreter(c.Language)
	if !ok {
		return ports.NodeResult{}, fmt.Errorf("unsupported code language %q", c.Language)
	}
	args := append(append([]string{}, interp[1:]...), c.Body)
	out, err := e.runner.run(ctx, interp[0], args, nil, input, nil)
	return ports.NodeResult{Output: out}, err
}

func (e *Executor) mcpTool(ctx context.Context, c *domain.MCPToolConfig, input string) (ports.NodeResult, error) {
	if e.mcp == nil {
		return ports.NodeResult{}, errors.New("no MCP servers configured")
	}
	if c == nil || c.Tool == "" {
		return ports.NodeResult{}, errors.New("mcp-tool node without a tool name")
	}
	args := make(map[string]any, len(c.Args)+1)
	for k, v := range c.Args {
		args[k] = v
	}
	if _, set := args["input"]; !set && input != "" {
		args["input"] = input
	}
	out, err := e.mcp.CallTool(ctx, c.Server, c.Tool, args)
	return ports.NodeResult{Output: out}, err
}

func (e *Executor) output(ctx context.Context, c *domain.OutputConfig, input string) (ports.NodeResult, error) {
	out := input
	var target string
	if c != nil {
		target = c.Target
		if strings.EqualFold(c.Format, "json") {
			out = stringify(map[string]any{"output": input})
		}
	}
	if e.sink != nil {
		if err := e.sink(ctx, target, out); err != nil {
			return ports.NodeResult{}, fmt.Errorf("publish to %q: %w", target, err)
		}
	}
	return ports.NodeResult{Output: out}, nil
}
