package ports

import (
	"context"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
)

// NodeExecConfig is the resolved per-call configuration handed to collaborators.
type NodeExecConfig struct {
	Model        string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
	Timeout      time.Duration
}

// ExecConfigFor resolves the execution config of a node. Invalid timeouts
// resolve to zero; graph validation reports them separately.
func ExecConfigFor(n *domain.FlowNode) NodeExecConfig {
	var cfg NodeExecConfig
	if n == nil {
		return cfg
	}
	cfg.Timeout, _ = n.Config.TimeoutDuration()
	if a := n.Config.Agent; a != nil {
		cfg.Model = a.Model
		cfg.SystemPrompt = a.SystemPrompt
		cfg.Temperature = a.Temperature
		cfg.MaxTokens = a.MaxTokens
	}
	return cfg
}

// AgentRequest is one call to the LLM/agent backend.
type AgentRequest struct {
	RunID string
	Graph *domain.FlowGraph
	// Node is the agent node, or the first node of a collapsed chain.
	Node *domain.FlowNode
	// Input is the fully resolved prompt.
	Input   string
	Config  NodeExecConfig
	AgentID string
}

// AgentStepper invokes the agent backend and returns its text output.
type AgentStepper interface {
	Step(ctx context.Context, req AgentRequest) (string, error)
}

// AgentStepperFunc adapts a function to AgentStepper.
type AgentStepperFunc func(ctx context.Context, req AgentRequest) (string, error)

// Step implements AgentStepper.
func (f AgentStepperFunc) Step(ctx context.Context, req AgentRequest) (string, error) {
	return f(ctx, req)
}

// NodeRequest is one execution of a non-agent node.
type NodeRequest struct {
	RunID string
	Graph *domain.FlowGraph
	Node  *domain.FlowNode
	// Input is the newline-joined upstream output.
	Input  string
	Config NodeExecConfig
}

// NodeResult is what a node produced.
type NodeResult struct {
	Output string
	// Port, when set, restricts the output to edges leaving that port
	// (a condition's "true" or "false" branch, a loop's "done").
	Port string
}

// NodeExecutor runs a single non-agent node.
type NodeExecutor interface {
	Execute(ctx context.Context, req NodeRequest) (NodeResult, error)
}

// NodeExecutorFunc adapts a function to NodeExecutor.
type NodeExecutorFunc func(ctx context.Context, req NodeRequest) (NodeResult, error)

// Execute implements NodeExecutor.
func (f NodeExecutorFunc) Execute(ctx context.Context, req NodeRequest) (NodeResult, error) {
	return f(ctx, req)
}

// PassThrough is the NodeExecutor used when none is configured: every node
// forwards its input unchanged.
var PassThrough NodeExecutor = NodeExecutorFunc(func(_ context.Context, req NodeRequest) (NodeResult, error) {
	return NodeResult{Output: req.Input}, nil
})
