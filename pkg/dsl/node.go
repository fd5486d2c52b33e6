package dsl

import (
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
)

type pendingEdge struct {
	to   string
	kind domain.EdgeKind
	opts graph.EdgeOptions
}

// NodeBuilder provides a fluent API for configuring a node. The kind
// methods (Trigger, Agent, Tool, ...) replace the config of a node whose
// kind changes.
type NodeBuilder struct {
	id          string
	kind        domain.NodeKind
	label       string
	description string
	config      domain.NodeConfig
	edges       []pendingEdge
}

func (n *NodeBuilder) as(kind domain.NodeKind) {
	if n.kind == kind {
		return
	}
	timeout := n.config.Timeout
	n.kind = kind
	n.config = domain.DefaultConfig(kind)
	n.config.Timeout = timeout
}

// Label sets the display label. It defaults to the kind.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	n.label = label
	return n
}

// Describe sets the node description.
func (n *NodeBuilder) Describe(text string) *NodeBuilder {
	n.description = text
	return n
}

// Timeout bounds a single execution of the node.
func (n *NodeBuilder) Timeout(d time.Duration) *NodeBuilder {
	n.config.Timeout = d.String()
	return n
}

// Trigger makes the node a trigger. An empty schedule means manual starts only.
func (n *NodeBuilder) Trigger(schedule string) *NodeBuilder {
	n.as(domain.KindTrigger)
	n.config.Trigger.Schedule = schedule
	n.config.Trigger.Enabled = schedule != ""
	return n
}

// Payload sets the input a trigger hands on when the run has none.
func (n *NodeBuilder) Payload(payload string) *NodeBuilder {
	n.as(domain.KindTrigger)
	n.config.Trigger.Payload = payload
	return n
}

// Agent makes the node an LLM step with the given prompt.
func (n *NodeBuilder) Agent(prompt string) *NodeBuilder {
	n.as(domain.KindAgent)
	n.config.Agent.Prompt = prompt
	return n
}

// Model selects the model of an agent node.
func (n *NodeBuilder) Model(model string) *NodeBuilder {
	n.as(domain.KindAgent)
	n.config.Agent.Model = model
	return n
}

// System sets the system prompt of an agent node.
func (n *NodeBuilder) System(prompt string) *NodeBuilder {
	n.as(domain.KindAgent)
	n.config.Agent.SystemPrompt = prompt
	return n
}

// Mesh puts an agent node in a peer group iterated until convergence.
// Zero maxIterations uses the engine default.
func (n *NodeBuilder) Mesh(group string, maxIterations int) *NodeBuilder {
	n.as(domain.KindAgent)
	n.config.Agent.Mesh = group
	n.config.Agent.MaxIterations = maxIterations
	return n
}

// NoCollapse keeps an agent node out of collapsed chains.
func (n *NodeBuilder) NoCollapse() *NodeBuilder {
	n.as(domain.KindAgent)
	n.config.Agent.NoCollapse = true
	return n
}

// Tool makes the node invoke a registered tool.
func (n *NodeBuilder) Tool(name string, args map[string]any) *NodeBuilder {
	n.as(domain.KindTool)
	n.config.Tool.Name = name
	n.config.Tool.Args = args
	return n
}

// Condition makes the node evaluate expression and take its true or false port.
func (n *NodeBuilder) Condition(expression string) *NodeBuilder {
	n.as(domain.KindCondition)
	n.config.Condition.Expression = expression
	return n
}

// Data makes the node transform its input. An empty transform passes it through.
func (n *NodeBuilder) Data(transform string) *NodeBuilder {
	n.as(domain.KindData)
	n.config.Data.Transform = transform
	return n
}

// Code makes the node run body in the interpreter for language.
func (n *NodeBuilder) Code(language, body string) *NodeBuilder {
	n.as(domain.KindCode)
	n.config.Code.Language = language
	n.config.Code.Body = body
	return n
}

// HTTP makes the node perform a request.
func (n *NodeBuilder) HTTP(method, url string) *NodeBuilder {
	n.as(domain.KindHTTP)
	n.config.HTTP.Method = method
	n.config.HTTP.URL = url
	return n
}

// Header adds a request header to an HTTP node.
func (n *NodeBuilder) Header(key, value string) *NodeBuilder {
	n.as(domain.KindHTTP)
	if n.config.HTTP.Headers == nil {
		n.config.HTTP.Headers = make(map[string]string)
	}
	n.config.HTTP.Headers[key] = value
	return n
}

// MCPTool makes the node call tool on the named MCP server.
func (n *NodeBuilder) MCPTool(server, tool string, args map[string]any) *NodeBuilder {
	n.as(domain.KindMCPTool)
	n.config.MCPTool.Server = server
	n.config.MCPTool.Tool = tool
	n.config.MCPTool.Args = args
	return n
}

// Loop makes the node iterate its body over items.
func (n *NodeBuilder) Loop(items string, maxIterations int) *NodeBuilder {
	n.as(domain.KindLoop)
	n.config.Loop.Items = items
	n.config.Loop.MaxIterations = maxIterations
	return n
}

// Handler makes the node an error handler that prefixes failures with message.
func (n *NodeBuilder) Handler(message string) *NodeBuilder {
	n.as(domain.KindError)
	n.config.Error.Message = message
	return n
}

// Output makes the node a sink writing to target in format.
func (n *NodeBuilder) Output(target, format string) *NodeBuilder {
	n.as(domain.KindOutput)
	n.config.Output.Target = target
	n.config.Output.Format = format
	return n
}

// Go adds a forward edge from the node's first output to target.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	return n.edge(target, domain.EdgeForward, graph.EdgeOptions{})
}

// Branch adds a forward edge leaving a specific output port, such as a
// condition's "true" or a loop's "done".
func (n *NodeBuilder) Branch(port, target string) *NodeBuilder {
	return n.edge(target, domain.EdgeForward, graph.EdgeOptions{FromPort: port, Label: port})
}

// OnError routes the node's failures to target.
func (n *NodeBuilder) OnError(target string) *NodeBuilder {
	return n.edge(target, domain.EdgeError, graph.EdgeOptions{})
}

// Peer links two mesh members in both directions.
func (n *NodeBuilder) Peer(target string) *NodeBuilder {
	return n.edge(target, domain.EdgeBidirectional, graph.EdgeOptions{})
}

// Back closes a loop body by feeding loop's back port.
func (n *NodeBuilder) Back(loop string) *NodeBuilder {
	return n.edge(loop, domain.EdgeForward, graph.EdgeOptions{ToPort: domain.PortBack})
}

func (n *NodeBuilder) edge(target string, kind domain.EdgeKind, opts graph.EdgeOptions) *NodeBuilder {
	n.edges = append(n.edges, pendingEdge{to: target, kind: kind, opts: opts})
	return n
}
