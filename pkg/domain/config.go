package domain

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// NodeConfig is a tagged union: exactly one kind-specific section is set,
// matching the owning node's Kind. Timeout applies to every kind.
type NodeConfig struct {
	// Timeout bounds a single execution of the node (Go duration string, e.g. "30s").
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`

	Trigger   *TriggerConfig   `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Agent     *AgentConfig     `json:"agent,omitempty" yaml:"agent,omitempty"`
	Tool      *ToolConfig      `json:"tool,omitempty" yaml:"tool,omitempty"`
	Condition *ConditionConfig `json:"condition,omitempty" yaml:"condition,omitempty"`
	Data      *DataConfig      `json:"data,omitempty" yaml:"data,omitempty"`
	Code      *CodeConfig      `json:"code,omitempty" yaml:"code,omitempty"`
	HTTP      *HTTPConfig      `json:"http,omitempty" yaml:"http,omitempty"`
	MCPTool   *MCPToolConfig   `json:"mcp_tool,omitempty" yaml:"mcp_tool,omitempty"`
	Loop      *LoopConfig      `json:"loop,omitempty" yaml:"loop,omitempty"`
	Error     *ErrorConfig     `json:"error,omitempty" yaml:"error,omitempty"`
	Output    *OutputConfig    `json:"output,omitempty" yaml:"output,omitempty"`
}

// TriggerConfig configures manual and scheduled starts.
type TriggerConfig struct {
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty" mapstructure:"schedule"`
	Enabled  bool   `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	Payload  string `json:"payload,omitempty" yaml:"payload,omitempty" mapstructure:"payload"`
}

// AgentConfig configures an LLM step.
type AgentConfig struct {
	Prompt       string   `json:"prompt" yaml:"prompt" mapstructure:"prompt"`
	AgentID      string   `json:"agent_id,omitempty" yaml:"agent_id,omitempty" mapstructure:"agent_id"`
	Model        string   `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`
	SystemPrompt string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty" mapstructure:"system_prompt"`
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens    int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`

	// Mesh names the peer group this agent iterates with. Empty means no mesh.
	Mesh          string `json:"mesh,omitempty" yaml:"mesh,omitempty" mapstructure:"mesh"`
	MaxIterations int    `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" mapstructure:"max_iterations"`

	// NoCollapse keeps the node out of collapsed chains.
	NoCollapse bool `json:"no_collapse,omitempty" yaml:"no_collapse,omitempty" mapstructure:"no_collapse"`
}

type ToolConfig struct {
	Name string         `json:"name" yaml:"name" mapstructure:"name"`
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
}

type ConditionConfig struct {
	Expression string `json:"expression" yaml:"expression" mapstructure:"expression"`
}

type DataConfig struct {
	Transform string `json:"transform" yaml:"transform" mapstructure:"transform"`
}

type CodeConfig struct {
	Language string `json:"language" yaml:"language" mapstructure:"language"`
	Body     string `json:"body" yaml:"body" mapstructure:"body"`
}

type HTTPConfig struct {
	Method  string            `json:"method,omitempty" yaml:"method,omitempty" mapstructure:"method"`
	URL     string            `json:"url" yaml:"url" mapstructure:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" mapstructure:"headers"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty" mapstructure:"body"`
}

type MCPToolConfig struct {
	Server string         `json:"server" yaml:"server" mapstructure:"server"`
	Tool   string         `json:"tool" yaml:"tool" mapstructure:"tool"`
	Args   map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
}

type LoopConfig struct {
	Items         string `json:"items,omitempty" yaml:"items,omitempty" mapstructure:"items"`
	MaxIterations int    `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" mapstructure:"max_iterations"`
}

type ErrorConfig struct {
	Targets []string `json:"targets,omitempty" yaml:"targets,omitempty" mapstructure:"targets"`
	Message string   `json:"message,omitempty" yaml:"message,omitempty" mapstructure:"message"`
}

type OutputConfig struct {
	Target string `json:"target,omitempty" yaml:"target,omitempty" mapstructure:"target"`
	Format string `json:"format,omitempty" yaml:"format,omitempty" mapstructure:"format"`
}

// DefaultConfig returns an empty config with the section for kind allocated.
func DefaultConfig(kind NodeKind) NodeConfig {
	var c NodeConfig
	switch kind {
	case KindTrigger:
		c.Trigger = &TriggerConfig{}
	case KindAgent:
		c.Agent = &AgentConfig{}
	case KindTool:
		c.Tool = &ToolConfig{}
	case KindCondition:
		c.Condition = &ConditionConfig{}
	case KindData:
		c.Data = &DataConfig{}
	case KindCode:
		c.Code = &CodeConfig{}
	case KindHTTP:
		c.HTTP = &HTTPConfig{Method: "GET"}
	case KindMCPTool:
		c.MCPTool = &MCPToolConfig{}
	case KindLoop:
		c.Loop = &LoopConfig{}
	case KindError:
		c.Error = &ErrorConfig{}
	case KindOutput:
		c.Output = &OutputConfig{}
	}
	return c
}

// DecodeConfig builds a typed config for kind from a loosely typed map,
// as produced by properties panels, YAML documents or MCP tool arguments.
func DecodeConfig(kind NodeKind, raw map[string]any) (NodeConfig, error) {
	c := DefaultConfig(kind)
	if len(raw) == 0 {
		return c, nil
	}

	if t, ok := raw["timeout"]; ok {
		c.Timeout = fmt.Sprint(t)
	}

	var target any
	switch kind {
	case KindTrigger:
		target = c.Trigger
	case KindAgent:
		target = c.Agent
	case KindTool:
		target = c.Tool
	case KindCondition:
		target = c.Condition
	case KindData:
		target = c.Data
	case KindCode:
		target = c.Code
	case KindHTTP:
		target = c.HTTP
	case KindMCPTool:
		target = c.MCPTool
	case KindLoop:
		target = c.Loop
	case KindError:
		target = c.Error
	case KindOutput:
		target = c.Output
	default:
		return c, fmt.Errorf("unknown node kind %q", kind)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return c, err
	}
	if err := dec.Decode(raw); err != nil {
		return c, fmt.Errorf("invalid %s config: %w", kind, err)
	}
	return c, nil
}

// TimeoutDuration parses Timeout. An empty timeout means no limit.
func (c NodeConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

// MeshGroup returns the mesh group name for agent configs.
func (c NodeConfig) MeshGroup() string {
	if c.Agent == nil {
		return ""
	}
	return c.Agent.Mesh
}

// Prompt returns the configured agent prompt, if any.
func (c NodeConfig) Prompt() string {
	if c.Agent == nil {
		return ""
	}
	return c.Agent.Prompt
}

// Clone returns a deep copy of the config.
func (c NodeConfig) Clone() NodeConfig {
	out := NodeConfig{Timeout: c.Timeout}
	if c.Trigger != nil {
		v := *c.Trigger
		out.Trigger = &v
	}
	if c.Agent != nil {
		v := *c.Agent
		if c.Agent.Temperature != nil {
			t := *c.Agent.Temperature
			v.Temperature = &t
		}
		out.Agent = &v
	}
	if c.Tool != nil {
		out.Tool = &ToolConfig{Name: c.Tool.Name, Args: cloneMap(c.Tool.Args)}
	}
	if c.Condition != nil {
		v := *c.Condition
		out.Condition = &v
	}
	if c.Data != nil {
		v := *c.Data
		out.Data = &v
	}
	if c.Code != nil {
		v := *c.Code
		out.Code = &v
	}
	if c.HTTP != nil {
		v := *c.HTTP
		if c.HTTP.Headers != nil {
			v.Headers = make(map[string]string, len(c.HTTP.Headers))
			for k, h := range c.HTTP.Headers {
				v.Headers[k] = h
			}
		}
		out.HTTP = &v
	}
	if c.MCPTool != nil {
		out.MCPTool = &MCPToolConfig{Server: c.MCPTool.Server, Tool: c.MCPTool.Tool, Args: cloneMap(c.MCPTool.Args)}
	}
	if c.Loop != nil {
		v := *c.Loop
		out.Loop = &v
	}
	if c.Error != nil {
		out.Error = &ErrorConfig{Targets: cloneStrings(c.Error.Targets), Message: c.Error.Message}
	}
	if c.Output != nil {
		v := *c.Output
		out.Output = &v
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return cloneStrings(t)
	default:
		return v
	}
}
