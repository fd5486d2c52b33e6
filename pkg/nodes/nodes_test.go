package nodes_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/nodes"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func request(kind domain.NodeKind, input string, configure func(*domain.NodeConfig)) ports.NodeRequest {
	n := graph.CreateNode(kind, string(kind), 0, 0)
	if configure != nil {
		configure(&n.Config)
	}
	return ports.NodeRequest{RunID: "run-1", Node: n, Input: input}
}

func TestTrigger(t *testing.T) {
	e := nodes.New()

	res, err := e.Execute(context.Background(), request(domain.KindTrigger, "", func(c *domain.NodeConfig) {
		c.Trigger.Payload = "scheduled"
	}))
	require.NoError(t, err)
	assert.Equal(t, "scheduled", res.Output)

	res, err = e.Execute(context.Background(), request(domain.KindTrigger, "manual", func(c *domain.NodeConfig) {
		c.Trigger.Payload = "scheduled"
	}))
	require.NoError(t, err)
	assert.Equal(t, "manual", res.Output)
}

func TestCondition(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		input string
		port  string
	}{
		{"string match", `input contains "urgent"`, "this is urgent", domain.PortTrue},
		{"string miss", `input contains "urgent"`, "relax", domain.PortFalse},
		{"json field", `json.score > 5`, `{"score": 7}`, domain.PortTrue},
		{"empty expression", "", "anything", domain.PortFalse},
	}
	e := nodes.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Execute(context.Background(), request(domain.KindCondition, tt.input, func(c *domain.NodeConfig) {
				c.Condition.Expression = tt.expr
			}))
			require.NoError(t, err)
			assert.Equal(t, tt.port, res.Port)
			assert.Equal(t, tt.input, res.Output)
		})
	}
}

func TestConditionCompileError(t *testing.T) {
	e := nodes.New()
	_, err := e.Execute(context.Background(), request(domain.KindCondition, "x", func(c *domain.NodeConfig) {
		c.Condition.Expression = "input ==="
	}))
	require.Error(t, err)
}

func TestDataTransform(t *testing.T) {
	tests := []struct {
		name      string
		transform string
		input     string
		want      string
	}{
		{"passthrough", "", "same", "same"},
		{"expression", `upper(input)`, "shout", "SHOUT"},
		{"template", `Hello {{ json.name }} ({{ run_id }})`, `{"name": "Ada"}`, "Hello Ada (run-1)"},
		{"structured result", `json.items[0:2]`, `{"items": [1, 2, 3]}`, "[1,2]"},
	}
	e := nodes.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Execute(context.Background(), request(domain.KindData, tt.input, func(c *domain.NodeConfig) {
				c.Data.Transform = tt.transform
			}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Output)
		})
	}
}

func TestLoop(t *testing.T) {
	e := nodes.New()

	res, err := e.Execute(context.Background(), request(domain.KindLoop, `{"ids": ["a", "b", "c"]}`, func(c *domain.NodeConfig) {
		c.Loop.Items = "json.ids"
		c.Loop.MaxIterations = 2
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `["a", "b"]`, res.Output)

	res, err = e.Execute(context.Background(), request(domain.KindLoop, "one\n\ntwo", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `["one", "two"]`, res.Output)

	_, err = e.Execute(context.Background(), request(domain.KindLoop, "x", func(c *domain.NodeConfig) {
		c.Loop.Items = "42"
	}))
	require.Error(t, err)
}

func TestRegistryTool(t *testing.T) {
	reg := nodes.NewRegistry()
	reg.Register("greet", func(_ context.Context, args map[string]any) (any, error) {
		return map[string]any{"greeting": args["prefix"].(string) + args["input"].(string)}, nil
	})
	reg.Register("broken", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	e := nodes.New(nodes.WithRegistry(reg))
	assert.Equal(t, []string{"broken", "greet"}, e.Registry().Names())

	res, err := e.Execute(context.Background(), request(domain.KindTool, "world", func(c *domain.NodeConfig) {
		c.Tool.Name = "greet"
		c.Tool.Args = map[string]any{"prefix": "hello "}
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"greeting": "hello world"}`, res.Output)

	_, err = e.Execute(context.Background(), request(domain.KindTool, "", func(c *domain.NodeConfig) {
		c.Tool.Name = "broken"
	}))
	assert.ErrorContains(t, err, "boom")

	_, err = e.Execute(context.Background(), request(domain.KindTool, "", func(c *domain.NodeConfig) {
		c.Tool.Name = "missing"
	}))
	assert.ErrorContains(t, err, "tool not registered: missing")
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestProcessTool(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  - name: shout
    command: sh
    args: ["-c", "printf '%s%s' \"$CONDUCTOR_ARG_PREFIX\" \"$(cat | tr a-z A-Z)\""]
  - name: unnamed
`), 0o644))

	tools, err := nodes.LoadTools(path)
	require.NoError(t, err)
	require.Len(t, tools, 1)

	e := nodes.New(nodes.WithProcesses(tools), nodes.WithBaseDir(dir))
	res, err := e.Execute(context.Background(), request(domain.KindTool, "quiet", func(c *domain.NodeConfig) {
		c.Tool.Name = "shout"
		c.Tool.Args = map[string]any{"prefix": ">> "}
	}))
	require.NoError(t, err)
	assert.Equal(t, ">> QUIET", res.Output)
}

func TestLoadToolsMissingFile(t *testing.T) {
	tools, err := nodes.LoadTools(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, tools)
}

func TestCode(t *testing.T) {
	requireShell(t)
	code := func(c *domain.NodeConfig) {
		c.Code.Language = "sh"
		c.Code.Body = `echo "got $(cat)"`
	}

	_, err := nodes.New().Execute(context.Background(), request(domain.KindCode, "x", code))
	require.ErrorIs(t, err, nodes.ErrInlineCodeDisabled)

	e := nodes.New(nodes.WithInlineCode(true))
	res, err := e.Execute(context.Background(), request(domain.KindCode, "data", code))
	require.NoError(t, err)
	assert.Equal(t, "got data", res.Output)

	_, err = e.Execute(context.Background(), request(domain.KindCode, "data", func(c *domain.NodeConfig) {
		c.Code.Language = "cobol"
		c.Code.Body = "DISPLAY 'HI'."
	}))
	assert.ErrorContains(t, err, "unsupported code language")

	_, err = e.Execute(context.Background(), request(domain.KindCode, "", func(c *domain.NodeConfig) {
		c.Code.Language = "sh"
		c.Code.Body = "echo bad >&2; exit 3"
	}))
	assert.ErrorContains(t, err, "bad")
}

func TestHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/echo":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(r.Method + " " + r.Header.Get("X-Run") + " " + string(body)))
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	e := nodes.New(nodes.WithHTTPClient(srv.Client()))
	res, err := e.Execute(context.Background(), request(domain.KindHTTP, `{"id": 9}`, func(c *domain.NodeConfig) {
		c.HTTP.Method = "post"
		c.HTTP.URL = srv.URL + "/echo"
		c.HTTP.Headers = map[string]string{"X-Run": "{{ run_id }}"}
		c.HTTP.Body = `id={{ json.id }}`
	}))
	require.NoError(t, err)
	assert.Equal(t, "POST run-1 id=9", res.Output)

	_, err = e.Execute(context.Background(), request(domain.KindHTTP, "", func(c *domain.NodeConfig) {
		c.HTTP.URL = srv.URL + "/missing"
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "nope")
}

type mockCaller struct {
	mock.Mock
}

func (m *mockCaller) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	ret := m.Called(ctx, server, tool, args)
	return ret.String(0), ret.Error(1)
}

func TestMCPTool(t *testing.T) {
	_, err := nodes.New().Execute(context.Background(), request(domain.KindMCPTool, "", func(c *domain.NodeConfig) {
		c.MCPTool.Tool = "search"
	}))
	require.Error(t, err)

	caller := &mockCaller{}
	caller.On("CallTool", mock.Anything, "docs", "search", map[string]any{"q": "go", "input": "context"}).
		Return("3 results", nil)

	e := nodes.New(nodes.WithMCP(caller))
	res, err := e.Execute(context.Background(), request(domain.KindMCPTool, "context", func(c *domain.NodeConfig) {
		c.MCPTool.Server = "docs"
		c.MCPTool.Tool = "search"
		c.MCPTool.Args = map[string]any{"q": "go"}
	}))
	require.NoError(t, err)
	assert.Equal(t, "3 results", res.Output)
	caller.AssertExpectations(t)
}

func TestErrorAndOutput(t *testing.T) {
	var published []string
	e := nodes.New(nodes.WithOutputSink(func(_ context.Context, target, content string) error {
		published = append(published, target+"="+content)
		return nil
	}))

	res, err := e.Execute(context.Background(), request(domain.KindError, "timeout", func(c *domain.NodeConfig) {
		c.Error.Message = "fetch failed"
	}))
	require.NoError(t, err)
	assert.Equal(t, "fetch failed: timeout", res.Output)

	res, err = e.Execute(context.Background(), request(domain.KindOutput, "final", func(c *domain.NodeConfig) {
		c.Output.Target = "slack"
		c.Output.Format = "json"
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"output": "final"}`, res.Output)
	assert.Equal(t, []string{`slack={"output":"final"}`}, published)
}

func TestAgentNeedsStepper(t *testing.T) {
	_, err := nodes.New().Execute(context.Background(), request(domain.KindAgent, "", nil))
	assert.ErrorContains(t, err, "agent stepper")
}
