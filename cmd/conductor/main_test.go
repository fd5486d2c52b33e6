package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the command tree with args and returns what it printed.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONDUCTOR_TOOLS_FILE", filepath.Join(t.TempDir(), "tools.yaml"))
	t.Setenv("CONDUCTOR_LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	err := root.Execute()
	return out.String(), err
}

func writeFlow(t *testing.T, dir, name string) string {
	t.Helper()
	g := graph.New(name)
	g.ID = name
	start := graph.CreateNode(domain.KindTrigger, "start", 0, 0)
	start.ID = "start"
	shape := graph.CreateNode(domain.KindData, "shape", 0, 0)
	shape.ID = "shape"
	end := graph.CreateNode(domain.KindOutput, "end", 0, 0)
	end.ID = "end"
	for _, n := range []*domain.FlowNode{start, shape, end} {
		require.NoError(t, graph.AddNode(g, n))
	}
	_, err := graph.Connect(g, "start", "shape", domain.EdgeForward, graph.EdgeOptions{})
	require.NoError(t, err)
	_, err = graph.Connect(g, "shape", "end", domain.EdgeForward, graph.EdgeOptions{})
	require.NoError(t, err)

	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, graph.WriteFile(path, g))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "conductor version "))
}

func TestCron(t *testing.T) {
	out, err := execute(t, "", "cron", "describe", "0 9 * * 1-5")
	require.NoError(t, err)
	assert.Equal(t, "weekdays at 09:00\n", out)

	out, err = execute(t, "", "cron", "next", "0 9 * * 1-5", "-n", "2", "--from", "2026-03-06T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-09T09:00:00Z\n2026-03-10T09:00:00Z\n", out)

	_, err = execute(t, "", "cron", "validate", "61 * * * *")
	assert.Error(t, err)

	_, err = execute(t, "", "cron", "next", "* * * * *", "--from", "yesterday")
	assert.ErrorContains(t, err, "--from")

	out, err = execute(t, "", "cron", "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "every-minute")
	assert.Contains(t, out, "*/5 * * * *")
}

func TestValidatePlanGraph(t *testing.T) {
	dir := t.TempDir()
	path := writeFlow(t, dir, "pipeline")

	out, err := execute(t, "", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+path+": 3 nodes, 2 edges")

	_, err = execute(t, "", "validate", path, filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, errInvalid)

	out, err = execute(t, "", "plan", path)
	require.NoError(t, err)
	assert.Contains(t, out, "pipeline: 3 nodes in 3 phases")
	assert.Contains(t, out, "phase 0")

	out, err = execute(t, "", "plan", "--json", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"phases"`)

	out, err = execute(t, "", "graph", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flowchart LR"))
}

func TestRun(t *testing.T) {
	path := writeFlow(t, t.TempDir(), "pipeline")

	out, err := execute(t, "", "run", path, "--input", "hello", "--no-banner", "--run-id", "r-cli")
	require.NoError(t, err)
	assert.Contains(t, out, "run r-cli")
	assert.Contains(t, out, "| end | success |")

	out, err = execute(t, "", "run", path, "--input", "hello", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"type":"run-start"`)

	_, err = execute(t, "", "run", path, "--input", "hello", "--deny", "data")
	assert.ErrorIs(t, err, errRunFailed)

	_, err = execute(t, "", "run", path, "--deny", "bogus")
	assert.ErrorContains(t, err, `unknown node kind "bogus"`)

	_, err = execute(t, "", "run", path, "--input-file", "-", "--confirm", "data")
	assert.ErrorContains(t, err, "--confirm needs an interactive stdin")
}

func TestFlowsLifecycle(t *testing.T) {
	t.Setenv("CONDUCTOR_STORE_BACKEND", "file")
	t.Setenv("CONDUCTOR_STORE_DIR", t.TempDir())
	src := t.TempDir()
	writeFlow(t, src, "alpha")
	writeFlow(t, src, "beta")

	out, err := execute(t, "", "flows", "import", src)
	require.NoError(t, err)
	assert.Equal(t, "imported 2 flows\n", out)

	out, err = execute(t, "", "flows", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")

	out, err = execute(t, "", "flows", "export", "alpha", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "id: alpha")

	out, err = execute(t, "", "run", "beta", "--input", "x", "--no-banner")
	require.NoError(t, err)
	assert.Contains(t, out, "| end | success |")

	out, err = execute(t, "", "flows", "rm", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "deleted alpha\n", out)

	_, err = execute(t, "", "flows", "export", "alpha")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}
