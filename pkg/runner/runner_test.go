package runner_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeline builds start -> shape -> end.
func pipeline(t *testing.T) *domain.FlowGraph {
	t.Helper()
	g := graph.New("runner")
	prev := ""
	for _, spec := range []struct {
		id   string
		kind domain.NodeKind
	}{{"start", domain.KindTrigger}, {"shape", domain.KindData}, {"end", domain.KindOutput}} {
		n := graph.CreateNode(spec.kind, spec.id, 0, 0)
		n.ID = spec.id
		require.NoError(t, graph.AddNode(g, n))
		if prev != "" {
			_, err := graph.Connect(g, prev, spec.id, domain.EdgeForward, graph.EdgeOptions{})
			require.NoError(t, err)
		}
		prev = spec.id
	}
	return g
}

func prompter(answers string) runner.Prompter {
	return runner.NewLinePrompter(strings.NewReader(answers), io.Discard)
}

func TestRunTextReport(t *testing.T) {
	var out bytes.Buffer
	r := runner.New(conductor.New(),
		runner.WithSignals(false),
		runner.WithRunID("r-text"),
		runner.WithReporter(runner.NewTextReporter(&out)),
	)

	state, err := r.Run(context.Background(), pipeline(t), "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.RunDone, state.Status)

	text := out.String()
	assert.Contains(t, text, "▶ run r-text")
	assert.Contains(t, text, "✓ shape")
	assert.Contains(t, text, "■ run complete")
	assert.Contains(t, text, "## Run r-text: done")
	assert.Contains(t, text, "| end | success |")
}

func TestRunJSONReport(t *testing.T) {
	var out bytes.Buffer
	r := runner.New(conductor.New(), runner.WithSignals(false), runner.WithReporter(runner.NewJSONReporter(&out)))

	_, err := r.Run(context.Background(), pipeline(t), "hello")
	require.NoError(t, err)

	var types []string
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var line struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		types = append(types, line.Type)
	}
	require.NotEmpty(t, types)
	assert.Equal(t, "run-start", types[0])
	assert.Equal(t, "run-complete", types[len(types)-2])
	assert.Equal(t, "run-state", types[len(types)-1])
}

func TestRunBreakpoint(t *testing.T) {
	tests := []struct {
		name    string
		answers string
		status  domain.RunStatus
		aborted bool
	}{
		{"continue", "c\n", domain.RunDone, false},
		{"abort", "a\n", domain.RunError, true},
		{"no input resumes", "", domain.RunDone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := runner.New(conductor.New(),
				runner.WithSignals(false),
				runner.WithBreakpoints("shape"),
				runner.WithPrompter(prompter(tt.answers)),
			)
			state, err := r.Run(context.Background(), pipeline(t), "x")
			require.NoError(t, err)
			assert.Equal(t, tt.status, state.Status)
			assert.Equal(t, tt.aborted, state.Aborted)
		})
	}
}

func TestRunStepMode(t *testing.T) {
	r := runner.New(conductor.New(),
		runner.WithSignals(false),
		runner.WithStepMode(true),
		runner.WithPrompter(prompter("\na\n")),
	)
	state, err := r.Run(context.Background(), pipeline(t), "x")
	require.NoError(t, err)
	assert.True(t, state.Aborted)
	assert.Equal(t, domain.NodeSuccess, state.Nodes["start"].Status)
	assert.Equal(t, domain.NodeIdle, state.Nodes["shape"].Status)

	r = runner.New(conductor.New(),
		runner.WithSignals(false),
		runner.WithStepMode(true),
		runner.WithPrompter(prompter("\n\n\n")),
	)
	state, err = r.Run(context.Background(), pipeline(t), "x")
	require.NoError(t, err)
	assert.Equal(t, domain.RunDone, state.Status)
	assert.Equal(t, "x", state.Nodes["end"].Output)
}

func TestRunRejectsOversizedInput(t *testing.T) {
	t.Setenv(runner.EnvMaxInputSize, "4")
	_, err := runner.New(conductor.New(), runner.WithSignals(false)).Run(context.Background(), pipeline(t), "too long")
	assert.ErrorIs(t, err, runner.ErrInputTooLarge)
}

func TestSummary(t *testing.T) {
	s := domain.NewRunState("r1", pipeline(t))
	s.Status = domain.RunError
	s.Aborted = true
	s.OutputLog = []domain.OutputLogEntry{{NodeID: "start", Label: "Start", Status: domain.NodeSuccess, Output: "a|b\nc", DurationMs: 3}}

	md := runner.Summary(s)
	assert.Contains(t, md, "## Run r1: error")
	assert.Contains(t, md, "Aborted by request.")
	assert.Contains(t, md, `| Start | success | 3ms | a\|b c |`)
	assert.Contains(t, md, "| end | idle | | |")
}
