package dsl_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triage() *dsl.Builder {
	b := dsl.New("triage").Folder("support")

	b.Add("start").Trigger("0 9 * * 1-5").Payload("bug: crash on save").Go("route")
	b.Add("route").
		Condition(`input startsWith "bug"`).
		Branch(domain.PortTrue, "file").
		Branch(domain.PortFalse, "answer")
	b.Add("file").Data(`"filed: " + input`).Timeout(2 * time.Second).Go("done")
	b.Add("answer").Data(`"answered: " + input`).Go("done")
	b.Add("done").Label("Done").Output("", "text")
	return b
}

func TestBuilderStructure(t *testing.T) {
	g, err := triage().Build()
	require.NoError(t, err)

	assert.Equal(t, "triage", g.ID)
	assert.Equal(t, "support", g.Folder)
	require.Len(t, g.Nodes, 5)
	assert.Equal(t, []string{"start", "route", "file", "answer", "done"}, []string{
		g.Nodes[0].ID, g.Nodes[1].ID, g.Nodes[2].ID, g.Nodes[3].ID, g.Nodes[4].ID,
	})

	start := g.Node("start")
	assert.Equal(t, domain.KindTrigger, start.Kind)
	assert.True(t, start.Config.Trigger.Enabled)
	assert.Equal(t, "2s", g.Node("file").Config.Timeout)
	assert.Equal(t, "Done", g.Node("done").Label)

	require.Len(t, g.Edges, 5)
	ports := map[string]string{}
	for _, e := range g.Edges {
		if e.From == "route" {
			ports[e.To] = e.FromPort
		}
	}
	assert.Equal(t, map[string]string{"file": domain.PortTrue, "answer": domain.PortFalse}, ports)

	assert.Less(t, g.Node("start").X, g.Node("route").X, "layout runs left to right")
}

func TestBuilderRuns(t *testing.T) {
	g := triage().MustBuild()
	state, err := conductor.New().Run(context.Background(), g, conductor.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.RunDone, state.Status)
	assert.Equal(t, "filed: bug: crash on save", state.Nodes["file"].Output)
	assert.Equal(t, domain.NodeIdle, state.Nodes["answer"].Status, "the false branch never runs")
	assert.Equal(t, "filed: bug: crash on save", state.Nodes["done"].Input)
}

func TestBuilderKindChangeResetsConfig(t *testing.T) {
	b := dsl.New("swap")
	b.Add("n").Timeout(time.Second).Agent("draft").Tool("lint", nil)
	g, err := b.Build()
	require.NoError(t, err)

	n := g.Node("n")
	assert.Equal(t, domain.KindTool, n.Kind)
	assert.Nil(t, n.Config.Agent)
	assert.Equal(t, "lint", n.Config.Tool.Name)
	assert.Equal(t, "1s", n.Config.Timeout)
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *dsl.Builder)
		want  string
	}{
		{
			name:  "missing kind",
			build: func(b *dsl.Builder) { b.Add("blank") },
			want:  "node blank: no kind set",
		},
		{
			name:  "unknown target",
			build: func(b *dsl.Builder) { b.Add("a").Data("").Go("ghost") },
			want:  "ghost",
		},
		{
			name: "bad port",
			build: func(b *dsl.Builder) {
				b.Add("a").Data("").Branch(domain.PortTrue, "b")
				b.Add("b").Data("")
			},
			want: `a has no output "true"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := dsl.New("broken")
			tt.build(b)
			_, err := b.Build()
			assert.ErrorContains(t, err, tt.want)
			assert.Panics(t, func() { b.MustBuild() })
		})
	}
}

func ExampleBuilder() {
	b := dsl.New("review")
	b.Add("start").Trigger("").Go("draft")
	b.Add("draft").Agent("Write a summary of {{input}}").Go("critic")
	b.Add("critic").Agent("Criticise the summary").OnError("oops").Go("publish")
	b.Add("oops").Handler("review failed")
	b.Add("publish").Output("", "markdown")

	g := b.MustBuild()
	fmt.Println(len(g.Nodes), "nodes,", len(g.Edges), "edges")
	// Output: 5 nodes, 4 edges
}
