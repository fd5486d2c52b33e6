package session_test

import (
	"context"
	"testing"

	"github.com/aretw0/conductor/internal/compiler"
	"github.com/aretw0/conductor/internal/runtime"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/session"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeline(t *testing.T, ed *session.Editor) []string {
	t.Helper()
	var ids []string
	for i, kind := range []domain.NodeKind{domain.KindTrigger, domain.KindData, domain.KindOutput} {
		n, err := ed.AddNode(kind, "", float64(i)*240, 100)
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	for i := 1; i < len(ids); i++ {
		_, err := ed.Connect(ids[i-1], ids[i], domain.EdgeForward, graph.EdgeOptions{})
		require.NoError(t, err)
	}
	return ids
}

func executorRunner() session.RunFunc {
	exec := runtime.New(nil, nil)
	return func(ctx context.Context, g *domain.FlowGraph, opts runtime.RunOptions) (*domain.FlowRunState, error) {
		s, err := compiler.Compile(g)
		if err != nil {
			return nil, err
		}
		return exec.Run(ctx, g, s, opts)
	}
}

func TestEditor_DeleteUndoRedo(t *testing.T) {
	ed := session.NewEditor(nil)
	ids := pipeline(t, ed)
	g0 := ed.Graph()

	ed.Select(ids[1])
	removed, err := ed.DeleteSelection()
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, removed)
	g1 := ed.Graph()
	assert.Len(t, g1.Edges, 0)
	assert.Empty(t, ed.Selection())

	require.NoError(t, ed.Undo())
	assert.Empty(t, cmp.Diff(g0, ed.Graph()))

	require.NoError(t, ed.Redo())
	assert.Empty(t, cmp.Diff(g1, ed.Graph()))
}

func TestEditor_FailedEditLeavesHistoryAlone(t *testing.T) {
	ed := session.NewEditor(nil)
	ids := pipeline(t, ed)
	before := ed.Graph()

	_, err := ed.Connect(ids[0], ids[1], domain.EdgeForward, graph.EdgeOptions{})
	assert.ErrorIs(t, err, domain.ErrDuplicateEdge)
	assert.ErrorIs(t, ed.MoveNode("ghost", 0, 0), domain.ErrNodeNotFound)

	require.NoError(t, ed.Undo())
	assert.Len(t, ed.Graph().Edges, len(before.Edges)-1, "undo reverts the last successful connect")
}

func TestEditor_SelectIgnoresRepeats(t *testing.T) {
	ed := session.NewEditor(nil)
	ids := pipeline(t, ed)
	before := ed.Graph()

	ed.Select(ids[0], ids[0], ids[1])
	assert.Equal(t, ids[:2], ed.Selection())

	removed, err := ed.DeleteSelection()
	require.NoError(t, err)
	assert.Equal(t, ids[:2], removed)
	assert.Len(t, ed.Graph().Nodes, 1)

	require.NoError(t, ed.Undo())
	assert.Empty(t, cmp.Diff(before, ed.Graph()), "one undo restores the whole deletion")
}

func TestEditor_FailedPasteRollsBack(t *testing.T) {
	ed := session.NewEditor(nil)
	doc := []byte(`{
		"id": "dup",
		"nodes": [{"id": "a", "kind": "data"}, {"id": "b", "kind": "data"}],
		"edges": [
			{"id": "e1", "from": "a", "from_port": "out", "to": "b", "to_port": "in"},
			{"id": "e2", "from": "a", "from_port": "out", "to": "b", "to_port": "in"}
		]
	}`)
	require.NoError(t, ed.Import(doc))
	ed.Select("a", "b")
	require.Equal(t, 2, ed.Copy())
	before := ed.Graph()

	_, err := ed.Paste()
	require.ErrorIs(t, err, domain.ErrDuplicateEdge)

	assert.Empty(t, cmp.Diff(before, ed.Graph()), "a failed paste leaves no pasted nodes behind")
	assert.Equal(t, []string{"a", "b"}, ed.Selection())
	assert.ErrorIs(t, ed.Undo(), domain.ErrNothingToUndo)
}

func TestEditor_MoveSnapsToGrid(t *testing.T) {
	ed := session.NewEditor(nil)
	ids := pipeline(t, ed)

	require.NoError(t, ed.MoveNode(ids[0], 31, 49))
	n := ed.Graph().Node(ids[0])
	assert.Equal(t, float64(40), n.X)
	assert.Equal(t, float64(40), n.Y)
}

func TestEditor_CutPasteThroughCommands(t *testing.T) {
	ed := session.NewEditor(nil)
	ids := pipeline(t, ed)

	_, err := ed.Apply(domain.Command{Kind: domain.CmdSelect, NodeIDs: []string{ids[0], ids[1], "ghost"}})
	require.NoError(t, err)
	assert.Equal(t, ids[:2], ed.Selection())

	res, err := ed.Apply(domain.Command{Kind: domain.CmdCut})
	require.NoError(t, err)
	assert.Equal(t, ids[:2], res.NodeIDs)
	assert.Len(t, ed.Graph().Nodes, 1)

	res, err = ed.Apply(domain.Command{Kind: domain.CmdPaste})
	require.NoError(t, err)
	require.Len(t, res.NodeIDs, 2)
	g := ed.Graph()
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Edges, 1, "the edge into the remaining output node was not copied")
	assert.Equal(t, res.NodeIDs, ed.Selection())

	_, err = ed.Apply(domain.Command{Kind: domain.CmdUndo})
	require.NoError(t, err)
	assert.Len(t, ed.Graph().Nodes, 1)
	assert.Empty(t, ed.Selection(), "undo drops selected nodes that no longer exist")
}

func TestEditor_ApplyCommands(t *testing.T) {
	ed := session.NewEditor(nil)

	a, err := ed.Apply(domain.Command{Kind: domain.CmdAddNode, NodeKind: domain.KindTrigger, X: 0, Y: 0})
	require.NoError(t, err)
	b, err := ed.Apply(domain.Command{Kind: domain.CmdAddNode, NodeKind: domain.KindAgent, Label: "Writer", X: 300, Y: 0})
	require.NoError(t, err)

	c, err := ed.Apply(domain.Command{Kind: domain.CmdConnect, From: a.NodeIDs[0], To: b.NodeIDs[0], Label: "brief"})
	require.NoError(t, err)
	assert.Equal(t, "brief", ed.Graph().Edge(c.EdgeID).Label)

	tb, err := ed.Apply(domain.Command{Kind: domain.CmdToggleBreakpoint, NodeID: b.NodeIDs[0]})
	require.NoError(t, err)
	assert.True(t, tb.Set)
	assert.Equal(t, b.NodeIDs, ed.Breakpoints())

	_, err = ed.Apply(domain.Command{Kind: domain.CmdDeleteEdge, EdgeID: c.EdgeID})
	require.NoError(t, err)
	_, err = ed.Apply(domain.Command{Kind: domain.CmdDeleteEdge, EdgeID: c.EdgeID})
	assert.ErrorIs(t, err, domain.ErrEdgeNotFound)

	_, err = ed.Apply(domain.Command{Kind: domain.CmdLayout})
	require.NoError(t, err)

	_, err = ed.Apply(domain.Command{Kind: domain.CmdAddNode, NodeKind: "teleport"})
	assert.Error(t, err)
	_, err = ed.Apply(domain.Command{Kind: "dance"})
	assert.Error(t, err)
}

func TestEditor_ExportImport(t *testing.T) {
	ed := session.NewEditor(nil)
	pipeline(t, ed)
	data, err := ed.Export()
	require.NoError(t, err)

	other := session.NewEditor(nil)
	require.NoError(t, other.Import(data))
	assert.Empty(t, cmp.Diff(ed.Graph(), other.Graph()))
	assert.ErrorIs(t, other.Undo(), domain.ErrNothingToUndo)
}

func TestEditor_RunMirrorsStatus(t *testing.T) {
	ed := session.NewEditor(nil, session.WithRunner(executorRunner()))
	ids := pipeline(t, ed)

	st, err := ed.Run(context.Background(), "payload", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunDone, st.Status)
	assert.Equal(t, "payload", st.Nodes[ids[2]].Output)
	for _, n := range ed.Graph().Nodes {
		assert.Equal(t, domain.NodeSuccess, n.Status, n.ID)
	}
	for _, e := range ed.Graph().Edges {
		assert.False(t, e.Active)
	}
	assert.Equal(t, st.RunID, ed.LastRun().RunID)
	assert.False(t, ed.Running())
}

func TestEditor_EditsRefusedWhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	runner := func(ctx context.Context, g *domain.FlowGraph, opts runtime.RunOptions) (*domain.FlowRunState, error) {
		close(started)
		<-release
		return domain.NewRunState("r1", g), nil
	}
	ed := session.NewEditor(nil, session.WithRunner(runner))
	ids := pipeline(t, ed)

	done := make(chan error, 1)
	go func() {
		_, err := ed.Run(context.Background(), "", nil)
		done <- err
	}()
	<-started

	assert.True(t, ed.Running())
	_, err := ed.AddNode(domain.KindData, "", 0, 0)
	assert.ErrorIs(t, err, domain.ErrRunInProgress)
	_, err = ed.Run(context.Background(), "", nil)
	assert.ErrorIs(t, err, domain.ErrRunInProgress)
	_, err = ed.ToggleBreakpoint(ids[1])
	assert.NoError(t, err, "breakpoints stay editable during a run")
	assert.True(t, ed.Pause())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, ed.Abort(), "nothing to abort once the run settled")

	_, err = ed.AddNode(domain.KindData, "", 0, 0)
	assert.NoError(t, err)
}

func TestEditor_BreakpointPausesRun(t *testing.T) {
	ed := session.NewEditor(nil, session.WithRunner(executorRunner()))
	ids := pipeline(t, ed)
	_, err := ed.ToggleBreakpoint(ids[1])
	require.NoError(t, err)

	paused := make(chan struct{})
	cb := domain.Callbacks{OnEvent: func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventRunPaused {
			close(paused)
		}
	}}

	done := make(chan *domain.FlowRunState, 1)
	go func() {
		st, _ := ed.Run(context.Background(), "", &cb)
		done <- st
	}()

	<-paused
	assert.Equal(t, domain.NodePaused, ed.Graph().Node(ids[1]).Status)
	assert.True(t, ed.Abort())

	st := <-done
	assert.True(t, st.Aborted)
	assert.Equal(t, domain.NodeIdle, st.Nodes[ids[2]].Status)
	assert.Equal(t, domain.NodeIdle, ed.Graph().Node(ids[1]).Status)
}

func TestEditor_RunWithoutRunner(t *testing.T) {
	ed := session.NewEditor(nil)
	_, err := ed.Run(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestEditor_Configure(t *testing.T) {
	ed := session.NewEditor(nil)
	n, err := ed.AddNode(domain.KindAgent, "", 0, 0)
	require.NoError(t, err)

	_, err = ed.Apply(domain.Command{
		Kind:   domain.CmdConfigure,
		NodeID: n.ID,
		Label:  "Writer",
		Config: map[string]any{"prompt": "Draft it", "max_iterations": "3", "mesh": "crew", "timeout": "45s"},
	})
	require.NoError(t, err)

	got := ed.Graph().Node(n.ID)
	assert.Equal(t, "Writer", got.Label)
	assert.Equal(t, "Draft it", got.Config.Agent.Prompt)
	assert.Equal(t, 3, got.Config.Agent.MaxIterations)
	assert.Equal(t, "crew", got.Config.MeshGroup())
	assert.Equal(t, "45s", got.Config.Timeout)

	err = ed.Configure(n.ID, "", map[string]any{"timeout": "soon"})
	assert.ErrorContains(t, err, "invalid timeout")
	err = ed.Configure(n.ID, "", map[string]any{"max_iterations": "many"})
	assert.Error(t, err)
	err = ed.Configure("ghost", "", nil)
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	assert.Equal(t, "Draft it", ed.Graph().Node(n.ID).Config.Agent.Prompt, "failed edits change nothing")

	require.NoError(t, ed.Undo())
	assert.Empty(t, ed.Graph().Node(n.ID).Config.Agent.Prompt)
}
