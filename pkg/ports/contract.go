package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractFlow(id, name, folder string) *domain.FlowGraph {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	temp := 0.3
	return &domain.FlowGraph{
		ID:     id,
		Name:   name,
		Folder: folder,
		Nodes: []*domain.FlowNode{
			{ID: "start", Kind: domain.KindTrigger, Label: "Start", Inputs: []string{}, Outputs: []string{"out"},
				Width: 160, Height: 60, Status: domain.NodeIdle,
				Config: domain.NodeConfig{Trigger: &domain.TriggerConfig{Schedule: "0 9 * * 1", Enabled: true}}},
			{ID: "ask", Kind: domain.KindAgent, Label: "Ask", X: 240, Inputs: []string{"in"}, Outputs: []string{"ok", "err"},
				Width: 200, Height: 80, Status: domain.NodeIdle,
				Config: domain.NodeConfig{Timeout: "10s", Agent: &domain.AgentConfig{Prompt: "Hello", Temperature: &temp}}},
		},
		Edges: []*domain.FlowEdge{
			{ID: "e1", From: "start", FromPort: "out", To: "ask", ToPort: "in", Kind: domain.EdgeForward},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RunFlowStoreContract verifies that a FlowStore implementation adheres to
// the interface contract.
func RunFlowStoreContract(t *testing.T, store FlowStore) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		g := contractFlow(prefix+"-a", "Alpha", "")
		require.NoError(t, store.Save(ctx, g))

		loaded, err := store.Load(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, g, loaded)

		// The store must not alias the caller's graph.
		loaded.Nodes[0].Label = "mutated"
		again, err := store.Load(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, "Start", again.Nodes[0].Label)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, prefix+"-missing")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("List by Folder", func(t *testing.T) {
		b := contractFlow(prefix+"-b", "Bravo", "team")
		c := contractFlow(prefix+"-c", "Charlie", "team")
		require.NoError(t, store.Save(ctx, c))
		require.NoError(t, store.Save(ctx, b))

		team, err := store.List(ctx, "team")
		require.NoError(t, err)
		require.Len(t, team, 2)
		assert.Equal(t, "Bravo", team[0].Name)
		assert.Equal(t, "Charlie", team[1].Name)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		var ids []string
		for _, s := range all {
			ids = append(ids, s.ID)
		}
		assert.Contains(t, ids, prefix+"-a")
		assert.Contains(t, ids, prefix+"-b")
	})

	t.Run("Delete", func(t *testing.T) {
		g := contractFlow(prefix+"-d", "Delta", "")
		require.NoError(t, store.Save(ctx, g))

		require.NoError(t, store.Delete(ctx, g.ID))

		_, err := store.Load(ctx, g.ID)
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
		assert.ErrorIs(t, store.Delete(ctx, g.ID), domain.ErrFlowNotFound)
	})
}

// RunRunStoreContract verifies that a RunStore implementation adheres to the
// interface contract.
func RunRunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	prefix := "contract-run-" + time.Now().Format("20060102150405")

	newRun := func(id, flowID string) *domain.FlowRunState {
		s := domain.NewRunState(id, &domain.FlowGraph{ID: flowID, Nodes: []*domain.FlowNode{{ID: "a"}, {ID: "b"}}})
		s.Status = domain.RunDone
		s.StartedAt = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		s.Nodes["a"].Status = domain.NodeSuccess
		s.Nodes["a"].Output = "hello"
		s.EdgeValues["e1"] = "hello"
		s.OutputLog = append(s.OutputLog, domain.OutputLogEntry{NodeID: "a", Status: domain.NodeSuccess, Output: "hello"})
		return s
	}

	t.Run("Save and Load", func(t *testing.T) {
		s := newRun(prefix+"-1", "flow-x")
		require.NoError(t, store.Save(ctx, s))

		loaded, err := store.Load(ctx, s.RunID)
		require.NoError(t, err)
		assert.Equal(t, domain.RunDone, loaded.Status)
		assert.Equal(t, "hello", loaded.Nodes["a"].Output)
		assert.Equal(t, domain.NodeIdle, loaded.Nodes["b"].Status)
		assert.Equal(t, "hello", loaded.EdgeValues["e1"])
		assert.Len(t, loaded.OutputLog, 1)
		assert.True(t, s.StartedAt.Equal(loaded.StartedAt))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, prefix+"-missing")
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("List by Flow", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newRun(prefix+"-3", "flow-y")))
		require.NoError(t, store.Save(ctx, newRun(prefix+"-2", "flow-y")))
		require.NoError(t, store.Save(ctx, newRun(prefix+"-4", "flow-z")))

		ids, err := store.List(ctx, "flow-y")
		require.NoError(t, err)
		assert.Equal(t, []string{prefix + "-2", prefix + "-3"}, ids)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Contains(t, all, prefix+"-4")
	})

	t.Run("Delete", func(t *testing.T) {
		s := newRun(prefix+"-5", "flow-x")
		require.NoError(t, store.Save(ctx, s))
		require.NoError(t, store.Delete(ctx, s.RunID))

		_, err := store.Load(ctx, s.RunID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
		assert.NoError(t, store.Delete(ctx, s.RunID))
	})
}
