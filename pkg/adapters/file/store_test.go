package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/conductor/pkg/adapters/file"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileFlowStore_Contract(t *testing.T) {
	store, err := file.NewFlowStore(t.TempDir())
	require.NoError(t, err)
	ports.RunFlowStoreContract(t, store)
}

func TestFileRunStore_Contract(t *testing.T) {
	store, err := file.NewRunStore(filepath.Join(t.TempDir(), "runs"))
	require.NoError(t, err)
	ports.RunRunStoreContract(t, store)
}

func TestFileFlowStore_SwitchFormat(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	g := &domain.FlowGraph{ID: "f1", Name: "First"}

	jsonStore, err := file.NewFlowStore(dir)
	require.NoError(t, err)
	require.NoError(t, jsonStore.Save(ctx, g))
	assert.FileExists(t, filepath.Join(dir, "f1.json"))

	yamlStore, err := file.NewFlowStore(dir, file.WithFormat(graph.FormatYAML))
	require.NoError(t, err)
	require.NoError(t, yamlStore.Save(ctx, g))
	assert.FileExists(t, filepath.Join(dir, "f1.yaml"))
	assert.NoFileExists(t, filepath.Join(dir, "f1.json"))

	loaded, err := jsonStore.Load(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "First", loaded.Name)
}

func TestFileFlowStore_RejectsEscapingIDs(t *testing.T) {
	store, err := file.NewFlowStore(t.TempDir())
	require.NoError(t, err)

	err = store.Save(context.Background(), &domain.FlowGraph{ID: "../evil"})
	assert.Error(t, err)
}

func TestFileFlowStore_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := file.NewFlowStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# notes"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "runs"), 0o755))

	list, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, list)
}
