package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func sampleRun(id string) *domain.FlowRunState {
	return &domain.FlowRunState{
		RunID:     id,
		FlowID:    "billing",
		Status:    domain.RunDone,
		StartedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		Nodes: map[string]*domain.NodeRunState{
			"fetch": {Status: domain.NodeSuccess, Output: "token=sk-live-123"},
		},
		EdgeValues: map[string]string{"e1": "token=sk-live-123"},
		OutputLog:  []domain.OutputLogEntry{{NodeID: "fetch", Output: "token=sk-live-123"}},
	}
}

func encrypted(t *testing.T, cfg middleware.EncryptionConfig) middleware.Middleware {
	t.Helper()
	mw, err := middleware.NewEncryption(cfg)
	require.NoError(t, err)
	return mw
}

func TestEncryptionRoundtrip(t *testing.T) {
	ctx := context.Background()
	raw := memory.NewRunStore()
	store := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(raw)

	require.NoError(t, store.Save(ctx, sampleRun("r1")))

	stored, err := raw.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, stored.Nodes)
	assert.Empty(t, stored.OutputLog)
	assert.Contains(t, stored.EdgeValues, middleware.EnvelopeKey)
	assert.NotContains(t, stored.EdgeValues, "e1")
	assert.Equal(t, domain.RunDone, stored.Status)

	ids, err := store.List(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids)

	loaded, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "token=sk-live-123", loaded.Nodes["fetch"].Output)
	assert.True(t, loaded.StartedAt.Equal(sampleRun("r1").StartedAt))

	require.NoError(t, store.Delete(ctx, "r1"))
	_, err = store.Load(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestEncryptionKeyRotation(t *testing.T) {
	ctx := context.Background()
	raw := memory.NewRunStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	oldStore := encrypted(t, middleware.EncryptionConfig{ActiveKey: oldKey})(raw)
	newStore := encrypted(t, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})(raw)

	require.NoError(t, oldStore.Save(ctx, sampleRun("r1")))
	loaded, err := newStore.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "billing", loaded.FlowID)

	require.NoError(t, newStore.Save(ctx, loaded))
	_, err = oldStore.Load(ctx, "r1")
	assert.ErrorContains(t, err, "all available keys")
}

func TestEncryptionRejectsPlainSnapshots(t *testing.T) {
	ctx := context.Background()
	raw := memory.NewRunStore()
	require.NoError(t, raw.Save(ctx, sampleRun("plain")))

	store := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(raw)
	_, err := store.Load(ctx, "plain")
	assert.ErrorIs(t, err, middleware.ErrNoEnvelope)
}

func TestEncryptionKeys(t *testing.T) {
	_, err := middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorIs(t, err, middleware.ErrKeySize)

	_, err = middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: generateKey(t), FallbackKeys: [][]byte{{1, 2}}})
	assert.ErrorIs(t, err, middleware.ErrKeySize)

	key := generateKey(t)
	decoded, err := middleware.DecodeKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, decoded)

	_, err = middleware.DecodeKey("not base64!")
	assert.Error(t, err)
	_, err = middleware.DecodeKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, middleware.ErrKeySize)
}
