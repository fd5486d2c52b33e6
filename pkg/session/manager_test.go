package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// slowStore widens the window between Load and Save so that unserialized
// read-modify-write cycles would lose updates.
type slowStore struct {
	ports.FlowStore
}

func (s slowStore) Load(ctx context.Context, id string) (*domain.FlowGraph, error) {
	time.Sleep(2 * time.Millisecond)
	return s.FlowStore.Load(ctx, id)
}

func TestManager_UpdateIsSerialized(t *testing.T) {
	mgr := session.NewManager(slowStore{memory.NewFlowStore()})
	ctx := context.Background()
	g := graph.New("counter")
	require.NoError(t, mgr.Save(ctx, g))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Update(ctx, g.ID, func(g *domain.FlowGraph) error {
				g.Description += "x"
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := mgr.Load(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 20), got.Description)
}

func TestManager_UpdateFailureSavesNothing(t *testing.T) {
	mgr := session.NewManager(memory.NewFlowStore())
	ctx := context.Background()
	g := graph.New("keep")
	require.NoError(t, mgr.Save(ctx, g))

	boom := errors.New("boom")
	_, err := mgr.Update(ctx, g.ID, func(g *domain.FlowGraph) error {
		g.Name = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := mgr.Load(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep", got.Name)

	_, err = mgr.Update(ctx, "missing", func(*domain.FlowGraph) error { return nil })
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestManager_ListAndDelete(t *testing.T) {
	mgr := session.NewManager(memory.NewFlowStore())
	ctx := context.Background()
	for _, name := range []string{"b", "a"} {
		require.NoError(t, mgr.Save(ctx, graph.New(name)))
	}
	list, err := mgr.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)

	require.NoError(t, mgr.Delete(ctx, list[0].ID))
	assert.ErrorIs(t, mgr.Delete(ctx, list[0].ID), domain.ErrFlowNotFound)
	assert.Error(t, mgr.Save(ctx, nil))
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	args := m.Called(ctx, key, ttl)
	if fn, ok := args.Get(0).(ports.UnlockFunc); ok {
		return fn, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &mockLocker{}
	released := false
	unlock := ports.UnlockFunc(func(context.Context) error {
		released = true
		return nil
	})
	locker.On("Lock", mock.Anything, "flow:f1", 5*time.Second).Return(unlock, nil).Once()

	mgr := session.NewManager(memory.NewFlowStore(), session.WithLocker(locker), session.WithLockTTL(5*time.Second))
	err := mgr.WithLock(context.Background(), "f1", func(context.Context) error { return nil })

	require.NoError(t, err)
	assert.True(t, released)
	locker.AssertExpectations(t)
}

func TestManager_DistributedLockFailure(t *testing.T) {
	locker := &mockLocker{}
	locker.On("Lock", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("busy"))

	mgr := session.NewManager(memory.NewFlowStore(), session.WithLocker(locker))
	called := false
	err := mgr.WithLock(context.Background(), "f1", func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorContains(t, err, "busy")
	assert.False(t, called)
}
