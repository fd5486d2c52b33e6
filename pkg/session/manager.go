package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed flow lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates access to persisted flows so that read-modify-write
// cycles on the same flow never interleave. Unused locks are reference
// counted and garbage collected.
type Manager struct {
	store ports.FlowStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock lifetime.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager over store.
func NewManager(store ports.FlowStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release after unlocking.
func (m *Manager) acquire(flowID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[flowID]
	if !exists {
		entry = &lockEntry{}
		m.locks[flowID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(flowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[flowID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, flowID)
	}
}

// Load retrieves a flow.
func (m *Manager) Load(ctx context.Context, flowID string) (*domain.FlowGraph, error) {
	var g *domain.FlowGraph
	err := m.WithLock(ctx, flowID, func(ctx context.Context) error {
		var err error
		g, err = m.store.Load(ctx, flowID)
		return err
	})
	return g, err
}

// Save persists a flow.
func (m *Manager) Save(ctx context.Context, g *domain.FlowGraph) error {
	if g == nil || g.ID == "" {
		return errors.New("save requires a flow with an id")
	}
	return m.WithLock(ctx, g.ID, func(ctx context.Context) error {
		return m.store.Save(ctx, g)
	})
}

// Delete removes a flow.
func (m *Manager) Delete(ctx context.Context, flowID string) error {
	return m.WithLock(ctx, flowID, func(ctx context.Context) error {
		return m.store.Delete(ctx, flowID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context, folder string) ([]domain.FlowSummary, error) {
	return m.store.List(ctx, folder)
}

// Update loads a flow, applies fn and saves the result, all under the flow lock.
// Nothing is saved when fn fails.
func (m *Manager) Update(ctx context.Context, flowID string, fn func(*domain.FlowGraph) error) (*domain.FlowGraph, error) {
	var g *domain.FlowGraph
	err := m.WithLock(ctx, flowID, func(ctx context.Context) error {
		var err error
		g, err = m.store.Load(ctx, flowID)
		if err != nil {
			return err
		}
		if err := fn(g); err != nil {
			return err
		}
		return m.store.Save(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Store returns the underlying flow store.
func (m *Manager) Store() ports.FlowStore {
	return m.store
}

// WithLock executes fn while holding the lock for the flow.
func (m *Manager) WithLock(ctx context.Context, flowID string, fn func(context.Context) error) error {
	entry := m.acquire(flowID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(flowID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, "flow:"+flowID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"flow_id", flowID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
