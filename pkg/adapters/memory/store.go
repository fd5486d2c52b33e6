package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// FlowStore implements ports.FlowStore in memory.
// Safe for concurrent use.
type FlowStore struct {
	data map[string]*domain.FlowGraph
	mu   sync.RWMutex
}

// NewFlowStore creates an in-memory flow store seeded with flows.
func NewFlowStore(seed ...*domain.FlowGraph) *FlowStore {
	s := &FlowStore{data: make(map[string]*domain.FlowGraph, len(seed))}
	for _, g := range seed {
		s.data[g.ID] = g.Clone()
	}
	return s
}

// Save stores a deep copy of g, isolating it from later caller edits.
func (s *FlowStore) Save(ctx context.Context, g *domain.FlowGraph) error {
	copied := g.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[g.ID] = copied
	return nil
}

// Load returns a copy so callers can't mutate store state by pointer.
func (s *FlowStore) Load(ctx context.Context, id string) (*domain.FlowGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.data[id]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}
	return g.Clone(), nil
}

// List returns flow summaries, optionally restricted to a folder.
func (s *FlowStore) List(ctx context.Context, folder string) ([]domain.FlowSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.FlowSummary, 0, len(s.data))
	for _, g := range s.data {
		if folder == "" || g.Folder == folder {
			out = append(out, g.Summary())
		}
	}
	domain.SortSummaries(out)
	return out, nil
}

// Delete removes a flow.
func (s *FlowStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return domain.ErrFlowNotFound
	}
	delete(s.data, id)
	return nil
}

// RunStore implements ports.RunStore in memory.
// Safe for concurrent use.
type RunStore struct {
	data map[string]*domain.FlowRunState
	mu   sync.RWMutex
}

// NewRunStore creates an empty in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{data: make(map[string]*domain.FlowRunState)}
}

// Save stores a snapshot of the run.
func (s *RunStore) Save(ctx context.Context, run *domain.FlowRunState) error {
	copied := run.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[run.RunID] = copied
	return nil
}

// Load retrieves a snapshot.
func (s *RunStore) Load(ctx context.Context, runID string) (*domain.FlowRunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.data[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return run.Clone(), nil
}

// List returns the run ids of a flow.
func (s *RunStore) List(ctx context.Context, flowID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id, run := range s.data {
		if flowID == "" || run.FlowID == flowID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a snapshot.
func (s *RunStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}
