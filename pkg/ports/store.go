package ports

import (
	"context"

	"github.com/aretw0/conductor/pkg/domain"
)

// FlowStore persists flow graphs.
type FlowStore interface {
	// Save creates or replaces the flow with g.ID.
	Save(ctx context.Context, g *domain.FlowGraph) error

	// Load retrieves a flow. Returns domain.ErrFlowNotFound if it does not exist.
	Load(ctx context.Context, id string) (*domain.FlowGraph, error)

	// List returns summaries sorted by name, then id. An empty folder lists every flow.
	List(ctx context.Context, folder string) ([]domain.FlowSummary, error)

	// Delete removes a flow. Returns domain.ErrFlowNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}

// RunStore persists run snapshots.
type RunStore interface {
	// Save creates or replaces the snapshot with s.RunID.
	Save(ctx context.Context, s *domain.FlowRunState) error

	// Load retrieves a run. Returns domain.ErrRunNotFound if it does not exist.
	Load(ctx context.Context, runID string) (*domain.FlowRunState, error)

	// List returns the run ids recorded for a flow, sorted. An empty flowID lists every run.
	List(ctx context.Context, flowID string) ([]string, error)

	// Delete removes a run. Deleting an unknown run is not an error.
	Delete(ctx context.Context, runID string) error
}
