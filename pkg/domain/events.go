package domain

import (
	"context"
	"time"
)

// EventType enumerates executor lifecycle events.
type EventType string

const (
	EventRunStart     EventType = "run-start"
	EventStepStart    EventType = "step-start"
	EventStepProgress EventType = "step-progress"
	EventStepComplete EventType = "step-complete"
	EventStepError    EventType = "step-error"
	EventRunPaused    EventType = "run-paused"
	EventRunResumed   EventType = "run-resumed"
	EventRunAborted   EventType = "run-aborted"
	EventRunComplete  EventType = "run-complete"
)

// Event is a single executor notification.
type Event struct {
	Type       EventType  `json:"type"`
	RunID      string     `json:"run_id"`
	NodeID     string     `json:"node_id,omitempty"`
	Label      string     `json:"label,omitempty"`
	Kind       NodeKind   `json:"kind,omitempty"`
	Unit       UnitKind   `json:"unit,omitempty"`
	Status     NodeStatus `json:"status,omitempty"`
	Output     string     `json:"output,omitempty"`
	Preview    string     `json:"preview,omitempty"`
	Error      string     `json:"error,omitempty"`
	Round      int        `json:"round,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Callbacks is the sole channel through which the executor reports progress.
// Any field may be nil. Units in the same phase run concurrently, so
// callbacks must be safe for concurrent use.
type Callbacks struct {
	OnEvent            func(context.Context, Event)
	OnNodeStatusChange func(ctx context.Context, nodeID string, status NodeStatus)
	OnEdgeActive       func(ctx context.Context, edgeID string, active bool)
}

// Chain returns callbacks that invoke c and then each of others.
func (c Callbacks) Chain(others ...Callbacks) Callbacks {
	all := append([]Callbacks{c}, others...)
	return Callbacks{
		OnEvent: func(ctx context.Context, e Event) {
			for _, cb := range all {
				if cb.OnEvent != nil {
					cb.OnEvent(ctx, e)
				}
			}
		},
		OnNodeStatusChange: func(ctx context.Context, id string, s NodeStatus) {
			for _, cb := range all {
				if cb.OnNodeStatusChange != nil {
					cb.OnNodeStatusChange(ctx, id, s)
				}
			}
		},
		OnEdgeActive: func(ctx context.Context, id string, active bool) {
			for _, cb := range all {
				if cb.OnEdgeActive != nil {
					cb.OnEdgeActive(ctx, id, active)
				}
			}
		},
	}
}
