package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/robfig/cron/v3"
)

// RunFunc starts a flow from one of its triggers.
type RunFunc func(ctx context.Context, flowID, triggerID, payload string)

// Entry is one registered trigger.
type Entry struct {
	FlowID    string    `json:"flow_id"`
	TriggerID string    `json:"trigger_id"`
	Schedule  string    `json:"schedule"`
	Next      time.Time `json:"next"`
}

type registration struct {
	id       cron.EntryID
	trigger  string
	schedule string
}

// Scheduler fires the enabled, scheduled trigger nodes of registered flows.
type Scheduler struct {
	cron   *cron.Cron
	run    RunFunc
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	flows map[string][]registration
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*schedulerConfig)

type schedulerConfig struct {
	logger   *slog.Logger
	location *time.Location
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(c *schedulerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLocation sets the time zone schedules are evaluated in (default: local).
func WithLocation(loc *time.Location) SchedulerOption {
	return func(c *schedulerConfig) {
		if loc != nil {
			c.location = loc
		}
	}
}

// NewScheduler creates a stopped scheduler calling run for every fire.
func NewScheduler(run RunFunc, opts ...SchedulerOption) *Scheduler {
	cfg := schedulerConfig{logger: logging.NewNop(), location: time.Local}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser), cron.WithLocation(cfg.location)),
		run:    run,
		logger: cfg.logger,
		ctx:    ctx,
		cancel: cancel,
		flows:  make(map[string][]registration),
	}
}

// Sync replaces the registrations of g with its enabled scheduled triggers
// and returns how many were registered. Nothing changes when a schedule is
// invalid.
func (s *Scheduler) Sync(g *domain.FlowGraph) (int, error) {
	type pending struct {
		trigger, schedule, payload string
	}
	var want []pending
	for _, n := range g.Nodes {
		if n.Kind != domain.KindTrigger || n.Config.Trigger == nil {
			continue
		}
		tc := n.Config.Trigger
		if !tc.Enabled || tc.Schedule == "" {
			continue
		}
		if err := Validate(tc.Schedule); err != nil {
			return 0, fmt.Errorf("trigger %s: %w", n.ID, err)
		}
		want = append(want, pending{trigger: n.ID, schedule: tc.Schedule, payload: tc.Payload})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(g.ID)

	flowID := g.ID
	for _, p := range want {
		id, err := s.cron.AddFunc(p.schedule, func() {
			s.logger.Info("schedule fired", "flow_id", flowID, "node_id", p.trigger)
			s.run(s.ctx, flowID, p.trigger, p.payload)
		})
		if err != nil {
			s.removeLocked(flowID)
			return 0, fmt.Errorf("trigger %s: %w", p.trigger, err)
		}
		s.flows[flowID] = append(s.flows[flowID], registration{id: id, trigger: p.trigger, schedule: p.schedule})
	}
	if len(want) > 0 {
		s.logger.Debug("schedules synced", "flow_id", flowID, "triggers", len(want))
	}
	return len(want), nil
}

// Remove unregisters every trigger of a flow.
func (s *Scheduler) Remove(flowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(flowID)
}

func (s *Scheduler) removeLocked(flowID string) {
	for _, r := range s.flows[flowID] {
		s.cron.Remove(r.id)
	}
	delete(s.flows, flowID)
}

// Entries lists the registered triggers, sorted by flow then trigger id.
// Next is zero until the scheduler has been started.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for flowID, regs := range s.flows {
		for _, r := range regs {
			out = append(out, Entry{
				FlowID:    flowID,
				TriggerID: r.trigger,
				Schedule:  r.schedule,
				Next:      s.cron.Entry(r.id).Next,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FlowID != out[j].FlowID {
			return out[i].FlowID < out[j].FlowID
		}
		return out[i].TriggerID < out[j].TriggerID
	})
	return out
}

// Start begins firing schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, cancels the context handed to running jobs and
// waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
