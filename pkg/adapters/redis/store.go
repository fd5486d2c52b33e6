package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "conductor:"

// noExpiry is the index score of entries stored without a TTL.
const noExpiry = float64(1 << 53)

type options struct {
	prefix string
	ttl    time.Duration
}

// Option configures the Redis stores.
type Option func(*options)

// WithPrefix sets the key prefix (default "conductor:").
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithTTL expires run snapshots after ttl. Flows never expire.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

func apply(opts []Option) options {
	o := options{prefix: defaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewClient connects to a Redis server.
func NewClient(addr, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{Addr: addr, Password: password, DB: db})
}

// FlowStore implements ports.FlowStore on Redis. Each flow is one JSON value;
// a set indexes the known ids.
type FlowStore struct {
	client *backend.Client
	opts   options
}

// NewFlowStore creates a flow store on an existing client.
func NewFlowStore(client *backend.Client, opts ...Option) *FlowStore {
	return &FlowStore{client: client, opts: apply(opts)}
}

func (s *FlowStore) key(id string) string { return s.opts.prefix + "flow:" + id }
func (s *FlowStore) index() string        { return s.opts.prefix + "flows" }

// Save writes the flow and indexes it.
func (s *FlowStore) Save(ctx context.Context, g *domain.FlowGraph) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode flow %s: %w", g.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(p backend.Pipeliner) error {
		p.Set(ctx, s.key(g.ID), data, 0)
		p.SAdd(ctx, s.index(), g.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save flow %s: %w", g.ID, err)
	}
	return nil
}

// Load reads a flow.
func (s *FlowStore) Load(ctx context.Context, id string) (*domain.FlowGraph, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load flow %s: %w", id, err)
	}
	var g domain.FlowGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode flow %s: %w", id, err)
	}
	return &g, nil
}

// List reads every indexed flow and filters by folder.
func (s *FlowStore) List(ctx context.Context, folder string) ([]domain.FlowSummary, error) {
	ids, err := s.client.SMembers(ctx, s.index()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list flows: %w", err)
	}
	out := make([]domain.FlowSummary, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list flows: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Indexed but gone: drop the stale index entry.
			s.client.SRem(ctx, s.index(), ids[i])
			continue
		}
		var g domain.FlowGraph
		if err := json.Unmarshal([]byte(raw), &g); err != nil {
			return nil, fmt.Errorf("decode flow %s: %w", ids[i], err)
		}
		if folder == "" || g.Folder == folder {
			out = append(out, g.Summary())
		}
	}
	domain.SortSummaries(out)
	return out, nil
}

// Delete removes a flow and its index entry.
func (s *FlowStore) Delete(ctx context.Context, id string) error {
	var del *backend.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p backend.Pipeliner) error {
		del = p.Del(ctx, s.key(id))
		p.SRem(ctx, s.index(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete flow %s: %w", id, err)
	}
	if del.Val() == 0 {
		return domain.ErrFlowNotFound
	}
	return nil
}

// RunStore implements ports.RunStore on Redis. Snapshots honour the TTL and
// are indexed in sorted sets scored by expiry, which List prunes lazily.
type RunStore struct {
	client *backend.Client
	opts   options
}

// NewRunStore creates a run store on an existing client.
func NewRunStore(client *backend.Client, opts ...Option) *RunStore {
	return &RunStore{client: client, opts: apply(opts)}
}

func (s *RunStore) key(id string) string { return s.opts.prefix + "run:" + id }

func (s *RunStore) index(flowID string) string {
	if flowID == "" {
		return s.opts.prefix + "runs"
	}
	return s.opts.prefix + "runs:" + flowID
}

// Save writes the snapshot and indexes it globally and per flow.
func (s *RunStore) Save(ctx context.Context, run *domain.FlowRunState) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.RunID, err)
	}
	score := noExpiry
	if s.opts.ttl > 0 {
		score = float64(time.Now().Add(s.opts.ttl).Unix())
	}
	member := backend.Z{Score: score, Member: run.RunID}

	_, err = s.client.TxPipelined(ctx, func(p backend.Pipeliner) error {
		p.Set(ctx, s.key(run.RunID), data, s.opts.ttl)
		p.ZAdd(ctx, s.index(""), member)
		if run.FlowID != "" {
			p.ZAdd(ctx, s.index(run.FlowID), member)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save run %s: %w", run.RunID, err)
	}
	return nil
}

// Load reads a snapshot.
func (s *RunStore) Load(ctx context.Context, runID string) (*domain.FlowRunState, error) {
	data, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load run %s: %w", runID, err)
	}
	var run domain.FlowRunState
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &run, nil
}

// List returns live run ids, pruning expired index entries first.
func (s *RunStore) List(ctx context.Context, flowID string) ([]string, error) {
	idx := s.index(flowID)
	if s.opts.ttl > 0 {
		now := strconv.FormatInt(time.Now().Unix(), 10)
		if err := s.client.ZRemRangeByScore(ctx, idx, "-inf", now).Err(); err != nil {
			return nil, fmt.Errorf("redis prune runs: %w", err)
		}
	}
	ids, err := s.client.ZRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list runs: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a snapshot and its index entries.
func (s *RunStore) Delete(ctx context.Context, runID string) error {
	run, err := s.Load(ctx, runID)
	if errors.Is(err, domain.ErrRunNotFound) {
		return s.client.ZRem(ctx, s.index(""), runID).Err()
	}
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p backend.Pipeliner) error {
		p.Del(ctx, s.key(runID))
		p.ZRem(ctx, s.index(""), runID)
		if run.FlowID != "" {
			p.ZRem(ctx, s.index(run.FlowID), runID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete run %s: %w", runID, err)
	}
	return nil
}
