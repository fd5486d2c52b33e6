package runtime_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/conductor/internal/compiler"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type builder struct {
	t *testing.T
	g *domain.FlowGraph
}

func newBuilder(t *testing.T) *builder {
	return &builder{t: t, g: graph.New("runtime")}
}

func (b *builder) node(id string, kind domain.NodeKind) *domain.FlowNode {
	n := graph.CreateNode(kind, id, 0, 0)
	n.ID = id
	if n.Config.Agent != nil {
		n.Config.Agent.Prompt = "prompt for " + id
	}
	require.NoError(b.t, graph.AddNode(b.g, n))
	return n
}

func (b *builder) edge(from, to string, kind domain.EdgeKind, opts ...graph.EdgeOptions) *domain.FlowEdge {
	var o graph.EdgeOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	e := graph.CreateEdge(from, to, kind, o)
	e.ID = fmt.Sprintf("%s->%s", from, to)
	require.NoError(b.t, graph.AddEdge(b.g, e))
	return e
}

func (b *builder) compile() *domain.ExecutionStrategy {
	s, err := compiler.Compile(b.g)
	require.NoError(b.t, err)
	return s
}

// recorder captures every callback, safe for concurrent units.
type recorder struct {
	mu       sync.Mutex
	events   []domain.Event
	statuses map[string][]domain.NodeStatus
	edges    map[string][]bool
}

func newRecorder() *recorder {
	return &recorder{statuses: map[string][]domain.NodeStatus{}, edges: map[string][]bool{}}
}

func (r *recorder) callbacks() domain.Callbacks {
	return domain.Callbacks{
		OnEvent: func(_ context.Context, e domain.Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
		},
		OnNodeStatusChange: func(_ context.Context, id string, s domain.NodeStatus) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.statuses[id] = append(r.statuses[id], s)
		},
		OnEdgeActive: func(_ context.Context, id string, active bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.edges[id] = append(r.edges[id], active)
		},
	}
}

func (r *recorder) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type mockStepper struct {
	mock.Mock
}

func (m *mockStepper) Step(ctx context.Context, req ports.AgentRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func forNode(id string) interface{} {
	return mock.MatchedBy(func(req ports.AgentRequest) bool { return req.Node.ID == id })
}
