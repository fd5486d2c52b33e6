package runtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
)

// tracker owns the FlowRunState of one run. State changes happen under the
// lock; callbacks are invoked after it is released.
type tracker struct {
	mu  sync.Mutex
	s   *domain.FlowRunState
	g   *domain.FlowGraph
	cb  domain.Callbacks
	now func() time.Time

	// bypassed holds nodes left idle because no route reached them.
	bypassed map[string]bool
}

func newTracker(s *domain.FlowRunState, g *domain.FlowGraph, cb domain.Callbacks, now func() time.Time) *tracker {
	if s.Nodes == nil {
		s.Nodes = make(map[string]*domain.NodeRunState)
	}
	if s.EdgeValues == nil {
		s.EdgeValues = make(map[string]string)
	}
	if s.OutputLog == nil {
		s.OutputLog = []domain.OutputLogEntry{}
	}
	for _, n := range g.Nodes {
		s.Node(n.ID)
	}
	return &tracker{s: s, g: g, cb: cb, now: now, bypassed: make(map[string]bool)}
}

func (t *tracker) emit(ctx context.Context, e domain.Event) {
	if t.cb.OnEvent == nil {
		return
	}
	e.RunID = t.s.RunID
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now().UTC()
	}
	if n := t.g.Node(e.NodeID); n != nil {
		e.Label = n.Label
		e.Kind = n.Kind
	}
	t.cb.OnEvent(ctx, e)
}

func (t *tracker) status(ctx context.Context, nodeID string, st domain.NodeStatus) {
	if t.cb.OnNodeStatusChange != nil {
		t.cb.OnNodeStatusChange(ctx, nodeID, st)
	}
}

func (t *tracker) edgeActive(ctx context.Context, edges []*domain.FlowEdge, active bool) {
	if t.cb.OnEdgeActive == nil {
		return
	}
	for _, e := range edges {
		t.cb.OnEdgeActive(ctx, e.ID, active)
	}
}

func (t *tracker) start(ctx context.Context) {
	t.mu.Lock()
	t.s.Status = domain.RunRunning
	if t.s.StartedAt.IsZero() {
		t.s.StartedAt = t.now().UTC()
	}
	t.mu.Unlock()
	t.emit(ctx, domain.Event{Type: domain.EventRunStart})
}

func (t *tracker) setStep(i int) {
	t.mu.Lock()
	t.s.CurrentStep = i
	t.mu.Unlock()
}

func (t *tracker) setCursor(id string) {
	t.mu.Lock()
	t.s.Cursor = id
	t.mu.Unlock()
}

func (t *tracker) setStatus(st domain.RunStatus) {
	t.mu.Lock()
	t.s.Status = st
	t.mu.Unlock()
}

// pause moves a running run to paused, emitting run-paused once per pause.
func (t *tracker) pause(ctx context.Context, nodeID string) {
	t.mu.Lock()
	if t.s.Status != domain.RunRunning {
		t.mu.Unlock()
		return
	}
	t.s.Status = domain.RunPaused
	var prev domain.NodeStatus
	if nodeID != "" {
		ns := t.s.Node(nodeID)
		prev = ns.Status
		if !prev.Terminal() {
			ns.Status = domain.NodePaused
		}
	}
	t.mu.Unlock()

	if nodeID != "" && !prev.Terminal() {
		t.status(ctx, nodeID, domain.NodePaused)
	}
	t.emit(ctx, domain.Event{Type: domain.EventRunPaused, NodeID: nodeID})
}

func (t *tracker) resume(ctx context.Context, nodeID string) {
	t.mu.Lock()
	if t.s.Status != domain.RunPaused {
		t.mu.Unlock()
		return
	}
	t.s.Status = domain.RunRunning
	released := nodeID != "" && t.s.Node(nodeID).Status == domain.NodePaused
	if released {
		t.s.Node(nodeID).Status = domain.NodeIdle
	}
	t.mu.Unlock()

	if released {
		t.status(ctx, nodeID, domain.NodeIdle)
	}
	t.emit(ctx, domain.Event{Type: domain.EventRunResumed, NodeID: nodeID})
}

func (t *tracker) abort(ctx context.Context) {
	t.mu.Lock()
	t.s.Aborted = true
	var released []string
	for id, ns := range t.s.Nodes {
		if ns.Status == domain.NodePaused {
			ns.Status = domain.NodeIdle
			released = append(released, id)
		}
	}
	t.mu.Unlock()

	for _, id := range released {
		t.status(ctx, id, domain.NodeIdle)
	}
	t.emit(ctx, domain.Event{Type: domain.EventRunAborted, Error: domain.ErrAborted.Error()})
}

// finish settles the run status: error when aborted or any node failed.
func (t *tracker) finish(ctx context.Context, aborted bool) domain.RunStatus {
	t.mu.Lock()
	status := domain.RunDone
	if aborted || len(t.s.Failed()) > 0 {
		status = domain.RunError
	}
	t.s.Status = status
	t.s.Cursor = ""
	t.s.FinishedAt = t.now().UTC()
	t.mu.Unlock()

	if !aborted {
		t.emit(ctx, domain.Event{Type: domain.EventRunComplete})
	}
	return status
}

func (t *tracker) terminal(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s.Node(id).Status.Terminal()
}

// gather returns the upstream input of a node: the values recorded on its
// inbound edges, newline-joined in edge order. Nodes without inbound edges
// receive the run input.
func (t *tracker) gather(nodeID, runInput string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	inbound := graph.Incoming(t.g, nodeID)
	if len(inbound) == 0 {
		return runInput
	}
	var parts []string
	for _, e := range inbound {
		if v, ok := t.s.EdgeValues[e.ID]; ok && v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n")
}

// live reports whether any inbound edge of nodeID is live, and how many
// inbound edges were considered. An edge is dead when its source was
// bypassed, or when it is a condition branch or error route that carried
// nothing. Edges from nodes in within are not considered.
func (t *tracker) live(nodeID string, within map[string]bool) (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	inbound := 0
	for _, e := range graph.Incoming(t.g, nodeID) {
		src := source(e, nodeID)
		if within[src] || isLoopBack(t.g, e) || graph.DanglingEdge(t.g, e) != "" {
			continue
		}
		inbound++
		if t.bypassed[src] {
			continue
		}
		if routed(t.g, e) {
			if _, fired := t.s.EdgeValues[e.ID]; !fired {
				continue
			}
		}
		return true, inbound
	}
	return false, inbound
}

// bypass leaves nodes idle for the rest of the run.
func (t *tracker) bypass(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		t.bypassed[id] = true
	}
}

func (t *tracker) isBypassed(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bypassed[id]
}

// source returns the node whose output e delivers into nodeID.
func source(e *domain.FlowEdge, nodeID string) string {
	if e.Kind == domain.EdgeReverse || (e.Kind == domain.EdgeBidirectional && e.From == nodeID) {
		return e.To
	}
	return e.From
}

// routed reports whether e carries data on a single outcome of its source:
// a condition branch or an error route.
func routed(g *domain.FlowGraph, e *domain.FlowEdge) bool {
	switch e.Kind {
	case domain.EdgeError:
		return true
	case domain.EdgeReverse, domain.EdgeBidirectional:
		return false
	}
	if e.FromPort == domain.PortErr {
		return true
	}
	from := g.Node(e.From)
	return from != nil && from.Kind == domain.KindCondition
}

func (t *tracker) nodeRunning(ctx context.Context, id string, unit domain.UnitKind, input string, started time.Time) {
	t.mu.Lock()
	ns := t.s.Node(id)
	ns.Status = domain.NodeRunning
	ns.Input = input
	ns.Output = ""
	ns.Error = ""
	ns.StartedAt = started.UTC()
	ns.FinishedAt = time.Time{}
	ns.DurationMs = 0
	t.mu.Unlock()

	t.status(ctx, id, domain.NodeRunning)
	t.emit(ctx, domain.Event{Type: domain.EventStepStart, NodeID: id, Unit: unit, Status: domain.NodeRunning})
}

func (t *tracker) nodeSuccess(ctx context.Context, id string, unit domain.UnitKind, output string, started, finished time.Time) {
	dur := finished.Sub(started).Milliseconds()

	t.mu.Lock()
	ns := t.s.Node(id)
	ns.Status = domain.NodeSuccess
	ns.Output = output
	ns.FinishedAt = finished.UTC()
	ns.DurationMs = dur
	t.s.OutputLog = append(t.s.OutputLog, t.logEntry(id, domain.NodeSuccess, output, dur, finished))
	t.mu.Unlock()

	t.status(ctx, id, domain.NodeSuccess)
	t.emit(ctx, domain.Event{
		Type: domain.EventStepComplete, NodeID: id, Unit: unit, Status: domain.NodeSuccess,
		Output: output, Preview: domain.Preview(output), DurationMs: dur,
	})
}

// nodeError records a failure. withEvent controls the step-error event, so a
// group failure can report once for all of its members.
func (t *tracker) nodeError(ctx context.Context, id string, unit domain.UnitKind, err error, started, finished time.Time, withEvent bool) {
	dur := finished.Sub(started).Milliseconds()
	msg := err.Error()

	t.mu.Lock()
	ns := t.s.Node(id)
	ns.Status = domain.NodeError
	ns.Error = msg
	if ns.StartedAt.IsZero() {
		ns.StartedAt = started.UTC()
	}
	ns.FinishedAt = finished.UTC()
	ns.DurationMs = dur
	t.s.OutputLog = append(t.s.OutputLog, t.logEntry(id, domain.NodeError, msg, dur, finished))
	t.mu.Unlock()

	t.status(ctx, id, domain.NodeError)
	if withEvent {
		t.emit(ctx, domain.Event{
			Type: domain.EventStepError, NodeID: id, Unit: unit, Status: domain.NodeError,
			Error: msg, DurationMs: dur,
		})
	}
}

func (t *tracker) progress(ctx context.Context, id string, unit domain.UnitKind, round int, output string) {
	t.emit(ctx, domain.Event{
		Type: domain.EventStepProgress, NodeID: id, Unit: unit, Status: domain.NodeRunning,
		Round: round, Preview: domain.Preview(output),
	})
}

// must be called with t.mu held.
func (t *tracker) logEntry(id string, st domain.NodeStatus, output string, dur int64, at time.Time) domain.OutputLogEntry {
	entry := domain.OutputLogEntry{NodeID: id, Status: st, Output: output, DurationMs: dur, Timestamp: at.UTC()}
	if n := t.g.Node(id); n != nil {
		entry.Label = n.Label
		entry.Kind = n.Kind
	}
	return entry
}

// record writes a node's result onto its outgoing edges. On success the
// output travels on regular edges (restricted to port when set); on failure
// the error text travels on error routes only.
func (t *tracker) record(nodeID, value, port string, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range graph.Outgoing(t.g, nodeID) {
		if isLoopBack(t.g, e) {
			continue
		}
		errRoute := e.Kind == domain.EdgeError || (e.From == nodeID && e.FromPort == domain.PortErr)
		if failed != errRoute {
			continue
		}
		if !failed && port != "" && e.From == nodeID && e.FromPort != port {
			continue
		}
		t.s.EdgeValues[e.ID] = value
	}
}

func isLoopBack(g *domain.FlowGraph, e *domain.FlowEdge) bool {
	to := g.Node(e.To)
	return to != nil && to.Kind == domain.KindLoop && e.ToPort == domain.PortBack
}

func (t *tracker) snapshot() *domain.FlowRunState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s.Clone()
}
