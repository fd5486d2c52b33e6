package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/internal/runtime"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/history"
)

// RunFunc compiles and executes a graph. The graph it receives is a private
// snapshot of the session graph.
type RunFunc func(ctx context.Context, g *domain.FlowGraph, opts runtime.RunOptions) (*domain.FlowRunState, error)

// Editor is a flow editor session. All methods are safe for concurrent use;
// edits are serialized and rejected with domain.ErrRunInProgress while a run
// started from the session is active.
type Editor struct {
	mu        sync.Mutex
	g         *domain.FlowGraph
	selection []string
	undo      *history.UndoStack
	clip      history.Clipboard

	breakpoints map[string]bool
	run         RunFunc
	ctrl        *runtime.Controller
	running     bool
	lastRun     *domain.FlowRunState
	logger      *slog.Logger
}

// EditorOption configures an Editor.
type EditorOption func(*Editor)

// WithUndoLimit bounds the undo history.
func WithUndoLimit(n int) EditorOption {
	return func(e *Editor) {
		e.undo = history.NewUndoStack(n)
	}
}

// WithRunner sets the function Run delegates to.
func WithRunner(fn RunFunc) EditorOption {
	return func(e *Editor) {
		e.run = fn
	}
}

// WithEditorLogger sets the structured logger.
func WithEditorLogger(logger *slog.Logger) EditorOption {
	return func(e *Editor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEditor opens a session over g. A nil g starts an empty flow.
func NewEditor(g *domain.FlowGraph, opts ...EditorOption) *Editor {
	if g == nil {
		g = graph.New("untitled")
	}
	e := &Editor{
		g:           g,
		undo:        history.NewUndoStack(history.DefaultLimit),
		breakpoints: make(map[string]bool),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns a copy of the current graph.
func (e *Editor) Graph() *domain.FlowGraph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.g.Clone()
}

// Selection returns the selected node ids.
func (e *Editor) Selection() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.selection...)
}

// errUnchanged lets an edit report a no-op: nothing is pushed or rolled back.
var errUnchanged = errors.New("unchanged")

// edit runs fn under the session lock, refusing while a run is active.
// With snapshot set the edit is all or nothing: when fn fails the graph is
// rolled back, otherwise the graph as it was before fn is pushed onto the
// undo stack.
func (e *Editor) edit(snapshot bool, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return domain.ErrRunInProgress
	}
	var before *domain.FlowGraph
	if snapshot {
		before = e.g.Clone()
	}
	err := fn()
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		if before != nil {
			history.Restore(e.g, before)
		}
		return err
	}
	if before != nil {
		e.undo.Push(before)
	}
	return nil
}

// AddNode creates a node of kind at a grid-snapped position.
func (e *Editor) AddNode(kind domain.NodeKind, label string, x, y float64) (*domain.FlowNode, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown node kind %q", kind)
	}
	n := graph.CreateNode(kind, label, graph.SnapToGrid(x), graph.SnapToGrid(y))
	err := e.edit(true, func() error {
		return graph.AddNode(e.g, n)
	})
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// MoveNode repositions a node on the grid.
func (e *Editor) MoveNode(id string, x, y float64) error {
	return e.edit(true, func() error {
		return graph.MoveNode(e.g, id, graph.SnapToGrid(x), graph.SnapToGrid(y))
	})
}

// Configure replaces a node's config with one decoded from raw and, when
// label is not empty, relabels it. An undecodable config leaves the node
// untouched.
func (e *Editor) Configure(id, label string, raw map[string]any) error {
	return e.edit(true, func() error {
		n := e.g.Node(id)
		if n == nil {
			return fmt.Errorf("%s: %w", id, domain.ErrNodeNotFound)
		}
		cfg, err := domain.DecodeConfig(n.Kind, raw)
		if err != nil {
			return fmt.Errorf("node %s: %w", id, err)
		}
		if _, err := cfg.TimeoutDuration(); err != nil {
			return fmt.Errorf("node %s: %w", id, err)
		}
		n.Config = cfg
		if label != "" {
			n.Label = label
		}
		e.g.Touch(graph.Clock())
		return nil
	})
}

// Connect adds an edge between two nodes. Connecting an already connected
// pair fails with domain.ErrDuplicateEdge.
func (e *Editor) Connect(from, to string, kind domain.EdgeKind, opts graph.EdgeOptions) (*domain.FlowEdge, error) {
	var edge *domain.FlowEdge
	err := e.edit(true, func() error {
		var err error
		edge, err = graph.Connect(e.g, from, to, kind, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return edge.Clone(), nil
}

// Select replaces the selection. Unknown and repeated ids are ignored.
func (e *Editor) Select(ids ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection = e.selection[:0]
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] || e.g.Node(id) == nil {
			continue
		}
		seen[id] = true
		e.selection = append(e.selection, id)
	}
}

// DeleteSelection removes the selected nodes and their edges.
func (e *Editor) DeleteSelection() ([]string, error) {
	var removed []string
	err := e.edit(true, func() error {
		if len(e.selection) == 0 {
			return errUnchanged
		}
		for _, id := range e.selection {
			if err := graph.RemoveNode(e.g, id); err != nil {
				return err
			}
			removed = append(removed, id)
		}
		e.selection = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// DeleteEdge removes one edge.
func (e *Editor) DeleteEdge(id string) error {
	return e.edit(true, func() error {
		if e.g.Edge(id) == nil {
			return fmt.Errorf("%s: %w", id, domain.ErrEdgeNotFound)
		}
		return graph.RemoveEdge(e.g, id)
	})
}

// Copy puts the selection on the clipboard and returns how many nodes were copied.
func (e *Editor) Copy() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clip.Copy(e.g, e.selection)
}

// Cut copies the selection and deletes it.
func (e *Editor) Cut() ([]string, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, domain.ErrRunInProgress
	}
	e.clip.Copy(e.g, e.selection)
	e.mu.Unlock()
	return e.DeleteSelection()
}

// Paste inserts the clipboard under fresh ids and selects the pasted nodes.
func (e *Editor) Paste() ([]string, error) {
	var ids []string
	err := e.edit(true, func() error {
		var err error
		ids, err = e.clip.Paste(e.g)
		if err != nil {
			return err
		}
		e.selection = append([]string(nil), ids...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Undo restores the graph as it was before the last edit.
func (e *Editor) Undo() error {
	return e.edit(false, func() error {
		if err := e.undo.Undo(e.g); err != nil {
			return err
		}
		e.pruneSelection()
		return nil
	})
}

// Redo re-applies the last undone edit.
func (e *Editor) Redo() error {
	return e.edit(false, func() error {
		if err := e.undo.Redo(e.g); err != nil {
			return err
		}
		e.pruneSelection()
		return nil
	})
}

func (e *Editor) pruneSelection() {
	kept := e.selection[:0]
	for _, id := range e.selection {
		if e.g.Node(id) != nil {
			kept = append(kept, id)
		}
	}
	e.selection = kept
}

// ApplyLayout arranges the nodes left to right by dependency depth.
func (e *Editor) ApplyLayout() error {
	return e.edit(true, func() error {
		graph.ApplyLayout(e.g)
		return nil
	})
}

// ToggleBreakpoint flips the breakpoint on a node and reports whether it is set.
// Breakpoints can be changed during a run and apply to nodes not yet reached.
func (e *Editor) ToggleBreakpoint(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.g.Node(id) == nil {
		return false, fmt.Errorf("%s: %w", id, domain.ErrNodeNotFound)
	}
	e.breakpoints[id] = !e.breakpoints[id]
	if !e.breakpoints[id] {
		delete(e.breakpoints, id)
	}
	set := e.breakpoints[id]
	if e.ctrl != nil && e.running {
		e.ctrl.SetBreakpoints(e.breakpointList()...)
	}
	return set, nil
}

// Breakpoints returns the breakpoint node ids in graph order.
func (e *Editor) Breakpoints() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.breakpointList()
}

func (e *Editor) breakpointList() []string {
	var ids []string
	for _, n := range e.g.Nodes {
		if e.breakpoints[n.ID] {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Export serializes the graph as JSON.
func (e *Editor) Export() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return graph.Export(e.g)
}

// Import replaces the graph with a JSON document. History, selection and
// breakpoints belong to the previous graph and are cleared.
func (e *Editor) Import(data []byte) error {
	g, err := graph.Import(data)
	if err != nil {
		return err
	}
	return e.edit(false, func() error {
		e.g = g
		e.undo.Clear()
		e.selection = nil
		e.breakpoints = make(map[string]bool)
		return nil
	})
}
