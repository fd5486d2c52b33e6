package history

import (
	"github.com/aretw0/conductor/pkg/domain"
)

// DefaultLimit is the number of snapshots kept when no limit is given.
const DefaultLimit = 50

// UndoStack holds deep copies of a graph taken before destructive edits.
// It is not safe for concurrent use; the owning session serializes access.
type UndoStack struct {
	limit int
	undo  []*domain.FlowGraph
	redo  []*domain.FlowGraph
}

// NewUndoStack creates a stack keeping at most limit snapshots.
func NewUndoStack(limit int) *UndoStack {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &UndoStack{limit: limit}
}

// Push snapshots g. Call it before mutating, never after.
// A new edit invalidates every redo state.
func (s *UndoStack) Push(g *domain.FlowGraph) {
	s.undo = append(s.undo, g.Clone())
	if len(s.undo) > s.limit {
		s.undo = s.undo[len(s.undo)-s.limit:]
	}
	s.redo = nil
}

// Undo restores the latest snapshot into g and keeps the current state for Redo.
func (s *UndoStack) Undo(g *domain.FlowGraph) error {
	if len(s.undo) == 0 {
		return domain.ErrNothingToUndo
	}
	snap := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, g.Clone())
	Restore(g, snap)
	return nil
}

// Redo re-applies the state undone last.
func (s *UndoStack) Redo(g *domain.FlowGraph) error {
	if len(s.redo) == 0 {
		return domain.ErrNothingToRedo
	}
	snap := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, g.Clone())
	Restore(g, snap)
	return nil
}

func (s *UndoStack) CanUndo() bool { return len(s.undo) > 0 }
func (s *UndoStack) CanRedo() bool { return len(s.redo) > 0 }

// Len returns the number of undo snapshots.
func (s *UndoStack) Len() int { return len(s.undo) }

// Clear drops all history, e.g. after importing a different flow.
func (s *UndoStack) Clear() {
	s.undo = nil
	s.redo = nil
}

// Restore replaces g wholesale with a copy of snap. The graph pointer held
// by callers stays valid.
func Restore(g, snap *domain.FlowGraph) {
	*g = *snap.Clone()
}
