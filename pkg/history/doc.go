// Package history keeps editor history for a flow graph: a bounded
// undo/redo stack of whole-graph snapshots and a clipboard that pastes
// copies of nodes under fresh ids.
package history
