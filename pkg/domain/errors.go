package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFlowNotFound is returned when a flow id is unknown to a store.
	ErrFlowNotFound = errors.New("flow not found")
	// ErrRunNotFound is returned when a run id is unknown to a store.
	ErrRunNotFound = errors.New("run not found")
	ErrNodeNotFound = errors.New("node not found")
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrDuplicateNode is returned when a node id is already taken.
	ErrDuplicateNode = errors.New("duplicate node id")
	// ErrDuplicateEdge is returned when two nodes are already connected.
	ErrDuplicateEdge = errors.New("nodes already connected")
	// ErrInvalidPort is returned when an edge names a port the node does not declare.
	ErrInvalidPort = errors.New("invalid port")
	// ErrRunInProgress is returned by edits attempted while a run owns the graph.
	ErrRunInProgress = errors.New("run in progress")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrEmptyClipboard = errors.New("clipboard is empty")
	// ErrCompile is matched by every *CompileError.
	ErrCompile = errors.New("compile error")
)

// CompileError reports a graph that cannot be turned into a strategy.
type CompileError struct {
	Reason  string
	NodeIDs []string
}

func (e *CompileError) Error() string {
	if len(e.NodeIDs) == 0 {
		return "compile: " + e.Reason
	}
	return fmt.Sprintf("compile: %s: %s", e.Reason, strings.Join(e.NodeIDs, ", "))
}

// Is lets errors.Is(err, ErrCompile) match.
func (e *CompileError) Is(target error) bool {
	return target == ErrCompile
}

// NodeExecutionError records a failed node or node group.
type NodeExecutionError struct {
	NodeIDs []string
	Unit    UnitKind
	Err     error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("%s unit [%s] failed: %v", e.Unit, strings.Join(e.NodeIDs, ", "), e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// ErrAborted is the cause recorded for nodes interrupted by an abort.
var ErrAborted = errors.New("run aborted")
