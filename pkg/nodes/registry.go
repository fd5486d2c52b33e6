package nodes

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ToolFunction implements an in-process tool. args holds the node's
// configured arguments plus "input", the node input.
type ToolFunction func(ctx context.Context, args map[string]any) (any, error)

// Registry manages in-process tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolFunction
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolFunction)}
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(name string, fn ToolFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (ToolFunction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tools[name]
	return fn, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Execute runs a registered tool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return fn(ctx, args)
}
