package runtime

import (
	"sort"
	"sync"
)

// Controller steers a run from any goroutine: pause, resume, abort and
// breakpoints. Pause and abort take effect at the executor's next poll point
// (between phases, units, nodes and mesh rounds); in-flight calls complete.
type Controller struct {
	mu          sync.Mutex
	paused      bool
	resumed     chan struct{}
	abort       chan struct{}
	aborted     bool
	breakpoints map[string]bool
	hit         map[string]bool
}

// NewController creates a controller with the given breakpoints.
func NewController(breakpoints ...string) *Controller {
	c := &Controller{
		resumed:     make(chan struct{}),
		abort:       make(chan struct{}),
		breakpoints: make(map[string]bool),
		hit:         make(map[string]bool),
	}
	close(c.resumed)
	for _, id := range breakpoints {
		c.breakpoints[id] = true
	}
	return c
}

// Pause asks the run to stop at the next poll point.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.aborted {
		return
	}
	c.paused = true
	c.resumed = make(chan struct{})
}

// Resume releases a paused run.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumed)
}

// Abort stops the run at the next poll point. It is idempotent.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted {
		return
	}
	c.aborted = true
	close(c.abort)
}

// Aborted reports whether Abort was called.
func (c *Controller) Aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

// Paused reports whether the run is asked to pause.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// wait returns the pause state and the channels a paused run blocks on.
func (c *Controller) wait() (paused bool, resumed, abort <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused, c.resumed, c.abort
}

// SetBreakpoints replaces the breakpoint set.
func (c *Controller) SetBreakpoints(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakpoints = make(map[string]bool, len(ids))
	for _, id := range ids {
		c.breakpoints[id] = true
	}
}

// ToggleBreakpoint flips the breakpoint on a node and reports whether it is now set.
func (c *Controller) ToggleBreakpoint(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.breakpoints[id] {
		delete(c.breakpoints, id)
		return false
	}
	c.breakpoints[id] = true
	return true
}

// Breakpoints returns the breakpoint ids, sorted.
func (c *Controller) Breakpoints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.breakpoints))
	for id := range c.breakpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// takeBreakpoint reports whether nodeID is a breakpoint not yet hit in this run.
func (c *Controller) takeBreakpoint(nodeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.breakpoints[nodeID] || c.hit[nodeID] {
		return false
	}
	c.hit[nodeID] = true
	return true
}

// rearm clears the hit set at the start of a run.
func (c *Controller) rearm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hit = make(map[string]bool)
}

// passBreakpoints marks nodes as already hit, so stepping onto them never blocks.
func (c *Controller) passBreakpoints(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.hit[id] = true
	}
}
