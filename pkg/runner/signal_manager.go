package runner

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalManager turns SIGINT and SIGTERM into run aborts. The first signal
// aborts the run through its controller so the executor can settle the run
// state; a second one cancels the context outright.
type SignalManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	abort   func()
	signals chan os.Signal
	done    chan struct{}
	stop    sync.Once
}

// NewSignalManager starts listening for signals. abort is called on the
// first one.
func NewSignalManager(parent context.Context, abort func()) *SignalManager {
	sm := &SignalManager{
		abort:   abort,
		signals: make(chan os.Signal, 2),
		done:    make(chan struct{}),
	}
	sm.ctx, sm.cancel = context.WithCancel(parent)
	signal.Notify(sm.signals, os.Interrupt, syscall.SIGTERM)
	go sm.loop()
	return sm
}

func (sm *SignalManager) loop() {
	aborted := false
	for {
		select {
		case <-sm.done:
			return
		case <-sm.ctx.Done():
			return
		case <-sm.signals:
			if !aborted {
				aborted = true
				sm.fire()
				continue
			}
			sm.cancel()
			return
		}
	}
}

func (sm *SignalManager) fire() {
	sm.mu.Lock()
	abort := sm.abort
	sm.mu.Unlock()
	if abort != nil {
		abort()
	} else {
		sm.cancel()
	}
}

// Context is cancelled by the second signal or by Stop.
func (sm *SignalManager) Context() context.Context {
	return sm.ctx
}

// Stop releases the signal handler and cancels the context.
func (sm *SignalManager) Stop() {
	sm.stop.Do(func() {
		signal.Stop(sm.signals)
		close(sm.done)
		sm.cancel()
	})
}

// interrupt simulates a delivered signal.
func (sm *SignalManager) interrupt() {
	sm.signals <- os.Interrupt
}
