// Package task manages the background goroutines of the sandtable devices:
// the serial reader loop of each transport and the periodic sensor poll.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandscape/sandtable/logger"
)

// ErrStopped is returned when starting a task on a stopped manager.
var ErrStopped = errors.New("task: manager already stopped")

// Func is one iteration of a task. It returns true to keep running,
// false to stop the goroutine.
type Func func(ctx context.Context) bool

// Manager manages the lifecycle of goroutines (tasks). Stop cancels the
// context every task observes; Wait blocks until all of them returned and
// re-arms the manager so it can be started again after a reconnect.
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Start("reader", func(ctx context.Context) bool {
//	    // ... one read ...
//	    return true
//	})
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect ctx and cancel
	taskMu sync.RWMutex // protect task creation during Wait()
}

// NewManager creates a new Manager with ctx as the parent context.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

func (mgr *Manager) getContext() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start runs fn in a loop on a new goroutine until fn returns false or the
// manager is stopped.
func (mgr *Manager) Start(name string, fn Func) error {
	mgr.logger.Debug("start task", "name", name)

	ctx := mgr.getContext()
	if ctx.Err() != nil {
		return fmt.Errorf("start %s: %w", name, ErrStopped)
	}

	mgr.launch(name, func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if !mgr.callWithRecover(ctx, name, fn) {
					return
				}
			}
		}
	})

	return nil
}

// StartReceiver is Start with an onExit hook that runs once the goroutine
// returns, whether it stopped by itself or was cancelled.
func (mgr *Manager) StartReceiver(name string, fn Func, onExit func()) error {
	mgr.logger.Debug("start receiver task", "name", name)

	ctx := mgr.getContext()
	if ctx.Err() != nil {
		return fmt.Errorf("start %s: %w", name, ErrStopped)
	}

	mgr.launch(name, func() {
		if onExit != nil {
			defer onExit()
		}

		for ctx.Err() == nil {
			if !mgr.callWithRecover(ctx, name, fn) {
				return
			}
		}
	})

	return nil
}

// StartInterval runs fn every interval until fn returns false or the
// manager is stopped. If runNow is true, fn runs once before the first tick.
func (mgr *Manager) StartInterval(name string, fn Func, interval time.Duration, runNow bool) error {
	mgr.logger.Debug("start interval task", "name", name, "interval", interval, "runNow", runNow)

	if interval <= 0 {
		return fmt.Errorf("task: invalid interval %v", interval)
	}

	ctx := mgr.getContext()
	if ctx.Err() != nil {
		return fmt.Errorf("start %s: %w", name, ErrStopped)
	}

	mgr.launch(name, func() {
		if runNow && !mgr.callWithRecover(ctx, name, fn) {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !mgr.callWithRecover(ctx, name, fn) {
					return
				}
			}
		}
	})

	return nil
}

func (mgr *Manager) launch(name string, body func()) {
	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer mgr.wg.Done()
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.Count())
		}()

		body()
	}()
}

// callWithRecover calls fn with panic protection; a panic stops the task.
func (mgr *Manager) callWithRecover(ctx context.Context, name string, fn Func) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			ok = false
		}
	}()

	return fn(ctx)
}

// Stop signals all running goroutines.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.cancel != nil {
		mgr.cancel()
	}
}

// Wait waits for all goroutines to terminate, then re-arms the manager
// with a fresh context derived from the parent.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// WaitTimeout is Wait bounded by d. It reports whether all tasks finished.
func (mgr *Manager) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		mgr.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// Count returns the number of currently running goroutines.
func (mgr *Manager) Count() int {
	return int(mgr.count.Load())
}
