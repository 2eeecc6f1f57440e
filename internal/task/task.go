// Package task runs the long-lived goroutines of a node under one lifetime.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/go-rclink/logger"
)

// Func is one iteration of a task loop. It returns true to keep running, false to stop the task.
type Func func() bool

// RunFunc is a task that owns its own loop. It should return when ctx is done.
type RunFunc func(ctx context.Context) error

// Manager manages the goroutines of a node.
//
// A panic inside a loop iteration is logged and the loop carries on with the next iteration:
// the control path must not die because of one bad input. Stop cancels every task; Wait blocks
// until all of them returned and reports the first error that was not a cancellation.
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//
//	mgr.Start("capture", func() bool {
//	    // ... read one input event ...
//	    return true
//	})
//	_ = mgr.StartInterval("watchdog", check, 200*time.Millisecond, true)
//
//	mgr.Stop()
//	_ = mgr.Wait()
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	logger logger.Logger
	count  atomic.Int32
}

// NewManager creates a Manager whose tasks stop when ctx is done or Stop is called.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)

	return &Manager{ctx: gctx, cancel: cancel, group: group, logger: l}
}

// Context returns the context shared by all tasks. It is done once any task fails or Stop is called.
func (mgr *Manager) Context() context.Context {
	return mgr.ctx
}

// Start starts a goroutine calling fn until it returns false or the manager stops.
func (mgr *Manager) Start(name string, fn Func) {
	mgr.Go(name, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
				if !mgr.callWithRecover(name, fn) {
					return nil
				}
			}
		}
	})
}

// StartInterval starts a goroutine calling fn at every interval until it returns false or the manager stops.
// If runNow is true, fn is called once immediately.
func (mgr *Manager) StartInterval(name string, fn Func, interval time.Duration, runNow bool) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval for task %s: %v", name, interval)
	}

	mgr.Go(name, func(ctx context.Context) error {
		if runNow && !mgr.callWithRecover(name, fn) {
			return nil
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if !mgr.callWithRecover(name, fn) {
					return nil
				}
			}
		}
	})

	return nil
}

// Go starts fn in its own goroutine. A returned error, or a panic, stops every other task.
func (mgr *Manager) Go(name string, fn RunFunc) {
	mgr.group.Go(func() (err error) {
		mgr.count.Add(1)
		mgr.logger.Debug("task started", "name", name, "task_count", mgr.TaskCount())

		defer func() {
			if r := recover(); r != nil {
				mgr.logger.Error("panic in task", "name", name, "panic", r)
				err = fmt.Errorf("task %s panicked: %v", name, r)
			}
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		if err := fn(mgr.ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("task %s: %w", name, err)
		}

		return nil
	})
}

// Stop signals all tasks to terminate.
func (mgr *Manager) Stop() {
	mgr.cancel()
}

// Wait waits for all tasks to terminate and returns the first task error.
func (mgr *Manager) Wait() error {
	return mgr.group.Wait()
}

// TaskCount returns the number of currently running tasks.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

// callWithRecover runs one loop iteration, a panic is logged and treated as "keep running".
func (mgr *Manager) callWithRecover(name string, fn Func) (keep bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task iteration", "name", name, "panic", r)
			keep = true
		}
	}()

	return fn()
}
