// File: adapters/executor_adapter.go
// Package adapters provides glue between the dispatch loop and api.Executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ExecutorAdapter implements the api.Executor interface over a dispatch
// loop: submitted tasks travel the loop's completion queue as user packets
// and run on a resizable set of adapter-owned worker goroutines. Shrinking
// wakes parked workers with no-op packets, the same trick the loop itself
// uses for quit.

package adapters

import (
	"errors"
	"sync"

	"github.com/creachadair/taskgroup"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/dispatch"
	"github.com/momentics/hioload-ipc/ipc"
)

// ExecutorAdapter exposes a dispatch.Loop as an api.Executor.
type ExecutorAdapter struct {
	loop *dispatch.Loop
	recv *dispatch.Receiver

	mu      sync.Mutex
	stops   []chan struct{}
	workers taskgroup.Group
}

var _ api.Executor = (*ExecutorAdapter)(nil)
var _ api.GracefulShutdown = (*ExecutorAdapter)(nil)

// NewExecutorAdapter starts workers goroutines dispatching on l. The loop
// stays owned by the caller; Shutdown stops only the adapter's workers.
func NewExecutorAdapter(l *dispatch.Loop, workers int) *ExecutorAdapter {
	ea := &ExecutorAdapter{loop: l}
	ea.recv = dispatch.NewReceiver(func(_ *dispatch.Loop, _ *dispatch.Receiver, data any) {
		if task, ok := data.(func()); ok {
			task()
		}
	})
	ea.Resize(workers)
	return ea
}

// Submit schedules task for asynchronous execution on the loop.
func (ea *ExecutorAdapter) Submit(task func()) error {
	if task == nil {
		return api.ErrInvalidArgument
	}
	return ea.loop.QueuePacket(ea.recv, task)
}

// NumWorkers returns the current number of adapter workers.
func (ea *ExecutorAdapter) NumWorkers() int {
	ea.mu.Lock()
	defer ea.mu.Unlock()
	return len(ea.stops)
}

// Resize adjusts the worker count at runtime. Shrunk workers finish the
// dispatch they are in before exiting.
func (ea *ExecutorAdapter) Resize(newCount int) {
	if newCount < 0 {
		newCount = 0
	}
	ea.mu.Lock()
	for len(ea.stops) < newCount {
		stop := make(chan struct{})
		ea.stops = append(ea.stops, stop)
		ea.workers.Go(taskgroup.NoError(func() {
			ea.run(stop)
		}))
	}
	var removed []chan struct{}
	if len(ea.stops) > newCount {
		removed = append(removed, ea.stops[newCount:]...)
		ea.stops = ea.stops[:newCount]
	}
	ea.mu.Unlock()

	for _, stop := range removed {
		close(stop)
		// One wake per removed worker; surplus packets dispatch as no-ops.
		_ = ea.loop.QueuePacket(ea.recv, func() {})
	}
}

func (ea *ExecutorAdapter) run(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		err := ea.loop.Run(ipc.TimeNever, true)
		if errors.Is(err, api.ErrCanceled) || errors.Is(err, api.ErrBadState) {
			return
		}
	}
}

// Shutdown stops all adapter workers and waits for them to exit.
func (ea *ExecutorAdapter) Shutdown() error {
	ea.Resize(0)
	return ea.workers.Wait()
}
