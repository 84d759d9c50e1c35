// File: dispatch/task.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deadline-ordered tasks. The pending list is kept deadline-ascending with
// FIFO order on ties; insertion scans from the tail because callers almost
// always post near-monotonic deadlines. When the port timer fires, due
// tasks are pulled into a separate batch and popped one at a time, so a
// handler canceling a later-but-already-due task cannot corrupt the drain.
// A guard flag under the loop lock keeps a second worker from draining
// concurrently, and only the draining worker re-arms the timer, once the
// batch is empty.

package dispatch

import (
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/ipc"
)

// TaskHandler runs when the task's deadline has passed (err nil) or when
// the loop shut down with the task still pending (err api.ErrCanceled).
type TaskHandler func(l *Loop, t *Task, err error)

type taskState int

const (
	taskPending taskState = iota // in Loop.tasks
	taskDue                      // in Loop.due
	taskFinal                    // dispatched, canceled or drained
)

// Task is a posted deadline task and its cancellation token.
type Task struct {
	loop     *Loop
	deadline time.Time
	handler  TaskHandler

	// Guarded by loop.mu.
	state    taskState
	finished bool
	err      error
	done     chan struct{}
}

var _ api.Cancelable = (*Task)(nil)

// Deadline returns the absolute time the task was posted for.
func (t *Task) Deadline() time.Time { return t.deadline }

// Cancel revokes the task; see Loop.CancelTask.
func (t *Task) Cancel() error { return t.loop.CancelTask(t) }

// Done is closed once the task reached a terminal state; for dispatches it
// closes after the handler returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err reports how the task ended: nil for a normal dispatch,
// api.ErrCanceled for cancellation or shutdown, api.ErrBadState while still
// pending.
func (t *Task) Err() error {
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	if !t.finished {
		return api.ErrBadState
	}
	return t.err
}

func (t *Task) finish(err error) {
	t.loop.mu.Lock()
	t.finishLocked(err)
	t.loop.mu.Unlock()
}

func (t *Task) finishLocked(err error) {
	if t.finished {
		return
	}
	t.state = taskFinal
	t.finished = true
	t.err = err
	close(t.done)
}

// PostTask schedules handler to run once deadline has passed. A deadline
// already in the past dispatches on the next run iteration; ipc.TimeNever
// parks the task until it is canceled or the loop shuts down. Tasks with
// equal deadlines dispatch in posting order. Fails with api.ErrBadState
// after shutdown.
func (l *Loop) PostTask(deadline time.Time, handler TaskHandler) (*Task, error) {
	if handler == nil {
		return nil, api.ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Shutdown {
		return nil, api.ErrBadState
	}
	t := &Task{
		loop:     l,
		deadline: deadline,
		handler:  handler,
		done:     make(chan struct{}),
	}
	i := len(l.tasks)
	for i > 0 && l.tasks[i-1].deadline.After(deadline) {
		i--
	}
	l.tasks = append(l.tasks, nil)
	copy(l.tasks[i+1:], l.tasks[i:])
	l.tasks[i] = t
	if i == 0 {
		l.armTimerLocked()
	}
	return t, nil
}

// CancelTask revokes a pending task so its handler will not run. Returns
// api.ErrNotFound when the task already dispatched, was already canceled,
// or was drained; like CancelWait, that is the benign side of a race.
// Canceling the head task re-evaluates the wake-up timer against the new
// head.
func (l *Loop) CancelTask(t *Task) error {
	if t == nil || t.loop != l {
		return api.ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	switch t.state {
	case taskDue:
		for i, d := range l.due {
			if d == t {
				l.due = append(l.due[:i], l.due[i+1:]...)
				break
			}
		}
	case taskPending:
		for i, p := range l.tasks {
			if p == t {
				l.tasks = append(l.tasks[:i], l.tasks[i+1:]...)
				if i == 0 {
					l.armTimerLocked()
				}
				break
			}
		}
	default:
		return api.ErrNotFound
	}
	t.finishLocked(api.ErrCanceled)
	return nil
}

// armTimerLocked points the port timer at the earliest pending deadline,
// disarming it when nothing can ever come due. Re-arming is suppressed
// while a drain is in progress; the drainer re-arms when done.
func (l *Loop) armTimerLocked() {
	if l.dispatchingTasks {
		return
	}
	if len(l.tasks) > 0 && !ipc.IsNever(l.tasks[0].deadline) {
		d := l.tasks[0].deadline
		if !l.timerArmed || !l.timerAt.Equal(d) {
			l.timerArmed = true
			l.timerAt = d
			l.port.SetTimer(d)
		}
		return
	}
	if l.timerArmed {
		l.timerArmed = false
		l.port.ClearTimer()
	}
}

// dispatchTasks drains everything due. Exactly one worker drains at a
// time; the pending list is only re-scanned for a fresh batch once the
// current batch is empty, so tasks posting more due tasks cannot starve
// the re-arm.
func (l *Loop) dispatchTasks() {
	l.mu.Lock()
	l.timerArmed = false
	if l.dispatchingTasks {
		l.mu.Unlock()
		return
	}
	l.dispatchingTasks = true
	for {
		if len(l.due) == 0 {
			now := l.Clock().Now()
			n := 0
			for n < len(l.tasks) && !l.tasks[n].deadline.After(now) {
				n++
			}
			if n == 0 {
				break
			}
			for _, t := range l.tasks[:n] {
				t.state = taskDue
			}
			l.due = append(l.due, l.tasks[:n]...)
			l.tasks = l.tasks[n:]
		}
		t := l.due[0]
		l.due = l.due[1:]
		t.state = taskFinal
		l.mu.Unlock()

		atomic.AddUint64(&l.nTasks, 1)
		t.handler(l, t, nil)
		t.finish(nil)

		l.mu.Lock()
	}
	l.dispatchingTasks = false
	l.armTimerLocked()
	l.mu.Unlock()
}
