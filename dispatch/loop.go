// File: dispatch/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Loop core: construction, the Run state machine and lifecycle transitions.
// Collections (waits, tasks, bells) and the task-drain guard all sit behind
// one mutex; handlers always run with it released.

package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creachadair/taskgroup"
	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/internal/concurrency"
	"github.com/momentics/hioload-ipc/ipc"
)

// LoopState is the lifecycle state of a Loop.
type LoopState int32

const (
	// Runnable admits new work and dispatches completions.
	Runnable LoopState = iota
	// Quit stops the runners; new work is still admitted and the state is
	// reversible through ResetQuit.
	Quit
	// Shutdown is terminal. All new work is rejected with api.ErrBadState.
	Shutdown
)

func (s LoopState) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Quit:
		return "quit"
	case Shutdown:
		return "shutdown"
	}
	return "unknown"
}

// Stats is a point-in-time snapshot of loop activity.
type Stats struct {
	State             LoopState
	PendingWaits      int
	PendingTasks      int
	PendingBells      int
	ActiveRunners     int
	SignalsDispatched uint64
	TasksDispatched   uint64
	PacketsDispatched uint64
	BellsDispatched   uint64
}

// Loop multiplexes waits, tasks, packets and bells over one completion port.
type Loop struct {
	port     *ipc.Port
	ownsPort bool
	log      *zap.Logger
	affinity bool

	mu               sync.Mutex
	state            LoopState
	nextKey          uint64
	waits            map[uint64]*Wait
	tasks            []*Task // deadline-ascending, FIFO on ties
	due              []*Task // pulled due batch, drained one at a time
	dispatchingTasks bool
	timerArmed       bool
	timerAt          time.Time
	bells            map[uint64]*BellBinding

	activeRunners int32
	workerSeq     int32
	workers       taskgroup.Group
	shutdownOnce  sync.Once
	shutdownDone  chan struct{}

	nSignals uint64
	nTasks   uint64
	nPackets uint64
	nBells   uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithPort runs the loop over an existing port instead of a private one.
// The caller keeps ownership; Shutdown will not close it.
func WithPort(p *ipc.Port) Option {
	return func(l *Loop) { l.port = p; l.ownsPort = false }
}

// WithClock builds the private port on the given clock. Ignored when
// WithPort is also supplied.
func WithClock(c api.Clock) Option {
	return func(l *Loop) {
		if l.ownsPort {
			l.port = ipc.NewPort(ipc.WithClock(c))
		}
	}
}

// WithLogger attaches a structured logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// WithWorkerAffinity pins loop-started workers to CPUs round-robin.
func WithWorkerAffinity() Option {
	return func(l *Loop) { l.affinity = true }
}

// New creates a runnable loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		port:         ipc.NewPort(),
		ownsPort:     true,
		log:          zap.NewNop(),
		nextKey:      ipc.KeyReservedMax + 1,
		waits:        make(map[uint64]*Wait),
		bells:        make(map[uint64]*BellBinding),
		shutdownDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Port exposes the underlying completion port.
func (l *Loop) Port() *ipc.Port { return l.port }

// Clock returns the loop's time source.
func (l *Loop) Clock() api.Clock { return l.port.Clock() }

// State returns the current lifecycle state.
func (l *Loop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stats returns a snapshot of loop activity.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	st := Stats{
		State:        l.state,
		PendingWaits: len(l.waits),
		PendingTasks: len(l.tasks) + len(l.due),
		PendingBells: len(l.bells),
	}
	l.mu.Unlock()
	st.ActiveRunners = int(atomic.LoadInt32(&l.activeRunners))
	st.SignalsDispatched = atomic.LoadUint64(&l.nSignals)
	st.TasksDispatched = atomic.LoadUint64(&l.nTasks)
	st.PacketsDispatched = atomic.LoadUint64(&l.nPackets)
	st.BellsDispatched = atomic.LoadUint64(&l.nBells)
	return st
}

func controlPacket() ipc.Packet {
	return ipc.Packet{Kind: ipc.PacketUser, Key: ipc.KeyControl}
}

// Run blocks on the completion port and dispatches events until deadline
// passes, the loop quits, or, when once is set, a single event has been
// dispatched. Pass ipc.TimeNever to run until told otherwise. Returns
// api.ErrTimedOut on deadline, api.ErrCanceled on quit, api.ErrBadState
// after shutdown.
func (l *Loop) Run(deadline time.Time, once bool) error {
	atomic.AddInt32(&l.activeRunners, 1)
	defer atomic.AddInt32(&l.activeRunners, -1)
	for {
		if err := l.runOnce(deadline); err != nil {
			return err
		}
		if once {
			return nil
		}
	}
}

// RunUntilIdle dispatches everything already ready without blocking.
func (l *Loop) RunUntilIdle() error {
	atomic.AddInt32(&l.activeRunners, 1)
	defer atomic.AddInt32(&l.activeRunners, -1)
	past := l.Clock().Now().Add(-time.Nanosecond)
	for {
		err := l.runOnce(past)
		if errors.Is(err, api.ErrTimedOut) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (l *Loop) runOnce(deadline time.Time) error {
	l.mu.Lock()
	st := l.state
	l.mu.Unlock()
	switch st {
	case Shutdown:
		return api.ErrBadState
	case Quit:
		return api.ErrCanceled
	}

	pkt, err := l.port.Wait(deadline)
	if err != nil {
		if errors.Is(err, api.ErrBadHandle) {
			// Port torn down underneath us by Shutdown.
			return api.ErrBadState
		}
		return err
	}
	return l.dispatch(pkt)
}

// dispatch routes one packet. Exactly one handler (at most) runs per call,
// always without the loop lock.
func (l *Loop) dispatch(pkt ipc.Packet) error {
	switch {
	case pkt.Kind == ipc.PacketUser && pkt.Key == ipc.KeyControl:
		l.mu.Lock()
		st := l.state
		l.mu.Unlock()
		if st != Runnable {
			return api.ErrCanceled
		}
		// Stale wake packet from a quit that has since been reset.
		return nil
	case pkt.Kind == ipc.PacketTimer:
		l.dispatchTasks()
		return nil
	case pkt.Kind == ipc.PacketSignal:
		l.dispatchSignal(pkt)
		return nil
	case pkt.Kind == ipc.PacketBell:
		l.dispatchBell(pkt)
		return nil
	case pkt.Kind == ipc.PacketUser:
		l.dispatchReceiver(pkt)
		return nil
	}
	return nil
}

// Quit moves the loop to the Quit state and wakes every blocked runner with
// one control packet each. No-op unless the loop is Runnable.
func (l *Loop) Quit() {
	l.mu.Lock()
	if l.state != Runnable {
		l.mu.Unlock()
		return
	}
	l.state = Quit
	l.mu.Unlock()
	l.log.Debug("loop quitting")

	n := int(atomic.LoadInt32(&l.activeRunners))
	for i := 0; i < n; i++ {
		l.port.Queue(controlPacket())
	}
}

// ResetQuit returns a quit loop to Runnable so Run may be called again.
// Fails with api.ErrBadState after Shutdown or while runners are still
// inside Run.
func (l *Loop) ResetQuit() error {
	if atomic.LoadInt32(&l.activeRunners) > 0 {
		return api.ErrBadState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case Shutdown:
		return api.ErrBadState
	case Quit:
		l.state = Runnable
	}
	return nil
}

// StartWorkers launches n goroutines running the loop until it quits or
// shuts down. Workers started here are joined by Shutdown.
func (l *Loop) StartWorkers(n int) error {
	if n <= 0 {
		return api.ErrInvalidArgument
	}
	l.mu.Lock()
	if l.state == Shutdown {
		l.mu.Unlock()
		return api.ErrBadState
	}
	l.mu.Unlock()

	for i := 0; i < n; i++ {
		id := int(atomic.AddInt32(&l.workerSeq, 1)) - 1
		l.workers.Go(func() error {
			if l.affinity {
				if err := concurrency.PinWorker(id); err != nil {
					l.log.Warn("worker pin failed", zap.Int("worker", id), zap.Error(err))
				}
			}
			err := l.Run(ipc.TimeNever, false)
			if errors.Is(err, api.ErrCanceled) || errors.Is(err, api.ErrBadState) {
				return nil
			}
			return err
		})
	}
	l.log.Debug("workers started", zap.Int("count", n))
	return nil
}

// Shutdown terminates the loop: rejects new work, wakes and joins workers
// started by StartWorkers, then drains every pending wait, task and bell
// binding by invoking its handler once with api.ErrCanceled. Callers running
// the loop on their own goroutines must have returned from Run before
// calling Shutdown. Idempotent; concurrent callers block until the first
// shutdown completes.
func (l *Loop) Shutdown() {
	l.shutdownOnce.Do(func() {
		l.doShutdown()
		close(l.shutdownDone)
	})
	<-l.shutdownDone
}

func (l *Loop) doShutdown() {
	l.mu.Lock()
	l.state = Shutdown
	l.mu.Unlock()
	l.log.Debug("loop shutting down")

	n := int(atomic.LoadInt32(&l.activeRunners))
	for i := 0; i < n; i++ {
		l.port.Queue(controlPacket())
	}
	l.workers.Wait()

	l.mu.Lock()
	waits := make([]*Wait, 0, len(l.waits))
	for _, w := range l.waits {
		waits = append(waits, w)
	}
	l.waits = make(map[uint64]*Wait)
	tasks := append(l.due, l.tasks...)
	l.due, l.tasks = nil, nil
	for _, t := range tasks {
		// A late CancelTask must see these as gone, not pending.
		t.state = taskFinal
	}
	bells := make([]*BellBinding, 0, len(l.bells))
	for _, bb := range l.bells {
		bells = append(bells, bb)
	}
	l.bells = make(map[uint64]*BellBinding)
	l.timerArmed = false
	l.port.ClearTimer()
	l.mu.Unlock()

	for _, w := range waits {
		l.port.Cancel(w.obj, w.key)
		w.handler(l, w, api.ErrCanceled, ipc.SignalNone, 0)
		w.finish(api.ErrCanceled)
	}
	for _, t := range tasks {
		t.handler(l, t, api.ErrCanceled)
		t.finish(api.ErrCanceled)
	}
	for _, bb := range bells {
		bb.bell.Detach()
		bb.handler(l, bb, api.ErrCanceled, 0)
	}

	if l.ownsPort {
		l.port.Close()
	}
	l.log.Debug("loop shut down",
		zap.Int("drained_waits", len(waits)),
		zap.Int("drained_tasks", len(tasks)),
		zap.Int("drained_bells", len(bells)))
}
