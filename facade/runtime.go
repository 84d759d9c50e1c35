// File: facade/runtime.go
// Unified facade layer for the hioload-ipc library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime bundles the dispatch loop, its worker pool, the control surface
// and a logger behind one object with a single lifecycle. It hands out
// proxies, stub controllers and pumps bound to the shared loop, and
// implements api.GracefulShutdown for unified teardown.

package facade

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/adapters"
	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/control"
	"github.com/momentics/hioload-ipc/dispatch"
	"github.com/momentics/hioload-ipc/pump"
	"github.com/momentics/hioload-ipc/rpc"
)

// Version is the library version reported through ServiceInfo.
const Version = "0.9.0"

// Config holds runtime parameters. All fields are fixed for the lifetime
// of a Runtime; reconfiguration means building a new one.
type Config struct {
	NumWorkers      int  `toml:"num_workers"`       // dispatch workers started by Start
	ReadBatch       int  `toml:"read_batch"`        // messages drained per channel readiness
	CPUAffinity     bool `toml:"cpu_affinity"`      // pin workers to CPUs round-robin
	EnableMetrics   bool `toml:"enable_metrics"`    // publish loop stats to the metrics registry
	EnableDebug     bool `toml:"enable_debug"`      // register loop debug probes
	EnableLogging   bool `toml:"enable_logging"`    // zap logger instead of a nop one
	Development     bool `toml:"development"`       // development logger encoding
	StatsIntervalMS int  `toml:"stats_interval_ms"` // loop stats refresh period, 0 disables
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		NumWorkers:      4,
		ReadBatch:       pump.DefaultReadBatch,
		CPUAffinity:     false,
		EnableMetrics:   true,
		EnableDebug:     true,
		EnableLogging:   false,
		StatsIntervalMS: 5000,
	}
}

// LoadConfig reads a TOML file over DefaultConfig, so absent keys keep
// their defaults. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := control.LoadFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Runtime is the top-level entry point aggregating all core components.
type Runtime struct {
	id   string
	cfg  *Config
	log  *zap.Logger
	loop *dispatch.Loop
	ctrl *adapters.ControlAdapter
	exec *adapters.ExecutorAdapter

	mu        sync.Mutex
	started   bool
	startedAt time.Time
}

var _ api.GracefulShutdown = (*Runtime)(nil)

// New builds a Runtime from cfg. Passing nil uses DefaultConfig. The
// dispatch loop is created immediately; workers start in Start.
func New(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := zap.NewNop()
	if cfg.EnableLogging {
		var err error
		if cfg.Development {
			log, err = zap.NewDevelopment()
		} else {
			log, err = zap.NewProduction()
		}
		if err != nil {
			return nil, err
		}
	}

	r := &Runtime{
		id:   uuid.NewString(),
		cfg:  cfg,
		log:  log,
		ctrl: adapters.NewControlAdapter(),
	}

	opts := []dispatch.Option{dispatch.WithLogger(log)}
	if cfg.CPUAffinity {
		opts = append(opts, dispatch.WithWorkerAffinity())
	}
	r.loop = dispatch.New(opts...)
	r.exec = adapters.NewExecutorAdapter(r.loop, 0)

	_ = r.ctrl.SetConfig(map[string]any{
		"runtime_id":  r.id,
		"num_workers": cfg.NumWorkers,
		"read_batch":  cfg.ReadBatch,
	})
	if cfg.EnableDebug {
		r.ctrl.RegisterDebugProbe("loop.stats", func() any { return r.loop.Stats() })
		r.ctrl.RegisterDebugProbe("loop.state", func() any { return r.loop.State().String() })
	}
	return r, nil
}

// Start launches the configured worker pool and begins publishing loop
// stats. Starting an already started Runtime is a no-op.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if err := r.loop.StartWorkers(r.cfg.NumWorkers); err != nil {
		return err
	}
	r.started = true
	r.startedAt = time.Now()
	if r.cfg.EnableMetrics {
		r.publishStats()
		r.scheduleStatsTask()
	}
	r.log.Info("runtime started",
		zap.String("id", r.id),
		zap.Int("workers", r.cfg.NumWorkers))
	return nil
}

// Shutdown stops the worker pool and the loop. Outstanding waits, tasks
// and bound pumps complete with api.ErrCanceled. Idempotent.
func (r *Runtime) Shutdown() error {
	r.mu.Lock()
	wasStarted := r.started
	r.started = false
	r.mu.Unlock()

	err := r.exec.Shutdown()
	r.loop.Shutdown()
	if wasStarted {
		r.log.Info("runtime stopped", zap.String("id", r.id))
	}
	_ = r.log.Sync()
	return err
}

// publishStats copies one loop stats snapshot into the metrics registry.
func (r *Runtime) publishStats() {
	st := r.loop.Stats()
	r.ctrl.SetMetric("loop.state", st.State.String())
	r.ctrl.SetMetric("loop.pending_waits", int64(st.PendingWaits))
	r.ctrl.SetMetric("loop.pending_tasks", int64(st.PendingTasks))
	r.ctrl.SetMetric("loop.pending_bells", int64(st.PendingBells))
	r.ctrl.SetMetric("loop.active_runners", int64(st.ActiveRunners))
	r.ctrl.SetMetric("loop.signals_dispatched", int64(st.SignalsDispatched))
	r.ctrl.SetMetric("loop.tasks_dispatched", int64(st.TasksDispatched))
	r.ctrl.SetMetric("loop.packets_dispatched", int64(st.PacketsDispatched))
	r.ctrl.SetMetric("loop.bells_dispatched", int64(st.BellsDispatched))
}

// scheduleStatsTask arms the next stats refresh. Caller holds r.mu.
func (r *Runtime) scheduleStatsTask() {
	if r.cfg.StatsIntervalMS <= 0 {
		return
	}
	interval := time.Duration(r.cfg.StatsIntervalMS) * time.Millisecond
	deadline := r.loop.Clock().Now().Add(interval)
	_, _ = r.loop.PostTask(deadline, func(l *dispatch.Loop, t *dispatch.Task, err error) {
		if err != nil {
			// Canceled at shutdown.
			return
		}
		r.publishStats()
		r.mu.Lock()
		if r.started {
			r.scheduleStatsTask()
		}
		r.mu.Unlock()
	})
}

// ID returns the unique instance identifier of this Runtime.
func (r *Runtime) ID() string { return r.id }

// Loop exposes the shared dispatch loop.
func (r *Runtime) Loop() *dispatch.Loop { return r.loop }

// Control exposes the runtime control surface.
func (r *Runtime) Control() api.Control { return r.ctrl }

// Executor exposes a task executor backed by the shared loop workers.
func (r *Runtime) Executor() api.Executor { return r.exec }

// Logger exposes the runtime logger.
func (r *Runtime) Logger() *zap.Logger { return r.log }

// Info reports descriptive runtime information.
func (r *Runtime) Info() api.ServiceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return api.ServiceInfo{
		Name:      "hioload-ipc",
		Version:   Version,
		Build:     r.id,
		StartedAt: r.startedAt,
	}
}

// Submit schedules a task on the shared loop workers.
func (r *Runtime) Submit(task func()) error {
	return r.exec.Submit(task)
}

// NewPump builds a message pump on the shared loop. The configured read
// batch applies unless overridden through opts.
func (r *Runtime) NewPump(h pump.Handler, opts ...pump.Option) *pump.Pump {
	all := append([]pump.Option{pump.WithReadBatch(r.cfg.ReadBatch)}, opts...)
	return pump.New(r.loop, h, all...)
}

// NewProxy builds an unbound client proxy on the shared loop.
func (r *Runtime) NewProxy() *rpc.Proxy {
	return rpc.NewProxy(r.loop)
}

// NewStubController builds an unbound stub controller on the shared loop,
// dispatching to st.
func (r *Runtime) NewStubController(st rpc.Stub) *rpc.StubController {
	c := rpc.NewStubController(r.loop)
	c.SetStub(st)
	return c
}
