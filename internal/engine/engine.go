// Package engine owns an object universe on a single goroutine and drives
// its incremental collector once per tick. Everything else talks to the
// universe through Submit so the graph is never touched concurrently.
package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buildbarn/bb-storage/pkg/clock"

	"github.com/coreobjects/coreobjects/pkg/config"
	pcontext "github.com/coreobjects/coreobjects/pkg/context"
	"github.com/coreobjects/coreobjects/pkg/contract"
	"github.com/coreobjects/coreobjects/pkg/gc"
	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/object"
	"github.com/coreobjects/coreobjects/pkg/types"
)

// TickFunc runs on the owning goroutine before the collector on every tick.
// Returning an error stops the engine.
type TickFunc func(ctx context.Context, u *object.Universe, tick uint64) error

type task struct {
	fn   func(*object.Universe)
	done chan struct{}
}

// Engine is the tick loop around one universe and its collector
type Engine struct {
	log        logger.Logger
	clock      clock.Clock
	universe   *object.Universe
	collector  *gc.Collector
	configPath string
	onTick     TickFunc

	tasks   chan task
	configs chan *types.CollectorConfig

	ticks atomic.Uint64

	mu          sync.RWMutex
	cfg         *types.CollectorConfig
	lastReport  types.CycleReport
	isRunning   bool
	cancel      context.CancelFunc
	done        chan struct{}
	err         error
	metricsAddr string
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the system clock driving ticks and collector budgets
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithConfigPath enables hot reload of the configuration file at path
func WithConfigPath(path string) Option {
	return func(e *Engine) { e.configPath = path }
}

// WithTickFunc installs a function run at the start of every tick
func WithTickFunc(fn TickFunc) Option {
	return func(e *Engine) { e.onTick = fn }
}

// New creates an engine for u. The collector is created here so it shares
// the engine clock.
func New(u *object.Universe, cfg *types.CollectorConfig, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		log:      log.WithComponent("engine"),
		clock:    clock.SystemClock,
		universe: u,
		cfg:      cfg,
		tasks:    make(chan task),
		configs:  make(chan *types.CollectorConfig, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	close(e.done)

	gcOpts := []gc.Option{gc.WithClock(e.clock), gc.WithLogger(log)}
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		gcOpts = append(gcOpts, gc.WithMetrics())
		registerMetrics()
	}
	e.collector = gc.NewCollector(u, gcOpts...)
	return e
}

// Collector returns the collector driven by the engine. Only use it from
// inside Submit.
func (e *Engine) Collector() *gc.Collector { return e.collector }

// Ticks returns the number of ticks run so far
func (e *Engine) Ticks() uint64 { return e.ticks.Load() }

// Config returns the configuration currently applied
func (e *Engine) Config() types.CollectorConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return *e.cfg
}

// LastReport returns the report of the last completed collection cycle
func (e *Engine) LastReport() types.CycleReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastReport
}

// MetricsAddr returns the address the metrics endpoint listens on, or ""
func (e *Engine) MetricsAddr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metricsAddr
}

// IsRunning reports whether the tick loop is active
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isRunning
}

// Start launches the tick loop and, when configured, the metrics endpoint
// and the configuration watcher. It returns once they are running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isRunning {
		return ErrEngineRunning
	}

	ctx = pcontext.WithCorrelationID(ctx, "")
	ctx, cancel := context.WithCancel(ctx)

	var listener net.Listener
	if m := e.cfg.Metrics; m != nil && m.Enabled {
		l, err := net.Listen("tcp", m.Address)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to listen for metrics: %w", err)
		}
		listener = l
		e.metricsAddr = l.Addr().String()
	}

	var reload *config.ReloadManager
	if e.configPath != "" {
		reload = config.NewReloadManager(e.configPath, e.log)
		reload.AddCallback(func(ev config.ReloadEvent) {
			if ev.Err != nil {
				e.log.Warn("Keeping current configuration", logger.WithField("error", ev.Err))
				return
			}
			e.ApplyConfig(ev.Config)
		})
		if err := reload.StartWatching(); err != nil {
			cancel()
			if listener != nil {
				listener.Close()
			}
			return fmt.Errorf("failed to watch configuration: %w", err)
		}
	}

	prevHook := contract.SetHook(func(v *contract.Violation) {
		e.log.Error("Contract violation", logger.WithField("violation", v.Message))
	})

	group, gctx := NewSafeGroup(ctx, e.log)
	group.Go(func() error { return e.loop(gctx) })
	if listener != nil {
		path := e.cfg.Metrics.Path
		group.Go(func() error { return serveMetrics(gctx, listener, path, e.log) })
	}

	e.isRunning = true
	e.cancel = cancel
	e.err = nil
	done := make(chan struct{})
	e.done = done

	go func() {
		err := group.Wait()
		cancel()
		if reload != nil {
			reload.StopWatching()
		}
		contract.SetHook(prevHook)

		e.mu.Lock()
		e.isRunning = false
		e.metricsAddr = ""
		e.err = err
		e.mu.Unlock()
		close(done)
	}()

	e.log.Info("Engine started",
		logger.WithField("budget", e.cfg.Budget.Std()),
		logger.WithField("tickInterval", e.cfg.TickInterval.Std()))
	return nil
}

// Stop cancels the tick loop and waits for it to exit or for ctx to expire
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.isRunning {
		e.mu.Unlock()
		return ErrEngineNotRunning
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	e.log.Info("Stopping engine...")
	cancel()

	select {
	case <-done:
		e.log.Info("Engine stopped gracefully", logger.WithField("ticks", e.Ticks()))
		return e.Err()
	case <-ctx.Done():
		e.log.Warn("Engine shutdown timed out", logger.WithField("error", ctx.Err()))
		return ctx.Err()
	}
}

// Wait blocks until the engine stops and returns the error that stopped it
func (e *Engine) Wait() error {
	e.mu.RLock()
	done := e.done
	e.mu.RUnlock()
	<-done
	return e.Err()
}

// Err returns the error that stopped the last run, if any
func (e *Engine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// Submit runs fn on the owning goroutine and waits for it to return
func (e *Engine) Submit(ctx context.Context, fn func(*object.Universe)) error {
	e.mu.RLock()
	running, done := e.isRunning, e.done
	e.mu.RUnlock()
	if !running {
		return ErrEngineNotRunning
	}

	t := task{fn: fn, done: make(chan struct{})}
	select {
	case e.tasks <- t:
	case <-done:
		return ErrEngineNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-t.done:
		return nil
	case <-done:
		return ErrEngineNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyConfig hands a new configuration to the tick loop. Only the budget,
// tick interval and log level take effect while running.
func (e *Engine) ApplyConfig(cfg *types.CollectorConfig) {
	for {
		select {
		case e.configs <- cfg:
			return
		default:
		}
		// Replace a pending configuration that was not applied yet
		select {
		case <-e.configs:
		default:
		}
	}
}

func (e *Engine) loop(ctx context.Context) error {
	timer, tick := e.clock.NewTimer(e.tickInterval())
	defer func() { timer.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil

		case t := <-e.tasks:
			t.fn(e.universe)
			close(t.done)

		case cfg := <-e.configs:
			e.applyConfig(cfg)
			timer.Stop()
			timer, tick = e.clock.NewTimer(e.tickInterval())

		case <-tick:
			if err := e.runTick(ctx); err != nil {
				return err
			}
			timer, tick = e.clock.NewTimer(e.tickInterval())
		}
	}
}

func (e *Engine) runTick(ctx context.Context) error {
	n := e.ticks.Add(1)
	ctx = pcontext.WithTick(ctx, n)
	ctx = pcontext.WithOperation(ctx, "tick")

	if e.onTick != nil {
		if err := e.onTick(ctx, e.universe, n); err != nil {
			return fmt.Errorf("tick %d: %w", n, err)
		}
	}

	e.mu.RLock()
	budget := e.cfg.Budget.Std()
	metrics := e.cfg.Metrics != nil && e.cfg.Metrics.Enabled
	e.mu.RUnlock()

	e.collector.CollectContext(ctx, budget)
	// A call that ends in NewGC completed a cycle
	if e.collector.IsGCComplete() {
		e.mu.Lock()
		e.lastReport = e.collector.Stats()
		e.mu.Unlock()
	}

	if metrics {
		engineTicks.Inc()
		engineObjects.Set(float64(e.universe.ObjectCount()))
	}
	return nil
}

func (e *Engine) applyConfig(cfg *types.CollectorConfig) {
	e.mu.Lock()
	old := e.cfg
	next := *old
	next.Budget = cfg.Budget
	next.TickInterval = cfg.TickInterval
	next.LogLevel = cfg.LogLevel
	e.cfg = &next
	e.mu.Unlock()

	if next.LogLevel != old.LogLevel && next.LogLevel != "" {
		if leveled, ok := e.log.(interface{ SetLevel(string) error }); ok {
			if err := leveled.SetLevel(string(next.LogLevel)); err != nil {
				e.log.Warn("Ignoring log level", logger.WithField("error", err))
			}
		}
	}

	e.log.Info("Applied configuration",
		logger.WithField("budget", next.Budget.Std()),
		logger.WithField("tickInterval", next.TickInterval.Std()))
}

func (e *Engine) tickInterval() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.TickInterval.Std()
}
