package engine_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreobjects/coreobjects/internal/engine"
	"github.com/coreobjects/coreobjects/internal/workload"
	"github.com/coreobjects/coreobjects/pkg/config"
	"github.com/coreobjects/coreobjects/pkg/contract"
	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/object"
	"github.com/coreobjects/coreobjects/pkg/types"
)

type fakeTimer struct{}

func (fakeTimer) Stop() bool { return true }

// manualClock only fires timers when the test sends on ticks
type manualClock struct {
	clock.Clock
	ticks chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{Clock: clock.SystemClock, ticks: make(chan time.Time)}
}

func (m *manualClock) NewTimer(time.Duration) (clock.Timer, <-chan time.Time) {
	return fakeTimer{}, m.ticks
}

func (m *manualClock) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ticks <- time.Now():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not accept tick")
	}
}

type Thing struct {
	object.Base
	Next *Thing
}

func newEngine(t *testing.T, cfg *types.CollectorConfig, opts ...engine.Option) (*engine.Engine, *manualClock) {
	t.Helper()
	u := object.NewUniverse(object.WithLogger(logger.NewNop()))
	u.MustRegisterClass("Thing", (*Thing)(nil))

	clk := newManualClock()
	if cfg == nil {
		cfg = config.NewManager().GetDefaultConfig()
		cfg.Budget = 0
	}
	opts = append([]engine.Option{engine.WithClock(clk)}, opts...)
	e := engine.New(u, cfg, logger.NewNop(), opts...)
	t.Cleanup(func() {
		if e.IsRunning() {
			e.Stop(context.Background())
		}
	})
	return e, clk
}

func TestEngine_CollectsOnTick(t *testing.T) {
	e, clk := newEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	var root, orphan *Thing
	require.NoError(t, e.Submit(ctx, func(u *object.Universe) {
		var err error
		root, err = object.Create[Thing](u, "Root", nil, types.FlagRootObject)
		assert.NoError(t, err)
		orphan, err = object.Create[Thing](u, "Orphan", nil)
		assert.NoError(t, err)
	}))

	clk.tick(t)

	var cleared int
	require.NoError(t, e.Submit(ctx, func(u *object.Universe) {
		cleared = e.Collector().LastClearCount()
		assert.Nil(t, u.FindObject("Orphan"))
		assert.NotNil(t, u.FindObject("Root"))
	}))
	assert.Equal(t, 1, cleared)
	assert.Equal(t, uint64(1), e.Ticks())
	assert.Equal(t, 1, e.LastReport().ObjectsCleared)
	assert.True(t, orphan.Flags().Has(types.FlagDeleted))
	assert.False(t, root.Flags().Has(types.FlagDeleted))

	require.NoError(t, e.Stop(ctx))
	assert.False(t, e.IsRunning())
}

func TestEngine_Lifecycle(t *testing.T) {
	e, _ := newEngine(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, e.Submit(ctx, func(*object.Universe) {}), engine.ErrEngineNotRunning)
	assert.ErrorIs(t, e.Stop(ctx), engine.ErrEngineNotRunning)

	require.NoError(t, e.Start(ctx))
	assert.ErrorIs(t, e.Start(ctx), engine.ErrEngineRunning)
	require.NoError(t, e.Stop(ctx))

	// An engine can be restarted after a stop
	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Stop(ctx))
}

func TestEngine_TickFuncErrorStopsEngine(t *testing.T) {
	boom := errors.New("boom")
	e, clk := newEngine(t, nil, engine.WithTickFunc(func(context.Context, *object.Universe, uint64) error {
		return boom
	}))
	require.NoError(t, e.Start(context.Background()))

	clk.tick(t)

	err := e.Wait()
	assert.ErrorIs(t, err, boom)
	assert.False(t, e.IsRunning())
}

func TestEngine_ViolationStopsEngine(t *testing.T) {
	if !contract.Enabled() {
		t.Skip("contract checks compiled out")
	}
	e, _ := newEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	err := e.Submit(ctx, func(u *object.Universe) {
		contract.Fail("broken invariant")
	})
	assert.ErrorIs(t, err, engine.ErrEngineNotRunning)
	assert.ErrorIs(t, e.Wait(), contract.ErrViolation)
}

func TestEngine_ApplyConfig(t *testing.T) {
	e, _ := newEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	next := config.NewManager().GetDefaultConfig()
	next.Budget = types.Duration(7 * time.Millisecond)
	next.TickInterval = types.Duration(40 * time.Millisecond)
	e.ApplyConfig(next)

	// The loop picks between ready events at random
	require.Eventually(t, func() bool {
		_ = e.Submit(ctx, func(*object.Universe) {})
		return e.Config().Budget.Std() == 7*time.Millisecond
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, e.Config().TickInterval.Std())
}

func TestEngine_MetricsEndpoint(t *testing.T) {
	cfg := config.NewManager().GetDefaultConfig()
	cfg.Metrics = &types.MetricsConfig{Enabled: true, Address: "127.0.0.1:0", Path: "/metrics"}
	e, clk := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background()))

	clk.tick(t)
	require.NoError(t, e.Submit(context.Background(), func(*object.Universe) {}))

	resp, err := http.Get("http://" + e.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "coreobjects_engine_ticks_total"))
	assert.True(t, strings.Contains(string(body), "coreobjects_gc_cycles_completed_total"))
}

func TestEngine_DrivesWorkload(t *testing.T) {
	cfg := config.NewManager().GetDefaultConfig()
	cfg.Budget = 0
	wl := types.WorkloadConfig{Seed: 3, Packages: 2, ObjectsPerPackage: 16, Churn: 0.25}
	gen := workload.New(wl, logger.NewNop())

	u := object.NewUniverse(object.WithLogger(logger.NewNop()))
	require.NoError(t, workload.RegisterClasses(u))
	require.NoError(t, gen.Populate(u))

	clk := newManualClock()
	e := engine.New(u, cfg, logger.NewNop(),
		engine.WithClock(clk),
		engine.WithTickFunc(func(_ context.Context, u *object.Universe, _ uint64) error {
			return gen.Tick(u)
		}))
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	for i := 0; i < 5; i++ {
		clk.tick(t)
	}
	require.NoError(t, e.Submit(ctx, func(*object.Universe) {}))

	assert.Equal(t, uint64(5), e.Ticks())
	assert.NotEmpty(t, e.LastReport().CycleID)
	assert.GreaterOrEqual(t, gen.Stats().Created, 32)
}

func TestSafeGroup_RecoversPanics(t *testing.T) {
	g, _ := engine.NewSafeGroup(context.Background(), logger.NewNop())
	g.Go(func() error { panic("kaboom") })
	err := g.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestSafeGroup_IgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := engine.NewSafeGroup(ctx, logger.NewNop())
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})
	cancel()
	assert.NoError(t, g.Wait())
}
