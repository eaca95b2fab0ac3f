package embedded

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs-embedded/pkg/config"
)

const waitTimeout = 5 * time.Second

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

func TestNew(t *testing.T) {
	t.Run("RequiresBuilder", func(t *testing.T) {
		_, err := New(Options{Loader: staticLoader(testConfig())})
		assert.ErrorIs(t, err, ErrNoBuilder)
	})

	t.Run("LoaderError", func(t *testing.T) {
		loadErr := errors.New("no such file")
		_, err := New(Options{
			Builder: newFakeBuilder(),
			Loader: ConfigLoaderFunc(func(...string) (*config.Config, error) {
				return nil, loadErr
			}),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, loadErr)
		assert.Contains(t, err.Error(), "failed to load configuration")
	})

	t.Run("PassesConfigPaths", func(t *testing.T) {
		var got []string
		_, err := New(Options{
			Builder:     newFakeBuilder(),
			ConfigPaths: []string{"/a.yaml", "/b.yaml"},
			Loader: ConfigLoaderFunc(func(paths ...string) (*config.Config, error) {
				got = paths
				return testConfig(), nil
			}),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"/a.yaml", "/b.yaml"}, got)
	})

	t.Run("SystemInformation", func(t *testing.T) {
		c := newTestController(t, newFakeBuilder())
		info := c.SystemInfo()
		assert.True(t, info.Embedded)
		assert.Equal(t, "test", info.Version)
		assert.Equal(t, c.Config().Node.DataDir, info.DataDir)
		assert.NotEmpty(t, info.Hostname)
		assert.False(t, info.CreatedAt.IsZero())
	})
}

func TestMetricsAvailableBeforeStart(t *testing.T) {
	b := newFakeBuilder()
	c := newTestController(t, b)

	require.NotNil(t, c.Metrics())
	require.NotNil(t, c.Metrics().Registerer())
	assert.Equal(t, StateIdle, c.State())
	assert.Zero(t, b.persistenceCalls.Load())

	require.NoError(t, c.Start().Wait(waitCtx(t)))
	deps := b.lastDeps.Load().(Deps)
	assert.Same(t, c.Metrics(), deps.Metrics)
}

func TestStartConcurrentCallsShareOneOutcome(t *testing.T) {
	b := newFakeBuilder()
	b.persistence.ready = make(chan struct{})
	c := newTestController(t, b)

	const n = 32
	handles := make([]*Outcome, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = c.Start()
		}(i)
	}
	wg.Wait()
	close(b.persistence.ready)

	for _, h := range handles {
		assert.Same(t, handles[0], h)
		assert.NoError(t, h.Wait(waitCtx(t)))
	}
	assert.Equal(t, int32(1), b.persistenceCalls.Load())
	assert.Equal(t, int32(1), b.fullCalls.Load())
	assert.Equal(t, int32(1), b.server.starts.Load())
	assert.Equal(t, StateRunning, c.State())

	assert.Same(t, handles[0], c.Start())
	assert.Equal(t, int32(1), b.persistenceCalls.Load())
}

func TestStartFailureIsServerError(t *testing.T) {
	b := newFakeBuilder()
	b.server.err = errBind
	c := newTestController(t, b)

	handles := make([]*Outcome, 8)
	var wg sync.WaitGroup
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = c.Start()
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		err := h.Wait(waitCtx(t))
		assert.True(t, err == errBind, "expected the server's own error, got %v", err)
	}
	assert.Equal(t, StateStopped, c.State())

	_, ok := c.Subsystem()
	assert.False(t, ok)
}

func TestStartSequencesPersistenceBeforeFull(t *testing.T) {
	b := newFakeBuilder()
	b.persistence.ready = make(chan struct{})
	c := newTestController(t, b)

	out := c.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, b.fullCalls.Load(), "full context built before persistence was ready")
	assert.False(t, out.Resolved())

	close(b.persistence.ready)
	require.NoError(t, out.Wait(waitCtx(t)))

	assert.False(t, b.fullBeforeReady.Load())
	assert.Equal(t, []string{"build-persistence", "persistence-ready", "build-full", "server-start"}, b.rec.list())
}

func TestStartPanicIsContained(t *testing.T) {
	b := newFakeBuilder()
	b.server.panics = true
	c := newTestController(t, b)

	err := c.Start().Wait(waitCtx(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "listener exploded")
	assert.Equal(t, StateStopped, c.State())
}

func TestStartBootstrapErrors(t *testing.T) {
	buildErr := errors.New("disk full")

	t.Run("Persistence", func(t *testing.T) {
		b := newFakeBuilder()
		b.persistenceErr = buildErr
		c := newTestController(t, b)

		err := c.Start().Wait(waitCtx(t))
		var be *BootstrapError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, PhasePersistence, be.Phase)
		assert.ErrorIs(t, err, buildErr)
		assert.Zero(t, b.fullCalls.Load())
	})

	t.Run("FullClosesPersistence", func(t *testing.T) {
		b := newFakeBuilder()
		b.fullErr = buildErr
		c := newTestController(t, b)

		err := c.Start().Wait(waitCtx(t))
		var be *BootstrapError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, PhaseFull, be.Phase)
		assert.Equal(t, int32(1), b.persistence.closed.Load())
		assert.Zero(t, b.server.starts.Load())
	})

	t.Run("ReadyFailure", func(t *testing.T) {
		b := newFakeBuilder()
		b.persistence.readyFn = func(context.Context) error { return buildErr }
		c := newTestController(t, b)

		err := c.Start().Wait(waitCtx(t))
		var be *BootstrapError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, PhasePersistenceReady, be.Phase)
		assert.NotErrorIs(t, err, ErrBootstrapInterrupted)
		assert.Equal(t, int32(1), b.persistence.closed.Load())
	})
}

func TestStartInterruptedByHostContext(t *testing.T) {
	b := newFakeBuilder()
	b.persistence.ready = make(chan struct{})
	hostCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestController(t, b, func(o *Options) { o.Context = hostCtx })

	out := c.Start()
	time.Sleep(10 * time.Millisecond)
	cancel()

	err := out.Wait(waitCtx(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBootstrapInterrupted)
	assert.ErrorIs(t, err, context.Canceled)

	var be *BootstrapError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, PhasePersistenceReady, be.Phase)
	assert.Zero(t, b.fullCalls.Load())
	assert.Equal(t, int32(1), b.persistence.closed.Load())
}

func TestStartReadyTimeout(t *testing.T) {
	b := newFakeBuilder()
	b.persistence.ready = make(chan struct{})
	cfg := testConfig()
	cfg.Persistence.ReadyTimeout = 20 * time.Millisecond

	c := newTestController(t, b, func(o *Options) { o.Loader = staticLoader(cfg) })

	err := c.Start().Wait(waitCtx(t))
	var be *BootstrapError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, PhasePersistenceReady, be.Phase)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrBootstrapInterrupted)
	assert.Contains(t, err.Error(), "persistence not ready after 20ms")
}

func TestStopBeforeStart(t *testing.T) {
	b := newFakeBuilder()
	b.recordAction("A", nil)
	c := newTestController(t, b)

	stop := c.Stop()
	assert.True(t, stop.Resolved())
	assert.NoError(t, stop.Err())
	assert.Same(t, stop, c.Stop())
	assert.Empty(t, b.cleanupEvents())
	assert.Equal(t, StateIdle, c.State())

	require.NoError(t, c.Start().Wait(waitCtx(t)))
	second := c.Stop()
	assert.NotSame(t, stop, second)
	require.NoError(t, second.Wait(waitCtx(t)))
	assert.Equal(t, []string{"A"}, b.cleanupEvents())
}

func TestStopRunsCleanupInOrder(t *testing.T) {
	b := newFakeBuilder()
	b.recordAction("A", nil)
	b.recordAction("B", nil)
	b.recordAction("C", nil)
	c := newTestController(t, b)

	require.NoError(t, c.Start().Wait(waitCtx(t)))
	require.NoError(t, c.Stop().Wait(waitCtx(t)))

	assert.Equal(t, []string{"A", "B", "C"}, b.cleanupEvents())
	assert.Equal(t, StateStopped, c.State())
}

func TestStopConcurrentCallsCleanupOnce(t *testing.T) {
	b := newFakeBuilder()
	b.recordAction("A", nil)
	b.recordAction("B", nil)
	c := newTestController(t, b)
	require.NoError(t, c.Start().Wait(waitCtx(t)))

	const n = 16
	handles := make([]*Outcome, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = c.Stop()
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		assert.Same(t, handles[0], h)
		assert.NoError(t, h.Wait(waitCtx(t)))
	}
	assert.NoError(t, c.Stop().Wait(waitCtx(t)))
	assert.Equal(t, []string{"A", "B"}, b.cleanupEvents())
}

func TestStopWaitsForStart(t *testing.T) {
	b := newFakeBuilder()
	b.persistence.ready = make(chan struct{})
	b.recordAction("A", nil)
	c := newTestController(t, b)

	start := c.Start()
	stop := c.Stop()
	assert.Same(t, stop, c.Stop())
	assert.Equal(t, StateStopping, c.State())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, stop.Resolved())
	assert.Empty(t, b.cleanupEvents())

	close(b.persistence.ready)
	require.NoError(t, start.Wait(waitCtx(t)))
	require.NoError(t, stop.Wait(waitCtx(t)))

	assert.Equal(t, []string{"A"}, b.cleanupEvents())
	assert.Equal(t, StateStopped, c.State())
}

func TestStopAfterFailedServerStartRunsCleanup(t *testing.T) {
	b := newFakeBuilder()
	b.server.err = errBind
	b.recordAction("persistence-close", nil)
	c := newTestController(t, b)

	require.ErrorIs(t, c.Start().Wait(waitCtx(t)), errBind)
	require.NoError(t, c.Stop().Wait(waitCtx(t)))
	assert.Equal(t, []string{"persistence-close"}, b.cleanupEvents())
}

func TestStopAfterFailedBootstrapRunsNothing(t *testing.T) {
	b := newFakeBuilder()
	b.fullErr = errors.New("broken graph")
	b.recordAction("A", nil)
	c := newTestController(t, b)

	require.Error(t, c.Start().Wait(waitCtx(t)))
	require.NoError(t, c.Stop().Wait(waitCtx(t)))
	assert.Empty(t, b.cleanupEvents())
}

func TestStopReportsCleanupFailures(t *testing.T) {
	errB := errors.New("flush failed")

	b := newFakeBuilder()
	b.recordAction("A", nil)
	b.recordAction("B", errB)
	b.hooks.RegisterFunc("C", func() error { panic("double close") })
	b.recordAction("D", nil)
	c := newTestController(t, b)

	require.NoError(t, c.Start().Wait(waitCtx(t)))
	err := c.Stop().Wait(waitCtx(t))
	require.Error(t, err)

	var ce *CleanupError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Failures, 2)
	assert.Equal(t, "B", ce.Failures[0].Action)
	assert.Equal(t, "C", ce.Failures[1].Action)
	assert.ErrorIs(t, err, errB)
	assert.ErrorIs(t, err, ErrPanic)

	var ae *CleanupActionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "B", ae.Action)

	assert.Equal(t, []string{"A", "B", "D"}, b.cleanupEvents())
	assert.Equal(t, StateStopped, c.State())
}

func TestAccessors(t *testing.T) {
	b := newFakeBuilder()
	c := newTestController(t, b)

	assert.Empty(t, c.NodeID())
	_, ok := c.Subsystem()
	assert.False(t, ok)

	require.NoError(t, c.Start().Wait(waitCtx(t)))

	_, err := uuid.Parse(c.NodeID())
	assert.NoError(t, err)
	assert.Equal(t, c.NodeID(), b.lastDeps.Load().(Deps).NodeID)

	sub, ok := c.Subsystem()
	require.True(t, ok)
	assert.Same(t, b.server, sub.Server())
}

func TestConfiguredNodeID(t *testing.T) {
	b := newFakeBuilder()
	cfg := testConfig()
	cfg.Node.ID = "6f1c2d9e-8a47-4b8f-9d0e-2f6c1a3b5d7e"
	c := newTestController(t, b, func(o *Options) { o.Loader = staticLoader(cfg) })

	require.NoError(t, c.Start().Wait(waitCtx(t)))
	assert.Equal(t, cfg.Node.ID, c.NodeID())
}
