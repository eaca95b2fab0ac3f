package embedded

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittofs-embedded/internal/logger"
	"github.com/marmos91/dittofs-embedded/internal/telemetry"
	"github.com/marmos91/dittofs-embedded/pkg/config"
	"github.com/marmos91/dittofs-embedded/pkg/metrics"
)

// Options configures a Controller.
type Options struct {
	// ConfigPaths are searched in order; the first existing file is loaded.
	ConfigPaths []string

	// Loader resolves the configuration. Defaults to config.FileLoader.
	Loader ConfigurationLoader

	// Builder constructs the subsystem. Required.
	Builder SubsystemBuilder

	// Context is observed while waiting for persistence readiness.
	// Cancelling it interrupts the bootstrap. Defaults to context.Background.
	Context context.Context

	// Version is reported in SystemInformation.
	Version string

	// Metrics overrides the registry created by New.
	Metrics *metrics.Registry
}

// Controller starts and stops one embedded subsystem.
//
// Start and Stop are safe for concurrent use. Each schedules its work at most
// once for the lifetime of the Controller; every call returns the same Outcome.
type Controller struct {
	ctx     context.Context
	cfg     *config.Config
	sysInfo SystemInformation
	metrics *metrics.Registry
	runner  *BootstrapRunner
	state   stateMachine

	startMu sync.Mutex
	start   *Outcome

	stopMu sync.Mutex
	stop   *Outcome

	// notStarted is returned by Stop while Start has not been called.
	notStarted *Outcome

	// sub is written by the start goroutine before the start outcome is
	// resolved and read only after it.
	sub SubsystemContext
}

// New loads the configuration and creates an idle Controller.
// The metrics registry is created here so it can be used before Start.
func New(opts Options) (*Controller, error) {
	if opts.Builder == nil {
		return nil, ErrNoBuilder
	}

	loader := opts.Loader
	if loader == nil {
		loader = config.FileLoader{}
	}
	cfg, err := loader.Load(opts.ConfigPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg == nil {
		return nil, errors.New("configuration loader returned no configuration")
	}

	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	reg := opts.Metrics
	if reg == nil {
		reg = metrics.New(metrics.WithRuntimeCollectors())
	}

	sysInfo := newSystemInformation(cfg, opts.Version)
	c := &Controller{
		ctx:        ctx,
		cfg:        cfg,
		sysInfo:    sysInfo,
		metrics:    reg,
		notStarted: resolvedOutcome(nil),
		runner: NewBootstrapRunner(opts.Builder, Deps{
			SystemInfo: sysInfo,
			Metrics:    reg,
			Config:     cfg,
		}),
	}
	reg.Lifecycle().RecordState(StateIdle.String(), int(StateIdle))

	return c, nil
}

// Start schedules bootstrap and server start on the first call and returns
// its Outcome. Later calls return the same Outcome without scheduling anything.
// A failed start resolves with the original cause.
func (c *Controller) Start() *Outcome {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.start != nil {
		return c.start
	}

	c.start = newOutcome()
	c.advance(StateStarting)
	go c.runStart(c.start)

	return c.start
}

func (c *Controller) runStart(out *Outcome) {
	begin := time.Now()
	ctx := logger.WithContext(c.ctx, logger.NewLogContext("controller"))

	err := unwrapStartError(catch(func() error { return c.startSubsystem(ctx) }))

	c.metrics.Lifecycle().ObserveStart(time.Since(begin), err)
	if err != nil {
		logger.ErrorCtx(ctx, "Embedded subsystem failed to start", logger.Err(err))
		c.advance(StateStopped)
	} else {
		logger.InfoCtx(ctx, "Embedded subsystem running",
			logger.KeyNodeID, c.runner.NodeID(), logger.DurationMs(begin))
		c.advance(StateRunning)
	}

	out.resolve(err)
}

func (c *Controller) startSubsystem(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanStart)
	defer span.End()

	sub, err := c.runner.Bootstrap(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	c.sub = sub

	srv := sub.Server()
	if srv == nil {
		return errors.New("subsystem has no server")
	}
	if err := srv.Start(ctx); err != nil {
		telemetry.RecordError(ctx, err)
		return &serverStartError{err: err}
	}
	return nil
}

// Stop schedules shutdown and returns its Outcome.
//
// Before Start has been called it returns an already successful Outcome and
// runs nothing. Otherwise the first call waits for the start to resolve, runs
// every cleanup action in order, and resolves with nil or a *CleanupError.
// Later calls return the same Outcome.
func (c *Controller) Stop() *Outcome {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()

	if c.stop != nil {
		return c.stop
	}

	c.startMu.Lock()
	started := c.start
	c.startMu.Unlock()

	if started == nil {
		return c.notStarted
	}

	c.stop = newOutcome()
	c.advance(StateStopping)
	go c.runStop(started, c.stop)

	return c.stop
}

func (c *Controller) runStop(started, out *Outcome) {
	<-started.Done()

	begin := time.Now()
	ctx := logger.WithContext(context.Background(), logger.NewLogContext("controller").WithNodeID(c.runner.NodeID()))

	err := catch(func() error { return c.stopSubsystem(ctx) })
	if err != nil {
		logger.ErrorCtx(ctx, "Embedded subsystem stopped with errors", logger.Err(err), logger.DurationMs(begin))
	} else {
		logger.InfoCtx(ctx, "Embedded subsystem stopped", logger.DurationMs(begin))
	}

	c.advance(StateStopped)
	out.resolve(err)
}

func (c *Controller) stopSubsystem(ctx context.Context) error {
	if c.sub == nil {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanStop)
	defer span.End()

	err := runCleanup(ctx, c.sub.ShutdownRegistry(), c.metrics.Lifecycle())
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

func (c *Controller) advance(to State) {
	if !c.state.advance(to) {
		return
	}
	c.metrics.Lifecycle().RecordState(to.String(), int(to))
	logger.Debug("Lifecycle state changed", logger.KeyState, to.String())
}

// Metrics returns the metrics registry. It is never nil.
func (c *Controller) Metrics() *metrics.Registry {
	return c.metrics
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.state.load()
}

// Config returns the resolved configuration.
func (c *Controller) Config() *config.Config {
	return c.cfg
}

// SystemInfo returns the system information computed at construction.
func (c *Controller) SystemInfo() SystemInformation {
	return c.sysInfo
}

// NodeID returns the node identity, or "" before bootstrap has started.
func (c *Controller) NodeID() string {
	return c.runner.NodeID()
}

// Subsystem returns the running subsystem once Start has succeeded.
func (c *Controller) Subsystem() (SubsystemContext, bool) {
	c.startMu.Lock()
	started := c.start
	c.startMu.Unlock()

	if started == nil || !started.Resolved() || started.Err() != nil {
		return nil, false
	}
	return c.sub, true
}
