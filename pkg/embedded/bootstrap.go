package embedded

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/marmos91/dittofs-embedded/internal/logger"
	"github.com/marmos91/dittofs-embedded/internal/telemetry"
)

// BootstrapRunner builds a subsystem in two phases, at most once.
type BootstrapRunner struct {
	builder SubsystemBuilder
	deps    Deps

	once   sync.Once
	result SubsystemContext
	err    error
	nodeID atomic.Value
}

// NewBootstrapRunner returns a runner for builder. When deps.NodeID is empty
// the configured node ID is used, or a random one is generated at bootstrap.
func NewBootstrapRunner(builder SubsystemBuilder, deps Deps) *BootstrapRunner {
	return &BootstrapRunner{builder: builder, deps: deps}
}

// Bootstrap runs both phases on the first call and returns the cached
// result on every later call, including concurrent ones. A panic in the
// builder is cached as an error wrapping ErrPanic.
func (r *BootstrapRunner) Bootstrap(ctx context.Context) (SubsystemContext, error) {
	r.once.Do(func() {
		r.err = catch(func() error {
			var err error
			r.result, err = r.bootstrap(ctx)
			return err
		})
		if r.err != nil {
			r.result = nil
		}
	})
	return r.result, r.err
}

// NodeID returns the node identity chosen by Bootstrap, or "" before it ran.
func (r *BootstrapRunner) NodeID() string {
	id, _ := r.nodeID.Load().(string)
	return id
}

func (r *BootstrapRunner) bootstrap(ctx context.Context) (SubsystemContext, error) {
	deps := r.deps
	deps.NodeID = r.resolveNodeID()
	r.nodeID.Store(deps.NodeID)

	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext("embedded")
	}
	ctx = logger.WithContext(ctx, lc.WithNodeID(deps.NodeID))

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanBootstrap)
	span.SetAttributes(telemetry.NodeID(deps.NodeID))
	defer span.End()

	logger.InfoCtx(ctx, "Bootstrapping embedded subsystem")

	var persistence PersistenceContext
	err := r.phase(ctx, PhasePersistence, func(ctx context.Context) error {
		var err error
		persistence, err = r.builder.BuildPersistence(ctx, deps)
		if err == nil && persistence == nil {
			err = errors.New("builder returned no persistence context")
		}
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	err = r.phase(ctx, PhasePersistenceReady, func(ctx context.Context) error {
		return r.awaitPersistence(ctx, persistence)
	})
	if err != nil {
		closePersistence(ctx, persistence)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var sub SubsystemContext
	err = r.phase(ctx, PhaseFull, func(ctx context.Context) error {
		var err error
		sub, err = r.builder.BuildFull(ctx, deps, persistence)
		if err == nil && sub == nil {
			err = errors.New("builder returned no subsystem context")
		}
		return err
	})
	if err != nil {
		closePersistence(ctx, persistence)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.InfoCtx(ctx, "Embedded subsystem bootstrapped")
	return sub, nil
}

func (r *BootstrapRunner) resolveNodeID() string {
	if r.deps.NodeID != "" {
		return r.deps.NodeID
	}
	if r.deps.Config != nil && r.deps.Config.Node.ID != "" {
		return r.deps.Config.Node.ID
	}
	return uuid.NewString()
}

// phase runs fn inside a span, records its duration and wraps its error.
func (r *BootstrapRunner) phase(ctx context.Context, phase Phase, fn func(context.Context) error) error {
	if lc := logger.FromContext(ctx); lc != nil {
		ctx = logger.WithContext(ctx, lc.WithPhase(string(phase)))
	}
	ctx, span := telemetry.StartPhaseSpan(ctx, string(phase))
	defer span.End()

	start := time.Now()
	logger.DebugCtx(ctx, "Bootstrap phase started")

	err := fn(ctx)
	r.deps.Metrics.Lifecycle().ObservePhase(string(phase), time.Since(start), err)
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "Bootstrap phase failed", logger.Err(err), logger.DurationMs(start))
		var be *BootstrapError
		if errors.As(err, &be) {
			return err
		}
		return &BootstrapError{Phase: phase, Err: err}
	}

	logger.DebugCtx(ctx, "Bootstrap phase completed", logger.DurationMs(start))
	return nil
}

// awaitPersistence waits for the persistence sub-context to finish starting.
// Host cancellation is terminal and reported as ErrBootstrapInterrupted.
func (r *BootstrapRunner) awaitPersistence(ctx context.Context, p PersistenceContext) error {
	waitCtx := ctx
	var timeout time.Duration
	if r.deps.Config != nil {
		timeout = r.deps.Config.Persistence.ReadyTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := p.AwaitReady(waitCtx)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return &BootstrapError{
			Phase: PhasePersistenceReady,
			Err:   fmt.Errorf("%w: %w", ErrBootstrapInterrupted, err),
		}
	}
	if waitCtx.Err() != nil {
		return fmt.Errorf("persistence not ready after %s: %w", timeout, err)
	}
	return err
}

func closePersistence(ctx context.Context, p PersistenceContext) {
	c, ok := p.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.WarnCtx(ctx, "Failed to close persistence after bootstrap failure", logger.Err(err))
	}
}
