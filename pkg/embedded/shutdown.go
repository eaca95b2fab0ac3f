package embedded

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/marmos91/dittofs-embedded/internal/logger"
	"github.com/marmos91/dittofs-embedded/internal/telemetry"
	"github.com/marmos91/dittofs-embedded/pkg/metrics"
)

// CleanupAction is one step of subsystem shutdown.
type CleanupAction interface {
	Name() string
	Run() error
}

// ShutdownRegistry lists the cleanup actions of a subsystem in execution order.
type ShutdownRegistry interface {
	Actions() []CleanupAction
}

// CleanupFunc adapts a function to CleanupAction.
func CleanupFunc(name string, fn func() error) CleanupAction {
	return cleanupFunc{name: name, fn: fn}
}

type cleanupFunc struct {
	name string
	fn   func() error
}

func (c cleanupFunc) Name() string { return c.name }
func (c cleanupFunc) Run() error   { return c.fn() }

// Hooks is a ShutdownRegistry that subsystems register into while they are built.
type Hooks struct {
	mu      sync.Mutex
	actions []CleanupAction
}

// Register appends actions. They run after every previously registered action.
func (h *Hooks) Register(actions ...CleanupAction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, actions...)
}

// RegisterFunc appends a named function.
func (h *Hooks) RegisterFunc(name string, fn func() error) {
	h.Register(CleanupFunc(name, fn))
}

// Actions returns a snapshot of the registered actions.
func (h *Hooks) Actions() []CleanupAction {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]CleanupAction, len(h.actions))
	copy(out, h.actions)
	return out
}

// Len returns the number of registered actions.
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.actions)
}

// runCleanup executes every action of registry sequentially.
// Failures are collected; a failing or panicking action does not stop the rest.
func runCleanup(ctx context.Context, registry ShutdownRegistry, m *metrics.LifecycleMetrics) error {
	if registry == nil {
		return nil
	}

	actions := registry.Actions()
	logger.InfoCtx(ctx, "Running cleanup actions", logger.KeyCount, len(actions))

	var failures []*CleanupActionError
	for i, action := range actions {
		if action == nil {
			continue
		}
		if err := runAction(ctx, i, action, m); err != nil {
			failures = append(failures, &CleanupActionError{Action: action.Name(), Err: err})
		}
	}

	if len(failures) > 0 {
		return &CleanupError{Failures: failures}
	}
	return nil
}

func runAction(ctx context.Context, index int, action CleanupAction, m *metrics.LifecycleMetrics) error {
	name := action.Name()
	start := time.Now()

	_, span := telemetry.StartCleanupSpan(ctx, name)
	defer span.End()

	err := catch(action.Run)
	m.ObserveCleanupAction(name, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnCtx(ctx, "Cleanup action failed",
			logger.Action(name), logger.KeyIndex, index, logger.Err(err))
		return err
	}

	logger.DebugCtx(ctx, "Cleanup action completed", logger.Action(name), logger.DurationMs(start))
	return nil
}
