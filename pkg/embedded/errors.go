package embedded

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/panics"

	"github.com/marmos91/dittofs-embedded/internal/logger"
)

// Phase identifies a bootstrap phase.
type Phase string

const (
	// PhasePersistence builds the persistence sub-context.
	PhasePersistence Phase = "persistence"
	// PhasePersistenceReady waits for the persistence sub-context to finish starting.
	PhasePersistenceReady Phase = "persistence-ready"
	// PhaseFull builds the full subsystem context.
	PhaseFull Phase = "full"
)

var (
	// ErrBootstrapInterrupted is matched by bootstrap errors caused by the host
	// cancelling the persistence readiness wait.
	ErrBootstrapInterrupted = errors.New("bootstrap interrupted")

	// ErrPanic is matched by errors recovered from a panic in background work.
	ErrPanic = errors.New("panic in background work")

	// ErrNoBuilder is returned by New when Options.Builder is nil.
	ErrNoBuilder = errors.New("subsystem builder is required")
)

// BootstrapError reports a failure in one bootstrap phase.
type BootstrapError struct {
	Phase Phase
	Err   error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap %s phase failed: %v", e.Phase, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// serverStartError marks a failure returned by Server.Start while it travels
// through the start goroutine. It never reaches callers.
type serverStartError struct {
	err error
}

func (e *serverStartError) Error() string {
	return "server start failed: " + e.err.Error()
}

func (e *serverStartError) Unwrap() error {
	return e.err
}

// unwrapStartError strips serverStartError so the stored cause is the
// server's own error value.
func unwrapStartError(err error) error {
	var sse *serverStartError
	if errors.As(err, &sse) {
		return sse.err
	}
	return err
}

// CleanupActionError reports the failure of one cleanup action.
type CleanupActionError struct {
	Action string
	Err    error
}

func (e *CleanupActionError) Error() string {
	return fmt.Sprintf("cleanup action %q failed: %v", e.Action, e.Err)
}

func (e *CleanupActionError) Unwrap() error {
	return e.Err
}

// CleanupError aggregates every failed cleanup action of one Stop.
type CleanupError struct {
	Failures []*CleanupActionError
}

func (e *CleanupError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%d cleanup action(s) failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes each action failure to errors.Is and errors.As.
func (e *CleanupError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("%w: %w", ErrPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrPanic, v)
}

// catch runs fn and turns a panic into an error matching ErrPanic.
func catch(fn func() error) (err error) {
	var pc panics.Catcher
	pc.Try(func() { err = fn() })
	if r := pc.Recovered(); r != nil {
		logger.Error("Recovered panic in background work", "panic", fmt.Sprint(r.Value), "stack", string(r.Stack))
		return panicError(r.Value)
	}
	return err
}
