package embedded

import (
	"context"

	"github.com/marmos91/dittofs-embedded/pkg/config"
	"github.com/marmos91/dittofs-embedded/pkg/metrics"
)

// ConfigurationLoader resolves the configuration used by a Controller.
type ConfigurationLoader interface {
	Load(paths ...string) (*config.Config, error)
}

// ConfigLoaderFunc adapts a function to ConfigurationLoader.
type ConfigLoaderFunc func(paths ...string) (*config.Config, error)

// Load calls f(paths...).
func (f ConfigLoaderFunc) Load(paths ...string) (*config.Config, error) {
	return f(paths...)
}

// Deps are the dependencies handed to both bootstrap phases.
type Deps struct {
	SystemInfo SystemInformation
	Metrics    *metrics.Registry
	NodeID     string
	Config     *config.Config
}

// SubsystemBuilder constructs the subsystem in two phases.
//
// BuildPersistence is always called first, and BuildFull is only called once
// the returned PersistenceContext has reported readiness.
type SubsystemBuilder interface {
	BuildPersistence(ctx context.Context, deps Deps) (PersistenceContext, error)
	BuildFull(ctx context.Context, deps Deps, persistence PersistenceContext) (SubsystemContext, error)
}

// PersistenceContext is the result of the first bootstrap phase.
type PersistenceContext interface {
	// AwaitReady blocks until startup has completed, failed, or ctx is done.
	AwaitReady(ctx context.Context) error
}

// SubsystemContext is the fully constructed subsystem.
type SubsystemContext interface {
	Server() Server
	ShutdownRegistry() ShutdownRegistry
}

// Server is the network server of a subsystem.
type Server interface {
	// Start returns once the server has begun serving.
	Start(ctx context.Context) error
}
