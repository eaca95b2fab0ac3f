// Package subsystem is the reference subsystem started by an embedded controller:
// a BadgerDB persistence sub-context and an HTTP server built on top of it.
package subsystem

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittofs-embedded/pkg/embedded"
	"github.com/marmos91/dittofs-embedded/pkg/subsystem/persistence"
	"github.com/marmos91/dittofs-embedded/pkg/subsystem/server"
)

// Cleanup action names, in the order they run.
const (
	ActionHTTPServer       = "http-server"
	ActionPersistenceSync  = "persistence-sync"
	ActionPersistenceClose = "persistence-close"
)

// Builder implements embedded.SubsystemBuilder.
type Builder struct {
	extra []embedded.CleanupAction
}

// NewBuilder returns a Builder. Extra cleanup actions run after the built-in ones.
func NewBuilder(extra ...embedded.CleanupAction) *Builder {
	return &Builder{extra: extra}
}

// BuildPersistence starts opening the store. Readiness is reported by AwaitReady.
func (b *Builder) BuildPersistence(_ context.Context, deps embedded.Deps) (embedded.PersistenceContext, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	opts := persistence.OptionsFromConfig(deps.Config, deps.NodeID, deps.Metrics.Storage())
	return persistence.Open(opts), nil
}

// BuildFull builds the HTTP server and the shutdown registry.
func (b *Builder) BuildFull(_ context.Context, deps embedded.Deps, p embedded.PersistenceContext) (embedded.SubsystemContext, error) {
	store, ok := p.(*persistence.Store)
	if !ok {
		return nil, fmt.Errorf("unexpected persistence context %T", p)
	}

	cfg := deps.Config
	srv := server.New(server.Options{
		Config:        cfg.Server,
		MetricsConfig: cfg.Metrics,
		Metrics:       deps.Metrics,
		Store:         store,
		Info: server.NodeInfo{
			NodeID:   deps.NodeID,
			Version:  deps.SystemInfo.Version,
			Hostname: deps.SystemInfo.Hostname,
			Embedded: deps.SystemInfo.Embedded,
		},
	})

	hooks := &embedded.Hooks{}
	hooks.RegisterFunc(ActionHTTPServer, func() error {
		return stopServer(srv, cfg.ShutdownTimeout)
	})
	hooks.RegisterFunc(ActionPersistenceSync, store.Sync)
	hooks.RegisterFunc(ActionPersistenceClose, store.Close)
	hooks.Register(b.extra...)

	return &Context{server: srv, store: store, hooks: hooks}, nil
}

func stopServer(srv *server.Server, timeout time.Duration) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return srv.Stop(ctx)
}

// Context implements embedded.SubsystemContext.
type Context struct {
	server *server.Server
	store  *persistence.Store
	hooks  *embedded.Hooks
}

func (c *Context) Server() embedded.Server {
	return c.server
}

func (c *Context) ShutdownRegistry() embedded.ShutdownRegistry {
	return c.hooks
}

// HTTPServer returns the concrete server, e.g. to read its bound address.
func (c *Context) HTTPServer() *server.Server {
	return c.server
}

// Store returns the persistence store.
func (c *Context) Store() *persistence.Store {
	return c.store
}
