package embedded

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs-embedded/pkg/config"
)

// recorder collects lifecycle events in the order they happen.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

type fakePersistence struct {
	rec     *recorder
	ready   chan struct{}
	readyFn func(ctx context.Context) error
	closed  atomic.Int32
	isReady atomic.Bool
}

func (p *fakePersistence) AwaitReady(ctx context.Context) error {
	if p.readyFn != nil {
		if err := p.readyFn(ctx); err != nil {
			return err
		}
	} else if p.ready != nil {
		select {
		case <-p.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.isReady.Store(true)
	p.rec.add("persistence-ready")
	return nil
}

func (p *fakePersistence) Close() error {
	p.closed.Add(1)
	return nil
}

type fakeServer struct {
	rec    *recorder
	err    error
	panics bool
	starts atomic.Int32
}

func (s *fakeServer) Start(context.Context) error {
	s.starts.Add(1)
	if s.panics {
		panic("listener exploded")
	}
	s.rec.add("server-start")
	return s.err
}

type fakeSubsystem struct {
	server *fakeServer
	hooks  *Hooks
}

func (s *fakeSubsystem) Server() Server                     { return s.server }
func (s *fakeSubsystem) ShutdownRegistry() ShutdownRegistry { return s.hooks }

// fakeBuilder records bootstrap calls and checks phase ordering.
type fakeBuilder struct {
	rec         *recorder
	persistence *fakePersistence
	server      *fakeServer
	hooks       *Hooks

	persistenceErr error
	fullErr        error

	persistenceCalls atomic.Int32
	fullCalls        atomic.Int32
	fullBeforeReady  atomic.Bool
	lastDeps         atomic.Value
}

func newFakeBuilder() *fakeBuilder {
	rec := &recorder{}
	return &fakeBuilder{
		rec:         rec,
		persistence: &fakePersistence{rec: rec},
		server:      &fakeServer{rec: rec},
		hooks:       &Hooks{},
	}
}

func (b *fakeBuilder) BuildPersistence(_ context.Context, deps Deps) (PersistenceContext, error) {
	b.persistenceCalls.Add(1)
	b.lastDeps.Store(deps)
	b.rec.add("build-persistence")
	if b.persistenceErr != nil {
		return nil, b.persistenceErr
	}
	return b.persistence, nil
}

func (b *fakeBuilder) BuildFull(_ context.Context, _ Deps, p PersistenceContext) (SubsystemContext, error) {
	b.fullCalls.Add(1)
	if !p.(*fakePersistence).isReady.Load() {
		b.fullBeforeReady.Store(true)
	}
	b.rec.add("build-full")
	if b.fullErr != nil {
		return nil, b.fullErr
	}
	return &fakeSubsystem{server: b.server, hooks: b.hooks}, nil
}

// recordAction registers a cleanup action that logs its name.
func (b *fakeBuilder) recordAction(name string, err error) {
	b.hooks.RegisterFunc(name, func() error {
		b.rec.add("cleanup:" + name)
		return err
	})
}

func (b *fakeBuilder) cleanupEvents() []string {
	var out []string
	for _, e := range b.rec.list() {
		if name, ok := strings.CutPrefix(e, "cleanup:"); ok {
			out = append(out, name)
		}
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Persistence.InMemory = true
	cfg.Server.Address = "127.0.0.1:0"
	return cfg
}

func staticLoader(cfg *config.Config) ConfigurationLoader {
	return ConfigLoaderFunc(func(...string) (*config.Config, error) {
		return cfg, nil
	})
}

func newTestController(t *testing.T, b *fakeBuilder, mutate ...func(*Options)) *Controller {
	t.Helper()
	opts := Options{
		Loader:  staticLoader(testConfig()),
		Builder: b,
		Version: "test",
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

var errBind = errors.New("bind: address already in use")
