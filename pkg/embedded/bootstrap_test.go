package embedded

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs-embedded/pkg/metrics"
)

func TestBootstrapRunnerIsMemoized(t *testing.T) {
	b := newFakeBuilder()
	r := NewBootstrapRunner(b, Deps{Metrics: metrics.New(), Config: testConfig()})

	const n = 16
	results := make([]SubsystemContext, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, err := r.Bootstrap(context.Background())
			assert.NoError(t, err)
			results[i] = sub
		}(i)
	}
	wg.Wait()

	for _, sub := range results {
		assert.Same(t, results[0], sub)
	}
	assert.Equal(t, int32(1), b.persistenceCalls.Load())
	assert.Equal(t, int32(1), b.fullCalls.Load())
}

func TestBootstrapRunnerCachesFailure(t *testing.T) {
	b := newFakeBuilder()
	b.fullErr = assert.AnError
	r := NewBootstrapRunner(b, Deps{Config: testConfig()})

	_, err1 := r.Bootstrap(context.Background())
	_, err2 := r.Bootstrap(context.Background())
	require.Error(t, err1)
	assert.Same(t, err1, err2)
	assert.Equal(t, int32(1), b.persistenceCalls.Load())
}

func TestBootstrapRunnerCachesPanic(t *testing.T) {
	b := &panicBuilder{}
	r := NewBootstrapRunner(b, Deps{Config: testConfig()})

	sub1, err1 := r.Bootstrap(context.Background())
	require.ErrorIs(t, err1, ErrPanic)
	assert.Contains(t, err1.Error(), "boom")
	assert.Nil(t, sub1)

	sub2, err2 := r.Bootstrap(context.Background())
	assert.Same(t, err1, err2)
	assert.Nil(t, sub2)
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestBootstrapRunnerExplicitNodeID(t *testing.T) {
	b := newFakeBuilder()
	r := NewBootstrapRunner(b, Deps{NodeID: "node-1", Config: testConfig()})

	_, err := r.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "node-1", r.NodeID())
	assert.Equal(t, "node-1", b.lastDeps.Load().(Deps).NodeID)
}

func TestBootstrapRunnerNilResults(t *testing.T) {
	r := NewBootstrapRunner(nilBuilder{}, Deps{})

	_, err := r.Bootstrap(context.Background())
	var be *BootstrapError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, PhasePersistence, be.Phase)
}

type nilBuilder struct{}

func (nilBuilder) BuildPersistence(context.Context, Deps) (PersistenceContext, error) {
	return nil, nil
}

func (nilBuilder) BuildFull(context.Context, Deps, PersistenceContext) (SubsystemContext, error) {
	return nil, nil
}

type panicBuilder struct {
	calls atomic.Int32
}

func (b *panicBuilder) BuildPersistence(context.Context, Deps) (PersistenceContext, error) {
	b.calls.Add(1)
	panic("boom")
}

func (b *panicBuilder) BuildFull(context.Context, Deps, PersistenceContext) (SubsystemContext, error) {
	return nil, nil
}
