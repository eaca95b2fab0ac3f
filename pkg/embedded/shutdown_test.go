package embedded

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs-embedded/pkg/metrics"
)

func TestHooks(t *testing.T) {
	var h Hooks
	h.RegisterFunc("a", func() error { return nil })
	h.Register(CleanupFunc("b", func() error { return nil }), CleanupFunc("c", func() error { return nil }))

	actions := h.Actions()
	require.Len(t, actions, 3)
	assert.Equal(t, 3, h.Len())
	for i, name := range []string{"a", "b", "c"} {
		assert.Equal(t, name, actions[i].Name())
	}

	actions[0] = nil
	assert.NotNil(t, h.Actions()[0], "Actions must return a copy")
}

func TestRunCleanup(t *testing.T) {
	t.Run("NilRegistry", func(t *testing.T) {
		assert.NoError(t, runCleanup(context.Background(), nil, nil))
	})

	t.Run("CollectsAllFailures", func(t *testing.T) {
		errA := errors.New("a failed")
		var ran []string
		var h Hooks
		h.RegisterFunc("a", func() error { ran = append(ran, "a"); return errA })
		h.RegisterFunc("b", func() error { ran = append(ran, "b"); panic(errors.New("b panicked")) })
		h.RegisterFunc("c", func() error { ran = append(ran, "c"); return nil })

		reg := metrics.New()
		err := runCleanup(context.Background(), &h, reg.Lifecycle())

		assert.Equal(t, []string{"a", "b", "c"}, ran)
		var ce *CleanupError
		require.ErrorAs(t, err, &ce)
		assert.Len(t, ce.Failures, 2)
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, ErrPanic)
		assert.Contains(t, err.Error(), "2 cleanup action(s) failed")
		assert.Contains(t, err.Error(), `cleanup action "b" failed`)
	})
}

func TestUnwrapStartError(t *testing.T) {
	cause := errors.New("port taken")
	assert.Same(t, cause, unwrapStartError(&serverStartError{err: cause}))
	assert.Same(t, cause, unwrapStartError(cause))
	assert.NoError(t, unwrapStartError(nil))
}
