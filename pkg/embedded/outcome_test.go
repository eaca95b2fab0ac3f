package embedded

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	t.Run("PendingUntilResolved", func(t *testing.T) {
		o := newOutcome()
		assert.False(t, o.Resolved())
		assert.NoError(t, o.Err())

		select {
		case <-o.Done():
			t.Fatal("done closed before resolve")
		default:
		}

		first := errors.New("first")
		assert.True(t, o.resolve(first))
		assert.False(t, o.resolve(errors.New("second")))
		assert.True(t, o.Resolved())
		assert.Same(t, first, o.Err())
		assert.Same(t, first, o.Wait(context.Background()))
	})

	t.Run("WaitHonoursContext", func(t *testing.T) {
		o := newOutcome()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, o.Wait(ctx), context.DeadlineExceeded)
		assert.False(t, o.Resolved())
	})

	t.Run("SuccessOnlyAfterResolved", func(t *testing.T) {
		o := newOutcome()
		assert.NoError(t, o.Err())
		assert.False(t, o.Resolved())

		assert.True(t, o.resolve(nil))
		assert.True(t, o.Resolved())
		assert.NoError(t, o.Err())
		assert.NoError(t, o.Wait(context.Background()))
	})

	t.Run("AlreadyResolved", func(t *testing.T) {
		o := resolvedOutcome(nil)
		assert.True(t, o.Resolved())
		assert.NoError(t, o.Wait(context.Background()))
	})
}

func TestStateMachineOnlyAdvances(t *testing.T) {
	var m stateMachine
	assert.Equal(t, StateIdle, m.load())

	assert.True(t, m.advance(StateStarting))
	assert.True(t, m.advance(StateStopping))
	assert.False(t, m.advance(StateRunning))
	assert.Equal(t, StateStopping, m.load())
	assert.False(t, m.advance(StateStopping))
	assert.True(t, m.advance(StateStopped))
	assert.Equal(t, "Stopped", m.load().String())
	assert.Equal(t, "Unknown", State(42).String())
}
