package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fleetbus/errors"
)

func fast(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.WrapTransient(errors.ErrNotConnected, "test", "op", "send")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(5), func(context.Context) error {
		calls++
		return errors.WrapInvalid(errors.ErrInvalidData, "test", "op", "decode")
	})
	assert.ErrorIs(t, err, errors.ErrInvalidData)
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(3), func(context.Context) error {
		calls++
		return fmt.Errorf("send: %w", errors.ErrConnectionLost)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConnectionLost)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	calls := 0
	err := Do(ctx, p, func(context.Context) error {
		calls++
		cancel()
		return errors.WrapTransient(errors.ErrConnectionTimeout, "test", "op", "send")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, errors.ErrConnectionTimeout)
	assert.Equal(t, 1, calls)
}

func TestDo_InvalidPolicy(t *testing.T) {
	for name, p := range map[string]Policy{
		"negative delay":  {InitialDelay: -1, Multiplier: 2},
		"small mult":      {Multiplier: 0.5},
		"max below start": {InitialDelay: time.Second, MaxDelay: time.Millisecond, Multiplier: 2},
	} {
		t.Run(name, func(t *testing.T) {
			err := Do(context.Background(), p, func(context.Context) error { return nil })
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 10*time.Millisecond, p.Delay(1))
	assert.Equal(t, 20*time.Millisecond, p.Delay(2))
	assert.Equal(t, 40*time.Millisecond, p.Delay(3))
	assert.Equal(t, 50*time.Millisecond, p.Delay(4))

	q := Quick()
	assert.NoError(t, q.validate())
	assert.NoError(t, Persistent().validate())
}
