package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	group := NewBreakerGroup(BreakerSettings{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 1,
	})

	boom := errors.New("connection refused")

	calls := 0
	work := func() error {
		calls++

		return boom
	}

	require.ErrorIs(t, group.Run("http_request", work), boom)
	require.ErrorIs(t, group.Run("http_request", work), boom)

	err := group.Run("http_request", work)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, calls, "open breaker must reject without invoking the handler")
	assert.False(t, IsRetryable(err))
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	t.Parallel()

	group := NewBreakerGroup(BreakerSettings{
		FailureThreshold: 1,
		RecoveryTimeout:  25 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})

	require.Error(t, group.Run("transform", func() error { return errors.New("boom") }))
	require.ErrorIs(t, group.Run("transform", func() error { return nil }), ErrCircuitOpen)

	time.Sleep(250 * time.Millisecond)

	require.NoError(t, group.Run("transform", func() error { return nil }))
	require.NoError(t, group.Run("transform", func() error { return nil }))
}

func TestBreakerIsolatedPerName(t *testing.T) {
	t.Parallel()

	group := NewBreakerGroup(BreakerSettings{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 1,
	})

	require.Error(t, group.Run("flaky", func() error { return errors.New("boom") }))
	require.ErrorIs(t, group.Run("flaky", func() error { return nil }), ErrCircuitOpen)

	assert.NoError(t, group.Run("healthy", func() error { return nil }))
}

func TestBreakerSettingsDefaults(t *testing.T) {
	t.Parallel()

	group := NewBreakerGroup(BreakerSettings{})

	assert.Equal(t, DefaultFailureThreshold, group.settings.FailureThreshold)
	assert.Equal(t, DefaultRecoveryTimeout, group.settings.RecoveryTimeout)
	assert.Equal(t, DefaultHalfOpenMaxCalls, group.settings.HalfOpenMaxCalls)
}
