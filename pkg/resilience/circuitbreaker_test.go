package resilience

import (
	"errors"
	"io"
	"testing"
	"time"

	"creditchat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(retry time.Duration) *CircuitBreaker {
	return New(Config{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RetryTimeout:     retry,
	}, logger.New(logger.Config{Level: "error", Output: io.Discard}))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(time.Hour)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Execute(func() error { return boom }))
	}
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerClosesAfterProbeSuccesses(t *testing.T) {
	cb := newTestBreaker(time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return boom })
	}
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerReopensOnProbeFailure(t *testing.T) {
	cb := newTestBreaker(time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return boom })
	}
	time.Sleep(5 * time.Millisecond)

	require.Error(t, cb.Execute(func() error { return boom }))
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	cb := newTestBreaker(time.Hour)
	boom := errors.New("boom")

	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return boom })
	require.NoError(t, cb.Execute(func() error { return nil }))
	_ = cb.Execute(func() error { return boom })

	assert.Equal(t, StateClosed, cb.State())
}
