package llmextract

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/pipeline"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 60)
	failing := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := cb.Call(func() error { return failing })
		require.ErrorIs(t, err, failing)
	}

	require.True(t, cb.IsOpen())

	err := cb.Call(func() error {
		t.Fatal("fn must not run while circuit is open")
		return nil
	})
	se, ok := pipeline.AsStageError(err)
	require.True(t, ok)
	require.Equal(t, pipeline.CodeLLMCircuitOpen, se.Code)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, 60)
	failing := errors.New("boom")

	require.Error(t, cb.Call(func() error { return failing }))
	require.Error(t, cb.Call(func() error { return failing }))
	require.NoError(t, cb.Call(func() error { return nil }))

	require.False(t, cb.IsOpen())
	require.Equal(t, 0, cb.Stats().FailureCount)
}

func TestCircuitBreaker_ResetsAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, 1)
	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	require.True(t, cb.IsOpen())

	time.Sleep(1100 * time.Millisecond)

	require.False(t, cb.IsOpen())
	require.NoError(t, cb.Call(func() error { return nil }))
}

func TestCircuitBreaker_StatsReflectCounters(t *testing.T) {
	cb := NewCircuitBreaker(2, 60)
	require.NoError(t, cb.Call(func() error { return nil }))
	require.Error(t, cb.Call(func() error { return errors.New("boom") }))

	stats := cb.Stats()
	require.Equal(t, int64(2), stats.TotalCalls)
	require.Equal(t, int64(1), stats.TotalSuccesses)
	require.Equal(t, int64(1), stats.TotalFailures)
	require.False(t, stats.IsOpen)
}

func TestCircuitBreaker_FloorsConstructorArgs(t *testing.T) {
	cb := NewCircuitBreaker(0, 0)
	require.Equal(t, 1, cb.failureThreshold)
	require.Equal(t, time.Second, cb.timeout)
}
