package orbitretry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAttemptSucceedsWithoutRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Attempt(context.Background(), DefaultConfig(),
		func(_ context.Context) error {
			calls++
			return nil
		})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestAttemptRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Factor:       2.0,
	}

	calls := 0
	err := Attempt(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestAttemptExhaustsAndPropagatesFinalError(t *testing.T) {
	t.Parallel()

	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Factor:       2.0,
	}

	calls := 0
	sentinel := errors.New("permanent")
	err := Attempt(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return sentinel
	})

	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 3, calls)
}

func TestAttemptStopsRetryingOnPermanentError(t *testing.T) {
	t.Parallel()

	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Factor:       2.0,
	}

	calls := 0
	sentinel := errors.New("malformed query")
	err := Attempt(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return Permanent(sentinel)
	})

	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, calls)
}

func TestAttemptHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Factor:       1.0,
	}

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Attempt(ctx, cfg, func(_ context.Context) error {
			calls++
			return errors.New("transient")
		})
	}()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Attempt did not return promptly after context cancellation")
	}
}
