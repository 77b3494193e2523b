package tracker

import (
	"context"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/roasbeef/subtrate/internal/orbitcore/clock"
	"github.com/roasbeef/subtrate/internal/orbitcore/orbiterrors"
	"github.com/roasbeef/subtrate/internal/orbitcore/wire"
)

// TestTrackThenSettle verifies a tracked completion receives the settled
// value and is removed from the pending set.
func TestTrackThenSettle(t *testing.T) {
	t.Parallel()

	clk := clock.NewManualClock(0)
	tr := New(clk)

	completion := wire.NewCompletion()
	require.NoError(t, tr.Track(1, completion, 1000))
	require.Equal(t, 1, tr.Pending())

	tr.Settle(1, fn.Ok[any]("hello"))

	result := completion.Future().Await(context.Background())
	require.True(t, result.IsOk())
	val, err := result.Unpack()
	require.NoError(t, err)
	require.Equal(t, "hello", val)
	require.Equal(t, 0, tr.Pending())
}

// TestTrackDuplicateRejected verifies a second Track call for the same
// messageId is rejected.
func TestTrackDuplicateRejected(t *testing.T) {
	t.Parallel()

	clk := clock.NewManualClock(0)
	tr := New(clk)

	require.NoError(t, tr.Track(1, wire.NewCompletion(), 1000))
	err := tr.Track(1, wire.NewCompletion(), 1000)
	require.ErrorIs(t, err, orbiterrors.ErrDuplicateTracking)
}

// TestSettleUnknownIDIgnored verifies a settle for an id that was never
// tracked (or already removed) is a silent no-op.
func TestSettleUnknownIDIgnored(t *testing.T) {
	t.Parallel()

	clk := clock.NewManualClock(0)
	tr := New(clk)

	require.NotPanics(t, func() {
		tr.Settle(42, fn.Ok[any]("ignored"))
	})
}

// TestOnTickSweepsExpired verifies onTick settles past-deadline entries
// with ErrTimeout and leaves not-yet-expired entries tracked.
func TestOnTickSweepsExpired(t *testing.T) {
	t.Parallel()

	clk := clock.NewManualClock(0)
	tr := New(clk)

	expiring := wire.NewCompletion()
	surviving := wire.NewCompletion()

	require.NoError(t, tr.Track(1, expiring, 100))
	require.NoError(t, tr.Track(2, surviving, 10_000))

	clk.Advance(150)
	tr.OnTick()

	require.Equal(t, 1, tr.Pending())

	result := expiring.Future().Await(context.Background())
	require.True(t, result.IsErr())
	_, err := result.Unpack()
	require.ErrorIs(t, err, orbiterrors.ErrTimeout)
}

// TestSettleAfterTimeoutIgnored verifies a late settle arriving after the
// sweep already removed the entry does not re-settle the completion.
func TestSettleAfterTimeoutIgnored(t *testing.T) {
	t.Parallel()

	clk := clock.NewManualClock(0)
	tr := New(clk)

	completion := wire.NewCompletion()
	require.NoError(t, tr.Track(1, completion, 100))

	clk.Advance(200)
	tr.OnTick()

	// Late response arrives; Settle must not panic or double-complete.
	require.NotPanics(t, func() {
		tr.Settle(1, fn.Ok[any]("too late"))
	})

	result := completion.Future().Await(context.Background())
	require.True(t, result.IsErr())
	_, err := result.Unpack()
	require.ErrorIs(t, err, orbiterrors.ErrTimeout)
}
