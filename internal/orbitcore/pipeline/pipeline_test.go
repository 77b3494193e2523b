package pipeline

import (
	"context"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/roasbeef/subtrate/internal/orbitcore/clock"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/wire"
)

// stubDispatcher settles every invocation it receives with a canned value,
// standing in for the ExecutionSystem in pipeline-only tests.
type stubDispatcher struct {
	result any
	err    error
}

func (d *stubDispatcher) HandleInvocation(_ context.Context,
	_ wire.AddressableInvocation, completion wire.Completion) {

	if d.err != nil {
		completion.Complete(fn.Err[any](d.err))
		return
	}
	completion.Complete(fn.Ok(d.result))
}

// TestLocalDispatchShortCircuitsSerialization verifies spec §8's round-trip
// property: a local-dispatch invocation settles its Completion with the
// dispatcher's result without ever reaching the Serialization step.
func TestLocalDispatchShortCircuitsSerialization(t *testing.T) {
	t.Parallel()

	const local netid.NodeIdentity = "node-a"

	dispatcher := &stubDispatcher{result: "pong"}
	clk := clock.NewManualClock(0)

	identity := &IdentityStep{LocalNode: local, Clock: clk}
	localDispatch := &LocalDispatchStep{LocalNode: local, Dispatcher: dispatcher}

	p := New(10, dispatcher, identity, localDispatch)

	msg := &wire.Message{
		Kind: wire.KindRequestInvocation,
		Invocation: wire.AddressableInvocation{
			Reference: netid.AddressableReference{InterfaceID: "Greeter", Key: "k1"},
			MethodID:  "ping",
		},
		Target:     netid.Unicast(local),
		Completion: wire.NewCompletion(),
	}

	require.NoError(t, p.SubmitOutbound(context.Background(), msg))

	result := msg.Completion.Future().Await(context.Background())
	require.True(t, result.IsOk())
	val, err := result.Unpack()
	require.NoError(t, err)
	require.Equal(t, "pong", val)
	require.Nil(t, msg.Payload, "local dispatch must not serialize the message")
}

// TestCapacityExceededFailsCompletion verifies a full admission queue
// settles the Completion with CapacityExceededError, per spec §4.3.
func TestCapacityExceededFailsCompletion(t *testing.T) {
	t.Parallel()

	dispatcher := &stubDispatcher{}
	p := New(0, dispatcher)

	msg := &wire.Message{
		Kind:       wire.KindRequestInvocation,
		Completion: wire.NewCompletion(),
	}

	err := p.SubmitOutbound(context.Background(), msg)
	require.Error(t, err)

	result := msg.Completion.Future().Await(context.Background())
	require.True(t, result.IsErr())
}
