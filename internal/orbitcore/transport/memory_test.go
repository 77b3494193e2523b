package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
)

func TestInMemoryTransportDeliversToRegisteredReceiver(t *testing.T) {
	t.Parallel()

	sender := NewInMemoryTransport("node-sender")
	defer sender.Close()

	receiver := NewInMemoryTransport("node-receiver")
	defer receiver.Close()

	received := make(chan []byte, 1)
	receiver.SetReceiveHandler(func(_ context.Context, from netid.NodeIdentity, payload []byte) {
		require.Equal(t, netid.NodeIdentity("node-sender"), from)
		received <- payload
	})

	require.NoError(t, sender.Send(context.Background(), "node-receiver", []byte("hello")))

	select {
	case payload := <-received:
		require.Equal(t, []byte("hello"), payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestInMemoryTransportSendToUnknownNodeFails(t *testing.T) {
	t.Parallel()

	sender := NewInMemoryTransport("node-sender-2")
	defer sender.Close()

	err := sender.Send(context.Background(), "node-nowhere", []byte("hello"))
	require.Error(t, err)
}

func TestInMemoryTransportSendWithoutReceiveHandlerFails(t *testing.T) {
	t.Parallel()

	sender := NewInMemoryTransport("node-sender-3")
	defer sender.Close()

	receiver := NewInMemoryTransport("node-receiver-3")
	defer receiver.Close()

	err := sender.Send(context.Background(), "node-receiver-3", []byte("hello"))
	require.Error(t, err)
}

func TestInMemoryTransportClosedNodeCanBeReregistered(t *testing.T) {
	t.Parallel()

	first := NewInMemoryTransport("node-reused")
	first.Close()

	second := NewInMemoryTransport("node-reused")
	defer second.Close()

	require.NotNil(t, second)
}

func TestInMemoryTransportDuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	original := NewInMemoryTransport("node-dup")
	defer original.Close()

	require.Panics(t, func() {
		NewInMemoryTransport("node-dup")
	})
}
