package actor

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// TestBaseHandlerRefStrongerTyping verifies that BaseHandlerRef provides stronger
// typing than any in the Receptionist.
func TestBaseHandlerRefStrongerTyping(t *testing.T) {
	t.Parallel()

	receptionist := newReceptionist()

	behavior := NewFunctionBehavior(
		func(ctx context.Context, msg *testMsg) fn.Result[string] {
			return fn.Ok("ok")
		},
	)

	handler := NewHandler(HandlerConfig[*testMsg, string]{
		ID:        "test-handler",
		Behavior:  behavior,
		QueueSize: 10,
	})
	handler.Start()
	defer handler.Stop()

	key := NewServiceKey[*testMsg, string]("test-service")
	err := RegisterWithReceptionist(receptionist, key, handler.Ref())
	require.NoError(t, err)

	// Verify we can access the registrations as BaseHandlerRef.
	receptionist.mu.RLock()
	baseRefs := receptionist.registrations["test-service"]
	receptionist.mu.RUnlock()

	require.Len(t, baseRefs, 1)

	// BaseHandlerRef provides ID() method directly.
	require.Equal(t, "test-handler", baseRefs[0].ID())
}

// TestHandlerRefImplementsBaseHandlerRef verifies that HandlerRef satisfies
// BaseHandlerRef.
func TestHandlerRefImplementsBaseHandlerRef(t *testing.T) {
	t.Parallel()

	behavior := NewFunctionBehavior(
		func(ctx context.Context, msg *testMsg) fn.Result[string] {
			return fn.Ok("ok")
		},
	)

	handler := NewHandler(HandlerConfig[*testMsg, string]{
		ID:        "base-test",
		Behavior:  behavior,
		QueueSize: 10,
	})
	handler.Start()
	defer handler.Stop()

	// HandlerRef should be assignable to BaseHandlerRef.
	var baseRef BaseHandlerRef = handler.Ref()
	require.NotNil(t, baseRef)
	require.Equal(t, "base-test", baseRef.ID())
}

// TestRouterImplementsBaseHandlerRef verifies that Router satisfies BaseHandlerRef.
func TestRouterImplementsBaseHandlerRef(t *testing.T) {
	t.Parallel()

	system := NewHandlerSystem()
	defer func() {
		_ = system.Shutdown(context.Background())
	}()

	key := NewServiceKey[*testMsg, string]("router-test")

	// Create a router using key.Ref.
	router := key.Ref(system)

	// Router should be assignable to BaseHandlerRef.
	var baseRef BaseHandlerRef = router
	require.NotNil(t, baseRef)
	require.Contains(t, baseRef.ID(), "router")
}

// firstHandlerStrategy always selects the first available handler.
type firstHandlerStrategy[M Message, R any] struct{}

func (s *firstHandlerStrategy[M, R]) Select(handlers []HandlerRef[M, R]) (HandlerRef[M, R], error) {
	if len(handlers) == 0 {
		return nil, ErrNoHandlersAvailable
	}
	return handlers[0], nil
}

// TestFunctionalOptionsWithCustomStrategy verifies that WithStrategy option
// works correctly.
func TestFunctionalOptionsWithCustomStrategy(t *testing.T) {
	t.Parallel()

	system := NewHandlerSystem()
	defer func() {
		_ = system.Shutdown(context.Background())
	}()

	// Track which handlers get selected.
	var handler1Selected, handler2Selected atomic.Int32

	behavior1 := NewFunctionBehavior(
		func(ctx context.Context, msg *testMsg) fn.Result[string] {
			handler1Selected.Add(1)
			return fn.Ok("handler1")
		},
	)

	behavior2 := NewFunctionBehavior(
		func(ctx context.Context, msg *testMsg) fn.Result[string] {
			handler2Selected.Add(1)
			return fn.Ok("handler2")
		},
	)

	key := NewServiceKey[*testMsg, string]("custom-strategy-test")
	_ = RegisterWithSystem(system, "handler-1", key, behavior1)
	_ = RegisterWithSystem(system, "handler-2", key, behavior2)

	// Get ref with custom strategy that always picks first handler.
	customStrategy := &firstHandlerStrategy[*testMsg, string]{}
	ref := key.Ref(system, WithStrategy[*testMsg, string](customStrategy))

	// Send multiple messages - all should go to first handler.
	for i := 0; i < 10; i++ {
		result := ref.Ask(context.Background(), newTestMsg("test")).
			Await(context.Background())
		require.True(t, result.IsOk())
	}

	// Verify only handler1 was selected (custom strategy working).
	require.Equal(t, int32(10), handler1Selected.Load(),
		"Handler 1 should receive all 10 messages")
	require.Equal(t, int32(0), handler2Selected.Load(),
		"Handler 2 should receive no messages")
}
