package actor

import (
	"context"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// TestHandlerSystemImplementsSystemContext verifies that HandlerSystem satisfies
// the SystemContext interface.
func TestHandlerSystemImplementsSystemContext(t *testing.T) {
	t.Parallel()

	system := NewHandlerSystem()
	defer func() {
		_ = system.Shutdown(context.Background())
	}()

	// Verify HandlerSystem can be used as SystemContext.
	var sysCtx SystemContext = system

	// Should be able to call interface methods.
	receptionist := sysCtx.Receptionist()
	require.NotNil(t, receptionist, "Receptionist should not be nil")

	deadLetters := sysCtx.DeadLetters()
	require.NotNil(t, deadLetters, "DeadLetters should not be nil")
}

// mockSystemContext is a test implementation of SystemContext for unit testing.
type mockSystemContext struct {
	receptionist *Receptionist
	deadLetters  HandlerRef[Message, any]
}

func newMockSystemContext(t *testing.T) *mockSystemContext {
	// Create a minimal DLO for the mock.
	dloBehavior := NewFunctionBehavior(
		func(ctx context.Context, msg Message) fn.Result[any] {
			return fn.Ok[any](nil)
		},
	)

	dloCfg := HandlerConfig[Message, any]{
		ID:        "mock-dlo",
		Behavior:  dloBehavior,
		QueueSize: 10,
	}
	dloHandler := NewHandler(dloCfg)
	dloHandler.Start()
	t.Cleanup(dloHandler.Stop)

	return &mockSystemContext{
		receptionist: newReceptionist(),
		deadLetters:  dloHandler.Ref(),
	}
}

func (m *mockSystemContext) Receptionist() *Receptionist {
	return m.receptionist
}

func (m *mockSystemContext) DeadLetters() HandlerRef[Message, any] {
	return m.deadLetters
}

// TestMockSystemContextForUnitTesting demonstrates how SystemContext enables
// unit testing without a full HandlerSystem.
func TestMockSystemContextForUnitTesting(t *testing.T) {
	t.Parallel()

	// Create a mock system context for testing.
	mockSys := newMockSystemContext(t)

	// Components can accept SystemContext instead of *HandlerSystem.
	testComponent := func(sys SystemContext) *Receptionist {
		return sys.Receptionist()
	}

	// Test the component with the mock.
	receptionist := testComponent(mockSys)
	require.NotNil(t, receptionist)

	// Can also test with real HandlerSystem.
	realSystem := NewHandlerSystem()
	defer func() {
		_ = realSystem.Shutdown(context.Background())
	}()

	receptionistReal := testComponent(realSystem)
	require.NotNil(t, receptionistReal)
}

// TestSystemContextEnablesDecoupling demonstrates using SystemContext for
// better separation of concerns.
func TestSystemContextEnablesDecoupling(t *testing.T) {
	t.Parallel()

	// Simulate a component that only needs to find handlers, not manage them.
	type handlerConsumer struct {
		sys SystemContext
	}

	newHandlerConsumer := func(sys SystemContext) *handlerConsumer {
		return &handlerConsumer{sys: sys}
	}

	// Can use with real system.
	system := NewHandlerSystem()
	defer func() {
		_ = system.Shutdown(context.Background())
	}()

	consumer := newHandlerConsumer(system)
	require.NotNil(t, consumer.sys.Receptionist())

	// Or with mock for isolated testing.
	mockSys := newMockSystemContext(t)
	mockConsumer := newHandlerConsumer(mockSys)
	require.NotNil(t, mockConsumer.sys.Receptionist())
}
