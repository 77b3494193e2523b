package execution

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/subtrate/internal/orbitcore/capability"
	"github.com/roasbeef/subtrate/internal/orbitcore/clock"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/orbiterrors"
	"github.com/roasbeef/subtrate/internal/orbitcore/wire"
)

type greeterInstance struct {
	activateCount   atomic.Int32
	deactivateCount atomic.Int32
	failActivate    bool
	block           chan struct{}
	started         chan struct{}
}

func (g *greeterInstance) OnActivate(context.Context) error {
	g.activateCount.Add(1)
	if g.failActivate {
		return errors.New("boom")
	}
	return nil
}

func (g *greeterInstance) OnDeactivate(context.Context) error {
	g.deactivateCount.Add(1)
	return nil
}

func (g *greeterInstance) Invoke(_ context.Context, methodID string,
	args []any) (any, error) {

	if g.block != nil {
		if g.started != nil {
			close(g.started)
		}
		<-g.block
	}

	switch methodID {
	case "greet":
		return "hello " + args[0].(string), nil
	default:
		return nil, errors.New("unknown method")
	}
}

func newTestSystem(t *testing.T, def capability.Definition,
	factory capability.Factory, cfg Config) (*System, *clock.ManualClock) {

	t.Helper()

	defs := capability.NewRegistry()
	defs.Register(def, factory)

	clk := clock.NewManualClock(0)

	sys := New(defs, clk, func(context.Context, netid.AddressableReference) {}, cfg)

	return sys, clk
}

func TestHandleInvocationActivatesAndInvokes(t *testing.T) {
	t.Parallel()

	inst := &greeterInstance{}
	def := capability.Definition{
		InterfaceID: "Greeter",
		Lifecycle:   capability.LifecyclePolicy{AutoActivate: true},
	}

	sys, _ := newTestSystem(t, def, func() any { return inst }, DefaultConfig())

	ref := netid.AddressableReference{InterfaceID: "Greeter", Key: "k1"}
	completion := wire.NewCompletion()

	sys.HandleInvocation(context.Background(), wire.AddressableInvocation{
		Reference: ref,
		MethodID:  "greet",
		Args:      []any{"world"},
	}, completion)

	result := completion.Future().Await(context.Background())
	require.True(t, result.IsOk())
	val, err := result.Unpack()
	require.NoError(t, err)
	require.Equal(t, "hello world", val)
	require.Equal(t, int32(1), inst.activateCount.Load())
	require.Equal(t, 1, sys.ActiveCount())
}

func TestHandleInvocationNoAutoActivateFailsWhenAbsent(t *testing.T) {
	t.Parallel()

	def := capability.Definition{
		InterfaceID: "Greeter",
		Lifecycle:   capability.LifecyclePolicy{AutoActivate: false},
	}

	sys, _ := newTestSystem(t, def, func() any { return &greeterInstance{} }, DefaultConfig())

	completion := wire.NewCompletion()
	sys.HandleInvocation(context.Background(), wire.AddressableInvocation{
		Reference: netid.AddressableReference{InterfaceID: "Greeter", Key: "k1"},
		MethodID:  "greet",
		Args:      []any{"world"},
	}, completion)

	result := completion.Future().Await(context.Background())
	require.True(t, result.IsErr())
	_, err := result.Unpack()
	require.ErrorIs(t, err, orbiterrors.ErrNoActiveAddressable)
}

func TestActivationFailureFailsCompletionAndRemoves(t *testing.T) {
	t.Parallel()

	inst := &greeterInstance{failActivate: true}
	def := capability.Definition{
		InterfaceID: "Greeter",
		Lifecycle:   capability.LifecyclePolicy{AutoActivate: true},
	}

	sys, _ := newTestSystem(t, def, func() any { return inst }, DefaultConfig())

	completion := wire.NewCompletion()
	sys.HandleInvocation(context.Background(), wire.AddressableInvocation{
		Reference: netid.AddressableReference{InterfaceID: "Greeter", Key: "k1"},
		MethodID:  "greet",
		Args:      []any{"world"},
	}, completion)

	result := completion.Future().Await(context.Background())
	require.True(t, result.IsErr())
	_, err := result.Unpack()
	require.ErrorIs(t, err, orbiterrors.ErrActivationFailed)

	require.Eventually(t, func() bool {
		return sys.ActiveCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestOnTickDeactivatesIdleHandler(t *testing.T) {
	t.Parallel()

	inst := &greeterInstance{}
	def := capability.Definition{
		InterfaceID: "Greeter",
		Lifecycle: capability.LifecyclePolicy{
			AutoActivate:   true,
			AutoDeactivate: true,
		},
	}

	cfg := Config{MailboxCapacity: 8, TimeToLiveMillis: 100}
	sys, clk := newTestSystem(t, def, func() any { return inst }, cfg)

	completion := wire.NewCompletion()
	sys.HandleInvocation(context.Background(), wire.AddressableInvocation{
		Reference: netid.AddressableReference{InterfaceID: "Greeter", Key: "k1"},
		MethodID:  "greet",
		Args:      []any{"world"},
	}, completion)
	completion.Future().Await(context.Background())

	clk.Advance(200)
	sys.OnTick()

	require.Eventually(t, func() bool {
		return sys.ActiveCount() == 0
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), inst.deactivateCount.Load())
}

func TestMailboxOverflowFailsExcessInvocations(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	started := make(chan struct{})
	inst := &greeterInstance{block: block, started: started}
	def := capability.Definition{
		InterfaceID: "Greeter",
		Lifecycle:   capability.LifecyclePolicy{AutoActivate: true},
	}

	cfg := Config{MailboxCapacity: 2, TimeToLiveMillis: 600_000}
	sys, _ := newTestSystem(t, def, func() any { return inst }, cfg)

	ref := netid.AddressableReference{InterfaceID: "Greeter", Key: "k1"}

	dispatch := func() wire.Completion {
		c := wire.NewCompletion()
		sys.HandleInvocation(context.Background(), wire.AddressableInvocation{
			Reference: ref,
			MethodID:  "greet",
			Args:      []any{"world"},
		}, c)
		return c
	}

	// inv1 is picked up by the worker loop immediately and blocks inside
	// Invoke, leaving the mailbox itself empty.
	inv1 := dispatch()
	<-started

	// The mailbox (capacity 2) now admits exactly two more invocations
	// before a third is rejected with CapacityExceededError.
	inv2 := dispatch()
	inv3 := dispatch()
	inv4 := dispatch()
	inv5 := dispatch()

	close(block)

	requireOk := func(c wire.Completion) {
		result := c.Future().Await(context.Background())
		require.True(t, result.IsOk())
	}
	requireOverflow := func(c wire.Completion) {
		result := c.Future().Await(context.Background())
		require.True(t, result.IsErr())
		_, err := result.Unpack()
		require.ErrorIs(t, err, orbiterrors.ErrCapacityExceeded)
	}

	requireOk(inv1)
	requireOk(inv2)
	requireOk(inv3)
	requireOverflow(inv4)
	requireOverflow(inv5)
}
