package stage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/subtrate/internal/orbitcore/capability"
	"github.com/roasbeef/subtrate/internal/orbitcore/directory"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/transport"
	"github.com/roasbeef/subtrate/internal/orbitcore/wire"
)

// greeter is a minimal addressable used to exercise end-to-end local
// activation and invocation through a running Stage.
type greeter struct{}

func (g *greeter) Invoke(_ context.Context, methodID string, args []any) (any, error) {
	name, _ := args[0].(string)
	return "hello " + name, nil
}

func newTestStage(t *testing.T, node netid.NodeIdentity,
	mutate func(*Config)) *Stage {

	t.Helper()

	tp := transport.NewInMemoryTransport(node)
	t.Cleanup(tp.Close)

	cfg := DefaultConfig()
	cfg.NodeIdentity = node
	cfg.ClusterName = "test-cluster"
	cfg.TickRateMillis = 50
	if mutate != nil {
		mutate(&cfg)
	}

	s := New(cfg, directory.NewMemoryBackend(), tp)
	s.Register(capability.Definition{
		InterfaceID:   "Greeter",
		Lifecycle:     capability.LifecyclePolicy{AutoActivate: true, AutoDeactivate: true},
		Routing:       capability.RoutingPolicy{PreferLocal: true},
		TimeoutMillis: 5000,
	}, func() any { return &greeter{} })

	return s
}

// TestLocalActivationAndInvocation exercises spec §8 scenario 1: a
// preferLocal interface activates on the calling node and settles with the
// instance's return value.
func TestLocalActivationAndInvocation(t *testing.T) {
	t.Parallel()

	s := newTestStage(t, "node-local-1", nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	result, err := s.Invoke(context.Background(), wire.AddressableInvocation{
		Reference: netid.AddressableReference{InterfaceID: "Greeter", Key: "k1"},
		MethodID:  "sayHi",
		Args:      []any{"world"},
	}, 1000)

	require.NoError(t, err)
	require.Equal(t, "hello world", result)
	require.Equal(t, 1, s.ActiveCount())
}

// TestStartStopLifecycle exercises the STOPPED -> RUNNING -> STOPPED
// transitions and rejects invalid transitions (spec §4.6).
func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStage(t, "node-lifecycle-1", nil)

	require.Error(t, s.Stop(context.Background()), "cannot stop before starting")

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()), "cannot start twice")

	require.NoError(t, s.Stop(context.Background()))
	require.Error(t, s.Stop(context.Background()), "cannot stop twice")
}

// TestIdleDeactivationOnTick exercises spec §8 scenario 5: a short TTL and
// fast tick rate deactivates an idle handler automatically.
func TestIdleDeactivationOnTick(t *testing.T) {
	t.Parallel()

	s := newTestStage(t, "node-idle-1", func(cfg *Config) {
		cfg.TimeToLiveMillis = 1
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	_, err := s.Invoke(context.Background(), wire.AddressableInvocation{
		Reference: netid.AddressableReference{InterfaceID: "Greeter", Key: "k1"},
		MethodID:  "sayHi",
		Args:      []any{"world"},
	}, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, s.ActiveCount())

	require.Eventually(t, func() bool {
		return s.ActiveCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}
