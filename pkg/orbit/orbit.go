// Package orbit is the public facade applications embed against: a Stage
// wrapper exposing just Start/Stop/Register plus the two entry
// points application code actually calls day to day — ActorProxyFactory for
// outbound calls and AddressableRegistry for installing externally-managed
// singletons. Everything here is a thin adapter over internal/orbitcore;
// it adds no behavior of its own.
package orbit

import (
	"context"

	"github.com/roasbeef/subtrate/internal/orbitcore/capability"
	"github.com/roasbeef/subtrate/internal/orbitcore/directory"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/stage"
	"github.com/roasbeef/subtrate/internal/orbitcore/transport"
	"github.com/roasbeef/subtrate/internal/orbitcore/wire"
)

// Config re-exports stage.Config so callers of this package never need to
// import internal/orbitcore directly.
type Config = stage.Config

// DefaultConfig re-exports stage.DefaultConfig.
func DefaultConfig() Config { return stage.DefaultConfig() }

// Stage is the embedding application's one handle onto the runtime: start
// it, register addressable interfaces and singletons against it, obtain
// proxies through it, stop it.
type Stage struct {
	inner *stage.Stage
}

// NewStage wires a Stage from its backend and transport, following the
// two-phase construction the Stage itself follows (registration may still
// happen afterward, up until Start is called).
func NewStage(cfg Config, backend directory.AddressableDirectory,
	tp transport.Transport) *Stage {

	return &Stage{inner: stage.New(cfg, backend, tp)}
}

// Register installs an addressable interface's definition and factory,
// the ordinary path for interfaces whose instances come and go under the
// ExecutionSystem's own auto-activate/auto-deactivate policy.
func (s *Stage) Register(def capability.Definition, factory capability.Factory) {
	s.inner.Register(def, factory)
}

// AddPeer records a remote node's known capabilities, so the Router can
// place new references there. In a deployment with a
// real membership/discovery service this would be driven by that service
// instead of called directly.
func (s *Stage) AddPeer(node netid.NodeIdentity, capabilities []string) {
	s.inner.AddPeer(node, capabilities)
}

// Start brings the Stage up: publishes this node's capabilities and
// launches the tick loop.
func (s *Stage) Start(ctx context.Context) error { return s.inner.Start(ctx) }

// Stop tears the Stage down: deactivates every local handler bounded by
// its configured shutdown deadline, then halts the tick loop and pools.
func (s *Stage) Stop(ctx context.Context) error { return s.inner.Stop(ctx) }

// NetSystem exposes the local node's identity/status view for
// introspection tooling (orbitmcp, orbitdocs).
func (s *Stage) NetSystem() *netid.NetSystem { return s.inner.NetSystem() }

// ActiveCount returns the number of currently active local handlers.
func (s *Stage) ActiveCount() int { return s.inner.ActiveCount() }

// ActorProxyFactory constructs ActorProxy values for a Stage. It is kept
// distinct from Stage itself so application code can pass the capability
// to "call actors" around without also handing out Start/Stop/Register.
type ActorProxyFactory struct {
	stage *Stage

	// defaultTimeoutMillis is used for proxies built via GetReference when
	// the proxy is not overridden through ActorProxy.WithTimeoutMillis.
	defaultTimeoutMillis int64
}

// NewActorProxyFactory builds a factory bound to stg, defaulting every
// proxy's call timeout to defaultTimeoutMillis unless overridden per-call.
func NewActorProxyFactory(stg *Stage, defaultTimeoutMillis int64) *ActorProxyFactory {
	return &ActorProxyFactory{stage: stg, defaultTimeoutMillis: defaultTimeoutMillis}
}

// GetReference returns a client proxy for the addressable named by
// interfaceID/key. Obtaining a proxy never itself triggers placement or
// activation — that only happens on the proxy's first call.
func (f *ActorProxyFactory) GetReference(interfaceID, key string) *ActorProxy {
	return &ActorProxy{
		stage: f.stage,
		ref: netid.AddressableReference{
			InterfaceID: interfaceID,
			Key:         key,
		},
		timeoutMillis: f.defaultTimeoutMillis,
	}
}

// ActorProxy is a client handle for one addressable reference. Every call
// to Invoke builds an outbound AddressableInvocation, submits it through
// the Stage's pipeline, and awaits its Completion. There is no
// per-interface code generation in this runtime: the proxy dispatches by
// methodID string rather than by a generated method set.
type ActorProxy struct {
	stage         *Stage
	ref           netid.AddressableReference
	timeoutMillis int64
}

// Reference returns the addressable reference this proxy targets.
func (p *ActorProxy) Reference() netid.AddressableReference { return p.ref }

// WithTimeoutMillis returns a copy of this proxy that uses timeoutMillis
// for its calls instead of the factory's default.
func (p *ActorProxy) WithTimeoutMillis(timeoutMillis int64) *ActorProxy {
	cp := *p
	cp.timeoutMillis = timeoutMillis
	return &cp
}

// Invoke calls methodID on the referenced addressable with args, blocking
// until the correlated Completion settles or ctx is cancelled.
func (p *ActorProxy) Invoke(ctx context.Context, methodID string,
	args ...any) (any, error) {

	return p.stage.inner.Invoke(ctx, wire.AddressableInvocation{
		Reference: p.ref,
		MethodID:  methodID,
		Args:      args,
	}, p.timeoutMillis)
}

// AddressableRegistry installs addressables whose lifecycle is managed by
// the embedding application rather than the ExecutionSystem's own
// auto-activate/auto-deactivate policy: a pre-built instance registered
// once, at a fixed key, that lives for the Stage's entire lifetime. This is
// the "singleton addressable" path, kept distinct from the ordinary
// per-key factory registration.
type AddressableRegistry struct {
	stage *Stage
}

// NewAddressableRegistry builds a registry bound to stg.
func NewAddressableRegistry(stg *Stage) *AddressableRegistry {
	return &AddressableRegistry{stage: stg}
}

// singletonKey is the fixed key every singleton addressable is registered
// under, since a singleton has exactly one instance per interfaceID.
const singletonKey = "singleton"

// Register installs instance as the sole addressable for interfaceID. The
// same value is returned by the factory on every (in practice, the only)
// activation, so the ExecutionSystem's ordinary get-or-create path creates
// its handler lazily on first invocation; AutoDeactivate is forced off so
// the idle sweep never tears it down; OnActivate/OnDeactivate still run
// exactly once each, same as any addressable, bracketing the registered
// instance's entire active lifetime rather than being called repeatedly.
func (r *AddressableRegistry) Register(interfaceID string, instance any) {
	r.stage.Register(capability.Definition{
		InterfaceID: interfaceID,
		Lifecycle: capability.LifecyclePolicy{
			AutoActivate:   true,
			AutoDeactivate: false,
		},
		Routing:       capability.RoutingPolicy{PreferLocal: true, Persistent: true},
		TimeoutMillis: 0,
	}, func() any { return instance })
}

// Reference returns the fixed AddressableReference a singleton registered
// under interfaceID is reachable at.
func Reference(interfaceID string) netid.AddressableReference {
	return netid.AddressableReference{InterfaceID: interfaceID, Key: singletonKey}
}

// GetSingleton returns a proxy for the singleton registered under
// interfaceID. It is a thin convenience over GetReference so callers don't
// need to know the fixed key singletons are stored at.
func (f *ActorProxyFactory) GetSingleton(interfaceID string) *ActorProxy {
	return f.GetReference(interfaceID, singletonKey)
}
