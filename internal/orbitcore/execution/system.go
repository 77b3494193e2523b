// Package execution implements the ExecutionSystem, the hardest subsystem
// in the runtime. It owns the local handler lifecycle:
// creating handlers on demand, serializing invocations onto each handler's
// own worker loop, and sweeping idle handlers towards deactivation on every
// stage tick.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/roasbeef/subtrate/internal/orbitcore/capability"
	"github.com/roasbeef/subtrate/internal/orbitcore/clock"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/orbiterrors"
	"github.com/roasbeef/subtrate/internal/orbitcore/wire"
)

// RemoveIfLocalFunc clears a reference's directory entry if it currently
// points at the local node. It is the ExecutionSystem's only dependency on
// the directory package, injected so this package stays free to unit-test
// against a stub.
type RemoveIfLocalFunc func(ctx context.Context, ref netid.AddressableReference)

// Config controls the ExecutionSystem's lifecycle-sweep and mailbox
// behavior.
type Config struct {
	// MailboxCapacity bounds each handler's pending invocation queue.
	MailboxCapacity int

	// TimeToLiveMillis is the idle duration after which an
	// autoDeactivate handler is signalled to deactivate.
	TimeToLiveMillis int64
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MailboxCapacity:  128,
		TimeToLiveMillis: 600_000,
	}
}

// System is the ExecutionSystem. active maps a reference to its running
// handler; the map itself is guarded by mu, but the handler's own state is
// only ever touched by its own worker goroutine (the tick sweep only
// reads it).
type System struct {
	defs          *capability.Registry
	clk           clock.Clock
	removeIfLocal RemoveIfLocalFunc
	cfg           Config

	mu     sync.Mutex
	active map[netid.AddressableReference]*handler

	rootCtx context.Context
	cancel  context.CancelFunc
}

// New creates an ExecutionSystem bound to the given capability registry,
// clock, and directory removeIfLocal callback.
func New(defs *capability.Registry, clk clock.Clock,
	removeIfLocal RemoveIfLocalFunc, cfg Config) *System {

	ctx, cancel := context.WithCancel(context.Background())

	return &System{
		defs:          defs,
		clk:           clk,
		removeIfLocal: removeIfLocal,
		cfg:           cfg,
		active:        make(map[netid.AddressableReference]*handler),
		rootCtx:       ctx,
		cancel:        cancel,
	}
}

// HandleInvocation resolves the definition, finds or creates the handler,
// and enqueues the invocation onto its mailbox. Any failure settles
// completion directly rather than returning an error, since the caller is
// the pipeline's LocalDispatch step, which has nothing further to do with
// a synchronous error here.
func (s *System) HandleInvocation(ctx context.Context,
	invocation wire.AddressableInvocation, completion wire.Completion) {

	def, ok := s.defs.Definition(invocation.Reference.InterfaceID)
	if !ok {
		completion.Complete(fn.Err[any](fmt.Errorf(
			"%w: no definition for interface %q",
			orbiterrors.ErrNoActiveAddressable,
			invocation.Reference.InterfaceID,
		)))
		return
	}

	h, ok := s.getOrCreate(invocation.Reference, def)
	if !ok {
		completion.Complete(fn.Err[any](fmt.Errorf(
			"%w: %s", orbiterrors.ErrNoActiveAddressable,
			invocation.Reference.String(),
		)))
		return
	}

	if h.State() >= StateDeactivating {
		completion.Complete(fn.Err[any](orbiterrors.ErrDeactivating))
		return
	}

	if !h.enqueue(job{invocation: invocation, completion: completion}) {
		completion.Complete(fn.Err[any](orbiterrors.ErrCapacityExceeded))
	}
}

// getOrCreate performs the single-winner get-or-put onto the local active
// map. If no handler exists and the definition auto-activates, a new
// handler is constructed in state CREATED and its worker loop started
// before the map lock is released to any other caller racing the same
// reference.
func (s *System) getOrCreate(ref netid.AddressableReference,
	def capability.Definition) (*handler, bool) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if h, exists := s.active[ref]; exists {
		return h, true
	}

	if !def.Lifecycle.AutoActivate {
		return nil, false
	}

	instance, ok := s.defs.NewInstance(def.InterfaceID)
	if !ok {
		return nil, false
	}

	h := newHandler(
		ref, def, instance, s.clk, s.cfg.MailboxCapacity,
		s.removeIfLocal,
		func() { s.removeActive(ref) },
	)
	s.active[ref] = h

	go h.run(s.rootCtx)

	return h, true
}

// removeActive deletes ref from the active map. Called once a handler's
// worker loop has exited, whatever the reason.
func (s *System) removeActive(ref netid.AddressableReference) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, ref)
}

// OnTick signals every handler whose definition wants autoDeactivate and
// has been idle past TimeToLiveMillis to deactivate. The sweep only reads
// handler.LastActivity and State — mutation stays confined to the
// handler's own worker goroutine.
func (s *System) OnTick() {
	now := s.clk.Now()

	s.mu.Lock()
	candidates := make([]*handler, 0, len(s.active))
	for _, h := range s.active {
		candidates = append(candidates, h)
	}
	s.mu.Unlock()

	for _, h := range candidates {
		if !h.def.Lifecycle.AutoDeactivate {
			continue
		}
		if h.State() != StateActive {
			continue
		}
		if now-h.LastActivity() <= s.cfg.TimeToLiveMillis {
			continue
		}

		h.requestDeactivation()
	}
}

// Shutdown signals every active handler to deactivate and waits, bounded
// by deadline, for all of their worker loops to exit.
func (s *System) Shutdown(deadline time.Duration) {
	s.mu.Lock()
	handlers := make([]*handler, 0, len(s.active))
	for _, h := range s.active {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h.requestDeactivation()
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for _, h := range handlers {
		select {
		case <-h.done:
		case <-timer.C:
			s.cancel()
			return
		}
	}
}

// ActiveCount returns the number of currently active handlers, for
// diagnostics and tests.
func (s *System) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.active)
}
