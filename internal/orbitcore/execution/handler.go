package execution

import (
	"context"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/roasbeef/subtrate/internal/orbitcore/capability"
	"github.com/roasbeef/subtrate/internal/orbitcore/clock"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/orbiterrors"
	"github.com/roasbeef/subtrate/internal/orbitcore/wire"
)

// job is one queued (invocation, completion) pair awaiting dispatch on a
// handler's worker loop.
type job struct {
	invocation wire.AddressableInvocation
	completion wire.Completion
}

// handler is the per-addressable ExecutionHandler: a single serialized
// worker loop owning one addressable instance, fed by a bounded mailbox.
// Exactly one goroutine ever touches instance, so invocations on the same
// handler never overlap.
type handler struct {
	ref      netid.AddressableReference
	def      capability.Definition
	instance any

	mailbox chan job

	state        atomic.Uint32
	lastActivity atomic.Int64

	clk clock.Clock

	// deactivate signals the worker loop to begin draining towards
	// DEAD, set either by onTick's idle sweep or by stage shutdown.
	deactivate chan struct{}

	// done closes once the worker loop has fully exited (state DEAD).
	done chan struct{}

	// removeIfLocal is invoked once, from the worker loop, when the
	// handler is torn down for any reason (activation failure or normal
	// deactivation). It is a callback rather than a direct directory
	// dependency so handler stays decoupled from the directory package.
	removeIfLocal func(context.Context, netid.AddressableReference)

	// onTerminated is invoked once the worker loop exits, so the owning
	// ExecutionSystem can remove the handler from its active map.
	onTerminated func()
}

func newHandler(ref netid.AddressableReference, def capability.Definition,
	instance any, clk clock.Clock, mailboxCapacity int,
	removeIfLocal func(context.Context, netid.AddressableReference),
	onTerminated func()) *handler {

	h := &handler{
		ref:           ref,
		def:           def,
		instance:      instance,
		mailbox:       make(chan job, mailboxCapacity),
		clk:           clk,
		deactivate:    make(chan struct{}, 1),
		done:          make(chan struct{}),
		removeIfLocal: removeIfLocal,
		onTerminated:  onTerminated,
	}
	h.state.Store(uint32(StateCreated))
	h.lastActivity.Store(clk.Now())

	return h
}

// State returns the handler's current lifecycle state. Safe to call from
// any goroutine; this is the tick sweep's only read of handler state.
func (h *handler) State() State {
	return State(h.state.Load())
}

// LastActivity returns the millis timestamp of the handler's last
// completed invocation, or its creation time if none yet.
func (h *handler) LastActivity() int64 {
	return h.lastActivity.Load()
}

// enqueue attempts a non-blocking send onto the handler's mailbox. It
// returns false if the mailbox is full; it does not look at the handler's
// state, which HandleInvocation checks before calling it.
func (h *handler) enqueue(j job) bool {
	select {
	case h.mailbox <- j:
		return true
	default:
		return false
	}
}

// requestDeactivation asks the worker loop to begin draining towards DEAD.
// It is idempotent: a second signal while already deactivating is a no-op.
func (h *handler) requestDeactivation() {
	select {
	case h.deactivate <- struct{}{}:
	default:
	}
}

// run is the handler's serialized worker loop. It owns every transition
// of state and every read/write of instance.
func (h *handler) run(ctx context.Context) {
	defer close(h.done)
	defer h.onTerminated()

	if !h.activate(ctx) {
		return
	}

	for {
		select {
		case j := <-h.mailbox:
			h.invoke(ctx, j)

		case <-h.deactivate:
			h.drainAndDie(ctx, orbiterrors.ErrDeactivating)
			return

		case <-ctx.Done():
			h.drainAndDie(context.Background(), orbiterrors.ErrCancelled)
			return
		}
	}
}

// activate runs the CREATED -> ACTIVATING -> ACTIVE transition, invoking
// instance.OnActivate if implemented. On failure it fails every queued
// completion with ActivationFailedError and tears the handler down.
func (h *handler) activate(ctx context.Context) bool {
	h.state.Store(uint32(StateActivating))

	var err error
	if activatable, ok := h.instance.(Activatable); ok {
		err = activatable.OnActivate(ctx)
	}

	if err != nil {
		log.ErrorS(ctx, "Addressable activation failed", err,
			"reference", h.ref.String())

		h.state.Store(uint32(StateDead))
		h.failAll(orbiterrors.ErrActivationFailed)
		h.removeIfLocal(context.Background(), h.ref)

		return false
	}

	h.state.Store(uint32(StateActive))
	return true
}

// invoke dispatches one queued job through the ACTIVE -> INVOKING -> ACTIVE
// cycle.
func (h *handler) invoke(ctx context.Context, j job) {
	h.state.Store(uint32(StateInvoking))

	inst, ok := h.instance.(Instance)
	if !ok {
		j.completion.Complete(fn.Err[any](orbiterrors.ErrActivationFailed))
		h.lastActivity.Store(h.clk.Now())
		h.state.Store(uint32(StateActive))
		return
	}

	result, err := inst.Invoke(ctx, j.invocation.MethodID, j.invocation.Args)

	h.lastActivity.Store(h.clk.Now())

	if err != nil {
		j.completion.Complete(fn.Err[any](err))
	} else {
		j.completion.Complete(fn.Ok(result))
	}

	h.state.Store(uint32(StateActive))
}

// drainAndDie runs the ACTIVE -> DEACTIVATING -> DEAD transition: queued
// completions fail with failErr, OnDeactivate runs best-effort, then the
// directory entry is cleared.
func (h *handler) drainAndDie(ctx context.Context, failErr error) {
	h.state.Store(uint32(StateDeactivating))

	h.failAll(failErr)

	if deactivatable, ok := h.instance.(Deactivatable); ok {
		if err := deactivatable.OnDeactivate(ctx); err != nil {
			log.WarnS(ctx, "Addressable deactivation hook failed", err,
				"reference", h.ref.String())
		}
	}

	h.state.Store(uint32(StateDead))
	h.removeIfLocal(context.Background(), h.ref)
}

// failAll drains every job currently queued, completing each with err.
func (h *handler) failAll(err error) {
	for {
		select {
		case j := <-h.mailbox:
			j.completion.Complete(fn.Err[any](err))
		default:
			return
		}
	}
}
