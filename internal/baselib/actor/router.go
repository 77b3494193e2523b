package actor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrNoHandlersAvailable is returned by a RoutingStrategy when no handlers are
// registered under the service key it was asked to pick from.
var ErrNoHandlersAvailable = errors.New("no handlers available for service")

// RoutingStrategy selects one handler from a slice of candidates registered
// under a ServiceKey. Implementations must be safe for concurrent use, since
// a Router may invoke Select from many goroutines simultaneously.
type RoutingStrategy[M Message, R any] interface {
	// Select picks one of the given handlers to receive the next message.
	// It returns ErrNoHandlersAvailable (or a wrapping error) if handlers is
	// empty.
	Select(handlers []HandlerRef[M, R]) (HandlerRef[M, R], error)
}

// roundRobinStrategy cycles through the candidate handlers in order.
type roundRobinStrategy[M Message, R any] struct {
	next atomic.Uint64
}

// NewRoundRobinStrategy creates a RoutingStrategy that distributes messages
// evenly, in order, across the candidate handlers.
func NewRoundRobinStrategy[M Message, R any]() RoutingStrategy[M, R] {
	return &roundRobinStrategy[M, R]{}
}

// Select implements RoutingStrategy.
func (s *roundRobinStrategy[M, R]) Select(
	handlers []HandlerRef[M, R]) (HandlerRef[M, R], error) {

	if len(handlers) == 0 {
		return nil, ErrNoHandlersAvailable
	}

	idx := s.next.Add(1) - 1

	return handlers[idx%uint64(len(handlers))], nil
}

// Router is a virtual HandlerRef that resolves its target dynamically, on
// every send, by looking up the current set of handlers registered under a
// ServiceKey in the Receptionist and delegating the pick to a
// RoutingStrategy. This gives callers location transparency: as handlers are
// registered or unregistered, the router's view updates automatically.
type Router[M Message, R any] struct {
	receptionist *Receptionist
	key          ServiceKey[M, R]
	strategy     RoutingStrategy[M, R]
	dlo          HandlerRef[Message, any]
}

// NewRouter creates a new Router for the given service key, using strategy
// to pick among the currently registered handlers. dlo receives messages that
// cannot be routed (e.g. because no handler is currently registered).
func NewRouter[M Message, R any](receptionist *Receptionist,
	key ServiceKey[M, R], strategy RoutingStrategy[M, R],
	dlo HandlerRef[Message, any],
) HandlerRef[M, R] {

	return &Router[M, R]{
		receptionist: receptionist,
		key:          key,
		strategy:     strategy,
		dlo:          dlo,
	}
}

// ID returns an identifier for this router, derived from its service key.
func (r *Router[M, R]) ID() string {
	return fmt.Sprintf("router(%s)", r.key.name)
}

// resolve looks up the current candidates and asks the strategy to pick one.
func (r *Router[M, R]) resolve() (HandlerRef[M, R], error) {
	candidates := FindInReceptionist(r.receptionist, r.key)
	return r.strategy.Select(candidates)
}

// Tell resolves a target handler and forwards the message fire-and-forget. If
// no handler can be resolved, the message is routed to the dead letter office
// instead.
func (r *Router[M, R]) Tell(ctx context.Context, msg M) {
	target, err := r.resolve()
	if err != nil {
		log.DebugS(ctx, "Router failed to resolve target, routing to DLO",
			"service_key", r.key.name, "err", err)

		if r.dlo != nil {
			r.dlo.Tell(ctx, msg)
		}

		return
	}

	target.Tell(ctx, msg)
}

// Ask resolves a target handler and forwards the message, returning its
// Future. If no handler can be resolved, the returned Future is already
// completed with the resolution error.
func (r *Router[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	target, err := r.resolve()
	if err != nil {
		p := NewPromise[R]()
		p.Complete(fn.Err[R](err))
		return p.Future()
	}

	return target.Ask(ctx, msg)
}

// Ensure Router implements HandlerRef.
var _ HandlerRef[Message, any] = (*Router[Message, any])(nil)
