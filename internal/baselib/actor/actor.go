package actor

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// mergeContexts creates a new context that cancels when either parent context
// cancels, enabling handlers to respect both system shutdown and caller deadlines
// simultaneously. It preserves the shortest deadline between the two contexts
// to ensure the most restrictive timeout is honored.
//
// A background goroutine monitors both parent contexts and cancels the merged
// context when either parent cancels. The goroutine exits as soon as any
// cancellation is detected, preventing goroutine leaks. Callers must call the
// returned cancel function to release resources when the merged context is no
// longer needed.
//
// Performance note: This function spawns a goroutine for each call. For
// high-throughput handlers processing thousands of messages per second, this
// overhead should be measured. The goroutine is short-lived and exits when
// message processing completes.
func mergeContexts(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	// Get deadlines from both contexts.
	deadline1, hasDeadline1 := ctx1.Deadline()
	deadline2, hasDeadline2 := ctx2.Deadline()

	// Determine which context has the earliest deadline. By default, we'll
	// use ctx1 and only switch to ctx2 if it has an earlier deadline.
	baseCtx := ctx1
	if hasDeadline2 {
		if !hasDeadline1 || deadline2.Before(deadline1) {
			baseCtx = ctx2
		}
	}

	// Create a new context that will be cancelled explicitly.
	mergedCtx, cancel := context.WithCancel(baseCtx)

	// Watch both parent contexts and cancel the merged one when either
	// parent cancels.
	go func() {
		select {
		case <-ctx1.Done():
			cancel()
		case <-ctx2.Done():
			cancel()
		case <-mergedCtx.Done():
			// Already cancelled.
		}
	}()

	return mergedCtx, cancel
}

// HandlerConfig holds the configuration parameters for creating a new Handler.
// It is generic over M (Message type) and R (Response type) to accommodate
// the handler's specific behavior.
type HandlerConfig[M Message, R any] struct {
	// ID is the unique identifier for the handler.
	ID string

	// Behavior defines how the handler responds to messages.
	Behavior HandlerBehavior[M, R]

	// DLO is a reference to the dead letter office for this handler system.
	// If nil, undeliverable messages during shutdown or due to a full
	// queue (if such logic were added) might be dropped.
	DLO HandlerRef[Message, any]

	// QueueSize defines the buffer capacity of the handler's queue.
	QueueSize int

	// Wg is an optional WaitGroup for tracking handler lifecycle. If
	// non-nil, the handler will call Add(1) when starting and Done() when
	// its process loop exits. This enables deterministic shutdown.
	Wg *sync.WaitGroup

	// CleanupTimeout specifies the maximum duration for OnStop cleanup.
	// If None, a default of 5 seconds is used.
	CleanupTimeout fn.Option[time.Duration]
}

// envelope wraps a message with its associated promise and caller context. This
// allows the sender of an "ask" message to await a response. If the promise is
// nil, it signifies a "tell" operation (fire-and-forget). The callerCtx allows
// handlers to respect request-scoped deadlines and cancellation.
type envelope[M Message, R any] struct {
	message   M
	promise   Promise[R]
	callerCtx context.Context
}

// Handler represents a concrete handler implementation. It encapsulates a behavior,
// manages its internal state implicitly through that behavior, and processes
// messages from its queue sequentially in its own goroutine.
type Handler[M Message, R any] struct {
	// id is the unique identifier for the handler.
	id string

	// behavior defines how the handler responds to messages.
	behavior HandlerBehavior[M, R]

	// queue is the incoming message queue for the handler.
	queue Queue[M, R]

	// ctx is the context governing the handler's lifecycle.
	ctx context.Context

	// cancel is the function to cancel the handler's context.
	cancel context.CancelFunc

	// dlo is a reference to the dead letter office for this handler system.
	dlo HandlerRef[Message, any]

	// wg is an optional WaitGroup for tracking this handler's lifecycle. If
	// non-nil, Done() is called when the process loop exits.
	wg *sync.WaitGroup

	// cleanupTimeout is the maximum duration for OnStop cleanup.
	cleanupTimeout time.Duration

	// startOnce ensures the handler's processing loop is started only once.
	startOnce sync.Once

	// stopOnce ensures the handler's processing loop is stopped only once.
	stopOnce sync.Once

	// ref is the cached HandlerRef for this handler.
	ref HandlerRef[M, R]
}

// NewHandler creates a new handler instance with the given ID and behavior.
// It initializes the handler's internal structures but does not start its
// message processing goroutine. The Start() method must be called to begin
// processing messages.
func NewHandler[M Message, R any](cfg HandlerConfig[M, R]) *Handler[M, R] {
	ctx, cancel := context.WithCancel(context.Background())

	// Ensure QueueSize has a sane default if not specified or zero.
	queueCapacity := cfg.QueueSize
	if queueCapacity <= 0 {
		queueCapacity = 1
	}

	handler := &Handler[M, R]{
		id:             cfg.ID,
		behavior:       cfg.Behavior,
		queue:          NewChannelQueue[M, R](ctx, queueCapacity),
		ctx:            ctx,
		cancel:         cancel,
		dlo:            cfg.DLO,
		wg:             cfg.Wg,
		cleanupTimeout: cfg.CleanupTimeout.UnwrapOr(5 * time.Second),
	}

	// Create and cache the handler's own reference.
	handler.ref = &handlerRefImpl[M, R]{
		handler: handler,
	}

	return handler
}

// Start initiates the handler's message processing loop in a new goroutine.
// This method should be called exactly once after handler creation; repeated
// calls are safe but have no effect (enforced via startOnce). When a WaitGroup
// is configured, we increment it here to enable deterministic shutdown—the
// system can block on wg.Wait() to ensure all handler goroutines have fully
// exited before proceeding with resource cleanup.
func (a *Handler[M, R]) Start() {
	a.startOnce.Do(func() {
		log.DebugS(a.ctx, "Starting handler", "handler_id", a.id)

		if a.wg != nil {
			a.wg.Add(1)
		}
		go a.process()
	})
}

// process is the main event loop that drives handler message handling. We iterate
// over the queue using the receive iterator pattern, which automatically stops
// when the handler's context is cancelled during shutdown. The deferred Done()
// call (when wg is non-nil) ensures the WaitGroup counter is decremented even if
// the behavior panics, enabling the system to detect when all handlers have
// terminated.
func (a *Handler[M, R]) process() {
	// Decrement the WaitGroup counter when this goroutine exits. Using defer
	// ensures this runs even if the behavior panics.
	if a.wg != nil {
		defer a.wg.Done()
	}

	// Process messages from the queue using the iterator pattern. The
	// iterator will stop when the handler's context is cancelled.
	for env := range a.queue.Receive(a.ctx) {
		// For Ask messages, merge the handler's context with the
		// caller's context so the behavior can detect both handler
		// shutdown and caller deadline expiration. For Tell messages,
		// use only the handler's context to preserve fire-and-forget
		// semantics. Once a Tell message is enqueued, it should not be
		// cancelled by the caller's context.
		var processCtx context.Context
		var cancel context.CancelFunc
		if env.promise != nil {
			processCtx, cancel = mergeContexts(a.ctx, env.callerCtx)
		} else {
			processCtx = a.ctx
			cancel = func() {}
		}

		log.TraceS(processCtx, "Handler processing message",
			"handler_id", a.id,
			"msg_type", env.message.MessageType(),
			"is_ask", env.promise != nil)

		result := a.behavior.Receive(processCtx, env.message)

		cancel()

		// If a promise was provided (i.e., it was an "ask" operation),
		// complete the promise with the result from the behavior.
		if env.promise != nil {
			env.promise.Complete(result)
		}
	}

	// The handler's context has been cancelled. Close the queue to prevent
	// new messages from being enqueued, then drain any remaining messages
	// to the DLO.
	a.queue.Close()

	// Drain any remaining messages that were enqueued before the queue
	// was closed.
	drainedCount := 0
	for env := range a.queue.Drain() {
		drainedCount++

		log.TraceS(a.ctx, "Draining message from terminated handler",
			"handler_id", a.id,
			"msg_type", env.message.MessageType(),
			"has_dlo", a.dlo != nil)

		// If a DLO is configured, send the original message there for
		// auditing or potential manual reprocessing.
		if a.dlo != nil {
			a.dlo.Tell(context.Background(), env.message)
		}

		// If it was an Ask, complete the promise with an error
		// indicating the handler terminated.
		if env.promise != nil {
			env.promise.Complete(fn.Err[R](ErrHandlerTerminated))
		}
	}

	// If the behavior implements the Stoppable interface, call its OnStop
	// hook to allow cleanup of external resources. Use a timeout to ensure
	// cleanup doesn't hang indefinitely.
	if stoppable, ok := a.behavior.(Stoppable); ok {
		cleanupCtx, cancel := context.WithTimeout(
			context.Background(), a.cleanupTimeout,
		)
		defer cancel()

		if err := stoppable.OnStop(cleanupCtx); err != nil {
			log.WarnS(a.ctx, "Handler cleanup error during shutdown",
				err, "handler_id", a.id)
		}
	}

	log.DebugS(a.ctx, "Handler terminated",
		"handler_id", a.id,
		"drained_messages", drainedCount)
}

// Stop signals the handler to terminate its processing loop and shut down.
// This is achieved by cancelling the handler's internal context. The handler's
// goroutine will exit once it detects the context cancellation, then close
// the queue and drain remaining messages to the DLO.
//
// Note: Messages cannot be lost between Receive() exiting and Close() being
// called because Send() checks handlerCtx.Err() first, failing fast after
// context cancellation. Any message that passes the handlerCtx check before
// cancellation will either complete its send or see handlerCtx.Done() in the
// select and return false.
func (a *Handler[M, R]) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
	})
}

// handlerRefImpl provides a concrete implementation of the HandlerRef interface. It
// holds a reference to the target Handler instance, enabling message sending.
type handlerRefImpl[M Message, R any] struct {
	handler *Handler[M, R]
}

// Tell sends a message without waiting for a response. If the context is
// cancelled before the message can be sent to the handler's queue, the message
// may be dropped.
//
//nolint:lll
func (ref *handlerRefImpl[M, R]) Tell(ctx context.Context, msg M) {
	log.TraceS(ctx, "Sending Tell message",
		"handler_id", ref.handler.id,
		"msg_type", msg.MessageType())

	// Attempt to send the message to the queue. The queue's Send
	// method handles context cancellation and handler termination internally.
	env := envelope[M, R]{
		message:   msg,
		promise:   nil,
		callerCtx: ctx,
	}
	ok := ref.handler.queue.Send(ctx, env)

	// If the send failed, determine whether to route to DLO. We only send
	// to the DLO when the failure was due to handler termination or queue
	// closure (handler-side failures). If the caller's context was cancelled,
	// the message is intentionally dropped to preserve prior semantics
	// where caller-aborted messages are not revived via the DLO.
	if !ok {
		if ctx.Err() == nil || ref.handler.ctx.Err() != nil {
			log.DebugS(ctx, "Tell failed, routing to DLO",
				"handler_id", ref.handler.id,
				"msg_type", msg.MessageType())

			ref.trySendToDLO(msg)
		} else {
			log.TraceS(ctx, "Tell failed, caller cancelled",
				"handler_id", ref.handler.id,
				"msg_type", msg.MessageType())
		}
	}
}

// Ask sends a message and returns a Future for the response. The Future will be
// completed with the handler's reply or an error if the operation fails (e.g.,
// context cancellation before send).
//
//nolint:lll
func (ref *handlerRefImpl[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	log.TraceS(ctx, "Sending Ask message",
		"handler_id", ref.handler.id,
		"msg_type", msg.MessageType())

	// Create a new promise that will be fulfilled with the handler's
	// response.
	promise := NewPromise[R]()

	// If the handler's own context is already done, complete the promise with
	// ErrHandlerTerminated and return immediately. This is the primary guard
	// against trying to send to a stopped handler.
	if ref.handler.ctx.Err() != nil {
		log.DebugS(ctx, "Ask failed, handler already terminated",
			"handler_id", ref.handler.id,
			"msg_type", msg.MessageType())

		promise.Complete(fn.Err[R](ErrHandlerTerminated))
		return promise.Future()
	}

	// Attempt to send the message with the promise to the queue. The
	// queue's Send method handles context cancellation and handler
	// termination internally.
	env := envelope[M, R]{
		message:   msg,
		promise:   promise,
		callerCtx: ctx,
	}
	ok := ref.handler.queue.Send(ctx, env)

	// If the send failed (queue closed, context cancelled, or handler
	// terminated), complete the promise with an appropriate error.
	if !ok {
		// Determine the appropriate error based on the state. Check
		// the handler context first as handler termination takes
		// precedence over caller context cancellation.
		if ref.handler.ctx.Err() != nil {
			promise.Complete(fn.Err[R](ErrHandlerTerminated))
		} else {
			err := ctx.Err()
			if err == nil {
				// This indicates an unexpected state: the send
				// failed, but neither the handler nor the caller
				// context appears to be done. Default to
				// ErrHandlerTerminated as the most likely cause
				// (e.g., queue was closed directly).
				err = ErrHandlerTerminated
			}

			promise.Complete(fn.Err[R](err))
		}
	}

	// Return the future associated with the promise, allowing the caller to
	// await the response.
	return promise.Future()
}

// trySendToDLO attempts to send the message to the handler's DLO if configured.
func (ref *handlerRefImpl[M, R]) trySendToDLO(msg M) {
	if ref.handler.dlo != nil {
		// Use context.Background() for sending to DLO as the
		// original context might be done or the operation
		// should not be bound by it.
		// This Tell to DLO is fire-and-forget.
		ref.handler.dlo.Tell(context.Background(), msg)
	}
}

// ID returns the unique identifier for this handler.
func (ref *handlerRefImpl[M, R]) ID() string {
	return ref.handler.id
}

// Ref returns a HandlerRef for this handler. This allows clients to interact with
// the handler (send messages) without having direct access to the Handler struct
// itself, promoting encapsulation and location transparency.
func (a *Handler[M, R]) Ref() HandlerRef[M, R] {
	return a.ref
}

// TellRef returns a TellOnlyRef for this handler. This allows clients to send
// messages to the handler using only the "tell" pattern (fire-and-forget),
// without having access to "ask" capabilities.
func (a *Handler[M, R]) TellRef() TellOnlyRef[M] {
	return a.ref
}
