package actor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// registerConfig holds optional configuration for handler registration.
type registerConfig struct {
	// cleanupTimeout overrides the default OnStop cleanup timeout.
	cleanupTimeout fn.Option[time.Duration]
}

// RegisterOption is a functional option for configuring handler registration
// via RegisterWithSystem.
type RegisterOption func(*registerConfig)

// WithCleanupTimeout sets the OnStop cleanup timeout for the handler. If not
// specified, the default of 5 seconds is used. Use a longer timeout for
// handlers that manage external subprocesses requiring graceful shutdown.
func WithCleanupTimeout(d time.Duration) RegisterOption {
	return func(cfg *registerConfig) {
		cfg.cleanupTimeout = fn.Some(d)
	}
}

// stoppable defines an interface for components that can be stopped.
// This is unexported as it's an internal detail of HandlerSystem for managing
// handlers that need to be shut down.
type stoppable interface {
	Stop()
}

// SystemConfig holds configuration parameters for the HandlerSystem.
type SystemConfig struct {
	// QueueCapacity is the default capacity for handler queues.
	QueueCapacity int
}

// DefaultConfig returns a default configuration for the HandlerSystem.
func DefaultConfig() SystemConfig {
	return SystemConfig{
		QueueCapacity: 100,
	}
}

// HandlerSystem manages the lifecycle of handlers and provides coordination
// services such as a receptionist for handler discovery and a dead letter office
// for undeliverable messages. It also handles the graceful shutdown of all
// managed handlers.
type HandlerSystem struct {
	// receptionist is used for handler discovery.
	receptionist *Receptionist

	// handlers stores all handlers managed by the system, keyed by their ID.
	// This includes the deadLetterHandler.
	handlers map[string]stoppable

	// deadLetterHandler handles undeliverable messages.
	deadLetterHandler HandlerRef[Message, any]

	// config holds the system-wide configuration.
	config SystemConfig

	// mu protects the 'handlers' map.
	mu sync.RWMutex

	// ctx is the main context for the handler system.
	ctx context.Context

	// cancel cancels the main system context.
	cancel context.CancelFunc

	// handlerWg tracks running handler goroutines for deterministic shutdown.
	handlerWg sync.WaitGroup
}

// NewHandlerSystem creates a new handler system using the default configuration.
func NewHandlerSystem() *HandlerSystem {
	return NewHandlerSystemWithConfig(DefaultConfig())
}

// NewHandlerSystemWithConfig creates a new handler system with custom configuration
func NewHandlerSystemWithConfig(config SystemConfig) *HandlerSystem {
	ctx, cancel := context.WithCancel(context.Background())

	// Initialize the core HandlerSystem components.
	system := &HandlerSystem{
		receptionist: newReceptionist(),
		config:       config,
		handlers:     make(map[string]stoppable),
		ctx:          ctx,
		cancel:       cancel,
	}

	// Define the behavior for the dead letter handler. It simply returns an
	// error indicating the message was undeliverable.
	deadLetterBehavior := NewFunctionBehavior(
		func(ctx context.Context, msg Message) fn.Result[any] {
			return fn.Err[any](errors.New(
				"message undeliverable: " + msg.MessageType(),
			))
		},
	)

	// Create the raw dead letter handler (*Handler instance). The DLO's own DLO
	// reference is nil to prevent loops if messages to the DLO itself fail.
	deadLetterHandlerCfg := HandlerConfig[Message, any]{
		ID:        "dead-letters",
		Behavior:  deadLetterBehavior,
		DLO:       nil,
		QueueSize: config.QueueCapacity,
		Wg:        &system.handlerWg,
	}
	deadLetterRawHandler := NewHandler[Message, any](deadLetterHandlerCfg)
	deadLetterRawHandler.Start()
	system.deadLetterHandler = deadLetterRawHandler.Ref()

	// Add the raw handler to the map of stoppable handlers. No lock needed here
	// as 'system' is not yet accessible concurrently.
	system.handlers[deadLetterRawHandler.id] = deadLetterRawHandler

	// The system is now fully initialized and ready.
	return system
}

// newStoppedHandlerRef creates a stopped handler reference with the given ID.
// This is used to return a safe non-nil reference when handler creation fails,
// ensuring any calls to the returned ref will fail with ErrHandlerTerminated
// rather than causing a nil pointer panic.
func newStoppedHandlerRef[M Message, R any](id string) HandlerRef[M, R] {
	cfg := HandlerConfig[M, R]{ID: id}
	handler := NewHandler(cfg)
	handler.Stop()
	return handler.Ref()
}

// RegisterWithSystem creates a handler with the given ID, service key, and
// behavior within the specified HandlerSystem. It starts the handler, adds it to
// the system's management, registers it with the receptionist using the
// provided key, and returns its HandlerRef.
func RegisterWithSystem[M Message, R any](as *HandlerSystem, id string, key ServiceKey[M, R],
	behavior HandlerBehavior[M, R], opts ...RegisterOption,
) HandlerRef[M, R] {
	if as.ctx.Err() != nil {
		// To avoid returning nil and causing a panic, we can create and
		// return a reference to a dummy handler that is already stopped.
		// This ensures that any calls to the returned ref will fail
		// with ErrHandlerTerminated.
		return newStoppedHandlerRef[M, R](id)
	}

	// Apply functional options.
	var regCfg registerConfig
	for _, opt := range opts {
		opt(&regCfg)
	}

	handlerCfg := HandlerConfig[M, R]{
		ID:             id,
		Behavior:       behavior,
		DLO:            as.deadLetterHandler,
		QueueSize:      as.config.QueueCapacity,
		Wg:             &as.handlerWg,
		CleanupTimeout: regCfg.cleanupTimeout,
	}
	handlerInstance := NewHandler(handlerCfg)
	handlerInstance.Start()

	// Add the handler instance to the system's list of stoppable handlers.
	// This map is protected by the system's mutex.
	as.mu.Lock()
	as.handlers[handlerInstance.id] = handlerInstance
	as.mu.Unlock()

	// Register the handler's reference with the receptionist under the given
	// service key, making it discoverable by other parts of the system.
	err := RegisterWithReceptionist(as.receptionist, key, handlerInstance.Ref())
	if err != nil {
		// Type mismatch detected. Stop the handler we just created and
		// return a dummy stopped handler to avoid nil panic.
		handlerInstance.Stop()
		as.mu.Lock()
		delete(as.handlers, handlerInstance.id)
		as.mu.Unlock()

		return newStoppedHandlerRef[M, R](id)
	}

	log.DebugS(as.ctx, "Handler registered with system",
		"handler_id", id,
		"service_key", key.name)

	return handlerInstance.Ref()
}

// Receptionist returns the system's receptionist, which can be used for
// handler service discovery (finding handlers by ServiceKey).
func (as *HandlerSystem) Receptionist() *Receptionist {
	return as.receptionist
}

// DeadLetters returns a reference to the system's dead letter handler. Messages
// that cannot be delivered to their intended recipient (e.g., if an Ask
// context is cancelled before enqueuing) may be routed here if not otherwise
// handled.
func (as *HandlerSystem) DeadLetters() HandlerRef[Message, any] {
	return as.deadLetterHandler
}

// Shutdown gracefully stops the handler system and waits for all handlers to
// finish processing. It iterates through all managed handlers, calls their Stop
// method, and then blocks until all handler goroutines have exited or the
// provided context expires. This ensures deterministic shutdown with guaranteed
// resource cleanup. This method is safe for concurrent use.
func (as *HandlerSystem) Shutdown(ctx context.Context) error {
	// Cancel the main system context first to prevent new handler
	// registrations. Any RegisterWithSystem call that occurs after this
	// point will see as.ctx.Err() != nil and return a dummy stopped handler.
	// This ordering is critical to prevent a race where a new handler could
	// be registered and increment the WaitGroup after we snapshot but
	// before we wait, causing indefinite blocking.
	as.cancel()

	// Create a slice of handlers to stop. This avoids holding the lock while
	// calling Stop() on each handler, and includes the dead letter handler.
	var handlersToStop []stoppable
	as.mu.RLock()
	for _, handler := range as.handlers {
		handlersToStop = append(handlersToStop, handler)
	}
	as.mu.RUnlock()

	log.InfoS(ctx, "Handler system shutting down",
		"num_handlers", len(handlersToStop))

	// Notify all managed handlers to stop. Handler.Stop() is non-blocking.
	// Each handler's Stop method will cancel its internal context, leading
	// to the termination of its processing goroutine.
	for _, handler := range handlersToStop {
		handler.Stop()
	}

	// Clear the handlers map after initiating their shutdown.
	as.mu.Lock()
	as.handlers = nil
	as.mu.Unlock()

	// Wait for all handler goroutines to exit. We launch a goroutine to wait
	// on the WaitGroup so we can also respect the context deadline. If the
	// context times out, this goroutine continues running until the
	// WaitGroup reaches zero (which could be indefinite if handlers are truly
	// hung). This is acceptable since shutdown timeouts indicate abnormal
	// conditions and the single goroutine overhead is negligible compared
	// to potentially leaked handler goroutines.
	done := make(chan struct{})
	go func() {
		as.handlerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// All handlers have finished processing.
		log.InfoS(ctx, "Handler system shutdown completed")

		return nil

	case <-ctx.Done():
		// Context expired before all handlers finished—some goroutines
		// are still running and may leak. This indicates either
		// misbehaving handlers or insufficient shutdown timeout.
		log.ErrorS(ctx, "Handler system shutdown incomplete, "+
			"some handlers may have leaked", ctx.Err())

		return ctx.Err()
	}
}

// StopAndRemoveHandler stops a specific handler by its ID and removes it from the
// HandlerSystem's management. It returns true if the handler was found and stopped,
// false otherwise.
func (as *HandlerSystem) StopAndRemoveHandler(id string) bool {
	as.mu.Lock()
	defer as.mu.Unlock()

	handlerToStop, exists := as.handlers[id]
	if !exists {
		return false
	}

	// Stop the handler. This is non-blocking.
	handlerToStop.Stop()

	// Remove from the system's management.
	delete(as.handlers, id)

	log.DebugS(as.ctx, "Handler stopped and removed from system",
		"handler_id", id)

	return true
}

// UnregisterFromReceptionist removes a handler reference from a service key in
// the given receptionist. It returns true if the reference was found and
// removed, and false otherwise. This is a package-level generic function
// because methods cannot have their own type parameters in Go.
func UnregisterFromReceptionist[M Message, R any](r *Receptionist,
	key ServiceKey[M, R], refToRemove HandlerRef[M, R],
) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	refs, exists := r.registrations[key.name]
	if !exists {
		return false
	}

	found := false

	// Build a new slice containing only the references that are not the one
	// to be removed.
	newRefs := make([]BaseHandlerRef, 0, len(refs)-1)
	for _, baseRef := range refs {
		// Try to assert the base ref to the specific HandlerRef[M,R] type.
		if specificHandlerRef, ok := baseRef.(HandlerRef[M, R]); ok {
			// If the type assertion is successful and it's the one
			// we want to remove, mark as found and skip adding it
			// to newRefs.
			if specificHandlerRef == refToRemove {
				found = true
				continue // Don't add to newRefs, effectively removing it.
			}
		}
		newRefs = append(newRefs, baseRef)
	}

	if !found {
		return false
	}

	// If the new list of references is empty, remove the key from the map
	// and clean up the type registry. This prevents memory leaks and allows
	// re-registration with different types after all handlers are unregistered.
	if len(newRefs) == 0 {
		delete(r.registrations, key.name)
		delete(r.typeRegistry, key.name)
	} else {
		r.registrations[key.name] = newRefs
	}

	return true
}

// ServiceKey is a type-safe identifier used for registering and discovering
// handlers via the Receptionist. The generic type parameters M (Message) and R
// (Response) ensure that only handlers handling compatible message/response types
// are associated with and retrieved for this key.
type ServiceKey[M Message, R any] struct {
	name string
}

// NewServiceKey creates a new service key with the given name. The name is used
// as the lookup key within the Receptionist.
func NewServiceKey[M Message, R any](name string) ServiceKey[M, R] {
	return ServiceKey[M, R]{name: name}
}

// Spawn registers a handler for this service key within the given HandlerSystem.
// It's a convenience method that calls RegisterWithSystem, starting the handler
// and registering it with the receptionist.
func (sk ServiceKey[M, R]) Spawn(as *HandlerSystem, id string,
	behavior HandlerBehavior[M, R],
) HandlerRef[M, R] {
	return RegisterWithSystem(as, id, sk, behavior)
}

// RouterOption is a functional option for configuring a router.
type RouterOption[M Message, R any] func(*routerConfig[M, R])

// routerConfig holds configuration for router creation.
type routerConfig[M Message, R any] struct {
	strategy RoutingStrategy[M, R]
}

// WithStrategy specifies a custom routing strategy for the router.
func WithStrategy[M Message, R any](strategy RoutingStrategy[M, R]) RouterOption[M, R] {
	return func(cfg *routerConfig[M, R]) {
		cfg.strategy = strategy
	}
}

// Ref returns a virtual HandlerRef (Router) that automatically load-balances
// messages across all handlers registered under this service key. This is the
// recommended way for components to interact with services, as it provides
// location transparency and automatic failover. The router uses round-robin
// strategy by default, but can be customized with functional options.
//
// Example:
//
//	ref := key.Ref(system)  // Round-robin (default)
//	ref := key.Ref(system, WithStrategy(customStrategy))  // Custom
func (sk ServiceKey[M, R]) Ref(sys SystemContext, opts ...RouterOption[M, R]) HandlerRef[M, R] {
	// Apply default configuration.
	cfg := &routerConfig[M, R]{
		strategy: NewRoundRobinStrategy[M, R](),
	}

	// Apply functional options.
	for _, opt := range opts {
		opt(cfg)
	}

	return NewRouter(
		sys.Receptionist(), sk, cfg.strategy, sys.DeadLetters(),
	)
}

// Broadcast sends a message to ALL handlers registered under this service key.
// This is useful for fan-out notifications, cache invalidation, or coordinated
// shutdown signals. The context applies to all send operations. Returns the
// number of handlers the message was sent to. Note that this is a fire-and-forget
// operation and does not guarantee delivery or processing.
func (sk ServiceKey[M, R]) Broadcast(sys SystemContext, ctx context.Context, msg M) int {
	refs := FindInReceptionist(sys.Receptionist(), sk)

	for _, ref := range refs {
		ref.Tell(ctx, msg)
	}

	return len(refs)
}

// Unregister removes a handler reference associated with this service key from
// the receptionist. The handler continues running and can still be accessed
// through other service keys it may be registered under. To stop the handler,
// use StopAndRemoveHandler separately. This separation allows handlers to provide
// multiple services and gracefully degrade by stopping advertisement on some
// interfaces while continuing to serve others.
//
// Returns true if the handler was found and unregistered, false otherwise.
func (sk ServiceKey[M, R]) Unregister(sys SystemContext,
	refToRemove HandlerRef[M, R],
) bool {
	return UnregisterFromReceptionist(
		sys.Receptionist(), sk, refToRemove,
	)
}

// UnregisterAll removes all handler references associated with this service key
// from the receptionist. The handlers continue running and can still be accessed
// through other service keys. To stop the handlers, use StopAndRemoveHandler
// separately for each handler reference.
//
// Returns the number of handlers that were unregistered.
func (sk ServiceKey[M, R]) UnregisterAll(sys SystemContext) int {
	r := sys.Receptionist()

	r.mu.Lock()
	defer r.mu.Unlock()

	currentRefs, exists := r.registrations[sk.name]
	if !exists {
		return 0
	}

	// Build a new slice containing only references that don't match our
	// service key's type. This handles the case where the same key name
	// might have refs of different types registered.
	newRefs := make([]BaseHandlerRef, 0, len(currentRefs))
	unregisteredCount := 0

	for _, item := range currentRefs {
		if _, ok := item.(HandlerRef[M, R]); ok {
			// This ref matches our type, so we're unregistering it.
			unregisteredCount++
		} else {
			// Different type, keep it.
			newRefs = append(newRefs, item)
		}
	}

	if unregisteredCount == 0 {
		return 0
	}

	// Update or delete the registration entry. If all refs are removed,
	// also clean up the type registry to prevent memory leaks and allow
	// re-registration with different types.
	if len(newRefs) == 0 {
		delete(r.registrations, sk.name)
		delete(r.typeRegistry, sk.name)
	} else {
		r.registrations[sk.name] = newRefs
	}

	return unregisteredCount
}

// serviceTypeInfo captures the type signature of a service for validation.
type serviceTypeInfo struct {
	msgTypeName  string
	respTypeName string
}

// Receptionist provides service discovery for handlers. Handlers can be registered
// under a ServiceKey and later discovered by other handlers or system components.
type Receptionist struct {
	// registrations stores HandlerRef instances as BaseHandlerRef, keyed by
	// ServiceKey.name.
	registrations map[string][]BaseHandlerRef

	// typeRegistry tracks the types registered under each service name to
	// prevent type conflicts.
	typeRegistry map[string]serviceTypeInfo

	// mu protects access to registrations and typeRegistry.
	mu sync.RWMutex
}

// newReceptionist creates a new Receptionist instance.
func newReceptionist() *Receptionist {
	return &Receptionist{
		registrations: make(map[string][]BaseHandlerRef),
		typeRegistry:  make(map[string]serviceTypeInfo),
	}
}

// RegisterWithReceptionist registers a handler with a service key in the given
// receptionist. This is a package-level generic function because methods
// cannot have their own type parameters in Go (as of the current version).
// It validates that the service key types match any existing registrations
// under the same name and returns an error if there's a type mismatch.
func RegisterWithReceptionist[M Message, R any](
	r *Receptionist, key ServiceKey[M, R], ref HandlerRef[M, R],
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Get type names for validation using reflect to avoid allocating
	// zero-value instances. This is more efficient and idiomatic for
	// extracting type information from generic type parameters.
	msgTypeName := reflect.TypeOf((*M)(nil)).Elem().String()
	respTypeName := reflect.TypeOf((*R)(nil)).Elem().String()

	expectedTypes := serviceTypeInfo{
		msgTypeName:  msgTypeName,
		respTypeName: respTypeName,
	}

	// Check if this service name is already registered with different types.
	if existingTypes, exists := r.typeRegistry[key.name]; exists {
		if existingTypes != expectedTypes {
			return fmt.Errorf("%w: service '%s' already registered "+
				"with types (%s, %s), cannot register with (%s, %s)",
				ErrServiceKeyTypeMismatch, key.name,
				existingTypes.msgTypeName, existingTypes.respTypeName,
				msgTypeName, respTypeName)
		}
	} else {
		// First registration for this name, record the types.
		r.typeRegistry[key.name] = expectedTypes
	}

	// Initialize the slice for this key if it's the first registration.
	if _, exists := r.registrations[key.name]; !exists {
		r.registrations[key.name] = make([]BaseHandlerRef, 0)
	}

	r.registrations[key.name] = append(r.registrations[key.name], ref)

	return nil
}

// FindInReceptionist returns all handlers registered with a service key in the
// given receptionist. This is a package-level generic function because methods
// cannot have their own type parameters. It performs a type assertion from
// BaseHandlerRef to the specific HandlerRef[M, R] type to ensure type safety.
func FindInReceptionist[M Message, R any](
	r *Receptionist, key ServiceKey[M, R],
) []HandlerRef[M, R] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if baseRefs, exists := r.registrations[key.name]; exists {
		typedRefs := make([]HandlerRef[M, R], 0, len(baseRefs))
		for _, baseRef := range baseRefs {
			// Assert from BaseHandlerRef to the specific HandlerRef[M, R]
			// type. This type assertion provides type safety, ensuring
			// that the returned HandlerRefs match the expected M and R.
			if typedRef, ok := baseRef.(HandlerRef[M, R]); ok {
				typedRefs = append(typedRefs, typedRef)
			}
		}
		return typedRefs
	}

	return nil
}
