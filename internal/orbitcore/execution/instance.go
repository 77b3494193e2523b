package execution

import "context"

// Instance is the addressable implementation an ExecutionHandler dispatches
// invocations to. There is no reflection in this runtime: the capability
// factory hands back a value satisfying this interface, and method
// dispatch is the instance's own job.
type Instance interface {
	// Invoke dispatches a single method call identified by methodID,
	// returning the method's result or an error. It executes on the
	// handler's own worker goroutine; it must not be called concurrently
	// with itself (the handler guarantees this) and must not block
	// indefinitely.
	Invoke(ctx context.Context, methodID string, args []any) (any, error)
}

// Activatable is implemented by addressables that need setup work run once
// before their first invocation.
type Activatable interface {
	OnActivate(ctx context.Context) error
}

// Deactivatable is implemented by addressables that need teardown work run
// once before the handler is torn down. Its failure is logged, never
// propagated.
type Deactivatable interface {
	OnDeactivate(ctx context.Context) error
}
