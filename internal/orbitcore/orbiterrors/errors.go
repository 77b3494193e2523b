// Package orbiterrors enumerates the runtime's sentinel error kinds.
// Subsystems wrap these with fmt.Errorf("...: %w", Err...) to attach
// context, so callers can still errors.Is against the sentinel.
package orbiterrors

import "errors"

var (
	// ErrNoAvailableNode is returned by the Router when no node in the
	// cluster advertises the capability needed to host a reference.
	ErrNoAvailableNode = errors.New("no available node for interface")

	// ErrNoActiveAddressable is returned when an invocation targets an
	// interface with autoActivate disabled and no handler is currently
	// active for the reference.
	ErrNoActiveAddressable = errors.New("no active addressable for reference")

	// ErrActivationFailed wraps a panic or error raised from an
	// addressable's OnActivate hook.
	ErrActivationFailed = errors.New("addressable activation failed")

	// ErrDeactivationFailed wraps an error raised from an addressable's
	// OnDeactivate hook. Deactivation cleanup is best-effort and logged,
	// never propagated to a Completion.
	ErrDeactivationFailed = errors.New("addressable deactivation failed")

	// ErrTimeout is returned when a tracked response is not settled
	// before its deadline and the ResponseTrackingSystem sweep fires.
	ErrTimeout = errors.New("response timed out")

	// ErrCapacityExceeded is returned when the pipeline's admission
	// queue or a handler's mailbox is full.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrDeactivating is returned when an invocation arrives at a
	// handler that is already draining towards deactivation. Per the
	// resolved Open Question in DESIGN.md, callers are expected to
	// retry, which forces re-placement through the directory.
	ErrDeactivating = errors.New("addressable is deactivating")

	// ErrTransport wraps failures from the Transport collaborator.
	ErrTransport = errors.New("transport error")

	// ErrDirectory wraps failures from the AddressableDirectory
	// collaborator.
	ErrDirectory = errors.New("directory error")

	// ErrCancelled is returned when an operation observes cooperative
	// cancellation (stage shutdown or caller context) before it could
	// complete.
	ErrCancelled = errors.New("operation cancelled")

	// ErrHandlerTerminated mirrors actor.ErrHandlerTerminated for code
	// built directly on top of execution primitives that does not
	// import the actor package.
	ErrHandlerTerminated = errors.New("addressable handler terminated")

	// ErrDuplicateTracking is returned by ResponseTrackingSystem.track
	// when called twice for the same messageId.
	ErrDuplicateTracking = errors.New("duplicate response tracking id")
)
