package actor

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// FunctionBehavior adapts a plain function into a HandlerBehavior. This is the
// most common way to define simple handlers in tests and small services, where
// a full struct-based behavior would be boilerplate.
type FunctionBehavior[M Message, R any] struct {
	fn func(ctx context.Context, msg M) fn.Result[R]
}

// NewFunctionBehavior creates a HandlerBehavior from a plain receive function.
func NewFunctionBehavior[M Message, R any](
	receive func(ctx context.Context, msg M) fn.Result[R],
) *FunctionBehavior[M, R] {

	return &FunctionBehavior[M, R]{fn: receive}
}

// Receive implements HandlerBehavior by delegating to the wrapped function.
func (b *FunctionBehavior[M, R]) Receive(ctx context.Context,
	msg M) fn.Result[R] {

	return b.fn(ctx, msg)
}

// Ensure FunctionBehavior implements HandlerBehavior.
var _ HandlerBehavior[Message, any] = (*FunctionBehavior[Message, any])(nil)
