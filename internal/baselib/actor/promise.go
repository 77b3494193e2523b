package actor

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// future is the concrete implementation of the Future interface. It wraps a
// channel that is closed exactly once, when the associated promise is
// completed.
type future[T any] struct {
	// done is closed exactly once, when result becomes readable.
	done chan struct{}

	// mu protects result below from the single writer (Promise.Complete)
	// racing with concurrent readers (Await/OnComplete).
	mu sync.RWMutex

	// result holds the completed value, valid only after done is closed.
	result fn.Result[T]
}

// Await blocks until the result is available or the context is cancelled.
func (f *future[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-f.done:
		f.mu.RLock()
		defer f.mu.RUnlock()
		return f.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// ThenApply registers a function to transform the result of a future. The
// original future is not modified; a new instance is returned.
func (f *future[T]) ThenApply(ctx context.Context, fn_ func(T) T) Future[T] {
	chained := newPromise[T]()

	go func() {
		result := f.Await(ctx)
		if result.IsErr() {
			chained.Complete(result)
			return
		}

		val, _ := result.Unpack()
		chained.Complete(fn.Ok(fn_(val)))
	}()

	return chained.Future()
}

// OnComplete registers a function to be called when the result of the
// future is ready, or when ctx is cancelled first.
func (f *future[T]) OnComplete(ctx context.Context, cb func(fn.Result[T])) {
	go func() {
		cb(f.Await(ctx))
	}()
}

// promise is the concrete implementation of the Promise interface.
type promise[T any] struct {
	fut *future[T]

	// completeOnce ensures Complete only has an effect on its first call,
	// satisfying the "exactly one settle" invariant.
	completeOnce sync.Once

	// completed is closed together with the future's done channel on the
	// first Complete call; Complete itself relies on completeOnce alone.
	completed chan struct{}
}

// NewPromise creates a new, uncompleted Promise.
func NewPromise[T any]() Promise[T] {
	return newPromise[T]()
}

func newPromise[T any]() *promise[T] {
	return &promise[T]{
		fut: &future[T]{
			done: make(chan struct{}),
		},
		completed: make(chan struct{}),
	}
}

// Future returns the Future associated with this Promise.
func (p *promise[T]) Future() Future[T] {
	return p.fut
}

// Complete attempts to set the result of the future. It returns true if
// this call was the first to complete it.
func (p *promise[T]) Complete(result fn.Result[T]) bool {
	settled := false

	p.completeOnce.Do(func() {
		p.fut.mu.Lock()
		p.fut.result = result
		p.fut.mu.Unlock()

		close(p.fut.done)
		close(p.completed)

		settled = true
	})

	return settled
}
