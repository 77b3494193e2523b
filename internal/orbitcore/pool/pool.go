// Package pool implements the runtime's two supervising worker pools:
// cpuPool (bounded parallelism, CPU-bound work) and ioPool (elastic,
// directory/transport I/O). Both are a ServiceKey registered under a
// HandlerSystem, load-balanced by the system's default round-robin Router,
// so a task failure is confined to the one worker that ran it rather than
// taking down the whole pool.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/roasbeef/subtrate/internal/baselib/actor"
)

// ErrorHandler is the process-wide sink for task failures that have no
// caller left to report to; it is always passed explicitly at construction
// rather than looked up from an ambient singleton.
type ErrorHandler func(scopeName string, err error)

// taskMsg wraps a unit of cooperative work so it can ride the handler's
// queue; the pool behavior below invokes it and reports the result.
type taskMsg struct {
	actor.BaseMessage
	fn func(ctx context.Context) error
}

func (taskMsg) MessageType() string { return "pool.task" }

// taskBehavior executes the wrapped function and reports failures to the
// scope's ErrorHandler. The task's error rides back as the Result's value
// rather than the Result's own error, so a failing task looks like a
// successful Receive to the handler machinery — only ErrHandlerTerminated
// should ever surface as the Result's error.
type taskBehavior struct {
	name    string
	onError ErrorHandler
}

func (b *taskBehavior) Receive(ctx context.Context,
	msg taskMsg) fn.Result[error] {

	if err := msg.fn(ctx); err != nil {
		b.onError(b.name, err)
		return fn.Ok(err)
	}
	return fn.Ok[error](nil)
}

// Scope is one supervising worker pool: a ServiceKey's worth of workers
// registered under a private HandlerSystem, reached through the key's
// default Router. Tasks submitted via Submit run on one of its workers; Go
// sends a result back to the caller.
type Scope struct {
	name string
	sys  *actor.HandlerSystem
	ref  actor.HandlerRef[taskMsg, error]
}

// Config parameterizes a Scope.
type Config struct {
	// Name identifies the scope in logs and error reports ("cpuPool",
	// "ioPool"), and doubles as the HandlerSystem's ServiceKey name.
	Name string

	// Workers is the number of concurrent workers. For cpuPool this
	// should be runtime.NumCPU(); for ioPool, a larger elastic figure.
	Workers int

	// MailboxSize bounds the number of queued-but-not-yet-running tasks
	// per worker.
	MailboxSize int

	// OnError receives every task failure; required, no default.
	OnError ErrorHandler
}

// NewCPUScope returns a Scope sized to the number of available CPUs, for
// logic-bound work.
func NewCPUScope(onError ErrorHandler) *Scope {
	return New(Config{
		Name:        "cpuPool",
		Workers:     runtime.NumCPU(),
		MailboxSize: 64,
		OnError:     onError,
	})
}

// NewIOScope returns a larger, elastic Scope for directory/transport calls
// that spend most of their time blocked on I/O.
func NewIOScope(onError ErrorHandler) *Scope {
	return New(Config{
		Name:        "ioPool",
		Workers:     4 * runtime.NumCPU(),
		MailboxSize: 256,
		OnError:     onError,
	})
}

// New builds a Scope from an explicit Config, spawning cfg.Workers workers
// under a dedicated HandlerSystem and registering them all under one
// ServiceKey so the key's Router spreads tasks across them round-robin.
func New(cfg Config) *Scope {
	if cfg.OnError == nil {
		cfg.OnError = func(string, error) {}
	}

	sys := actor.NewHandlerSystemWithConfig(actor.SystemConfig{
		QueueCapacity: cfg.MailboxSize,
	})

	key := actor.NewServiceKey[taskMsg, error](cfg.Name)
	for i := 0; i < cfg.Workers; i++ {
		behavior := &taskBehavior{name: cfg.Name, onError: cfg.OnError}
		actor.RegisterWithSystem(
			sys, fmt.Sprintf("%s-%d", cfg.Name, i), key, behavior,
		)
	}

	return &Scope{name: cfg.Name, sys: sys, ref: key.Ref(sys)}
}

// Submit runs fn on the next available worker and blocks until it
// completes, returning its error. Suitable for ioPool calls into the
// directory or transport collaborators.
func (s *Scope) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	result := s.ref.Ask(ctx, taskMsg{fn: fn}).Await(ctx)
	err, unpackErr := result.Unpack()
	if unpackErr != nil {
		return unpackErr
	}
	return err
}

// Go enqueues fn without waiting for it to finish.
func (s *Scope) Go(ctx context.Context, fn func(ctx context.Context) error) {
	s.ref.Tell(ctx, taskMsg{fn: fn})
}

// Name returns the scope's identifier.
func (s *Scope) Name() string { return s.name }

// Stop gracefully stops every worker in the scope and waits for them to
// exit.
func (s *Scope) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = s.sys.Shutdown(ctx)
}
