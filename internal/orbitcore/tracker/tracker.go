// Package tracker implements the ResponseTrackingSystem: a map of
// in-flight messageId -> (Completion, deadline), settled either by an
// arriving response or by the periodic tick sweeping past-deadline
// entries into timeouts.
package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/roasbeef/subtrate/internal/orbitcore/clock"
	"github.com/roasbeef/subtrate/internal/orbitcore/orbiterrors"
	"github.com/roasbeef/subtrate/internal/orbitcore/wire"
)

// entry is one pending invocation's tracking record.
type entry struct {
	completion wire.Completion
	deadline   int64
}

// Tracker is the ResponseTrackingSystem. All operations are safe for
// concurrent use; the pending map is guarded by a single mutex since
// entries are short-lived and contention is expected to be low relative
// to the surrounding pipeline/transport I/O.
type Tracker struct {
	clk clock.Clock

	mu      sync.Mutex
	pending map[int64]entry
}

// New creates an empty Tracker driven by clk.
func New(clk clock.Clock) *Tracker {
	return &Tracker{
		clk:     clk,
		pending: make(map[int64]entry),
	}
}

// Track registers completion to be settled when a response for messageID
// arrives, or when it times out at deadline = now + timeoutMillis. It
// rejects an attempt to track an already-tracked messageID.
func (t *Tracker) Track(messageID int64, completion wire.Completion,
	timeoutMillis int64) error {

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.pending[messageID]; exists {
		return fmt.Errorf(
			"%w: messageId %d already tracked",
			orbiterrors.ErrDuplicateTracking, messageID,
		)
	}

	t.pending[messageID] = entry{
		completion: completion,
		deadline:   t.clk.Now() + timeoutMillis,
	}

	return nil
}

// Settle resolves the tracked completion for messageID with result, and
// removes it from the pending set. A settle for an unknown id (already
// removed by a prior settle or by onTick's timeout sweep) is silently
// ignored — it is a late response arriving after the deadline already
// fired.
func (t *Tracker) Settle(messageID int64, result fn.Result[any]) {
	t.mu.Lock()
	e, ok := t.pending[messageID]
	if ok {
		delete(t.pending, messageID)
	}
	t.mu.Unlock()

	if !ok {
		return
	}

	e.completion.Complete(result)
}

// OnTick sweeps every entry whose deadline has passed, settling each with
// ErrTimeout and removing it. It is driven by the stage's cooperative tick
// loop, which runs the tracker sweep before the execution sweep each tick.
func (t *Tracker) OnTick() {
	now := t.clk.Now()

	var expired []entry

	t.mu.Lock()
	for id, e := range t.pending {
		if e.deadline <= now {
			expired = append(expired, e)
			delete(t.pending, id)
		}
	}
	t.mu.Unlock()

	if len(expired) > 0 {
		log.DebugS(context.Background(), "Tracker swept expired entries",
			"count", len(expired))
	}

	for _, e := range expired {
		e.completion.Complete(fn.Err[any](orbiterrors.ErrTimeout))
	}
}

// Pending returns the number of in-flight trackings, for diagnostics and
// tests.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}
