// Package pipeline implements the ordered, fixed-sequence message pipeline:
// a bounded-admission chain of steps processing messages outbound (client
// call towards a target node) and inbound (arriving invocation or
// response). The driver itself is data, a slice of Step values walked in
// order, not a class hierarchy.
package pipeline

import (
	"context"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/orbiterrors"
	"github.com/roasbeef/subtrate/internal/orbitcore/wire"
)

// Outcome reports what a step did to a message it processed.
type Outcome uint8

const (
	// Continue means the driver should proceed to the next step.
	Continue Outcome = iota

	// Absorbed means the step fully handled the message itself (e.g. a
	// local short-circuit or a response settle); the driver stops.
	Absorbed
)

// Step is one stage of the pipeline. Every step implements both
// directions; a step with nothing to do in one direction simply returns
// (Continue, nil) unchanged.
type Step interface {
	Name() string
	OnOutbound(ctx context.Context, p *Pipeline, msg *wire.Message) (Outcome, error)
	OnInbound(ctx context.Context, p *Pipeline, msg *wire.Message) (Outcome, error)
}

// Dispatcher hands a fully-arrived request invocation to local execution.
// It is the pipeline's only dependency on the ExecutionSystem, kept
// interface-narrow so this package can be unit-tested without it.
type Dispatcher interface {
	HandleInvocation(ctx context.Context, invocation wire.AddressableInvocation,
		completion wire.Completion)
}

// Pipeline drives messages through a fixed, configured step chain, with a
// bounded admission queue. Outbound steps run in configured order; inbound
// steps run in the mirror (reverse) order.
type Pipeline struct {
	outbound []Step
	inbound  []Step

	dispatcher Dispatcher

	sem chan struct{}
}

// New builds a Pipeline with the given outbound step order and admission
// queue size. The inbound order is the exact reverse.
func New(bufferCount int, dispatcher Dispatcher, steps ...Step) *Pipeline {
	inbound := make([]Step, len(steps))
	for i, s := range steps {
		inbound[len(steps)-1-i] = s
	}

	return &Pipeline{
		outbound:   steps,
		inbound:    inbound,
		dispatcher: dispatcher,
		sem:        make(chan struct{}, bufferCount),
	}
}

// acquire claims one admission-queue slot without blocking.
func (p *Pipeline) acquire() bool {
	select {
	case p.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (p *Pipeline) release() {
	<-p.sem
}

// SubmitOutbound admits msg into the outbound chain. An error encountered
// during outbound processing settles the originating Completion directly;
// SubmitOutbound does this itself so every caller gets the same guarantee,
// including on CapacityExceededError from a full admission queue.
func (p *Pipeline) SubmitOutbound(ctx context.Context, msg *wire.Message) error {
	if !p.acquire() {
		err := fmt.Errorf("%w: outbound pipeline admission queue full",
			orbiterrors.ErrCapacityExceeded)
		log.DebugS(ctx, "Outbound pipeline rejected message, queue full",
			"message_id", msg.MessageID)
		p.failCompletion(msg, err)
		return err
	}
	defer p.release()

	err := p.runOutbound(ctx, msg)
	if err != nil {
		log.DebugS(ctx, "Outbound pipeline failed",
			"message_id", msg.MessageID, "err", err)
		p.failCompletion(msg, err)
	}

	return err
}

// failCompletion settles msg's Completion with err, if msg carries one.
// Response messages built internally by dispatchArrivedRequest have no
// Completion (there is nothing local left to notify), so this is a no-op
// for those.
func (p *Pipeline) failCompletion(msg *wire.Message, err error) {
	if msg.IsRequest() && msg.Completion != nil {
		msg.Completion.Complete(fn.Err[any](err))
	}
}

// SubmitInboundBytes is the Transport-facing entry point: it wraps raw
// bytes just received from a peer into a fresh Message (with a new local
// Completion backing it, used only if the message turns out to be a
// request) and walks the inbound chain.
func (p *Pipeline) SubmitInboundBytes(ctx context.Context, payload []byte) error {
	if !p.acquire() {
		return fmt.Errorf("%w: inbound pipeline admission queue full",
			orbiterrors.ErrCapacityExceeded)
	}
	defer p.release()

	msg := &wire.Message{Payload: payload, Completion: wire.NewCompletion()}

	return p.runInbound(ctx, msg)
}

// runOutbound walks the outbound chain, stopping on the first error or
// Absorbed outcome.
func (p *Pipeline) runOutbound(ctx context.Context, msg *wire.Message) error {
	for _, step := range p.outbound {
		outcome, err := step.OnOutbound(ctx, p, msg)
		if err != nil {
			return err
		}
		if outcome == Absorbed {
			return nil
		}
	}

	return nil
}

// runInbound walks the inbound chain. It is only ever reached for a
// message that genuinely arrived over Transport — LocalDispatch absorbs
// same-node requests during the outbound walk before Transport is ever
// involved. If every configured step passes the message through and it is
// still a request once the chain completes, the pipeline hands it to the
// Dispatcher and arranges for the eventual result to be sent back out as a
// response.
func (p *Pipeline) runInbound(ctx context.Context, msg *wire.Message) error {
	for _, step := range p.inbound {
		outcome, err := step.OnInbound(ctx, p, msg)
		if err != nil {
			return err
		}
		if outcome == Absorbed {
			return nil
		}
	}

	if !msg.IsRequest() {
		return nil
	}

	return p.dispatchArrivedRequest(ctx, msg)
}

// dispatchArrivedRequest hands a fully-deserialized request to local
// execution and, once its Completion settles, sends the result back to
// the originating node as a response message.
func (p *Pipeline) dispatchArrivedRequest(ctx context.Context, msg *wire.Message) error {
	p.dispatcher.HandleInvocation(ctx, msg.Invocation, msg.Completion)

	source := msg.Source
	messageID := msg.MessageID

	msg.Completion.Future().OnComplete(context.Background(),
		func(result fn.Result[any]) {
			response := buildResponse(messageID, source, result)

			// The response is a brand-new traversal; it claims its
			// own admission slot rather than reusing the request's
			// (which has already been released by the time this
			// callback runs).
			_ = p.SubmitOutbound(context.Background(), response)
		})

	return nil
}

// buildResponse constructs the reply Message for a settled invocation
// result, targeting the node that sent the original request.
func buildResponse(messageID int64, to netid.NodeIdentity,
	result fn.Result[any]) *wire.Message {

	msg := &wire.Message{
		MessageID:       messageID,
		Target:          netid.Unicast(to),
		CreatedAtMillis: wire.NowMillis(),
	}

	if result.IsErr() {
		_, err := result.Unpack()
		msg.Kind = wire.KindResponseError
		msg.ResponseError = err.Error()
		return msg
	}

	value, _ := result.Unpack()
	msg.Kind = wire.KindResponseValue
	msg.ResponseValue = value

	return msg
}
