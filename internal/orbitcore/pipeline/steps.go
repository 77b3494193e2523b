package pipeline

import (
	"context"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/roasbeef/subtrate/internal/orbitcore/clock"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/serializer"
	"github.com/roasbeef/subtrate/internal/orbitcore/transport"
	"github.com/roasbeef/subtrate/internal/orbitcore/wire"
)

// Router is the narrow slice of router.Router the Routing step depends on.
type Router interface {
	Resolve(ctx context.Context, ref netid.AddressableReference,
		explicit netid.NetTarget) (netid.NetTarget, error)
}

// Tracker is the narrow slice of tracker.Tracker the ResponseTracking step
// depends on.
type Tracker interface {
	Track(messageID int64, completion wire.Completion, timeoutMillis int64) error
	Settle(messageID int64, result fn.Result[any])
}

// IdentityStep stamps messageId, source, and creation time on every
// outbound message. It is the first step in the chain.
type IdentityStep struct {
	LocalNode netid.NodeIdentity
	Clock     clock.Clock
}

func (s *IdentityStep) Name() string { return "Identity" }

func (s *IdentityStep) OnOutbound(_ context.Context, _ *Pipeline,
	msg *wire.Message) (Outcome, error) {

	if msg.MessageID == 0 {
		msg.MessageID = wire.NextMessageID()
	}
	msg.Source = s.LocalNode
	msg.CreatedAtMillis = s.Clock.Now()

	return Continue, nil
}

func (s *IdentityStep) OnInbound(_ context.Context, _ *Pipeline,
	_ *wire.Message) (Outcome, error) {

	return Continue, nil
}

// ResponseTrackingStep registers a Completion for every outbound request,
// and settles a Completion for every inbound response.
type ResponseTrackingStep struct {
	Tracker              Tracker
	DefaultTimeoutMillis int64
}

func (s *ResponseTrackingStep) Name() string { return "ResponseTracking" }

func (s *ResponseTrackingStep) OnOutbound(_ context.Context, _ *Pipeline,
	msg *wire.Message) (Outcome, error) {

	if !msg.IsRequest() {
		return Continue, nil
	}

	timeout := msg.TimeoutMillis
	if timeout == 0 {
		timeout = s.DefaultTimeoutMillis
	}

	if err := s.Tracker.Track(msg.MessageID, msg.Completion, timeout); err != nil {
		return Continue, err
	}

	return Continue, nil
}

func (s *ResponseTrackingStep) OnInbound(_ context.Context, _ *Pipeline,
	msg *wire.Message) (Outcome, error) {

	if msg.IsRequest() {
		return Continue, nil
	}

	switch msg.Kind {
	case wire.KindResponseValue:
		s.Tracker.Settle(msg.MessageID, fn.Ok(msg.ResponseValue))
	case wire.KindResponseError:
		s.Tracker.Settle(msg.MessageID, fn.Err[any](fmt.Errorf("%s", msg.ResponseError)))
	}

	return Absorbed, nil
}

// RoutingStep resolves the destination NetTarget for outbound requests,
// delegating the placement decision to Router.
type RoutingStep struct {
	Router Router
}

func (s *RoutingStep) Name() string { return "Routing" }

func (s *RoutingStep) OnOutbound(ctx context.Context, _ *Pipeline,
	msg *wire.Message) (Outcome, error) {

	if !msg.IsRequest() {
		return Continue, nil
	}

	target, err := s.Router.Resolve(ctx, msg.Invocation.Reference, msg.Target)
	if err != nil {
		return Continue, err
	}
	msg.Target = target

	return Continue, nil
}

func (s *RoutingStep) OnInbound(_ context.Context, _ *Pipeline,
	_ *wire.Message) (Outcome, error) {

	return Continue, nil
}

// LocalDispatchStep short-circuits a request whose resolved target is the
// local node directly to the Dispatcher, skipping serialization and
// transport entirely.
type LocalDispatchStep struct {
	LocalNode  netid.NodeIdentity
	Dispatcher Dispatcher
}

func (s *LocalDispatchStep) Name() string { return "LocalDispatch" }

func (s *LocalDispatchStep) OnOutbound(ctx context.Context, p *Pipeline,
	msg *wire.Message) (Outcome, error) {

	if !msg.IsRequest() {
		return Continue, nil
	}

	node, ok := msg.Target.UnicastNode()
	if !ok || node != s.LocalNode {
		return Continue, nil
	}

	s.Dispatcher.HandleInvocation(ctx, msg.Invocation, msg.Completion)

	return Absorbed, nil
}

func (s *LocalDispatchStep) OnInbound(_ context.Context, _ *Pipeline,
	_ *wire.Message) (Outcome, error) {

	return Continue, nil
}

// SerializationStep encodes the outbound wire-safe envelope into bytes,
// and decodes inbound bytes back into the envelope fields. Completion
// never serializes; it stays node-local.
type SerializationStep struct {
	Serializer serializer.Serializer
}

// envelope is the wire-safe projection of wire.Message: everything except
// Completion, which has no meaning off this node.
type envelope struct {
	Kind            wire.Kind
	MessageID       int64
	Source          netid.NodeIdentity
	Invocation      wire.AddressableInvocation
	CreatedAtMillis int64
	ResponseValue   any
	ResponseError   string
	TimeoutMillis   int64
}

func (s *SerializationStep) Name() string { return "Serialization" }

func (s *SerializationStep) OnOutbound(_ context.Context, _ *Pipeline,
	msg *wire.Message) (Outcome, error) {

	env := envelope{
		Kind:            msg.Kind,
		MessageID:       msg.MessageID,
		Source:          msg.Source,
		Invocation:      msg.Invocation,
		CreatedAtMillis: msg.CreatedAtMillis,
		ResponseValue:   msg.ResponseValue,
		ResponseError:   msg.ResponseError,
		TimeoutMillis:   msg.TimeoutMillis,
	}

	payload, err := s.Serializer.Encode(env)
	if err != nil {
		return Continue, err
	}
	msg.Payload = payload

	return Continue, nil
}

func (s *SerializationStep) OnInbound(_ context.Context, _ *Pipeline,
	msg *wire.Message) (Outcome, error) {

	var env envelope
	if err := s.Serializer.Decode(msg.Payload, &env); err != nil {
		return Continue, err
	}

	msg.Kind = env.Kind
	msg.MessageID = env.MessageID
	msg.Source = env.Source
	msg.Invocation = env.Invocation
	msg.CreatedAtMillis = env.CreatedAtMillis
	msg.ResponseValue = env.ResponseValue
	msg.ResponseError = env.ResponseError
	msg.TimeoutMillis = env.TimeoutMillis

	return Continue, nil
}

// TransportStep hands the serialized payload to the Transport collaborator.
// It has nothing to do inbound: by the time a message reaches the inbound
// chain, Transport has already delivered it.
type TransportStep struct {
	Transport transport.Transport
}

func (s *TransportStep) Name() string { return "Transport" }

func (s *TransportStep) OnOutbound(ctx context.Context, _ *Pipeline,
	msg *wire.Message) (Outcome, error) {

	node, ok := msg.Target.UnicastNode()
	if !ok {
		return Continue, fmt.Errorf("transport: non-unicast target %s", msg.Target)
	}

	if err := s.Transport.Send(ctx, node, msg.Payload); err != nil {
		return Continue, err
	}

	return Continue, nil
}

func (s *TransportStep) OnInbound(_ context.Context, _ *Pipeline,
	_ *wire.Message) (Outcome, error) {

	return Continue, nil
}
