// Package wire defines the pipeline payload (Message) and the per-call
// invocation/completion types that flow between the client proxy, the
// pipeline, and the ExecutionSystem.
package wire

import (
	"sync/atomic"
	"time"

	"github.com/roasbeef/subtrate/internal/baselib/actor"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
)

// AddressableInvocation is a single method call on an addressable.
type AddressableInvocation struct {
	Reference netid.AddressableReference
	MethodID  string
	Args      []any
	Headers   map[string]string
}

// Completion is the one-shot settable cell an invocation's caller awaits.
// It is implemented directly on top of actor.Promise/actor.Future, reusing
// the same exactly-once-settle guarantee the actor runtime relies on,
// rather than reinventing a second promise type for the pipeline.
type Completion = actor.Promise[any]

// NewCompletion creates a new, unsettled Completion.
func NewCompletion() Completion {
	return actor.NewPromise[any]()
}

// Kind discriminates the Message variant.
type Kind uint8

const (
	// KindRequestInvocation carries an outbound or inbound method call.
	KindRequestInvocation Kind = iota

	// KindResponseValue carries a successful reply.
	KindResponseValue

	// KindResponseError carries a failed reply.
	KindResponseError
)

// Message is the pipeline payload. It is modeled as a single tagged struct
// rather than an interface hierarchy, so the pipeline driver can remain
// plain data-driven logic.
type Message struct {
	Kind Kind

	// MessageID is unique per-node for the node's lifetime (monotonic).
	MessageID int64

	// Source and Target name the sending and (once routed) receiving
	// node. Target starts as the zero NetTarget until the Routing step
	// populates it.
	Source netid.NodeIdentity
	Target netid.NetTarget

	// CreatedAtMillis is stamped by the Identity pipeline step.
	CreatedAtMillis int64

	// Invocation is populated for KindRequestInvocation.
	Invocation AddressableInvocation

	// Completion is the local Completion to settle once a response for
	// this invocation arrives. It is never serialized; only MessageID
	// travels over the wire, and the receiving node's ResponseTracker
	// re-associates it locally.
	Completion Completion

	// ResponseValue is populated for KindResponseValue.
	ResponseValue any

	// ResponseError is populated for KindResponseError.
	ResponseError string

	// TimeoutMillis is the deadline this invocation's response must be
	// settled by, relative to CreatedAtMillis. Zero means "use the
	// interface definition's default."
	TimeoutMillis int64

	// Payload holds the wire-encoded form of this message once the
	// Serialization pipeline step has run. It is what Transport actually
	// carries; Completion never travels (it is node-local), only
	// MessageID round-trips.
	Payload []byte
}

// IsRequest reports whether this message carries an invocation rather than
// a response.
func (m Message) IsRequest() bool {
	return m.Kind == KindRequestInvocation
}

// idSequence is a per-node monotonic counter for MessageID generation. It is
// process-global because a node has exactly one Stage in this runtime, and
// the invariant only needs to hold "per-node for the node's lifetime."
var idSequence atomic.Int64

// NextMessageID returns the next MessageID for this node, guaranteed unique
// for the process's lifetime.
func NextMessageID() int64 {
	return idSequence.Add(1)
}

// NowMillis is a small helper so callers constructing a Message outside of
// the Identity pipeline step (e.g. tests) can stamp a plausible timestamp
// without importing the clock package.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
