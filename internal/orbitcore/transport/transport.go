// Package transport defines the Transport external collaborator plus two
// concrete implementations: an in-memory transport for single-process
// clusters and tests, and a gRPC-backed transport for real multi-node
// deployments.
package transport

import (
	"context"

	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
)

// ReceiveHandler is invoked for every inbound payload a Transport accepts,
// whatever its underlying carrier. It is expected to hand the payload to
// the pipeline's inbound entry point.
type ReceiveHandler func(ctx context.Context, from netid.NodeIdentity, payload []byte)

// Transport is the pluggable message carrier. The core never interprets
// payload; it is whatever bytes the Serialization step produced.
type Transport interface {
	// Send delivers payload to the named node. It may return a transient
	// error; the core does not retry automatically.
	Send(ctx context.Context, to netid.NodeIdentity, payload []byte) error

	// SetReceiveHandler installs the callback invoked for every inbound
	// payload. It must be called before the transport starts accepting
	// traffic.
	SetReceiveHandler(handler ReceiveHandler)
}
