package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/orbiterrors"
)

// hub is the process-wide registry InMemoryTransport instances register
// themselves into, keyed by node identity, so that Send on one node's
// transport can reach another node's receive handler without an actual
// socket. It exists purely for single-process clusters and tests.
type hub struct {
	mu    sync.RWMutex
	nodes map[netid.NodeIdentity]*InMemoryTransport
}

var sharedHub = &hub{nodes: make(map[netid.NodeIdentity]*InMemoryTransport)}

// InMemoryTransport is a Transport that delivers directly to other
// InMemoryTransport instances registered under the same node identity
// namespace, via an in-process goroutine hop. It is the default transport
// for embedding a single-process "cluster" of multiple logical nodes, and
// for exercising multi-node routing scenarios in tests without sockets.
type InMemoryTransport struct {
	self    netid.NodeIdentity
	handler ReceiveHandler
}

// NewInMemoryTransport creates an InMemoryTransport registered under self.
// It panics if self is already registered, since that indicates two
// transports are fighting over the same node identity.
func NewInMemoryTransport(self netid.NodeIdentity) *InMemoryTransport {
	t := &InMemoryTransport{self: self}

	sharedHub.mu.Lock()
	defer sharedHub.mu.Unlock()

	if _, exists := sharedHub.nodes[self]; exists {
		panic(fmt.Sprintf("transport: node %q already registered", self))
	}
	sharedHub.nodes[self] = t

	return t
}

// Close unregisters this transport so its node identity can be reused.
func (t *InMemoryTransport) Close() {
	sharedHub.mu.Lock()
	defer sharedHub.mu.Unlock()

	delete(sharedHub.nodes, t.self)
}

// SetReceiveHandler implements Transport.
func (t *InMemoryTransport) SetReceiveHandler(handler ReceiveHandler) {
	t.handler = handler
}

// Send implements Transport by looking up the destination's registered
// transport and invoking its receive handler directly in a new goroutine,
// so the sender is never blocked on the receiver's processing.
func (t *InMemoryTransport) Send(ctx context.Context, to netid.NodeIdentity,
	payload []byte) error {

	sharedHub.mu.RLock()
	dest, ok := sharedHub.nodes[to]
	sharedHub.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: no in-memory node registered as %q",
			orbiterrors.ErrTransport, to)
	}

	if dest.handler == nil {
		return fmt.Errorf("%w: node %q has no receive handler installed",
			orbiterrors.ErrTransport, to)
	}

	go dest.handler(context.WithoutCancel(ctx), t.self, payload)

	return nil
}

var _ Transport = (*InMemoryTransport)(nil)
