// Package cluster provides the simplest possible ClusterView the Router
// needs: a statically-configured table of peer node capabilities, with a
// per-node load metric set through SetLoad (nothing in the runtime calls
// it, so every node reports load 0 unless a caller sets one). Discovering peers dynamically (gossip, a membership
// service) is out of scope for the core — it only requires that something
// satisfying router.ClusterView exists.
package cluster

import (
	"sort"
	"sync"

	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
)

// peer records one node's static capability list plus its last-reported
// load.
type peer struct {
	capabilities []string
	load         int
}

// Membership is a static, explicitly-configured cluster view: every peer
// (including the local node) is registered once at startup with its
// capability list, and load is the only thing that changes afterward.
type Membership struct {
	mu    sync.RWMutex
	peers map[netid.NodeIdentity]*peer
}

// New creates an empty Membership table.
func New() *Membership {
	return &Membership{peers: make(map[netid.NodeIdentity]*peer)}
}

// AddPeer registers a node and the interfaces it can host. Calling it again
// for the same node replaces its capability list.
func (m *Membership) AddPeer(node netid.NodeIdentity, capabilities []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.peers[node] = &peer{capabilities: append([]string(nil), capabilities...)}
}

// SetLoad updates a node's reported load metric, which Router.pickCandidate
// compares first, before falling back to NodeIdentity order.
func (m *Membership) SetLoad(node netid.NodeIdentity, load int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.peers[node]; ok {
		p.load = load
	}
}

// CapableNodes implements router.ClusterView.
func (m *Membership) CapableNodes(interfaceID string) []netid.NodeIdentity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var nodes []netid.NodeIdentity
	for node, p := range m.peers {
		for _, c := range p.capabilities {
			if c == interfaceID {
				nodes = append(nodes, node)
				break
			}
		}
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	return nodes
}

// Load implements router.ClusterView.
func (m *Membership) Load(node netid.NodeIdentity) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.peers[node]; ok {
		return p.load
	}
	return 0
}
