// Package netid defines the cluster identity primitives shared by every
// Orbit subsystem: node identities, addressable references, and the
// NetTarget variant used to describe where a message should go.
package netid

import (
	"fmt"
	"sort"
)

// NodeIdentity opaquely names a node within a cluster. Two NodeIdentity
// values are equal iff they name the same node.
type NodeIdentity string

// AddressableReference identifies a single addressable (actor) by the pair
// of its interface and its key. It is immutable and comparable, so it can be
// used directly as a map key (the Directory and ExecutionSystem both key
// their maps on it).
type AddressableReference struct {
	InterfaceID string
	Key         string
}

// String renders the reference in "interface/key" form, used in log lines
// and error messages.
func (r AddressableReference) String() string {
	return fmt.Sprintf("%s/%s", r.InterfaceID, r.Key)
}

// targetKind discriminates the NetTarget variant.
type targetKind uint8

const (
	targetUnicast targetKind = iota
	targetMulticast
	targetAny
)

// NetTarget is the variant of {Unicast(NodeIdentity), Multicast(set),
// Any}. Only Unicast participates in placement; the zero value is the
// invalid target and Kind() reports it as such via IsZero.
type NetTarget struct {
	kind      targetKind
	unicast   NodeIdentity
	multicast []NodeIdentity
}

// Unicast builds a NetTarget naming a single destination node.
func Unicast(node NodeIdentity) NetTarget {
	return NetTarget{kind: targetUnicast, unicast: node}
}

// Multicast builds a NetTarget naming a set of destination nodes. The input
// is copied and sorted so that two Multicast targets with the same member
// set compare equal regardless of construction order.
func Multicast(nodes []NodeIdentity) NetTarget {
	cp := make([]NodeIdentity, len(nodes))
	copy(cp, nodes)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })

	return NetTarget{kind: targetMulticast, multicast: cp}
}

// Any builds the wildcard NetTarget, meaning "any node that can serve this
// message," used before routing has resolved a concrete destination.
func Any() NetTarget {
	return NetTarget{kind: targetAny}
}

// IsUnicast reports whether this target names exactly one node.
func (t NetTarget) IsUnicast() bool { return t.kind == targetUnicast }

// IsAny reports whether this target is the wildcard.
func (t NetTarget) IsAny() bool { return t.kind == targetAny }

// UnicastNode returns the destination node and true if this is a Unicast
// target; otherwise it returns the zero value and false.
func (t NetTarget) UnicastNode() (NodeIdentity, bool) {
	if t.kind != targetUnicast {
		return "", false
	}
	return t.unicast, true
}

// MulticastNodes returns the destination set and true if this is a
// Multicast target; otherwise it returns nil and false.
func (t NetTarget) MulticastNodes() ([]NodeIdentity, bool) {
	if t.kind != targetMulticast {
		return nil, false
	}
	cp := make([]NodeIdentity, len(t.multicast))
	copy(cp, t.multicast)
	return cp, true
}

// Equal reports whether two NetTarget values describe the same destination.
func (t NetTarget) Equal(other NetTarget) bool {
	if t.kind != other.kind {
		return false
	}

	switch t.kind {
	case targetUnicast:
		return t.unicast == other.unicast
	case targetMulticast:
		if len(t.multicast) != len(other.multicast) {
			return false
		}
		for i := range t.multicast {
			if t.multicast[i] != other.multicast[i] {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the target for logs.
func (t NetTarget) String() string {
	switch t.kind {
	case targetUnicast:
		return fmt.Sprintf("unicast(%s)", t.unicast)
	case targetMulticast:
		return fmt.Sprintf("multicast(%v)", t.multicast)
	default:
		return "any"
	}
}

// NodeStatus describes the lifecycle phase of a node, as reported by its
// NetSystem.
type NodeStatus uint8

const (
	StatusIdle NodeStatus = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusStopped
)

// String implements fmt.Stringer for log output.
func (s NodeStatus) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusStarting:
		return "STARTING"
	case StatusRunning:
		return "RUNNING"
	case StatusStopping:
		return "STOPPING"
	case StatusStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// NodeMode distinguishes a full cluster member (HOST, capable of hosting
// addressables) from a lightweight caller (CLIENT, which only issues
// invocations).
type NodeMode uint8

const (
	ModeHost NodeMode = iota
	ModeClient
)

// NodeInfo captures everything the cluster needs to know about one node:
// its identity, lifecycle status, and the interfaces it can host.
type NodeInfo struct {
	ClusterName  string
	NodeIdentity NodeIdentity
	Mode         NodeMode
	Status       NodeStatus
	Capabilities []string
}

// Implements reports whether this node's capability list includes
// interfaceID.
func (n NodeInfo) Implements(interfaceID string) bool {
	for _, c := range n.Capabilities {
		if c == interfaceID {
			return true
		}
	}
	return false
}
