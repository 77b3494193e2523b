package netid

import "sync/atomic"

// NetSystem holds the identity, lifecycle status, and capability set of
// the local node. It is a small, concurrency-safe component shared by
// every other subsystem that needs to answer "who am I" or "what can this
// node host."
type NetSystem struct {
	info atomic.Pointer[NodeInfo]
}

// NewNetSystem creates a NetSystem for the given identity. Capabilities are
// populated later, once the capability scan completes during Stage.start().
func NewNetSystem(cfg NetSystemConfig) *NetSystem {
	ns := &NetSystem{}
	ns.info.Store(&NodeInfo{
		ClusterName:  cfg.ClusterName,
		NodeIdentity: cfg.NodeIdentity,
		Mode:         cfg.Mode,
		Status:       StatusIdle,
	})

	return ns
}

// NetSystemConfig configures a new NetSystem.
type NetSystemConfig struct {
	ClusterName  string
	NodeIdentity NodeIdentity
	Mode         NodeMode
}

// Self returns a snapshot of the current local NodeInfo.
func (ns *NetSystem) Self() NodeInfo {
	return *ns.info.Load()
}

// SetStatus transitions the local node to a new status.
func (ns *NetSystem) SetStatus(status NodeStatus) {
	for {
		cur := ns.info.Load()
		next := *cur
		next.Status = status
		if ns.info.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// SetCapabilities installs the interface IDs this node can host, as produced
// by the capability scan at startup.
func (ns *NetSystem) SetCapabilities(capabilities []string) {
	for {
		cur := ns.info.Load()
		next := *cur
		next.Capabilities = append([]string(nil), capabilities...)
		if ns.info.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// Implements reports whether the local node can host interfaceID.
func (ns *NetSystem) Implements(interfaceID string) bool {
	return ns.Self().Implements(interfaceID)
}

// NodeIdentity returns the local node's identity.
func (ns *NetSystem) NodeIdentity() NodeIdentity {
	return ns.Self().NodeIdentity
}
