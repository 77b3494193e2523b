// Package router implements the outbound target-resolution algorithm:
// given a message with a reference, decide which node should receive it.
// The algorithm is a pure function of directory state and the
// cluster's capability map; it creates no instances and never contacts the
// resolved target itself — that is the pipeline's job.
package router

import (
	"context"
	"fmt"
	"sort"

	"github.com/roasbeef/subtrate/internal/orbitcore/capability"
	"github.com/roasbeef/subtrate/internal/orbitcore/directory"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/orbiterrors"
)

// ClusterView is the narrow slice of cluster membership the Router needs:
// the set of nodes currently known to implement a given interface, and
// each one's current load (the Router picks the least-loaded candidate,
// breaking ties lexicographically). It is satisfied by cluster.Membership
// in the Stage and by a static fake in tests.
type ClusterView interface {
	// CapableNodes returns every known node (including, potentially, the
	// local one) that implements interfaceID.
	CapableNodes(interfaceID string) []netid.NodeIdentity

	// Load returns a node's current load metric, lower is preferred.
	// Implementations that do not track load may return 0 uniformly,
	// which leaves the selection policy purely lexicographic.
	Load(node netid.NodeIdentity) int
}

// Router implements the five-step placement decision procedure.
type Router struct {
	dir       *directory.Directory
	defs      *capability.Registry
	cluster   ClusterView
	localNode netid.NodeIdentity
}

// New creates a Router bound to a directory, the local capability
// registry, and a view of cluster membership/load.
func New(dir *directory.Directory, defs *capability.Registry,
	cluster ClusterView, localNode netid.NodeIdentity) *Router {

	return &Router{
		dir:       dir,
		defs:      defs,
		cluster:   cluster,
		localNode: localNode,
	}
}

// Resolve decides the NetTarget for ref, given the message's current target
// (explicit is non-zero only if the caller already pinned a unicast
// destination).
func (r *Router) Resolve(ctx context.Context, ref netid.AddressableReference,
	explicit netid.NetTarget) (netid.NetTarget, error) {

	// Step 1: explicit unicast target passes straight through.
	if explicit.IsUnicast() {
		return explicit, nil
	}

	// Step 2: an existing placement wins, whatever it is.
	if existing, ok, err := r.dir.Locate(ctx, ref); err != nil {
		return netid.NetTarget{}, err
	} else if ok {
		return existing, nil
	}

	def, ok := r.defs.Definition(ref.InterfaceID)
	if !ok {
		return netid.NetTarget{}, fmt.Errorf(
			"%w: no definition for interface %q",
			orbiterrors.ErrNoAvailableNode, ref.InterfaceID,
		)
	}

	// Step 3: prefer placing locally, if the interface asks for it and
	// this node can serve it.
	localCandidates := r.cluster.CapableNodes(ref.InterfaceID)
	localCapable := false
	for _, n := range localCandidates {
		if n == r.localNode {
			localCapable = true
			break
		}
	}

	if def.Routing.PreferLocal && localCapable {
		if err := r.dir.ForcePlaceLocal(ctx, ref); err != nil {
			return netid.NetTarget{}, err
		}

		target := netid.Unicast(r.localNode)
		log.DebugS(ctx, "Router placed locally by preference",
			"reference", ref.String())
		return target, nil
	}

	// Step 4: pick the least-loaded capable candidate, tie-broken
	// lexicographically by NodeIdentity for determinism across nodes
	// observing the same cluster view.
	candidate, err := r.pickCandidate(ref.InterfaceID)
	if err != nil {
		return netid.NetTarget{}, err
	}

	winner, err := r.dir.LocateOrPlace(ctx, ref, netid.Unicast(candidate))
	if err != nil {
		return netid.NetTarget{}, err
	}

	return winner, nil
}

// pickCandidate implements the "lowest-load, then lexicographic" selection
// policy.
func (r *Router) pickCandidate(interfaceID string) (netid.NodeIdentity, error) {
	candidates := r.cluster.CapableNodes(interfaceID)
	if len(candidates) == 0 {
		return "", fmt.Errorf(
			"%w: no node implements %q",
			orbiterrors.ErrNoAvailableNode, interfaceID,
		)
	}

	sort.Slice(candidates, func(i, j int) bool {
		li, lj := r.cluster.Load(candidates[i]), r.cluster.Load(candidates[j])
		if li != lj {
			return li < lj
		}
		return candidates[i] < candidates[j]
	})

	return candidates[0], nil
}
