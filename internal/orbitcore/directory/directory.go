// Package directory implements the thin, safe façade over the external
// cluster directory, plus a couple of concrete AddressableDirectory
// backends (an in-memory one for single-process tests and embedding, and
// a SQLite-backed one using compare-and-set SQL).
package directory

import (
	"context"
	"fmt"

	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/orbiterrors"
)

// AddressableDirectory is the external collaborator: a compare-and-set
// key/value store mapping AddressableReference to NetTarget.
// Implementations may block on I/O and may return a transient error. An
// implementation may retry its own transient failures (SqliteBackend retries
// SQLITE_BUSY); the Directory façade itself never retries.
type AddressableDirectory interface {
	// Get performs a read-only lookup. It returns (target, true, nil) if
	// an entry exists, (zero, false, nil) if it does not, and a non-nil
	// error on I/O failure.
	Get(ctx context.Context, ref netid.AddressableReference) (netid.NetTarget, bool, error)

	// GetOrPut atomically inserts (ref -> target) if absent, or returns
	// the existing value if present. All callers on any node agree on
	// the single winner.
	GetOrPut(ctx context.Context, ref netid.AddressableReference, target netid.NetTarget) (netid.NetTarget, error)

	// Put unconditionally writes ref -> target.
	Put(ctx context.Context, ref netid.AddressableReference, target netid.NetTarget) error

	// RemoveIf deletes ref only if its current value equals expected.
	// It returns true if the delete happened.
	RemoveIf(ctx context.Context, ref netid.AddressableReference, expected netid.NetTarget) (bool, error)
}

// Directory is the façade the rest of the core talks to. It never retries
// and never swallows a backend error; it only narrows the generic
// AddressableDirectory interface into the four operations the core needs.
type Directory struct {
	backend     AddressableDirectory
	localNode   netid.NodeIdentity
}

// New creates a Directory façade over the given backend, bound to the local
// node's identity (used by ForcePlaceLocal and RemoveIfLocal).
func New(backend AddressableDirectory, localNode netid.NodeIdentity) *Directory {
	return &Directory{backend: backend, localNode: localNode}
}

// Locate performs a read-only lookup for ref.
func (d *Directory) Locate(ctx context.Context,
	ref netid.AddressableReference) (netid.NetTarget, bool, error) {

	target, ok, err := d.backend.Get(ctx, ref)
	if err != nil {
		return netid.NetTarget{}, false, fmt.Errorf(
			"%w: locate %s: %v", orbiterrors.ErrDirectory, ref, err,
		)
	}

	return target, ok, nil
}

// LocateOrPlace atomically binds ref to target if unbound, or returns the
// existing placement. This is the get-or-put operation every Router
// candidate call goes through, and the sole source of the "at most one
// active handler cluster-wide" invariant.
func (d *Directory) LocateOrPlace(ctx context.Context,
	ref netid.AddressableReference, target netid.NetTarget) (netid.NetTarget, error) {

	winner, err := d.backend.GetOrPut(ctx, ref, target)
	if err != nil {
		return netid.NetTarget{}, fmt.Errorf(
			"%w: locateOrPlace %s: %v", orbiterrors.ErrDirectory, ref, err,
		)
	}

	log.DebugS(ctx, "Directory locateOrPlace resolved",
		"reference", ref.String(), "proposed", target.String(),
		"winner", winner.String())

	return winner, nil
}

// ForcePlaceLocal unconditionally binds ref to the local node. Used by the
// Router when an interface prefers local placement.
func (d *Directory) ForcePlaceLocal(ctx context.Context,
	ref netid.AddressableReference) error {

	err := d.backend.Put(ctx, ref, netid.Unicast(d.localNode))
	if err != nil {
		return fmt.Errorf(
			"%w: forcePlaceLocal %s: %v", orbiterrors.ErrDirectory, ref, err,
		)
	}

	return nil
}

// RemoveIfLocal deletes ref's directory entry only if it currently points
// at this node. Used when a handler deactivates, so a stale entry never
// outlives the handler that owned it.
func (d *Directory) RemoveIfLocal(ctx context.Context,
	ref netid.AddressableReference) error {

	removed, err := d.backend.RemoveIf(ctx, ref, netid.Unicast(d.localNode))
	if err != nil {
		return fmt.Errorf(
			"%w: removeIfLocal %s: %v", orbiterrors.ErrDirectory, ref, err,
		)
	}

	log.DebugS(ctx, "Directory removeIfLocal",
		"reference", ref.String(), "removed", removed)

	return nil
}

// LocalNode returns the node identity this façade removes/places entries
// for.
func (d *Directory) LocalNode() netid.NodeIdentity {
	return d.localNode
}
