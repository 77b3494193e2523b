package directory

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
)

// TestGetOrPutSingleWinnerInvariant verifies the invariant every
// AddressableDirectory backend must uphold (spec §3): for a fixed reference,
// however many times GetOrPut is called for it with different proposed
// targets, every caller observes the same winning target.
func TestGetOrPutSingleWinnerInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewMemoryBackend()
		ctx := context.Background()

		ref := netid.AddressableReference{
			InterfaceID: rapid.StringMatching(`[A-Z][a-z]+`).Draw(t, "interfaceID"),
			Key:         rapid.StringMatching(`[a-z0-9]+`).Draw(t, "key"),
		}

		numProposals := rapid.IntRange(1, 8).Draw(t, "numProposals")
		proposals := make([]netid.NetTarget, numProposals)
		for i := range proposals {
			node := rapid.StringMatching(`node-[a-z]`).Draw(t, "node")
			proposals[i] = netid.Unicast(netid.NodeIdentity(node))
		}

		var winners []netid.NetTarget
		for _, proposal := range proposals {
			winner, err := m.GetOrPut(ctx, ref, proposal)
			if err != nil {
				t.Fatalf("GetOrPut: %v", err)
			}
			winners = append(winners, winner)
		}

		first := winners[0]
		for _, w := range winners[1:] {
			if !w.Equal(first) {
				t.Fatalf("winners disagree: %s vs %s", w, first)
			}
		}

		got, ok, err := m.Get(ctx, ref)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !ok {
			t.Fatalf("expected an entry after GetOrPut")
		}
		if !got.Equal(first) {
			t.Fatalf("Get disagrees with GetOrPut winner: %s vs %s", got, first)
		}
	})
}

// TestRemoveIfOnlyDeletesOnExactMatch verifies RemoveIf never deletes an
// entry whose current value has since diverged from the expected one.
func TestRemoveIfOnlyDeletesOnExactMatch(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewMemoryBackend()
		ctx := context.Background()

		ref := netid.AddressableReference{InterfaceID: "Greeter", Key: "k1"}
		original := netid.Unicast("node-a")
		other := netid.Unicast("node-b")

		if _, err := m.GetOrPut(ctx, ref, original); err != nil {
			t.Fatalf("GetOrPut: %v", err)
		}

		removed, err := m.RemoveIf(ctx, ref, other)
		if err != nil {
			t.Fatalf("RemoveIf: %v", err)
		}
		if removed {
			t.Fatalf("RemoveIf should not have matched a stale expectation")
		}

		_, ok, err := m.Get(ctx, ref)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !ok {
			t.Fatalf("entry should still exist after a mismatched RemoveIf")
		}

		removed, err = m.RemoveIf(ctx, ref, original)
		if err != nil {
			t.Fatalf("RemoveIf: %v", err)
		}
		if !removed {
			t.Fatalf("RemoveIf should have matched the original target")
		}
	})
}
