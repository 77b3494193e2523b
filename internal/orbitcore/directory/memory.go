package directory

import (
	"context"
	"sync"

	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
)

// MemoryBackend is an in-process AddressableDirectory, suitable for tests,
// single-node embeddings, and as the reference implementation the property
// tests in internal/orbitcore/directory/memory_property_test.go exercise
// the get-or-put/remove-if semantics against.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[netid.AddressableReference]netid.NetTarget
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[netid.AddressableReference]netid.NetTarget),
	}
}

// Get implements AddressableDirectory.
func (m *MemoryBackend) Get(_ context.Context,
	ref netid.AddressableReference) (netid.NetTarget, bool, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.entries[ref]
	return target, ok, nil
}

// GetOrPut implements AddressableDirectory. The lock held across the whole
// read-modify-write is what makes this correct: it is the single point of
// serialization that guarantees every caller observes the same winner.
func (m *MemoryBackend) GetOrPut(_ context.Context,
	ref netid.AddressableReference, target netid.NetTarget) (netid.NetTarget, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[ref]; ok {
		return existing, nil
	}

	m.entries[ref] = target
	return target, nil
}

// Put implements AddressableDirectory.
func (m *MemoryBackend) Put(_ context.Context,
	ref netid.AddressableReference, target netid.NetTarget) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[ref] = target
	return nil
}

// RemoveIf implements AddressableDirectory.
func (m *MemoryBackend) RemoveIf(_ context.Context,
	ref netid.AddressableReference, expected netid.NetTarget) (bool, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.entries[ref]
	if !ok || !current.Equal(expected) {
		return false, nil
	}

	delete(m.entries, ref)
	return true, nil
}

// Ensure MemoryBackend implements AddressableDirectory.
var _ AddressableDirectory = (*MemoryBackend)(nil)
