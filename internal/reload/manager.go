package reload

import (
	"sync"
	"sync/atomic"

	"github.com/ridgeline/gateway/internal/snapshot"
)

// handle wraps one RuntimeSnapshot generation with a reference count so
// in-flight requests can keep using it after a newer generation is
// published, per §5's drain-don't-cancel concurrency model.
type handle struct {
	snap *snapshot.RuntimeSnapshot
	refs sync.WaitGroup
}

// Manager holds the currently published RuntimeSnapshot and lets callers
// Acquire a reference-counted handle to it. A reload publishes a new
// handle via Swap; the old one is returned so the caller can wait for its
// refs to drain before tearing down removed listeners.
type Manager struct {
	current atomic.Pointer[handle]
}

// NewManager creates a Manager with no published snapshot.
func NewManager() *Manager {
	return &Manager{}
}

// Current returns the live RuntimeSnapshot, or nil before the first Swap.
func (m *Manager) Current() *snapshot.RuntimeSnapshot {
	h := m.current.Load()
	if h == nil {
		return nil
	}
	return h.snap
}

// Lease is a reference-counted hold on one snapshot generation. Callers
// must call Release exactly once.
type Lease struct {
	h *handle
}

// Acquire takes a reference on the currently published snapshot, pinning
// it against the drain triggered by a subsequent Swap. Returns nil if no
// snapshot has been published yet.
func (m *Manager) Acquire() *Lease {
	h := m.current.Load()
	if h == nil {
		return nil
	}
	h.refs.Add(1)
	return &Lease{h: h}
}

// Snapshot returns the RuntimeSnapshot this lease pins.
func (l *Lease) Snapshot() *snapshot.RuntimeSnapshot {
	return l.h.snap
}

// Release drops the reference taken by Acquire.
func (l *Lease) Release() {
	l.h.refs.Done()
}

// Swap publishes snap as the current generation and returns a function
// that blocks until every Lease on the *previous* generation has been
// released. Call the returned function before stopping listeners that
// the new snapshot removed.
func (m *Manager) Swap(snap *snapshot.RuntimeSnapshot) func() {
	newHandle := &handle{snap: snap}
	old := m.current.Swap(newHandle)
	if old == nil {
		return func() {}
	}
	return old.refs.Wait
}
