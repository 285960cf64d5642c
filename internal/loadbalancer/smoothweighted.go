package loadbalancer

import (
	"sync"
)

// smoothEntry tracks one backend's running weight state for SmoothWeighted.
type smoothEntry struct {
	backend *Backend
	current int // current weight, grows by effective weight each pick
}

// SmoothWeighted implements the smooth weighted round-robin algorithm
// (current += effective; pick max; pick.current -= total), the default
// LoadBalancer service algorithm (§4.4). Unlike WeightedRoundRobin's
// GCD-stepping scheme, this spreads picks evenly within a single pass
// over the backend set rather than needing a multi-round GCD walk, and
// is the algorithm most reverse proxies converged on for this reason.
type SmoothWeighted struct {
	baseBalancer
	mu      sync.Mutex
	entries []*smoothEntry
}

// NewSmoothWeighted creates a smooth-weighted balancer over backends.
func NewSmoothWeighted(backends []*Backend) *SmoothWeighted {
	sw := &SmoothWeighted{}
	for _, b := range backends {
		if b.Weight == 0 {
			b.Weight = 1
		}
	}
	sw.backends = backends
	sw.buildIndex()
	sw.rebuildEntries()
	return sw
}

func (sw *SmoothWeighted) rebuildEntries() {
	healthy := sw.CachedHealthyBackends()
	entries := make([]*smoothEntry, 0, len(healthy))
	for _, b := range healthy {
		entries = append(entries, &smoothEntry{backend: b})
	}
	sw.mu.Lock()
	sw.entries = entries
	sw.mu.Unlock()
}

// entriesStale reports whether the cached healthy set no longer matches
// the entries this balancer last built.
func (sw *SmoothWeighted) entriesStale() bool {
	healthy := sw.CachedHealthyBackends()
	if len(healthy) != len(sw.entries) {
		return true
	}
	for i, b := range healthy {
		if sw.entries[i].backend != b {
			return true
		}
	}
	return false
}

// Next picks the backend with the highest current weight, per the
// classic nginx smooth-weighted-round-robin step.
func (sw *SmoothWeighted) Next() *Backend {
	sw.mu.Lock()
	stale := sw.entriesStale()
	sw.mu.Unlock()
	if stale {
		sw.rebuildEntries()
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if len(sw.entries) == 0 {
		return nil
	}

	total := 0
	var best *smoothEntry
	for _, e := range sw.entries {
		e.current += e.backend.Weight
		total += e.backend.Weight
		if best == nil || e.current > best.current {
			best = e
		}
	}
	best.current -= total
	return best.backend
}

// UpdateBackends updates the backend set and resets smoothing state.
func (sw *SmoothWeighted) UpdateBackends(backends []*Backend) {
	sw.baseBalancer.UpdateBackends(backends)
	sw.rebuildEntries()
}

// MarkHealthy marks a backend healthy and resyncs the smoothing entries.
func (sw *SmoothWeighted) MarkHealthy(url string) {
	sw.baseBalancer.MarkHealthy(url)
	sw.rebuildEntries()
}

// MarkUnhealthy marks a backend unhealthy and resyncs the smoothing entries.
func (sw *SmoothWeighted) MarkUnhealthy(url string) {
	sw.baseBalancer.MarkUnhealthy(url)
	sw.rebuildEntries()
}
