// Package serverstate holds per-server mutable health and load state,
// keyed by the server's stable identity (serversTransport + "|" + url).
// Identity, not a RuntimeSnapshot pointer, is the key: a reload that keeps
// the same backend URL must not reset its health or in-flight counters, so
// this state deliberately lives outside internal/snapshot and outlives any
// single snapshot generation.
package serverstate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Status mirrors a server's admission eligibility.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
	StatusDraining
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	case StatusDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// State is one server's live counters. All fields are accessed through
// atomics or the embedded mutex; callers never copy a State by value.
type State struct {
	mu                  sync.RWMutex
	status              Status
	consecutiveFailures int
	consecutiveSuccess  int
	openedAt            time.Time // time the circuit last opened, zero if closed
	lastProbe           time.Time

	inFlight    int64   // atomic
	ewmaLatency int64   // atomic, nanoseconds
}

const ewmaAlpha = 0.2 // weight given to the newest sample

// Status returns the server's current admission status.
func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// InFlight returns the number of requests currently in flight to this server.
func (s *State) InFlight() int64 {
	return atomic.LoadInt64(&s.inFlight)
}

// EWMALatency returns the exponentially-weighted moving average latency.
func (s *State) EWMALatency() time.Duration {
	return time.Duration(atomic.LoadInt64(&s.ewmaLatency))
}

// BeginRequest increments the in-flight counter; callers must call
// FinishRequest exactly once for each BeginRequest.
func (s *State) BeginRequest() {
	atomic.AddInt64(&s.inFlight, 1)
}

// FinishRequest decrements in-flight and folds the observed latency into
// the EWMA.
func (s *State) FinishRequest(latency time.Duration) {
	atomic.AddInt64(&s.inFlight, -1)
	for {
		old := atomic.LoadInt64(&s.ewmaLatency)
		var next int64
		if old == 0 {
			next = int64(latency)
		} else {
			next = int64(float64(old)*(1-ewmaAlpha) + float64(latency)*ewmaAlpha)
		}
		if atomic.CompareAndSwapInt64(&s.ewmaLatency, old, next) {
			return
		}
	}
}

// RecordProbe folds a health-check observation into the consecutive
// pass/fail counters and returns the resulting status. This does not force
// a Draining transition; only SetDraining does.
func (s *State) RecordProbe(healthy bool, healthyAfter, unhealthyAfter int) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastProbe = time.Now()
	if s.status == StatusDraining {
		return s.status
	}

	if healthy {
		s.consecutiveFailures = 0
		s.consecutiveSuccess++
		if s.consecutiveSuccess >= healthyAfter {
			s.status = StatusHealthy
			s.openedAt = time.Time{}
		}
	} else {
		s.consecutiveSuccess = 0
		s.consecutiveFailures++
		if s.consecutiveFailures >= unhealthyAfter {
			if s.status != StatusUnhealthy {
				s.openedAt = time.Now()
			}
			s.status = StatusUnhealthy
		} else if s.consecutiveFailures > 0 {
			s.status = StatusDegraded
		}
	}
	return s.status
}

// SetDraining marks the server as draining: no new requests should be
// routed to it, but existing in-flight requests complete normally.
func (s *State) SetDraining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusDraining
}

// OpenedAt returns when the server last transitioned into StatusUnhealthy,
// the zero Time if it is not currently unhealthy.
func (s *State) OpenedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openedAt
}

const shardCount = 64

type shard struct {
	mu     sync.RWMutex
	states map[string]*State
}

// Store is a sharded, identity-keyed map of server State. Sharding by
// xxhash(identity) keeps lock contention local to the shard under
// concurrent reloads and request-path lookups.
type Store struct {
	shards [shardCount]*shard
}

// NewStore creates an empty Store.
func NewStore() *Store {
	st := &Store{}
	for i := range st.shards {
		st.shards[i] = &shard{states: make(map[string]*State)}
	}
	return st
}

func (st *Store) shardFor(identity string) *shard {
	h := xxhash.Sum64String(identity)
	return st.shards[h%uint64(shardCount)]
}

// GetOrCreate returns the State for identity, creating it (StatusUnknown
// equivalent to Degraded until the first probe lands) if absent.
func (st *Store) GetOrCreate(identity string) *State {
	sh := st.shardFor(identity)

	sh.mu.RLock()
	s, ok := sh.states[identity]
	sh.mu.RUnlock()
	if ok {
		return s
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok = sh.states[identity]; ok {
		return s
	}
	s = &State{status: StatusDegraded}
	sh.states[identity] = s
	return s
}

// Lookup returns the State for identity without creating one.
func (st *Store) Lookup(identity string) (*State, bool) {
	sh := st.shardFor(identity)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.states[identity]
	return s, ok
}

// Prune removes state for identities no longer present in the latest
// snapshot's server set, called after a reload completes draining of the
// old generation so identities that genuinely disappeared don't leak.
func (st *Store) Prune(keep map[string]struct{}) {
	for _, sh := range st.shards {
		sh.mu.Lock()
		for identity := range sh.states {
			if _, ok := keep[identity]; !ok {
				delete(sh.states, identity)
			}
		}
		sh.mu.Unlock()
	}
}
