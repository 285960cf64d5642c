// Package router implements the router table (§4.2): an ordered,
// priority-resolved set of compiled routers per entry point. Dispatch is a
// linear scan within the entry point's group — predicates are cheap and
// this beats building an index that must cover arbitrary expressions, up to
// a few hundred routers per entry point.
package router

import (
	"sort"

	"github.com/ridgeline/gateway/internal/rulelang"
	"github.com/ridgeline/gateway/internal/snapshot"
)

// Table holds one priority-sorted router group per entry point. A Table is
// immutable once built; reloads build a new Table rather than mutating one
// in place, per the hot property in §4.2.
type Table struct {
	byEntryPoint map[string][]*snapshot.Router
}

// BuildHTTP groups routers by entry point and sorts each group by
// (priority desc, name asc), the default tie-breaker per §9's Open
// Question resolution.
func BuildHTTP(routers []*snapshot.Router) *Table {
	t := &Table{byEntryPoint: make(map[string][]*snapshot.Router)}
	for _, r := range routers {
		for _, ep := range r.EntryPoints {
			t.byEntryPoint[ep] = append(t.byEntryPoint[ep], r)
		}
	}
	for _, group := range t.byEntryPoint {
		sortRouters(group)
	}
	return t
}

func sortRouters(group []*snapshot.Router) {
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].Priority != group[j].Priority {
			return group[i].Priority > group[j].Priority
		}
		return group[i].Name < group[j].Name
	})
}

// EffectivePriority returns the router's explicit priority, defaulting to
// the predicate's complexity score (bytes-ish weight) per §3.
func EffectivePriority(priority int, predicate *rulelang.Predicate) int {
	if priority != 0 {
		return priority
	}
	return predicate.Complexity
}

// Groups returns the sorted per-entry-point router groups, for callers
// (e.g. the snapshot builder) that need the sorted order without going
// through Match.
func (t *Table) Groups() map[string][]*snapshot.Router {
	return t.byEntryPoint
}

// Match dispatches one request descriptor against the entry point's group,
// first match wins. A nil result means no router ⇒ caller returns 404 (L7)
// or closes the connection (L4).
func (t *Table) Match(entryPoint string, d *rulelang.Descriptor) *snapshot.Router {
	for _, r := range t.byEntryPoint[entryPoint] {
		ok, err := r.Predicate.Evaluate(d)
		if err != nil || !ok {
			continue
		}
		return r
	}
	return nil
}

// TCPTable is the TCP-router analogue of Table.
type TCPTable struct {
	byEntryPoint map[string][]*snapshot.TCPRouter
}

func BuildTCP(routers []*snapshot.TCPRouter) *TCPTable {
	t := &TCPTable{byEntryPoint: make(map[string][]*snapshot.TCPRouter)}
	for _, r := range routers {
		for _, ep := range r.EntryPoints {
			t.byEntryPoint[ep] = append(t.byEntryPoint[ep], r)
		}
	}
	for _, group := range t.byEntryPoint {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Priority != group[j].Priority {
				return group[i].Priority > group[j].Priority
			}
			return group[i].Name < group[j].Name
		})
	}
	return t
}

// Groups returns the sorted per-entry-point TCP router groups.
func (t *TCPTable) Groups() map[string][]*snapshot.TCPRouter {
	return t.byEntryPoint
}

func (t *TCPTable) Match(entryPoint string, d *rulelang.Descriptor) *snapshot.TCPRouter {
	for _, r := range t.byEntryPoint[entryPoint] {
		ok, err := r.Predicate.Evaluate(d)
		if err != nil || !ok {
			continue
		}
		return r
	}
	return nil
}

// UDPTable is the UDP-router analogue of Table.
type UDPTable struct {
	byEntryPoint map[string][]*snapshot.UDPRouter
}

func BuildUDP(routers []*snapshot.UDPRouter) *UDPTable {
	t := &UDPTable{byEntryPoint: make(map[string][]*snapshot.UDPRouter)}
	for _, r := range routers {
		for _, ep := range r.EntryPoints {
			t.byEntryPoint[ep] = append(t.byEntryPoint[ep], r)
		}
	}
	for _, group := range t.byEntryPoint {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Priority != group[j].Priority {
				return group[i].Priority > group[j].Priority
			}
			return group[i].Name < group[j].Name
		})
	}
	return t
}

// Groups returns the sorted per-entry-point UDP router groups.
func (t *UDPTable) Groups() map[string][]*snapshot.UDPRouter {
	return t.byEntryPoint
}

func (t *UDPTable) Match(entryPoint string, d *rulelang.Descriptor) *snapshot.UDPRouter {
	for _, r := range t.byEntryPoint[entryPoint] {
		ok, err := r.Predicate.Evaluate(d)
		if err != nil || !ok {
			continue
		}
		return r
	}
	return nil
}
