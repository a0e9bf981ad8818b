// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package syncer

// orderedSet tracks a small set of uint64s (views or heights) that the
// syncer is waiting on, supporting the "prune everything below a horizon"
// scan each select-loop iteration performs (spec.md §4.7). It is a plain
// map-backed set: members are kept in no order, and the bulk evictions
// below scan every member. No pack library exposes this exact
// set-with-bulk-eviction primitive, so it is a small hand-rolled structure
// rather than forcing a generic ordered-map dependency onto what is, in
// steady state, a handful of entries.
type orderedSet struct {
	members map[uint64]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{members: make(map[uint64]struct{})}
}

func (s *orderedSet) add(v uint64) {
	s.members[v] = struct{}{}
}

func (s *orderedSet) remove(v uint64) {
	delete(s.members, v)
}

func (s *orderedSet) has(v uint64) bool {
	_, ok := s.members[v]
	return ok
}

func (s *orderedSet) len() int {
	return len(s.members)
}

// removeBelow evicts every member strictly less than horizon and returns
// them, in no particular order (callers only need the set of evicted
// values to cancel, not their relative order).
func (s *orderedSet) removeBelow(horizon uint64) []uint64 {
	var evicted []uint64
	for v := range s.members {
		if v < horizon {
			evicted = append(evicted, v)
			delete(s.members, v)
		}
	}
	return evicted
}

// removeAtMost evicts every member ≤ cutoff and returns them.
func (s *orderedSet) removeAtMost(cutoff uint64) []uint64 {
	var evicted []uint64
	for v := range s.members {
		if v <= cutoff {
			evicted = append(evicted, v)
			delete(s.members, v)
		}
	}
	return evicted
}
