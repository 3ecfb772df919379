/*
conflict.go - Per-property date-interval conflict index

PURPOSE:
  Answers "does interval X overlap any confirmed interval for property P?"
  and maintains the set of occupying intervals. A pure data structure:
  the reservation manager is responsible for calling Query and Insert
  inside the same property-scoped critical section, and for removing
  entries on cancellation.

ORDERING:
  Intervals are kept sorted by start date with binary-search insertion,
  so overlap queries stop at the first interval starting at or after the
  probe's end.

SEE ALSO:
  - interval.go: Half-open overlap semantics
  - booking/manager.go: The only mutator
*/
package engine

import (
	"sort"
	"sync"
)

// =============================================================================
// CONFLICT INDEX
// =============================================================================

type indexEntry struct {
	ReservationID ReservationID
	Range         DateRange
}

// ConflictIndex tracks the occupied intervals of every property. Safe for
// concurrent readers; writers must additionally hold the per-property
// booking lock to make query+insert atomic.
type ConflictIndex struct {
	mu         sync.RWMutex
	byProperty map[PropertyID][]indexEntry
}

func NewConflictIndex() *ConflictIndex {
	return &ConflictIndex{byProperty: make(map[PropertyID][]indexEntry)}
}

// Query returns the first confirmed interval overlapping the probe, or
// false when the range is free.
func (ci *ConflictIndex) Query(propertyID PropertyID, r DateRange) (ReservationID, DateRange, bool) {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	for _, e := range ci.byProperty[propertyID] {
		if e.Range.Start.AfterOrEqual(r.End) {
			break
		}
		if e.Range.Overlaps(r) {
			return e.ReservationID, e.Range, true
		}
	}
	return "", DateRange{}, false
}

// Insert adds an interval. Callers must have verified no overlap in the
// same critical section.
func (ci *ConflictIndex) Insert(propertyID PropertyID, id ReservationID, r DateRange) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	entries := ci.byProperty[propertyID]
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].Range.Start.After(r.Start)
	})
	entries = append(entries, indexEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = indexEntry{ReservationID: id, Range: r}
	ci.byProperty[propertyID] = entries
}

// Remove deletes the interval for a reservation. A no-op when the
// reservation is not indexed.
func (ci *ConflictIndex) Remove(propertyID PropertyID, id ReservationID) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	entries := ci.byProperty[propertyID]
	for i, e := range entries {
		if e.ReservationID == id {
			ci.byProperty[propertyID] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of indexed intervals for a property.
func (ci *ConflictIndex) Len(propertyID PropertyID) int {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return len(ci.byProperty[propertyID])
}
