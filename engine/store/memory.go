// Package store provides an in-memory Store implementation for tests and
// development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coown/staybook/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	transactions map[engine.MembershipKey][]engine.Transaction
	idempotency  map[string]bool

	reservations map[engine.ReservationID]*engine.Reservation
	checklists   map[engine.ReservationID]map[engine.ChecklistPhase]*engine.ChecklistRecord
	penalties    map[engine.PenaltyID]*engine.Penalty

	rules       map[engine.PropertyID]engine.PropertyRules
	memberships map[engine.MembershipKey]*engine.Membership
	inventory   map[engine.PropertyID][]engine.ItemID
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[engine.MembershipKey][]engine.Transaction),
		idempotency:  make(map[string]bool),
		reservations: make(map[engine.ReservationID]*engine.Reservation),
		checklists:   make(map[engine.ReservationID]map[engine.ChecklistPhase]*engine.ChecklistRecord),
		penalties:    make(map[engine.PenaltyID]*engine.Penalty),
		rules:        make(map[engine.PropertyID]engine.PropertyRules),
		memberships:  make(map[engine.MembershipKey]*engine.Membership),
		inventory:    make(map[engine.PropertyID][]engine.ItemID),
	}
}

var _ engine.Store = (*Memory)(nil)

// =============================================================================
// LEDGER STORE
// =============================================================================

func (m *Memory) AppendTransaction(_ context.Context, tx engine.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx engine.Transaction) error {
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return engine.ErrDuplicateIdempotencyKey
	}
	k := tx.Key()
	m.transactions[k] = append(m.transactions[k], tx)
	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) LoadTransactions(_ context.Context, key engine.MembershipKey, year int) ([]engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Transaction
	for _, tx := range m.transactions[key] {
		if tx.Year == year {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *Memory) LoadAllTransactions(_ context.Context, key engine.MembershipKey) ([]engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.Transaction, len(m.transactions[key]))
	copy(out, m.transactions[key])
	return out, nil
}

// =============================================================================
// RESERVATION STORE
// =============================================================================

func (m *Memory) CommitReservation(_ context.Context, res *engine.Reservation, debit engine.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Overlap backstop: the manager already checked under the property
	// lock, but the store refuses to persist a double-booking regardless.
	for _, other := range m.reservations {
		if other.PropertyID == res.PropertyID && other.Occupies() && other.Range.Overlaps(res.Range) {
			return &engine.DateConflictError{
				PropertyID:    res.PropertyID,
				Requested:     res.Range,
				ConflictsWith: other.Range,
				ReservationID: other.ID,
			}
		}
	}

	if err := m.appendLocked(debit); err != nil {
		return err
	}
	stored := *res
	m.reservations[res.ID] = &stored
	return nil
}

func (m *Memory) CancelReservation(_ context.Context, id engine.ReservationID, credit engine.Transaction, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[id]
	if !ok {
		return engine.ErrReservationNotFound
	}
	if !res.Cancellable() {
		return engine.ErrNotCancellable
	}
	if err := m.appendLocked(credit); err != nil {
		return err
	}
	res.Status = engine.StatusCancelled
	res.CancelledAt = &at
	return nil
}

func (m *Memory) CompleteReservation(_ context.Context, id engine.ReservationID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[id]
	if !ok {
		return engine.ErrReservationNotFound
	}
	if res.Status != engine.StatusConfirmed {
		return engine.ErrPossessionState
	}
	res.Status = engine.StatusCompleted
	res.CompletedAt = &at
	return nil
}

func (m *Memory) GetReservation(_ context.Context, id engine.ReservationID) (*engine.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.reservations[id]
	if !ok {
		return nil, engine.ErrReservationNotFound
	}
	cp := *res
	return &cp, nil
}

func (m *Memory) ListReservations(_ context.Context, propertyID engine.PropertyID, from, to engine.TimePoint) ([]*engine.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	probe := engine.DateRange{Start: from, End: to}
	var out []*engine.Reservation
	for _, res := range m.reservations {
		if res.PropertyID != propertyID {
			continue
		}
		if !from.IsZero() && !res.Range.Overlaps(probe) {
			continue
		}
		cp := *res
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Range.Start.Before(out[j].Range.Start)
	})
	return out, nil
}

func (m *Memory) ListOccupying(_ context.Context) ([]*engine.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*engine.Reservation
	for _, res := range m.reservations {
		if res.Occupies() {
			cp := *res
			out = append(out, &cp)
		}
	}
	return out, nil
}

// =============================================================================
// CHECKLIST STORE
// =============================================================================

func (m *Memory) SaveChecklist(_ context.Context, record *engine.ChecklistRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	phases := m.checklists[record.ReservationID]
	if phases == nil {
		phases = make(map[engine.ChecklistPhase]*engine.ChecklistRecord)
		m.checklists[record.ReservationID] = phases
	}
	if _, exists := phases[record.Phase]; exists {
		return engine.ErrAlreadySubmitted
	}
	cp := *record
	phases[record.Phase] = &cp
	return nil
}

func (m *Memory) GetChecklist(_ context.Context, reservationID engine.ReservationID, phase engine.ChecklistPhase) (*engine.ChecklistRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.checklists[reservationID][phase]
	if !ok {
		return nil, nil
	}
	cp := *record
	return &cp, nil
}

func (m *Memory) ListChecklists(_ context.Context, reservationID engine.ReservationID) ([]*engine.ChecklistRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*engine.ChecklistRecord
	for _, phase := range []engine.ChecklistPhase{engine.PhaseCheckin, engine.PhaseCheckout} {
		if record, ok := m.checklists[reservationID][phase]; ok {
			cp := *record
			out = append(out, &cp)
		}
	}
	return out, nil
}

// =============================================================================
// PENALTY STORE
// =============================================================================

func (m *Memory) SavePenalty(_ context.Context, p *engine.Penalty) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.penalties[p.ID] = &cp
	return nil
}

func (m *Memory) ActivePenalties(_ context.Context, propertyID engine.PropertyID, userID engine.UserID) ([]*engine.Penalty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*engine.Penalty
	for _, p := range m.penalties {
		if p.PropertyID == propertyID && p.UserID == userID && p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) ListPenalties(_ context.Context, propertyID engine.PropertyID) ([]*engine.Penalty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*engine.Penalty
	for _, p := range m.penalties {
		if p.PropertyID == propertyID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeactivatePenalty(_ context.Context, id engine.PenaltyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.penalties[id]
	if !ok {
		return engine.ErrPenaltyNotFound
	}
	p.Active = false
	return nil
}

// =============================================================================
// COLLABORATOR STORES
// =============================================================================

func (m *Memory) GetRules(_ context.Context, propertyID engine.PropertyID) (engine.PropertyRules, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rules, ok := m.rules[propertyID]
	if !ok {
		return engine.PropertyRules{}, engine.ErrPropertyNotFound
	}
	return rules, nil
}

func (m *Memory) SaveRules(_ context.Context, rules engine.PropertyRules) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rules.PropertyID] = rules
	return nil
}

func (m *Memory) ListProperties(_ context.Context) ([]engine.PropertyRules, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.PropertyRules, 0, len(m.rules))
	for _, rules := range m.rules {
		out = append(out, rules)
	}
	return out, nil
}

func (m *Memory) GetMembership(_ context.Context, key engine.MembershipKey) (*engine.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mem, ok := m.memberships[key]
	if !ok {
		return nil, engine.ErrMembershipNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *Memory) ListMemberships(_ context.Context, propertyID engine.PropertyID) ([]*engine.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*engine.Membership
	for _, mem := range m.memberships {
		if mem.PropertyID == propertyID {
			cp := *mem
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) SaveMembership(_ context.Context, mem *engine.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *mem
	m.memberships[engine.MembershipKey{PropertyID: mem.PropertyID, UserID: mem.UserID}] = &cp
	return nil
}

func (m *Memory) ListInventory(_ context.Context, propertyID engine.PropertyID) ([]engine.ItemID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.ItemID, len(m.inventory[propertyID]))
	copy(out, m.inventory[propertyID])
	return out, nil
}

func (m *Memory) SaveInventory(_ context.Context, propertyID engine.PropertyID, items []engine.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]engine.ItemID, len(items))
	copy(cp, items)
	m.inventory[propertyID] = cp
	return nil
}
