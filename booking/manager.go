/*
Package booking orchestrates the engine's leaves into the reservation and
possession workflows.

manager.go - Reservation Manager

PURPOSE:
  Validates and commits booking requests, owns the reservation state
  machine, and keeps the conflict index consistent with the store.

VALIDATION ORDER (all checks run under the property lock):
  1. Start date must be today or later (date-only comparison)
  2. Stay length within the property's min/max night rules
  3. Start and end years both resolve to a modeled bucket
  4. Requester holds a membership with no active penalty
  5. Requested range overlaps no confirmed reservation
  6. Debit-year bucket holds enough nights

COMMIT:
  On success the conflict-index insert, the ledger debit, and the
  reservation row are applied as one unit: the index insert happens
  in-memory under the lock, the store commit is transactional, and a
  store failure rolls the index insert back before the error surfaces.
  No partial state is ever observable.

STATE MACHINE:
  PENDING -> CONFIRMED -> COMPLETED, with CANCELLED reachable from
  PENDING and CONFIRMED. PENDING only exists inside validate+commit; the
  common path resolves directly to CONFIRMED or a rejection.

SEE ALSO:
  - engine/conflict.go: Overlap detection
  - engine/ledger.go: Balance accounting and debit-year rule
  - possession.go: The CONFIRMED -> COMPLETED transition
*/
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coown/staybook/engine"
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager validates and commits reservations for co-owned properties.
type Manager struct {
	store  engine.Store
	ledger *engine.Ledger
	index  *engine.ConflictIndex
	reg    *Register
	events *engine.Dispatcher

	now   engine.Clock
	locks *keyedLocks[engine.PropertyID]
}

// NewManager builds a manager and rebuilds the conflict index from the
// store's confirmed and completed reservations.
func NewManager(ctx context.Context, store engine.Store, events *engine.Dispatcher, now engine.Clock) (*Manager, error) {
	if now == nil {
		now = engine.Today
	}
	if events == nil {
		events = engine.NewDispatcher()
	}

	m := &Manager{
		store:  store,
		ledger: engine.NewLedger(store),
		index:  engine.NewConflictIndex(),
		reg:    NewRegister(store, events),
		events: events,
		now:    now,
		locks:  newKeyedLocks[engine.PropertyID](),
	}

	occupying, err := store.ListOccupying(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild conflict index: %w", err)
	}
	for _, res := range occupying {
		m.index.Insert(res.PropertyID, res.ID, res.Range)
	}
	return m, nil
}

// Register exposes the penalty register wired to the same store.
func (m *Manager) Register() *Register { return m.reg }

// =============================================================================
// REQUEST - Validate and commit a booking
// =============================================================================

// Request books a stay for the requester. On success the reservation is
// CONFIRMED, the requested range is indexed, and the start-year bucket is
// debited - atomically.
func (m *Manager) Request(ctx context.Context, propertyID engine.PropertyID, requesterID engine.UserID, start, end engine.TimePoint, guestCount int) (*engine.Reservation, error) {
	stay, err := engine.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}

	release, err := m.locks.acquire(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	defer release()

	today := m.now()

	// 1. No booking in the past. Date-only comparison.
	if start.Before(today) {
		return nil, engine.ErrPastDate
	}

	// 2. Stay length within the property rules.
	rules, err := m.store.GetRules(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	nights := stay.Nights()
	if !rules.AllowsStay(nights) {
		return nil, &engine.StayLengthError{Nights: nights, Min: rules.MinStayNights, Max: rules.MaxStayNights}
	}

	// 3. Both endpoints must land in a modeled year bucket. A stay
	// spanning into a third year is rejected here.
	for _, year := range []int{start.Year(), end.Year()} {
		if !engine.ModeledYear(year, today) {
			return nil, &engine.YearOutOfRangeError{Year: year, CurrentYear: today.Year()}
		}
	}

	// 4. Requester must be a member with no active penalty.
	key := engine.MembershipKey{PropertyID: propertyID, UserID: requesterID}
	if _, err := m.store.GetMembership(ctx, key); err != nil {
		return nil, err
	}
	blocked, err := m.reg.IsBlocked(ctx, propertyID, requesterID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, engine.ErrPenaltyBlocked
	}

	// 5. No overlap with a confirmed stay.
	if id, conflicting, overlaps := m.index.Query(propertyID, stay); overlaps {
		return nil, &engine.DateConflictError{
			PropertyID:    propertyID,
			Requested:     stay,
			ConflictsWith: conflicting,
			ReservationID: id,
		}
	}

	// 6. Enough nights in the start-year bucket.
	available, err := m.ledger.AvailableNights(ctx, key, start.Year(), today)
	if err != nil {
		return nil, err
	}
	requested := engine.NightsOf(nights)
	if available.LessThan(requested) {
		return nil, &engine.InsufficientBalanceError{Key: key, Year: start.Year(), Available: available, Requested: requested}
	}

	// Commit. The reservation passes through PENDING only inside this
	// step; it is persisted CONFIRMED or not at all.
	res := &engine.Reservation{
		ID:            engine.ReservationID(uuid.NewString()),
		PropertyID:    propertyID,
		RequesterID:   requesterID,
		Range:         stay,
		Status:        engine.StatusConfirmed,
		DebitYear:     start.Year(),
		NightsCharged: nights,
		GuestCount:    guestCount,
		CreatedAt:     time.Now().UTC(),
	}

	m.index.Insert(propertyID, res.ID, stay)
	if err := m.store.CommitReservation(ctx, res, engine.DebitTransaction(res)); err != nil {
		// Roll back the index insert; nothing else was applied.
		m.index.Remove(propertyID, res.ID)
		return nil, err
	}

	m.events.Publish(engine.Event{
		Kind:          engine.EventReservationConfirmed,
		PropertyID:    propertyID,
		UserID:        requesterID,
		ReservationID: res.ID,
	})
	return res, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel voids a PENDING or CONFIRMED reservation, credits the debited
// nights back to the same bucket, and frees the calendar space. Allowed
// for the requester or a master member of the property.
func (m *Manager) Cancel(ctx context.Context, id engine.ReservationID, byUserID engine.UserID) error {
	res, err := m.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}

	release, err := m.locks.acquire(ctx, res.PropertyID)
	if err != nil {
		return err
	}
	defer release()

	// Re-read under the lock; a racing cancel may have won.
	res, err = m.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if !res.Cancellable() {
		return engine.ErrNotCancellable
	}
	if err := m.authorizeCancel(ctx, res, byUserID); err != nil {
		return err
	}

	// The credit carries an idempotency key derived from the reservation
	// ID, so a cancelled reservation can never be double-credited even if
	// the status check above were bypassed.
	if err := m.store.CancelReservation(ctx, id, engine.CreditTransaction(res), time.Now().UTC()); err != nil {
		return err
	}
	m.index.Remove(res.PropertyID, id)

	m.events.Publish(engine.Event{
		Kind:          engine.EventReservationCancelled,
		PropertyID:    res.PropertyID,
		UserID:        byUserID,
		ReservationID: id,
	})
	return nil
}

func (m *Manager) authorizeCancel(ctx context.Context, res *engine.Reservation, byUserID engine.UserID) error {
	if byUserID == res.RequesterID {
		return nil
	}
	member, err := m.store.GetMembership(ctx, engine.MembershipKey{PropertyID: res.PropertyID, UserID: byUserID})
	if err != nil || !member.IsMaster() {
		return engine.ErrNotCancellable
	}
	return nil
}

// =============================================================================
// READ SIDE
// =============================================================================

// List returns the reservations of a property overlapping [from, to),
// for calendar rendering. The rendering layer is a pure consumer; no
// business rule lives outside this package.
func (m *Manager) List(ctx context.Context, propertyID engine.PropertyID, from, to engine.TimePoint) ([]*engine.Reservation, error) {
	return m.store.ListReservations(ctx, propertyID, from, to)
}

// AvailableNights returns the remaining entitlement of a member's year
// bucket, for balance display.
func (m *Manager) AvailableNights(ctx context.Context, propertyID engine.PropertyID, userID engine.UserID, year int) (engine.Nights, error) {
	key := engine.MembershipKey{PropertyID: propertyID, UserID: userID}
	if _, err := m.store.GetMembership(ctx, key); err != nil {
		return engine.Nights{}, err
	}
	return m.ledger.AvailableNights(ctx, key, year, m.now())
}

// History returns a membership's full ledger history, oldest first.
func (m *Manager) History(ctx context.Context, propertyID engine.PropertyID, userID engine.UserID) ([]engine.Transaction, error) {
	key := engine.MembershipKey{PropertyID: propertyID, UserID: userID}
	if _, err := m.store.GetMembership(ctx, key); err != nil {
		return nil, err
	}
	return m.ledger.History(ctx, key)
}
