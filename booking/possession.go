/*
possession.go - Check-in/check-out possession state machine

PURPOSE:
  Gates the physical handoff of the property for a confirmed reservation.
  The possession lifecycle is AWAITING_CHECKIN -> CHECKED_IN -> COMPLETED,
  derived from which checklist records exist:

    no records          AWAITING_CHECKIN
    checkin record      CHECKED_IN
    checkout record     COMPLETED (reservation status follows)

CHECKLIST RULES:
  - Check-in requires a confirmed reservation, the requester as caller,
    and a non-empty property inventory. A property with zero inventory
    items cannot be checked into - a deliberate block, not a default-pass.
  - Every inventory item must be reported; reported items must be a
    subset of current inventory.
  - A free-text note is mandatory whenever any item is not OK.
  - Records are immutable; duplicate submission fails AlreadySubmitted.
  - Checkout compares conditions against check-in: an item newly DAMAGED
    or MISSING produces exactly one penalty enumerating the mismatches.

CONCURRENCY:
  Checklist submission mutates only per-reservation state, so exclusion
  is keyed by reservation, not property-wide.

SEE ALSO:
  - engine/checklist.go: Record and condition types
  - penalty.go: Regression penalties land in the register
*/
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coown/staybook/engine"
)

// PossessionState is the derived handoff state of a reservation.
type PossessionState string

const (
	PossessionAwaitingCheckin PossessionState = "awaiting_checkin"
	PossessionCheckedIn       PossessionState = "checked_in"
	PossessionCompleted       PossessionState = "completed"
)

// =============================================================================
// POSSESSION SERVICE
// =============================================================================

// Possession drives the check-in/check-out ritual for reservations.
type Possession struct {
	store  engine.Store
	reg    *Register
	events *engine.Dispatcher
	locks  *keyedLocks[engine.ReservationID]
}

func NewPossession(store engine.Store, reg *Register, events *engine.Dispatcher) *Possession {
	if events == nil {
		events = engine.NewDispatcher()
	}
	return &Possession{
		store:  store,
		reg:    reg,
		events: events,
		locks:  newKeyedLocks[engine.ReservationID](),
	}
}

// State returns the derived possession state of a reservation.
func (p *Possession) State(ctx context.Context, id engine.ReservationID) (PossessionState, error) {
	if record, err := p.store.GetChecklist(ctx, id, engine.PhaseCheckout); err != nil {
		return "", err
	} else if record != nil {
		return PossessionCompleted, nil
	}
	if record, err := p.store.GetChecklist(ctx, id, engine.PhaseCheckin); err != nil {
		return "", err
	} else if record != nil {
		return PossessionCheckedIn, nil
	}
	return PossessionAwaitingCheckin, nil
}

// =============================================================================
// CHECK-IN
// =============================================================================

// CanCheckin reports whether check-in is currently allowed. A nil error
// means yes; otherwise the error names the blocking condition.
func (p *Possession) CanCheckin(ctx context.Context, id engine.ReservationID, caller engine.UserID) error {
	res, err := p.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	_, err = p.validateCheckin(ctx, res, caller)
	return err
}

func (p *Possession) validateCheckin(ctx context.Context, res *engine.Reservation, caller engine.UserID) ([]engine.ItemID, error) {
	if res.Status != engine.StatusConfirmed {
		return nil, engine.ErrPossessionState
	}
	if caller != res.RequesterID {
		return nil, engine.ErrNotAuthorized
	}
	existing, err := p.store.GetChecklist(ctx, res.ID, engine.PhaseCheckin)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, engine.ErrAlreadySubmitted
	}
	inventory, err := p.store.ListInventory(ctx, res.PropertyID)
	if err != nil {
		return nil, err
	}
	if len(inventory) == 0 {
		return nil, engine.ErrInventoryEmpty
	}
	return inventory, nil
}

// SubmitCheckin records the arrival checklist and moves possession to
// CHECKED_IN. The reservation status is unchanged.
func (p *Possession) SubmitCheckin(ctx context.Context, id engine.ReservationID, caller engine.UserID, items []engine.ItemReport, note string) (*engine.ChecklistRecord, error) {
	release, err := p.locks.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := p.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	inventory, err := p.validateCheckin(ctx, res, caller)
	if err != nil {
		return nil, err
	}
	if err := validateReports(items, note, inventory); err != nil {
		return nil, err
	}

	record := &engine.ChecklistRecord{
		ID:            engine.ChecklistID(uuid.NewString()),
		ReservationID: id,
		Phase:         engine.PhaseCheckin,
		Items:         items,
		Note:          note,
		SubmittedBy:   caller,
		SubmittedAt:   time.Now().UTC(),
	}
	if err := p.store.SaveChecklist(ctx, record); err != nil {
		return nil, err
	}

	p.events.Publish(engine.Event{
		Kind:          engine.EventChecklistSubmitted,
		PropertyID:    res.PropertyID,
		UserID:        caller,
		ReservationID: id,
		ChecklistID:   record.ID,
	})
	return record, nil
}

// =============================================================================
// CHECK-OUT
// =============================================================================

// CanCheckout reports whether check-out is currently allowed.
func (p *Possession) CanCheckout(ctx context.Context, id engine.ReservationID, caller engine.UserID) error {
	res, err := p.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	_, _, err = p.validateCheckout(ctx, res, caller)
	return err
}

func (p *Possession) validateCheckout(ctx context.Context, res *engine.Reservation, caller engine.UserID) (*engine.ChecklistRecord, []engine.ItemID, error) {
	if res.Status != engine.StatusConfirmed {
		return nil, nil, engine.ErrPossessionState
	}
	if caller != res.RequesterID {
		return nil, nil, engine.ErrNotAuthorized
	}
	checkin, err := p.store.GetChecklist(ctx, res.ID, engine.PhaseCheckin)
	if err != nil {
		return nil, nil, err
	}
	if checkin == nil {
		// Checkout before checkin.
		return nil, nil, engine.ErrPossessionState
	}
	checkout, err := p.store.GetChecklist(ctx, res.ID, engine.PhaseCheckout)
	if err != nil {
		return nil, nil, err
	}
	if checkout != nil {
		return nil, nil, engine.ErrAlreadySubmitted
	}
	inventory, err := p.store.ListInventory(ctx, res.PropertyID)
	if err != nil {
		return nil, nil, err
	}
	return checkin, inventory, nil
}

// SubmitCheckout records the departure checklist, completes the
// reservation, and issues a penalty when any item regressed to DAMAGED
// or MISSING since check-in.
func (p *Possession) SubmitCheckout(ctx context.Context, id engine.ReservationID, caller engine.UserID, items []engine.ItemReport, note string) (*engine.ChecklistRecord, error) {
	release, err := p.locks.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := p.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	checkin, inventory, err := p.validateCheckout(ctx, res, caller)
	if err != nil {
		return nil, err
	}
	if err := validateReports(items, note, inventory); err != nil {
		return nil, err
	}

	record := &engine.ChecklistRecord{
		ID:            engine.ChecklistID(uuid.NewString()),
		ReservationID: id,
		Phase:         engine.PhaseCheckout,
		Items:         items,
		Note:          note,
		SubmittedBy:   caller,
		SubmittedAt:   time.Now().UTC(),
	}
	if err := p.store.SaveChecklist(ctx, record); err != nil {
		return nil, err
	}
	if err := p.store.CompleteReservation(ctx, id, record.SubmittedAt); err != nil {
		return nil, err
	}

	p.events.Publish(engine.Event{
		Kind:          engine.EventChecklistSubmitted,
		PropertyID:    res.PropertyID,
		UserID:        caller,
		ReservationID: id,
		ChecklistID:   record.ID,
	})

	if mismatches := regressions(checkin, record); len(mismatches) > 0 {
		_, err := p.reg.Issue(ctx, &engine.Penalty{
			PropertyID: res.PropertyID,
			UserID:     res.RequesterID,
			Reason:     engine.ReasonConditionRegression,
			Details:    mismatches,
			IssuedBy:   caller,
		})
		if err != nil {
			return nil, err
		}
	}
	return record, nil
}

// regressions enumerates items newly DAMAGED or MISSING relative to their
// check-in condition.
func regressions(checkin, checkout *engine.ChecklistRecord) []string {
	var out []string
	for _, item := range checkout.Items {
		if item.Condition != engine.ConditionDamaged && item.Condition != engine.ConditionMissing {
			continue
		}
		before := checkin.ConditionOf(item.ItemID)
		if item.Condition.Severity() > before.Severity() {
			out = append(out, fmt.Sprintf("item %s: %s at checkin, %s at checkout", item.ItemID, before, item.Condition))
		}
	}
	return out
}

// validateReports checks a checklist submission against the current
// inventory: full coverage, no unknown items, no duplicates, and a note
// whenever any item is flagged.
func validateReports(items []engine.ItemReport, note string, inventory []engine.ItemID) error {
	known := make(map[engine.ItemID]bool, len(inventory))
	for _, id := range inventory {
		known[id] = true
	}

	var reasons []string
	seen := make(map[engine.ItemID]bool, len(items))
	flagged := false
	for _, item := range items {
		if !known[item.ItemID] {
			reasons = append(reasons, fmt.Sprintf("unknown item %s", item.ItemID))
		}
		if seen[item.ItemID] {
			reasons = append(reasons, fmt.Sprintf("duplicate item %s", item.ItemID))
		}
		seen[item.ItemID] = true
		if item.Condition.Flagged() {
			flagged = true
		}
	}
	for _, id := range inventory {
		if !seen[id] {
			reasons = append(reasons, fmt.Sprintf("missing report for item %s", id))
		}
	}
	if flagged && note == "" {
		reasons = append(reasons, "note required when any item is not ok")
	}

	if len(reasons) > 0 {
		return &engine.ChecklistValidationError{Reasons: reasons}
	}
	return nil
}
