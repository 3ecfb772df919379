/*
store.go - Persistence and collaborator contracts

PURPOSE:
  Defines the interfaces between the engine and its storage. The booking
  orchestrator talks only to these interfaces; implementations exist for
  SQLite (production) and in-memory (tests/dev).

ATOMICITY CONTRACT:
  CommitReservation and CancelReservation are the engine's two compound
  writes. Each must be all-or-nothing: a reservation row is never visible
  without its ledger debit, and a cancellation is never visible without
  its ledger credit. Implementations back this with a database
  transaction or an equivalent critical section.

BACKSTOP CHECKS:
  CommitReservation re-verifies the overlap invariant inside its
  transaction and returns ErrDateConflict on violation;
  CancelReservation refuses non-cancellable statuses with
  ErrNotCancellable. The manager performs the same checks first under the
  property lock - the store-level checks are a second line of defense,
  the same way the ledger's idempotency keys back up application checks.

COLLABORATOR CONTRACTS:
  RulesStore, MembershipStore, and InventoryStore are owned by external
  CRUD layers; the engine only reads them (plus seed writes for scenario
  loading).

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - engine/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Uses LedgerStore
  - booking/manager.go: Uses the atomic operations
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// LEDGER STORE - Append-only transaction persistence
// =============================================================================

// LedgerStore persists entitlement transactions.
// IMPORTANT: append-only. No Update, No Delete. Ever. Corrections are
// made via credit transactions.
type LedgerStore interface {
	// AppendTransaction persists a transaction. Returns
	// ErrDuplicateIdempotencyKey if the key already exists.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// LoadTransactions returns all transactions for a membership's year
	// bucket, ordered by creation time.
	LoadTransactions(ctx context.Context, key MembershipKey, year int) ([]Transaction, error)

	// LoadAllTransactions returns every transaction for a membership.
	LoadAllTransactions(ctx context.Context, key MembershipKey) ([]Transaction, error)
}

// =============================================================================
// RESERVATION STORE
// =============================================================================

// ReservationStore persists reservations and provides the two compound
// atomic writes of the engine.
type ReservationStore interface {
	// CommitReservation atomically persists a confirmed reservation
	// together with its ledger debit.
	CommitReservation(ctx context.Context, res *Reservation, debit Transaction) error

	// CancelReservation atomically marks the reservation cancelled and
	// appends the ledger credit. Fails with ErrNotCancellable when the
	// stored status is terminal.
	CancelReservation(ctx context.Context, id ReservationID, credit Transaction, at time.Time) error

	// CompleteReservation marks a checked-out reservation completed.
	CompleteReservation(ctx context.Context, id ReservationID, at time.Time) error

	GetReservation(ctx context.Context, id ReservationID) (*Reservation, error)

	// ListReservations returns reservations for a property whose range
	// overlaps [from, to), any status, ordered by start date.
	ListReservations(ctx context.Context, propertyID PropertyID, from, to TimePoint) ([]*Reservation, error)

	// ListOccupying returns all CONFIRMED and COMPLETED reservations for
	// every property; used to rebuild the conflict index on startup.
	ListOccupying(ctx context.Context) ([]*Reservation, error)
}

// =============================================================================
// CHECKLIST STORE
// =============================================================================

type ChecklistStore interface {
	// SaveChecklist persists a record. Fails with ErrAlreadySubmitted
	// when a record for the same (reservation, phase) exists.
	SaveChecklist(ctx context.Context, record *ChecklistRecord) error

	// GetChecklist returns the record for a phase, or nil when absent.
	GetChecklist(ctx context.Context, reservationID ReservationID, phase ChecklistPhase) (*ChecklistRecord, error)

	ListChecklists(ctx context.Context, reservationID ReservationID) ([]*ChecklistRecord, error)
}

// =============================================================================
// PENALTY STORE
// =============================================================================

type PenaltyStore interface {
	SavePenalty(ctx context.Context, p *Penalty) error

	// ActivePenalties returns the active penalties for a (property, user).
	ActivePenalties(ctx context.Context, propertyID PropertyID, userID UserID) ([]*Penalty, error)

	ListPenalties(ctx context.Context, propertyID PropertyID) ([]*Penalty, error)

	// DeactivatePenalty clears the active flag.
	DeactivatePenalty(ctx context.Context, id PenaltyID) error
}

// =============================================================================
// EXTERNAL COLLABORATOR CONTRACTS
// =============================================================================

// RulesStore supplies per-property scheduling rules. Rules are owned by
// an external CRUD layer and read-only to the engine.
type RulesStore interface {
	GetRules(ctx context.Context, propertyID PropertyID) (PropertyRules, error)
	SaveRules(ctx context.Context, rules PropertyRules) error

	// ListProperties returns the rules of every known property; used by
	// the allocator to walk all memberships.
	ListProperties(ctx context.Context) ([]PropertyRules, error)
}

// MembershipStore supplies membership records by explicit key.
type MembershipStore interface {
	// GetMembership fails with ErrMembershipNotFound when no record
	// exists for the pair.
	GetMembership(ctx context.Context, key MembershipKey) (*Membership, error)
	ListMemberships(ctx context.Context, propertyID PropertyID) ([]*Membership, error)
	SaveMembership(ctx context.Context, m *Membership) error
}

// InventoryStore supplies the property's current inventory item IDs.
type InventoryStore interface {
	ListInventory(ctx context.Context, propertyID PropertyID) ([]ItemID, error)
	SaveInventory(ctx context.Context, propertyID PropertyID, items []ItemID) error
}

// Store aggregates every persistence concern the engine touches. The
// SQLite and memory stores implement all of it.
type Store interface {
	LedgerStore
	ReservationStore
	ChecklistStore
	PenaltyStore
	RulesStore
	MembershipStore
	InventoryStore
}
