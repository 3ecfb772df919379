/*
ledger.go - Append-only entitlement ledger

PURPOSE:
  The Ledger is the source of truth for every membership's remaining
  entitlement nights. Grants, debits, and credits are recorded as
  immutable transactions; the balance of a year bucket is always computed
  by replaying its transactions - there is no separate balance field that
  can drift out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. Ever.
  2. TWO BUCKETS: Only the current year and the next year are modeled.
     A stay crossing into a third year is rejected before a transaction
     is written.
  3. NON-NEGATIVE: A debit is refused when it would push the bucket
     below zero.
  4. IDEMPOTENT: Same idempotency key = same transaction, no duplicates.

CORRECTIONS:
  Cancelling a reservation never erases its debit. A credit transaction
  with the opposite sign is appended; both remain in the ledger and the
  net effect restores the prior balance exactly.

DEBIT YEAR RULE:
  The reservation's start date picks the bucket, even when the stay
  crosses a year boundary. A Dec 29 -> Jan 5 stay charges all nights to
  December's year. The charge is never split across buckets.

SEE ALSO:
  - store.go: LedgerStore persistence contract
  - booking/manager.go: Builds debit/credit transactions at commit time
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

type TransactionType string

const (
	// TxGrant seeds or tops up a bucket (fraction allocation, rollover).
	TxGrant TransactionType = "grant"

	// TxDebit charges nights for a confirmed reservation.
	TxDebit TransactionType = "debit"

	// TxCredit reverses a debit on cancellation.
	TxCredit TransactionType = "credit"
)

// Transaction records one balance change for a membership's year bucket.
type Transaction struct {
	ID         TransactionID
	PropertyID PropertyID
	UserID     UserID

	// Year is the calendar-year bucket the delta applies to.
	Year int

	// Delta is negative for debits, positive for grants and credits.
	Delta Nights

	Type TransactionType

	// ReferenceID ties the transaction to its reservation, if any.
	ReferenceID string

	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

func (t Transaction) Key() MembershipKey {
	return MembershipKey{PropertyID: t.PropertyID, UserID: t.UserID}
}

// DebitTransaction builds the charge for a reservation commit.
func DebitTransaction(res *Reservation) Transaction {
	return Transaction{
		ID:             TransactionID(uuid.NewString()),
		PropertyID:     res.PropertyID,
		UserID:         res.RequesterID,
		Year:           res.DebitYear,
		Delta:          NightsOf(res.NightsCharged).Neg(),
		Type:           TxDebit,
		ReferenceID:    string(res.ID),
		Reason:         fmt.Sprintf("reservation %s", res.Range),
		IdempotencyKey: fmt.Sprintf("debit:%s", res.ID),
		CreatedAt:      time.Now().UTC(),
	}
}

// CreditTransaction builds the reversal applied on cancellation. It
// restores the same nights to the same bucket the debit charged.
func CreditTransaction(res *Reservation) Transaction {
	return Transaction{
		ID:             TransactionID(uuid.NewString()),
		PropertyID:     res.PropertyID,
		UserID:         res.RequesterID,
		Year:           res.DebitYear,
		Delta:          NightsOf(res.NightsCharged),
		Type:           TxCredit,
		ReferenceID:    string(res.ID),
		Reason:         fmt.Sprintf("cancellation of %s", res.ID),
		IdempotencyKey: fmt.Sprintf("credit:%s", res.ID),
		CreatedAt:      time.Now().UTC(),
	}
}

// AllocationTransaction builds the annual fraction grant for one bucket.
// Its idempotency key is deterministic per (membership, year), so the
// allocator can re-run freely: a second attempt for the same bucket is
// rejected by the store as a duplicate, never double-granted.
func AllocationTransaction(key MembershipKey, year, nights int) Transaction {
	return Transaction{
		ID:             TransactionID(uuid.NewString()),
		PropertyID:     key.PropertyID,
		UserID:         key.UserID,
		Year:           year,
		Delta:          NightsOf(nights),
		Type:           TxGrant,
		Reason:         fmt.Sprintf("annual fraction allocation %d", year),
		IdempotencyKey: fmt.Sprintf("alloc:%s:%d", key, year),
		CreatedAt:      time.Now().UTC(),
	}
}

// GrantTransaction seeds a bucket with entitlement nights.
func GrantTransaction(key MembershipKey, year, nights int, reason string) Transaction {
	return Transaction{
		ID:             TransactionID(uuid.NewString()),
		PropertyID:     key.PropertyID,
		UserID:         key.UserID,
		Year:           year,
		Delta:          NightsOf(nights),
		Type:           TxGrant,
		Reason:         reason,
		IdempotencyKey: fmt.Sprintf("grant:%s:%d:%s", key, year, uuid.NewString()),
		CreatedAt:      time.Now().UTC(),
	}
}

// =============================================================================
// LEDGER - Balance computation over the store
// =============================================================================

// Ledger computes year-bucket balances by replaying transactions.
type Ledger struct {
	store LedgerStore
}

func NewLedger(store LedgerStore) *Ledger {
	return &Ledger{store: store}
}

// AvailableNights returns the remaining nights in a membership's bucket.
// The year must be a modeled bucket relative to today (current year or
// the next), otherwise YearOutOfRangeError is returned.
func (l *Ledger) AvailableNights(ctx context.Context, key MembershipKey, year int, today TimePoint) (Nights, error) {
	if !ModeledYear(year, today) {
		return Nights{}, &YearOutOfRangeError{Year: year, CurrentYear: today.Year()}
	}
	txs, err := l.store.LoadTransactions(ctx, key, year)
	if err != nil {
		return Nights{}, fmt.Errorf("failed to load ledger: %w", err)
	}
	balance := NightsOf(0)
	for _, tx := range txs {
		balance = balance.Add(tx.Delta)
	}
	return balance, nil
}

// Append writes a single transaction.
func (l *Ledger) Append(ctx context.Context, tx Transaction) error {
	return l.store.AppendTransaction(ctx, tx)
}

// History returns all transactions for a membership, both buckets,
// ordered by creation time.
func (l *Ledger) History(ctx context.Context, key MembershipKey) ([]Transaction, error) {
	return l.store.LoadAllTransactions(ctx, key)
}

// ModeledYear reports whether a calendar year falls into one of the two
// modeled buckets relative to today.
func ModeledYear(year int, today TimePoint) bool {
	return year == today.Year() || year == today.Year()+1
}
