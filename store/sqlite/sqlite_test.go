/*
sqlite_test.go - SQLite store contract

Exercises the transactional guarantees the memory store cannot prove:
atomic commit rollback on a duplicate idempotency key, the in-database
overlap backstop, and the schema-level uniqueness on checklists. Each
test gets a fresh database file under t.TempDir().
*/
package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coown/staybook/engine"
	"github.com/coown/staybook/store/sqlite"
)

const testProperty = engine.PropertyID("chalet")

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "staybook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func date(y int, m time.Month, d int) engine.TimePoint {
	return engine.NewTimePoint(y, m, d)
}

func confirmedStay(id engine.ReservationID, user engine.UserID, start, end engine.TimePoint) *engine.Reservation {
	r, _ := engine.NewDateRange(start, end)
	return &engine.Reservation{
		ID:            id,
		PropertyID:    testProperty,
		RequesterID:   user,
		Range:         r,
		Status:        engine.StatusConfirmed,
		DebitYear:     start.Year(),
		NightsCharged: r.Nights(),
		GuestCount:    1,
		CreatedAt:     time.Now().UTC(),
	}
}

// =============================================================================
// LEDGER
// =============================================================================

func TestAppendTransaction_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := engine.MembershipKey{PropertyID: testProperty, UserID: "alice"}

	require.NoError(t, s.AppendTransaction(ctx, engine.GrantTransaction(key, 2025, 10, "annual allocation")))
	require.NoError(t, s.AppendTransaction(ctx, engine.GrantTransaction(key, 2026, 20, "annual allocation")))

	txs, err := s.LoadTransactions(ctx, key, 2025)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, engine.TxGrant, txs[0].Type)
	assert.True(t, txs[0].Delta.Equal(engine.NightsOf(10)))

	all, err := s.LoadAllTransactions(ctx, key)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAppendTransaction_DuplicateIdempotencyKey_Rejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := confirmedStay("res-1", "alice", date(2025, time.October, 10), date(2025, time.October, 15))
	debit := engine.DebitTransaction(res)

	require.NoError(t, s.AppendTransaction(ctx, debit))

	replay := engine.DebitTransaction(res)
	err := s.AppendTransaction(ctx, replay)
	assert.ErrorIs(t, err, engine.ErrDuplicateIdempotencyKey)
}

// =============================================================================
// RESERVATION COMMIT
// =============================================================================

func TestCommitReservation_PersistsStayAndDebitTogether(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := confirmedStay("res-1", "alice", date(2025, time.October, 10), date(2025, time.October, 15))
	require.NoError(t, s.CommitReservation(ctx, res, engine.DebitTransaction(res)))

	stored, err := s.GetReservation(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusConfirmed, stored.Status)
	assert.Equal(t, 5, stored.NightsCharged)
	assert.Equal(t, "[2025-10-10, 2025-10-15)", stored.Range.String())

	txs, err := s.LoadTransactions(ctx, engine.MembershipKey{PropertyID: testProperty, UserID: "alice"}, 2025)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, engine.TxDebit, txs[0].Type)
}

func TestCommitReservation_DuplicateDebit_RollsBackReservation(t *testing.T) {
	// GIVEN: A debit with the same idempotency key already exists
	// WHEN: A commit carrying that key runs
	// THEN: The whole transaction rolls back; no reservation row remains

	s := newTestStore(t)
	ctx := context.Background()

	res := confirmedStay("res-1", "alice", date(2025, time.October, 10), date(2025, time.October, 15))
	require.NoError(t, s.AppendTransaction(ctx, engine.DebitTransaction(res)))

	err := s.CommitReservation(ctx, res, engine.DebitTransaction(res))
	require.ErrorIs(t, err, engine.ErrDuplicateIdempotencyKey)

	_, err = s.GetReservation(ctx, "res-1")
	assert.ErrorIs(t, err, engine.ErrReservationNotFound)
}

func TestCommitReservation_OverlapBackstop(t *testing.T) {
	// The store re-checks overlap inside its own transaction, independent
	// of any in-memory index the caller maintains.

	s := newTestStore(t)
	ctx := context.Background()

	first := confirmedStay("res-1", "alice", date(2025, time.October, 10), date(2025, time.October, 15))
	require.NoError(t, s.CommitReservation(ctx, first, engine.DebitTransaction(first)))

	second := confirmedStay("res-2", "bruno", date(2025, time.October, 12), date(2025, time.October, 14))
	err := s.CommitReservation(ctx, second, engine.DebitTransaction(second))
	require.ErrorIs(t, err, engine.ErrDateConflict)

	var conflict *engine.DateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, engine.ReservationID("res-1"), conflict.ReservationID)
}

func TestCommitReservation_BackToBackStaysAllowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := confirmedStay("res-1", "alice", date(2025, time.October, 10), date(2025, time.October, 15))
	require.NoError(t, s.CommitReservation(ctx, first, engine.DebitTransaction(first)))

	second := confirmedStay("res-2", "bruno", date(2025, time.October, 15), date(2025, time.October, 18))
	assert.NoError(t, s.CommitReservation(ctx, second, engine.DebitTransaction(second)))
}

func TestCancelReservation_CreditsAndFreesRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := confirmedStay("res-1", "alice", date(2025, time.October, 10), date(2025, time.October, 15))
	require.NoError(t, s.CommitReservation(ctx, res, engine.DebitTransaction(res)))
	require.NoError(t, s.CancelReservation(ctx, "res-1", engine.CreditTransaction(res), time.Now().UTC()))

	stored, err := s.GetReservation(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)

	// Cancelled rows no longer occupy; the overlap backstop ignores them.
	replacement := confirmedStay("res-2", "bruno", date(2025, time.October, 12), date(2025, time.October, 14))
	assert.NoError(t, s.CommitReservation(ctx, replacement, engine.DebitTransaction(replacement)))
}

func TestCancelReservation_TerminalStatus_Rejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := confirmedStay("res-1", "alice", date(2025, time.October, 10), date(2025, time.October, 15))
	require.NoError(t, s.CommitReservation(ctx, res, engine.DebitTransaction(res)))
	require.NoError(t, s.CancelReservation(ctx, "res-1", engine.CreditTransaction(res), time.Now().UTC()))

	err := s.CancelReservation(ctx, "res-1", engine.CreditTransaction(res), time.Now().UTC())
	assert.ErrorIs(t, err, engine.ErrNotCancellable)

	txs, err := s.LoadAllTransactions(ctx, engine.MembershipKey{PropertyID: testProperty, UserID: "alice"})
	require.NoError(t, err)
	assert.Len(t, txs, 2, "debit and exactly one credit")
}

func TestCompleteReservation_OnlyFromConfirmed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := confirmedStay("res-1", "alice", date(2025, time.October, 10), date(2025, time.October, 15))
	require.NoError(t, s.CommitReservation(ctx, res, engine.DebitTransaction(res)))
	require.NoError(t, s.CompleteReservation(ctx, "res-1", time.Now().UTC()))

	stored, err := s.GetReservation(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	assert.Error(t, s.CompleteReservation(ctx, "res-1", time.Now().UTC()))
	assert.ErrorIs(t, s.CompleteReservation(ctx, "missing", time.Now().UTC()), engine.ErrReservationNotFound)
}

func TestListReservations_WindowFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	october := confirmedStay("res-1", "alice", date(2025, time.October, 10), date(2025, time.October, 15))
	require.NoError(t, s.CommitReservation(ctx, october, engine.DebitTransaction(october)))
	november := confirmedStay("res-2", "bruno", date(2025, time.November, 1), date(2025, time.November, 4))
	require.NoError(t, s.CommitReservation(ctx, november, engine.DebitTransaction(november)))

	window, err := s.ListReservations(ctx, testProperty, date(2025, time.October, 1), date(2025, time.November, 1))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, engine.ReservationID("res-1"), window[0].ID)

	occupying, err := s.ListOccupying(ctx)
	require.NoError(t, err)
	assert.Len(t, occupying, 2)
}

// =============================================================================
// CHECKLISTS
// =============================================================================

func TestSaveChecklist_UniquePerPhase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := confirmedStay("res-1", "alice", date(2025, time.October, 10), date(2025, time.October, 15))
	require.NoError(t, s.CommitReservation(ctx, res, engine.DebitTransaction(res)))

	record := &engine.ChecklistRecord{
		ID:            "cl-1",
		ReservationID: "res-1",
		Phase:         engine.PhaseCheckin,
		Items:         []engine.ItemReport{{ItemID: "sofa", Condition: engine.ConditionOK}},
		SubmittedBy:   "alice",
		SubmittedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.SaveChecklist(ctx, record))

	dup := *record
	dup.ID = "cl-2"
	assert.ErrorIs(t, s.SaveChecklist(ctx, &dup), engine.ErrAlreadySubmitted)

	stored, err := s.GetChecklist(ctx, "res-1", engine.PhaseCheckin)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, engine.ConditionOK, stored.Items[0].Condition)

	absent, err := s.GetChecklist(ctx, "res-1", engine.PhaseCheckout)
	require.NoError(t, err)
	assert.Nil(t, absent)
}

// =============================================================================
// PENALTIES, RULES, MEMBERSHIPS, INVENTORY
// =============================================================================

func TestPenalty_LifecycleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &engine.Penalty{
		ID:         "pen-1",
		PropertyID: testProperty,
		UserID:     "alice",
		Reason:     engine.ReasonConditionRegression,
		Details:    []string{"item kayak: ok at checkin, damaged at checkout"},
		Active:     true,
		CreatedAt:  time.Now().UTC(),
		IssuedBy:   "alice",
	}
	require.NoError(t, s.SavePenalty(ctx, p))

	active, err := s.ActivePenalties(ctx, testProperty, "alice")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, p.Details, active[0].Details)

	require.NoError(t, s.DeactivatePenalty(ctx, "pen-1"))

	active, err = s.ActivePenalties(ctx, testProperty, "alice")
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.ListPenalties(ctx, testProperty)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)

	assert.ErrorIs(t, s.DeactivatePenalty(ctx, "missing"), engine.ErrPenaltyNotFound)
}

func TestRules_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rules := engine.PropertyRules{PropertyID: testProperty, MinStayNights: 2, MaxStayNights: 14}
	require.NoError(t, s.SaveRules(ctx, rules))

	got, err := s.GetRules(ctx, testProperty)
	require.NoError(t, err)
	assert.Equal(t, rules, got)

	rules.MaxStayNights = 7
	require.NoError(t, s.SaveRules(ctx, rules))
	got, err = s.GetRules(ctx, testProperty)
	require.NoError(t, err)
	assert.Equal(t, 7, got.MaxStayNights)

	_, err = s.GetRules(ctx, "unknown")
	assert.ErrorIs(t, err, engine.ErrPropertyNotFound)
}

func TestMembership_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMembership(ctx, &engine.Membership{
		PropertyID:    testProperty,
		UserID:        "alice",
		Permission:    engine.PermissionMaster,
		FractionCount: 2,
	}))

	got, err := s.GetMembership(ctx, engine.MembershipKey{PropertyID: testProperty, UserID: "alice"})
	require.NoError(t, err)
	assert.True(t, got.IsMaster())
	assert.Equal(t, 2, got.FractionCount)

	_, err = s.GetMembership(ctx, engine.MembershipKey{PropertyID: testProperty, UserID: "ghost"})
	assert.ErrorIs(t, err, engine.ErrMembershipNotFound)

	members, err := s.ListMemberships(ctx, testProperty)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestInventory_SaveReplacesSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveInventory(ctx, testProperty, []engine.ItemID{"sofa", "tv"}))
	require.NoError(t, s.SaveInventory(ctx, testProperty, []engine.ItemID{"sofa", "kayak"}))

	items, err := s.ListInventory(ctx, testProperty)
	require.NoError(t, err)
	assert.ElementsMatch(t, []engine.ItemID{"sofa", "kayak"}, items)
}
