/*
manager_test.go - Reservation manager behavior

Covers the validation gates in order, the atomic commit, cancellation
semantics, and the per-property exclusion under concurrent requests.
Dates are pinned by injecting a fixed clock (today = 2025-10-01).
*/
package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coown/staybook/booking"
	"github.com/coown/staybook/engine"
	"github.com/coown/staybook/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testProperty = engine.PropertyID("chalet")

func fixedToday() engine.TimePoint {
	return engine.NewTimePoint(2025, time.October, 1)
}

func date(y int, m time.Month, d int) engine.TimePoint {
	return engine.NewTimePoint(y, m, d)
}

// newTestManager seeds a property with rules {min:1, max:15} and two
// members holding {current: 10, next: 20} nights each.
func newTestManager(t *testing.T) (*booking.Manager, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	require.NoError(t, mem.SaveRules(ctx, engine.PropertyRules{
		PropertyID:    testProperty,
		MinStayNights: 1,
		MaxStayNights: 15,
	}))
	for _, user := range []engine.UserID{"alice", "bruno"} {
		require.NoError(t, mem.SaveMembership(ctx, &engine.Membership{
			PropertyID:    testProperty,
			UserID:        user,
			Permission:    engine.PermissionCommon,
			FractionCount: 1,
		}))
		key := engine.MembershipKey{PropertyID: testProperty, UserID: user}
		require.NoError(t, mem.AppendTransaction(ctx, engine.GrantTransaction(key, 2025, 10, "seed")))
		require.NoError(t, mem.AppendTransaction(ctx, engine.GrantTransaction(key, 2026, 20, "seed")))
	}
	require.NoError(t, mem.SaveMembership(ctx, &engine.Membership{
		PropertyID:    testProperty,
		UserID:        "marta",
		Permission:    engine.PermissionMaster,
		FractionCount: 1,
	}))

	mgr, err := booking.NewManager(ctx, mem, engine.NewDispatcher(), fixedToday)
	require.NoError(t, err)
	return mgr, mem
}

func balance(t *testing.T, mgr *booking.Manager, user engine.UserID, year int) engine.Nights {
	t.Helper()
	n, err := mgr.AvailableNights(context.Background(), testProperty, user, year)
	require.NoError(t, err)
	return n
}

// =============================================================================
// BOOKING - Happy paths
// =============================================================================

func TestRequest_CurrentYearStay_DebitsCurrentBucket(t *testing.T) {
	// GIVEN: Balance {current: 10, next: 20}
	// WHEN: Booking Oct 10 -> Oct 15 (5 nights, current year)
	// THEN: CONFIRMED, current bucket drops to 5, next untouched

	mgr, _ := newTestManager(t)
	ctx := context.Background()

	res, err := mgr.Request(ctx, testProperty, "alice", date(2025, time.October, 10), date(2025, time.October, 15), 2)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusConfirmed, res.Status)
	assert.Equal(t, 2025, res.DebitYear)
	assert.Equal(t, 5, res.NightsCharged)
	assert.True(t, balance(t, mgr, "alice", 2025).Equal(engine.NightsOf(5)))
	assert.True(t, balance(t, mgr, "alice", 2026).Equal(engine.NightsOf(20)))
}

func TestRequest_NextYearStay_DebitsNextBucket(t *testing.T) {
	// WHEN: Booking Feb 10 -> Feb 18 next year (8 nights)
	// THEN: Next-year bucket drops to 12, current unchanged at 10

	mgr, _ := newTestManager(t)
	ctx := context.Background()

	res, err := mgr.Request(ctx, testProperty, "alice", date(2026, time.February, 10), date(2026, time.February, 18), 1)
	require.NoError(t, err)

	assert.Equal(t, 2026, res.DebitYear)
	assert.Equal(t, 8, res.NightsCharged)
	assert.True(t, balance(t, mgr, "alice", 2026).Equal(engine.NightsOf(12)))
	assert.True(t, balance(t, mgr, "alice", 2025).Equal(engine.NightsOf(10)))
}

func TestRequest_CrossYearStay_ChargesStartYearOnly(t *testing.T) {
	// A Dec 29 -> Jan 3 stay charges all 5 nights to the start year's
	// bucket; the charge is never split.

	mgr, _ := newTestManager(t)
	ctx := context.Background()

	res, err := mgr.Request(ctx, testProperty, "alice", date(2025, time.December, 29), date(2026, time.January, 3), 1)
	require.NoError(t, err)

	assert.Equal(t, 2025, res.DebitYear)
	assert.True(t, balance(t, mgr, "alice", 2025).Equal(engine.NightsOf(5)))
	assert.True(t, balance(t, mgr, "alice", 2026).Equal(engine.NightsOf(20)))
}

func TestRequest_BackToBackStays_BothSucceed(t *testing.T) {
	// A stay ending on date D and another starting on date D coexist.

	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Request(ctx, testProperty, "alice", date(2025, time.October, 10), date(2025, time.October, 15), 1)
	require.NoError(t, err)
	_, err = mgr.Request(ctx, testProperty, "bruno", date(2025, time.October, 15), date(2025, time.October, 18), 1)
	require.NoError(t, err)
}

// =============================================================================
// BOOKING - Validation gates
// =============================================================================

func TestRequest_PastStartDate_Rejected(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Request(context.Background(), testProperty, "alice", date(2025, time.September, 30), date(2025, time.October, 2), 1)
	assert.ErrorIs(t, err, engine.ErrPastDate)
}

func TestRequest_StartingToday_Allowed(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Request(context.Background(), testProperty, "alice", fixedToday(), fixedToday().AddDays(2), 1)
	assert.NoError(t, err)
}

func TestRequest_StayLengthBounds(t *testing.T) {
	// nights == max succeeds; nights == max+1 fails StayLengthError.
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Request(ctx, testProperty, "bruno", date(2026, time.March, 1), date(2026, time.March, 16), 1)
	require.NoError(t, err, "15 nights equals maxStayNights and must pass")

	_, err = mgr.Request(ctx, testProperty, "alice", date(2026, time.April, 1), date(2026, time.April, 17), 1)
	assert.ErrorIs(t, err, engine.ErrStayLength)
}

func TestRequest_StayIntoThirdYear_Rejected(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Request(context.Background(), testProperty, "alice", date(2026, time.December, 30), date(2027, time.January, 2), 1)
	assert.ErrorIs(t, err, engine.ErrYearOutOfRange)
}

func TestRequest_ActivePenalty_Blocks(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Register().Issue(ctx, &engine.Penalty{
		PropertyID: testProperty,
		UserID:     "alice",
		Reason:     engine.ReasonManual,
		IssuedBy:   "marta",
	})
	require.NoError(t, err)

	_, err = mgr.Request(ctx, testProperty, "alice", date(2025, time.October, 10), date(2025, time.October, 12), 1)
	assert.ErrorIs(t, err, engine.ErrPenaltyBlocked)
}

func TestRequest_NonMember_Rejected(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Request(context.Background(), testProperty, "stranger", date(2025, time.October, 10), date(2025, time.October, 12), 1)
	assert.ErrorIs(t, err, engine.ErrMembershipNotFound)
}

func TestRequest_OverlappingStay_RejectedWithoutSideEffects(t *testing.T) {
	// GIVEN: Alice holds Oct 10-15
	// WHEN: Bruno requests Oct 12-14
	// THEN: DateConflictError naming the interval; Bruno's ledger untouched

	mgr, _ := newTestManager(t)
	ctx := context.Background()

	first, err := mgr.Request(ctx, testProperty, "alice", date(2025, time.October, 10), date(2025, time.October, 15), 1)
	require.NoError(t, err)

	_, err = mgr.Request(ctx, testProperty, "bruno", date(2025, time.October, 12), date(2025, time.October, 14), 1)
	require.ErrorIs(t, err, engine.ErrDateConflict)

	var conflict *engine.DateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.ReservationID)

	assert.True(t, balance(t, mgr, "bruno", 2025).Equal(engine.NightsOf(10)))
}

func TestRequest_InsufficientBalance_NoMutation(t *testing.T) {
	// 11 nights against a 10-night bucket: rejected, nothing changes,
	// and the freed range stays bookable.

	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Request(ctx, testProperty, "alice", date(2025, time.October, 10), date(2025, time.October, 21), 1)
	require.ErrorIs(t, err, engine.ErrInsufficientBalance)

	var detail *engine.InsufficientBalanceError
	require.ErrorAs(t, err, &detail)
	assert.True(t, detail.Available.Equal(engine.NightsOf(10)))
	assert.True(t, detail.Requested.Equal(engine.NightsOf(11)))

	assert.True(t, balance(t, mgr, "alice", 2025).Equal(engine.NightsOf(10)))
	_, err = mgr.Request(ctx, testProperty, "bruno", date(2025, time.October, 10), date(2025, time.October, 12), 1)
	assert.NoError(t, err, "rejected request must leave the range free")
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancel_CreditsLedgerAndFreesRange(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	res, err := mgr.Request(ctx, testProperty, "alice", date(2025, time.October, 10), date(2025, time.October, 15), 1)
	require.NoError(t, err)
	require.True(t, balance(t, mgr, "alice", 2025).Equal(engine.NightsOf(5)))

	require.NoError(t, mgr.Cancel(ctx, res.ID, "alice"))

	assert.True(t, balance(t, mgr, "alice", 2025).Equal(engine.NightsOf(10)), "credit must restore balance exactly")
	_, err = mgr.Request(ctx, testProperty, "bruno", date(2025, time.October, 12), date(2025, time.October, 14), 1)
	assert.NoError(t, err, "cancelled range must be bookable again")
}

func TestCancel_AlreadyCancelled_NoDoubleCredit(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	res, err := mgr.Request(ctx, testProperty, "alice", date(2025, time.October, 10), date(2025, time.October, 15), 1)
	require.NoError(t, err)
	require.NoError(t, mgr.Cancel(ctx, res.ID, "alice"))

	err = mgr.Cancel(ctx, res.ID, "alice")
	assert.ErrorIs(t, err, engine.ErrNotCancellable)
	assert.True(t, balance(t, mgr, "alice", 2025).Equal(engine.NightsOf(10)), "second cancel must not credit again")
}

func TestCancel_MasterMayCancelOthersStay(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	res, err := mgr.Request(ctx, testProperty, "alice", date(2025, time.October, 10), date(2025, time.October, 15), 1)
	require.NoError(t, err)

	assert.ErrorIs(t, mgr.Cancel(ctx, res.ID, "bruno"), engine.ErrNotCancellable, "common member cannot cancel another's stay")
	assert.NoError(t, mgr.Cancel(ctx, res.ID, "marta"), "master may cancel any stay")
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestRequest_ConcurrentOverlappingRequests_ExactlyOneWins(t *testing.T) {
	// Two callers race for overlapping ranges on the same property;
	// exactly one books, the other observes DateConflictError.

	mgr, _ := newTestManager(t)
	ctx := context.Background()

	users := []engine.UserID{"alice", "bruno"}
	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, user := range users {
		wg.Add(1)
		go func(i int, user engine.UserID) {
			defer wg.Done()
			_, errs[i] = mgr.Request(ctx, testProperty, user, date(2025, time.November, 3), date(2025, time.November, 8), 1)
		}(i, user)
	}
	wg.Wait()

	winners, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case assert.ErrorIs(t, err, engine.ErrDateConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, winners, "exactly one request must win")
	assert.Equal(t, 1, conflicts, "exactly one request must lose with DateConflictError")
}

func TestRequest_ExpiredContext_FailsWithCancelled(t *testing.T) {
	mgr, _ := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mgr.Request(ctx, testProperty, "alice", date(2025, time.October, 10), date(2025, time.October, 12), 1)
	assert.ErrorIs(t, err, engine.ErrCancelled)
}

// =============================================================================
// READ SIDE
// =============================================================================

func TestList_ReturnsCalendarWindow(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Request(ctx, testProperty, "alice", date(2025, time.October, 10), date(2025, time.October, 15), 1)
	require.NoError(t, err)
	_, err = mgr.Request(ctx, testProperty, "bruno", date(2025, time.November, 1), date(2025, time.November, 4), 1)
	require.NoError(t, err)

	october, err := mgr.List(ctx, testProperty, date(2025, time.October, 1), date(2025, time.November, 1))
	require.NoError(t, err)
	require.Len(t, october, 1)
	assert.Equal(t, engine.UserID("alice"), october[0].RequesterID)
}

func TestHistory_ShowsDebitsAndCredits(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	res, err := mgr.Request(ctx, testProperty, "alice", date(2025, time.October, 10), date(2025, time.October, 15), 1)
	require.NoError(t, err)
	require.NoError(t, mgr.Cancel(ctx, res.ID, "alice"))

	history, err := mgr.History(ctx, testProperty, "alice")
	require.NoError(t, err)

	types := make([]engine.TransactionType, 0, len(history))
	for _, tx := range history {
		types = append(types, tx.Type)
	}
	assert.Contains(t, types, engine.TxGrant)
	assert.Contains(t, types, engine.TxDebit)
	assert.Contains(t, types, engine.TxCredit)
}
