package engine

import "time"

// =============================================================================
// PENALTY - Misuse record gating booking eligibility
// =============================================================================

type PenaltyReason string

const (
	// ReasonConditionRegression is issued at checkout when an item is
	// newly damaged or missing relative to its checkin condition.
	ReasonConditionRegression PenaltyReason = "condition_regression"

	// ReasonMissedCheckin is issued when a confirmed stay was never
	// checked into.
	ReasonMissedCheckin PenaltyReason = "missed_checkin"

	// ReasonManual is issued by a master member outside the automatic
	// paths.
	ReasonManual PenaltyReason = "manual"
)

// Penalty blocks a member from booking while active. Issued by the
// possession state machine or by a master member; consulted by the
// reservation manager as an eligibility gate.
type Penalty struct {
	ID         PenaltyID
	PropertyID PropertyID
	UserID     UserID
	Reason     PenaltyReason

	// Details enumerates the specific findings, e.g. per-item condition
	// mismatches at checkout.
	Details []string

	Active    bool
	CreatedAt time.Time
	IssuedBy  UserID
}
