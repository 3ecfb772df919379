package engine

import "time"

// =============================================================================
// CHECKLIST - Inventory condition records for the possession handoff
// =============================================================================

type ChecklistPhase string

const (
	PhaseCheckin  ChecklistPhase = "checkin"
	PhaseCheckout ChecklistPhase = "checkout"
)

// ItemCondition is the reported state of one inventory item.
type ItemCondition string

const (
	ConditionOK      ItemCondition = "ok"
	ConditionWorn    ItemCondition = "worn"
	ConditionDamaged ItemCondition = "damaged"
	ConditionMissing ItemCondition = "missing"
)

// Flagged reports whether the condition requires an explanatory note.
func (c ItemCondition) Flagged() bool { return c != ConditionOK }

// Severity orders conditions from best to worst, for regression checks
// between checkin and checkout.
func (c ItemCondition) Severity() int {
	switch c {
	case ConditionOK:
		return 0
	case ConditionWorn:
		return 1
	case ConditionDamaged:
		return 2
	case ConditionMissing:
		return 3
	default:
		return 0
	}
}

// ItemReport is one line of a checklist submission.
type ItemReport struct {
	ItemID    ItemID
	Condition ItemCondition
}

// ChecklistRecord is the immutable snapshot submitted at one phase of a
// reservation's possession handoff. Created exactly once per phase;
// duplicate submissions fail with ErrAlreadySubmitted.
type ChecklistRecord struct {
	ID            ChecklistID
	ReservationID ReservationID
	Phase         ChecklistPhase
	Items         []ItemReport
	Note          string
	SubmittedBy   UserID
	SubmittedAt   time.Time
}

// ConditionOf returns the reported condition for an item, defaulting to
// OK when the item does not appear in the record.
func (r *ChecklistRecord) ConditionOf(id ItemID) ItemCondition {
	for _, item := range r.Items {
		if item.ItemID == id {
			return item.Condition
		}
	}
	return ConditionOK
}
