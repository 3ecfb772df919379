/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Every validation failure is reported synchronously with its specific
  kind plus structured context - none are downgraded to generic errors.

ERROR CATEGORIES:
  1. Booking validation - date, stay length, year bucket, eligibility
  2. Commit failures - conflicts, balance shortfall, lost races
  3. Possession/checklist - state machine and submission violations
  4. Store errors - missing records, idempotency violations

USAGE:
  Callers branch with errors.Is():

    if errors.Is(err, engine.ErrDateConflict) {
        // range already reserved; show the conflicting interval
    }

  Structured types (DateConflictError, InsufficientBalanceError, ...)
  carry the context and Unwrap() to the sentinels.

SEE ALSO:
  - booking/manager.go: Produces the booking-side kinds
  - booking/possession.go: Produces the possession-side kinds
  - api/handlers.go: Maps kinds to HTTP statuses
*/
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPastDate is returned when a requested stay starts before today.
	ErrPastDate = errors.New("start date is in the past")

	// ErrStayLength is returned when the stay violates min/max night rules.
	ErrStayLength = errors.New("stay length outside property rules")

	// ErrYearOutOfRange is returned when a date resolves to a year bucket
	// the ledger does not model (only current year and next year exist).
	ErrYearOutOfRange = errors.New("year outside modeled buckets")

	// ErrPenaltyBlocked is returned when the requester has an active
	// penalty for the property.
	ErrPenaltyBlocked = errors.New("active penalty blocks booking")

	// ErrDateConflict is returned when the requested range overlaps a
	// confirmed reservation.
	ErrDateConflict = errors.New("date range already reserved")

	// ErrInsufficientBalance is returned when the debit-year bucket holds
	// fewer nights than requested.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotCancellable is returned when a reservation cannot be cancelled
	// in its current status or by this caller.
	ErrNotCancellable = errors.New("reservation not cancellable")

	// ErrNotAuthorized is returned when the caller lacks the membership
	// level an operation requires.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrAlreadySubmitted is returned on duplicate checklist submission
	// for the same phase.
	ErrAlreadySubmitted = errors.New("checklist already submitted")

	// ErrInventoryEmpty is returned when checking into a property with no
	// inventory items. A deliberate block, not a default-pass.
	ErrInventoryEmpty = errors.New("property has no inventory items")

	// ErrPossessionState is returned on out-of-order possession
	// transitions (checkout before checkin, checkin on a non-confirmed
	// reservation, wrong caller).
	ErrPossessionState = errors.New("invalid possession state")

	// ErrConcurrencyAborted is returned when a commit lost a race. No
	// partial debit or insert survives; the caller may retry.
	ErrConcurrencyAborted = errors.New("commit aborted by concurrent booking")

	// ErrCancelled is returned when the caller's context expired before
	// a commit attempt acquired the property lock.
	ErrCancelled = errors.New("operation cancelled")

	// ErrInvalidRange is returned when a date range is malformed.
	ErrInvalidRange = errors.New("invalid range: end not after start")

	// ErrMembershipNotFound is returned when no membership exists for a
	// (property, user) pair.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrReservationNotFound is returned for unknown reservation IDs.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrPropertyNotFound is returned for unknown property IDs.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrPenaltyNotFound is returned for unknown penalty IDs.
	ErrPenaltyNotFound = errors.New("penalty not found")

	// ErrDuplicateIdempotencyKey is returned when a ledger transaction
	// with the same idempotency key already exists. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DateConflictError names the interval already occupying the calendar.
type DateConflictError struct {
	PropertyID    PropertyID
	Requested     DateRange
	ConflictsWith DateRange
	ReservationID ReservationID
}

func (e *DateConflictError) Error() string {
	return fmt.Sprintf("requested %s conflicts with reservation %s %s",
		e.Requested, e.ReservationID, e.ConflictsWith)
}

func (e *DateConflictError) Unwrap() error { return ErrDateConflict }

// InsufficientBalanceError details a balance shortfall.
type InsufficientBalanceError struct {
	Key       MembershipKey
	Year      int
	Available Nights
	Requested Nights
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s in %d: available %s, requested %s",
		e.Key, e.Year, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// StayLengthError reports the violated bound.
type StayLengthError struct {
	Nights int
	Min    int
	Max    int
}

func (e *StayLengthError) Error() string {
	return fmt.Sprintf("stay of %d nights outside rules [%d, %d]", e.Nights, e.Min, e.Max)
}

func (e *StayLengthError) Unwrap() error { return ErrStayLength }

// YearOutOfRangeError names the rejected year and the modeled buckets.
type YearOutOfRangeError struct {
	Year        int
	CurrentYear int
}

func (e *YearOutOfRangeError) Error() string {
	return fmt.Sprintf("year %d outside modeled buckets [%d, %d]",
		e.Year, e.CurrentYear, e.CurrentYear+1)
}

func (e *YearOutOfRangeError) Unwrap() error { return ErrYearOutOfRange }

// ChecklistValidationError reports why a checklist submission is invalid
// (unknown items, missing items, or a missing note for flagged items).
type ChecklistValidationError struct {
	Reasons []string
}

func (e *ChecklistValidationError) Error() string {
	return "invalid checklist: " + strings.Join(e.Reasons, "; ")
}

func (e *ChecklistValidationError) Unwrap() error { return ErrPossessionState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyAborted)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrPastDate) ||
		errors.Is(err, ErrStayLength) ||
		errors.Is(err, ErrYearOutOfRange) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrPossessionState)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMembershipNotFound) ||
		errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrPropertyNotFound)
}
