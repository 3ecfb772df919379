package engine

import "time"

// =============================================================================
// RESERVATION - A committed stay
// =============================================================================

type ReservationStatus string

const (
	// StatusPending exists only for the duration of validate+commit; it is
	// never persisted in the common path.
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

// Reservation is a stay booked against the requester's entitlement.
// Status only advances forward; CANCELLED is reachable from PENDING or
// CONFIRMED, and COMPLETED/CANCELLED are terminal.
type Reservation struct {
	ID          ReservationID
	PropertyID  PropertyID
	RequesterID UserID
	Range       DateRange

	Status ReservationStatus

	// DebitYear is the calendar year the nights were charged against:
	// always the start date's year, even for stays crossing into the
	// next year (the charge is never split across buckets).
	DebitYear     int
	NightsCharged int

	GuestCount int

	CreatedAt   time.Time
	CancelledAt *time.Time
	CompletedAt *time.Time
}

// Occupies reports whether the reservation holds calendar space: only
// CONFIRMED and COMPLETED reservations block other stays.
func (r *Reservation) Occupies() bool {
	return r.Status == StatusConfirmed || r.Status == StatusCompleted
}

// Cancellable reports whether the status allows cancellation.
func (r *Reservation) Cancellable() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}
