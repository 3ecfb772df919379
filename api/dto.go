/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing
  field renaming and version evolution without breaking clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  DTOs are pure data carriers. Structural validation (date formats,
  required fields) happens in handlers; every business rule lives in the
  booking package and is enforced there regardless of what the UI sends.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/coown/staybook/engine"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// SubmitReservationRequest is the body of a booking request.
type SubmitReservationRequest struct {
	StartDate  string `json:"start_date"` // YYYY-MM-DD
	EndDate    string `json:"end_date"`   // YYYY-MM-DD
	GuestCount int    `json:"guest_count"`
}

// ReservationDTO represents a reservation in API responses.
type ReservationDTO struct {
	ID            string     `json:"id"`
	PropertyID    string     `json:"property_id"`
	RequesterID   string     `json:"requester_id"`
	StartDate     string     `json:"start_date"`
	EndDate       string     `json:"end_date"`
	Status        string     `json:"status"`
	DebitYear     int        `json:"debit_year"`
	NightsCharged int        `json:"nights_charged"`
	GuestCount    int        `json:"guest_count"`
	CreatedAt     time.Time  `json:"created_at"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toReservationDTO(res *engine.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:            string(res.ID),
		PropertyID:    string(res.PropertyID),
		RequesterID:   string(res.RequesterID),
		StartDate:     res.Range.Start.String(),
		EndDate:       res.Range.End.String(),
		Status:        string(res.Status),
		DebitYear:     res.DebitYear,
		NightsCharged: res.NightsCharged,
		GuestCount:    res.GuestCount,
		CreatedAt:     res.CreatedAt,
		CancelledAt:   res.CancelledAt,
		CompletedAt:   res.CompletedAt,
	}
}

// BalanceDTO is the balance display payload for one year bucket.
type BalanceDTO struct {
	PropertyID      string `json:"property_id"`
	UserID          string `json:"user_id"`
	Year            int    `json:"year"`
	AvailableNights string `json:"available_nights"`
}

// TransactionDTO is one ledger entry in a history response.
type TransactionDTO struct {
	ID          string    `json:"id"`
	Year        int       `json:"year"`
	Delta       string    `json:"delta"`
	Type        string    `json:"type"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubmitChecklistRequest is the body of a checkin/checkout submission.
type SubmitChecklistRequest struct {
	Items []ItemReportDTO `json:"items"`
	Note  string          `json:"note"`
}

type ItemReportDTO struct {
	ItemID    string `json:"item_id"`
	Condition string `json:"condition"` // ok | worn | damaged | missing
}

// ChecklistDTO represents a submitted checklist record.
type ChecklistDTO struct {
	ID            string          `json:"id"`
	ReservationID string          `json:"reservation_id"`
	Phase         string          `json:"phase"`
	Items         []ItemReportDTO `json:"items"`
	Note          string          `json:"note,omitempty"`
	SubmittedBy   string          `json:"submitted_by"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

func toChecklistDTO(record *engine.ChecklistRecord) ChecklistDTO {
	items := make([]ItemReportDTO, 0, len(record.Items))
	for _, item := range record.Items {
		items = append(items, ItemReportDTO{ItemID: string(item.ItemID), Condition: string(item.Condition)})
	}
	return ChecklistDTO{
		ID:            string(record.ID),
		ReservationID: string(record.ReservationID),
		Phase:         string(record.Phase),
		Items:         items,
		Note:          record.Note,
		SubmittedBy:   string(record.SubmittedBy),
		SubmittedAt:   record.SubmittedAt,
	}
}

// PenaltyDTO represents a penalty record.
type PenaltyDTO struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	UserID     string    `json:"user_id"`
	Reason     string    `json:"reason"`
	Details    []string  `json:"details,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	IssuedBy   string    `json:"issued_by,omitempty"`
}

func toPenaltyDTO(p *engine.Penalty) PenaltyDTO {
	return PenaltyDTO{
		ID:         string(p.ID),
		PropertyID: string(p.PropertyID),
		UserID:     string(p.UserID),
		Reason:     string(p.Reason),
		Details:    p.Details,
		Active:     p.Active,
		CreatedAt:  p.CreatedAt,
		IssuedBy:   string(p.IssuedBy),
	}
}

// IssuePenaltyRequest is the body of a manual penalty issuance.
type IssuePenaltyRequest struct {
	UserID  string   `json:"user_id"`
	Details []string `json:"details"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
