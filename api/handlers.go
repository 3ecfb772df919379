/*
handlers.go - HTTP API handlers for the reservation engine

PURPOSE:
  Exposes the booking engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every decision to the booking
  package. The UI is advisory; this layer enforces nothing itself.

ENDPOINTS:
  Reservations:
    GET    /api/properties/{propertyID}/reservations          Calendar view
    POST   /api/properties/{propertyID}/reservations          Book a stay
    DELETE /api/reservations/{id}                             Cancel

  Possession:
    POST   /api/reservations/{id}/checkin                     Arrival checklist
    POST   /api/reservations/{id}/checkout                    Departure checklist
    GET    /api/reservations/{id}/checklists                  Records

  Balance:
    GET    /api/properties/{propertyID}/members/{userID}/balance
    GET    /api/properties/{propertyID}/members/{userID}/transactions

  Penalties:
    GET    /api/properties/{propertyID}/penalties             List
    POST   /api/properties/{propertyID}/penalties             Manual issue (master)
    DELETE /api/properties/{propertyID}/penalties/{id}        Clear (master)

  Scenarios:
    GET    /api/scenarios                                     List demo scenarios
    POST   /api/scenarios/load                                Load a demo scenario

ERROR HANDLING:
  Error kinds map to HTTP statuses:
  - 400: Malformed input, date/length/year validation failures
  - 403: Penalty block, wrong caller, permission failures
  - 404: Unknown property/reservation/membership
  - 409: Date conflict, insufficient balance, duplicate submission
  - 500: Everything else

SECURITY NOTE:
  Caller identity arrives as the X-User-ID header. Authentication and
  session management are external collaborators; nothing here verifies
  the header. Do not expose this service without an authenticating
  proxy in front.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scenarios.go: Demo scenario loaders
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/coown/staybook/booking"
	"github.com/coown/staybook/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      engine.Store
	Manager    *booking.Manager
	Possession *booking.Possession
}

// NewHandler wires a handler around an initialized manager.
func NewHandler(store engine.Store, manager *booking.Manager, possession *booking.Possession) *Handler {
	return &Handler{Store: store, Manager: manager, Possession: possession}
}

// callerID extracts the authenticated user from the request. Identity is
// established by an external layer; see the SECURITY NOTE above.
func callerID(r *http.Request) engine.UserID {
	return engine.UserID(r.Header.Get("X-User-ID"))
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// SubmitReservation books a stay.
// POST /api/properties/{propertyID}/reservations
func (h *Handler) SubmitReservation(w http.ResponseWriter, r *http.Request) {
	propertyID := engine.PropertyID(chi.URLParam(r, "propertyID"))
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	var req SubmitReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := engine.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := engine.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}
	if req.GuestCount <= 0 {
		req.GuestCount = 1
	}

	res, err := h.Manager.Request(r.Context(), propertyID, caller, start, end, req.GuestCount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(res))
}

// ListReservations returns the calendar for a property.
// GET /api/properties/{propertyID}/reservations?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	propertyID := engine.PropertyID(chi.URLParam(r, "propertyID"))

	var from, to engine.TimePoint
	if f := r.URL.Query().Get("from"); f != "" {
		var err error
		if from, err = engine.ParseDate(f); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
	}
	if t := r.URL.Query().Get("to"); t != "" {
		var err error
		if to, err = engine.ParseDate(t); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
	}

	reservations, err := h.Manager.List(r.Context(), propertyID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]ReservationDTO, 0, len(reservations))
	for _, res := range reservations {
		dtos = append(dtos, toReservationDTO(res))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CancelReservation voids a reservation.
// DELETE /api/reservations/{id}
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := engine.ReservationID(chi.URLParam(r, "id"))
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	if err := h.Manager.Cancel(r.Context(), id, caller); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// POSSESSION HANDLERS
// =============================================================================

// SubmitCheckin records the arrival checklist.
// POST /api/reservations/{id}/checkin
func (h *Handler) SubmitCheckin(w http.ResponseWriter, r *http.Request) {
	h.submitChecklist(w, r, h.Possession.SubmitCheckin)
}

// SubmitCheckout records the departure checklist and completes the stay.
// POST /api/reservations/{id}/checkout
func (h *Handler) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	h.submitChecklist(w, r, h.Possession.SubmitCheckout)
}

type checklistSubmit func(ctx context.Context, id engine.ReservationID, caller engine.UserID, items []engine.ItemReport, note string) (*engine.ChecklistRecord, error)

func (h *Handler) submitChecklist(w http.ResponseWriter, r *http.Request, submit checklistSubmit) {
	id := engine.ReservationID(chi.URLParam(r, "id"))
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	var req SubmitChecklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	items := make([]engine.ItemReport, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, engine.ItemReport{
			ItemID:    engine.ItemID(item.ItemID),
			Condition: engine.ItemCondition(item.Condition),
		})
	}

	record, err := submit(r.Context(), id, caller, items, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChecklistDTO(record))
}

// ListChecklists returns the submitted records for a reservation.
// GET /api/reservations/{id}/checklists
func (h *Handler) ListChecklists(w http.ResponseWriter, r *http.Request) {
	id := engine.ReservationID(chi.URLParam(r, "id"))

	records, err := h.Store.ListChecklists(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]ChecklistDTO, 0, len(records))
	for _, record := range records {
		dtos = append(dtos, toChecklistDTO(record))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalance returns a member's remaining nights for one year bucket.
// GET /api/properties/{propertyID}/members/{userID}/balance?year=2025
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	propertyID := engine.PropertyID(chi.URLParam(r, "propertyID"))
	userID := engine.UserID(chi.URLParam(r, "userID"))

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing year", err)
		return
	}

	available, err := h.Manager.AvailableNights(r.Context(), propertyID, userID, year)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		PropertyID:      string(propertyID),
		UserID:          string(userID),
		Year:            year,
		AvailableNights: available.String(),
	})
}

// GetTransactions returns a member's ledger history.
// GET /api/properties/{propertyID}/members/{userID}/transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	propertyID := engine.PropertyID(chi.URLParam(r, "propertyID"))
	userID := engine.UserID(chi.URLParam(r, "userID"))

	txs, err := h.Manager.History(r.Context(), propertyID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, TransactionDTO{
			ID:          string(tx.ID),
			Year:        tx.Year,
			Delta:       tx.Delta.String(),
			Type:        string(tx.Type),
			ReferenceID: tx.ReferenceID,
			Reason:      tx.Reason,
			CreatedAt:   tx.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PENALTY HANDLERS
// =============================================================================

// ListPenalties returns a property's penalty records.
// GET /api/properties/{propertyID}/penalties
func (h *Handler) ListPenalties(w http.ResponseWriter, r *http.Request) {
	propertyID := engine.PropertyID(chi.URLParam(r, "propertyID"))

	penalties, err := h.Manager.Register().List(r.Context(), propertyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]PenaltyDTO, 0, len(penalties))
	for _, p := range penalties {
		dtos = append(dtos, toPenaltyDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// IssuePenalty records a manual penalty. Master members only.
// POST /api/properties/{propertyID}/penalties
func (h *Handler) IssuePenalty(w http.ResponseWriter, r *http.Request) {
	propertyID := engine.PropertyID(chi.URLParam(r, "propertyID"))
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	var req IssuePenaltyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Manager.Register().Issue(r.Context(), &engine.Penalty{
		PropertyID: propertyID,
		UserID:     engine.UserID(req.UserID),
		Reason:     engine.ReasonManual,
		Details:    req.Details,
		IssuedBy:   caller,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPenaltyDTO(p))
}

// ClearPenalty deactivates a penalty. Master members only.
// DELETE /api/properties/{propertyID}/penalties/{id}
func (h *Handler) ClearPenalty(w http.ResponseWriter, r *http.Request) {
	propertyID := engine.PropertyID(chi.URLParam(r, "propertyID"))
	id := engine.PenaltyID(chi.URLParam(r, "id"))
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	if err := h.Manager.Register().Clear(r.Context(), propertyID, id, caller); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// JSON/ERROR HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine error kinds to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, engine.ErrDateConflict),
		errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrAlreadySubmitted),
		errors.Is(err, engine.ErrConcurrencyAborted),
		errors.Is(err, engine.ErrNotCancellable),
		errors.Is(err, engine.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, engine.ErrPenaltyBlocked):
		writeError(w, http.StatusForbidden, "Blocked by active penalty", err)
	case errors.Is(err, engine.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "Not authorized", err)
	case errors.Is(err, engine.ErrInventoryEmpty):
		writeError(w, http.StatusUnprocessableEntity, "Property has no inventory", err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, engine.ErrCancelled):
		writeError(w, http.StatusRequestTimeout, "Cancelled", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
