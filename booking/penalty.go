/*
penalty.go - Penalty Register

PURPOSE:
  Records no-show/misuse penalties and answers the booking eligibility
  question "does this member have an active penalty for this property?".
  The register does not own booking decisions - the reservation manager
  consults it as one of its validation gates.

SOURCES OF PENALTIES:
  - Checkout condition regressions (possession.go, automatic)
  - Manual issuance by a master member

SEE ALSO:
  - manager.go: Consults IsBlocked during validation
  - possession.go: Issues regression penalties at checkout
*/
package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coown/staybook/engine"
)

// Register reads and writes penalty records.
type Register struct {
	penalties   engine.PenaltyStore
	memberships engine.MembershipStore
	events      *engine.Dispatcher
}

func NewRegister(store engine.Store, events *engine.Dispatcher) *Register {
	return &Register{penalties: store, memberships: store, events: events}
}

// IsBlocked reports whether the user has any active penalty for the
// property.
func (r *Register) IsBlocked(ctx context.Context, propertyID engine.PropertyID, userID engine.UserID) (bool, error) {
	active, err := r.penalties.ActivePenalties(ctx, propertyID, userID)
	if err != nil {
		return false, err
	}
	return len(active) > 0, nil
}

// Issue records a penalty. Manual issuance requires the issuer to be a
// master member of the property; the automatic paths pass the offender's
// own reservation context and an engine-internal issuer.
func (r *Register) Issue(ctx context.Context, p *engine.Penalty) (*engine.Penalty, error) {
	if p.Reason == engine.ReasonManual {
		issuer, err := r.memberships.GetMembership(ctx, engine.MembershipKey{PropertyID: p.PropertyID, UserID: p.IssuedBy})
		if err != nil {
			return nil, err
		}
		if !issuer.IsMaster() {
			return nil, engine.ErrNotAuthorized
		}
	}

	if p.ID == "" {
		p.ID = engine.PenaltyID(uuid.NewString())
	}
	p.Active = true
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := r.penalties.SavePenalty(ctx, p); err != nil {
		return nil, err
	}

	r.events.Publish(engine.Event{
		Kind:       engine.EventPenaltyIssued,
		PropertyID: p.PropertyID,
		UserID:     p.UserID,
		PenaltyID:  p.ID,
	})
	return p, nil
}

// Clear deactivates a penalty. Only a master member of the property may
// clear.
func (r *Register) Clear(ctx context.Context, propertyID engine.PropertyID, id engine.PenaltyID, byUserID engine.UserID) error {
	member, err := r.memberships.GetMembership(ctx, engine.MembershipKey{PropertyID: propertyID, UserID: byUserID})
	if err != nil {
		return err
	}
	if !member.IsMaster() {
		return engine.ErrNotAuthorized
	}
	return r.penalties.DeactivatePenalty(ctx, id)
}

// List returns every penalty recorded for a property.
func (r *Register) List(ctx context.Context, propertyID engine.PropertyID) ([]*engine.Penalty, error) {
	return r.penalties.ListPenalties(ctx, propertyID)
}
