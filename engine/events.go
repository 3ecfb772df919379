/*
events.go - Domain events emitted by the engine

PURPOSE:
  Booking confirmation, cancellation, checklist submission, and penalty
  issuance each emit a domain event. Delivery (push notifications, email,
  toasts) is a downstream subscriber concern and never runs inline in the
  commit path: Publish hands the event to subscribers on a separate
  goroutine and returns immediately.

SEE ALSO:
  - booking/manager.go, booking/possession.go: Publishers
  - cmd/server/main.go: Wires the logging subscriber
*/
package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// EVENTS
// =============================================================================

type EventKind string

const (
	EventReservationConfirmed EventKind = "reservation_confirmed"
	EventReservationCancelled EventKind = "reservation_cancelled"
	EventChecklistSubmitted   EventKind = "checklist_submitted"
	EventPenaltyIssued        EventKind = "penalty_issued"
)

// Event is a fire-and-forget domain notification.
type Event struct {
	Kind       EventKind
	PropertyID PropertyID
	UserID     UserID

	ReservationID ReservationID
	ChecklistID   ChecklistID
	PenaltyID     PenaltyID

	OccurredAt time.Time
}

// Subscriber consumes events. Implementations must not block for long;
// delivery happens off the commit path but shares one goroutine per
// publish.
type Subscriber interface {
	Notify(event Event)
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher fans events out to subscribers.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) Subscribe(s Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, s)
}

// Publish delivers the event asynchronously. Never blocks the caller.
func (d *Dispatcher) Publish(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	d.mu.RLock()
	subs := make([]Subscriber, len(d.subscribers))
	copy(subs, d.subscribers)
	d.mu.RUnlock()

	go func() {
		for _, s := range subs {
			s.Notify(event)
		}
	}()
}

// =============================================================================
// LOGGING SUBSCRIBER
// =============================================================================

// LogSubscriber writes every event to a structured logger.
type LogSubscriber struct {
	Logger *zap.Logger
}

func (s *LogSubscriber) Notify(event Event) {
	s.Logger.Info("domain event",
		zap.String("kind", string(event.Kind)),
		zap.String("property_id", string(event.PropertyID)),
		zap.String("user_id", string(event.UserID)),
		zap.String("reservation_id", string(event.ReservationID)),
		zap.Time("occurred_at", event.OccurredAt),
	)
}
