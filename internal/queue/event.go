// Package queue carries registration domain events over RabbitMQ: a
// publisher used by the ledger service and an audit consumer that appends
// each event to a log file.
package queue

import (
	"time"

	"github.com/iliyamo/event-registration-ledger/internal/model"
)

// Event types published on the registration queue.
const (
	TypeRegistrationCreated   = "registration.created"
	TypeRegistrationCancelled = "registration.cancelled"
)

// RegistrationEvent is published after a reference is created or
// cancelled.  It contains enough information for downstream consumers to
// log, notify or count capacity without querying the ledger.
type RegistrationEvent struct {
	Type             string `json:"type"`
	ReferenceID      string `json:"reference_id"`
	OwnerID          string `json:"owner_id"`
	RegistrantID     string `json:"registrant_id"`
	EventID          string `json:"event_id"`
	Scope            string `json:"scope"`
	OccurrenceKey    string `json:"occurrence_key,omitempty"`
	Intent           string `json:"intent"`
	ConsumesCapacity bool   `json:"consumes_capacity"` // rsvp takes a seat, watch does not
	OccurredAt       string `json:"occurred_at"`
}

// NewRegistrationEvent builds the payload for ref.  at is formatted as
// RFC 3339 in UTC.
func NewRegistrationEvent(eventType string, ref model.RegistrationReference, at time.Time) RegistrationEvent {
	return RegistrationEvent{
		Type:             eventType,
		ReferenceID:      ref.ID,
		OwnerID:          ref.OwnerID,
		RegistrantID:     ref.RegistrantID,
		EventID:          ref.EventID,
		Scope:            string(ref.Scope),
		OccurrenceKey:    ref.OccurrenceKey,
		Intent:           string(ref.Intent),
		ConsumesCapacity: ref.Intent.ConsumesCapacity(),
		OccurredAt:       at.UTC().Format(time.RFC3339),
	}
}
