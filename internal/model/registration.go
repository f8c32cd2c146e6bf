package model

import (
	"fmt"
	"strings"
	"time"
)

// Scope says whether a reference binds to a whole recurring series or to a
// single occurrence of it.
type Scope string

const (
	ScopeSeries     Scope = "series"
	ScopeOccurrence Scope = "occurrence"
)

// Valid reports whether s is one of the known scopes.
func (s Scope) Valid() bool {
	return s == ScopeSeries || s == ScopeOccurrence
}

// Intent distinguishes a capacity consuming registration (rsvp) from a
// tracking-only subscription (watch).
type Intent string

const (
	IntentRSVP  Intent = "rsvp"
	IntentWatch Intent = "watch"
)

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	return i == IntentRSVP || i == IntentWatch
}

// ConsumesCapacity is true for registrations that take a seat.
func (i Intent) ConsumesCapacity() bool { return i == IntentRSVP }

// ParseIntent converts raw input into an Intent.  Matching is case
// insensitive; anything outside the enumeration is rejected.
func ParseIntent(raw string) (Intent, error) {
	i := Intent(strings.ToLower(strings.TrimSpace(raw)))
	if !i.Valid() {
		return "", fmt.Errorf("unknown intent %q", raw)
	}
	return i, nil
}

// RegistrationReference is one row of the registration ledger: a single
// registrant's intent toward an event series or one of its occurrences.
//
// Fields:
//
//	ID            – opaque identifier assigned at creation.
//	OwnerID       – authenticated account that created and controls the row.
//	RegistrantID  – who the registration is for; equals OwnerID for self.
//	EventID       – series level event identifier.
//	Scope         – series or occurrence.
//	OccurrenceKey – canonical occurrence start, empty for series scope.
//	Intent        – rsvp or watch.
//	CompositeKey  – uniqueness key over registrant, event, scope and occurrence.
//	CreatedAt     – creation timestamp (UTC).
//	CancelledAt   – set once the row has been cancelled (soft delete).
//	Metadata      – extension fields, not interpreted by the ledger.
type RegistrationReference struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"owner_id"`
	RegistrantID  string         `json:"registrant_id"`
	EventID       string         `json:"event_id"`
	Scope         Scope          `json:"scope"`
	OccurrenceKey string         `json:"occurrence_key,omitempty"`
	Intent        Intent         `json:"intent"`
	CompositeKey  string         `json:"composite_key"`
	CreatedAt     time.Time      `json:"created_at"`
	CancelledAt   *time.Time     `json:"cancelled_at,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// IsSelf reports whether the reference is the owner's own registration.
func (r RegistrationReference) IsSelf() bool {
	return r.RegistrantID == "" || r.RegistrantID == r.OwnerID
}

// Live reports whether the reference has not been cancelled.
func (r RegistrationReference) Live() bool { return r.CancelledAt == nil }
