package model

import "time"

// EnrichedRow is one registration reference joined with a snapshot of its
// event.  EventUnavailable is set when the catalog had no published entry
// for the event; the row is kept so the owner still sees the registration.
type EnrichedRow struct {
	Reference        RegistrationReference `json:"reference"`
	Event            EventSummary          `json:"event"`
	EventUnavailable bool                  `json:"event_unavailable"`
}

// GroupKey identifies one display card: an event series or a single
// occurrence.  It deliberately leaves out the registrant.
type GroupKey struct {
	EventID       string `json:"event_id"`
	Scope         Scope  `json:"scope"`
	OccurrenceKey string `json:"occurrence_key,omitempty"`
}

// KeyOf returns the group key a reference belongs to.
func KeyOf(r RegistrationReference) GroupKey {
	return GroupKey{EventID: r.EventID, Scope: r.Scope, OccurrenceKey: r.OccurrenceKey}
}

// ProjectedEntry is one registrant inside a projected group.  ReferenceID
// lets the caller cancel exactly this registrant.
type ProjectedEntry struct {
	RegistrantID string    `json:"registrant_id"`
	DisplayName  string    `json:"display_name,omitempty"`
	Intent       Intent    `json:"intent"`
	ReferenceID  string    `json:"reference_id"`
	IsSelf       bool      `json:"is_self"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProjectedEventGroup is a "My Events" card.  It is derived on every read
// and never persisted.
type ProjectedEventGroup struct {
	GroupKey
	Event            EventSummary     `json:"event"`
	EventUnavailable bool             `json:"event_unavailable"`
	Entries          []ProjectedEntry `json:"entries"`
}
