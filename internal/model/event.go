package model

import (
	"strings"
	"time"
)

// Schedule carries the timing of an event.  Recurrence holds the catalog's
// recurrence descriptor (for example an RRULE); an empty descriptor means
// the event happens once.
type Schedule struct {
	Start      time.Time `json:"start"`
	Recurrence string    `json:"recurrence,omitempty"`
}

// IsRecurring reports whether the schedule describes a series.
func (s Schedule) IsRecurring() bool {
	return strings.TrimSpace(s.Recurrence) != ""
}

// EventSummary is the read-only view of a catalog event that the ledger
// needs for scope resolution and projections.  The ledger never mutates it.
type EventSummary struct {
	EventID     string   `json:"event_id"`
	Name        string   `json:"name"`
	Schedule    Schedule `json:"schedule"`
	Capacity    int      `json:"capacity"`
	IsPublished bool     `json:"is_published"`
}

// FamilyMember is one dependent an owner may register on behalf of, as
// supplied by the family link provider.
type FamilyMember struct {
	RegistrantID string `json:"registrant_id"`
	DisplayName  string `json:"display_name"`
}
