// Package scope decides whether a registration targets an event series or
// one occurrence of it, and derives the composite identity used to keep
// registrations unique.  Everything here is pure.
package scope

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/iliyamo/event-registration-ledger/internal/model"
)

// ErrAmbiguousScope is returned for a recurring event when the caller did
// not say which occurrence they mean.  Retrying without more input fails
// the same way.
var ErrAmbiguousScope = errors.New("ambiguous scope: recurring event requires an occurrence start")

// Resolution is the outcome of Resolve.
type Resolution struct {
	Scope         model.Scope
	OccurrenceKey string
}

// Resolve picks the scope for a registration against event.  One-off
// events are always series scoped and any occurrenceStart is ignored.
// Recurring events need an occurrenceStart.
func Resolve(event model.EventSummary, occurrenceStart *time.Time) (Resolution, error) {
	if !event.Schedule.IsRecurring() {
		return Resolution{Scope: model.ScopeSeries}, nil
	}
	if occurrenceStart == nil || occurrenceStart.IsZero() {
		return Resolution{}, ErrAmbiguousScope
	}
	return Resolution{
		Scope:         model.ScopeOccurrence,
		OccurrenceKey: OccurrenceKey(*occurrenceStart),
	}, nil
}

// OccurrenceKey formats an occurrence start canonically: UTC, second
// precision, RFC 3339.  Equal instants always produce equal keys.
func OccurrenceKey(start time.Time) string {
	return start.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// CompositeKey derives the uniqueness key for a registration.  Each part is
// length prefixed before hashing so that no two distinct tuples collide on
// separator characters.
func CompositeKey(registrantID, eventID string, s model.Scope, occurrenceKey string) string {
	h := sha256.New()
	var n [4]byte
	for _, part := range []string{registrantID, eventID, string(s), occurrenceKey} {
		binary.BigEndian.PutUint32(n[:], uint32(len(part)))
		h.Write(n[:])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
