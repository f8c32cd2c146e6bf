// Package projection turns ledger rows into the "My Events" view.  Build
// joins references with catalog snapshots and Group folds the joined rows
// into one card per event or occurrence.  Both are pure functions of their
// input.
package projection

import (
	"sort"

	"github.com/iliyamo/event-registration-ledger/internal/model"
)

// EventIDs returns the distinct event IDs referenced by refs in sorted
// order, ready for a single batched catalog lookup.
func EventIDs(refs []model.RegistrationReference) []string {
	seen := make(map[string]struct{}, len(refs))
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r.EventID]; ok {
			continue
		}
		seen[r.EventID] = struct{}{}
		ids = append(ids, r.EventID)
	}
	sort.Strings(ids)
	return ids
}

// Build produces exactly one enriched row per reference, in input order.
// A reference whose event is absent from events, or present but
// unpublished, is kept and flagged EventUnavailable.  A nil events map
// (catalog unreachable) flags every row.
func Build(refs []model.RegistrationReference, events map[string]model.EventSummary) []model.EnrichedRow {
	rows := make([]model.EnrichedRow, 0, len(refs))
	for _, ref := range refs {
		ev, ok := events[ref.EventID]
		row := model.EnrichedRow{Reference: ref, Event: ev}
		switch {
		case !ok:
			row.Event = model.EventSummary{EventID: ref.EventID}
			row.EventUnavailable = true
		case !ev.IsPublished:
			row.EventUnavailable = true
		}
		rows = append(rows, row)
	}
	return rows
}
