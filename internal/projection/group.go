package projection

import (
	"sort"
	"time"

	"github.com/iliyamo/event-registration-ledger/internal/model"
)

// Group folds enriched rows into display groups keyed by event, scope and
// occurrence.  Registrants are not part of the key, so an owner and their
// family registered for the same occurrence share one group.
//
// Inside a group the owner comes first, then family members in the order
// family lists them, then any registrant not in family.  Ties fall back
// to creation time and then reference ID.  Rows repeating a reference ID
// are collapsed.
//
// Groups are ordered by start time (the occurrence start for occurrence
// scope, the event start otherwise, unknown starts last), then event ID,
// scope and occurrence key.  The output depends only on the input, never
// on map iteration or input order.
func Group(rows []model.EnrichedRow, ownerID string, family []model.FamilyMember) []model.ProjectedEventGroup {
	rank := make(map[string]int, len(family))
	names := make(map[string]string, len(family))
	for i, m := range family {
		if _, dup := rank[m.RegistrantID]; dup {
			continue
		}
		rank[m.RegistrantID] = i + 1
		names[m.RegistrantID] = m.DisplayName
	}
	unknownRank := len(family) + 1

	type bucket struct {
		group  model.ProjectedEventGroup
		ranks  map[string]int
		seenID map[string]struct{}
	}
	buckets := make(map[model.GroupKey]*bucket)
	for _, row := range rows {
		ref := row.Reference
		key := model.KeyOf(ref)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				group: model.ProjectedEventGroup{
					GroupKey:         key,
					Event:            row.Event,
					EventUnavailable: row.EventUnavailable,
					Entries:          []model.ProjectedEntry{},
				},
				ranks:  map[string]int{},
				seenID: map[string]struct{}{},
			}
			buckets[key] = b
		}
		if _, dup := b.seenID[ref.ID]; dup {
			continue
		}
		b.seenID[ref.ID] = struct{}{}
		if row.EventUnavailable {
			b.group.EventUnavailable = true
		}

		isSelf := ref.RegistrantID == ownerID || ref.RegistrantID == ""
		r, known := rank[ref.RegistrantID]
		switch {
		case isSelf:
			r = 0
		case !known:
			r = unknownRank
		}
		registrant := ref.RegistrantID
		if registrant == "" {
			registrant = ownerID
		}
		b.ranks[ref.ID] = r
		b.group.Entries = append(b.group.Entries, model.ProjectedEntry{
			RegistrantID: registrant,
			DisplayName:  names[ref.RegistrantID],
			Intent:       ref.Intent,
			ReferenceID:  ref.ID,
			IsSelf:       isSelf,
			CreatedAt:    ref.CreatedAt,
		})
	}

	groups := make([]model.ProjectedEventGroup, 0, len(buckets))
	for _, b := range buckets {
		entries := b.group.Entries
		ranks := b.ranks
		sort.SliceStable(entries, func(i, j int) bool {
			ri, rj := ranks[entries[i].ReferenceID], ranks[entries[j].ReferenceID]
			if ri != rj {
				return ri < rj
			}
			if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
				return entries[i].CreatedAt.Before(entries[j].CreatedAt)
			}
			return entries[i].ReferenceID < entries[j].ReferenceID
		})
		groups = append(groups, b.group)
	}
	sort.Slice(groups, func(i, j int) bool { return groupLess(groups[i], groups[j]) })
	return groups
}

// Find returns the group for key, or false when rows hold no entry for it.
func Find(groups []model.ProjectedEventGroup, key model.GroupKey) (model.ProjectedEventGroup, bool) {
	for _, g := range groups {
		if g.GroupKey == key {
			return g, true
		}
	}
	return model.ProjectedEventGroup{}, false
}

func groupLess(a, b model.ProjectedEventGroup) bool {
	sa, sb := startOf(a), startOf(b)
	switch {
	case sa.IsZero() != sb.IsZero():
		return sb.IsZero()
	case !sa.Equal(sb):
		return sa.Before(sb)
	}
	if a.EventID != b.EventID {
		return a.EventID < b.EventID
	}
	if a.Scope != b.Scope {
		return a.Scope < b.Scope
	}
	return a.OccurrenceKey < b.OccurrenceKey
}

func startOf(g model.ProjectedEventGroup) time.Time {
	if g.Scope == model.ScopeOccurrence && g.OccurrenceKey != "" {
		if t, err := time.Parse(time.RFC3339, g.OccurrenceKey); err == nil {
			return t
		}
	}
	return g.Event.Schedule.Start
}
