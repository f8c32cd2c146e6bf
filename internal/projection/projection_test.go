package projection

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/iliyamo/event-registration-ledger/internal/model"
)

var t0 = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func ref(id, registrant, event string, created time.Duration) model.RegistrationReference {
	return model.RegistrationReference{
		ID:           id,
		OwnerID:      "u1",
		RegistrantID: registrant,
		EventID:      event,
		Scope:        model.ScopeSeries,
		Intent:       model.IntentRSVP,
		CreatedAt:    t0.Add(created),
	}
}

func catalog() map[string]model.EventSummary {
	return map[string]model.EventSummary{
		"e1": {EventID: "e1", Name: "Book Club", IsPublished: true, Schedule: model.Schedule{Start: t0.Add(48 * time.Hour)}},
		"e2": {EventID: "e2", Name: "Swim", IsPublished: true, Schedule: model.Schedule{Start: t0.Add(24 * time.Hour), Recurrence: "FREQ=WEEKLY"}},
		"e3": {EventID: "e3", Name: "Draft", IsPublished: false, Schedule: model.Schedule{Start: t0}},
	}
}

var family = []model.FamilyMember{
	{RegistrantID: "f2", DisplayName: "Noah"},
	{RegistrantID: "f1", DisplayName: "Mia"},
}

func TestEventIDs(t *testing.T) {
	refs := []model.RegistrationReference{ref("r1", "u1", "e2", 0), ref("r2", "f1", "e1", 0), ref("r3", "f2", "e2", 0)}
	if got := EventIDs(refs); !reflect.DeepEqual(got, []string{"e1", "e2"}) {
		t.Fatalf("EventIDs = %v", got)
	}
}

func TestBuildFlagsUnavailableRows(t *testing.T) {
	refs := []model.RegistrationReference{
		ref("r1", "u1", "e1", 0),
		ref("r2", "u1", "e3", 0),
		ref("r3", "u1", "gone", 0),
	}
	rows := Build(refs, catalog())
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].EventUnavailable || rows[0].Event.Name != "Book Club" {
		t.Fatalf("row 0 = %+v", rows[0])
	}
	if !rows[1].EventUnavailable {
		t.Fatal("unpublished event should be flagged")
	}
	if !rows[2].EventUnavailable || rows[2].Event.EventID != "gone" {
		t.Fatalf("missing event row = %+v", rows[2])
	}

	for _, row := range Build(refs, nil) {
		if !row.EventUnavailable {
			t.Fatalf("catalog failure must flag every row: %+v", row)
		}
	}
}

func TestGroupSelfFirstThenFamilyOrder(t *testing.T) {
	refs := []model.RegistrationReference{
		ref("r1", "f1", "e1", 0),
		ref("r2", "stranger", "e1", time.Second),
		ref("r3", "f2", "e1", 2*time.Second),
		ref("r4", "u1", "e1", 3*time.Second),
	}
	groups := Group(Build(refs, catalog()), "u1", family)
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	var got []string
	for _, e := range groups[0].Entries {
		got = append(got, e.RegistrantID)
	}
	if want := []string{"u1", "f2", "f1", "stranger"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("entry order = %v, want %v", got, want)
	}
	first := groups[0].Entries[0]
	if !first.IsSelf || first.ReferenceID != "r4" {
		t.Fatalf("first entry = %+v", first)
	}
	if groups[0].Entries[1].DisplayName != "Noah" {
		t.Fatalf("display name = %q", groups[0].Entries[1].DisplayName)
	}
}

func TestGroupTiesAndDedup(t *testing.T) {
	a := ref("rb", "u1", "e1", 0)
	b := ref("ra", "u1", "e1", 0)
	c := ref("rc", "u1", "e1", -time.Second)
	rows := Build([]model.RegistrationReference{a, b, c, a}, catalog())
	groups := Group(rows, "u1", nil)
	var ids []string
	for _, e := range groups[0].Entries {
		ids = append(ids, e.ReferenceID)
	}
	if want := []string{"rc", "ra", "rb"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestGroupSeparatesOccurrencesAndOrdersByStart(t *testing.T) {
	occ := func(id, key string) model.RegistrationReference {
		r := ref(id, "u1", "e2", 0)
		r.Scope = model.ScopeOccurrence
		r.OccurrenceKey = key
		return r
	}
	refs := []model.RegistrationReference{
		ref("r1", "u1", "e1", 0),
		occ("r2", "2026-10-16T09:00:00Z"),
		occ("r3", "2026-10-02T09:00:00Z"),
		ref("r4", "u1", "gone", 0),
	}
	groups := Group(Build(refs, catalog()), "u1", nil)
	var keys []string
	for _, g := range groups {
		keys = append(keys, g.EventID+"@"+g.OccurrenceKey)
	}
	want := []string{"e2@2026-10-02T09:00:00Z", "e1@", "e2@2026-10-16T09:00:00Z", "gone@"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("group order = %v, want %v", keys, want)
	}
	if !groups[3].EventUnavailable {
		t.Fatal("group for missing event should be unavailable")
	}
}

func TestGroupIsDeterministic(t *testing.T) {
	refs := []model.RegistrationReference{
		ref("r1", "f1", "e1", 0),
		ref("r2", "u1", "e1", time.Second),
		ref("r3", "f2", "e2", 0),
		ref("r4", "u1", "e2", 0),
		ref("r5", "f1", "e3", 0),
		ref("r6", "x", "e1", 0),
	}
	want := Group(Build(refs, catalog()), "u1", family)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]model.RegistrationReference(nil), refs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Group(Build(shuffled, catalog()), "u1", family)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("iteration %d: output differs for shuffled input", i)
		}
	}
}

func TestFind(t *testing.T) {
	groups := Group(Build([]model.RegistrationReference{ref("r1", "u1", "e1", 0)}, catalog()), "u1", nil)
	if _, ok := Find(groups, model.GroupKey{EventID: "e1", Scope: model.ScopeSeries}); !ok {
		t.Fatal("expected group e1")
	}
	if _, ok := Find(groups, model.GroupKey{EventID: "e2", Scope: model.ScopeSeries}); ok {
		t.Fatal("unexpected group e2")
	}
}
