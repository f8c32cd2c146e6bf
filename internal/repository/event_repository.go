package repository

import (
	"context"

	"github.com/iliyamo/event-registration-ledger/internal/database"
	"github.com/iliyamo/event-registration-ledger/internal/model"
)

// EventRepo reads the events table, a replica of the external catalog kept
// in the ledger database.  The ledger never writes to it.
type EventRepo struct {
	db *database.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *database.DB) *EventRepo { return &EventRepo{db: db} }

// GetEventsBatch loads the summaries for ids in one query.  IDs with no
// row are simply absent from the returned map; the caller decides how to
// present them.  Unpublished events are returned with IsPublished=false.
func (r *EventRepo) GetEventsBatch(ctx context.Context, ids []string) (map[string]model.EventSummary, error) {
	out := make(map[string]model.EventSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	q := r.db.Dialect.Rebind(`SELECT event_id, name, starts_at, recurrence, capacity, is_published
		FROM events WHERE event_id IN (` + database.Placeholders(len(ids)) + `)`)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("get events", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ev       model.EventSummary
			startsAt int64
		)
		if err := rows.Scan(&ev.EventID, &ev.Name, &startsAt, &ev.Schedule.Recurrence, &ev.Capacity, &ev.IsPublished); err != nil {
			return nil, storeErr("scan event", err)
		}
		ev.Schedule.Start = fromMillis(startsAt)
		out[ev.EventID] = ev
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("get events", err)
	}
	return out, nil
}
