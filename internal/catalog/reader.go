// Package catalog is the ledger's read-only view of the external event
// catalog.  The ledger never mutates catalog data; it only looks events up
// in batches for scope resolution and projections.
package catalog

import (
	"context"

	"github.com/iliyamo/event-registration-ledger/internal/model"
)

// Reader loads event summaries by ID.  Implementations must answer a whole
// batch in one round trip; IDs they do not know are left out of the map.
type Reader interface {
	GetEventsBatch(ctx context.Context, ids []string) (map[string]model.EventSummary, error)
}
