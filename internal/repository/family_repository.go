package repository

import (
	"context"

	"github.com/iliyamo/event-registration-ledger/internal/database"
	"github.com/iliyamo/event-registration-ledger/internal/model"
)

// FamilyRepo reads the family_links table maintained by the account
// service.
type FamilyRepo struct {
	db *database.DB
}

// NewFamilyRepo returns a new FamilyRepo bound to the given database.
func NewFamilyRepo(db *database.DB) *FamilyRepo { return &FamilyRepo{db: db} }

// GetFamilyMembers returns the registrants linked to ownerID in the order
// the owner arranged them.
func (r *FamilyRepo) GetFamilyMembers(ctx context.Context, ownerID string) ([]model.FamilyMember, error) {
	q := r.db.Dialect.Rebind(`SELECT registrant_id, display_name FROM family_links
		WHERE owner_id = ? ORDER BY position, registrant_id`)
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, storeErr("get family", err)
	}
	defer rows.Close()
	members := make([]model.FamilyMember, 0)
	for rows.Next() {
		var m model.FamilyMember
		if err := rows.Scan(&m.RegistrantID, &m.DisplayName); err != nil {
			return nil, storeErr("scan family member", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("get family", err)
	}
	return members, nil
}
