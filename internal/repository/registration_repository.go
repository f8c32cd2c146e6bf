package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-registration-ledger/internal/database"
	"github.com/iliyamo/event-registration-ledger/internal/model"
)

// RegistrationRepo persists registration references.  Each row is keyed by
// its opaque ID; uniqueness among live rows is enforced by the database
// through the nullable live_key column, which holds the composite key
// while the row is live and is cleared on cancellation.  All timestamps
// are stored as UTC milliseconds.
type RegistrationRepo struct {
	db  *database.DB
	log *zap.Logger
}

// NewRegistrationRepo returns a new RegistrationRepo bound to the given
// database.  log receives rows whose metadata cannot be decoded; nil
// discards them.
func NewRegistrationRepo(db *database.DB, log *zap.Logger) *RegistrationRepo {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationRepo{db: db, log: log}
}

const referenceColumns = `id, owner_id, registrant_id, event_id, scope, occurrence_key, intent,
	composite_key, metadata, created_at, cancelled_at`

// Put inserts a new live reference.  The insert is a single statement, so
// two concurrent Puts for the same composite key resolve inside the
// database: exactly one succeeds and the other receives a *DuplicateError.
// The error names the winner only when the winner belongs to the same
// owner; a registrant linked to two owners must not leak one owner's
// reference ID to the other.  No partial row is ever left behind.
func (r *RegistrationRepo) Put(ctx context.Context, ref model.RegistrationReference) error {
	meta, err := encodeMetadata(ref.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	q := r.db.Dialect.Rebind(`INSERT INTO registration_references
		(id, owner_id, registrant_id, event_id, scope, occurrence_key, intent,
		 composite_key, live_key, metadata, created_at, cancelled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`)
	_, err = r.db.ExecContext(ctx, q,
		ref.ID, ref.OwnerID, ref.RegistrantID, ref.EventID, string(ref.Scope), ref.OccurrenceKey,
		string(ref.Intent), ref.CompositeKey, ref.CompositeKey, meta, toMillis(ref.CreatedAt),
	)
	if err == nil {
		return nil
	}
	if !isUniqueViolation(r.db.Dialect, err) {
		return storeErr("put reference", err)
	}
	dup := &DuplicateError{CompositeKey: ref.CompositeKey}
	// The winner may have been cancelled between our insert and this read;
	// the conflict is still reported, just without an ID.
	var existing, owner string
	lookup := r.db.Dialect.Rebind(`SELECT id, owner_id FROM registration_references WHERE live_key = ?`)
	switch err := r.db.QueryRowContext(ctx, lookup, ref.CompositeKey).Scan(&existing, &owner); {
	case err == nil:
		if owner == ref.OwnerID {
			dup.ExistingID = existing
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return storeErr("lookup duplicate", err)
	}
	return dup
}

// Get returns the reference with the given ID whether it is live or
// cancelled.  ErrNotFound is returned when no such row exists.
func (r *RegistrationRepo) Get(ctx context.Context, id string) (model.RegistrationReference, error) {
	q := r.db.Dialect.Rebind(`SELECT ` + referenceColumns + ` FROM registration_references WHERE id = ?`)
	ref, err := r.scanReference(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.RegistrationReference{}, ErrNotFound
	}
	if err != nil {
		return model.RegistrationReference{}, storeErr("get reference", err)
	}
	return ref, nil
}

// ListByOwner returns the live references created by ownerID.  When
// includeFamily is true, live references whose registrant is in familyIDs
// are included as well.  Rows are ordered by creation time, then ID, so
// the result is stable across calls.
func (r *RegistrationRepo) ListByOwner(ctx context.Context, ownerID string, includeFamily bool, familyIDs []string) ([]model.RegistrationReference, error) {
	query := `SELECT ` + referenceColumns + ` FROM registration_references
		WHERE cancelled_at IS NULL AND (owner_id = ?`
	args := []any{ownerID}
	if includeFamily && len(familyIDs) > 0 {
		query += ` OR registrant_id IN (` + database.Placeholders(len(familyIDs)) + `)`
		for _, id := range familyIDs {
			args = append(args, id)
		}
	}
	query += `) ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, r.db.Dialect.Rebind(query), args...)
	if err != nil {
		return nil, storeErr("list references", err)
	}
	defer rows.Close()
	refs := make([]model.RegistrationReference, 0)
	for rows.Next() {
		ref, err := r.scanReference(rows)
		if err != nil {
			return nil, storeErr("scan reference", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list references", err)
	}
	return refs, nil
}

// SoftDelete marks the reference cancelled at the given time and frees its
// composite key for a later registration.  It is idempotent: cancelling an
// already cancelled reference succeeds and reports changed=false.
// ErrNotFound is returned when no such row exists.
func (r *RegistrationRepo) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	q := r.db.Dialect.Rebind(`UPDATE registration_references
		SET cancelled_at = ?, live_key = NULL
		WHERE id = ? AND cancelled_at IS NULL`)
	res, err := r.db.ExecContext(ctx, q, toMillis(at), id)
	if err != nil {
		return false, storeErr("cancel reference", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("cancel reference", err)
	}
	if n > 0 {
		return true, nil
	}
	// Nothing changed: either the row is already cancelled or it never
	// existed.
	var count int
	exists := r.db.Dialect.Rebind(`SELECT COUNT(*) FROM registration_references WHERE id = ?`)
	if err := r.db.QueryRowContext(ctx, exists, id).Scan(&count); err != nil {
		return false, storeErr("cancel reference", err)
	}
	if count == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanReference reads one row.  Metadata is opaque to the ledger, so a
// value that no longer decodes is logged and dropped instead of failing
// the whole read.
func (r *RegistrationRepo) scanReference(row rowScanner) (model.RegistrationReference, error) {
	var (
		ref         model.RegistrationReference
		scope       string
		intent      string
		meta        sql.NullString
		createdAt   int64
		cancelledAt sql.NullInt64
	)
	if err := row.Scan(
		&ref.ID, &ref.OwnerID, &ref.RegistrantID, &ref.EventID, &scope, &ref.OccurrenceKey, &intent,
		&ref.CompositeKey, &meta, &createdAt, &cancelledAt,
	); err != nil {
		return model.RegistrationReference{}, err
	}
	ref.Scope = model.Scope(scope)
	ref.Intent = model.Intent(intent)
	ref.CreatedAt = fromMillis(createdAt)
	if cancelledAt.Valid {
		t := fromMillis(cancelledAt.Int64)
		ref.CancelledAt = &t
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &ref.Metadata); err != nil {
			r.log.Warn("dropping undecodable reference metadata", zap.String("reference_id", ref.ID), zap.Error(err))
			ref.Metadata = nil
		}
	}
	return ref, nil
}

func encodeMetadata(meta map[string]any) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
