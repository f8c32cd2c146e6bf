// Package repository defines the persistence layer of the ledger and the
// error values it shares with higher layers.  Handlers distinguish failure
// scenarios with errors.Is: ErrForbidden means the caller does not own the
// resource, ErrDuplicateRegistration means a live reference with the same
// composite key already exists, and ErrStoreUnavailable means the database
// could not serve the request at all.
package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a reference (or other record) does not
// exist.  Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// reference they do not own, or registers someone who is not linked to
// them.  Handlers should translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrDuplicateRegistration is returned when a live reference with the same
// registrant, event, scope and occurrence already exists.  Handlers should
// translate this into an HTTP 409 response.
var ErrDuplicateRegistration = errors.New("duplicate registration")

// ErrStoreUnavailable is matched by every storage failure that is not a
// domain outcome.  Handlers should translate this into an HTTP 503
// response.  The ledger never retries internally.
var ErrStoreUnavailable = errors.New("registration store unavailable")

// DuplicateError carries the identity of the live reference that blocked
// an insert so callers can point the user at it.  It matches
// ErrDuplicateRegistration.
type DuplicateError struct {
	CompositeKey string
	ExistingID   string
}

func (e *DuplicateError) Error() string {
	if e.ExistingID == "" {
		return ErrDuplicateRegistration.Error()
	}
	return fmt.Sprintf("%s: existing reference %s", ErrDuplicateRegistration, e.ExistingID)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicateRegistration }

// StoreError wraps a driver error with the repository operation that
// produced it.  It matches ErrStoreUnavailable and unwraps to the cause.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
