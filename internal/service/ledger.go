// Package service coordinates the registration ledger: it validates and
// authorizes requests, resolves scope against the catalog, writes to the
// store and assembles the "My Events" projection.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/event-registration-ledger/internal/catalog"
	"github.com/iliyamo/event-registration-ledger/internal/model"
	"github.com/iliyamo/event-registration-ledger/internal/projection"
	"github.com/iliyamo/event-registration-ledger/internal/queue"
	"github.com/iliyamo/event-registration-ledger/internal/repository"
	"github.com/iliyamo/event-registration-ledger/internal/scope"
)

var (
	// ErrInvalidInput is returned when a request is missing required fields
	// or carries values outside the known enumerations.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCatalogUnavailable is returned by Register when the event catalog
	// cannot be reached.  Reads degrade instead of failing.
	ErrCatalogUnavailable = errors.New("event catalog unavailable")
)

// RegistrationStore is the persistence the ledger needs.
// *repository.RegistrationRepo implements it.
type RegistrationStore interface {
	Put(ctx context.Context, ref model.RegistrationReference) error
	Get(ctx context.Context, id string) (model.RegistrationReference, error)
	ListByOwner(ctx context.Context, ownerID string, includeFamily bool, familyIDs []string) ([]model.RegistrationReference, error)
	SoftDelete(ctx context.Context, id string, at time.Time) (bool, error)
}

// FamilyProvider lists the registrants an owner may act for, in display
// order.
type FamilyProvider interface {
	GetFamilyMembers(ctx context.Context, ownerID string) ([]model.FamilyMember, error)
}

// EventPublisher emits registration events.  *queue.Publisher implements
// it.  Publish is called on the request path and must not wait on the
// network.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.RegistrationEvent) error
}

// RegisterInput is the request to create a registration.  An empty
// RegistrantID, or one equal to OwnerID, registers the owner.
type RegisterInput struct {
	OwnerID         string
	RegistrantID    string
	EventID         string
	OccurrenceStart *time.Time
	Intent          model.Intent
	Metadata        map[string]any
}

// LedgerService implements register, listMyEvents and cancel on top of
// the store and its read-only collaborators.
type LedgerService struct {
	store          RegistrationStore
	catalog        catalog.Reader
	family         FamilyProvider
	publisher      EventPublisher
	log            *zap.Logger
	catalogTimeout time.Duration
	now            func() time.Time
	newID          func() string
}

// Option customizes a LedgerService.
type Option func(*LedgerService)

// WithCatalogTimeout bounds each batched catalog lookup.
func WithCatalogTimeout(d time.Duration) Option {
	return func(s *LedgerService) {
		if d > 0 {
			s.catalogTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// WithIDGenerator replaces the random reference ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *LedgerService) { s.newID = gen }
}

// NewLedgerService wires the service.  publisher may be nil, in which case
// no events are emitted.
func NewLedgerService(store RegistrationStore, events catalog.Reader, family FamilyProvider, publisher EventPublisher, log *zap.Logger, opts ...Option) *LedgerService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &LedgerService{
		store:          store,
		catalog:        events,
		family:         family,
		publisher:      publisher,
		log:            log,
		catalogTimeout: 2 * time.Second,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a live reference for the registrant and returns it.
//
// The registrant must be the owner or one of the owner's family members
// (ErrForbidden otherwise).  The event must exist and be published
// (ErrNotFound).  A recurring event needs an occurrence start
// (scope.ErrAmbiguousScope).  A second live registration with the same
// registrant, event, scope and occurrence fails with a
// *repository.DuplicateError naming the existing reference.
func (s *LedgerService) Register(ctx context.Context, in RegisterInput) (model.RegistrationReference, error) {
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.RegistrantID = strings.TrimSpace(in.RegistrantID)
	in.EventID = strings.TrimSpace(in.EventID)
	switch {
	case in.OwnerID == "":
		return model.RegistrationReference{}, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	case in.EventID == "":
		return model.RegistrationReference{}, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	case !in.Intent.Valid():
		return model.RegistrationReference{}, fmt.Errorf("%w: unknown intent %q", ErrInvalidInput, in.Intent)
	}

	registrant := in.RegistrantID
	if registrant == "" || registrant == in.OwnerID {
		registrant = in.OwnerID
	} else {
		members, err := s.family.GetFamilyMembers(ctx, in.OwnerID)
		if err != nil {
			return model.RegistrationReference{}, fmt.Errorf("load family: %w", err)
		}
		if !containsRegistrant(members, registrant) {
			return model.RegistrationReference{}, repository.ErrForbidden
		}
	}

	events, err := s.lookupEvents(ctx, []string{in.EventID})
	if err != nil {
		return model.RegistrationReference{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	event, ok := events[in.EventID]
	if !ok || !event.IsPublished {
		return model.RegistrationReference{}, fmt.Errorf("event %s: %w", in.EventID, repository.ErrNotFound)
	}

	res, err := scope.Resolve(event, in.OccurrenceStart)
	if err != nil {
		return model.RegistrationReference{}, err
	}

	ref := model.RegistrationReference{
		ID:            s.newID(),
		OwnerID:       in.OwnerID,
		RegistrantID:  registrant,
		EventID:       in.EventID,
		Scope:         res.Scope,
		OccurrenceKey: res.OccurrenceKey,
		Intent:        in.Intent,
		CompositeKey:  scope.CompositeKey(registrant, in.EventID, res.Scope, res.OccurrenceKey),
		CreatedAt:     s.now(),
		Metadata:      in.Metadata,
	}
	if err := s.store.Put(ctx, ref); err != nil {
		return model.RegistrationReference{}, err
	}
	s.log.Info("registration created",
		zap.String("reference_id", ref.ID),
		zap.String("owner_id", ref.OwnerID),
		zap.String("event_id", ref.EventID),
		zap.String("scope", string(ref.Scope)),
	)
	s.publish(ctx, queue.TypeRegistrationCreated, ref)
	return ref, nil
}

// ListMyEvents returns the owner's projection: one group per event or
// occurrence, owner first within each group.  With includeFamily the
// registrations of the owner's family members are included even when
// someone else created them.
//
// Failures of the family provider or the catalog degrade the result
// (no family ordering, rows flagged EventUnavailable) instead of failing
// it.  Only a store failure is returned as an error.
func (s *LedgerService) ListMyEvents(ctx context.Context, ownerID string, includeFamily bool) ([]model.ProjectedEventGroup, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	family := s.familyOf(ctx, ownerID)
	refs, err := s.store.ListByOwner(ctx, ownerID, includeFamily, registrantIDs(family))
	if err != nil {
		return nil, err
	}
	events := s.eventsOrNil(ctx, projection.EventIDs(refs))
	return projection.Group(projection.Build(refs, events), ownerID, family), nil
}

// Cancel soft deletes one reference and returns the recomputed group it
// belonged to.  Only the reference's owner may cancel it, and that check
// happens before the cancelled state is looked at so other callers learn
// nothing about it.  Cancelling an already cancelled reference succeeds.
// Other registrants in the same group are never touched; when none remain
// the group comes back with an empty entry list.
func (s *LedgerService) Cancel(ctx context.Context, requesterID, referenceID string) (model.ProjectedEventGroup, error) {
	ref, err := s.authorizedReference(ctx, requesterID, referenceID)
	if err != nil {
		return model.ProjectedEventGroup{}, err
	}

	at := s.now()
	changed, err := s.store.SoftDelete(ctx, ref.ID, at)
	if err != nil {
		return model.ProjectedEventGroup{}, err
	}
	if changed {
		s.log.Info("registration cancelled",
			zap.String("reference_id", ref.ID),
			zap.String("owner_id", ref.OwnerID),
			zap.String("event_id", ref.EventID),
		)
		s.publish(ctx, queue.TypeRegistrationCancelled, ref)
	}
	return s.groupFor(ctx, ref.OwnerID, model.KeyOf(ref))
}

// GetReference returns one reference, live or cancelled, to its owner.
func (s *LedgerService) GetReference(ctx context.Context, requesterID, referenceID string) (model.RegistrationReference, error) {
	return s.authorizedReference(ctx, requesterID, referenceID)
}

func (s *LedgerService) authorizedReference(ctx context.Context, requesterID, referenceID string) (model.RegistrationReference, error) {
	requesterID = strings.TrimSpace(requesterID)
	referenceID = strings.TrimSpace(referenceID)
	if requesterID == "" || referenceID == "" {
		return model.RegistrationReference{}, fmt.Errorf("%w: requester and reference id are required", ErrInvalidInput)
	}
	ref, err := s.store.Get(ctx, referenceID)
	if err != nil {
		return model.RegistrationReference{}, err
	}
	if ref.OwnerID != requesterID {
		return model.RegistrationReference{}, repository.ErrForbidden
	}
	return ref, nil
}

// groupFor rebuilds the single group identified by key from current store
// state.
func (s *LedgerService) groupFor(ctx context.Context, ownerID string, key model.GroupKey) (model.ProjectedEventGroup, error) {
	family := s.familyOf(ctx, ownerID)
	refs, err := s.store.ListByOwner(ctx, ownerID, true, registrantIDs(family))
	if err != nil {
		return model.ProjectedEventGroup{}, err
	}
	var inGroup []model.RegistrationReference
	for _, r := range refs {
		if model.KeyOf(r) == key {
			inGroup = append(inGroup, r)
		}
	}
	events := s.eventsOrNil(ctx, []string{key.EventID})
	if g, ok := projection.Find(projection.Group(projection.Build(inGroup, events), ownerID, family), key); ok {
		return g, nil
	}

	ev, ok := events[key.EventID]
	if !ok {
		ev = model.EventSummary{EventID: key.EventID}
	}
	return model.ProjectedEventGroup{
		GroupKey:         key,
		Event:            ev,
		EventUnavailable: !ok || !ev.IsPublished,
		Entries:          []model.ProjectedEntry{},
	}, nil
}

func (s *LedgerService) lookupEvents(ctx context.Context, ids []string) (map[string]model.EventSummary, error) {
	if len(ids) == 0 {
		return map[string]model.EventSummary{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	defer cancel()
	return s.catalog.GetEventsBatch(ctx, ids)
}

// eventsOrNil is lookupEvents for read paths: a failure is logged and
// yields a nil map, which flags every row EventUnavailable.
func (s *LedgerService) eventsOrNil(ctx context.Context, ids []string) map[string]model.EventSummary {
	events, err := s.lookupEvents(ctx, ids)
	if err != nil {
		s.log.Warn("catalog lookup failed, serving degraded projection", zap.Int("events", len(ids)), zap.Error(err))
		return nil
	}
	return events
}

func (s *LedgerService) familyOf(ctx context.Context, ownerID string) []model.FamilyMember {
	members, err := s.family.GetFamilyMembers(ctx, ownerID)
	if err != nil {
		s.log.Warn("family lookup failed", zap.String("owner_id", ownerID), zap.Error(err))
		return nil
	}
	return members
}

func (s *LedgerService) publish(ctx context.Context, eventType string, ref model.RegistrationReference) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, queue.NewRegistrationEvent(eventType, ref, s.now())); err != nil {
		s.log.Warn("publish registration event failed",
			zap.String("type", eventType),
			zap.String("reference_id", ref.ID),
			zap.Error(err),
		)
	}
}

func containsRegistrant(members []model.FamilyMember, id string) bool {
	for _, m := range members {
		if m.RegistrantID == id {
			return true
		}
	}
	return false
}

func registrantIDs(members []model.FamilyMember) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.RegistrantID)
	}
	return ids
}
