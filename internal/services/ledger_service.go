package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"accountbook/internal/amqp"
	"accountbook/internal/core"
	"accountbook/internal/log"
	"accountbook/internal/storage"
)

// LedgerService validates and stores income and expense entries.
type LedgerService struct {
	repo   storage.EntryRepository
	notify *notifier
	audit  *log.StructuredLogger
	logger *log.Logger
	now    func() time.Time
}

func NewLedgerService(repo storage.EntryRepository, publisher ChangePublisher, logger *log.Logger, invalidators ...Invalidator) *LedgerService {
	logger = logger.WithComponent(log.ComponentLedger)
	return &LedgerService{
		repo:   repo,
		notify: &notifier{publisher: publisher, invalidators: invalidators, logger: logger},
		audit:  log.NewStructuredLogger(logger),
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for createdAt and the default date.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = defaultClock(now)
	return s
}

// CreateEntry validates in and saves a new entry for owner.
func (s *LedgerService) CreateEntry(ctx context.Context, ownerID string, in core.EntryInput) (core.Entry, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Entry{}, err
	}
	now := s.now()
	e := core.Entry{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		CreatedAt: now.UTC(),
	}
	if err := e.Apply(in, core.Today(now)); err != nil {
		return core.Entry{}, err
	}
	if err := s.repo.InsertEntry(ctx, e); err != nil {
		return core.Entry{}, core.Unavailable("insert entry", err)
	}

	s.audit.LogEntryChanged(ctx, log.OpCreate, ownerID, e.ID, string(e.Type), e.Month, e.Category, e.Amount.Cents)
	s.notify.changed(ctx, entryMessage(amqp.EntryCreated, e))
	return e, nil
}

// UpdateEntry overwrites the editable fields of an existing entry.
func (s *LedgerService) UpdateEntry(ctx context.Context, ownerID, id string, in core.EntryInput) (core.Entry, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Entry{}, err
	}
	e, err := s.repo.GetEntry(ctx, ownerID, id)
	if err != nil {
		return core.Entry{}, core.Unavailable("get entry", err)
	}
	if err := e.Apply(in, core.Today(s.now())); err != nil {
		return core.Entry{}, err
	}
	if err := s.repo.UpdateEntry(ctx, e); err != nil {
		return core.Entry{}, core.Unavailable("update entry", err)
	}

	s.audit.LogEntryChanged(ctx, log.OpUpdate, ownerID, e.ID, string(e.Type), e.Month, e.Category, e.Amount.Cents)
	s.notify.changed(ctx, entryMessage(amqp.EntryUpdated, e))
	return e, nil
}

// DeleteEntry removes an entry. The caller must pass confirmed=true; a
// missing id returns a NotFoundError and changes nothing.
func (s *LedgerService) DeleteEntry(ctx context.Context, ownerID, id string, confirmed bool) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if !confirmed {
		return &core.ValidationError{Field: "confirm", Err: core.ErrConfirmationRequired}
	}
	e, err := s.repo.GetEntry(ctx, ownerID, id)
	if err != nil {
		return core.Unavailable("get entry", err)
	}
	if err := s.repo.DeleteEntry(ctx, ownerID, id); err != nil {
		return core.Unavailable("delete entry", err)
	}

	s.audit.LogEntryChanged(ctx, log.OpDelete, ownerID, e.ID, string(e.Type), e.Month, e.Category, e.Amount.Cents)
	s.notify.changed(ctx, entryMessage(amqp.EntryDeleted, e))
	return nil
}

// GetEntry returns one entry of owner.
func (s *LedgerService) GetEntry(ctx context.Context, ownerID, id string) (core.Entry, error) {
	e, err := s.repo.GetEntry(ctx, ownerID, id)
	if err != nil {
		return core.Entry{}, core.Unavailable("get entry", err)
	}
	return e, nil
}

// ListEntries returns the owner's entries matching f, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, ownerID string, f core.EntryFilter) ([]core.Entry, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, ownerID, f)
	if err != nil {
		return nil, core.Unavailable("list entries", err)
	}
	return entries, nil
}

// Categories returns the choices for the list filter.
func (s *LedgerService) Categories(ctx context.Context, ownerID string) ([]string, error) {
	used, err := s.repo.EntryCategories(ctx, ownerID)
	if err != nil {
		return nil, core.Unavailable("list categories", err)
	}
	return core.FilterCategories(used), nil
}

func entryMessage(kind amqp.ChangeKind, e core.Entry) *amqp.ChangeMessage {
	msg := amqp.NewChangeMessage(kind, e.OwnerID)
	msg.EntryID = e.ID
	msg.Month = e.Month
	msg.Category = e.Category
	return msg
}
