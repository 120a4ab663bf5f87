package services

import (
	"context"
	"strings"
	"time"

	"accountbook/internal/amqp"
	"accountbook/internal/core"
	"accountbook/internal/log"
	"accountbook/internal/storage"
)

// BudgetRepository is what budget evaluation needs from storage.
type BudgetRepository interface {
	storage.BudgetRepository
	ListEntries(ctx context.Context, ownerID string, f core.EntryFilter) ([]core.Entry, error)
}

// BudgetService manages monthly category budgets and evaluates them
// against the current month's spending.
type BudgetService struct {
	repo   BudgetRepository
	policy core.AlertPolicy
	notify *notifier
	logger *log.Logger
	now    func() time.Time
}

func NewBudgetService(repo BudgetRepository, policy core.AlertPolicy, publisher ChangePublisher, logger *log.Logger, invalidators ...Invalidator) *BudgetService {
	logger = logger.WithComponent(log.ComponentBudget)
	return &BudgetService{
		repo:   repo,
		policy: policy,
		notify: &notifier{publisher: publisher, invalidators: invalidators, logger: logger},
		logger: logger,
		now:    time.Now,
	}
}

func (s *BudgetService) WithClock(now func() time.Time) *BudgetService {
	s.now = defaultClock(now)
	return s
}

// CurrentMonth is the month budgets are evaluated against.
func (s *BudgetService) CurrentMonth() string {
	return core.CurrentMonthKey(s.now())
}

// UpsertBudget sets the limit of a category. selected may be the "other"
// selector, in which case custom names the category.
func (s *BudgetService) UpsertBudget(ctx context.Context, ownerID, selected, custom, amount string) (core.Budget, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Budget{}, err
	}
	category, err := core.ResolveCategory(selected, custom)
	if err != nil {
		return core.Budget{}, &core.ValidationError{Field: "category", Err: err}
	}
	limit, err := core.ParsePositiveAmount(amount)
	if err != nil {
		return core.Budget{}, &core.ValidationError{Field: "amount", Err: err}
	}
	b := core.Budget{
		OwnerID:   ownerID,
		Category:  category,
		Amount:    limit,
		UpdatedAt: s.now().UTC(),
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if err := s.repo.UpsertBudget(ctx, b); err != nil {
		return core.Budget{}, core.Unavailable("upsert budget", err)
	}

	s.logger.InfoContext(ctx, "Budget saved",
		log.FieldOwnerID, ownerID,
		log.FieldCategory, category,
		log.FieldAmountCents, limit.Cents)
	s.notify.changed(ctx, budgetMessage(amqp.BudgetUpserted, ownerID, category))
	return b, nil
}

func (s *BudgetService) DeleteBudget(ctx context.Context, ownerID, category string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	category = strings.TrimSpace(category)
	if err := s.repo.DeleteBudget(ctx, ownerID, category); err != nil {
		return core.Unavailable("delete budget", err)
	}
	s.logger.InfoContext(ctx, "Budget deleted", log.FieldOwnerID, ownerID, log.FieldCategory, category)
	s.notify.changed(ctx, budgetMessage(amqp.BudgetDeleted, ownerID, category))
	return nil
}

func (s *BudgetService) ListBudgets(ctx context.Context, ownerID string) ([]core.Budget, error) {
	budgets, err := s.repo.ListBudgets(ctx, ownerID)
	if err != nil {
		return nil, core.Unavailable("list budgets", err)
	}
	return budgets, nil
}

// Alerts evaluates the owner's budgets for the current month.
func (s *BudgetService) Alerts(ctx context.Context, ownerID string) ([]core.Alert, error) {
	return s.AlertsForMonth(ctx, ownerID, s.CurrentMonth())
}

func (s *BudgetService) AlertsForMonth(ctx context.Context, ownerID, month string) ([]core.Alert, error) {
	budgets, entries, err := s.load(ctx, ownerID, month)
	if err != nil {
		return nil, err
	}
	return core.EvaluateBudgets(budgets, entries, month, s.policy), nil
}

// Statuses returns the budget list rows for the current month.
func (s *BudgetService) Statuses(ctx context.Context, ownerID string) ([]core.BudgetStatus, error) {
	month := s.CurrentMonth()
	budgets, entries, err := s.load(ctx, ownerID, month)
	if err != nil {
		return nil, err
	}
	return core.BudgetStatuses(budgets, entries, month, s.policy), nil
}

func (s *BudgetService) load(ctx context.Context, ownerID, month string) ([]core.Budget, []core.Entry, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, nil, err
	}
	f, err := monthBounds(month)
	if err != nil {
		return nil, nil, err
	}
	budgets, err := s.repo.ListBudgets(ctx, ownerID)
	if err != nil {
		return nil, nil, core.Unavailable("list budgets", err)
	}
	if len(budgets) == 0 {
		return nil, nil, nil
	}
	f.Type = core.Expense
	entries, err := s.repo.ListEntries(ctx, ownerID, f)
	if err != nil {
		return nil, nil, core.Unavailable("list entries", err)
	}
	return budgets, entries, nil
}

func budgetMessage(kind amqp.ChangeKind, ownerID, category string) *amqp.ChangeMessage {
	msg := amqp.NewChangeMessage(kind, ownerID)
	msg.Category = category
	return msg
}
