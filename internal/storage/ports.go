package storage

import (
	"context"
	"errors"
	"time"

	"accountbook/internal/core"
)

// ErrEmailTaken is returned by CreateUser when the email is registered.
var ErrEmailTaken = errors.New("email already registered")

// EntryRepository stores ledger entries. Every method is scoped by owner;
// an id outside the owner's set behaves as missing.
type EntryRepository interface {
	InsertEntry(ctx context.Context, e core.Entry) error
	// UpdateEntry overwrites the mutable fields of an existing entry.
	UpdateEntry(ctx context.Context, e core.Entry) error
	DeleteEntry(ctx context.Context, ownerID, id string) error
	GetEntry(ctx context.Context, ownerID, id string) (core.Entry, error)
	// ListEntries returns matching entries newest first.
	ListEntries(ctx context.Context, ownerID string, f core.EntryFilter) ([]core.Entry, error)
	// EntryCategories lists the distinct categories the owner has used.
	EntryCategories(ctx context.Context, ownerID string) ([]string, error)
}

// BudgetRepository stores budgets keyed by (owner, category).
type BudgetRepository interface {
	UpsertBudget(ctx context.Context, b core.Budget) error
	DeleteBudget(ctx context.Context, ownerID, category string) error
	ListBudgets(ctx context.Context, ownerID string) ([]core.Budget, error)
}

// UserRepository backs the local identity provider.
type UserRepository interface {
	CreateUser(ctx context.Context, u core.User) error
	UserByEmail(ctx context.Context, email string) (core.User, error)
	UserByID(ctx context.Context, id string) (core.User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// Repository is everything a backend provides.
type Repository interface {
	EntryRepository
	BudgetRepository
	UserRepository
	Ping(ctx context.Context) error
	Close() error
}

func entryNotFound(id string) error { return &core.NotFoundError{Kind: "entry", ID: id} }

func budgetNotFound(category string) error { return &core.NotFoundError{Kind: "budget", ID: category} }

func userNotFound(key string) error { return &core.NotFoundError{Kind: "user", ID: key} }
