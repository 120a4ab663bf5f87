// Package memory is an in-process Repository used for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"accountbook/internal/core"
	"accountbook/internal/storage"
)

type budgetKey struct{ owner, category string }

// Store keeps every owner's data in maps guarded by one mutex. Values are
// copied in and out so callers never share state with the store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]core.Entry
	budgets map[budgetKey]core.Budget
	users   map[string]core.User
	emails  map[string]string
}

var _ storage.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		entries: make(map[string]core.Entry),
		budgets: make(map[budgetKey]core.Budget),
		users:   make(map[string]core.User),
		emails:  make(map[string]string),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) InsertEntry(_ context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	return nil
}

func (s *Store) UpdateEntry(_ context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[e.ID]
	if !ok || cur.OwnerID != e.OwnerID {
		return &core.NotFoundError{Kind: "entry", ID: e.ID}
	}
	e.CreatedAt = cur.CreatedAt
	s.entries[e.ID] = e
	return nil
}

func (s *Store) DeleteEntry(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[id]
	if !ok || cur.OwnerID != ownerID {
		return &core.NotFoundError{Kind: "entry", ID: id}
	}
	delete(s.entries, id)
	return nil
}

func (s *Store) GetEntry(_ context.Context, ownerID, id string) (core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok || e.OwnerID != ownerID {
		return core.Entry{}, &core.NotFoundError{Kind: "entry", ID: id}
	}
	return e, nil
}

func (s *Store) ListEntries(_ context.Context, ownerID string, f core.EntryFilter) ([]core.Entry, error) {
	s.mu.RLock()
	out := make([]core.Entry, 0)
	for _, e := range s.entries {
		if e.OwnerID == ownerID && f.Matches(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	core.SortNewestFirst(out)
	return out, nil
}

func (s *Store) EntryCategories(_ context.Context, ownerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, e := range s.entries {
		if e.OwnerID == ownerID {
			seen[e.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) UpsertBudget(_ context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[budgetKey{b.OwnerID, b.Category}] = b
	return nil
}

func (s *Store) DeleteBudget(_ context.Context, ownerID, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := budgetKey{ownerID, category}
	if _, ok := s.budgets[k]; !ok {
		return &core.NotFoundError{Kind: "budget", ID: category}
	}
	delete(s.budgets, k)
	return nil
}

func (s *Store) ListBudgets(_ context.Context, ownerID string) ([]core.Budget, error) {
	s.mu.RLock()
	out := make([]core.Budget, 0)
	for k, b := range s.budgets {
		if k.owner == ownerID {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[email]; taken {
		return storage.ErrEmailTaken
	}
	u.Email = email
	s.users[u.ID] = u
	s.emails[email] = u.ID
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return core.User{}, &core.NotFoundError{Kind: "user", ID: email}
	}
	return s.users[id], nil
}

func (s *Store) UserByID(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, &core.NotFoundError{Kind: "user", ID: id}
	}
	return u, nil
}

func (s *Store) UpdatePassword(_ context.Context, id, hash string) error {
	return s.updateUser(id, func(u *core.User) { u.PasswordHash = hash })
}

func (s *Store) TouchLogin(_ context.Context, id string, at time.Time) error {
	return s.updateUser(id, func(u *core.User) { u.LastLogin = at })
}

func (s *Store) updateUser(id string, fn func(*core.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return &core.NotFoundError{Kind: "user", ID: id}
	}
	fn(&u)
	s.users[id] = u
	return nil
}
