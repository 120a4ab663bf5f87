package core

import (
	"sort"
	"strings"
)

// EntryFilter selects entries for list views. Zero values mean "any".
// Date bounds and amount bounds are inclusive.
type EntryFilter struct {
	From          Date
	To            Date
	Category      string
	PaymentMethod string
	MinAmount     *Money
	MaxAmount     *Money
	Description   string
	Type          EntryType
}

// Matches reports whether e satisfies every set criterion.
func (f EntryFilter) Matches(e Entry) bool {
	if !f.MatchesStored(e) {
		return false
	}
	return f.MatchesDescription(e)
}

// MatchesStored checks the criteria SQL backends push into their queries.
func (f EntryFilter) MatchesStored(e Entry) bool {
	if !f.From.IsZero() && e.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To.Time) {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.PaymentMethod != "" && e.PaymentMethod != f.PaymentMethod {
		return false
	}
	if f.MinAmount != nil && e.Amount.Cents < f.MinAmount.Cents {
		return false
	}
	if f.MaxAmount != nil && e.Amount.Cents > f.MaxAmount.Cents {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	return true
}

// MatchesDescription is the case-insensitive substring test on description.
func (f EntryFilter) MatchesDescription(e Entry) bool {
	q := strings.TrimSpace(f.Description)
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Description), strings.ToLower(q))
}

// FilterEntries returns the entries matching f in input order.
func FilterEntries(entries []Entry, f EntryFilter) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// SortNewestFirst orders entries by date descending. Ties fall back to
// creation time descending and then id so the order is total.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// SortOldestFirst is the export order for a single month.
func SortOldestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
