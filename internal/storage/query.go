package storage

import (
	"fmt"
	"strings"

	"accountbook/internal/core"
)

// placeholder renders the n-th (1-based) bind parameter of a dialect.
type placeholder func(n int) string

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// entryWhere translates the stored-field criteria of f into a WHERE clause.
// The description substring is matched in Go by filterDescription.
func entryWhere(ownerID string, f core.EntryFilter, ph placeholder, dateArg func(core.Date) any) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, ph(len(args))))
	}

	add("owner_id = %s", ownerID)
	if !f.From.IsZero() {
		add("date >= %s", dateArg(f.From))
	}
	if !f.To.IsZero() {
		add("date <= %s", dateArg(f.To))
	}
	if f.Category != "" {
		add("category = %s", f.Category)
	}
	if f.PaymentMethod != "" {
		add("payment_method = %s", f.PaymentMethod)
	}
	if f.MinAmount != nil {
		add("amount_cents >= %s", f.MinAmount.Cents)
	}
	if f.MaxAmount != nil {
		add("amount_cents <= %s", f.MaxAmount.Cents)
	}
	if f.Type != "" {
		add("type = %s", string(f.Type))
	}
	return strings.Join(conds, " AND "), args
}

const entryColumns = "id, owner_id, type, date, month, description, category, amount_cents, payment_method, created_at"

const entryOrder = "ORDER BY date DESC, created_at DESC, id ASC"

// filterDescription applies the part of f that is evaluated in Go.
func filterDescription(entries []core.Entry, f core.EntryFilter) []core.Entry {
	if strings.TrimSpace(f.Description) == "" {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if f.MatchesDescription(e) {
			out = append(out, e)
		}
	}
	return out
}
