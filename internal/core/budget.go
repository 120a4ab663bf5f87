package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

type AlertKind string

const (
	AlertExceeded AlertKind = "exceeded"
	AlertWarning  AlertKind = "warning"
)

// AlertPolicy controls which alerts EvaluateBudgets raises. Exceeded alerts
// are always raised. A zero WarnRatio disables warnings.
type AlertPolicy struct {
	WarnRatio decimal.Decimal
}

// Alert is advisory; it never blocks a mutation.
type Alert struct {
	Kind     AlertKind `json:"kind"`
	Category string    `json:"category"`
	Spent    Money     `json:"spent"`
	Limit    Money     `json:"limit"`
}

// BudgetStatus is one row of the budget list.
type BudgetStatus struct {
	Category  string `json:"category"`
	Limit     Money  `json:"limit"`
	Spent     Money  `json:"spent"`
	Remaining Money  `json:"remaining"`
	// Progress is spent/limit in percent, rounded to one decimal place.
	Progress float64   `json:"progress"`
	Alert    AlertKind `json:"alert,omitempty"`
}

// ExceededOnly raises an alert only when spending is above the limit.
func ExceededOnly() AlertPolicy { return AlertPolicy{} }

// NewAlertPolicy builds a policy warning once spending reaches ratio of the
// limit. Ratios outside (0, 1] disable warnings.
func NewAlertPolicy(ratio float64) AlertPolicy {
	if ratio <= 0 || ratio > 1 {
		return AlertPolicy{}
	}
	return AlertPolicy{WarnRatio: decimal.NewFromFloat(ratio)}
}

// Classify returns the alert kind for spent against limit, or "" when none
// applies.
func (p AlertPolicy) Classify(spent, limit Money) AlertKind {
	if spent.Cents > limit.Cents {
		return AlertExceeded
	}
	if p.WarnRatio.IsPositive() {
		threshold := limit.Decimal().Mul(p.WarnRatio)
		if spent.Decimal().GreaterThanOrEqual(threshold) {
			return AlertWarning
		}
	}
	return ""
}

// EvaluateBudgets compares each budget with the expense total of its category
// in monthKey. Each budget yields at most one alert. Alerts are ordered by
// category.
func EvaluateBudgets(budgets []Budget, entries []Entry, monthKey string, p AlertPolicy) []Alert {
	spent := SumByCategory(InMonth(entries, monthKey), Expense)
	alerts := make([]Alert, 0)
	for _, b := range budgets {
		s := spent[b.Category]
		kind := p.Classify(s, b.Amount)
		if kind == "" {
			continue
		}
		alerts = append(alerts, Alert{Kind: kind, Category: b.Category, Spent: s, Limit: b.Amount})
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Category < alerts[j].Category })
	return alerts
}

// BudgetStatuses reports spending progress for every budget in monthKey,
// ordered by category.
func BudgetStatuses(budgets []Budget, entries []Entry, monthKey string, p AlertPolicy) []BudgetStatus {
	spent := SumByCategory(InMonth(entries, monthKey), Expense)
	out := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		s := spent[b.Category]
		var progress float64
		if b.Amount.Cents > 0 {
			progress, _ = s.Decimal().Div(b.Amount.Decimal()).Mul(decimal.NewFromInt(100)).Round(1).Float64()
		}
		out = append(out, BudgetStatus{
			Category:  b.Category,
			Limit:     b.Amount,
			Spent:     s,
			Remaining: b.Amount.Sub(s),
			Progress:  progress,
			Alert:     p.Classify(s, b.Amount),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
