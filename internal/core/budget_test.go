package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBudgetsExceeded(t *testing.T) {
	budgets := []Budget{{OwnerID: "u1", Category: "Food", Amount: FromUnits(40000)}}

	over := []Entry{
		entry("1", "2024-06-02", Expense, "Food", 30000),
		entry("2", "2024-06-09", Expense, "Food", 15000),
		entry("3", "2024-05-09", Expense, "Food", 99999),
		entry("4", "2024-06-09", Income, "Food", 99999),
	}
	alerts := EvaluateBudgets(budgets, over, "2024-06", ExceededOnly())
	require.Len(t, alerts, 1)
	assert.Equal(t, Alert{
		Kind:     AlertExceeded,
		Category: "Food",
		Spent:    FromUnits(45000),
		Limit:    FromUnits(40000),
	}, alerts[0])

	atLimit := []Entry{
		entry("1", "2024-06-02", Expense, "Food", 30000),
		entry("2", "2024-06-09", Expense, "Food", 10000),
	}
	assert.Empty(t, EvaluateBudgets(budgets, atLimit, "2024-06", ExceededOnly()))
	assert.Empty(t, EvaluateBudgets(budgets, nil, "2024-06", ExceededOnly()))
}

func TestEvaluateBudgetsWarning(t *testing.T) {
	budgets := []Budget{
		{Category: "외식", Amount: FromUnits(100000)},
		{Category: "그로서리", Amount: FromUnits(100000)},
		{Category: "고정비용", Amount: FromUnits(100000)},
	}
	entries := []Entry{
		entry("1", "2024-06-01", Expense, "외식", 80000),
		entry("2", "2024-06-01", Expense, "그로서리", 79999),
		entry("3", "2024-06-01", Expense, "고정비용", 100001),
	}
	alerts := EvaluateBudgets(budgets, entries, "2024-06", NewAlertPolicy(0.8))

	require.Len(t, alerts, 2)
	assert.Equal(t, "고정비용", alerts[0].Category)
	assert.Equal(t, AlertExceeded, alerts[0].Kind)
	assert.Equal(t, "외식", alerts[1].Category)
	assert.Equal(t, AlertWarning, alerts[1].Kind)

	assert.Len(t, EvaluateBudgets(budgets, entries, "2024-06", ExceededOnly()), 1)
}

func TestNewAlertPolicyBounds(t *testing.T) {
	assert.False(t, NewAlertPolicy(0).WarnRatio.IsPositive())
	assert.False(t, NewAlertPolicy(1.5).WarnRatio.IsPositive())
	assert.True(t, NewAlertPolicy(1).WarnRatio.IsPositive())
}

func TestBudgetStatuses(t *testing.T) {
	budgets := []Budget{
		{Category: "외식", Amount: FromUnits(200000)},
		{Category: "그로서리", Amount: FromUnits(100000)},
	}
	entries := []Entry{
		entry("1", "2024-06-01", Expense, "외식", 50000),
		entry("2", "2024-06-01", Expense, "그로서리", 120000),
	}
	got := BudgetStatuses(budgets, entries, "2024-06", ExceededOnly())

	require.Len(t, got, 2)
	assert.Equal(t, BudgetStatus{
		Category:  "그로서리",
		Limit:     FromUnits(100000),
		Spent:     FromUnits(120000),
		Remaining: FromUnits(-20000),
		Progress:  120,
		Alert:     AlertExceeded,
	}, got[0])
	assert.Equal(t, 25.0, got[1].Progress)
	assert.Equal(t, AlertKind(""), got[1].Alert)
}
