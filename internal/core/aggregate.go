package core

import "sort"

// SumByCategory totals the entries of type typ per category. Categories
// without matching entries are absent from the result.
func SumByCategory(entries []Entry, typ EntryType) map[string]Money {
	out := make(map[string]Money)
	for _, e := range entries {
		if e.Type != typ {
			continue
		}
		out[e.Category] = out[e.Category].Add(e.Amount)
	}
	return out
}

// MonthTotals sums income and expense of the entries in monthKey.
func MonthTotals(entries []Entry, monthKey string) Totals {
	var t Totals
	for _, e := range entries {
		if e.Month != monthKey {
			continue
		}
		switch e.Type {
		case Income:
			t.Income = t.Income.Add(e.Amount)
		case Expense:
			t.Expense = t.Expense.Add(e.Amount)
		}
	}
	return t
}

// NetIncome is income minus expense.
func NetIncome(t Totals) Money {
	return t.Income.Sub(t.Expense)
}

// InMonth returns the entries whose month is monthKey.
func InMonth(entries []Entry, monthKey string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Month == monthKey {
			out = append(out, e)
		}
	}
	return out
}

// CompareMonths puts the expense breakdowns of two months side by side.
// Every category spent in either month gets a row; a month without spending
// in that category counts as zero. Rows are sorted by category.
func CompareMonths(entries []Entry, monthA, monthB string) Comparison {
	byA := SumByCategory(InMonth(entries, monthA), Expense)
	byB := SumByCategory(InMonth(entries, monthB), Expense)

	keys := make(map[string]struct{}, len(byA)+len(byB))
	for k := range byA {
		keys[k] = struct{}{}
	}
	for k := range byB {
		keys[k] = struct{}{}
	}

	rows := make([]CategoryDiff, 0, len(keys))
	for k := range keys {
		a, b := byA[k], byB[k]
		rows = append(rows, CategoryDiff{Category: k, AmountA: a, AmountB: b, Diff: a.Sub(b)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Category < rows[j].Category })

	return Comparison{
		MonthA:  monthA,
		MonthB:  monthB,
		TotalsA: MonthTotals(entries, monthA),
		TotalsB: MonthTotals(entries, monthB),
		Rows:    rows,
	}
}

// SortedCategoryAmounts turns a category map into a chart series, largest
// amount first with ties broken by name.
func SortedCategoryAmounts(m map[string]Money) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(m))
	for k, v := range m {
		out = append(out, CategoryAmount{Category: k, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// DailyTotals returns the per-day expense series of monthKey, ascending by
// date. Days without spending are omitted.
func DailyTotals(entries []Entry, monthKey string) []DayAmount {
	byDay := make(map[string]Money)
	for _, e := range entries {
		if e.Month != monthKey || e.Type != Expense {
			continue
		}
		d := e.Date.String()
		byDay[d] = byDay[d].Add(e.Amount)
	}
	out := make([]DayAmount, 0, len(byDay))
	for d, amt := range byDay {
		out = append(out, DayAmount{Date: d, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Overview builds the month summary shown on the monthly page.
func Overview(entries []Entry, monthKey string) MonthOverview {
	month := InMonth(entries, monthKey)
	totals := MonthTotals(month, monthKey)
	return MonthOverview{
		Month:      monthKey,
		Totals:     totals,
		Net:        NetIncome(totals),
		ByCategory: SortedCategoryAmounts(SumByCategory(month, Expense)),
		Daily:      DailyTotals(month, monthKey),
	}
}
