package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Category string `json:"category"`
	Amount   Money  `json:"amount"`
}

// Totals holds the income and expense sums of one month.
type Totals struct {
	Income  Money `json:"income"`
	Expense Money `json:"expense"`
}

// CategoryDiff is one row of a month comparison. Diff is A minus B and may
// be negative.
type CategoryDiff struct {
	Category string `json:"category"`
	AmountA  Money  `json:"amountA"`
	AmountB  Money  `json:"amountB"`
	Diff     Money  `json:"diff"`
}

// Comparison is the result of CompareMonths.
type Comparison struct {
	MonthA  string         `json:"monthA"`
	MonthB  string         `json:"monthB"`
	TotalsA Totals         `json:"totalsA"`
	TotalsB Totals         `json:"totalsB"`
	Rows    []CategoryDiff `json:"categories"`
}

// DayAmount is one point of a daily expense series.
type DayAmount struct {
	Date   string `json:"date"`
	Amount Money  `json:"amount"`
}

// MonthOverview is a compact summary for a specific month.
type MonthOverview struct {
	Month      string           `json:"month"`
	Totals     Totals           `json:"totals"`
	Net        Money            `json:"net"`
	ByCategory []CategoryAmount `json:"byCategory"`
	Daily      []DayAmount      `json:"daily"`
}
