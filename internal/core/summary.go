package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Category string
	Amount   decimal.Decimal
}

// MonthAmount is the total spent in one period.
type MonthAmount struct {
	Period Period
	Amount decimal.Decimal
}

// BudgetStatus is the state of one budget for a period, derived from the ledger.
type BudgetStatus struct {
	Budget    Budget
	Period    Period
	Spent     decimal.Decimal
	Remaining decimal.Decimal
}
