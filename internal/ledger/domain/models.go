package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a cash movement.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

type Category string

const (
	CategoryRent        Category = "rent"
	CategoryMortgage    Category = "mortgage"
	CategoryTaxes       Category = "taxes"
	CategoryInsurance   Category = "insurance"
	CategoryMaintenance Category = "maintenance"
	CategoryManagement  Category = "management"
	CategoryUtilities   Category = "utilities"
	CategoryHOA         Category = "hoa"
	CategoryRepairs     Category = "repairs"
	CategoryOther       Category = "other"
)

var knownCategories = map[Category]struct{}{
	CategoryRent:        {},
	CategoryMortgage:    {},
	CategoryTaxes:       {},
	CategoryInsurance:   {},
	CategoryMaintenance: {},
	CategoryManagement:  {},
	CategoryUtilities:   {},
	CategoryHOA:         {},
	CategoryRepairs:     {},
	CategoryOther:       {},
}

// Transaction is one dated income or expense of an owned property. Rows are
// historical facts; only correction edits change them.
type Transaction struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	OwnerID         snowflake.ID    `gorm:"not null;index:idx_ledger_tx_owner_date,priority:1" json:"owner_id"`
	OwnedPropertyID snowflake.ID    `gorm:"not null;index" json:"owned_property_id"`
	Type            TransactionType `gorm:"type:text;not null" json:"type"`
	Category        Category        `gorm:"type:text;not null" json:"category"`
	Amount          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	OccurredOn      time.Time       `gorm:"not null;index:idx_ledger_tx_owner_date,priority:2" json:"occurred_on"`
	Description     string          `json:"description,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (Transaction) TableName() string { return "ledger_transactions" }

// Window is an inclusive range of calendar days.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether the day of t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	day := Day(t)
	return !day.Before(Day(w.From)) && !day.After(Day(w.To))
}

// TrailingYear is the 365 days before now's day through now's day.
func TrailingYear(now time.Time) Window {
	today := Day(now)
	return Window{From: today.AddDate(0, 0, -365), To: today}
}

// Month is the calendar month containing t.
func Month(t time.Time) Window {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{From: start, To: start.AddDate(0, 1, -1)}
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type Summary struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
	Count   int             `json:"count"`
}

// Summarize totals the transactions falling inside window. An empty set
// yields zeros.
func Summarize(txns []Transaction, window Window) Summary {
	sum := Summary{Income: decimal.Zero, Expense: decimal.Zero}
	for _, tx := range txns {
		if !window.Contains(tx.OccurredOn) {
			continue
		}
		switch tx.Type {
		case TransactionTypeIncome:
			sum.Income = sum.Income.Add(tx.Amount)
		case TransactionTypeExpense:
			sum.Expense = sum.Expense.Add(tx.Amount)
		default:
			continue
		}
		sum.Count++
	}
	sum.Net = sum.Income.Sub(sum.Expense)
	return sum
}

// MaxSeriesMonths bounds the length of a monthly cash-flow series.
const MaxSeriesMonths = 120

type MonthlyPoint struct {
	Month string `json:"month"`
	Summary
}

// MonthlySeries summarizes the last months calendar months up to now, oldest
// first.
func MonthlySeries(txns []Transaction, months int, now time.Time) []MonthlyPoint {
	if months <= 0 {
		return []MonthlyPoint{}
	}
	current := Month(now).From
	points := make([]MonthlyPoint, 0, months)
	for i := months - 1; i >= 0; i-- {
		window := Month(current.AddDate(0, -i, 0))
		points = append(points, MonthlyPoint{
			Month:   window.From.Format("2006-01"),
			Summary: Summarize(txns, window),
		})
	}
	return points
}
