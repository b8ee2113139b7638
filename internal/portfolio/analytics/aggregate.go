// Package analytics derives the portfolio snapshot from an owner's holdings
// and their trailing cash flow.
package analytics

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/realvest/internal/finance"
	ledgerdomain "github.com/smallbiznis/realvest/internal/ledger/domain"
	"github.com/smallbiznis/realvest/internal/portfolio/domain"
)

// maxDiversityPerAxis caps the contribution of property types and of cities
// to the diversification score.
const maxDiversityPerAxis = 5

type Snapshot struct {
	PropertyCount          int
	TotalInvestment        decimal.Decimal
	PortfolioValue         decimal.Decimal
	TotalEquity            decimal.Decimal
	TotalDebt              decimal.Decimal
	TotalAppreciation      decimal.Decimal
	AppreciationPercentage decimal.Decimal
	AnnualCashFlow         decimal.Decimal
	MonthlyCashFlow        decimal.Decimal
	TotalMonthlyIncome     decimal.Decimal
	TotalMonthlyExpenses   decimal.Decimal
	CashOnCashReturn       decimal.Decimal
	TotalReturnPercentage  decimal.Decimal
	// PortfolioCapRate uses annual cash flow in place of NOI.
	PortfolioCapRate     decimal.Decimal
	DiversificationScore int
	TypeBreakdown        map[string]int
	CityBreakdown        map[string]int
}

// Valuate resolves the current value, outstanding debt and equity of one
// holding as of now. Debt is nil when it cannot be determined.
func Valuate(h domain.OwnedProperty, now time.Time) (value decimal.Decimal, debt *decimal.Decimal, equity decimal.Decimal) {
	value = finance.Or(h.CurrentEstimatedValue, h.PurchasePrice)

	debt = h.CurrentLoanBalance
	if debt == nil {
		debt = finance.RemainingBalance(h.Loan(), h.PurchaseDate, now)
	}

	switch {
	case h.CurrentEquity != nil:
		equity = *h.CurrentEquity
	case debt != nil:
		equity = value.Sub(*debt)
	default:
		equity = value
	}
	return value, debt, equity
}

// Aggregate recomputes the whole snapshot. cashFlow must already be limited to
// the trailing window ending at now. Every zero denominator yields 0.
func Aggregate(holdings []domain.Holding, cashFlow ledgerdomain.Summary, now time.Time) Snapshot {
	var (
		totalInvestment = finance.Zero
		portfolioValue  = finance.Zero
		totalEquity     = finance.Zero
		totalDebt       = finance.Zero
		downPayments    = finance.Zero
	)
	types := map[string]int{}
	cities := map[string]int{}

	for _, h := range holdings {
		value, debt, equity := Valuate(h.OwnedProperty, now)

		totalInvestment = totalInvestment.Add(h.PurchasePrice)
		portfolioValue = portfolioValue.Add(value)
		totalEquity = totalEquity.Add(equity)
		if debt != nil {
			totalDebt = totalDebt.Add(*debt)
		}
		if h.DownPayment != nil {
			downPayments = downPayments.Add(*h.DownPayment)
		}

		if key := breakdownKey(h.PropertyType()); key != "" {
			types[key]++
		}
		if key := breakdownKey(h.City()); key != "" {
			cities[key]++
		}
	}

	// no cash down recorded means the holdings were bought outright
	if !downPayments.IsPositive() {
		downPayments = totalInvestment
	}

	annualCashFlow := cashFlow.Income.Sub(cashFlow.Expense)
	totalAppreciation := portfolioValue.Sub(totalInvestment)

	return Snapshot{
		PropertyCount:          len(holdings),
		TotalInvestment:        finance.RoundCents(totalInvestment),
		PortfolioValue:         finance.RoundCents(portfolioValue),
		TotalEquity:            finance.RoundCents(totalEquity),
		TotalDebt:              finance.RoundCents(totalDebt),
		TotalAppreciation:      finance.RoundCents(totalAppreciation),
		AppreciationPercentage: finance.RoundCents(finance.SafePercent(totalAppreciation, totalInvestment)),
		AnnualCashFlow:         finance.RoundCents(annualCashFlow),
		MonthlyCashFlow:        finance.RoundCents(finance.Div(annualCashFlow, finance.Twelve)),
		TotalMonthlyIncome:     finance.RoundCents(finance.Div(cashFlow.Income, finance.Twelve)),
		TotalMonthlyExpenses:   finance.RoundCents(finance.Div(cashFlow.Expense, finance.Twelve)),
		CashOnCashReturn:       finance.RoundCents(finance.SafePercent(annualCashFlow, downPayments)),
		TotalReturnPercentage:  finance.RoundCents(finance.SafePercent(totalAppreciation.Add(annualCashFlow), totalInvestment)),
		PortfolioCapRate:       finance.RoundCents(finance.SafePercent(annualCashFlow, portfolioValue)),
		DiversificationScore:   min(len(types), maxDiversityPerAxis) + min(len(cities), maxDiversityPerAxis),
		TypeBreakdown:          types,
		CityBreakdown:          cities,
	}
}

func breakdownKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
