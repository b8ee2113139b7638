package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanTerms describes a fixed-rate, fully amortizing loan. Any nil field makes
// the loan unknown.
type LoanTerms struct {
	Principal         *decimal.Decimal
	AnnualRatePercent *decimal.Decimal
	TermYears         *int
}

// Complete reports whether every term needed for amortization is present and
// usable.
func (t LoanTerms) Complete() bool {
	if t.Principal == nil || t.AnnualRatePercent == nil || t.TermYears == nil {
		return false
	}
	if t.Principal.IsNegative() || t.AnnualRatePercent.IsNegative() {
		return false
	}
	return *t.TermYears > 0
}

func (t LoanTerms) totalPayments() int {
	return *t.TermYears * 12
}

func (t LoanTerms) monthlyRate() decimal.Decimal {
	return Div(*t.AnnualRatePercent, Hundred.Mul(Twelve))
}

// MonthlyPayment returns the level payment for the loan at working precision,
// or nil when the terms are incomplete.
func MonthlyPayment(t LoanTerms) *decimal.Decimal {
	if !t.Complete() {
		return nil
	}
	payment := monthlyPayment(*t.Principal, t.monthlyRate(), t.totalPayments())
	return &payment
}

func monthlyPayment(principal, rate decimal.Decimal, n int) decimal.Decimal {
	if rate.IsZero() {
		return Div(principal, decimal.NewFromInt(int64(n)))
	}
	// P*r / (1 - (1+r)^-n), expressed with the discount factor v = 1/(1+r).
	discount := Div(One, One.Add(rate))
	denom := One.Sub(powRound(discount, n))
	return Div(principal.Mul(rate), denom)
}

// RemainingBalance returns the outstanding principal as of asOf, rounded to
// cents. It returns nil when any loan term is missing. The balance is zero
// once every scheduled payment has elapsed.
func RemainingBalance(t LoanTerms, purchaseDate, asOf time.Time) *decimal.Decimal {
	if !t.Complete() {
		return nil
	}

	n := t.totalPayments()
	elapsed := MonthsBetween(purchaseDate, asOf)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= n {
		return Ptr(Zero)
	}

	principal := *t.Principal
	remaining := n - elapsed
	rate := t.monthlyRate()

	if rate.IsZero() {
		balance := Div(principal.Mul(decimal.NewFromInt(int64(remaining))), decimal.NewFromInt(int64(n)))
		return Ptr(RoundCents(balance))
	}

	payment := monthlyPayment(principal, rate, n)
	discount := Div(One, One.Add(rate))
	annuity := Div(One.Sub(powRound(discount, remaining)), rate)
	return Ptr(RoundCents(payment.Mul(annuity)))
}

// MonthsBetween counts whole calendar months from start to end. A month is
// counted only once the day of month of start has been reached. The result is
// negative when end precedes start.
func MonthsBetween(start, end time.Time) int {
	start = start.UTC()
	end = end.UTC()
	if end.Before(start) {
		return -MonthsBetween(end, start)
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() < start.Day() {
		months--
	}
	return months
}
