package finance

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loanTerms(principal, rate string, years int) LoanTerms {
	t := LoanTerms{TermYears: &years}
	if principal != "" {
		p := decimal.RequireFromString(principal)
		t.Principal = &p
	}
	if rate != "" {
		r := decimal.RequireFromString(rate)
		t.AnnualRatePercent = &r
	}
	return t
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func closedFormBalance(principal, annualRate float64, years, elapsed int) float64 {
	r := annualRate / 100 / 12
	n := float64(years * 12)
	remaining := n - float64(elapsed)
	return principal * (1 - math.Pow(1+r, -remaining)) / (1 - math.Pow(1+r, -n))
}

func TestRemainingBalance_ThirtyYearFixedAfterFifteenYears(t *testing.T) {
	loan := loanTerms("300000", "6", 30)
	got := RemainingBalance(loan, date(2010, time.March, 1), date(2025, time.March, 1))
	require.NotNil(t, got)

	want := closedFormBalance(300000, 6, 30, 180)
	assert.InDelta(t, want, got.InexactFloat64(), 0.011)
	assert.True(t, got.Equal(got.Round(2)), "balance is rounded to cents")
}

func TestRemainingBalance_ZeroRateIsStraightLine(t *testing.T) {
	loan := loanTerms("120000", "0", 10)
	purchase := date(2020, time.January, 10)
	for _, elapsed := range []int{0, 1, 17, 60, 119} {
		got := RemainingBalance(loan, purchase, purchase.AddDate(0, elapsed, 0))
		require.NotNil(t, got)

		want := decimal.NewFromInt(120000).
			Mul(decimal.NewFromInt(int64(120 - elapsed))).
			Div(decimal.NewFromInt(120)).
			Round(2)
		assert.True(t, want.Equal(*got), "elapsed=%d want=%s got=%s", elapsed, want, got)
	}
}

func TestRemainingBalance_PastTermIsZero(t *testing.T) {
	loan := loanTerms("250000", "4.5", 15)

	got := RemainingBalance(loan, date(2000, time.June, 1), date(2015, time.June, 1))
	require.NotNil(t, got)
	assert.True(t, got.IsZero())

	got = RemainingBalance(loan, date(2000, time.June, 1), date(2040, time.June, 1))
	require.NotNil(t, got)
	assert.True(t, got.IsZero())
}

func TestRemainingBalance_BeforePurchaseIsFullPrincipal(t *testing.T) {
	loan := loanTerms("100000", "5", 30)
	got := RemainingBalance(loan, date(2024, time.May, 1), date(2023, time.May, 1))
	require.NotNil(t, got)
	assert.Equal(t, "100000.00", got.StringFixed(2))
}

func TestRemainingBalance_MissingTermsAreUnknown(t *testing.T) {
	full := loanTerms("200000", "5", 30)

	noPrincipal := full
	noPrincipal.Principal = nil
	noRate := full
	noRate.AnnualRatePercent = nil
	noTerm := full
	noTerm.TermYears = nil

	for name, loan := range map[string]LoanTerms{
		"principal": noPrincipal,
		"rate":      noRate,
		"term":      noTerm,
	} {
		assert.Nil(t, RemainingBalance(loan, date(2020, time.January, 1), date(2024, time.January, 1)), name)
		assert.Nil(t, MonthlyPayment(loan), name)
	}
}

func TestRemainingBalance_VeryLongTermStaysFinite(t *testing.T) {
	loan := loanTerms("500000", "12", 1000)
	got := RemainingBalance(loan, date(2000, time.January, 1), date(2001, time.January, 1))
	require.NotNil(t, got)
	assert.True(t, got.LessThanOrEqual(decimal.NewFromInt(500000)))
	assert.True(t, got.GreaterThan(decimal.NewFromInt(499000)))
}

func TestMonthlyPayment(t *testing.T) {
	payment := MonthlyPayment(loanTerms("300000", "6", 30))
	require.NotNil(t, payment)
	assert.Equal(t, "1798.65", payment.StringFixed(2))

	payment = MonthlyPayment(loanTerms("36000", "0", 3))
	require.NotNil(t, payment)
	assert.Equal(t, "1000.00", payment.StringFixed(2))
}

func TestMonthsBetween(t *testing.T) {
	cases := []struct {
		start, end time.Time
		want       int
	}{
		{date(2024, time.January, 15), date(2024, time.January, 31), 0},
		{date(2024, time.January, 15), date(2024, time.February, 14), 0},
		{date(2024, time.January, 15), date(2024, time.February, 15), 1},
		{date(2023, time.December, 31), date(2024, time.December, 31), 12},
		{date(2024, time.March, 1), date(2024, time.January, 1), -2},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MonthsBetween(tc.start, tc.end), "%s -> %s", tc.start, tc.end)
	}
}
