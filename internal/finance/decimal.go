package finance

import "github.com/shopspring/decimal"

// WorkingPrecision is the number of fractional digits kept by divisions and
// powers before a value is rounded for presentation.
const WorkingPrecision int32 = 24

var (
	Zero    = decimal.Zero
	One     = decimal.NewFromInt(1)
	Ten     = decimal.NewFromInt(10)
	Twelve  = decimal.NewFromInt(12)
	Hundred = decimal.NewFromInt(100)
)

// Ptr returns a pointer to a copy of d.
func Ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// RoundCents rounds half away from zero to two decimal places.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RoundPtr rounds a nullable value to two decimal places.
func RoundPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	return Ptr(RoundCents(*d))
}

// Div divides at working precision.
func Div(num, den decimal.Decimal) decimal.Decimal {
	return num.DivRound(den, WorkingPrecision)
}

// SafeDiv returns 0 when the denominator is zero.
func SafeDiv(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return Zero
	}
	return Div(num, den)
}

// SafePercent returns num/den*100, or 0 when the denominator is zero.
func SafePercent(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return Zero
	}
	return Div(num.Mul(Hundred), den)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// Positive reports whether d is set and strictly greater than zero.
func Positive(d *decimal.Decimal) bool {
	return d != nil && d.IsPositive()
}

// Or returns *d, or fallback when d is nil.
func Or(d *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if d == nil {
		return fallback
	}
	return *d
}

// powRound raises base to a non-negative integer power by squaring, rounding
// every intermediate product so digit growth stays bounded for large exponents.
func powRound(base decimal.Decimal, exp int) decimal.Decimal {
	result := One
	for exp > 0 {
		if exp%2 == 1 {
			result = result.Mul(base).Round(WorkingPrecision)
		}
		exp /= 2
		if exp > 0 {
			base = base.Mul(base).Round(WorkingPrecision)
		}
	}
	return result
}
