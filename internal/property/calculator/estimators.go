package calculator

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/realvest/internal/finance"
)

// Figures are the unrounded intermediate values an estimator may build on.
type Figures struct {
	Price      decimal.Decimal
	AnnualRent decimal.Decimal
	NOI        decimal.Decimal
}

// Estimator yields one candidate value, or nil when its inputs are missing.
type Estimator interface {
	Estimate(in Input, f Figures) *decimal.Decimal
}

type EstimatorFunc func(in Input, f Figures) *decimal.Decimal

func (fn EstimatorFunc) Estimate(in Input, f Figures) *decimal.Decimal {
	return fn(in, f)
}

func firstEstimate(chain []Estimator, in Input, f Figures) *decimal.Decimal {
	for _, e := range chain {
		if v := e.Estimate(in, f); v != nil {
			return v
		}
	}
	return nil
}

// ValuationROI annualizes a multi-year ROI projection. The valuation's own
// horizon wins over defaultHorizon.
func ValuationROI(defaultHorizon int) Estimator {
	return EstimatorFunc(func(in Input, _ Figures) *decimal.Decimal {
		if in.Valuation == nil || in.Valuation.ROIPercent == nil {
			return nil
		}
		horizon := defaultHorizon
		if in.Valuation.HorizonYears != nil && *in.Valuation.HorizonYears > 0 {
			horizon = *in.Valuation.HorizonYears
		}
		if horizon <= 0 {
			return nil
		}
		return finance.Ptr(finance.Div(*in.Valuation.ROIPercent, decimal.NewFromInt(int64(horizon))))
	})
}

// NOIYield is the simple unlevered return NOI / price * 100.
func NOIYield() Estimator {
	return EstimatorFunc(func(_ Input, f Figures) *decimal.Decimal {
		if !f.Price.IsPositive() {
			return nil
		}
		return finance.Ptr(finance.SafePercent(f.NOI, f.Price))
	})
}

func PredictedProfit() Estimator {
	return EstimatorFunc(func(in Input, _ Figures) *decimal.Decimal {
		if in.PredictedProfit == nil {
			return nil
		}
		return finance.Ptr(*in.PredictedProfit)
	})
}

// ValueGap is estimated value minus asking price.
func ValueGap() Estimator {
	return EstimatorFunc(func(in Input, f Figures) *decimal.Decimal {
		if in.EstimatedValue == nil {
			return nil
		}
		return finance.Ptr(in.EstimatedValue.Sub(f.Price))
	})
}
