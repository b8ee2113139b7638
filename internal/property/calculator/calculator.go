package calculator

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/realvest/internal/finance"
)

// ValuationInput is the resolved latest successful valuation, passed in by the
// caller.
type ValuationInput struct {
	ROIPercent   *decimal.Decimal
	HorizonYears *int
}

type Input struct {
	Price           *decimal.Decimal
	EstimatedValue  *decimal.Decimal
	MonthlyRent     *decimal.Decimal
	Valuation       *ValuationInput
	PredictedProfit *decimal.Decimal
}

// Metrics holds rounded results; nil means the figure could not be derived.
type Metrics struct {
	AnnualRent         *decimal.Decimal
	GrossRentalYield   *decimal.Decimal
	OperatingExpenses  *decimal.Decimal
	NetOperatingIncome *decimal.Decimal
	CapRate            *decimal.Decimal
	PriceToRentRatio   *decimal.Decimal
	ROI                *decimal.Decimal
	EstimatedProfit    *decimal.Decimal
	RiskScore          *decimal.Decimal
	InvestmentScore    *decimal.Decimal
}

// Empty reports whether nothing could be derived.
func (m Metrics) Empty() bool {
	return m.AnnualRent == nil && m.InvestmentScore == nil
}

// Calculator derives investment metrics. It is pure and safe for concurrent use.
type Calculator struct {
	policy Policy
	roi    []Estimator
	profit []Estimator
}

type Option func(*Calculator)

// WithROIEstimators replaces the ROI fallback chain.
func WithROIEstimators(chain ...Estimator) Option {
	return func(c *Calculator) { c.roi = chain }
}

// WithProfitEstimators replaces the profit fallback chain.
func WithProfitEstimators(chain ...Estimator) Option {
	return func(c *Calculator) { c.profit = chain }
}

func New(policy Policy, opts ...Option) *Calculator {
	c := &Calculator{
		policy: policy,
		roi:    []Estimator{ValuationROI(policy.ROIHorizonYears), NOIYield()},
		profit: []Estimator{PredictedProfit(), ValueGap()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Calculator) Policy() Policy {
	return c.policy
}

var (
	two        = decimal.NewFromInt(2)
	twoHundred = decimal.NewFromInt(200)
)

func (c *Calculator) Calculate(in Input) Metrics {
	if !finance.Positive(in.Price) || !finance.Positive(in.MonthlyRent) {
		return Metrics{}
	}
	price := *in.Price

	annualRent := in.MonthlyRent.Mul(finance.Twelve)
	grossYield := finance.SafePercent(annualRent, price)
	opex := annualRent.Mul(c.policy.ExpenseRatio)
	noi := annualRent.Sub(opex)
	capRate := finance.SafePercent(noi, price)
	ratio := finance.SafeDiv(price, annualRent)

	figures := Figures{Price: price, AnnualRent: annualRent, NOI: noi}
	roi := firstEstimate(c.roi, in, figures)
	profit := firstEstimate(c.profit, in, figures)

	risk := finance.Clamp(finance.Div(ratio, finance.Ten), finance.One, finance.Ten)

	w := c.policy.Weights
	score := finance.Zero
	score = score.Add(component(capRate.Mul(finance.Ten)).Mul(w.CapRate))
	score = score.Add(component(finance.Div(finance.Div(noi, finance.Twelve), finance.Hundred)).Mul(w.CashFlow))
	if profit != nil {
		appreciation := finance.SafePercent(*profit, price).Mul(two)
		score = score.Add(component(appreciation).Mul(w.Appreciation))
	}
	score = score.Add(component(twoHundred.Sub(ratio.Mul(finance.Ten))).Mul(w.MarketEfficiency))
	score = score.Add(finance.Ten.Sub(risk).Mul(finance.Ten).Mul(w.Risk))

	return Metrics{
		AnnualRent:         finance.Ptr(finance.RoundCents(annualRent)),
		GrossRentalYield:   finance.Ptr(finance.RoundCents(grossYield)),
		OperatingExpenses:  finance.Ptr(finance.RoundCents(opex)),
		NetOperatingIncome: finance.Ptr(finance.RoundCents(noi)),
		CapRate:            finance.Ptr(finance.RoundCents(capRate)),
		PriceToRentRatio:   finance.Ptr(finance.RoundCents(ratio)),
		ROI:                finance.RoundPtr(roi),
		EstimatedProfit:    finance.RoundPtr(profit),
		RiskScore:          finance.Ptr(finance.RoundCents(risk)),
		InvestmentScore:    finance.Ptr(finance.RoundCents(score)),
	}
}

func component(v decimal.Decimal) decimal.Decimal {
	return finance.Clamp(v, finance.Zero, finance.Hundred)
}

// EstimateRent derives a monthly rent from price, else estimated value, using
// the city's rent ratio. Nil when neither figure is positive.
func (c *Calculator) EstimateRent(city string, price, estimatedValue *decimal.Decimal) *decimal.Decimal {
	base := price
	if !finance.Positive(base) {
		base = estimatedValue
	}
	if !finance.Positive(base) {
		return nil
	}
	return finance.Ptr(finance.RoundCents(base.Mul(c.policy.RentRatio(city))))
}
