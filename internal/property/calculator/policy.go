package calculator

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/realvest/internal/config"
)

// Weights of the five composite score components. They are not renormalized
// when a component is missing.
type Weights struct {
	CapRate          decimal.Decimal
	CashFlow         decimal.Decimal
	Appreciation     decimal.Decimal
	MarketEfficiency decimal.Decimal
	Risk             decimal.Decimal
}

// Policy holds the product constants of metric calculation.
type Policy struct {
	ExpenseRatio     decimal.Decimal
	ROIHorizonYears  int
	HighCapRate      decimal.Decimal
	Weights          Weights
	DefaultRentRatio decimal.Decimal
	CityRentRatios   map[string]decimal.Decimal
}

func DefaultPolicy() Policy {
	return PolicyFromConfig(config.DefaultScoringConfig())
}

func PolicyFromConfig(cfg config.ScoringConfig) Policy {
	cities := make(map[string]decimal.Decimal, len(cfg.CityRentRatios))
	for city, ratio := range cfg.CityRentRatios {
		cities[strings.ToLower(strings.TrimSpace(city))] = decimal.NewFromFloat(ratio)
	}
	return Policy{
		ExpenseRatio:    decimal.NewFromFloat(cfg.ExpenseRatio),
		ROIHorizonYears: cfg.ROIHorizonYears,
		HighCapRate:     decimal.NewFromFloat(cfg.HighCapRate),
		Weights: Weights{
			CapRate:          decimal.NewFromFloat(cfg.Weights.CapRate),
			CashFlow:         decimal.NewFromFloat(cfg.Weights.CashFlow),
			Appreciation:     decimal.NewFromFloat(cfg.Weights.Appreciation),
			MarketEfficiency: decimal.NewFromFloat(cfg.Weights.MarketEfficiency),
			Risk:             decimal.NewFromFloat(cfg.Weights.Risk),
		},
		DefaultRentRatio: decimal.NewFromFloat(cfg.DefaultRentRatio),
		CityRentRatios:   cities,
	}
}

// RentRatio returns the monthly rent to value ratio used for a city.
func (p Policy) RentRatio(city string) decimal.Decimal {
	if ratio, ok := p.CityRentRatios[strings.ToLower(strings.TrimSpace(city))]; ok {
		return ratio
	}
	return p.DefaultRentRatio
}
