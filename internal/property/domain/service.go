package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/realvest/pkg/db/pagination"
)

// UpsertPropertyRequest is one fully-typed record from the property feed.
type UpsertPropertyRequest struct {
	ExternalID   string
	ZillowID     string
	MLSID        string
	Address      string
	City         string
	State        string
	ZipCode      string
	Latitude     *decimal.Decimal
	Longitude    *decimal.Decimal
	PropertyType string
	Bedrooms     *int
	Bathrooms    *decimal.Decimal
	SquareFeet   *int
	LotSize      *decimal.Decimal
	YearBuilt    *int

	CurrentPrice   *decimal.Decimal
	EstimatedValue *decimal.Decimal
	TaxAssessment  *decimal.Decimal
	AnnualTaxes    *decimal.Decimal
	EstimatedRent  *decimal.Decimal
	DaysOnMarket   *int
}

type UpsertPropertyResponse struct {
	Property Property `json:"property"`
	Created  bool     `json:"created"`
}

type RecordValuationRequest struct {
	PropertyID   snowflake.ID
	Successful   bool
	FairValue    *decimal.Decimal
	ROIPercent   *decimal.Decimal
	HorizonYears *int
	ErrorMessage string
	Source       string
	Payload      []byte
	ValuedAt     *time.Time
}

type SetProfitPredictionRequest struct {
	PropertyID snowflake.ID
	Amount     decimal.Decimal
	Source     string
}

// DecimalRange bounds a numeric filter; either end may be open.
type DecimalRange struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

func (r DecimalRange) IsZero() bool {
	return r.Min == nil && r.Max == nil
}

type ListPropertyRequest struct {
	City         string
	State        string
	ZipCode      string
	PropertyType string

	Price            DecimalRange
	EstimatedValue   DecimalRange
	Rent             DecimalRange
	Bedrooms         DecimalRange
	Bathrooms        DecimalRange
	SquareFeet       DecimalRange
	YearBuilt        DecimalRange
	InvestmentScore  DecimalRange
	CapRate          DecimalRange
	GrossRentalYield DecimalRange
	NOI              DecimalRange
	EstimatedProfit  DecimalRange
	PriceToRentRatio DecimalRange
	RiskScore        DecimalRange

	HasMetrics   *bool
	IsProfitable *bool
	HighCapRate  *bool
	GoodCashFlow *bool
	// HighCapRateMin is the cap rate HighCapRate compares against. The
	// service fills it from the active scoring policy.
	HighCapRateMin decimal.Decimal

	// Sort is a column key, "-" prefixed for descending order.
	Sort string
	pagination.Pagination
}

type ListPropertyResponse struct {
	pagination.PageInfo
	Properties []Listing `json:"properties"`
}

type DashboardStats struct {
	TotalProperties       int64            `json:"total_properties"`
	PropertiesWithMetrics int64            `json:"properties_with_metrics"`
	AvgInvestmentScore    *decimal.Decimal `json:"avg_investment_score"`
	AvgCapRate            *decimal.Decimal `json:"avg_cap_rate"`
	AvgGrossRentalYield   *decimal.Decimal `json:"avg_gross_rental_yield"`
	TopProperties         []Listing        `json:"top_properties"`
}

type Service interface {
	Upsert(context.Context, UpsertPropertyRequest) (UpsertPropertyResponse, error)
	Get(context.Context, snowflake.ID) (Listing, error)
	List(context.Context, ListPropertyRequest) (ListPropertyResponse, error)
	DashboardStats(context.Context) (DashboardStats, error)

	RecordValuation(context.Context, RecordValuationRequest) (Valuation, error)
	ListValuations(context.Context, snowflake.ID) ([]Valuation, error)
	SetProfitPrediction(context.Context, SetProfitPredictionRequest) (ProfitPrediction, error)
	ClearProfitPrediction(context.Context, snowflake.ID) error

	// GetMetrics always returns a best-effort object; absent figures are nil.
	GetMetrics(context.Context, snowflake.ID) (InvestmentMetrics, error)
	RecalculateMetrics(context.Context, snowflake.ID) (InvestmentMetrics, error)
	// RecalculateStale recomputes up to limit properties with outdated metrics.
	RecalculateStale(ctx context.Context, limit int) (int, error)
}
