package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Property struct {
	ID           snowflake.ID     `gorm:"primaryKey" json:"id"`
	ExternalID   *string          `gorm:"uniqueIndex" json:"external_id,omitempty"`
	ZillowID     string           `json:"zillow_id,omitempty"`
	MLSID        string           `gorm:"column:mls_id" json:"mls_id,omitempty"`
	Address      string           `gorm:"not null;index:idx_properties_address" json:"address"`
	City         string           `gorm:"not null;index:idx_properties_address" json:"city"`
	State        string           `gorm:"not null;index:idx_properties_address" json:"state"`
	ZipCode      string           `json:"zip_code,omitempty"`
	Latitude     *decimal.Decimal `gorm:"type:numeric(10,7)" json:"latitude,omitempty"`
	Longitude    *decimal.Decimal `gorm:"type:numeric(10,7)" json:"longitude,omitempty"`
	PropertyType string           `json:"property_type,omitempty"`
	Bedrooms     *int             `json:"bedrooms,omitempty"`
	Bathrooms    *decimal.Decimal `gorm:"type:numeric(4,1)" json:"bathrooms,omitempty"`
	SquareFeet   *int             `json:"square_feet,omitempty"`
	LotSize      *decimal.Decimal `gorm:"type:numeric(12,2)" json:"lot_size,omitempty"`
	YearBuilt    *int             `json:"year_built,omitempty"`

	CurrentPrice   *decimal.Decimal `gorm:"type:numeric(14,2)" json:"current_price,omitempty"`
	EstimatedValue *decimal.Decimal `gorm:"type:numeric(14,2)" json:"estimated_value,omitempty"`
	TaxAssessment  *decimal.Decimal `gorm:"type:numeric(14,2)" json:"tax_assessment,omitempty"`
	AnnualTaxes    *decimal.Decimal `gorm:"type:numeric(12,2)" json:"annual_taxes,omitempty"`
	EstimatedRent  *decimal.Decimal `gorm:"type:numeric(12,2)" json:"estimated_rent,omitempty"`
	RentPerSqft    *decimal.Decimal `gorm:"type:numeric(10,4)" json:"rent_per_sqft,omitempty"`
	DaysOnMarket   *int             `json:"days_on_market,omitempty"`

	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

func (Property) TableName() string { return "properties" }

// InvestmentMetrics is a derived projection of one property. It references the
// property and is only ever written by recalculation.
type InvestmentMetrics struct {
	ID                 snowflake.ID     `gorm:"primaryKey" json:"id"`
	PropertyID         snowflake.ID     `gorm:"not null;uniqueIndex" json:"property_id"`
	AnnualRent         *decimal.Decimal `gorm:"type:numeric(14,2)" json:"annual_rent"`
	GrossRentalYield   *decimal.Decimal `gorm:"type:numeric(8,2)" json:"gross_rental_yield"`
	OperatingExpenses  *decimal.Decimal `gorm:"type:numeric(14,2)" json:"operating_expenses"`
	NetOperatingIncome *decimal.Decimal `gorm:"type:numeric(14,2)" json:"net_operating_income"`
	CapRate            *decimal.Decimal `gorm:"type:numeric(8,2)" json:"cap_rate"`
	PriceToRentRatio   *decimal.Decimal `gorm:"type:numeric(8,2)" json:"price_to_rent_ratio"`
	ROI                *decimal.Decimal `gorm:"column:roi;type:numeric(8,2)" json:"roi"`
	EstimatedProfit    *decimal.Decimal `gorm:"type:numeric(14,2)" json:"estimated_profit"`
	RiskScore          *decimal.Decimal `gorm:"type:numeric(4,2)" json:"risk_score"`
	InvestmentScore    *decimal.Decimal `gorm:"type:numeric(5,2)" json:"investment_score"`
	CalculatedAt       time.Time        `gorm:"not null" json:"calculated_at"`
}

func (InvestmentMetrics) TableName() string { return "investment_metrics" }

// Valuation is one immutable fair-value estimate from an external source.
type Valuation struct {
	ID           snowflake.ID     `gorm:"primaryKey" json:"id"`
	PropertyID   snowflake.ID     `gorm:"not null;index" json:"property_id"`
	FairValue    *decimal.Decimal `gorm:"type:numeric(14,2)" json:"fair_value,omitempty"`
	ROIPercent   *decimal.Decimal `gorm:"column:roi_percent;type:numeric(8,2)" json:"roi_percent,omitempty"`
	HorizonYears *int             `json:"horizon_years,omitempty"`
	Successful   bool             `gorm:"not null" json:"successful"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Source       string           `json:"source,omitempty"`
	Payload      datatypes.JSON   `json:"payload,omitempty"`
	ValuedAt     time.Time        `gorm:"not null;index" json:"valued_at"`
}

func (Valuation) TableName() string { return "property_valuations" }

type ProfitPrediction struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	PropertyID  snowflake.ID    `gorm:"not null;uniqueIndex" json:"property_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Source      string          `json:"source,omitempty"`
	PredictedAt time.Time       `gorm:"not null" json:"predicted_at"`
}

func (ProfitPrediction) TableName() string { return "property_profit_predictions" }

// Listing is a property joined with its metrics, if any.
type Listing struct {
	Property
	Metrics *InvestmentMetrics `json:"metrics,omitempty"`
}
