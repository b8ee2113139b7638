package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/realvest/internal/finance"
	"gorm.io/datatypes"
)

// OwnedProperty is a holding of one owner. It either links a tracked property
// or carries its own address fields.
type OwnedProperty struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	OwnerID    snowflake.ID  `gorm:"not null;index" json:"owner_id"`
	PropertyID *snowflake.ID `gorm:"index" json:"property_id,omitempty"`

	CustomAddress      string `json:"custom_address,omitempty"`
	CustomCity         string `json:"custom_city,omitempty"`
	CustomState        string `json:"custom_state,omitempty"`
	CustomZip          string `json:"custom_zip,omitempty"`
	CustomPropertyType string `json:"custom_property_type,omitempty"`

	PurchasePrice decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"purchase_price"`
	PurchaseDate  time.Time        `gorm:"not null" json:"purchase_date"`
	DownPayment   *decimal.Decimal `gorm:"type:numeric(14,2)" json:"down_payment,omitempty"`
	LoanAmount    *decimal.Decimal `gorm:"type:numeric(14,2)" json:"loan_amount,omitempty"`
	InterestRate  *decimal.Decimal `gorm:"type:numeric(6,3)" json:"interest_rate,omitempty"`
	LoanTermYears *int             `json:"loan_term_years,omitempty"`

	CurrentEstimatedValue *decimal.Decimal `gorm:"type:numeric(14,2)" json:"current_estimated_value,omitempty"`
	CurrentLoanBalance    *decimal.Decimal `gorm:"type:numeric(14,2)" json:"current_loan_balance,omitempty"`
	CurrentEquity         *decimal.Decimal `gorm:"type:numeric(14,2)" json:"current_equity,omitempty"`

	MonthlyRent          *decimal.Decimal `gorm:"type:numeric(12,2)" json:"monthly_rent,omitempty"`
	ManagementFeePercent *decimal.Decimal `gorm:"type:numeric(5,2)" json:"management_fee_percent,omitempty"`
	Notes                string           `json:"notes,omitempty"`

	ValuedAt  *time.Time `json:"valued_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" json:"updated_at"`
}

func (OwnedProperty) TableName() string { return "owned_properties" }

func (o OwnedProperty) Loan() finance.LoanTerms {
	return finance.LoanTerms{
		Principal:         o.LoanAmount,
		AnnualRatePercent: o.InterestRate,
		TermYears:         o.LoanTermYears,
	}
}

// PortfolioMetrics is the per-owner snapshot. It is overwritten as a whole on
// every recompute and no numeric field is ever null.
type PortfolioMetrics struct {
	ID      snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID snowflake.ID `gorm:"not null;uniqueIndex" json:"owner_id"`

	PropertyCount          int             `gorm:"not null" json:"property_count"`
	TotalInvestment        decimal.Decimal `gorm:"type:numeric(16,2);not null" json:"total_investment"`
	PortfolioValue         decimal.Decimal `gorm:"type:numeric(16,2);not null" json:"portfolio_value"`
	TotalEquity            decimal.Decimal `gorm:"type:numeric(16,2);not null" json:"total_equity"`
	TotalDebt              decimal.Decimal `gorm:"type:numeric(16,2);not null" json:"total_debt"`
	TotalAppreciation      decimal.Decimal `gorm:"type:numeric(16,2);not null" json:"total_appreciation"`
	AppreciationPercentage decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"appreciation_percentage"`
	AnnualCashFlow         decimal.Decimal `gorm:"type:numeric(16,2);not null" json:"annual_cash_flow"`
	MonthlyCashFlow        decimal.Decimal `gorm:"type:numeric(16,2);not null" json:"monthly_cash_flow"`
	TotalMonthlyIncome     decimal.Decimal `gorm:"type:numeric(16,2);not null" json:"total_monthly_income"`
	TotalMonthlyExpenses   decimal.Decimal `gorm:"type:numeric(16,2);not null" json:"total_monthly_expenses"`
	CashOnCashReturn       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"cash_on_cash_return"`
	TotalReturnPercentage  decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total_return_percentage"`
	PortfolioCapRate       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"portfolio_cap_rate"`
	DiversificationScore   int             `gorm:"not null" json:"diversification_score"`

	TypeBreakdown datatypes.JSONMap `json:"type_breakdown"`
	CityBreakdown datatypes.JSONMap `json:"city_breakdown"`

	CalculatedAt time.Time `gorm:"not null" json:"calculated_at"`
}

func (PortfolioMetrics) TableName() string { return "portfolio_metrics" }

// Holding is an owned property joined with the classification of its linked
// property, when one exists.
type Holding struct {
	OwnedProperty
	LinkedCity         *string
	LinkedPropertyType *string
}

// City prefers the linked property over the inline field.
func (h Holding) City() string {
	if h.LinkedCity != nil && strings.TrimSpace(*h.LinkedCity) != "" {
		return *h.LinkedCity
	}
	return h.CustomCity
}

func (h Holding) PropertyType() string {
	if h.LinkedPropertyType != nil && strings.TrimSpace(*h.LinkedPropertyType) != "" {
		return *h.LinkedPropertyType
	}
	return h.CustomPropertyType
}
