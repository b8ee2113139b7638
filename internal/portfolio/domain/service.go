package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/realvest/internal/ledger/domain"
)

type CreateOwnedPropertyRequest struct {
	PropertyID *snowflake.ID

	CustomAddress      string
	CustomCity         string
	CustomState        string
	CustomZip          string
	CustomPropertyType string

	PurchasePrice decimal.Decimal
	PurchaseDate  time.Time
	DownPayment   *decimal.Decimal
	LoanAmount    *decimal.Decimal
	InterestRate  *decimal.Decimal
	LoanTermYears *int

	CurrentEstimatedValue *decimal.Decimal
	MonthlyRent           *decimal.Decimal
	ManagementFeePercent  *decimal.Decimal
	Notes                 string
}

// UpdateOwnedPropertyRequest leaves nil fields unchanged.
type UpdateOwnedPropertyRequest struct {
	CustomAddress      *string
	CustomCity         *string
	CustomState        *string
	CustomZip          *string
	CustomPropertyType *string

	PurchasePrice *decimal.Decimal
	PurchaseDate  *time.Time
	DownPayment   *decimal.Decimal
	LoanAmount    *decimal.Decimal
	InterestRate  *decimal.Decimal
	LoanTermYears *int

	CurrentEstimatedValue *decimal.Decimal
	MonthlyRent           *decimal.Decimal
	ManagementFeePercent  *decimal.Decimal
	Notes                 *string
}

// RefreshValuationRequest optionally carries an explicit current value. Without
// one the linked property's estimated value is used.
type RefreshValuationRequest struct {
	CurrentValue *decimal.Decimal
}

type Service interface {
	Create(context.Context, CreateOwnedPropertyRequest) (OwnedProperty, error)
	Update(context.Context, snowflake.ID, UpdateOwnedPropertyRequest) (OwnedProperty, error)
	Delete(context.Context, snowflake.ID) error
	Get(context.Context, snowflake.ID) (OwnedProperty, error)
	List(context.Context) ([]OwnedProperty, error)
	RefreshValuation(context.Context, snowflake.ID, RefreshValuationRequest) (OwnedProperty, error)

	RecordTransaction(context.Context, snowflake.ID, ledgerdomain.RecordTransactionRequest) (ledgerdomain.Transaction, error)
	CorrectTransaction(context.Context, snowflake.ID, ledgerdomain.CorrectTransactionRequest) (ledgerdomain.Transaction, error)
	DeleteTransaction(context.Context, snowflake.ID) error
	ListTransactions(context.Context, snowflake.ID) ([]ledgerdomain.Transaction, error)

	GetMetrics(context.Context) (PortfolioMetrics, error)
	RecalculateMetrics(context.Context) (PortfolioMetrics, error)
	// RecalculateStale recomputes up to limit owners whose snapshot is older
	// than staleAfter.
	RecalculateStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error)
	CashFlowSeries(ctx context.Context, months int) ([]ledgerdomain.MonthlyPoint, error)
}
