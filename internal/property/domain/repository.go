package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type MetricAverages struct {
	Count               int64
	AvgInvestmentScore  *float64
	AvgCapRate          *float64
	AvgGrossRentalYield *float64
}

type Repository interface {
	InsertProperty(ctx context.Context, db *gorm.DB, property *Property) error
	UpdateProperty(ctx context.Context, db *gorm.DB, property *Property) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Property, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Property, error)
	FindByAddress(ctx context.Context, db *gorm.DB, address, city, state string) (*Property, error)
	List(ctx context.Context, db *gorm.DB, req ListPropertyRequest, limit, offset int) ([]*Property, error)
	CountProperties(ctx context.Context, db *gorm.DB) (int64, error)

	UpsertMetrics(ctx context.Context, db *gorm.DB, metrics *InvestmentMetrics) error
	FindMetrics(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) (*InvestmentMetrics, error)
	FindMetricsByPropertyIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]*InvestmentMetrics, error)
	MetricAverages(ctx context.Context, db *gorm.DB) (MetricAverages, error)
	TopByInvestmentScore(ctx context.Context, db *gorm.DB, limit int) ([]*Property, error)
	ListStalePropertyIDs(ctx context.Context, db *gorm.DB, limit int) ([]snowflake.ID, error)

	InsertValuation(ctx context.Context, db *gorm.DB, valuation *Valuation) error
	ListValuations(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) ([]*Valuation, error)
	LatestUsableValuation(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) (*Valuation, error)

	UpsertProfitPrediction(ctx context.Context, db *gorm.DB, prediction *ProfitPrediction) error
	FindProfitPrediction(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) (*ProfitPrediction, error)
	DeleteProfitPrediction(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) error
}
