package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, item *OwnedProperty) error
	Update(ctx context.Context, db *gorm.DB, item *OwnedProperty) error
	Delete(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*OwnedProperty, error)
	List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]*OwnedProperty, error)
	ListHoldings(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Holding, error)

	FindProperty(ctx context.Context, db *gorm.DB, id snowflake.ID) (*propertydomain.Property, error)

	FindMetrics(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (*PortfolioMetrics, error)
	UpsertMetrics(ctx context.Context, db *gorm.DB, metrics *PortfolioMetrics) error
	ListStaleOwners(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]snowflake.ID, error)
}
