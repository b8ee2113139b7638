package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/realvest/internal/portfolio/domain"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func first[T any](ctx context.Context, stmt *gorm.DB) (*T, error) {
	var out T
	if err := stmt.WithContext(ctx).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *domain.OwnedProperty) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, item *domain.OwnedProperty) error {
	return db.WithContext(ctx).
		Where("owner_id = ?", item.OwnerID).
		Select("*").
		Omit("id", "owner_id", "property_id", "created_at").
		Updates(item).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Delete(&domain.OwnedProperty{}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*domain.OwnedProperty, error) {
	return first[domain.OwnedProperty](ctx, db.Where("owner_id = ? AND id = ?", ownerID, id))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]*domain.OwnedProperty, error) {
	var items []*domain.OwnedProperty
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("purchase_date desc, id desc").
		Find(&items).Error
	return items, err
}

type holdingRow struct {
	domain.OwnedProperty `gorm:"embedded"`
	LinkedCity           *string
	LinkedPropertyType   *string
}

func (r *repo) ListHoldings(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]domain.Holding, error) {
	var rows []holdingRow
	err := db.WithContext(ctx).
		Table("owned_properties AS op").
		Select("op.*, p.city AS linked_city, p.property_type AS linked_property_type").
		Joins("LEFT JOIN properties p ON p.id = op.property_id").
		Where("op.owner_id = ?", ownerID).
		Order("op.id asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.Holding, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Holding{
			OwnedProperty:      row.OwnedProperty,
			LinkedCity:         row.LinkedCity,
			LinkedPropertyType: row.LinkedPropertyType,
		})
	}
	return out, nil
}

func (r *repo) FindProperty(ctx context.Context, db *gorm.DB, id snowflake.ID) (*propertydomain.Property, error) {
	return first[propertydomain.Property](ctx, db.Where("id = ?", id))
}

func (r *repo) FindMetrics(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (*domain.PortfolioMetrics, error) {
	return first[domain.PortfolioMetrics](ctx, db.Where("owner_id = ?", ownerID))
}

func (r *repo) UpsertMetrics(ctx context.Context, db *gorm.DB, metrics *domain.PortfolioMetrics) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"property_count",
			"total_investment",
			"portfolio_value",
			"total_equity",
			"total_debt",
			"total_appreciation",
			"appreciation_percentage",
			"annual_cash_flow",
			"monthly_cash_flow",
			"total_monthly_income",
			"total_monthly_expenses",
			"cash_on_cash_return",
			"total_return_percentage",
			"portfolio_cap_rate",
			"diversification_score",
			"type_breakdown",
			"city_breakdown",
			"calculated_at",
		}),
	}).Create(metrics).Error
}

// ListStaleOwners returns owners holding properties whose snapshot is missing
// or was calculated before the cutoff.
func (r *repo) ListStaleOwners(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]snowflake.ID, error) {
	var owners []snowflake.ID
	err := db.WithContext(ctx).Raw(`
		SELECT op.owner_id
		FROM owned_properties op
		LEFT JOIN portfolio_metrics pm ON pm.owner_id = op.owner_id
		WHERE pm.id IS NULL OR pm.calculated_at < ?
		GROUP BY op.owner_id
		ORDER BY op.owner_id
		LIMIT ?`, before, limit).
		Scan(&owners).Error
	return owners, err
}
