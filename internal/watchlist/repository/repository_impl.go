package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	"github.com/smallbiznis/realvest/internal/watchlist/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *domain.WatchlistItem) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, ownerID, propertyID snowflake.ID) (*domain.WatchlistItem, error) {
	var item domain.WatchlistItem
	err := db.WithContext(ctx).
		Where("owner_id = ? AND property_id = ?", ownerID, propertyID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]domain.WatchlistItem, error) {
	var items []domain.WatchlistItem
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("added_at desc, id desc").
		Find(&items).Error
	return items, err
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, ownerID, propertyID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).
		Where("owner_id = ? AND property_id = ?", ownerID, propertyID).
		Delete(&domain.WatchlistItem{})
	return res.RowsAffected, res.Error
}

func (r *repo) FindProperties(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]propertydomain.Property, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []propertydomain.Property
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

func (r *repo) FindMetrics(ctx context.Context, db *gorm.DB, propertyIDs []snowflake.ID) ([]propertydomain.InvestmentMetrics, error) {
	if len(propertyIDs) == 0 {
		return nil, nil
	}
	var out []propertydomain.InvestmentMetrics
	err := db.WithContext(ctx).Where("property_id IN ?", propertyIDs).Find(&out).Error
	return out, err
}
