package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/realvest/internal/pipeline/domain"
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

func (r *repo) ListStages(ctx context.Context, db *gorm.DB) ([]domain.DealStage, error) {
	var stages []domain.DealStage
	err := db.WithContext(ctx).Order("display_order asc, id asc").Find(&stages).Error
	return stages, err
}

func (r *repo) FindStage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.DealStage, error) {
	return first[domain.DealStage](ctx, db.Where("id = ?", id))
}

func (r *repo) FindStageByName(ctx context.Context, db *gorm.DB, name string) (*domain.DealStage, error) {
	return first[domain.DealStage](ctx, db.Where("name = ?", name))
}

func (r *repo) InsertStage(ctx context.Context, db *gorm.DB, stage *domain.DealStage) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(stage).Error
}

func (r *repo) FindDeal(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*domain.Deal, error) {
	return first[domain.Deal](ctx, db.Where("owner_id = ? AND id = ?", ownerID, id))
}

func (r *repo) ListDeals(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]domain.Deal, error) {
	var deals []domain.Deal
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("stage_id asc, position asc").
		Find(&deals).Error
	return deals, err
}

func (r *repo) LockStageDeals(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, stageIDs []snowflake.ID) ([]domain.Deal, error) {
	var deals []domain.Deal
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ? AND stage_id IN ?", ownerID, stageIDs).
		Order("stage_id asc, position asc").
		Find(&deals).Error
	return deals, err
}

func (r *repo) InsertDeal(ctx context.Context, db *gorm.DB, deal *domain.Deal) error {
	return db.WithContext(ctx).Create(deal).Error
}

func (r *repo) UpdateDealFields(ctx context.Context, db *gorm.DB, deal *domain.Deal) error {
	return db.WithContext(ctx).
		Model(&domain.Deal{}).
		Where("owner_id = ? AND id = ?", deal.OwnerID, deal.ID).
		Updates(map[string]any{
			"title":          deal.Title,
			"notes":          deal.Notes,
			"expected_value": deal.ExpectedValue,
			"property_id":    deal.PropertyID,
			"updated_at":     deal.UpdatedAt,
		}).Error
}

func (r *repo) SetPlacement(ctx context.Context, db *gorm.DB, ownerID, id, stageID snowflake.ID, position int, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Deal{}).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Updates(map[string]any{
			"stage_id":   stageID,
			"position":   position,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return domain.ErrInvariantViolation
	}
	return nil
}

func (r *repo) DeleteDeal(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Delete(&domain.Deal{}).Error
}

func (r *repo) PropertyExists(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Table("properties").Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
