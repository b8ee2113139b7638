package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/realvest/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Create(tx).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("owner_id = ? AND id = ?", tx.OwnerID, tx.ID).
		Updates(map[string]any{
			"type":        tx.Type,
			"category":    tx.Category,
			"amount":      tx.Amount,
			"occurred_on": tx.OccurredOn,
			"description": tx.Description,
			"updated_at":  tx.UpdatedAt,
		}).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Delete(&domain.Transaction{}).Error
}

func (r *repo) DeleteByOwnedProperty(ctx context.Context, db *gorm.DB, ownerID, ownedPropertyID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("owner_id = ? AND owned_property_id = ?", ownerID, ownedPropertyID).
		Delete(&domain.Transaction{}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", ownerID, id).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, req domain.ListTransactionRequest) ([]*domain.Transaction, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("owner_id = ?", ownerID)
	if req.OwnedPropertyID != nil {
		stmt = stmt.Where("owned_property_id = ?", *req.OwnedPropertyID)
	}
	if req.From != nil {
		stmt = stmt.Where("occurred_on >= ?", domain.Day(*req.From))
	}
	if req.To != nil {
		stmt = stmt.Where("occurred_on <= ?", domain.Day(*req.To))
	}
	if req.Type != "" {
		stmt = stmt.Where("type = ?", req.Type)
	}
	if req.Category != "" {
		stmt = stmt.Where("category = ?", req.Category)
	}

	var txns []*domain.Transaction
	if err := stmt.Order("occurred_on desc, id desc").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repo) ListBetween(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, ownedPropertyID *snowflake.ID, from, to time.Time) ([]domain.Transaction, error) {
	stmt := db.WithContext(ctx).
		Where("owner_id = ? AND occurred_on >= ? AND occurred_on <= ?", ownerID, domain.Day(from), domain.Day(to))
	if ownedPropertyID != nil {
		stmt = stmt.Where("owned_property_id = ?", *ownedPropertyID)
	}
	var txns []domain.Transaction
	if err := stmt.Order("occurred_on asc, id asc").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// OwnedPropertyExists checks ownership without importing the portfolio package.
func (r *repo) OwnedPropertyExists(ctx context.Context, db *gorm.DB, ownerID, ownedPropertyID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Table("owned_properties").
		Where("owner_id = ? AND id = ?", ownerID, ownedPropertyID).
		Count(&count).Error
	return count > 0, err
}
