package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	ListStages(ctx context.Context, db *gorm.DB) ([]DealStage, error)
	FindStage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*DealStage, error)
	FindStageByName(ctx context.Context, db *gorm.DB, name string) (*DealStage, error)
	InsertStage(ctx context.Context, db *gorm.DB, stage *DealStage) error

	FindDeal(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*Deal, error)
	ListDeals(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Deal, error)
	// LockStageDeals reads the owner's deals in the given stages with row locks
	// held until the surrounding transaction ends.
	LockStageDeals(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, stageIDs []snowflake.ID) ([]Deal, error)
	InsertDeal(ctx context.Context, db *gorm.DB, deal *Deal) error
	UpdateDealFields(ctx context.Context, db *gorm.DB, deal *Deal) error
	SetPlacement(ctx context.Context, db *gorm.DB, ownerID, id, stageID snowflake.ID, position int, at time.Time) error
	DeleteDeal(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) error

	PropertyExists(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
