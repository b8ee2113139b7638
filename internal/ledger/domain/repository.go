package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	Update(ctx context.Context, db *gorm.DB, tx *Transaction) error
	Delete(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) error
	DeleteByOwnedProperty(ctx context.Context, db *gorm.DB, ownerID, ownedPropertyID snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*Transaction, error)
	List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, req ListTransactionRequest) ([]*Transaction, error)
	// ListBetween loads the owner's transactions dated within [from, to].
	ListBetween(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, ownedPropertyID *snowflake.ID, from, to time.Time) ([]Transaction, error)
	OwnedPropertyExists(ctx context.Context, db *gorm.DB, ownerID, ownedPropertyID snowflake.ID) (bool, error)
}
