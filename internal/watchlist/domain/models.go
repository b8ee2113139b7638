package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	"gorm.io/gorm"
)

type WatchlistItem struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID    snowflake.ID `gorm:"not null;uniqueIndex:idx_watchlist_owner_property,priority:1" json:"owner_id"`
	PropertyID snowflake.ID `gorm:"not null;uniqueIndex:idx_watchlist_owner_property,priority:2" json:"property_id"`
	Notes      string       `json:"notes,omitempty"`
	AddedAt    time.Time    `gorm:"not null" json:"added_at"`
}

func (WatchlistItem) TableName() string { return "watchlist_items" }

// Entry is a watched property with its current metrics, if any.
type Entry struct {
	Item     WatchlistItem                     `json:"item"`
	Property propertydomain.Property           `json:"property"`
	Metrics  *propertydomain.InvestmentMetrics `json:"metrics,omitempty"`
}

type AddRequest struct {
	PropertyID snowflake.ID
	Notes      string
}

type AddResponse struct {
	Item    WatchlistItem
	Created bool
}

type Service interface {
	Add(context.Context, AddRequest) (AddResponse, error)
	List(context.Context) ([]Entry, error)
	Remove(ctx context.Context, propertyID snowflake.ID) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, item *WatchlistItem) error
	Find(ctx context.Context, db *gorm.DB, ownerID, propertyID snowflake.ID) (*WatchlistItem, error)
	List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]WatchlistItem, error)
	Delete(ctx context.Context, db *gorm.DB, ownerID, propertyID snowflake.ID) (int64, error)
	FindProperties(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]propertydomain.Property, error)
	FindMetrics(ctx context.Context, db *gorm.DB, propertyIDs []snowflake.ID) ([]propertydomain.InvestmentMetrics, error)
}

var (
	ErrInvalidOwner     = errors.New("invalid_owner")
	ErrInvalidReference = errors.New("invalid_reference")
	ErrNotFound         = errors.New("not_found")
)
