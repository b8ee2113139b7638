package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/realvest/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionDealMoved            = "deal.moved"
	ActionDealDeleted          = "deal.deleted"
	ActionOwnedPropertyDeleted = "owned_property.deleted"
	ActionTransactionCorrected = "transaction.corrected"
	ActionTransactionDeleted   = "transaction.deleted"
)

// AuditLog is one recorded change to an owner's history-bearing data.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	OwnerID    snowflake.ID      `gorm:"not null;index:idx_audit_logs_owner_created,priority:1" json:"owner_id"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:idx_audit_logs_owner_created,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type Entry struct {
	Action     string
	TargetType string
	TargetID   snowflake.ID
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type ListFilter struct {
	OwnerID    snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Offset     int
	Limit      int
}

type Service interface {
	// Record writes through db so the entry commits or rolls back with the
	// change it describes.
	Record(ctx context.Context, db *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

var (
	ErrInvalidOwner     = errors.New("invalid_owner")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
