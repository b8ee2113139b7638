package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// DealStage is a static pipeline column.
type DealStage struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"not null;uniqueIndex" json:"name"`
	DisplayName  string       `gorm:"not null" json:"display_name"`
	DisplayOrder int          `gorm:"not null" json:"display_order"`
	Color        string       `gorm:"not null" json:"color"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

func (DealStage) TableName() string { return "deal_stages" }

// Deal is one card of an owner's pipeline. Within (owner, stage) positions
// are always exactly 0..N-1.
type Deal struct {
	ID            snowflake.ID     `gorm:"primaryKey" json:"id"`
	OwnerID       snowflake.ID     `gorm:"not null;uniqueIndex:idx_deals_owner_stage_position,priority:1" json:"owner_id"`
	StageID       snowflake.ID     `gorm:"not null;uniqueIndex:idx_deals_owner_stage_position,priority:2" json:"stage_id"`
	Position      int              `gorm:"not null;uniqueIndex:idx_deals_owner_stage_position,priority:3" json:"position"`
	Title         string           `gorm:"not null" json:"title"`
	PropertyID    *snowflake.ID    `gorm:"index" json:"property_id,omitempty"`
	ExpectedValue *decimal.Decimal `gorm:"type:numeric(14,2)" json:"expected_value,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	CreatedAt     time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"not null" json:"updated_at"`
}

func (Deal) TableName() string { return "deals" }

// StageColumn is one stage with its deals in position order.
type StageColumn struct {
	Stage DealStage `json:"stage"`
	Deals []Deal    `json:"deals"`
}

// StageDefinition seeds a DealStage.
type StageDefinition struct {
	DisplayName  string
	DisplayOrder int
	Color        string
}

// DefaultStages is the seeded pipeline, in display order.
var DefaultStages = []StageDefinition{
	{DisplayName: "Acquisition", DisplayOrder: 1, Color: "#3B82F6"},
	{DisplayName: "Review", DisplayOrder: 2, Color: "#F59E0B"},
	{DisplayName: "Active", DisplayOrder: 3, Color: "#10B981"},
	{DisplayName: "Closed", DisplayOrder: 4, Color: "#6B7280"},
}
