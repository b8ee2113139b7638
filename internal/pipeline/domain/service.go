package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// CreateDealRequest places the new deal at the tail of its stage. StageName
// is used when StageID is zero; both empty selects the first stage.
type CreateDealRequest struct {
	StageID       snowflake.ID
	StageName     string
	Title         string
	PropertyID    *snowflake.ID
	ExpectedValue *decimal.Decimal
	Notes         string
}

// UpdateDealRequest edits descriptive fields only; placement changes go
// through MoveDeal.
type UpdateDealRequest struct {
	Title         *string
	Notes         *string
	ExpectedValue *decimal.Decimal
	PropertyID    *snowflake.ID
	ClearProperty bool
}

type MoveDealRequest struct {
	StageID  snowflake.ID
	Position int
}

type Service interface {
	ListStages(context.Context) ([]DealStage, error)
	ListDeals(context.Context) ([]StageColumn, error)
	CreateDeal(context.Context, CreateDealRequest) (Deal, error)
	UpdateDeal(context.Context, snowflake.ID, UpdateDealRequest) (Deal, error)
	MoveDeal(context.Context, snowflake.ID, MoveDealRequest) (Deal, error)
	DeleteDeal(context.Context, snowflake.ID) error
}

// OwnerLock serialises pipeline mutations of one owner across processes.
// Lock returns ErrBusy while another holder owns the lock.
type OwnerLock interface {
	LockOwner(ctx context.Context, ownerID snowflake.ID) (release func(), err error)
}
