package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RecordTransactionRequest struct {
	OwnedPropertyID snowflake.ID
	Type            string
	Category        string
	Amount          decimal.Decimal
	OccurredOn      time.Time
	Description     string
}

// CorrectTransactionRequest carries the fields of a correction edit; nil
// fields are left unchanged.
type CorrectTransactionRequest struct {
	Type        *string
	Category    *string
	Amount      *decimal.Decimal
	OccurredOn  *time.Time
	Description *string
}

type ListTransactionRequest struct {
	OwnedPropertyID *snowflake.ID
	From            *time.Time
	To              *time.Time
	Type            string
	Category        string
}

// SummaryRequest scopes a summary to an owner, optionally narrowed to one
// owned property. A zero OwnerID falls back to the acting user.
type SummaryRequest struct {
	OwnerID         snowflake.ID
	OwnedPropertyID *snowflake.ID
	Window          Window
}

type Service interface {
	Record(context.Context, RecordTransactionRequest) (Transaction, error)
	Correct(context.Context, snowflake.ID, CorrectTransactionRequest) (Transaction, error)
	Delete(context.Context, snowflake.ID) error
	List(context.Context, ListTransactionRequest) ([]Transaction, error)

	Summarize(context.Context, SummaryRequest) (Summary, error)
	// SummarizeTx reads through the caller's transaction.
	SummarizeTx(ctx context.Context, tx *gorm.DB, req SummaryRequest) (Summary, error)
	MonthlySeries(ctx context.Context, months int) ([]MonthlyPoint, error)

	// DeleteByOwnedProperty removes every transaction of an owned property
	// inside the caller's transaction.
	DeleteByOwnedProperty(ctx context.Context, tx *gorm.DB, ownerID, ownedPropertyID snowflake.ID) error
}

var (
	ErrInvalidOwner         = errors.New("invalid_owner")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidOwnedProperty = errors.New("invalid_owned_property")
	ErrInvalidType          = errors.New("invalid_transaction_type")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidDate          = errors.New("invalid_date")
	ErrInvalidWindow        = errors.New("invalid_window")
	ErrNotFound             = errors.New("not_found")
)

func NormalizeType(value string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(TransactionTypeIncome):
		return TransactionTypeIncome, nil
	case string(TransactionTypeExpense):
		return TransactionTypeExpense, nil
	default:
		return "", ErrInvalidType
	}
}

// NormalizeCategory maps unknown categories to other.
func NormalizeCategory(value string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := knownCategories[c]; ok {
		return c
	}
	return CategoryOther
}
