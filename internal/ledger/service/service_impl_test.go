package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/realvest/internal/clock"
	"github.com/smallbiznis/realvest/internal/ledger/domain"
	"github.com/smallbiznis/realvest/internal/ledger/repository"
	"github.com/smallbiznis/realvest/internal/usercontext"
	"github.com/smallbiznis/realvest/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ownedProperty mirrors the ownership columns the ledger checks against.
type ownedProperty struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	OwnerID snowflake.ID
}

func (ownedProperty) TableName() string { return "owned_properties" }

const (
	ownerA = snowflake.ID(1001)
	ownerB = snowflake.ID(1002)
	holdA  = snowflake.ID(5001)
	holdB  = snowflake.ID(5002)
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t, &domain.Transaction{}, &ownedProperty{})
	require.NoError(t, db.Create(&[]ownedProperty{
		{ID: holdA, OwnerID: ownerA},
		{ID: holdB, OwnerID: ownerB},
	}).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)),
	}).(*Service)
	return svc, db
}

func record(t *testing.T, svc *Service, ctx context.Context, kind, category, amount string, on time.Time) domain.Transaction {
	t.Helper()
	txn, err := svc.Record(ctx, domain.RecordTransactionRequest{
		OwnedPropertyID: holdA,
		Type:            kind,
		Category:        category,
		Amount:          decimal.RequireFromString(amount),
		OccurredOn:      on,
	})
	require.NoError(t, err)
	return txn
}

func TestRecordValidates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := usercontext.WithUserID(context.Background(), ownerA)
	on := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Record(context.Background(), domain.RecordTransactionRequest{OwnedPropertyID: holdA})
	assert.ErrorIs(t, err, domain.ErrInvalidOwner)

	_, err = svc.Record(ctx, domain.RecordTransactionRequest{
		OwnedPropertyID: holdA, Type: "income", Amount: decimal.Zero, OccurredOn: on,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Record(ctx, domain.RecordTransactionRequest{
		OwnedPropertyID: holdA, Type: "refund", Amount: decimal.NewFromInt(5), OccurredOn: on,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	_, err = svc.Record(ctx, domain.RecordTransactionRequest{
		OwnedPropertyID: holdB, Type: "income", Amount: decimal.NewFromInt(5), OccurredOn: on,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOwnedProperty)

	txn := record(t, svc, ctx, "expense", "landscaping", "80", on)
	assert.Equal(t, domain.CategoryOther, txn.Category)
}

func TestSummarizeScopesToOwnerAndWindow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := usercontext.WithUserID(context.Background(), ownerA)

	record(t, svc, ctx, "income", "rent", "1800", time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))
	record(t, svc, ctx, "expense", "repairs", "300", time.Date(2025, time.May, 20, 15, 0, 0, 0, time.UTC))
	record(t, svc, ctx, "income", "rent", "1800", time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))

	sum, err := svc.Summarize(ctx, domain.SummaryRequest{Window: domain.TrailingYear(svc.clock.Now())})
	require.NoError(t, err)
	assert.Equal(t, "1800", sum.Income.String())
	assert.Equal(t, "300", sum.Expense.String())
	assert.Equal(t, "1500", sum.Net.String())
	assert.Equal(t, 2, sum.Count)

	other, err := svc.Summarize(context.Background(), domain.SummaryRequest{
		OwnerID: ownerB,
		Window:  domain.TrailingYear(svc.clock.Now()),
	})
	require.NoError(t, err)
	assert.True(t, other.Net.IsZero())
	assert.Equal(t, 0, other.Count)

	_, err = svc.Summarize(ctx, domain.SummaryRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestCorrectAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := usercontext.WithUserID(context.Background(), ownerA)
	txn := record(t, svc, ctx, "income", "rent", "1800", time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))

	amount := decimal.RequireFromString("1750.555")
	note := "  partial month  "
	corrected, err := svc.Correct(ctx, txn.ID, domain.CorrectTransactionRequest{Amount: &amount, Description: &note})
	require.NoError(t, err)
	assert.Equal(t, "1750.56", corrected.Amount.StringFixed(2))
	assert.Equal(t, "partial month", corrected.Description)
	assert.Equal(t, domain.TransactionTypeIncome, corrected.Type)

	otherCtx := usercontext.WithUserID(context.Background(), ownerB)
	_, err = svc.Correct(otherCtx, txn.ID, domain.CorrectTransactionRequest{Amount: &amount})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, txn.ID))
	assert.ErrorIs(t, svc.Delete(ctx, txn.ID), domain.ErrNotFound)
}

func TestListFiltersAndMonthlySeries(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := usercontext.WithUserID(context.Background(), ownerA)
	record(t, svc, ctx, "income", "rent", "1800", time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC))
	record(t, svc, ctx, "income", "rent", "1800", time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))
	record(t, svc, ctx, "expense", "taxes", "600", time.Date(2025, time.May, 15, 0, 0, 0, 0, time.UTC))

	items, err := svc.List(ctx, domain.ListTransactionRequest{Type: "income"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].OccurredOn.After(items[1].OccurredOn))

	items, err = svc.List(ctx, domain.ListTransactionRequest{Category: "taxes"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	points, err := svc.MonthlySeries(ctx, 3)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, "2025-04", points[0].Month)
	assert.Equal(t, "1800", points[0].Net.String())
	assert.Equal(t, "1200", points[1].Net.String())
	assert.Equal(t, 0, points[2].Count)

	_, err = svc.MonthlySeries(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestMonthlySeriesAcceptsFullRange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := usercontext.WithUserID(context.Background(), ownerA)
	record(t, svc, ctx, "income", "rent", "900", time.Date(2016, time.July, 3, 0, 0, 0, 0, time.UTC))

	points, err := svc.MonthlySeries(ctx, domain.MaxSeriesMonths)
	require.NoError(t, err)
	require.Len(t, points, domain.MaxSeriesMonths)
	assert.Equal(t, "2015-07", points[0].Month)
	assert.Equal(t, "2025-06", points[len(points)-1].Month)
	assert.Equal(t, "900", points[12].Net.String())

	_, err = svc.MonthlySeries(ctx, domain.MaxSeriesMonths+1)
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestDeleteByOwnedProperty(t *testing.T) {
	svc, db := newTestService(t)
	ctx := usercontext.WithUserID(context.Background(), ownerA)
	record(t, svc, ctx, "income", "rent", "1800", time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.DeleteByOwnedProperty(ctx, tx, ownerA, holdA)
	}))

	var count int64
	require.NoError(t, db.Model(&domain.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}
