package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/realvest/internal/clock"
	"github.com/smallbiznis/realvest/internal/config"
	"github.com/smallbiznis/realvest/internal/property/domain"
	"github.com/smallbiznis/realvest/internal/property/repository"
	"github.com/smallbiznis/realvest/pkg/db/dbtest"
	"github.com/smallbiznis/realvest/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t,
		&domain.Property{},
		&domain.InvestmentMetrics{},
		&domain.Valuation{},
		&domain.ProfitPrediction{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clk,
	}).(*Service)
	return svc, clk
}

func TestUpsertCreatesPropertyAndScoresIt(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Upsert(ctx, domain.UpsertPropertyRequest{
		ExternalID:    "zpid-1",
		Address:       "12 Elm St",
		City:          "Columbus",
		State:         "OH",
		CurrentPrice:  dec("200000"),
		EstimatedRent: dec("2000"),
		SquareFeet:    ptr(1000),
	})
	require.NoError(t, err)
	assert.True(t, resp.Created)
	require.NotNil(t, resp.Property.LastSyncedAt)
	assert.Equal(t, "2.0000", resp.Property.RentPerSqft.StringFixed(4))

	metrics, err := svc.GetMetrics(ctx, resp.Property.ID)
	require.NoError(t, err)
	require.NotNil(t, metrics.InvestmentScore)
	assert.Equal(t, "51.60", metrics.InvestmentScore.StringFixed(2))
	assert.Equal(t, "8.40", metrics.CapRate.StringFixed(2))
	assert.Nil(t, metrics.EstimatedProfit)
}

func TestUpsertMatchesByExternalIDThenAddress(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, domain.UpsertPropertyRequest{
		ExternalID: "zpid-7", Address: "7 Oak Ave", City: "Denver", State: "CO",
		CurrentPrice: dec("300000"),
	})
	require.NoError(t, err)
	require.NotNil(t, first.Property.EstimatedRent)
	assert.Equal(t, "3600.00", first.Property.EstimatedRent.StringFixed(2), "denver rent ratio")

	clk.Advance(time.Hour)
	second, err := svc.Upsert(ctx, domain.UpsertPropertyRequest{
		ExternalID: "zpid-7", Address: "7 Oak Avenue", City: "Denver", State: "CO",
		CurrentPrice: dec("310000"),
	})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Property.ID, second.Property.ID)
	assert.Equal(t, "310000", second.Property.CurrentPrice.String())

	third, err := svc.Upsert(ctx, domain.UpsertPropertyRequest{
		Address: "7 oak avenue", City: "denver", State: "co",
	})
	require.NoError(t, err)
	assert.False(t, third.Created)
	assert.Equal(t, first.Property.ID, third.Property.ID)
}

func TestUpsertValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, domain.UpsertPropertyRequest{City: "X", State: "Y"})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = svc.Upsert(ctx, domain.UpsertPropertyRequest{Address: "1 A", City: "X", State: "Y", CurrentPrice: dec("-1")})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestMetricsWithoutPriceOrRentAreNull(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Upsert(ctx, domain.UpsertPropertyRequest{Address: "1 Lot", City: "Austin", State: "TX"})
	require.NoError(t, err)

	metrics, err := svc.GetMetrics(ctx, resp.Property.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Property.ID, metrics.PropertyID)
	assert.Nil(t, metrics.AnnualRent)
	assert.Nil(t, metrics.InvestmentScore)
	assert.Nil(t, metrics.RiskScore)

	_, err = svc.GetMetrics(ctx, snowflake.ID(42))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestValuationsFeedROIAndFailuresDoNot(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Upsert(ctx, domain.UpsertPropertyRequest{
		Address: "5 Birch Rd", City: "Tampa", State: "FL",
		CurrentPrice: dec("300000"), EstimatedRent: dec("2400"),
	})
	require.NoError(t, err)
	id := resp.Property.ID

	metrics, err := svc.GetMetrics(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "6.72", metrics.ROI.StringFixed(2), "NOI yield before any valuation")

	older := clk.Now().Add(-48 * time.Hour)
	_, err = svc.RecordValuation(ctx, domain.RecordValuationRequest{
		PropertyID: id, Successful: true, ROIPercent: dec("25"), ValuedAt: &older,
	})
	require.NoError(t, err)

	_, err = svc.RecordValuation(ctx, domain.RecordValuationRequest{
		PropertyID: id, Successful: true, ROIPercent: dec("42.5"), FairValue: dec("320000"),
	})
	require.NoError(t, err)

	clk.Advance(time.Minute)
	failed, err := svc.RecordValuation(ctx, domain.RecordValuationRequest{
		PropertyID: id, Successful: false, ROIPercent: dec("99"), ErrorMessage: "upstream timeout",
	})
	require.NoError(t, err)
	assert.Nil(t, failed.ROIPercent)

	metrics, err = svc.GetMetrics(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "8.50", metrics.ROI.StringFixed(2), "latest successful valuation over five years")

	valuations, err := svc.ListValuations(ctx, id)
	require.NoError(t, err)
	require.Len(t, valuations, 3)
	assert.False(t, valuations[0].Successful)

	_, err = svc.RecordValuation(ctx, domain.RecordValuationRequest{PropertyID: snowflake.ID(9), Successful: true})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.RecordValuation(ctx, domain.RecordValuationRequest{PropertyID: id, Payload: []byte("{nope")})
	assert.ErrorIs(t, err, domain.ErrInvalidValuation)
}

func TestProfitPredictionReplacesAndClears(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Upsert(ctx, domain.UpsertPropertyRequest{
		Address: "9 Pine Ct", City: "Reno", State: "NV",
		CurrentPrice: dec("200000"), EstimatedRent: dec("2000"), EstimatedValue: dec("230000"),
	})
	require.NoError(t, err)
	id := resp.Property.ID

	metrics, err := svc.GetMetrics(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "30000.00", metrics.EstimatedProfit.StringFixed(2))

	_, err = svc.SetProfitPrediction(ctx, domain.SetProfitPredictionRequest{PropertyID: id, Amount: decimal.NewFromInt(5000)})
	require.NoError(t, err)
	pred, err := svc.SetProfitPrediction(ctx, domain.SetProfitPredictionRequest{PropertyID: id, Amount: decimal.NewFromInt(12000)})
	require.NoError(t, err)
	assert.Equal(t, "12000", pred.Amount.String())

	metrics, err = svc.GetMetrics(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "12000.00", metrics.EstimatedProfit.StringFixed(2))

	require.NoError(t, svc.ClearProfitPrediction(ctx, id))
	metrics, err = svc.GetMetrics(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "30000.00", metrics.EstimatedProfit.StringFixed(2))
}

func TestRecalculateIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Upsert(ctx, domain.UpsertPropertyRequest{
		Address: "3 Cedar Ln", City: "Omaha", State: "NE",
		CurrentPrice: dec("150000"), EstimatedRent: dec("1400"),
	})
	require.NoError(t, err)

	a, err := svc.RecalculateMetrics(ctx, resp.Property.ID)
	require.NoError(t, err)
	b, err := svc.RecalculateMetrics(ctx, resp.Property.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.True(t, a.InvestmentScore.Equal(*b.InvestmentScore))
}

func TestRecalculateStalePicksUpMissingMetrics(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	raw := &domain.Property{
		ID: snowflake.ID(77), Address: "77 Raw St", City: "Boise", State: "ID",
		CurrentPrice: dec("100000"), EstimatedRent: dec("1000"),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, svc.repo.InsertProperty(ctx, svc.db, raw))

	processed, err := svc.RecalculateStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	processed, err = svc.RecalculateStale(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestListFiltersAndDashboard(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inputs := []domain.UpsertPropertyRequest{
		{Address: "1 A St", City: "Denver", State: "CO", PropertyType: "single_family", CurrentPrice: dec("200000"), EstimatedRent: dec("2000")},
		{Address: "2 B St", City: "Denver", State: "CO", PropertyType: "condo", CurrentPrice: dec("400000"), EstimatedRent: dec("2000")},
		{Address: "3 C St", City: "Miami", State: "FL", PropertyType: "condo", CurrentPrice: dec("100000"), EstimatedRent: dec("1500")},
	}
	for _, in := range inputs {
		_, err := svc.Upsert(ctx, in)
		require.NoError(t, err)
	}

	resp, err := svc.List(ctx, domain.ListPropertyRequest{City: "denv"})
	require.NoError(t, err)
	assert.Len(t, resp.Properties, 2)

	high := true
	resp, err = svc.List(ctx, domain.ListPropertyRequest{HighCapRate: &high, Sort: "-cap_rate"})
	require.NoError(t, err)
	require.Len(t, resp.Properties, 2)
	assert.Equal(t, "3 C St", resp.Properties[0].Address)
	require.NotNil(t, resp.Properties[0].Metrics)

	resp, err = svc.List(ctx, domain.ListPropertyRequest{Sort: "price", Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, resp.Properties, 2)
	assert.True(t, resp.HasMore)
	assert.Equal(t, "3 C St", resp.Properties[0].Address)

	next, err := svc.List(ctx, domain.ListPropertyRequest{Sort: "price", Pagination: pagination.Pagination{PageSize: 2, PageToken: resp.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, next.Properties, 1)
	assert.Equal(t, "2 B St", next.Properties[0].Address)

	_, err = svc.List(ctx, domain.ListPropertyRequest{Sort: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidSort)

	stats, err := svc.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalProperties)
	assert.Equal(t, int64(3), stats.PropertiesWithMetrics)
	require.Len(t, stats.TopProperties, 3)
	assert.Equal(t, "3 C St", stats.TopProperties[0].Address)
	require.NotNil(t, stats.AvgCapRate)
}

func TestListHighCapRateFollowsScoringConfig(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, in := range []domain.UpsertPropertyRequest{
		{Address: "1 A St", City: "Denver", State: "CO", CurrentPrice: dec("200000"), EstimatedRent: dec("2000")},
		{Address: "3 C St", City: "Miami", State: "FL", CurrentPrice: dec("100000"), EstimatedRent: dec("1500")},
	} {
		_, err := svc.Upsert(ctx, in)
		require.NoError(t, err)
	}

	high := true
	resp, err := svc.List(ctx, domain.ListPropertyRequest{HighCapRate: &high})
	require.NoError(t, err)
	assert.Len(t, resp.Properties, 2)

	cfg := config.DefaultScoringConfig()
	cfg.HighCapRate = 10
	svc.scoring = config.NewStaticScoringConfigHolder(cfg)

	resp, err = svc.List(ctx, domain.ListPropertyRequest{HighCapRate: &high})
	require.NoError(t, err)
	require.Len(t, resp.Properties, 1)
	assert.Equal(t, "3 C St", resp.Properties[0].Address)

	low := false
	resp, err = svc.List(ctx, domain.ListPropertyRequest{HighCapRate: &low})
	require.NoError(t, err)
	require.Len(t, resp.Properties, 1)
	assert.Equal(t, "1 A St", resp.Properties[0].Address)
}

func ptr[T any](v T) *T {
	return &v
}
