package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/realvest/internal/clock"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	"github.com/smallbiznis/realvest/internal/usercontext"
	"github.com/smallbiznis/realvest/internal/watchlist/domain"
	"github.com/smallbiznis/realvest/internal/watchlist/repository"
	"github.com/smallbiznis/realvest/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatchlistLifecycle(t *testing.T) {
	db := dbtest.Open(t, &domain.WatchlistItem{}, &propertydomain.Property{}, &propertydomain.InvestmentMetrics{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	scored := propertydomain.Property{ID: 1, Address: "1 A St", City: "Denver", State: "CO", CreatedAt: now, UpdatedAt: now}
	plain := propertydomain.Property{ID: 2, Address: "2 B St", City: "Denver", State: "CO", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.Create(&[]propertydomain.Property{scored, plain}).Error)
	score := decimal.NewFromInt(64)
	require.NoError(t, db.Create(&propertydomain.InvestmentMetrics{ID: 10, PropertyID: 1, InvestmentScore: &score, CalculatedAt: now}).Error)

	svc := New(Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repository.Provide(), Clock: clock.NewFakeClock(now)})
	ctx := usercontext.WithUserID(context.Background(), snowflake.ID(5))

	resp, err := svc.Add(ctx, domain.AddRequest{PropertyID: 1, Notes: " near park "})
	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Equal(t, "near park", resp.Item.Notes)

	again, err := svc.Add(ctx, domain.AddRequest{PropertyID: 1})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, resp.Item.ID, again.Item.ID)

	_, err = svc.Add(ctx, domain.AddRequest{PropertyID: 2})
	require.NoError(t, err)
	_, err = svc.Add(ctx, domain.AddRequest{PropertyID: 3})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	entries, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		if e.Property.ID == 1 {
			require.NotNil(t, e.Metrics)
			assert.Equal(t, "64", e.Metrics.InvestmentScore.String())
		} else {
			assert.Nil(t, e.Metrics)
		}
	}

	others, err := svc.List(usercontext.WithUserID(context.Background(), snowflake.ID(6)))
	require.NoError(t, err)
	assert.Empty(t, others)

	require.NoError(t, svc.Remove(ctx, 1))
	assert.ErrorIs(t, svc.Remove(ctx, 1), domain.ErrNotFound)
}
