package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/realvest/internal/audit/domain"
	ledgerdomain "github.com/smallbiznis/realvest/internal/ledger/domain"
	pipelinedomain "github.com/smallbiznis/realvest/internal/pipeline/domain"
	portfoliodomain "github.com/smallbiznis/realvest/internal/portfolio/domain"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	"github.com/smallbiznis/realvest/internal/ratelimit"
	"github.com/smallbiznis/realvest/internal/usercontext"
	watchlistdomain "github.com/smallbiznis/realvest/internal/watchlist/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUserID = "1001"

type fakePropertyService struct {
	propertydomain.Service

	listing  propertydomain.Listing
	err      error
	listReq  propertydomain.ListPropertyRequest
	callerID snowflake.ID
}

func (f *fakePropertyService) Get(ctx context.Context, id snowflake.ID) (propertydomain.Listing, error) {
	f.callerID, _ = usercontext.UserIDFromContext(ctx)
	if f.err != nil {
		return propertydomain.Listing{}, f.err
	}
	listing := f.listing
	listing.ID = id
	return listing, nil
}

func (f *fakePropertyService) List(_ context.Context, req propertydomain.ListPropertyRequest) (propertydomain.ListPropertyResponse, error) {
	f.listReq = req
	return propertydomain.ListPropertyResponse{Properties: []propertydomain.Listing{f.listing}}, f.err
}

type fakeWatchlistService struct {
	watchlistdomain.Service

	created bool
}

func (f *fakeWatchlistService) Add(_ context.Context, req watchlistdomain.AddRequest) (watchlistdomain.AddResponse, error) {
	return watchlistdomain.AddResponse{
		Item:    watchlistdomain.WatchlistItem{PropertyID: req.PropertyID, Notes: req.Notes},
		Created: f.created,
	}, nil
}

type fakePortfolioService struct {
	portfoliodomain.Service

	recorded ledgerdomain.RecordTransactionRequest
	months   int
}

func (f *fakePortfolioService) RecordTransaction(_ context.Context, ownedID snowflake.ID, req ledgerdomain.RecordTransactionRequest) (ledgerdomain.Transaction, error) {
	f.recorded = req
	return ledgerdomain.Transaction{OwnedPropertyID: ownedID, Type: ledgerdomain.TransactionType(req.Type), Amount: req.Amount}, nil
}

func (f *fakePortfolioService) CashFlowSeries(_ context.Context, months int) ([]ledgerdomain.MonthlyPoint, error) {
	f.months = months
	return []ledgerdomain.MonthlyPoint{}, nil
}

type fakePipelineService struct {
	pipelinedomain.Service

	err error
}

func (f *fakePipelineService) MoveDeal(_ context.Context, id snowflake.ID, req pipelinedomain.MoveDealRequest) (pipelinedomain.Deal, error) {
	if f.err != nil {
		return pipelinedomain.Deal{}, f.err
	}
	return pipelinedomain.Deal{ID: id, StageID: req.StageID, Position: req.Position}, nil
}

func (f *fakePipelineService) DeleteDeal(context.Context, snowflake.ID) error {
	return f.err
}

type fakeAuditService struct {
	auditdomain.Service

	req auditdomain.ListAuditLogRequest
}

func (f *fakeAuditService) List(_ context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.req = req
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	return auditdomain.ListAuditLogResponse{AuditLogs: []auditdomain.AuditLog{}}, nil
}

type fakeGuard struct {
	result ratelimit.Result
	err    error
	calls  int
}

func (f *fakeGuard) AllowMutation(context.Context, snowflake.ID) (ratelimit.Result, error) {
	f.calls++
	return f.result, f.err
}

type testServer struct {
	*Server
	property  *fakePropertyService
	watchlist *fakeWatchlistService
	portfolio *fakePortfolioService
	pipeline  *fakePipelineService
	audit     *fakeAuditService
}

func newTestServer(t *testing.T, guard mutationGuard) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	ts := &testServer{
		property:  &fakePropertyService{},
		watchlist: &fakeWatchlistService{},
		portfolio: &fakePortfolioService{},
		pipeline:  &fakePipelineService{},
		audit:     &fakeAuditService{},
	}
	ts.Server = &Server{
		engine:       engine,
		log:          zap.NewNop(),
		propertySvc:  ts.property,
		watchlistSvc: ts.watchlist,
		portfolioSvc: ts.portfolio,
		pipelineSvc:  ts.pipeline,
		auditSvc:     ts.audit,
		guard:        guard,
	}
	ts.registerAPIRoutes()
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderUserID, testUserID)
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestUserContextRequiresHeader(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, header := range []string{"", "abc", "-5"} {
		req := httptest.NewRequest(http.MethodGet, "/api/properties/42", nil)
		if header != "" {
			req.Header.Set(HeaderUserID, header)
		}
		rec := httptest.NewRecorder()
		ts.engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header=%q", header)
		assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
	}
}

func TestGetPropertyPassesOwnerAndID(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.property.listing = propertydomain.Listing{Property: propertydomain.Property{Address: "1 Main St"}}

	rec := ts.do(http.MethodGet, "/api/properties/42", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data propertydomain.Listing `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, snowflake.ID(42), resp.Data.ID)
	assert.Equal(t, "1 Main St", resp.Data.Address)
	assert.Equal(t, snowflake.ID(1001), ts.property.callerID)
}

func TestGetPropertyErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/properties/not-a-number", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "id", payload.Errors[0].Field)

	ts.property.err = propertydomain.ErrNotFound
	rec = ts.do(http.MethodGet, "/api/properties/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)

	ts.property.err = errors.New("boom")
	rec = ts.do(http.MethodGet, "/api/properties/42", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeError(t, rec).Type)
}

func TestListPropertiesParsesFilters(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet,
		"/api/properties?city=Denver&min_price=100000&max_cap_rate=8.5&is_profitable=true&sort=-cap_rate&page_size=10",
		"")
	require.Equal(t, http.StatusOK, rec.Code)

	req := ts.property.listReq
	assert.Equal(t, "Denver", req.City)
	require.NotNil(t, req.Price.Min)
	assert.True(t, req.Price.Min.Equal(decimal.NewFromInt(100000)))
	assert.Nil(t, req.Price.Max)
	require.NotNil(t, req.CapRate.Max)
	assert.Equal(t, "8.5", req.CapRate.Max.String())
	require.NotNil(t, req.IsProfitable)
	assert.True(t, *req.IsProfitable)
	assert.Nil(t, req.HasMetrics)
	assert.Equal(t, "-cap_rate", req.Sort)
	assert.Equal(t, 10, req.PageSize)
}

func TestListPropertiesRejectsBadFilter(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/properties?min_price=cheap", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "min_price", payload.Errors[0].Field)

	rec = ts.do(http.MethodGet, "/api/properties?has_metrics=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddToWatchlistStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.watchlist.created = true
	rec := ts.do(http.MethodPost, "/api/watchlist", `{"property_id":"42","notes":" look "}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	ts.watchlist.created = false
	rec = ts.do(http.MethodPost, "/api/watchlist", `{"property_id":"42"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/api/watchlist", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordTransactionParsesBody(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/portfolio/properties/7/transactions",
		`{"type":" Income ","category":"rent","amount":"1500.25","occurred_on":"2024-03-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	got := ts.portfolio.recorded
	assert.Equal(t, snowflake.ID(7), got.OwnedPropertyID)
	assert.Equal(t, "income", got.Type)
	assert.Equal(t, "rent", got.Category)
	assert.Equal(t, "1500.25", got.Amount.String())
	assert.True(t, got.OccurredOn.Equal(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)))

	rec = ts.do(http.MethodPost, "/api/portfolio/properties/7/transactions",
		`{"type":"income","occurred_on":"2024-03-01"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount", decodeError(t, rec).Errors[0].Field)

	rec = ts.do(http.MethodPost, "/api/portfolio/properties/7/transactions",
		`{"type":"income","amount":10,"occurred_on":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCashFlowMonths(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/portfolio/cash-flow", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultCashFlowMonths, ts.portfolio.months)

	rec = ts.do(http.MethodGet, "/api/portfolio/cash-flow?months=6", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, ts.portfolio.months)

	rec = ts.do(http.MethodGet, fmt.Sprintf("/api/portfolio/cash-flow?months=%d", ledgerdomain.MaxSeriesMonths), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ledgerdomain.MaxSeriesMonths, ts.portfolio.months)

	for _, bad := range []string{"0", "-1", "x", fmt.Sprint(ledgerdomain.MaxSeriesMonths + 1)} {
		rec = ts.do(http.MethodGet, "/api/portfolio/cash-flow?months="+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "months=%s", bad)
	}
}

func TestPipelineErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil)
	body := `{"stage_id":"3","position":0}`

	rec := ts.do(http.MethodPost, "/api/pipeline/deals/9/move", body)
	require.Equal(t, http.StatusOK, rec.Code)

	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{pipelinedomain.ErrBusy, http.StatusConflict, "busy"},
		{pipelinedomain.ErrInvariantViolation, http.StatusConflict, "invariant_violation"},
		{pipelinedomain.ErrInvalidReference, http.StatusNotFound, "not_found"},
		{pipelinedomain.ErrInvalidPosition, http.StatusBadRequest, "validation_error"},
	}
	for _, tc := range cases {
		ts.pipeline.err = tc.err
		rec = ts.do(http.MethodPost, "/api/pipeline/deals/9/move", body)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.kind, decodeError(t, rec).Type, tc.err.Error())
	}

	ts.pipeline.err = nil
	rec = ts.do(http.MethodPost, "/api/pipeline/deals/9/move", `{"stage_id":"3"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMutationRateLimit(t *testing.T) {
	guard := &fakeGuard{result: ratelimit.Result{Allowed: false, Limit: 20, Remaining: 0, RetryAfter: 300 * time.Millisecond}}
	ts := newTestServer(t, guard)

	rec := ts.do(http.MethodDelete, "/api/pipeline/deals/9", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))

	rec = ts.do(http.MethodGet, "/api/portfolio/cash-flow", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, guard.calls, "reads skip the limiter")

	guard.result = ratelimit.Result{Allowed: true, Limit: 20, Remaining: 19}
	rec = ts.do(http.MethodDelete, "/api/pipeline/deals/9", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "19", rec.Header().Get(HeaderRateLimitRemaining))

	guard.err = errors.New("redis down")
	rec = ts.do(http.MethodDelete, "/api/pipeline/deals/9", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCorsConfig(t *testing.T) {
	open := corsConfig(nil)
	assert.True(t, open.AllowAllOrigins)
	assert.False(t, open.AllowCredentials)

	restricted := corsConfig([]string{"https://app.example.com"})
	assert.False(t, restricted.AllowAllOrigins)
	assert.True(t, restricted.AllowCredentials)
	assert.Equal(t, []string{"https://app.example.com"}, restricted.AllowOrigins)
}

func TestListAuditLogsQuery(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/audit-logs?action=deal.moved&start_at=2025-01-01&end_at=2025-01-31&page_size=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	req := ts.audit.req
	assert.Equal(t, "deal.moved", req.Action)
	assert.Equal(t, 5, req.PageSize)
	require.NotNil(t, req.StartAt)
	require.NotNil(t, req.EndAt)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), *req.StartAt)
	assert.Equal(t, 31, req.EndAt.Day())
	assert.Equal(t, 23, req.EndAt.Hour())

	rec = ts.do(http.MethodGet, "/api/audit-logs?start_at=2025-02-01&end_at=2025-01-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/audit-logs?start_at=soon", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "start_at", decodeError(t, rec).Errors[0].Field)
}
