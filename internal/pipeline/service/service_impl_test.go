package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/realvest/internal/audit/domain"
	"github.com/smallbiznis/realvest/internal/clock"
	"github.com/smallbiznis/realvest/internal/pipeline/domain"
	"github.com/smallbiznis/realvest/internal/pipeline/repository"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	"github.com/smallbiznis/realvest/internal/usercontext"
	"github.com/smallbiznis/realvest/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const owner = snowflake.ID(900)

type busyLock struct{}

func (busyLock) LockOwner(context.Context, snowflake.ID) (func(), error) {
	return nil, domain.ErrBusy
}

type fixture struct {
	svc    *Service
	db     *gorm.DB
	ctx    context.Context
	stages []domain.DealStage
}

func newFixture(t *testing.T, lock domain.OwnerLock) fixture {
	t.Helper()
	db := dbtest.Open(t, &domain.DealStage{}, &domain.Deal{}, &propertydomain.Property{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	repo := repository.Provide()
	var stages []domain.DealStage
	for _, def := range domain.DefaultStages {
		stage := domain.DealStage{
			ID:           node.Generate(),
			Name:         slug.Make(def.DisplayName),
			DisplayName:  def.DisplayName,
			DisplayOrder: def.DisplayOrder,
			Color:        def.Color,
			CreatedAt:    clk.Now(),
		}
		require.NoError(t, repo.InsertStage(context.Background(), db, &stage))
		stages = append(stages, stage)
	}

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repo,
		Clock: clk,
		Lock:  lock,
	}).(*Service)
	return fixture{
		svc:    svc,
		db:     db,
		ctx:    usercontext.WithUserID(context.Background(), owner),
		stages: stages,
	}
}

func (f fixture) create(t *testing.T, stage int, title string) domain.Deal {
	t.Helper()
	deal, err := f.svc.CreateDeal(f.ctx, domain.CreateDealRequest{StageID: f.stages[stage].ID, Title: title})
	require.NoError(t, err)
	return deal
}

// layout returns deal titles per stage in position order.
func (f fixture) layout(t *testing.T) map[string][]string {
	t.Helper()
	columns, err := f.svc.ListDeals(f.ctx)
	require.NoError(t, err)
	out := map[string][]string{}
	for _, col := range columns {
		titles := []string{}
		for i, deal := range col.Deals {
			require.Equal(t, i, deal.Position, "stage %s", col.Stage.Name)
			titles = append(titles, deal.Title)
		}
		out[col.Stage.Name] = titles
	}
	return out
}

func TestCreateAppendsToStage(t *testing.T) {
	f := newFixture(t, nil)

	first, err := f.svc.CreateDeal(f.ctx, domain.CreateDealRequest{Title: "  Duplex on 5th  "})
	require.NoError(t, err)
	assert.Equal(t, f.stages[0].ID, first.StageID)
	assert.Equal(t, 0, first.Position)
	assert.Equal(t, "Duplex on 5th", first.Title)

	second, err := f.svc.CreateDeal(f.ctx, domain.CreateDealRequest{StageName: "Acquisition", Title: "Fourplex"})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Position)

	review := f.create(t, 1, "Condo")
	assert.Equal(t, 0, review.Position)

	_, err = f.svc.CreateDeal(f.ctx, domain.CreateDealRequest{Title: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidTitle)
	_, err = f.svc.CreateDeal(f.ctx, domain.CreateDealRequest{StageName: "nope", Title: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
	_, err = f.svc.CreateDeal(f.ctx, domain.CreateDealRequest{Title: "x", PropertyID: ptr(snowflake.ID(1))})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
	_, err = f.svc.CreateDeal(context.Background(), domain.CreateDealRequest{Title: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidOwner)
}

func TestMoveAcrossStages(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, 0, "a0")
	a1 := f.create(t, 0, "a1")
	f.create(t, 0, "a2")
	f.create(t, 1, "b0")
	f.create(t, 1, "b1")

	moved, err := f.svc.MoveDeal(f.ctx, a1.ID, domain.MoveDealRequest{StageID: f.stages[1].ID, Position: 1})
	require.NoError(t, err)
	assert.Equal(t, f.stages[1].ID, moved.StageID)
	assert.Equal(t, 1, moved.Position)

	got := f.layout(t)
	assert.Equal(t, []string{"a0", "a2"}, got["acquisition"])
	assert.Equal(t, []string{"b0", "a1", "b1"}, got["review"])
	assert.Empty(t, got["active"])
}

func TestMoveWithinStageAndClamp(t *testing.T) {
	f := newFixture(t, nil)
	d0 := f.create(t, 2, "d0")
	f.create(t, 2, "d1")
	d2 := f.create(t, 2, "d2")

	_, err := f.svc.MoveDeal(f.ctx, d0.ID, domain.MoveDealRequest{StageID: f.stages[2].ID, Position: 40})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d0"}, f.layout(t)["active"])

	_, err = f.svc.MoveDeal(f.ctx, d2.ID, domain.MoveDealRequest{StageID: f.stages[2].ID, Position: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d1", "d0"}, f.layout(t)["active"])
}

func TestMoveRejectionsLeaveNoTrace(t *testing.T) {
	f := newFixture(t, nil)
	a := f.create(t, 0, "a")
	f.create(t, 0, "b")
	before := f.layout(t)

	_, err := f.svc.MoveDeal(f.ctx, a.ID, domain.MoveDealRequest{StageID: f.stages[1].ID, Position: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)
	_, err = f.svc.MoveDeal(f.ctx, snowflake.ID(12345), domain.MoveDealRequest{StageID: f.stages[1].ID})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
	_, err = f.svc.MoveDeal(f.ctx, a.ID, domain.MoveDealRequest{StageID: snowflake.ID(12345)})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	other := usercontext.WithUserID(context.Background(), owner+1)
	_, err = f.svc.MoveDeal(other, a.ID, domain.MoveDealRequest{StageID: f.stages[1].ID})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	assert.Equal(t, before, f.layout(t))
}

func TestCorruptStageIsRejectedAndRolledBack(t *testing.T) {
	f := newFixture(t, nil)
	a := f.create(t, 0, "a")
	b := f.create(t, 0, "b")
	require.NoError(t, f.db.Model(&domain.Deal{}).Where("id = ?", b.ID).Update("position", 5).Error)

	_, err := f.svc.MoveDeal(f.ctx, a.ID, domain.MoveDealRequest{StageID: f.stages[1].ID, Position: 0})
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	var stored domain.Deal
	require.NoError(t, f.db.First(&stored, "id = ?", a.ID).Error)
	assert.Equal(t, f.stages[0].ID, stored.StageID)
	assert.Equal(t, 0, stored.Position)
}

func TestDeleteCompactsStage(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, 3, "c0")
	c1 := f.create(t, 3, "c1")
	f.create(t, 3, "c2")
	f.create(t, 3, "c3")

	require.NoError(t, f.svc.DeleteDeal(f.ctx, c1.ID))
	assert.Equal(t, []string{"c0", "c2", "c3"}, f.layout(t)["closed"])
	assert.ErrorIs(t, f.svc.DeleteDeal(f.ctx, c1.ID), domain.ErrNotFound)
}

func TestUpdateDealFields(t *testing.T) {
	f := newFixture(t, nil)
	deal := f.create(t, 0, "a")
	property := propertydomain.Property{ID: 77, Address: "1 A St", City: "Austin", State: "TX", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, f.db.Create(&property).Error)

	value := decimal.RequireFromString("315000.499")
	updated, err := f.svc.UpdateDeal(f.ctx, deal.ID, domain.UpdateDealRequest{
		Title:         ptr("Ranch"),
		ExpectedValue: &value,
		PropertyID:    &property.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ranch", updated.Title)
	assert.Equal(t, "315000.50", updated.ExpectedValue.StringFixed(2))
	require.NotNil(t, updated.PropertyID)
	assert.Equal(t, 0, updated.Position)

	_, err = f.svc.UpdateDeal(f.ctx, deal.ID, domain.UpdateDealRequest{PropertyID: ptr(snowflake.ID(78))})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	cleared, err := f.svc.UpdateDeal(f.ctx, deal.ID, domain.UpdateDealRequest{ClearProperty: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.PropertyID)
}

func TestBusyLockRejectsMutations(t *testing.T) {
	f := newFixture(t, busyLock{})
	_, err := f.svc.CreateDeal(f.ctx, domain.CreateDealRequest{Title: "a"})
	assert.ErrorIs(t, err, domain.ErrBusy)

	var count int64
	require.NoError(t, f.db.Model(&domain.Deal{}).Count(&count).Error)
	assert.Zero(t, count)
}

func ptr[T any](v T) *T { return &v }

type recordingAudit struct {
	auditdomain.Service
	entries []auditdomain.Entry
	err     error
}

func (r *recordingAudit) Record(_ context.Context, _ *gorm.DB, entry auditdomain.Entry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func TestMoveAndDeleteAreAudited(t *testing.T) {
	f := newFixture(t, nil)
	audit := &recordingAudit{}
	f.svc.audit = audit

	a := f.create(t, 0, "a")
	_, err := f.svc.MoveDeal(f.ctx, a.ID, domain.MoveDealRequest{StageID: f.stages[1].ID, Position: 0})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteDeal(f.ctx, a.ID))

	require.Len(t, audit.entries, 2)
	moved := audit.entries[0]
	assert.Equal(t, auditdomain.ActionDealMoved, moved.Action)
	assert.Equal(t, a.ID, moved.TargetID)
	assert.Equal(t, f.stages[0].ID.String(), moved.Metadata["from_stage_id"])
	assert.Equal(t, f.stages[1].ID.String(), moved.Metadata["to_stage_id"])
	assert.Equal(t, auditdomain.ActionDealDeleted, audit.entries[1].Action)
}

func TestAuditFailureRollsBackMove(t *testing.T) {
	f := newFixture(t, nil)
	a := f.create(t, 0, "a")
	f.svc.audit = &recordingAudit{err: errors.New("audit down")}

	_, err := f.svc.MoveDeal(f.ctx, a.ID, domain.MoveDealRequest{StageID: f.stages[1].ID, Position: 0})
	require.Error(t, err)

	var stored domain.Deal
	require.NoError(t, f.db.First(&stored, "id = ?", a.ID).Error)
	assert.Equal(t, f.stages[0].ID, stored.StageID)
	assert.Equal(t, 0, stored.Position)
}

// staleRepo serves outdated deal reads, as seen by a request that raced a
// concurrent move from another process.
type staleRepo struct {
	domain.Repository
	stale func(*domain.Deal) *domain.Deal
	reads int
	limit int
}

func (r *staleRepo) FindDeal(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*domain.Deal, error) {
	deal, err := r.Repository.FindDeal(ctx, db, ownerID, id)
	if err != nil {
		return nil, err
	}
	r.reads++
	if r.limit > 0 && r.reads > r.limit {
		return deal, nil
	}
	return r.stale(deal), nil
}

func TestMoveRereadsDealMovedBeforeLock(t *testing.T) {
	f := newFixture(t, nil)
	audit := &recordingAudit{}
	f.svc.audit = audit
	f.create(t, 2, "c0")
	deal := f.create(t, 2, "c1")
	f.create(t, 2, "c2")

	f.svc.repo = &staleRepo{
		Repository: f.svc.repo,
		limit:      1,
		stale: func(d *domain.Deal) *domain.Deal {
			out := *d
			out.StageID, out.Position = f.stages[0].ID, 4
			return &out
		},
	}

	moved, err := f.svc.MoveDeal(f.ctx, deal.ID, domain.MoveDealRequest{StageID: f.stages[1].ID, Position: 0})
	require.NoError(t, err)
	assert.Equal(t, f.stages[1].ID, moved.StageID)

	got := f.layout(t)
	assert.Equal(t, []string{"c0", "c2"}, got["active"])
	assert.Equal(t, []string{"c1"}, got["review"])

	require.Len(t, audit.entries, 1)
	assert.Equal(t, f.stages[2].ID.String(), audit.entries[0].Metadata["from_stage_id"])
	assert.Equal(t, 1, audit.entries[0].Metadata["from_position"])
}

func TestMoveAndDeleteOfDealGoneBeforeLock(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t, 0, "a0")
	ghost := snowflake.ID(555)
	f.svc.repo = &staleRepo{
		Repository: f.svc.repo,
		limit:      1,
		stale: func(*domain.Deal) *domain.Deal {
			return &domain.Deal{ID: ghost, OwnerID: owner, StageID: f.stages[0].ID, Position: 1}
		},
	}
	_, err := f.svc.MoveDeal(f.ctx, ghost, domain.MoveDealRequest{StageID: f.stages[1].ID})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	f.svc.repo.(*staleRepo).reads = 0
	assert.ErrorIs(t, f.svc.DeleteDeal(f.ctx, ghost), domain.ErrNotFound)
	assert.Equal(t, []string{"a0"}, f.layout(t)["acquisition"])
}

func TestMoveGivesUpWhenDealKeepsMoving(t *testing.T) {
	f := newFixture(t, nil)
	deal := f.create(t, 2, "c0")
	f.svc.repo = &staleRepo{
		Repository: f.svc.repo,
		stale: func(d *domain.Deal) *domain.Deal {
			out := *d
			out.StageID = f.stages[3].ID
			return &out
		},
	}

	_, err := f.svc.MoveDeal(f.ctx, deal.ID, domain.MoveDealRequest{StageID: f.stages[1].ID})
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.Equal(t, []string{"c0"}, f.layout(t)["active"])
}
