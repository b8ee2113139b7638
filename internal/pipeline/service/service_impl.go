package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/realvest/internal/audit/domain"
	"github.com/smallbiznis/realvest/internal/clock"
	"github.com/smallbiznis/realvest/internal/finance"
	"github.com/smallbiznis/realvest/internal/observability/metrics"
	"github.com/smallbiznis/realvest/internal/pipeline/domain"
	"github.com/smallbiznis/realvest/internal/pipeline/reconcile"
	"github.com/smallbiznis/realvest/internal/usercontext"
	"github.com/smallbiznis/realvest/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxRelockAttempts bounds how often a deal is re-read when it changes stage
// between the read and the board lock.
const maxRelockAttempts = 3

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock
	Lock    domain.OwnerLock    `optional:"true"`
	Audit   auditdomain.Service `optional:"true"`
	Metrics *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	clock   clock.Clock
	lock    domain.OwnerLock
	audit   auditdomain.Service
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("pipeline.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   clk,
		lock:    p.Lock,
		audit:   p.Audit,
		metrics: p.Metrics,
	}
}

func (s *Service) ListStages(ctx context.Context) ([]domain.DealStage, error) {
	return s.repo.ListStages(ctx, s.db)
}

// ListDeals groups the owner's deals by stage in display order.
func (s *Service) ListDeals(ctx context.Context) ([]domain.StageColumn, error) {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOwner
	}
	stages, err := s.repo.ListStages(ctx, s.db)
	if err != nil {
		return nil, err
	}
	deals, err := s.repo.ListDeals(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}

	byStage := make(map[snowflake.ID][]domain.Deal, len(stages))
	for _, deal := range deals {
		byStage[deal.StageID] = append(byStage[deal.StageID], deal)
	}
	columns := make([]domain.StageColumn, 0, len(stages))
	for _, stage := range stages {
		items := byStage[stage.ID]
		if items == nil {
			items = []domain.Deal{}
		}
		columns = append(columns, domain.StageColumn{Stage: stage, Deals: items})
	}
	return columns, nil
}

func (s *Service) CreateDeal(ctx context.Context, req domain.CreateDealRequest) (domain.Deal, error) {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.Deal{}, domain.ErrInvalidOwner
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Deal{}, domain.ErrInvalidTitle
	}
	if req.ExpectedValue != nil && req.ExpectedValue.IsNegative() {
		return domain.Deal{}, domain.ErrInvalidAmount
	}

	release, err := s.acquire(ctx, ownerID)
	if err != nil {
		return domain.Deal{}, err
	}
	defer release()

	now := s.clock.Now()
	deal := domain.Deal{
		ID:            s.genID.Generate(),
		OwnerID:       ownerID,
		Title:         title,
		PropertyID:    req.PropertyID,
		ExpectedValue: finance.RoundPtr(req.ExpectedValue),
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.mutate(ctx, "create", func(tx *gorm.DB) error {
		stage, err := s.resolveStage(ctx, tx, req.StageID, req.StageName)
		if err != nil {
			return err
		}
		if err := s.checkProperty(ctx, tx, req.PropertyID); err != nil {
			return err
		}

		board, err := s.lockBoard(ctx, tx, ownerID, stage.ID)
		if err != nil {
			return err
		}
		step, err := board.Append(deal.ID, stage.ID)
		if err != nil {
			return err
		}
		deal.StageID = step.Stage
		deal.Position = step.Position
		if err := s.repo.InsertDeal(ctx, tx, &deal); err != nil {
			return err
		}
		return s.verify(ctx, tx, ownerID, stage.ID)
	})
	if err != nil {
		return domain.Deal{}, err
	}
	return deal, nil
}

func (s *Service) UpdateDeal(ctx context.Context, id snowflake.ID, req domain.UpdateDealRequest) (domain.Deal, error) {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.Deal{}, domain.ErrInvalidOwner
	}
	if id == 0 {
		return domain.Deal{}, domain.ErrInvalidID
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return domain.Deal{}, domain.ErrInvalidTitle
	}
	if req.ExpectedValue != nil && req.ExpectedValue.IsNegative() {
		return domain.Deal{}, domain.ErrInvalidAmount
	}

	var out domain.Deal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deal, err := s.repo.FindDeal(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		if deal == nil {
			return domain.ErrInvalidReference
		}

		if req.Title != nil {
			deal.Title = strings.TrimSpace(*req.Title)
		}
		if req.Notes != nil {
			deal.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.ExpectedValue != nil {
			deal.ExpectedValue = finance.RoundPtr(req.ExpectedValue)
		}
		switch {
		case req.ClearProperty:
			deal.PropertyID = nil
		case req.PropertyID != nil:
			if err := s.checkProperty(ctx, tx, req.PropertyID); err != nil {
				return err
			}
			deal.PropertyID = req.PropertyID
		}
		deal.UpdatedAt = s.clock.Now()

		if err := s.repo.UpdateDealFields(ctx, tx, deal); err != nil {
			return err
		}
		out = *deal
		return nil
	})
	if err != nil {
		return domain.Deal{}, err
	}
	s.metrics.RecordDealMutation(ctx, "update")
	return out, nil
}

// MoveDeal relocates a deal and shifts its neighbours so that both affected
// stages stay contiguous. Nothing changes unless every step succeeds.
func (s *Service) MoveDeal(ctx context.Context, id snowflake.ID, req domain.MoveDealRequest) (domain.Deal, error) {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.Deal{}, domain.ErrInvalidOwner
	}
	if id == 0 || req.StageID == 0 {
		return domain.Deal{}, domain.ErrInvalidReference
	}
	if req.Position < 0 {
		return domain.Deal{}, domain.ErrInvalidPosition
	}

	release, err := s.acquire(ctx, ownerID)
	if err != nil {
		return domain.Deal{}, err
	}
	defer release()

	var out domain.Deal
	err = s.mutate(ctx, "move", func(tx *gorm.DB) error {
		target, err := s.repo.FindStage(ctx, tx, req.StageID)
		if err != nil {
			return err
		}
		if target == nil {
			return domain.ErrInvalidReference
		}

		deal, board, stageIDs, err := s.lockDeal(ctx, tx, ownerID, id, target.ID)
		if err != nil {
			return err
		}
		if deal == nil {
			return domain.ErrInvalidReference
		}
		steps, err := board.Move(deal.ID, target.ID, req.Position)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, tx, ownerID, steps); err != nil {
			return err
		}
		if err := s.verify(ctx, tx, ownerID, stageIDs...); err != nil {
			return err
		}

		moved, err := s.repo.FindDeal(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		want, _ := board.Slot(deal.ID)
		if moved == nil || moved.StageID != want.Stage || moved.Position != want.Position {
			return domain.ErrInvariantViolation
		}
		out = *moved
		return s.record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionDealMoved,
			TargetType: "deal",
			TargetID:   deal.ID,
			Metadata: map[string]any{
				"from_stage_id": deal.StageID.String(),
				"from_position": deal.Position,
				"to_stage_id":   moved.StageID.String(),
				"to_position":   moved.Position,
			},
		})
	})
	if err != nil {
		return domain.Deal{}, err
	}

	s.log.Debug("deal moved",
		zap.String("deal_id", id.String()),
		zap.String("stage_id", out.StageID.String()),
		zap.Int("position", out.Position),
	)
	return out, nil
}

// DeleteDeal removes a deal and compacts its former stage.
func (s *Service) DeleteDeal(ctx context.Context, id snowflake.ID) error {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOwner
	}
	if id == 0 {
		return domain.ErrInvalidID
	}

	release, err := s.acquire(ctx, ownerID)
	if err != nil {
		return err
	}
	defer release()

	return s.mutate(ctx, "delete", func(tx *gorm.DB) error {
		deal, board, _, err := s.lockDeal(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		if deal == nil {
			return domain.ErrNotFound
		}
		steps, err := board.Remove(deal.ID)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteDeal(ctx, tx, ownerID, deal.ID); err != nil {
			return err
		}
		if err := s.apply(ctx, tx, ownerID, steps); err != nil {
			return err
		}
		if err := s.verify(ctx, tx, ownerID, deal.StageID); err != nil {
			return err
		}
		return s.record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionDealDeleted,
			TargetType: "deal",
			TargetID:   deal.ID,
			Metadata: map[string]any{
				"title":    deal.Title,
				"stage_id": deal.StageID.String(),
				"position": deal.Position,
			},
		})
	})
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, tx, entry)
}

func (s *Service) acquire(ctx context.Context, ownerID snowflake.ID) (func(), error) {
	if s.lock == nil {
		return func() {}, nil
	}
	return s.lock.LockOwner(ctx, ownerID)
}

// mutate runs fn in one transaction and records its outcome. A unique index
// conflict means a concurrent writer won the slot.
func (s *Service) mutate(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	switch {
	case err == nil:
		s.metrics.RecordDealMutation(ctx, operation)
		return nil
	case errors.Is(err, domain.ErrInvariantViolation):
		s.metrics.RecordInvariantViolation(ctx, operation)
		s.log.Error("pipeline invariant violated, mutation rolled back",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return domain.ErrInvariantViolation
	case db.IsDuplicateKeyErr(err):
		return domain.ErrBusy
	default:
		return err
	}
}

func (s *Service) lockBoard(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, stageIDs ...snowflake.ID) (*reconcile.Board, error) {
	lockStart := time.Now()
	deals, err := s.repo.LockStageDeals(ctx, tx, ownerID, stageIDs)
	metrics.Scheduler().ObserveDBLockWait(metrics.LockResourceDealBoard, time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	board := reconcile.NewBoard(stageIDs...)
	if err := board.Load(slotsOf(deals)); err != nil {
		return nil, err
	}
	return board, nil
}

// lockDeal locks the stage holding a deal together with any extra stages.
// The deal is read again under the lock in case it changed stage before the
// lock was taken. A nil deal means it no longer exists.
func (s *Service) lockDeal(ctx context.Context, tx *gorm.DB, ownerID, id snowflake.ID, extra ...snowflake.ID) (*domain.Deal, *reconcile.Board, []snowflake.ID, error) {
	for attempt := 0; attempt < maxRelockAttempts; attempt++ {
		deal, err := s.repo.FindDeal(ctx, tx, ownerID, id)
		if err != nil || deal == nil {
			return nil, nil, nil, err
		}
		stageIDs := uniqueIDs(append([]snowflake.ID{deal.StageID}, extra...)...)
		board, err := s.lockBoard(ctx, tx, ownerID, stageIDs...)
		if err != nil {
			return nil, nil, nil, err
		}
		if slot, ok := board.Slot(id); ok {
			deal.StageID, deal.Position = slot.Stage, slot.Position
			return deal, board, stageIDs, nil
		}
		s.log.Debug("deal changed stage before lock, retrying", zap.String("deal_id", id.String()))
	}
	return nil, nil, nil, domain.ErrBusy
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, steps []reconcile.Step) error {
	now := s.clock.Now()
	for _, step := range steps {
		if err := s.repo.SetPlacement(ctx, tx, ownerID, step.Deal, step.Stage, step.Position, now); err != nil {
			return err
		}
	}
	return nil
}

// verify re-reads the stages and rejects the transaction unless they are
// contiguous.
func (s *Service) verify(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, stageIDs ...snowflake.ID) error {
	_, err := s.lockBoard(ctx, tx, ownerID, stageIDs...)
	return err
}

func (s *Service) resolveStage(ctx context.Context, tx *gorm.DB, id snowflake.ID, name string) (*domain.DealStage, error) {
	var (
		stage *domain.DealStage
		err   error
	)
	switch {
	case id != 0:
		stage, err = s.repo.FindStage(ctx, tx, id)
	case strings.TrimSpace(name) != "":
		stage, err = s.repo.FindStageByName(ctx, tx, slug.Make(name))
	default:
		var stages []domain.DealStage
		stages, err = s.repo.ListStages(ctx, tx)
		if len(stages) > 0 {
			stage = &stages[0]
		}
	}
	if err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, domain.ErrInvalidReference
	}
	return stage, nil
}

func (s *Service) checkProperty(ctx context.Context, tx *gorm.DB, propertyID *snowflake.ID) error {
	if propertyID == nil {
		return nil
	}
	exists, err := s.repo.PropertyExists(ctx, tx, *propertyID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrInvalidReference
	}
	return nil
}

func slotsOf(deals []domain.Deal) []reconcile.Slot {
	out := make([]reconcile.Slot, 0, len(deals))
	for _, d := range deals {
		out = append(out, reconcile.Slot{Deal: d.ID, Stage: d.StageID, Position: d.Position})
	}
	return out
}

func uniqueIDs(ids ...snowflake.ID) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(ids))
	seen := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

