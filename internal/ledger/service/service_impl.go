package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/realvest/internal/clock"
	"github.com/smallbiznis/realvest/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/realvest/internal/observability/metrics"
	"github.com/smallbiznis/realvest/internal/usercontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordTransactionRequest) (domain.Transaction, error) {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.Transaction{}, domain.ErrInvalidOwner
	}
	if req.OwnedPropertyID == 0 {
		return domain.Transaction{}, domain.ErrInvalidOwnedProperty
	}
	txType, err := domain.NormalizeType(req.Type)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}
	if req.OccurredOn.IsZero() {
		return domain.Transaction{}, domain.ErrInvalidDate
	}

	now := s.clock.Now()
	txn := domain.Transaction{
		ID:              s.genID.Generate(),
		OwnerID:         ownerID,
		OwnedPropertyID: req.OwnedPropertyID,
		Type:            txType,
		Category:        domain.NormalizeCategory(req.Category),
		Amount:          req.Amount.Round(2),
		OccurredOn:      domain.Day(req.OccurredOn),
		Description:     strings.TrimSpace(req.Description),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.repo.OwnedPropertyExists(ctx, tx, ownerID, req.OwnedPropertyID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrInvalidOwnedProperty
		}
		return s.repo.Insert(ctx, tx, &txn)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.obsMetrics.RecordTransaction(ctx, string(txn.Type), string(txn.Category))
	return txn, nil
}

func (s *Service) Correct(ctx context.Context, id snowflake.ID, req domain.CorrectTransactionRequest) (domain.Transaction, error) {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.Transaction{}, domain.ErrInvalidOwner
	}
	if id == 0 {
		return domain.Transaction{}, domain.ErrInvalidID
	}

	var out domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn, err := s.repo.FindByID(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		if txn == nil {
			return domain.ErrNotFound
		}

		if req.Type != nil {
			t, err := domain.NormalizeType(*req.Type)
			if err != nil {
				return err
			}
			txn.Type = t
		}
		if req.Category != nil {
			txn.Category = domain.NormalizeCategory(*req.Category)
		}
		if req.Amount != nil {
			if !req.Amount.IsPositive() {
				return domain.ErrInvalidAmount
			}
			txn.Amount = req.Amount.Round(2)
		}
		if req.OccurredOn != nil {
			if req.OccurredOn.IsZero() {
				return domain.ErrInvalidDate
			}
			txn.OccurredOn = domain.Day(*req.OccurredOn)
		}
		if req.Description != nil {
			txn.Description = strings.TrimSpace(*req.Description)
		}
		txn.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, tx, txn); err != nil {
			return err
		}
		out = *txn
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.log.Info("transaction corrected",
		zap.String("transaction_id", id.String()),
		zap.String("owned_property_id", out.OwnedPropertyID.String()),
	)
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOwner
	}
	if id == 0 {
		return domain.ErrInvalidID
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn, err := s.repo.FindByID(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		if txn == nil {
			return domain.ErrNotFound
		}
		return s.repo.Delete(ctx, tx, ownerID, id)
	})
}

func (s *Service) List(ctx context.Context, req domain.ListTransactionRequest) ([]domain.Transaction, error) {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOwner
	}
	if req.Type != "" {
		t, err := domain.NormalizeType(req.Type)
		if err != nil {
			return nil, err
		}
		req.Type = string(t)
	}
	if req.Category != "" {
		req.Category = string(domain.NormalizeCategory(req.Category))
	}

	items, err := s.repo.List(ctx, s.db, ownerID, req)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) Summarize(ctx context.Context, req domain.SummaryRequest) (domain.Summary, error) {
	return s.SummarizeTx(ctx, s.db, req)
}

func (s *Service) SummarizeTx(ctx context.Context, tx *gorm.DB, req domain.SummaryRequest) (domain.Summary, error) {
	if tx == nil {
		tx = s.db
	}
	ownerID := req.OwnerID
	if ownerID == 0 {
		var ok bool
		if ownerID, ok = usercontext.UserIDFromContext(ctx); !ok {
			return domain.Summary{}, domain.ErrInvalidOwner
		}
	}
	if req.Window.From.IsZero() || req.Window.To.IsZero() || req.Window.To.Before(req.Window.From) {
		return domain.Summary{}, domain.ErrInvalidWindow
	}

	txns, err := s.repo.ListBetween(ctx, tx, ownerID, req.OwnedPropertyID, req.Window.From, req.Window.To)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.Summarize(txns, req.Window), nil
}

func (s *Service) MonthlySeries(ctx context.Context, months int) ([]domain.MonthlyPoint, error) {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOwner
	}
	if months <= 0 || months > domain.MaxSeriesMonths {
		return nil, domain.ErrInvalidWindow
	}

	now := s.clock.Now()
	from := domain.Month(now).From.AddDate(0, -(months - 1), 0)
	to := domain.Month(now).To

	txns, err := s.repo.ListBetween(ctx, s.db, ownerID, nil, from, to)
	if err != nil {
		return nil, err
	}
	return domain.MonthlySeries(txns, months, now), nil
}

func (s *Service) DeleteByOwnedProperty(ctx context.Context, tx *gorm.DB, ownerID, ownedPropertyID snowflake.ID) error {
	if ownerID == 0 {
		return domain.ErrInvalidOwner
	}
	if tx == nil {
		tx = s.db
	}
	return s.repo.DeleteByOwnedProperty(ctx, tx, ownerID, ownedPropertyID)
}

