package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/realvest/internal/clock"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	"github.com/smallbiznis/realvest/internal/usercontext"
	"github.com/smallbiznis/realvest/internal/watchlist/domain"
	"github.com/smallbiznis/realvest/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("watchlist.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

// Add is idempotent: watching an already watched property reports Created
// false and returns the existing item.
func (s *Service) Add(ctx context.Context, req domain.AddRequest) (domain.AddResponse, error) {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.AddResponse{}, domain.ErrInvalidOwner
	}
	if req.PropertyID == 0 {
		return domain.AddResponse{}, domain.ErrInvalidReference
	}

	var resp domain.AddResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		properties, err := s.repo.FindProperties(ctx, tx, []snowflake.ID{req.PropertyID})
		if err != nil {
			return err
		}
		if len(properties) == 0 {
			return domain.ErrInvalidReference
		}

		existing, err := s.repo.Find(ctx, tx, ownerID, req.PropertyID)
		if err != nil {
			return err
		}
		if existing != nil {
			resp = domain.AddResponse{Item: *existing}
			return nil
		}

		item := domain.WatchlistItem{
			ID:         s.genID.Generate(),
			OwnerID:    ownerID,
			PropertyID: req.PropertyID,
			Notes:      strings.TrimSpace(req.Notes),
			AddedAt:    s.clock.Now(),
		}
		if err := s.repo.Insert(ctx, tx, &item); err != nil {
			return err
		}
		resp = domain.AddResponse{Item: item, Created: true}
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			existing, findErr := s.repo.Find(ctx, s.db, ownerID, req.PropertyID)
			if findErr == nil && existing != nil {
				return domain.AddResponse{Item: *existing}, nil
			}
		}
		return domain.AddResponse{}, err
	}
	return resp, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Entry, error) {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOwner
	}
	items, err := s.repo.List(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []domain.Entry{}, nil
	}

	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.PropertyID)
	}
	properties, err := s.repo.FindProperties(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	metrics, err := s.repo.FindMetrics(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	propertyByID := make(map[snowflake.ID]propertydomain.Property, len(properties))
	for _, p := range properties {
		propertyByID[p.ID] = p
	}
	metricsByID := make(map[snowflake.ID]propertydomain.InvestmentMetrics, len(metrics))
	for _, m := range metrics {
		metricsByID[m.PropertyID] = m
	}

	out := make([]domain.Entry, 0, len(items))
	for _, item := range items {
		property, ok := propertyByID[item.PropertyID]
		if !ok {
			continue
		}
		entry := domain.Entry{Item: item, Property: property}
		if m, ok := metricsByID[item.PropertyID]; ok {
			entry.Metrics = &m
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Service) Remove(ctx context.Context, propertyID snowflake.ID) error {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOwner
	}
	removed, err := s.repo.Delete(ctx, s.db, ownerID, propertyID)
	if err != nil {
		return err
	}
	if removed == 0 {
		return domain.ErrNotFound
	}
	return nil
}
