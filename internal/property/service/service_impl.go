package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/realvest/internal/clock"
	"github.com/smallbiznis/realvest/internal/config"
	"github.com/smallbiznis/realvest/internal/observability/metrics"
	"github.com/smallbiznis/realvest/internal/property/calculator"
	"github.com/smallbiznis/realvest/internal/property/domain"
	"github.com/smallbiznis/realvest/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const dashboardTopN = 5

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock
	Scoring *config.ScoringConfigHolder
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	clock   clock.Clock
	scoring *config.ScoringConfigHolder
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("property.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   clk,
		scoring: p.Scoring,
		metrics: p.Metrics,
	}
}

// calculator is rebuilt per use so a reloaded scoring file takes effect.
func (s *Service) calculator() *calculator.Calculator {
	return calculator.New(calculator.PolicyFromConfig(s.scoring.Get()))
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertPropertyRequest) (domain.UpsertPropertyResponse, error) {
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return domain.UpsertPropertyResponse{}, domain.ErrInvalidAddress
	}
	city := strings.TrimSpace(req.City)
	if city == "" {
		return domain.UpsertPropertyResponse{}, domain.ErrInvalidCity
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		return domain.UpsertPropertyResponse{}, domain.ErrInvalidState
	}
	for _, amount := range []*decimal.Decimal{req.CurrentPrice, req.EstimatedValue, req.EstimatedRent, req.AnnualTaxes, req.TaxAssessment} {
		if amount != nil && amount.IsNegative() {
			return domain.UpsertPropertyResponse{}, domain.ErrInvalidAmount
		}
	}
	externalID := strings.TrimSpace(req.ExternalID)

	now := s.clock.Now()
	var (
		property domain.Property
		created  bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing *domain.Property
		var err error
		if externalID != "" {
			existing, err = s.repo.FindByExternalID(ctx, tx, externalID)
			if err != nil {
				return err
			}
		}
		if existing == nil {
			existing, err = s.repo.FindByAddress(ctx, tx, address, city, state)
			if err != nil {
				return err
			}
			// an address match owned by another feed id is a different listing
			if existing != nil && externalID != "" && existing.ExternalID != nil && *existing.ExternalID != externalID {
				existing = nil
			}
		}

		if existing == nil {
			created = true
			existing = &domain.Property{
				ID:        s.genID.Generate(),
				Address:   address,
				City:      city,
				State:     state,
				CreatedAt: now,
			}
		}

		existing.Address, existing.City, existing.State = address, city, state
		changed := applyFeed(existing, req)
		if externalID != "" {
			existing.ExternalID = &externalID
		}
		if existing.EstimatedRent == nil {
			if rent := s.calculator().EstimateRent(existing.City, existing.CurrentPrice, existing.EstimatedValue); rent != nil {
				existing.EstimatedRent = rent
				changed = true
			}
		}
		existing.RentPerSqft = rentPerSqft(existing.EstimatedRent, existing.SquareFeet)
		existing.UpdatedAt = now
		existing.LastSyncedAt = &now

		if created {
			if err := s.repo.InsertProperty(ctx, tx, existing); err != nil {
				return err
			}
		} else if err := s.repo.UpdateProperty(ctx, tx, existing); err != nil {
			return err
		}

		if created || changed {
			if _, err := s.recalculate(ctx, tx, existing, "sync"); err != nil {
				return err
			}
		}
		property = *existing
		return nil
	})
	if err != nil {
		return domain.UpsertPropertyResponse{}, err
	}

	s.log.Debug("property synced",
		zap.String("property_id", property.ID.String()),
		zap.Bool("created", created),
	)
	return domain.UpsertPropertyResponse{Property: property, Created: created}, nil
}

// applyFeed copies the non-nil feed fields and reports whether any input of
// metric calculation changed.
func applyFeed(p *domain.Property, req domain.UpsertPropertyRequest) bool {
	changed := false
	setDecimal := func(dst **decimal.Decimal, src *decimal.Decimal, tracked bool) {
		if src == nil {
			return
		}
		if tracked && (*dst == nil || !(*dst).Equal(*src)) {
			changed = true
		}
		v := *src
		*dst = &v
	}
	setInt := func(dst **int, src *int) {
		if src != nil {
			v := *src
			*dst = &v
		}
	}
	setString := func(dst *string, src string) {
		if src = strings.TrimSpace(src); src != "" {
			*dst = src
		}
	}

	setDecimal(&p.CurrentPrice, req.CurrentPrice, true)
	setDecimal(&p.EstimatedValue, req.EstimatedValue, true)
	setDecimal(&p.EstimatedRent, req.EstimatedRent, true)
	setDecimal(&p.TaxAssessment, req.TaxAssessment, false)
	setDecimal(&p.AnnualTaxes, req.AnnualTaxes, false)
	setDecimal(&p.Latitude, req.Latitude, false)
	setDecimal(&p.Longitude, req.Longitude, false)
	setDecimal(&p.Bathrooms, req.Bathrooms, false)
	setDecimal(&p.LotSize, req.LotSize, false)
	setInt(&p.Bedrooms, req.Bedrooms)
	setInt(&p.SquareFeet, req.SquareFeet)
	setInt(&p.YearBuilt, req.YearBuilt)
	setInt(&p.DaysOnMarket, req.DaysOnMarket)
	setString(&p.ZipCode, req.ZipCode)
	setString(&p.PropertyType, req.PropertyType)
	setString(&p.ZillowID, req.ZillowID)
	setString(&p.MLSID, req.MLSID)
	return changed
}

func rentPerSqft(rent *decimal.Decimal, sqft *int) *decimal.Decimal {
	if rent == nil || sqft == nil || *sqft <= 0 {
		return nil
	}
	v := rent.DivRound(decimal.NewFromInt(int64(*sqft)), 4)
	return &v
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Listing, error) {
	if id == 0 {
		return domain.Listing{}, domain.ErrInvalidID
	}
	property, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Listing{}, err
	}
	if property == nil {
		return domain.Listing{}, domain.ErrNotFound
	}
	metrics, err := s.repo.FindMetrics(ctx, s.db, id)
	if err != nil {
		return domain.Listing{}, err
	}
	return domain.Listing{Property: *property, Metrics: metrics}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPropertyRequest) (domain.ListPropertyResponse, error) {
	offset, err := req.Pagination.Offset()
	if err != nil {
		return domain.ListPropertyResponse{}, domain.ErrInvalidPageToken
	}
	limit := req.Pagination.Limit()
	req.HighCapRateMin = s.calculator().Policy().HighCapRate

	items, err := s.repo.List(ctx, s.db, req, limit, offset)
	if err != nil {
		return domain.ListPropertyResponse{}, err
	}
	items, pageInfo := pagination.BuildPageInfo(items, limit, offset)

	listings, err := s.withMetrics(ctx, items)
	if err != nil {
		return domain.ListPropertyResponse{}, err
	}
	return domain.ListPropertyResponse{PageInfo: pageInfo, Properties: listings}, nil
}

func (s *Service) withMetrics(ctx context.Context, items []*domain.Property) ([]domain.Listing, error) {
	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	byProperty, err := s.repo.FindMetricsByPropertyIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	listings := make([]domain.Listing, 0, len(items))
	for _, item := range items {
		listings = append(listings, domain.Listing{Property: *item, Metrics: byProperty[item.ID]})
	}
	return listings, nil
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	total, err := s.repo.CountProperties(ctx, s.db)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	averages, err := s.repo.MetricAverages(ctx, s.db)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	top, err := s.repo.TopByInvestmentScore(ctx, s.db, dashboardTopN)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	listings, err := s.withMetrics(ctx, top)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	return domain.DashboardStats{
		TotalProperties:       total,
		PropertiesWithMetrics: averages.Count,
		AvgInvestmentScore:    roundedAverage(averages.AvgInvestmentScore),
		AvgCapRate:            roundedAverage(averages.AvgCapRate),
		AvgGrossRentalYield:   roundedAverage(averages.AvgGrossRentalYield),
		TopProperties:         listings,
	}, nil
}

func roundedAverage(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v).Round(2)
	return &d
}

func (s *Service) RecordValuation(ctx context.Context, req domain.RecordValuationRequest) (domain.Valuation, error) {
	if req.PropertyID == 0 {
		return domain.Valuation{}, domain.ErrInvalidID
	}
	if req.HorizonYears != nil && *req.HorizonYears <= 0 {
		return domain.Valuation{}, domain.ErrInvalidValuation
	}
	if req.FairValue != nil && req.FairValue.IsNegative() {
		return domain.Valuation{}, domain.ErrInvalidAmount
	}
	var payload datatypes.JSON
	if len(req.Payload) > 0 {
		if !json.Valid(req.Payload) {
			return domain.Valuation{}, domain.ErrInvalidValuation
		}
		payload = datatypes.JSON(req.Payload)
	}

	valuedAt := s.clock.Now()
	if req.ValuedAt != nil {
		valuedAt = req.ValuedAt.UTC()
	}

	valuation := domain.Valuation{
		ID:           s.genID.Generate(),
		PropertyID:   req.PropertyID,
		Successful:   req.Successful,
		FairValue:    req.FairValue,
		ROIPercent:   req.ROIPercent,
		HorizonYears: req.HorizonYears,
		ErrorMessage: strings.TrimSpace(req.ErrorMessage),
		Source:       strings.TrimSpace(req.Source),
		Payload:      payload,
		ValuedAt:     valuedAt,
	}
	if !valuation.Successful {
		// failed valuations are kept for audit and never feed metrics
		valuation.FairValue = nil
		valuation.ROIPercent = nil
		if valuation.ErrorMessage == "" {
			valuation.ErrorMessage = "valuation_failed"
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		property, err := s.repo.FindByID(ctx, tx, req.PropertyID)
		if err != nil {
			return err
		}
		if property == nil {
			return domain.ErrNotFound
		}
		if err := s.repo.InsertValuation(ctx, tx, &valuation); err != nil {
			return err
		}
		if valuation.Successful && valuation.ROIPercent != nil {
			_, err = s.recalculate(ctx, tx, property, "valuation")
		}
		return err
	})
	if err != nil {
		return domain.Valuation{}, err
	}

	if !valuation.Successful {
		s.log.Warn("valuation source failed",
			zap.String("property_id", req.PropertyID.String()),
			zap.String("source", valuation.Source),
			zap.String("error", valuation.ErrorMessage),
		)
	}
	return valuation, nil
}

func (s *Service) ListValuations(ctx context.Context, propertyID snowflake.ID) ([]domain.Valuation, error) {
	if _, err := s.mustFind(ctx, s.db, propertyID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListValuations(ctx, s.db, propertyID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Valuation, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) SetProfitPrediction(ctx context.Context, req domain.SetProfitPredictionRequest) (domain.ProfitPrediction, error) {
	if req.PropertyID == 0 {
		return domain.ProfitPrediction{}, domain.ErrInvalidID
	}

	var out domain.ProfitPrediction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		property, err := s.mustFind(ctx, tx, req.PropertyID)
		if err != nil {
			return err
		}
		prediction := domain.ProfitPrediction{
			ID:          s.genID.Generate(),
			PropertyID:  req.PropertyID,
			Amount:      req.Amount,
			Source:      strings.TrimSpace(req.Source),
			PredictedAt: s.clock.Now(),
		}
		if err := s.repo.UpsertProfitPrediction(ctx, tx, &prediction); err != nil {
			return err
		}
		stored, err := s.repo.FindProfitPrediction(ctx, tx, req.PropertyID)
		if err != nil {
			return err
		}
		if stored == nil {
			return errors.New("profit prediction missing after upsert")
		}
		out = *stored
		_, err = s.recalculate(ctx, tx, property, "profit_prediction")
		return err
	})
	if err != nil {
		return domain.ProfitPrediction{}, err
	}
	return out, nil
}

func (s *Service) ClearProfitPrediction(ctx context.Context, propertyID snowflake.ID) error {
	if propertyID == 0 {
		return domain.ErrInvalidID
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		property, err := s.mustFind(ctx, tx, propertyID)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteProfitPrediction(ctx, tx, propertyID); err != nil {
			return err
		}
		_, err = s.recalculate(ctx, tx, property, "profit_prediction")
		return err
	})
}

func (s *Service) GetMetrics(ctx context.Context, propertyID snowflake.ID) (domain.InvestmentMetrics, error) {
	if propertyID == 0 {
		return domain.InvestmentMetrics{}, domain.ErrInvalidID
	}
	if _, err := s.mustFind(ctx, s.db, propertyID); err != nil {
		return domain.InvestmentMetrics{}, err
	}
	stored, err := s.repo.FindMetrics(ctx, s.db, propertyID)
	if err != nil {
		return domain.InvestmentMetrics{}, err
	}
	if stored == nil {
		return domain.InvestmentMetrics{PropertyID: propertyID}, nil
	}
	return *stored, nil
}

func (s *Service) RecalculateMetrics(ctx context.Context, propertyID snowflake.ID) (domain.InvestmentMetrics, error) {
	if propertyID == 0 {
		return domain.InvestmentMetrics{}, domain.ErrInvalidID
	}
	var out domain.InvestmentMetrics
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		property, err := s.mustFind(ctx, tx, propertyID)
		if err != nil {
			return err
		}
		out, err = s.recalculate(ctx, tx, property, "manual")
		return err
	})
	if err != nil {
		return domain.InvestmentMetrics{}, err
	}
	return out, nil
}

func (s *Service) RecalculateStale(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	ids, err := s.repo.ListStalePropertyIDs(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}

	var errs []error
	processed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			property, err := s.mustFind(ctx, tx, id)
			if err != nil {
				return err
			}
			_, err = s.recalculate(ctx, tx, property, "scheduler")
			return err
		})
		if err != nil {
			s.log.Warn("stale metrics recompute failed",
				zap.String("property_id", id.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}

func (s *Service) mustFind(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Property, error) {
	property, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if property == nil {
		return nil, domain.ErrNotFound
	}
	return property, nil
}

// recalculate overwrites the derived metrics row of property inside tx.
func (s *Service) recalculate(ctx context.Context, tx *gorm.DB, property *domain.Property, trigger string) (domain.InvestmentMetrics, error) {
	valuation, err := s.repo.LatestUsableValuation(ctx, tx, property.ID)
	if err != nil {
		return domain.InvestmentMetrics{}, err
	}
	prediction, err := s.repo.FindProfitPrediction(ctx, tx, property.ID)
	if err != nil {
		return domain.InvestmentMetrics{}, err
	}

	in := calculator.Input{
		Price:          property.CurrentPrice,
		EstimatedValue: property.EstimatedValue,
		MonthlyRent:    property.EstimatedRent,
	}
	if valuation != nil {
		in.Valuation = &calculator.ValuationInput{
			ROIPercent:   valuation.ROIPercent,
			HorizonYears: valuation.HorizonYears,
		}
	}
	if prediction != nil {
		amount := prediction.Amount
		in.PredictedProfit = &amount
	}

	result := s.calculator().Calculate(in)
	row := domain.InvestmentMetrics{
		ID:                 s.genID.Generate(),
		PropertyID:         property.ID,
		AnnualRent:         result.AnnualRent,
		GrossRentalYield:   result.GrossRentalYield,
		OperatingExpenses:  result.OperatingExpenses,
		NetOperatingIncome: result.NetOperatingIncome,
		CapRate:            result.CapRate,
		PriceToRentRatio:   result.PriceToRentRatio,
		ROI:                result.ROI,
		EstimatedProfit:    result.EstimatedProfit,
		RiskScore:          result.RiskScore,
		InvestmentScore:    result.InvestmentScore,
		CalculatedAt:       s.clock.Now(),
	}
	if err := s.repo.UpsertMetrics(ctx, tx, &row); err != nil {
		return domain.InvestmentMetrics{}, err
	}
	stored, err := s.repo.FindMetrics(ctx, tx, property.ID)
	if err != nil {
		return domain.InvestmentMetrics{}, err
	}
	if stored == nil {
		stored = &row
	}

	outcome := "scored"
	if result.Empty() {
		outcome = "skipped"
	}
	s.metrics.RecordPropertyMetrics(ctx, trigger, outcome)
	return *stored, nil
}
