package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/realvest/internal/audit/domain"
	"github.com/smallbiznis/realvest/internal/clock"
	"github.com/smallbiznis/realvest/internal/finance"
	ledgerdomain "github.com/smallbiznis/realvest/internal/ledger/domain"
	"github.com/smallbiznis/realvest/internal/observability/metrics"
	"github.com/smallbiznis/realvest/internal/portfolio/analytics"
	"github.com/smallbiznis/realvest/internal/portfolio/domain"
	"github.com/smallbiznis/realvest/internal/usercontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Ledger  ledgerdomain.Service
	Clock   clock.Clock
	Audit   auditdomain.Service `optional:"true"`
	Metrics *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	ledger  ledgerdomain.Service
	clock   clock.Clock
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
		log:     p.Log.Named("portfolio.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		ledger:  p.Ledger,
		clock:   clk,
		audit:   p.Audit,
		metrics: p.Metrics,
	}
}

func ownerFromContext(ctx context.Context) (snowflake.ID, error) {
	ownerID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidOwner
	}
	return ownerID, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateOwnedPropertyRequest) (domain.OwnedProperty, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return domain.OwnedProperty{}, err
	}
	if !req.PurchasePrice.IsPositive() {
		return domain.OwnedProperty{}, domain.ErrInvalidPurchasePrice
	}
	if req.PurchaseDate.IsZero() {
		return domain.OwnedProperty{}, domain.ErrInvalidPurchaseDate
	}
	if req.PropertyID == nil && strings.TrimSpace(req.CustomAddress) == "" {
		return domain.OwnedProperty{}, domain.ErrInvalidAddress
	}
	if err := validateAmounts(req.DownPayment, req.CurrentEstimatedValue, req.MonthlyRent, req.ManagementFeePercent); err != nil {
		return domain.OwnedProperty{}, err
	}
	if err := validateLoan(req.LoanAmount, req.InterestRate, req.LoanTermYears); err != nil {
		return domain.OwnedProperty{}, err
	}

	now := s.clock.Now()
	item := domain.OwnedProperty{
		ID:                    s.genID.Generate(),
		OwnerID:               ownerID,
		PropertyID:            req.PropertyID,
		CustomAddress:         strings.TrimSpace(req.CustomAddress),
		CustomCity:            strings.TrimSpace(req.CustomCity),
		CustomState:           strings.TrimSpace(req.CustomState),
		CustomZip:             strings.TrimSpace(req.CustomZip),
		CustomPropertyType:    strings.TrimSpace(req.CustomPropertyType),
		PurchasePrice:         finance.RoundCents(req.PurchasePrice),
		PurchaseDate:          ledgerdomain.Day(req.PurchaseDate),
		DownPayment:           finance.RoundPtr(req.DownPayment),
		LoanAmount:            finance.RoundPtr(req.LoanAmount),
		InterestRate:          req.InterestRate,
		LoanTermYears:         req.LoanTermYears,
		CurrentEstimatedValue: finance.RoundPtr(req.CurrentEstimatedValue),
		MonthlyRent:           finance.RoundPtr(req.MonthlyRent),
		ManagementFeePercent:  req.ManagementFeePercent,
		Notes:                 strings.TrimSpace(req.Notes),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if item.PropertyID != nil {
			property, err := s.repo.FindProperty(ctx, tx, *item.PropertyID)
			if err != nil {
				return err
			}
			if property == nil {
				return domain.ErrInvalidReference
			}
		}
		if err := s.repo.Insert(ctx, tx, &item); err != nil {
			return err
		}
		_, err := s.recalculate(ctx, tx, ownerID, "holding")
		return err
	})
	if err != nil {
		return domain.OwnedProperty{}, err
	}

	s.log.Info("owned property created",
		zap.String("owned_property_id", item.ID.String()),
		zap.String("owner_id", ownerID.String()),
	)
	return item, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateOwnedPropertyRequest) (domain.OwnedProperty, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return domain.OwnedProperty{}, err
	}
	if id == 0 {
		return domain.OwnedProperty{}, domain.ErrInvalidID
	}
	if req.PurchasePrice != nil && !req.PurchasePrice.IsPositive() {
		return domain.OwnedProperty{}, domain.ErrInvalidPurchasePrice
	}
	if req.PurchaseDate != nil && req.PurchaseDate.IsZero() {
		return domain.OwnedProperty{}, domain.ErrInvalidPurchaseDate
	}
	if err := validateAmounts(req.DownPayment, req.CurrentEstimatedValue, req.MonthlyRent, req.ManagementFeePercent); err != nil {
		return domain.OwnedProperty{}, err
	}
	if err := validateLoan(req.LoanAmount, req.InterestRate, req.LoanTermYears); err != nil {
		return domain.OwnedProperty{}, err
	}

	var out domain.OwnedProperty
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.mustFind(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}

		setString(&item.CustomAddress, req.CustomAddress)
		setString(&item.CustomCity, req.CustomCity)
		setString(&item.CustomState, req.CustomState)
		setString(&item.CustomZip, req.CustomZip)
		setString(&item.CustomPropertyType, req.CustomPropertyType)
		setString(&item.Notes, req.Notes)
		if item.PropertyID == nil && item.CustomAddress == "" {
			return domain.ErrInvalidAddress
		}

		if req.PurchasePrice != nil {
			item.PurchasePrice = finance.RoundCents(*req.PurchasePrice)
		}
		if req.PurchaseDate != nil {
			item.PurchaseDate = ledgerdomain.Day(*req.PurchaseDate)
		}
		if req.DownPayment != nil {
			item.DownPayment = finance.RoundPtr(req.DownPayment)
		}
		if req.LoanAmount != nil {
			item.LoanAmount = finance.RoundPtr(req.LoanAmount)
		}
		if req.InterestRate != nil {
			item.InterestRate = req.InterestRate
		}
		if req.LoanTermYears != nil {
			item.LoanTermYears = req.LoanTermYears
		}
		if req.CurrentEstimatedValue != nil {
			item.CurrentEstimatedValue = finance.RoundPtr(req.CurrentEstimatedValue)
		}
		if req.MonthlyRent != nil {
			item.MonthlyRent = finance.RoundPtr(req.MonthlyRent)
		}
		if req.ManagementFeePercent != nil {
			item.ManagementFeePercent = req.ManagementFeePercent
		}
		item.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}
		if _, err := s.recalculate(ctx, tx, ownerID, "holding"); err != nil {
			return err
		}
		out = *item
		return nil
	})
	if err != nil {
		return domain.OwnedProperty{}, err
	}
	return out, nil
}

// Delete removes the holding together with all of its transactions.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}
	if id == 0 {
		return domain.ErrInvalidID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned, err := s.mustFind(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		if err := s.ledger.DeleteByOwnedProperty(ctx, tx, ownerID, id); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, ownerID, id); err != nil {
			return err
		}
		if s.audit != nil {
			if err := s.audit.Record(ctx, tx, auditdomain.Entry{
				Action:     auditdomain.ActionOwnedPropertyDeleted,
				TargetType: "owned_property",
				TargetID:   id,
				Metadata: map[string]any{
					"custom_address": owned.CustomAddress,
					"purchase_price": owned.PurchasePrice.StringFixed(2),
				},
			}); err != nil {
				return err
			}
		}
		_, err = s.recalculate(ctx, tx, ownerID, "holding")
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info("owned property deleted",
		zap.String("owned_property_id", id.String()),
		zap.String("owner_id", ownerID.String()),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.OwnedProperty, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return domain.OwnedProperty{}, err
	}
	if id == 0 {
		return domain.OwnedProperty{}, domain.ErrInvalidID
	}
	item, err := s.mustFind(ctx, s.db, ownerID, id)
	if err != nil {
		return domain.OwnedProperty{}, err
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context) ([]domain.OwnedProperty, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.List(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OwnedProperty, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

// RefreshValuation re-derives the current value, loan balance and equity of
// one holding as of now.
func (s *Service) RefreshValuation(ctx context.Context, id snowflake.ID, req domain.RefreshValuationRequest) (domain.OwnedProperty, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return domain.OwnedProperty{}, err
	}
	if id == 0 {
		return domain.OwnedProperty{}, domain.ErrInvalidID
	}
	if req.CurrentValue != nil && !req.CurrentValue.IsPositive() {
		return domain.OwnedProperty{}, domain.ErrInvalidValuation
	}

	var out domain.OwnedProperty
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.mustFind(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}

		value := req.CurrentValue
		if value == nil && item.PropertyID != nil {
			property, err := s.repo.FindProperty(ctx, tx, *item.PropertyID)
			if err != nil {
				return err
			}
			if property != nil && finance.Positive(property.EstimatedValue) {
				value = property.EstimatedValue
			}
		}
		if value == nil {
			value = item.CurrentEstimatedValue
		}
		if value == nil {
			return domain.ErrInvalidValuation
		}

		now := s.clock.Now()
		item.CurrentEstimatedValue = finance.RoundPtr(value)
		if balance := finance.RemainingBalance(item.Loan(), item.PurchaseDate, now); balance != nil {
			item.CurrentLoanBalance = balance
		}
		item.CurrentEquity = finance.Ptr(finance.RoundCents(
			item.CurrentEstimatedValue.Sub(finance.Or(item.CurrentLoanBalance, decimal.Zero)),
		))
		item.ValuedAt = &now
		item.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}
		if _, err := s.recalculate(ctx, tx, ownerID, "valuation"); err != nil {
			return err
		}
		out = *item
		return nil
	})
	if err != nil {
		return domain.OwnedProperty{}, err
	}
	return out, nil
}

func (s *Service) RecordTransaction(ctx context.Context, ownedPropertyID snowflake.ID, req ledgerdomain.RecordTransactionRequest) (ledgerdomain.Transaction, error) {
	req.OwnedPropertyID = ownedPropertyID
	txn, err := s.ledger.Record(ctx, req)
	if err != nil {
		return ledgerdomain.Transaction{}, err
	}
	s.refresh(ctx, txn.OwnerID, "transaction")
	return txn, nil
}

func (s *Service) CorrectTransaction(ctx context.Context, id snowflake.ID, req ledgerdomain.CorrectTransactionRequest) (ledgerdomain.Transaction, error) {
	txn, err := s.ledger.Correct(ctx, id, req)
	if err != nil {
		return ledgerdomain.Transaction{}, err
	}
	s.audited(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionTransactionCorrected,
		TargetType: "transaction",
		TargetID:   txn.ID,
		Metadata: map[string]any{
			"owned_property_id": txn.OwnedPropertyID.String(),
			"type":              string(txn.Type),
			"amount":            txn.Amount.StringFixed(2),
			"occurred_on":       txn.OccurredOn.Format("2006-01-02"),
		},
	})
	s.refresh(ctx, txn.OwnerID, "transaction")
	return txn, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, id snowflake.ID) error {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}
	if err := s.ledger.Delete(ctx, id); err != nil {
		return err
	}
	s.audited(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionTransactionDeleted,
		TargetType: "transaction",
		TargetID:   id,
	})
	s.refresh(ctx, ownerID, "transaction")
	return nil
}

func (s *Service) ListTransactions(ctx context.Context, ownedPropertyID snowflake.ID) ([]ledgerdomain.Transaction, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.mustFind(ctx, s.db, ownerID, ownedPropertyID); err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, ledgerdomain.ListTransactionRequest{OwnedPropertyID: &ownedPropertyID})
}

// GetMetrics returns the stored snapshot, computing it on first access.
func (s *Service) GetMetrics(ctx context.Context) (domain.PortfolioMetrics, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return domain.PortfolioMetrics{}, err
	}
	stored, err := s.repo.FindMetrics(ctx, s.db, ownerID)
	if err != nil {
		return domain.PortfolioMetrics{}, err
	}
	if stored != nil {
		return *stored, nil
	}
	return s.recalculateOwner(ctx, ownerID, "first_access")
}

func (s *Service) RecalculateMetrics(ctx context.Context) (domain.PortfolioMetrics, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return domain.PortfolioMetrics{}, err
	}
	return s.recalculateOwner(ctx, ownerID, "manual")
}

func (s *Service) RecalculateStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	owners, err := s.repo.ListStaleOwners(ctx, s.db, s.clock.Now().Add(-staleAfter), limit)
	if err != nil {
		return 0, err
	}

	var errs []error
	processed := 0
	for _, ownerID := range owners {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.recalculateOwner(ctx, ownerID, "scheduler"); err != nil {
			s.log.Warn("stale portfolio recompute failed",
				zap.String("owner_id", ownerID.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}

func (s *Service) CashFlowSeries(ctx context.Context, months int) ([]ledgerdomain.MonthlyPoint, error) {
	if _, err := ownerFromContext(ctx); err != nil {
		return nil, err
	}
	return s.ledger.MonthlySeries(ctx, months)
}

func (s *Service) mustFind(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*domain.OwnedProperty, error) {
	item, err := s.repo.FindByID(ctx, db, ownerID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// audited records a ledger change that is already committed; a failed
// write is logged by the audit service and otherwise ignored.
func (s *Service) audited(ctx context.Context, entry auditdomain.Entry) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, s.db, entry)
}

// refresh recomputes the snapshot after a ledger change. The change itself is
// already committed, so a failure only leaves the snapshot stale.
func (s *Service) refresh(ctx context.Context, ownerID snowflake.ID, trigger string) {
	if _, err := s.recalculateOwner(ctx, ownerID, trigger); err != nil {
		s.log.Warn("portfolio refresh failed",
			zap.String("owner_id", ownerID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) recalculateOwner(ctx context.Context, ownerID snowflake.ID, trigger string) (domain.PortfolioMetrics, error) {
	var out domain.PortfolioMetrics
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.recalculate(ctx, tx, ownerID, trigger)
		return err
	})
	return out, err
}

// recalculate overwrites the owner's snapshot from every holding and the
// trailing year of transactions, reading and writing through tx.
func (s *Service) recalculate(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, trigger string) (domain.PortfolioMetrics, error) {
	holdings, err := s.repo.ListHoldings(ctx, tx, ownerID)
	if err != nil {
		return domain.PortfolioMetrics{}, err
	}

	now := s.clock.Now()
	cash, err := s.ledger.SummarizeTx(ctx, tx, ledgerdomain.SummaryRequest{
		OwnerID: ownerID,
		Window:  ledgerdomain.TrailingYear(now),
	})
	if err != nil {
		return domain.PortfolioMetrics{}, err
	}

	snap := analytics.Aggregate(holdings, cash, now)
	row := domain.PortfolioMetrics{
		ID:                     s.genID.Generate(),
		OwnerID:                ownerID,
		PropertyCount:          snap.PropertyCount,
		TotalInvestment:        snap.TotalInvestment,
		PortfolioValue:         snap.PortfolioValue,
		TotalEquity:            snap.TotalEquity,
		TotalDebt:              snap.TotalDebt,
		TotalAppreciation:      snap.TotalAppreciation,
		AppreciationPercentage: snap.AppreciationPercentage,
		AnnualCashFlow:         snap.AnnualCashFlow,
		MonthlyCashFlow:        snap.MonthlyCashFlow,
		TotalMonthlyIncome:     snap.TotalMonthlyIncome,
		TotalMonthlyExpenses:   snap.TotalMonthlyExpenses,
		CashOnCashReturn:       snap.CashOnCashReturn,
		TotalReturnPercentage:  snap.TotalReturnPercentage,
		PortfolioCapRate:       snap.PortfolioCapRate,
		DiversificationScore:   snap.DiversificationScore,
		TypeBreakdown:          toJSONMap(snap.TypeBreakdown),
		CityBreakdown:          toJSONMap(snap.CityBreakdown),
		CalculatedAt:           now,
	}
	if err := s.repo.UpsertMetrics(ctx, tx, &row); err != nil {
		return domain.PortfolioMetrics{}, err
	}
	stored, err := s.repo.FindMetrics(ctx, tx, ownerID)
	if err != nil {
		return domain.PortfolioMetrics{}, err
	}
	if stored == nil {
		stored = &row
	}

	s.metrics.RecordPortfolioRecompute(ctx, trigger)
	return *stored, nil
}

func toJSONMap(counts map[string]int) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range counts {
		out[k] = v
	}
	return out
}

func setString(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}

func validateAmounts(values ...*decimal.Decimal) error {
	for _, v := range values {
		if v != nil && v.IsNegative() {
			return domain.ErrInvalidAmount
		}
	}
	return nil
}

func validateLoan(amount, rate *decimal.Decimal, termYears *int) error {
	if amount != nil && amount.IsNegative() {
		return domain.ErrInvalidLoan
	}
	if rate != nil && rate.IsNegative() {
		return domain.ErrInvalidLoan
	}
	if termYears != nil && *termYears <= 0 {
		return domain.ErrInvalidLoan
	}
	return nil
}
