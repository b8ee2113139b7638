package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/realvest/internal/property/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertProperty(ctx context.Context, db *gorm.DB, property *domain.Property) error {
	return db.WithContext(ctx).Create(property).Error
}

func (r *repo) UpdateProperty(ctx context.Context, db *gorm.DB, property *domain.Property) error {
	return db.WithContext(ctx).Save(property).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Property, error) {
	return first[domain.Property](db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Property, error) {
	return first[domain.Property](db.WithContext(ctx).Where("external_id = ?", externalID))
}

func (r *repo) FindByAddress(ctx context.Context, db *gorm.DB, address, city, state string) (*domain.Property, error) {
	return first[domain.Property](db.WithContext(ctx).
		Where("LOWER(address) = ? AND LOWER(city) = ? AND LOWER(state) = ?",
			strings.ToLower(address), strings.ToLower(city), strings.ToLower(state)).
		Order("id asc"))
}

// Sort keys accepted by List, mapped to their columns.
var sortColumns = map[string]string{
	"price":               "properties.current_price",
	"estimated_value":     "properties.estimated_value",
	"estimated_rent":      "properties.estimated_rent",
	"created_at":          "properties.created_at",
	"last_synced_at":      "properties.last_synced_at",
	"investment_score":    "m.investment_score",
	"cap_rate":            "m.cap_rate",
	"gross_rental_yield":  "m.gross_rental_yield",
	"roi":                 "m.roi",
	"estimated_profit":    "m.estimated_profit",
	"price_to_rent_ratio": "m.price_to_rent_ratio",
	"risk_score":          "m.risk_score",
}


func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListPropertyRequest, limit, offset int) ([]*domain.Property, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Property{}).
		Select("properties.*").
		Joins("LEFT JOIN investment_metrics m ON m.property_id = properties.id")

	for col, value := range map[string]string{
		"properties.city":          req.City,
		"properties.state":         req.State,
		"properties.zip_code":      req.ZipCode,
		"properties.property_type": req.PropertyType,
	} {
		if value = strings.TrimSpace(value); value != "" {
			stmt = stmt.Where("LOWER("+col+") LIKE ?", "%"+strings.ToLower(value)+"%")
		}
	}

	for _, f := range []struct {
		col string
		rng domain.DecimalRange
	}{
		{"properties.current_price", req.Price},
		{"properties.estimated_value", req.EstimatedValue},
		{"properties.estimated_rent", req.Rent},
		{"properties.bedrooms", req.Bedrooms},
		{"properties.bathrooms", req.Bathrooms},
		{"properties.square_feet", req.SquareFeet},
		{"properties.year_built", req.YearBuilt},
		{"m.investment_score", req.InvestmentScore},
		{"m.cap_rate", req.CapRate},
		{"m.gross_rental_yield", req.GrossRentalYield},
		{"m.net_operating_income", req.NOI},
		{"m.estimated_profit", req.EstimatedProfit},
		{"m.price_to_rent_ratio", req.PriceToRentRatio},
		{"m.risk_score", req.RiskScore},
	} {
		if f.rng.Min != nil {
			stmt = stmt.Where(f.col+" >= ?", f.rng.Min.InexactFloat64())
		}
		if f.rng.Max != nil {
			stmt = stmt.Where(f.col+" <= ?", f.rng.Max.InexactFloat64())
		}
	}

	if req.HasMetrics != nil {
		if *req.HasMetrics {
			stmt = stmt.Where("m.id IS NOT NULL")
		} else {
			stmt = stmt.Where("m.id IS NULL")
		}
	}
	stmt = flag(stmt, req.IsProfitable, "m.estimated_profit > 0", "(m.estimated_profit IS NULL OR m.estimated_profit <= 0)")
	stmt = flag(stmt, req.HighCapRate, "m.cap_rate >= ?", "(m.cap_rate IS NULL OR m.cap_rate < ?)", req.HighCapRateMin.InexactFloat64())
	stmt = flag(stmt, req.GoodCashFlow, "m.net_operating_income > 0", "(m.net_operating_income IS NULL OR m.net_operating_income <= 0)")

	if sort := strings.TrimSpace(req.Sort); sort != "" {
		col, ok := sortColumns[strings.TrimPrefix(sort, "-")]
		if !ok {
			return nil, domain.ErrInvalidSort
		}
		dir := "ASC"
		if strings.HasPrefix(sort, "-") {
			dir = "DESC"
		}
		// rows without the column sort last in both directions
		stmt = stmt.Order(col + " IS NULL").Order(col + " " + dir)
	}

	var properties []*domain.Property
	err := stmt.Order("properties.id desc").
		Limit(limit + 1).
		Offset(offset).
		Find(&properties).Error
	if err != nil {
		return nil, err
	}
	return properties, nil
}

func flag(stmt *gorm.DB, value *bool, whenTrue, whenFalse string, args ...any) *gorm.DB {
	if value == nil {
		return stmt
	}
	if *value {
		return stmt.Where(whenTrue, args...)
	}
	return stmt.Where(whenFalse, args...)
}

func (r *repo) CountProperties(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Property{}).Count(&count).Error
	return count, err
}

func (r *repo) UpsertMetrics(ctx context.Context, db *gorm.DB, metrics *domain.InvestmentMetrics) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "property_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"annual_rent",
			"gross_rental_yield",
			"operating_expenses",
			"net_operating_income",
			"cap_rate",
			"price_to_rent_ratio",
			"roi",
			"estimated_profit",
			"risk_score",
			"investment_score",
			"calculated_at",
		}),
	}).Create(metrics).Error
}

func (r *repo) FindMetrics(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) (*domain.InvestmentMetrics, error) {
	return first[domain.InvestmentMetrics](db.WithContext(ctx).Where("property_id = ?", propertyID))
}

func (r *repo) FindMetricsByPropertyIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]*domain.InvestmentMetrics, error) {
	out := make(map[snowflake.ID]*domain.InvestmentMetrics, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []*domain.InvestmentMetrics
	if err := db.WithContext(ctx).Where("property_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.PropertyID] = row
	}
	return out, nil
}

func (r *repo) MetricAverages(ctx context.Context, db *gorm.DB) (domain.MetricAverages, error) {
	var row struct {
		Count               int64
		AvgInvestmentScore  *float64
		AvgCapRate          *float64
		AvgGrossRentalYield *float64
	}
	err := db.WithContext(ctx).
		Model(&domain.InvestmentMetrics{}).
		Select(`COUNT(investment_score) AS count,
			AVG(investment_score) AS avg_investment_score,
			AVG(cap_rate) AS avg_cap_rate,
			AVG(gross_rental_yield) AS avg_gross_rental_yield`).
		Scan(&row).Error
	if err != nil {
		return domain.MetricAverages{}, err
	}
	return domain.MetricAverages(row), nil
}

func (r *repo) TopByInvestmentScore(ctx context.Context, db *gorm.DB, limit int) ([]*domain.Property, error) {
	var properties []*domain.Property
	err := db.WithContext(ctx).
		Model(&domain.Property{}).
		Select("properties.*").
		Joins("JOIN investment_metrics m ON m.property_id = properties.id").
		Where("m.investment_score IS NOT NULL").
		Order("m.investment_score desc").
		Order("properties.id asc").
		Limit(limit).
		Find(&properties).Error
	return properties, err
}

// ListStalePropertyIDs returns properties with no metrics, or metrics older
// than the property row or its newest successful valuation.
func (r *repo) ListStalePropertyIDs(ctx context.Context, db *gorm.DB, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT p.id FROM properties p
		 LEFT JOIN investment_metrics m ON m.property_id = p.id
		 WHERE m.id IS NULL
		    OR m.calculated_at < p.updated_at
		    OR EXISTS (
		        SELECT 1 FROM property_valuations v
		        WHERE v.property_id = p.id AND v.successful AND v.valued_at > m.calculated_at
		    )
		 ORDER BY p.id ASC
		 LIMIT ?`,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) InsertValuation(ctx context.Context, db *gorm.DB, valuation *domain.Valuation) error {
	return db.WithContext(ctx).Create(valuation).Error
}

func (r *repo) ListValuations(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) ([]*domain.Valuation, error) {
	var valuations []*domain.Valuation
	err := db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("valued_at desc, id desc").
		Find(&valuations).Error
	return valuations, err
}

// LatestUsableValuation is the most recent successful valuation carrying an ROI.
func (r *repo) LatestUsableValuation(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) (*domain.Valuation, error) {
	return first[domain.Valuation](db.WithContext(ctx).
		Where("property_id = ? AND successful = ? AND roi_percent IS NOT NULL", propertyID, true).
		Order("valued_at desc, id desc"))
}

func (r *repo) UpsertProfitPrediction(ctx context.Context, db *gorm.DB, prediction *domain.ProfitPrediction) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "property_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "source", "predicted_at"}),
	}).Create(prediction).Error
}

func (r *repo) FindProfitPrediction(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) (*domain.ProfitPrediction, error) {
	return first[domain.ProfitPrediction](db.WithContext(ctx).Where("property_id = ?", propertyID))
}

func (r *repo) DeleteProfitPrediction(ctx context.Context, db *gorm.DB, propertyID snowflake.ID) error {
	return db.WithContext(ctx).Where("property_id = ?", propertyID).Delete(&domain.ProfitPrediction{}).Error
}

func first[T any](stmt *gorm.DB) (*T, error) {
	var out T
	if err := stmt.First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}
