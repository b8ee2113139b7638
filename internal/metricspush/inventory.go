package metricspush

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Inventory holds point-in-time gauges describing what the platform stores.
// It uses its own registry so pushes carry only these series.
type Inventory struct {
	registry *prometheus.Registry

	properties       prometheus.Gauge
	scoredProperties prometheus.Gauge
	ownedProperties  prometheus.Gauge
	owners           prometheus.Gauge
	portfolioValue   prometheus.Gauge
	transactions     prometheus.Gauge
	deals            *prometheus.GaugeVec
}

func NewInventory() *Inventory {
	inv := &Inventory{
		registry: prometheus.NewRegistry(),
		properties: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realvest_properties_total",
			Help: "Listed properties ingested from the feed.",
		}),
		scoredProperties: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realvest_properties_scored_total",
			Help: "Listed properties with computed investment metrics.",
		}),
		ownedProperties: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realvest_owned_properties_total",
			Help: "Holdings across all portfolios.",
		}),
		owners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realvest_portfolio_owners_total",
			Help: "Owners with at least one holding.",
		}),
		portfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realvest_portfolio_value_sum",
			Help: "Sum of stored portfolio values.",
		}),
		transactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realvest_ledger_transactions_total",
			Help: "Recorded income and expense transactions.",
		}),
		deals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "realvest_deals_total",
			Help: "Pipeline deals per stage.",
		}, []string{"stage"}),
	}
	inv.registry.MustRegister(
		inv.properties,
		inv.scoredProperties,
		inv.ownedProperties,
		inv.owners,
		inv.portfolioValue,
		inv.transactions,
		inv.deals,
	)
	return inv
}

func (i *Inventory) Registry() *prometheus.Registry {
	if i == nil {
		return nil
	}
	return i.registry
}

type stageCount struct {
	Stage string
	Count int64
}

// Refresh reloads every gauge from the database.
func (i *Inventory) Refresh(ctx context.Context, db *gorm.DB) error {
	if i == nil {
		return nil
	}
	if db == nil {
		return errors.New("inventory database handle is required")
	}
	db = db.WithContext(ctx)

	counts := []struct {
		gauge prometheus.Gauge
		query string
	}{
		{i.properties, `SELECT COUNT(*) FROM properties`},
		{i.scoredProperties, `SELECT COUNT(*) FROM investment_metrics`},
		{i.ownedProperties, `SELECT COUNT(*) FROM owned_properties`},
		{i.owners, `SELECT COUNT(DISTINCT owner_id) FROM owned_properties`},
		{i.transactions, `SELECT COUNT(*) FROM ledger_transactions`},
	}
	for _, c := range counts {
		var n int64
		if err := db.Raw(c.query).Scan(&n).Error; err != nil {
			return err
		}
		c.gauge.Set(float64(n))
	}

	var value float64
	if err := db.Raw(`SELECT COALESCE(SUM(portfolio_value), 0) FROM portfolio_metrics`).Scan(&value).Error; err != nil {
		return err
	}
	i.portfolioValue.Set(value)

	var stages []stageCount
	err := db.Raw(`
		SELECT s.name AS stage, COUNT(d.id) AS count
		FROM deal_stages s
		LEFT JOIN deals d ON d.stage_id = s.id
		GROUP BY s.name
	`).Scan(&stages).Error
	if err != nil {
		return err
	}
	i.deals.Reset()
	for _, s := range stages {
		i.deals.WithLabelValues(s.Stage).Set(float64(s.Count))
	}
	return nil
}
