package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	propertyMetrics     metric.Int64Counter
	portfolioRecomputes metric.Int64Counter
	dealMutations       metric.Int64Counter
	transactions        metric.Int64Counter
	invariantViolations metric.Int64Counter
	rateLimited         metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "realvest"
	}
	meter := provider.Meter(name)

	propertyMetrics, err := meter.Int64Counter("realvest_property_metrics_computed_total")
	if err != nil {
		return nil, err
	}
	portfolioRecomputes, err := meter.Int64Counter("realvest_portfolio_recomputes_total")
	if err != nil {
		return nil, err
	}
	dealMutations, err := meter.Int64Counter("realvest_deal_mutations_total")
	if err != nil {
		return nil, err
	}
	transactions, err := meter.Int64Counter("realvest_ledger_transactions_total")
	if err != nil {
		return nil, err
	}
	invariantViolations, err := meter.Int64Counter("realvest_pipeline_invariant_violations_total")
	if err != nil {
		return nil, err
	}

	rateLimited, err := meter.Int64Counter("realvest_rate_limited_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		propertyMetrics:     propertyMetrics,
		portfolioRecomputes: portfolioRecomputes,
		dealMutations:       dealMutations,
		transactions:        transactions,
		invariantViolations: invariantViolations,
		rateLimited:         rateLimited,
	}, nil
}

// RecordPropertyMetrics counts metric recomputations; outcome is "scored" or "skipped".
func (m *Metrics) RecordPropertyMetrics(ctx context.Context, trigger, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("trigger", strings.TrimSpace(trigger)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.propertyMetrics.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPortfolioRecompute counts full portfolio recomputations.
func (m *Metrics) RecordPortfolioRecompute(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("trigger", strings.TrimSpace(trigger)))
	m.portfolioRecomputes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDealMutation counts pipeline create/move/delete operations.
func (m *Metrics) RecordDealMutation(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.dealMutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTransaction counts recorded ledger transactions by type.
func (m *Metrics) RecordTransaction(ctx context.Context, txType, category string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("type", strings.TrimSpace(txType)),
		attribute.String("category", strings.TrimSpace(category)),
	)
	m.transactions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvariantViolation counts rolled back pipeline mutations.
func (m *Metrics) RecordInvariantViolation(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.invariantViolations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimited counts mutations rejected by the per-owner rate limit.
func (m *Metrics) RecordRateLimited(ctx context.Context, route string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("route", strings.TrimSpace(route)))
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// User and property ids are deliberately absent.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"trigger":     {},
	"outcome":     {},
	"operation":   {},
	"type":        {},
	"category":    {},
	"method":      {},
	"route":       {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
