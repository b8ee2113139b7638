package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/realvest/internal/audit"
	auditdomain "github.com/smallbiznis/realvest/internal/audit/domain"
	"github.com/smallbiznis/realvest/internal/config"
	"github.com/smallbiznis/realvest/internal/ledger"
	"github.com/smallbiznis/realvest/internal/observability"
	obsmiddleware "github.com/smallbiznis/realvest/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/realvest/internal/observability/metrics"
	obstracing "github.com/smallbiznis/realvest/internal/observability/tracing"
	"github.com/smallbiznis/realvest/internal/pipeline"
	pipelinedomain "github.com/smallbiznis/realvest/internal/pipeline/domain"
	"github.com/smallbiznis/realvest/internal/portfolio"
	portfoliodomain "github.com/smallbiznis/realvest/internal/portfolio/domain"
	"github.com/smallbiznis/realvest/internal/property"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	"github.com/smallbiznis/realvest/internal/ratelimit"
	"github.com/smallbiznis/realvest/internal/watchlist"
	watchlistdomain "github.com/smallbiznis/realvest/internal/watchlist/domain"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Domains bundles the domain modules served over HTTP and driven by the
// scheduler.
var Domains = fx.Options(
	property.Module,
	watchlist.Module,
	ledger.Module,
	portfolio.Module,
	pipeline.Module,
	audit.Module,
	ratelimit.Module,
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

type mutationGuard interface {
	AllowMutation(ctx context.Context, ownerID snowflake.ID) (ratelimit.Result, error)
}

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, tp trace.TracerProvider) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(tp))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Type", HeaderUserID},
		ExposeHeaders: []string{"Retry-After", HeaderRateLimitRemaining},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	propertySvc  propertydomain.Service
	watchlistSvc watchlistdomain.Service
	portfolioSvc portfoliodomain.Service
	pipelineSvc  pipelinedomain.Service
	auditSvc     auditdomain.Service
	guard        mutationGuard
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	PropertySvc  propertydomain.Service
	WatchlistSvc watchlistdomain.Service
	PortfolioSvc portfoliodomain.Service
	PipelineSvc  pipelinedomain.Service
	AuditSvc     auditdomain.Service
	Guard        *ratelimit.Guard    `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		propertySvc:  p.PropertySvc,
		watchlistSvc: p.WatchlistSvc,
		portfolioSvc: p.PortfolioSvc,
		pipelineSvc:  p.PipelineSvc,
		auditSvc:     p.AuditSvc,
		obsMetrics:   p.ObsMetrics,
	}
	if p.Guard != nil {
		svc.guard = p.Guard
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.UserContext(), s.MutationRateLimit())

	// -------- Properties --------
	api.GET("/properties", s.ListProperties)
	api.POST("/properties", s.UpsertProperty)
	api.GET("/properties/:id", s.GetProperty)
	api.GET("/properties/:id/metrics", s.GetPropertyMetrics)
	api.POST("/properties/:id/metrics/recalculate", s.RecalculatePropertyMetrics)
	api.GET("/properties/:id/valuations", s.ListValuations)
	api.POST("/properties/:id/valuations", s.RecordValuation)
	api.PUT("/properties/:id/profit-prediction", s.SetProfitPrediction)
	api.DELETE("/properties/:id/profit-prediction", s.ClearProfitPrediction)

	api.GET("/dashboard/stats", s.GetDashboardStats)

	// -------- Watchlist --------
	api.GET("/watchlist", s.ListWatchlist)
	api.POST("/watchlist", s.AddToWatchlist)
	api.DELETE("/watchlist/:property_id", s.RemoveFromWatchlist)

	// -------- Portfolio --------
	api.GET("/portfolio/properties", s.ListOwnedProperties)
	api.POST("/portfolio/properties", s.CreateOwnedProperty)
	api.GET("/portfolio/properties/:id", s.GetOwnedProperty)
	api.PATCH("/portfolio/properties/:id", s.UpdateOwnedProperty)
	api.DELETE("/portfolio/properties/:id", s.DeleteOwnedProperty)
	api.POST("/portfolio/properties/:id/refresh-valuation", s.RefreshValuation)
	api.GET("/portfolio/properties/:id/transactions", s.ListTransactions)
	api.POST("/portfolio/properties/:id/transactions", s.RecordTransaction)
	api.PATCH("/portfolio/transactions/:id", s.CorrectTransaction)
	api.DELETE("/portfolio/transactions/:id", s.DeleteTransaction)
	api.GET("/portfolio/metrics", s.GetPortfolioMetrics)
	api.POST("/portfolio/metrics/recalculate", s.RecalculatePortfolioMetrics)
	api.GET("/portfolio/cash-flow", s.GetCashFlow)

	// -------- Pipeline --------
	api.GET("/pipeline/stages", s.ListStages)
	api.GET("/pipeline/deals", s.ListDeals)
	api.POST("/pipeline/deals", s.CreateDeal)
	api.PATCH("/pipeline/deals/:id", s.UpdateDeal)
	api.DELETE("/pipeline/deals/:id", s.DeleteDeal)
	api.POST("/pipeline/deals/:id/move", s.MoveDeal)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
}
