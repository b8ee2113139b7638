package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/realvest/internal/config"
)

const (
	JobRecomputePropertyMetrics = "recompute_property_metrics"
	JobRecomputePortfolios      = "recompute_portfolios"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval         time.Duration
	BatchSize           int
	PortfolioStaleAfter time.Duration
	JobTimeout          time.Duration
	// EnabledJobs restricts which jobs run. Empty enables all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:         5 * time.Minute,
		BatchSize:           50,
		PortfolioStaleAfter: 24 * time.Hour,
		JobTimeout:          2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PortfolioStaleAfter <= 0 {
		c.PortfolioStaleAfter = defaults.PortfolioStaleAfter
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	jobs := make([]string, 0, len(cfg.Scheduler.EnabledJobs))
	for _, job := range cfg.Scheduler.EnabledJobs {
		if job = strings.TrimSpace(job); job != "" {
			jobs = append(jobs, job)
		}
	}
	return Config{
		RunInterval:         cfg.Scheduler.RunInterval,
		BatchSize:           cfg.Scheduler.BatchSize,
		PortfolioStaleAfter: cfg.Scheduler.PortfolioStaleAfter,
		JobTimeout:          cfg.Scheduler.JobTimeout,
		EnabledJobs:         jobs,
	}.withDefaults()
}
