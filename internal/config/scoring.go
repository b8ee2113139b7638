package config

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ScoringWeights are the component weights of the composite investment score.
type ScoringWeights struct {
	CapRate          float64 `mapstructure:"capRate"`
	CashFlow         float64 `mapstructure:"cashFlow"`
	Appreciation     float64 `mapstructure:"appreciation"`
	MarketEfficiency float64 `mapstructure:"marketEfficiency"`
	Risk             float64 `mapstructure:"risk"`
}

// ScoringConfig holds the tunable constants of property metric calculation.
type ScoringConfig struct {
	ExpenseRatio     float64        `mapstructure:"expenseRatio"`
	ROIHorizonYears  int            `mapstructure:"roiHorizonYears"`
	HighCapRate      float64        `mapstructure:"highCapRate"`
	Weights          ScoringWeights `mapstructure:"weights"`
	DefaultRentRatio float64        `mapstructure:"defaultRentRatio"`
	// CityRentRatios maps a lower-case city name to its monthly rent/price ratio.
	CityRentRatios map[string]float64 `mapstructure:"cityRentRatios"`
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		ExpenseRatio:    0.30,
		ROIHorizonYears: 5,
		HighCapRate:     8,
		Weights: ScoringWeights{
			CapRate:          0.40,
			CashFlow:         0.25,
			Appreciation:     0.20,
			MarketEfficiency: 0.10,
			Risk:             0.05,
		},
		DefaultRentRatio: 0.01,
		CityRentRatios: map[string]float64{
			"denver":  0.012,
			"atlanta": 0.015,
			"phoenix": 0.013,
			"miami":   0.008,
			"chicago": 0.011,
		},
	}
}

type ScoringConfigHolder struct {
	current atomic.Value // holds ScoringConfig
}

// NewStaticScoringConfigHolder wraps a fixed config, mainly for tests.
func NewStaticScoringConfigHolder(cfg ScoringConfig) *ScoringConfigHolder {
	holder := &ScoringConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewScoringConfigHolder(cfg Config) (*ScoringConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("scoring")
	v.SetConfigType("yml")
	if cfg.ScoringConfigPath != "" {
		v.AddConfigPath(cfg.ScoringConfigPath)
	}
	v.AddConfigPath("/etc/realvest")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REALVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultScoringConfig()
	v.SetDefault("scoring.expenseRatio", defaults.ExpenseRatio)
	v.SetDefault("scoring.roiHorizonYears", defaults.ROIHorizonYears)
	v.SetDefault("scoring.highCapRate", defaults.HighCapRate)
	v.SetDefault("scoring.weights.capRate", defaults.Weights.CapRate)
	v.SetDefault("scoring.weights.cashFlow", defaults.Weights.CashFlow)
	v.SetDefault("scoring.weights.appreciation", defaults.Weights.Appreciation)
	v.SetDefault("scoring.weights.marketEfficiency", defaults.Weights.MarketEfficiency)
	v.SetDefault("scoring.weights.risk", defaults.Weights.Risk)
	v.SetDefault("scoring.defaultRentRatio", defaults.DefaultRentRatio)
	v.SetDefault("scoring.cityRentRatios", defaults.CityRentRatios)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	scoring, err := unmarshalScoring(v)
	if err != nil {
		return nil, err
	}
	if err := ValidateScoringConfig(scoring); err != nil {
		return nil, err
	}

	holder := NewStaticScoringConfigHolder(scoring)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := unmarshalScoring(v)
			if err != nil {
				log.Printf("[scoring-config] reload failed: %v", err)
				return
			}
			if err := ValidateScoringConfig(updated); err != nil {
				log.Printf("[scoring-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[scoring-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// unmarshalScoring decodes the merged view of file values over defaults.
func unmarshalScoring(v *viper.Viper) (ScoringConfig, error) {
	var wrapper struct {
		Scoring ScoringConfig `mapstructure:"scoring"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return ScoringConfig{}, err
	}
	return wrapper.Scoring, nil
}

func (h *ScoringConfigHolder) Get() ScoringConfig {
	if h == nil {
		return DefaultScoringConfig()
	}
	return h.current.Load().(ScoringConfig)
}

func ValidateScoringConfig(cfg ScoringConfig) error {
	if cfg.ExpenseRatio < 0 || cfg.ExpenseRatio >= 1 {
		return errors.New("scoring.expenseRatio must be within [0, 1)")
	}
	if cfg.ROIHorizonYears <= 0 {
		return errors.New("scoring.roiHorizonYears must be positive")
	}
	w := cfg.Weights
	for name, value := range map[string]float64{
		"capRate":          w.CapRate,
		"cashFlow":         w.CashFlow,
		"appreciation":     w.Appreciation,
		"marketEfficiency": w.MarketEfficiency,
		"risk":             w.Risk,
	} {
		if value < 0 {
			return fmt.Errorf("scoring.weights.%s cannot be negative", name)
		}
	}
	sum := w.CapRate + w.CashFlow + w.Appreciation + w.MarketEfficiency + w.Risk
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("scoring.weights must sum to 1, got %v", sum)
	}
	if cfg.DefaultRentRatio <= 0 {
		return errors.New("scoring.defaultRentRatio must be positive")
	}
	return nil
}
