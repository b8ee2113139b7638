package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScoringConfigIsValid(t *testing.T) {
	assert.NoError(t, ValidateScoringConfig(DefaultScoringConfig()))
}

func TestValidateScoringConfigRejectsBadWeights(t *testing.T) {
	cfg := DefaultScoringConfig()
	cfg.Weights.CapRate = 0.5
	assert.Error(t, ValidateScoringConfig(cfg))

	cfg = DefaultScoringConfig()
	cfg.ExpenseRatio = 1
	assert.Error(t, ValidateScoringConfig(cfg))

	cfg = DefaultScoringConfig()
	cfg.ROIHorizonYears = 0
	assert.Error(t, ValidateScoringConfig(cfg))
}

func TestNewScoringConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`scoring:
  expenseRatio: 0.35
  roiHorizonYears: 10
  weights:
    capRate: 0.5
    cashFlow: 0.2
    appreciation: 0.2
    marketEfficiency: 0.05
    risk: 0.05
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scoring.yml"), content, 0o600))

	holder, err := NewScoringConfigHolder(Config{ScoringConfigPath: dir})
	require.NoError(t, err)

	got := holder.Get()
	assert.InDelta(t, 0.35, got.ExpenseRatio, 1e-9)
	assert.Equal(t, 10, got.ROIHorizonYears)
	assert.InDelta(t, 0.5, got.Weights.CapRate, 1e-9)
	assert.InDelta(t, 0.01, got.DefaultRentRatio, 1e-9)
}

func TestNewScoringConfigHolderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`scoring:
  weights:
    capRate: 0.9
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scoring.yml"), content, 0o600))

	_, err := NewScoringConfigHolder(Config{ScoringConfigPath: dir})
	assert.Error(t, err)
}

func TestNilHolderFallsBackToDefaults(t *testing.T) {
	var holder *ScoringConfigHolder
	assert.Equal(t, DefaultScoringConfig().ROIHorizonYears, holder.Get().ROIHorizonYears)
}
