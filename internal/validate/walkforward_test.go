package validate

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straitwatch/sortiecast/internal/config"
	"github.com/straitwatch/sortiecast/internal/dataset"
	"github.com/straitwatch/sortiecast/internal/features"
)

func validationSeries(n int) dataset.Series {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	series := make(dataset.Series, n)
	for t := 0; t < n; t++ {
		series[t] = dataset.DailyObservation{
			Date:    start.AddDate(0, 0, t),
			Sorties: 15 + 8*math.Sin(2*math.Pi*float64(t)/7),
		}
	}
	return series
}

func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Engine = "linear"
	cfg.Validation.Folds = 3
	return cfg
}

func newValidator(cfg *config.Config, series dataset.Series) *Validator {
	eng := features.NewEngineer(series, nil, nil, nil, nil)
	return New(cfg, eng, zerolog.Nop())
}

func TestEmbargo_NeverBelowFeatureLookback(t *testing.T) {
	cfg := fastConfig()
	series := validationSeries(200)

	report := newValidator(cfg, series).Run(series)
	assert.Equal(t, features.MaxLookback(), report.EmbargoDays)

	cfg.Validation.EmbargoDays = 45
	report = newValidator(cfg, series).Run(series)
	assert.Equal(t, 45, report.EmbargoDays)

	// A configured embargo below the lookback is ignored.
	cfg.Validation.EmbargoDays = 5
	report = newValidator(cfg, series).Run(series)
	assert.Equal(t, features.MaxLookback(), report.EmbargoDays)
}

func TestRun_ShortHistoryReportsSentinel(t *testing.T) {
	cfg := fastConfig()
	series := validationSeries(70) // below min_train + embargo

	report := newValidator(cfg, series).Run(series)
	assert.Equal(t, SentinelScore, report.OverallMAE)
	assert.Zero(t, report.FoldsValid)
	for _, mae := range report.PerHorizonMAE {
		assert.True(t, math.IsNaN(mae))
	}
}

func TestRun_ScoresFoldsOnAdequateHistory(t *testing.T) {
	cfg := fastConfig()
	series := validationSeries(240)

	report := newValidator(cfg, series).Run(series)
	require.Greater(t, report.FoldsValid, 0)
	require.NotEqual(t, SentinelScore, report.OverallMAE)
	assert.GreaterOrEqual(t, report.OverallMAE, 0.0)

	scored := 0
	for _, mae := range report.PerHorizonMAE {
		if !math.IsNaN(mae) {
			assert.GreaterOrEqual(t, mae, 0.0)
			scored++
		}
	}
	assert.Greater(t, scored, 0)
}

func TestRun_FoldWindowsRespectEmbargo(t *testing.T) {
	cfg := fastConfig()
	series := validationSeries(240)

	report := newValidator(cfg, series).Run(series)
	require.NotEmpty(t, report.Folds)
	for _, fold := range report.Folds {
		assert.Equal(t, fold.TrainEnd+fold.EmbargoDays, fold.TestStart)
		assert.GreaterOrEqual(t, fold.EmbargoDays, features.MaxLookback())
		assert.LessOrEqual(t, fold.TestEnd, len(series))
		assert.LessOrEqual(t, len(fold.Errors), cfg.Validation.HorizonScored)
	}
}

func TestRun_DeterministicAcrossCalls(t *testing.T) {
	cfg := fastConfig()
	series := validationSeries(240)

	a := newValidator(cfg, series).Run(series)
	b := newValidator(cfg, series).Run(series)
	assert.Equal(t, a.OverallMAE, b.OverallMAE)
	assert.Equal(t, a.PerHorizonMAE, b.PerHorizonMAE)
}
