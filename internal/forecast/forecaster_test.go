package forecast

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
	"github.com/straitwatch/sortiecast/internal/model"
)

func weeklySeries(n int) dataset.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make(dataset.Series, n)
	for t := 0; t < n; t++ {
		series[t] = dataset.DailyObservation{
			Date:    start.AddDate(0, 0, t),
			Sorties: 10 + 5*math.Sin(2*math.Pi*float64(t)/7),
		}
	}
	return series
}

func trainedForecaster(t *testing.T, series dataset.Series, weather dataset.WeatherTable) *Forecaster {
	t.Helper()
	cfg := config.Default()
	cfg.GBRT.Iterations = 60
	cfg.GBRT.Depth = 3

	eng := features.NewEngineer(series, nil, nil, nil, nil)
	samples := eng.BuildTraining(series)
	require.NotEmpty(t, samples)

	ms, err := model.Train(samples, model.TrainConfigFrom(cfg), zerolog.Nop())
	require.NoError(t, err)

	return New(eng, ms, weather, cfg.WeatherCities, cfg.Horizon, cfg.WindowSize,
		cfg.BandGrowth, zerolog.Nop())
}

func TestForecast_SevenOrderedRows(t *testing.T) {
	series := weeklySeries(120)
	fc := trainedForecaster(t, series, nil)

	rows, err := fc.Forecast(series)
	require.NoError(t, err)
	require.Len(t, rows, 7)

	last := series.LastDate()
	for i, row := range rows {
		assert.Equal(t, i+1, row.DayOffset)
		assert.Equal(t, last.AddDate(0, 0, i+1), row.Date)
		assert.GreaterOrEqual(t, row.Predicted, 0.0)
		assert.GreaterOrEqual(t, row.Lower, 0.0)
		assert.LessOrEqual(t, row.Lower, row.Predicted, "day %d", i+1)
		assert.GreaterOrEqual(t, row.Upper, row.Predicted, "day %d", i+1)
		assert.Equal(t, 1.0, row.WeatherFactor)
	}
}

func TestForecast_Deterministic(t *testing.T) {
	series := weeklySeries(120)
	fc := trainedForecaster(t, series, nil)

	a, err := fc.Forecast(series)
	require.NoError(t, err)
	b, err := fc.Forecast(series)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// Each step's features must come from the trailing observations plus exactly
// the previous steps' own predictions, never from actuals that do not exist
// yet.
func TestForecast_WindowCarriesPredictionsForward(t *testing.T) {
	series := weeklySeries(120)
	fc := trainedForecaster(t, series, nil)

	rows, err := fc.Forecast(series)
	require.NoError(t, err)

	values := series.Values()
	window := append([]float64{}, values[len(values)-fc.windowSize:]...)
	for i, row := range rows {
		v := fc.engineer.BuildDay(row.Date, window)
		assert.Equal(t, row.Predicted, fc.models.PredictPoint(&v), "step %d", i)
		window = append(window, row.Predicted)
	}
}

// A model trained without event and news tables must produce the same point
// forecast when those tables show up at inference time: columns that were
// constant during training cannot move the prediction.
func TestForecast_IgnoresTablesModelNeverTrainedOn(t *testing.T) {
	series := weeklySeries(120)
	cfg := config.Default()
	cfg.GBRT.Iterations = 60
	cfg.GBRT.Depth = 3

	plain := features.NewEngineer(series, nil, nil, nil, nil)
	samples := plain.BuildTraining(series)
	require.NotEmpty(t, samples)

	ms, err := model.Train(samples, model.TrainConfigFrom(cfg), zerolog.Nop())
	require.NoError(t, err)

	last := series.LastDate()
	events := dataset.EventTable{
		{Date: last, Text: "國台辦就台海局勢發表聲明"},
		{Date: last.AddDate(0, 0, 2), Text: "中共中央軍委演習公告"},
	}
	news := dataset.NewsTable{
		{Date: last, Category: "Military", Sentiment: -0.8, HasScore: true},
		{Date: last.AddDate(0, 0, 3), Category: "Diplomacy", Sentiment: 0.4, HasScore: true},
	}
	loaded := features.NewEngineer(series, nil, events, news, cfg.StatementKeywords)

	without := New(plain, ms, nil, nil, cfg.Horizon, cfg.WindowSize, cfg.BandGrowth, zerolog.Nop())
	with := New(loaded, ms, nil, nil, cfg.Horizon, cfg.WindowSize, cfg.BandGrowth, zerolog.Nop())

	base, err := without.Forecast(series)
	require.NoError(t, err)
	rows, err := with.Forecast(series)
	require.NoError(t, err)
	assert.Equal(t, base, rows)
}

func TestForecast_GuardsDegenerateInputs(t *testing.T) {
	series := weeklySeries(120)
	cfg := config.Default()
	cfg.GBRT.Iterations = 30

	eng := features.NewEngineer(series, nil, nil, nil, nil)
	samples := eng.BuildTraining(series)

	tc := model.TrainConfigFrom(cfg)
	tc.PointOnly = true
	pointOnly, err := model.Train(samples, tc, zerolog.Nop())
	require.NoError(t, err)

	// Point-only model cannot produce bands.
	fc := New(eng, pointOnly, nil, nil, 7, cfg.WindowSize, cfg.BandGrowth, zerolog.Nop())
	_, err = fc.Forecast(series)
	assert.Error(t, err)

	full, err := model.Train(samples, model.TrainConfigFrom(cfg), zerolog.Nop())
	require.NoError(t, err)

	// Window below the feature lookback.
	fc = New(eng, full, nil, nil, 7, features.MaxLookback()-1, cfg.BandGrowth, zerolog.Nop())
	_, err = fc.Forecast(series)
	assert.Error(t, err)

	// Series shorter than the window.
	fc = New(eng, full, nil, nil, 7, cfg.WindowSize, cfg.BandGrowth, zerolog.Nop())
	_, err = fc.Forecast(series[:40])
	assert.Error(t, err)
}

func TestForecast_WeatherFactorApplied(t *testing.T) {
	series := weeklySeries(120)
	stormDay := series.LastDate().AddDate(0, 0, 1)
	weather := dataset.WeatherTable{
		{Date: stormDay, City: "福州", RiskLevel: "HIGH"},
	}
	calm := trainedForecaster(t, series, nil)
	stormy := trainedForecaster(t, series, weather)

	calmRows, err := calm.Forecast(series)
	require.NoError(t, err)
	stormRows, err := stormy.Forecast(series)
	require.NoError(t, err)

	assert.Equal(t, 0.75, stormRows[0].WeatherFactor)
	assert.InDelta(t, calmRows[0].Predicted*0.75, stormRows[0].Predicted, 1e-9)
	assert.NotEmpty(t, stormRows[0].WeatherNote)
}

func TestAdjustBand_WideningIsMonotone(t *testing.T) {
	prev := -1.0
	for step := 0; step < 7; step++ {
		row := adjustBand(50, 40, 60, 1.0, step, 0.1)
		width := row.Upper - row.Lower
		assert.Greater(t, width, prev, "step %d", step)
		prev = width
	}
}

func TestAdjustBand_RestoresOrderingOnCrossedQuantiles(t *testing.T) {
	// Raw quantiles on the wrong side of the point estimate.
	row := adjustBand(50, 55, 45, 1.0, 0, 0.1)
	assert.Equal(t, 35.0, row.Lower)
	assert.Equal(t, 65.0, row.Upper)
}

func TestAdjustBand_FactorScalesEverything(t *testing.T) {
	row := adjustBand(40, 30, 50, 0.9, 0, 0.1)
	assert.InDelta(t, 36, row.Predicted, 1e-12)
	assert.InDelta(t, 27, row.Lower, 1e-12)
	assert.InDelta(t, 45, row.Upper, 1e-12)
}

func TestRiskFromProbability(t *testing.T) {
	assert.Equal(t, RiskHigh, RiskFromProbability(0.9))
	assert.Equal(t, RiskHigh, RiskFromProbability(0.51))
	assert.Equal(t, RiskMediumHigh, RiskFromProbability(0.5))
	assert.Equal(t, RiskMediumHigh, RiskFromProbability(0.31))
	assert.Equal(t, RiskMedium, RiskFromProbability(0.3))
	assert.Equal(t, RiskMedium, RiskFromProbability(0.16))
	assert.Equal(t, RiskLow, RiskFromProbability(0.15))
	assert.Equal(t, RiskLow, RiskFromProbability(0))
}
