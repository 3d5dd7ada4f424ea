// Package forecast drives the recursive multi-day forecast: each day's
// adjusted point estimate is appended to the rolling window before the next
// day's features are built, mirroring how the model runs in production where
// future actuals do not exist yet.
package forecast

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/straitwatch/sortiecast/internal/dataset"
	"github.com/straitwatch/sortiecast/internal/features"
	"github.com/straitwatch/sortiecast/internal/model"
)

// Row is one forecast day. Invariants: Predicted >= 0 and
// 0 <= Lower <= Predicted <= Upper after band adjustment.
type Row struct {
	Date            time.Time
	DayOffset       int // 1-based days past the last observation
	Predicted       float64
	Lower           float64
	Upper           float64
	HighProbability float64
	Risk            RiskLevel
	Holiday         bool
	WeatherFactor   float64
	WeatherNote     string
}

// Forecaster runs the recursive loop against a fitted ModelSet. The scaler
// inside the ModelSet is never refit here.
type Forecaster struct {
	engineer   *features.Engineer
	models     *model.ModelSet
	weather    dataset.WeatherTable
	cities     []string
	horizon    int
	windowSize int
	bandGrowth float64
	logger     zerolog.Logger
}

// New builds a forecaster. windowSize is the trailing observation count
// seeded into the rolling window and must cover the feature lookback.
func New(engineer *features.Engineer, models *model.ModelSet, weather dataset.WeatherTable,
	cities []string, horizon, windowSize int, bandGrowth float64, logger zerolog.Logger) *Forecaster {

	return &Forecaster{
		engineer:   engineer,
		models:     models,
		weather:    weather,
		cities:     cities,
		horizon:    horizon,
		windowSize: windowSize,
		bandGrowth: bandGrowth,
		logger:     logger.With().Str("component", "forecaster").Logger(),
	}
}

// Forecast produces exactly horizon rows past the end of the series. The
// rolling window starts from the trailing observed values; every later step
// sees the previous steps' own predictions at its tail.
func (f *Forecaster) Forecast(series dataset.Series) ([]Row, error) {
	if f.windowSize < features.MaxLookback() {
		return nil, fmt.Errorf("window size %d below feature lookback %d",
			f.windowSize, features.MaxLookback())
	}
	if len(series) < f.windowSize {
		return nil, fmt.Errorf("series has %d rows, window needs %d", len(series), f.windowSize)
	}
	if !f.models.HasBand() {
		return nil, fmt.Errorf("model set was trained point-only, cannot produce bands")
	}

	values := series.Values()
	window := append([]float64{}, values[len(values)-f.windowSize:]...)
	lastDate := series.LastDate()

	rows := make([]Row, 0, f.horizon)
	for i := 0; i < f.horizon; i++ {
		date := lastDate.AddDate(0, 0, i+1)
		v := f.engineer.BuildDay(date, window)

		point := f.models.PredictPoint(&v)
		lowerRaw, upperRaw := f.models.PredictBand(&v)
		prob := f.models.PredictHighProb(&v)

		factor, note := f.weather.Adjustment(date, f.cities)
		row := adjustBand(point, lowerRaw, upperRaw, factor, i, f.bandGrowth)
		row.Date = date
		row.DayOffset = i + 1
		row.HighProbability = prob
		row.Risk = RiskFromProbability(prob)
		row.Holiday = v.Holiday == 1
		row.WeatherNote = note

		f.logger.Debug().
			Str("date", date.Format("2006-01-02")).
			Float64("predicted", row.Predicted).
			Float64("lower", row.Lower).
			Float64("upper", row.Upper).
			Float64("high_prob", prob).
			Str("risk", string(row.Risk)).
			Msg("forecast step")

		rows = append(rows, row)

		// The post-adjustment estimate, not the raw model output, becomes
		// observed history for the next step.
		window = append(window, row.Predicted)
	}
	return rows, nil
}

// adjustBand applies the weather factor and the per-step geometric widening,
// then restores band ordering around the adjusted point where the raw
// quantiles crossed it.
func adjustBand(point, lowerRaw, upperRaw, factor float64, step int, growth float64) Row {
	adjusted := point * factor
	widen := 1 + float64(step)*growth

	lower := lowerRaw * factor / widen
	upper := upperRaw * factor * widen
	if lower < 0 {
		lower = 0
	}
	if lower > adjusted {
		lower = adjusted * 0.7
	}
	if upper < adjusted {
		upper = adjusted * 1.3
	}

	return Row{
		Predicted:     adjusted,
		Lower:         lower,
		Upper:         upper,
		WeatherFactor: factor,
	}
}
