// Package features turns the daily sortie series and its exogenous side
// tables into fixed-schema model inputs. Every statistic is computed from
// history strictly before the target day; the single-day builder is shared by
// training, validation and production so the three paths cannot drift apart.
package features

import "time"

// Lookback structure of the schema. The embargo used by the walk-forward
// validator is derived from these, never hardcoded.
var (
	lagDays     = []int{1, 7, 14, 30}
	rollWindows = []int{3, 7, 14, 30}
	emaSpans    = []int{7, 14}

	// The 7-day change and difference features reach back to lag 8.
	changeLookback = 8
)

// MaxLookback returns the longest lookback any feature requires. Days with
// fewer prior observations than this are not trainable.
func MaxLookback() int {
	max := changeLookback
	for _, set := range [][]int{lagDays, rollWindows, emaSpans} {
		for _, v := range set {
			if v > max {
				max = v
			}
		}
	}
	return max
}

// Vector is the feature vector for one day. The field order within each
// group is the model input order; group membership (and therefore scaler
// assignment) is fixed by the accessor methods below rather than matched by
// string keys at runtime.
type Vector struct {
	Date time.Time

	// Cyclical encodings, never scaled.
	MonthSin, MonthCos float64
	DowSin, DowCos     float64

	// Continuous block: lags, rolling stats, EMAs and derived ratios.
	Lag1, Lag7, Lag14, Lag30     float64
	MA3, MA7, MA14, MA30         float64
	EMA7, EMA14, EMATrend        float64
	Min7, Max7                   float64
	Std3, Std7, Std14, Std30     float64
	PctChange1, PctChange7       float64
	Diff1, Diff7                 float64
	Compression, Trend3, Trend7  float64
	VolatilityRatio              float64
	ZeroCount3, ZeroCount7       float64
	ZeroRun7, SpikeRatio         float64

	// Exogenous counts block.
	Carrier7, Stmt7, News7, Sentiment7 float64

	// Passthrough binary flag, appended after the scaled blocks.
	Holiday float64
}

// Cyclical returns the unscaled cyclical block.
func (v *Vector) Cyclical() []float64 {
	return []float64{v.MonthSin, v.MonthCos, v.DowSin, v.DowCos}
}

// Continuous returns the continuous block in model input order.
func (v *Vector) Continuous() []float64 {
	return []float64{
		v.Lag1, v.Lag7, v.Lag14, v.Lag30,
		v.MA3, v.MA7, v.MA14, v.MA30,
		v.EMA7, v.EMA14, v.EMATrend,
		v.Min7, v.Max7,
		v.Std3, v.Std7, v.Std14, v.Std30,
		v.PctChange1, v.PctChange7,
		v.Diff1, v.Diff7,
		v.Compression, v.Trend3, v.Trend7,
		v.VolatilityRatio,
		v.ZeroCount3, v.ZeroCount7,
		v.ZeroRun7, v.SpikeRatio,
	}
}

// Counts returns the exogenous count block.
func (v *Vector) Counts() []float64 {
	return []float64{v.Carrier7, v.Stmt7, v.News7, v.Sentiment7}
}

// Sample pairs a feature vector with its observed target.
type Sample struct {
	Vector Vector
	Target float64
}
