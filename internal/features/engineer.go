package features

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/straitwatch/sortiecast/internal/calendar"
	"github.com/straitwatch/sortiecast/internal/dataset"
)

const exogenousWindowDays = 7

// Engineer derives feature vectors from the target history and the exogenous
// lookups. It holds no mutable state and is shared by training, validation
// and production forecasting.
type Engineer struct {
	cal      *calendar.Calendar
	events   dataset.EventTable
	news     dataset.NewsTable
	carrier  map[time.Time]float64
	keywords []string
}

// NewEngineer builds an engineer over the loaded inputs. Nil side tables are
// valid; their features come out zero.
func NewEngineer(series dataset.Series, cal *calendar.Calendar, events dataset.EventTable,
	news dataset.NewsTable, keywords []string) *Engineer {

	carrier := make(map[time.Time]float64, len(series))
	for _, obs := range series {
		if obs.Carrier != 0 {
			carrier[obs.Date] = obs.Carrier
		}
	}
	return &Engineer{
		cal:      cal,
		events:   events,
		news:     news,
		carrier:  carrier,
		keywords: keywords,
	}
}

// BuildTraining produces one sample per day that has at least MaxLookback
// days of prior history. Earlier days are dropped rather than back-filled so
// placeholder values never distort the scaler fit.
func (e *Engineer) BuildTraining(series dataset.Series) []Sample {
	values := series.Values()
	minHistory := MaxLookback()

	samples := make([]Sample, 0, len(series))
	for i := range series {
		if i < minHistory {
			continue
		}
		samples = append(samples, Sample{
			Vector: e.BuildDay(series[i].Date, values[:i]),
			Target: series[i].Sorties,
		})
	}
	return samples
}

// BuildDay computes the feature vector for a target date from the window of
// target values strictly before it: window[len-1] is the value one day
// before date. The window must hold at least MaxLookback values.
func (e *Engineer) BuildDay(date time.Time, window []float64) Vector {
	n := len(window)
	lag := func(k int) float64 { return window[n-k] }
	tail := func(k int) []float64 { return window[n-k:] }

	v := Vector{Date: date}

	month := float64(date.Month())
	// Monday=0 day-of-week, matching the upstream series convention.
	dow := float64((int(date.Weekday()) + 6) % 7)
	v.MonthSin = math.Sin(2 * math.Pi * month / 12)
	v.MonthCos = math.Cos(2 * math.Pi * month / 12)
	v.DowSin = math.Sin(2 * math.Pi * dow / 7)
	v.DowCos = math.Cos(2 * math.Pi * dow / 7)

	v.Lag1, v.Lag7, v.Lag14, v.Lag30 = lag(1), lag(7), lag(14), lag(30)

	v.MA3 = stat.Mean(tail(3), nil)
	v.MA7 = stat.Mean(tail(7), nil)
	v.MA14 = stat.Mean(tail(14), nil)
	v.MA30 = stat.Mean(tail(30), nil)

	v.EMA7 = ema(tail(7), 7)
	v.EMA14 = ema(tail(14), 14)
	v.EMATrend = v.EMA7 - v.EMA14

	v.Min7 = floats.Min(tail(7))
	v.Max7 = floats.Max(tail(7))

	v.Std3 = popStd(tail(3))
	v.Std7 = popStd(tail(7))
	v.Std14 = popStd(tail(14))
	v.Std30 = popStd(tail(30))

	v.PctChange1 = clip((lag(1)-lag(2))/(lag(2)+1), -2, 2)
	v.PctChange7 = clip((lag(1)-lag(8))/(lag(8)+1), -2, 2)
	v.Diff1 = lag(1) - lag(2)
	v.Diff7 = lag(1) - lag(8)

	v.Compression = clip(v.MA3/(v.MA14+1), 0, 3)
	v.Trend3 = v.MA3 - v.MA7
	v.Trend7 = v.MA7 - v.MA14
	v.VolatilityRatio = v.Std7 / (v.MA7 + 1)

	v.ZeroCount3 = countZeros(tail(3))
	v.ZeroCount7 = countZeros(tail(7))
	v.ZeroRun7 = longestZeroRun(tail(7))
	v.SpikeRatio = v.Lag1 / (v.Max7 + 1)

	from := date.AddDate(0, 0, -exogenousWindowDays)
	v.Carrier7 = e.carrierWindow(from, date)
	v.Stmt7 = float64(e.events.CountMatching(from, date, e.keywords))
	v.News7 = float64(e.news.CountWindow(from, date))
	v.Sentiment7 = e.news.MeanSentiment(from, date)

	if e.cal != nil && e.cal.Contains(date) {
		v.Holiday = 1
	}
	return v
}

func (e *Engineer) carrierWindow(from, to time.Time) float64 {
	sum := 0.0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		sum += e.carrier[d]
	}
	return sum
}

func ema(values []float64, span int) float64 {
	alpha := 2.0 / (float64(span) + 1)
	out := values[0]
	for _, v := range values[1:] {
		out = alpha*v + (1-alpha)*out
	}
	return out
}

// popStd is the population standard deviation, used on every path so the
// training and serving feature definitions stay identical.
func popStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := stat.Mean(values, nil)
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

func countZeros(values []float64) float64 {
	n := 0.0
	for _, v := range values {
		if v == 0 {
			n++
		}
	}
	return n
}

func longestZeroRun(values []float64) float64 {
	best, run := 0, 0
	for _, v := range values {
		if v == 0 {
			run++
			if run > best {
				best = run
			}
		} else {
			run = 0
		}
	}
	return float64(best)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
