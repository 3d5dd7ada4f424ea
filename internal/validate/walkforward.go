// Package validate estimates deployable forecast error with embargoed
// walk-forward validation: each fold trains only on a prefix of history,
// then replays the recursive forecaster over held-out days it never saw.
package validate

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/straitwatch/sortiecast/internal/config"
	"github.com/straitwatch/sortiecast/internal/dataset"
	"github.com/straitwatch/sortiecast/internal/features"
	"github.com/straitwatch/sortiecast/internal/model"
)

// SentinelScore marks a validation pass that produced no usable folds.
// Production training proceeds regardless.
const SentinelScore = -1.0

// Fold records one walk-forward fold. Created and discarded within a single
// validation pass.
type Fold struct {
	TrainEnd    int
	EmbargoDays int
	TestStart   int
	TestEnd     int
	Errors      []float64 // absolute error keyed by horizon offset, 0-based
}

// Report aggregates per-horizon mean absolute error across folds.
type Report struct {
	EmbargoDays    int
	FoldsAttempted int
	FoldsValid     int
	Folds          []Fold
	PerHorizonMAE  []float64 // indexed by day offset - 1; NaN where no fold scored it
	OverallMAE     float64   // SentinelScore when no fold validated
}

// Validator owns the walk-forward pass. It reuses the production feature
// builder but every fold constructs its own scaler and point model.
type Validator struct {
	cfg      *config.Config
	engineer *features.Engineer
	logger   zerolog.Logger
}

// New builds a validator over the shared feature engineer.
func New(cfg *config.Config, engineer *features.Engineer, logger zerolog.Logger) *Validator {
	return &Validator{
		cfg:      cfg,
		engineer: engineer,
		logger:   logger.With().Str("component", "walkforward").Logger(),
	}
}

// embargoDays derives the embargo from the feature schema unless the config
// pins a larger value. It is never allowed below the maximum lookback, which
// is the leakage boundary.
func (v *Validator) embargoDays() int {
	embargo := features.MaxLookback()
	if v.cfg.Validation.EmbargoDays > embargo {
		embargo = v.cfg.Validation.EmbargoDays
	}
	return embargo
}

// Run executes the validation pass. It never returns an error: degenerate
// data degrades to the sentinel score so the production forecast is not
// blocked.
func (v *Validator) Run(series dataset.Series) Report {
	embargo := v.embargoDays()
	horizon := v.cfg.Validation.HorizonScored
	minTrain := v.cfg.Validation.MinTrainRows
	folds := v.cfg.Validation.Folds

	report := Report{
		EmbargoDays:   embargo,
		PerHorizonMAE: nanSlice(horizon),
		OverallMAE:    SentinelScore,
	}

	n := len(series)
	span := n - embargo - minTrain
	if span <= 0 {
		v.logger.Warn().Int("rows", n).Int("embargo", embargo).Int("min_train", minTrain).
			Msg("history too short for walk-forward validation, reporting sentinel")
		return report
	}
	step := span / folds
	if step < 1 {
		step = 1
	}

	values := series.Values()
	horizonSums := make([]float64, horizon)
	horizonCounts := make([]int, horizon)
	totalErr, totalCount := 0.0, 0

	for f := 0; f < folds; f++ {
		trainEnd := minTrain + f*step
		testStart := trainEnd + embargo
		testEnd := testStart + horizon
		if testEnd > n {
			testEnd = n
		}
		report.FoldsAttempted++
		if trainEnd < minTrain || testStart >= n {
			v.logger.Debug().Int("fold", f).Msg("skipping fold with empty test window")
			continue
		}

		fold, ok := v.runFold(series, values, trainEnd, testStart, testEnd, embargo, f)
		if !ok {
			continue
		}

		report.FoldsValid++
		report.Folds = append(report.Folds, fold)
		for h, e := range fold.Errors {
			horizonSums[h] += e
			horizonCounts[h]++
			totalErr += e
			totalCount++
		}
	}

	if totalCount == 0 {
		v.logger.Warn().Msg("no walk-forward fold validated, reporting sentinel")
		return report
	}

	for h := 0; h < horizon; h++ {
		if horizonCounts[h] > 0 {
			report.PerHorizonMAE[h] = horizonSums[h] / float64(horizonCounts[h])
		}
	}
	report.OverallMAE = totalErr / float64(totalCount)

	v.logger.Info().
		Int("folds", report.FoldsValid).
		Int("embargo_days", embargo).
		Float64("mae", report.OverallMAE).
		Msg("walk-forward validation complete")
	return report
}

// runFold fits a fresh scaler and point model on the prefix, then replays
// the recursive loop: unscored warm-up steps carry the window through the
// embargo gap (so no feature in the test window ever touches an observation
// at or past trainEnd), then each scored step compares against the held-out
// actual.
func (v *Validator) runFold(series dataset.Series, values []float64,
	trainEnd, testStart, testEnd, embargo, foldNum int) (Fold, bool) {

	samples := v.engineer.BuildTraining(series[:trainEnd])
	if len(samples) == 0 {
		v.logger.Debug().Int("fold", foldNum).Msg("skipping fold with no trainable samples")
		return Fold{}, false
	}

	tc := model.TrainConfigFrom(v.cfg)
	tc.PointOnly = true
	tc.ApplyBoost = false
	tc.Seed = v.cfg.Seed + int64(foldNum)

	ms, err := model.Train(samples, tc, v.logger)
	if err != nil {
		v.logger.Warn().Int("fold", foldNum).Err(err).Msg("fold training failed, skipping")
		return Fold{}, false
	}

	windowStart := trainEnd - v.cfg.WindowSize
	if windowStart < 0 {
		windowStart = 0
	}
	window := append([]float64{}, values[windowStart:trainEnd]...)
	if len(window) < features.MaxLookback() {
		v.logger.Debug().Int("fold", foldNum).Msg("skipping fold with short window")
		return Fold{}, false
	}

	lastDate := series[trainEnd-1].Date
	stepDate := func(offset int) time.Time {
		idx := trainEnd + offset
		if idx < len(series) {
			return series[idx].Date
		}
		return lastDate.AddDate(0, 0, offset+1)
	}

	// Warm-up through the embargo: predictions feed the window, nothing is
	// scored.
	for g := 0; g < embargo; g++ {
		vec := v.engineer.BuildDay(stepDate(g), window)
		window = append(window, ms.PredictPoint(&vec))
	}

	fold := Fold{
		TrainEnd:    trainEnd,
		EmbargoDays: embargo,
		TestStart:   testStart,
		TestEnd:     testEnd,
	}
	for idx := testStart; idx < testEnd; idx++ {
		vec := v.engineer.BuildDay(series[idx].Date, window)
		pred := ms.PredictPoint(&vec)
		fold.Errors = append(fold.Errors, math.Abs(pred-series[idx].Sorties))
		window = append(window, pred)
	}

	if len(fold.Errors) == 0 {
		return Fold{}, false
	}
	return fold, true
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
