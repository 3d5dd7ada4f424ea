// Package model trains the four-estimator ensemble behind the sortie
// forecast: a log-space point regressor, lower/upper quantile regressors and
// a high-activity classifier, together with the feature scalers they were
// fit with.
package model

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/straitwatch/sortiecast/internal/config"
	"github.com/straitwatch/sortiecast/internal/features"
)

// TrainConfig selects the engine and hyperparameters for one training
// context. CV folds set PointOnly (only the point regressor drives the error
// report) and never set ApplyBoost.
type TrainConfig struct {
	Engine        string
	GBRT          config.GBRTConfig
	LowerQuantile float64
	UpperQuantile float64
	DecayLambda   float64
	HighThreshold float64
	Boost         config.BoostConfig
	Seed          int64
	PointOnly     bool
	ApplyBoost    bool
}

// TrainConfigFrom extracts the training knobs from the run configuration.
func TrainConfigFrom(cfg *config.Config) TrainConfig {
	return TrainConfig{
		Engine:        cfg.Engine,
		GBRT:          cfg.GBRT,
		LowerQuantile: cfg.LowerQuantile,
		UpperQuantile: cfg.UpperQuantile,
		DecayLambda:   cfg.DecayLambda,
		HighThreshold: cfg.HighThreshold,
		Boost:         cfg.Boost,
		Seed:          cfg.Seed,
	}
}

// ModelSet owns the fitted estimators and the scaler they were fit with.
// Instances are never shared between training contexts.
type ModelSet struct {
	Scaler *features.GroupedScaler

	point Regressor
	lower Regressor
	upper Regressor
	clf   Classifier
}

// Train fits a fresh ModelSet on the given samples. The samples themselves
// are never mutated; recency boosting replicates rows into a local copy.
func Train(samples []features.Sample, tc TrainConfig, logger zerolog.Logger) (*ModelSet, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot train on zero samples")
	}

	engine := tc.Engine
	switch engine {
	case "gbrt", "linear":
	default:
		logger.Warn().Str("engine", engine).Msg("unknown model engine, falling back to linear")
		engine = "linear"
	}

	scaler := features.NewGroupedScaler()
	if err := scaler.Fit(samples); err != nil {
		return nil, err
	}

	// Recency weights decay from this training set's own latest date; using
	// a global latest date would leak deployment-time information into CV
	// folds.
	maxDate := samples[len(samples)-1].Vector.Date
	train := samples
	if tc.ApplyBoost && tc.Boost.Factor > 1 && tc.Boost.Weeks > 0 {
		train = boostRecent(samples, maxDate, tc.Boost)
		logger.Debug().Int("rows", len(train)).Int("base_rows", len(samples)).
			Msg("recency boosting applied")
	}

	weights := recencyWeights(train, maxDate, tc.DecayLambda)

	n := len(train)
	xFull := make([][]float64, n)
	xBase := make([][]float64, n)
	yLog := make([]float64, n)
	yBin := make([]float64, n)
	for i := range train {
		xFull[i] = scaler.TransformFull(&train[i].Vector)
		xBase[i] = scaler.TransformBase(&train[i].Vector)
		yLog[i] = math.Log1p(train[i].Target)
		if train[i].Target >= tc.HighThreshold {
			yBin[i] = 1
		}
	}

	ms := &ModelSet{Scaler: scaler}
	var err error

	switch engine {
	case "gbrt":
		params := GBRTParams{
			Iterations:   tc.GBRT.Iterations,
			Depth:        tc.GBRT.Depth,
			LearningRate: tc.GBRT.LearningRate,
			MinLeaf:      tc.GBRT.MinLeaf,
			Subsample:    tc.GBRT.Subsample,
			Seed:         tc.Seed,
		}
		ms.point = fitGBRT(xFull, yLog, weights, params, squaredLoss{})
		if !tc.PointOnly {
			lowerParams, upperParams := params, params
			lowerParams.Seed = tc.Seed + 1
			upperParams.Seed = tc.Seed + 2
			ms.lower = fitGBRT(xFull, yLog, weights, lowerParams, pinballLoss{alpha: tc.LowerQuantile})
			ms.upper = fitGBRT(xFull, yLog, weights, upperParams, pinballLoss{alpha: tc.UpperQuantile})
		}
	case "linear":
		const lambda = 1.0
		point, ferr := fitRidge(xFull, yLog, weights, lambda)
		if ferr != nil {
			return nil, ferr
		}
		ms.point = point
		if !tc.PointOnly {
			// No closed form for pinball ridge: band offsets come from the
			// weighted residual quantiles in log space.
			resid := make([]float64, n)
			for i := range xFull {
				resid[i] = yLog[i] - point.Predict(xFull[i])
			}
			ms.lower = &shiftedRegressor{base: point, offset: weightedQuantile(resid, weights, tc.LowerQuantile)}
			ms.upper = &shiftedRegressor{base: point, offset: weightedQuantile(resid, weights, tc.UpperQuantile)}
		}
	}

	if !tc.PointOnly {
		ms.clf, err = trainClassifier(xBase, yBin, weights, engine, tc, logger)
		if err != nil {
			return nil, err
		}
	}
	return ms, nil
}

func trainClassifier(xBase [][]float64, yBin, weights []float64, engine string,
	tc TrainConfig, logger zerolog.Logger) (Classifier, error) {

	minority := 0
	for _, label := range yBin {
		if label >= 0.5 {
			minority++
		}
	}
	if len(yBin)-minority < minority {
		minority = len(yBin) - minority
	}

	rng := rand.New(rand.NewSource(tc.Seed + 3))
	k := 5
	if minority-1 < k {
		k = minority - 1
	}

	x, y := xBase, yBin
	w := weights
	if resX, resY, ok := oversampleMinority(xBase, yBin, k, rng); ok {
		x, y = resX, resY
		w = ones(len(resY))
		logger.Debug().Int("rows", len(resY)).Int("base_rows", len(yBin)).
			Msg("minority class oversampled")
	} else {
		// Minority too small for neighbor interpolation: plain class
		// weighting instead.
		w = balanceWeights(yBin, weights)
		logger.Warn().Int("minority", minority).
			Msg("minority class too small for oversampling, using class weights")
	}

	if engine == "gbrt" {
		params := GBRTParams{
			Iterations:   tc.GBRT.Iterations / 2,
			Depth:        tc.GBRT.Depth,
			LearningRate: tc.GBRT.LearningRate * 2,
			MinLeaf:      tc.GBRT.MinLeaf,
			Subsample:    tc.GBRT.Subsample,
			Seed:         tc.Seed + 4,
		}
		return fitGBRT(x, y, w, params, logisticLoss{}), nil
	}
	return fitLogistic(x, y, w, 500, 0.5, 1e-3), nil
}

// PredictPoint returns the point estimate in sortie space, non-negative.
func (m *ModelSet) PredictPoint(v *features.Vector) float64 {
	raw := math.Expm1(m.point.Predict(m.Scaler.TransformFull(v)))
	return math.Max(0, raw)
}

// PredictBand returns the raw quantile band in sortie space. Both bounds are
// floored at zero; ordering against the point estimate is enforced by the
// forecaster's band adjustment.
func (m *ModelSet) PredictBand(v *features.Vector) (lower, upper float64) {
	x := m.Scaler.TransformFull(v)
	lower = math.Max(0, math.Expm1(m.lower.Predict(x)))
	upper = math.Max(0, math.Expm1(m.upper.Predict(x)))
	return lower, upper
}

// PredictHighProb returns the high-activity probability.
func (m *ModelSet) PredictHighProb(v *features.Vector) float64 {
	return m.clf.PredictProba(m.Scaler.TransformBase(v))
}

// HasBand reports whether quantile models were trained (false in CV folds).
func (m *ModelSet) HasBand() bool { return m.lower != nil && m.upper != nil }

// recencyWeights computes exp(-lambda*daysAgo) per sample, normalized to sum
// to the sample count so older regime shifts matter less without changing
// the effective sample size.
func recencyWeights(samples []features.Sample, maxDate time.Time, lambda float64) []float64 {
	w := make([]float64, len(samples))
	total := 0.0
	for i := range samples {
		daysAgo := maxDate.Sub(samples[i].Vector.Date).Hours() / 24
		w[i] = math.Exp(-lambda * daysAgo)
		total += w[i]
	}
	if total > 0 {
		scale := float64(len(samples)) / total
		for i := range w {
			w[i] *= scale
		}
	}
	return w
}

// boostRecent appends factor-1 extra copies of the rows observed in the
// trailing weeks window, biasing the fits toward the current regime.
func boostRecent(samples []features.Sample, maxDate time.Time, b config.BoostConfig) []features.Sample {
	boundary := maxDate.AddDate(0, 0, -7*b.Weeks)
	out := append([]features.Sample{}, samples...)
	for copies := 1; copies < b.Factor; copies++ {
		for _, s := range samples {
			if !s.Vector.Date.Before(boundary) {
				out = append(out, s)
			}
		}
	}
	return out
}

func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

func balanceWeights(yBin, weights []float64) []float64 {
	pos, neg := 0.0, 0.0
	for _, label := range yBin {
		if label >= 0.5 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return weights
	}
	total := pos + neg
	out := make([]float64, len(weights))
	for i, label := range yBin {
		if label >= 0.5 {
			out[i] = weights[i] * total / (2 * pos)
		} else {
			out[i] = weights[i] * total / (2 * neg)
		}
	}
	return out
}
