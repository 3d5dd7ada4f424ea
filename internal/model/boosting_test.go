package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regressionFixture(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		a, b := rng.Float64()*10, rng.Float64()*10
		X[i] = []float64{a, b}
		y[i] = 2*a - b
	}
	return X, y
}

func TestFitGBRT_LearnsLinearTarget(t *testing.T) {
	X, y := regressionFixture(300, 1)
	params := GBRTParams{Iterations: 200, Depth: 4, LearningRate: 0.1, MinLeaf: 2, Subsample: 1, Seed: 7}
	g := fitGBRT(X, y, ones(len(y)), params, squaredLoss{})

	sumAbs := 0.0
	for i := range X {
		sumAbs += math.Abs(g.Predict(X[i]) - y[i])
	}
	mae := sumAbs / float64(len(X))
	assert.Less(t, mae, 1.0, "boosted MAE %f too high on y = 2a - b", mae)
}

func TestFitGBRT_SeedDeterminism(t *testing.T) {
	X, y := regressionFixture(150, 2)
	params := GBRTParams{Iterations: 60, Depth: 3, LearningRate: 0.1, MinLeaf: 3, Subsample: 0.8, Seed: 42}

	a := fitGBRT(X, y, ones(len(y)), params, squaredLoss{})
	b := fitGBRT(X, y, ones(len(y)), params, squaredLoss{})
	for i := range X {
		assert.Equal(t, a.Predict(X[i]), b.Predict(X[i]), "row %d", i)
	}
}

func TestFitGBRT_QuantilesBracketTheNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 400
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		X[i] = []float64{rng.Float64()}
		y[i] = 10 + rng.NormFloat64()
	}
	w := ones(n)
	params := GBRTParams{Iterations: 80, Depth: 2, LearningRate: 0.05, MinLeaf: 5, Subsample: 1, Seed: 5}

	lower := fitGBRT(X, y, w, params, pinballLoss{alpha: 0.05})
	upper := fitGBRT(X, y, w, params, pinballLoss{alpha: 0.95})

	covered := 0
	for i := range X {
		lo, hi := lower.Predict(X[i]), upper.Predict(X[i])
		require.LessOrEqual(t, lo, hi, "row %d", i)
		if y[i] >= lo && y[i] <= hi {
			covered++
		}
	}
	// 90% nominal coverage; allow slack for the finite sample.
	assert.Greater(t, float64(covered)/float64(n), 0.75)
}

func TestFitGBRT_LogisticSeparatesClasses(t *testing.T) {
	n := 200
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		X[i] = []float64{float64(i)}
		if i >= n/2 {
			y[i] = 1
		}
	}
	params := GBRTParams{Iterations: 50, Depth: 2, LearningRate: 0.2, MinLeaf: 5, Subsample: 1, Seed: 9}
	clf := fitGBRT(X, y, ones(n), params, logisticLoss{})

	assert.Less(t, clf.PredictProba([]float64{10}), 0.2)
	assert.Greater(t, clf.PredictProba([]float64{190}), 0.8)
}

func TestWeightedQuantile(t *testing.T) {
	y := []float64{1, 2, 3, 4, 5}
	w := ones(5)
	assert.Equal(t, 1.0, weightedQuantile(y, w, 0.05))
	assert.Equal(t, 3.0, weightedQuantile(y, w, 0.5))
	assert.Equal(t, 5.0, weightedQuantile(y, w, 0.95))

	// A heavy weight drags the quantile toward its value.
	w = []float64{10, 1, 1, 1, 1}
	assert.Equal(t, 1.0, weightedQuantile(y, w, 0.5))
}

func TestWeightedMean(t *testing.T) {
	assert.Equal(t, 2.0, weightedMean([]float64{1, 3}, []float64{1, 1}))
	assert.Equal(t, 3.0, weightedMean([]float64{1, 3}, []float64{0, 5}))
	assert.Equal(t, 0.0, weightedMean([]float64{1, 3}, []float64{0, 0}))
}
