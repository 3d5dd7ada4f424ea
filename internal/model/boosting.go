package model

import (
	"math"
	"math/rand"
	"sort"
)

// Regressor predicts a value in model space (log1p sorties for the
// regressors in this package).
type Regressor interface {
	Predict(x []float64) float64
}

// Classifier predicts the positive-class probability.
type Classifier interface {
	PredictProba(x []float64) float64
}

// GBRTParams are the gradient boosting hyperparameters.
type GBRTParams struct {
	Iterations   int
	Depth        int
	LearningRate float64
	MinLeaf      int
	Subsample    float64
	Seed         int64
}

// gbrt is a gradient-boosted ensemble over regression trees. The loss
// implementation supplies gradients and per-leaf value refits, which covers
// squared error, pinball (quantile) and logistic deviance with one machine.
type gbrt struct {
	base  float64
	trees []*regressionTree
	lr    float64
}

func (g *gbrt) rawScore(x []float64) float64 {
	score := g.base
	for _, t := range g.trees {
		score += g.lr * t.predict(x)
	}
	return score
}

// Predict returns the raw additive score (regression output).
func (g *gbrt) Predict(x []float64) float64 { return g.rawScore(x) }

// PredictProba maps the raw score through the logistic link.
func (g *gbrt) PredictProba(x []float64) float64 { return sigmoid(g.rawScore(x)) }

type gbrtLoss interface {
	// baseScore is the optimal constant model.
	baseScore(y, w []float64) float64
	// gradient fills the negative gradient at the current scores.
	gradient(y, score, w, out []float64)
	// leafValue refits one leaf from the raw targets and current scores of
	// the samples routed to it.
	leafValue(y, score, w []float64, idx []int) float64
}

// fitGBRT trains a boosted ensemble with optional stochastic row subsampling.
// The rng seed fully determines the fit.
func fitGBRT(X [][]float64, y, w []float64, params GBRTParams, loss gbrtLoss) *gbrt {
	n := len(X)
	g := &gbrt{base: loss.baseScore(y, w), lr: params.LearningRate}

	score := make([]float64, n)
	for i := range score {
		score[i] = g.base
	}
	grad := make([]float64, n)
	rng := rand.New(rand.NewSource(params.Seed))

	tp := treeParams{maxDepth: params.Depth, minLeaf: params.MinLeaf}
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	for iter := 0; iter < params.Iterations; iter++ {
		loss.gradient(y, score, w, grad)

		idx := all
		if params.Subsample > 0 && params.Subsample < 1 {
			k := int(math.Ceil(params.Subsample * float64(n)))
			perm := rng.Perm(n)[:k]
			sort.Ints(perm)
			idx = perm
		}

		tree := growTree(X, grad, w, idx, tp)

		// Refit leaf values on the raw loss.
		leafMembers := make(map[int][]int)
		for _, s := range idx {
			leaf := tree.leafOf(X[s])
			leafMembers[leaf] = append(leafMembers[leaf], s)
		}
		values := make(map[int]float64, len(leafMembers))
		for leaf, members := range leafMembers {
			values[leaf] = loss.leafValue(y, score, w, members)
		}
		tree.setLeafValues(values)

		for i := 0; i < n; i++ {
			score[i] += g.lr * tree.predict(X[i])
		}
		g.trees = append(g.trees, tree)
	}
	return g
}

// squaredLoss: plain least squares.
type squaredLoss struct{}

func (squaredLoss) baseScore(y, w []float64) float64 { return weightedMean(y, w) }

func (squaredLoss) gradient(y, score, w, out []float64) {
	for i := range y {
		out[i] = y[i] - score[i]
	}
}

func (squaredLoss) leafValue(y, score, w []float64, idx []int) float64 {
	totW, totWR := 0.0, 0.0
	for _, s := range idx {
		totW += w[s]
		totWR += w[s] * (y[s] - score[s])
	}
	if totW == 0 {
		return 0
	}
	return totWR / totW
}

// pinballLoss trains a fixed-quantile regressor.
type pinballLoss struct{ alpha float64 }

func (l pinballLoss) baseScore(y, w []float64) float64 {
	return weightedQuantile(y, w, l.alpha)
}

func (l pinballLoss) gradient(y, score, w, out []float64) {
	for i := range y {
		if y[i] > score[i] {
			out[i] = l.alpha
		} else {
			out[i] = l.alpha - 1
		}
	}
}

func (l pinballLoss) leafValue(y, score, w []float64, idx []int) float64 {
	resid := make([]float64, len(idx))
	wts := make([]float64, len(idx))
	for i, s := range idx {
		resid[i] = y[s] - score[s]
		wts[i] = w[s]
	}
	return weightedQuantile(resid, wts, l.alpha)
}

// logisticLoss trains a binary classifier in log-odds space.
type logisticLoss struct{}

func (logisticLoss) baseScore(y, w []float64) float64 {
	p := weightedMean(y, w)
	p = math.Min(math.Max(p, 1e-6), 1-1e-6)
	return math.Log(p / (1 - p))
}

func (logisticLoss) gradient(y, score, w, out []float64) {
	for i := range y {
		out[i] = y[i] - sigmoid(score[i])
	}
}

// leafValue is a single Newton step on the deviance.
func (logisticLoss) leafValue(y, score, w []float64, idx []int) float64 {
	num, den := 0.0, 0.0
	for _, s := range idx {
		p := sigmoid(score[s])
		num += w[s] * (y[s] - p)
		den += w[s] * p * (1 - p)
	}
	if den < 1e-12 {
		return 0
	}
	v := num / den
	// Bound extreme steps on near-pure leaves.
	if v > 4 {
		v = 4
	} else if v < -4 {
		v = -4
	}
	return v
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func weightedMean(y, w []float64) float64 {
	totW, totWY := 0.0, 0.0
	for i := range y {
		totW += w[i]
		totWY += w[i] * y[i]
	}
	if totW == 0 {
		return 0
	}
	return totWY / totW
}

// weightedQuantile returns the smallest value whose cumulative weight share
// reaches alpha.
func weightedQuantile(y, w []float64, alpha float64) float64 {
	if len(y) == 0 {
		return 0
	}
	type pair struct{ v, w float64 }
	pairs := make([]pair, len(y))
	totW := 0.0
	for i := range y {
		pairs[i] = pair{y[i], w[i]}
		totW += w[i]
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].v < pairs[j].v })
	if totW <= 0 {
		return pairs[len(pairs)/2].v
	}
	cum := 0.0
	for _, p := range pairs {
		cum += p.w
		if cum >= alpha*totW {
			return p.v
		}
	}
	return pairs[len(pairs)-1].v
}
