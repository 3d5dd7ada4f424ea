package model

import (
	"math"
	"math/rand"
	"sort"
)

// oversampleMinority balances a binary training set by synthesizing minority
// rows: each synthetic row interpolates between a minority sample and one of
// its k nearest minority neighbors. Returns the inputs unchanged when the
// minority class is too small to support the neighbor count (the caller then
// falls back to class weighting).
func oversampleMinority(X [][]float64, y []float64, k int, rng *rand.Rand) ([][]float64, []float64, bool) {
	var minIdx, majIdx []int
	for i, label := range y {
		if label >= 0.5 {
			minIdx = append(minIdx, i)
		} else {
			majIdx = append(majIdx, i)
		}
	}
	minorityPositive := true
	if len(minIdx) > len(majIdx) {
		minIdx, majIdx = majIdx, minIdx
		minorityPositive = false
	}

	if k > len(minIdx)-1 {
		k = len(minIdx) - 1
	}
	if k < 1 {
		return X, y, false
	}

	need := len(majIdx) - len(minIdx)
	outX := append([][]float64{}, X...)
	outY := append([]float64{}, y...)

	minorityLabel := 1.0
	if !minorityPositive {
		minorityLabel = 0.0
	}

	neighbors := minorityNeighbors(X, minIdx, k)
	for s := 0; s < need; s++ {
		src := minIdx[s%len(minIdx)]
		nbr := neighbors[src][rng.Intn(k)]
		gap := rng.Float64()

		row := make([]float64, len(X[src]))
		for j := range row {
			row[j] = X[src][j] + gap*(X[nbr][j]-X[src][j])
		}
		outX = append(outX, row)
		outY = append(outY, minorityLabel)
	}
	return outX, outY, true
}

// minorityNeighbors finds, for each minority row, its k nearest minority
// rows by euclidean distance. Ties break on index order so the result is
// deterministic.
func minorityNeighbors(X [][]float64, minIdx []int, k int) map[int][]int {
	out := make(map[int][]int, len(minIdx))
	for _, i := range minIdx {
		type cand struct {
			idx  int
			dist float64
		}
		cands := make([]cand, 0, len(minIdx)-1)
		for _, j := range minIdx {
			if j == i {
				continue
			}
			cands = append(cands, cand{idx: j, dist: euclidean(X[i], X[j])})
		}
		sort.SliceStable(cands, func(a, b int) bool {
			if cands[a].dist != cands[b].dist {
				return cands[a].dist < cands[b].dist
			}
			return cands[a].idx < cands[b].idx
		})
		nbrs := make([]int, k)
		for n := 0; n < k; n++ {
			nbrs[n] = cands[n].idx
		}
		out[i] = nbrs
	}
	return out
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
