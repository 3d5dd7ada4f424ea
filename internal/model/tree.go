package model

import "sort"

// regressionTree is a depth-limited CART regressor fit to weighted targets.
// Leaves carry an id so boosting losses can re-fit leaf values after growth.
type regressionTree struct {
	root      *treeNode
	numLeaves int
}

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	leaf      bool
	leafID    int
	value     float64
}

type treeParams struct {
	maxDepth int
	minLeaf  int
}

// growTree fits a tree on the given sample indices. Split search is exact:
// every feature is scanned in sorted order with weighted prefix sums.
func growTree(X [][]float64, y, w []float64, idx []int, p treeParams) *regressionTree {
	t := &regressionTree{}
	t.root = t.grow(X, y, w, idx, p, 0)
	return t
}

func (t *regressionTree) grow(X [][]float64, y, w []float64, idx []int, p treeParams, depth int) *treeNode {
	if depth >= p.maxDepth || len(idx) < 2*p.minLeaf {
		return t.makeLeaf(y, w, idx)
	}

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	totW, totWY, totWY2 := sums(y, w, idx)
	if totW <= 0 {
		return t.makeLeaf(y, w, idx)
	}
	parentSSE := totWY2 - totWY*totWY/totW

	order := make([]int, len(idx))
	numFeatures := len(X[idx[0]])
	for f := 0; f < numFeatures; f++ {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

		var leftW, leftWY, leftWY2 float64
		for i := 0; i < len(order)-1; i++ {
			s := order[i]
			leftW += w[s]
			leftWY += w[s] * y[s]
			leftWY2 += w[s] * y[s] * y[s]

			// No split between equal feature values.
			if X[order[i]][f] == X[order[i+1]][f] {
				continue
			}
			if i+1 < p.minLeaf || len(order)-(i+1) < p.minLeaf {
				continue
			}
			rightW := totW - leftW
			if leftW <= 0 || rightW <= 0 {
				continue
			}
			leftSSE := leftWY2 - leftWY*leftWY/leftW
			rightWY := totWY - leftWY
			rightWY2 := totWY2 - leftWY2
			rightSSE := rightWY2 - rightWY*rightWY/rightW

			gain := parentSSE - leftSSE - rightSSE
			if gain > bestGain+1e-12 {
				bestGain = gain
				bestFeature = f
				bestThreshold = (X[order[i]][f] + X[order[i+1]][f]) / 2
			}
		}
	}

	if bestFeature < 0 {
		return t.makeLeaf(y, w, idx)
	}

	var leftIdx, rightIdx []int
	for _, s := range idx {
		if X[s][bestFeature] <= bestThreshold {
			leftIdx = append(leftIdx, s)
		} else {
			rightIdx = append(rightIdx, s)
		}
	}
	if len(leftIdx) == 0 || len(rightIdx) == 0 {
		return t.makeLeaf(y, w, idx)
	}

	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      t.grow(X, y, w, leftIdx, p, depth+1),
		right:     t.grow(X, y, w, rightIdx, p, depth+1),
	}
}

func (t *regressionTree) makeLeaf(y, w []float64, idx []int) *treeNode {
	totW, totWY, _ := sums(y, w, idx)
	value := 0.0
	if totW > 0 {
		value = totWY / totW
	}
	n := &treeNode{leaf: true, leafID: t.numLeaves, value: value}
	t.numLeaves++
	return n
}

// predict returns the leaf value for x.
func (t *regressionTree) predict(x []float64) float64 {
	return t.route(x).value
}

// leafOf returns the leaf id x lands in.
func (t *regressionTree) leafOf(x []float64) int {
	return t.route(x).leafID
}

func (t *regressionTree) route(x []float64) *treeNode {
	node := t.root
	for !node.leaf {
		if x[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node
}

// setLeafValues overrides leaf outputs, keyed by leaf id.
func (t *regressionTree) setLeafValues(values map[int]float64) {
	var walk func(n *treeNode)
	walk = func(n *treeNode) {
		if n.leaf {
			if v, ok := values[n.leafID]; ok {
				n.value = v
			}
			return
		}
		walk(n.left)
		walk(n.right)
	}
	walk(t.root)
}

func sums(y, w []float64, idx []int) (totW, totWY, totWY2 float64) {
	for _, s := range idx {
		totW += w[s]
		totWY += w[s] * y[s]
		totWY2 += w[s] * y[s] * y[s]
	}
	return
}
