package models

import (
	"math/rand/v2"
	"sort"
)

type treeOptions struct {
	maxDepth        int
	minLeafSamples  int
	featureFraction float64
}

type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	leaf      bool
	leafIdx   int
}

// regressionTree is a depth-limited CART regression tree fit against stage
// gradients with squared error splits. Leaf values are assigned by the
// boosting stage after construction, so the tree only tracks which leaf each
// sample lands in.
type regressionTree struct {
	nodes   []treeNode
	numLeaf int
}

// fitTree grows a tree over the samples in idx. It returns the tree and the
// sample index groups per leaf for the caller's leaf value estimation.
func fitTree(x [][]float64, grad []float64, idx []int, opt treeOptions, rng *rand.Rand) (*regressionTree, [][]int) {
	t := &regressionTree{}
	var leaves [][]int
	t.grow(x, grad, idx, 0, opt, rng, &leaves)
	return t, leaves
}

func (t *regressionTree) grow(x [][]float64, grad []float64, idx []int, depth int, opt treeOptions, rng *rand.Rand, leaves *[][]int) int {
	nodeIdx := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{})

	if depth >= opt.maxDepth || len(idx) < 2*opt.minLeafSamples {
		t.makeLeaf(nodeIdx, idx, leaves)
		return nodeIdx
	}

	feat, threshold, ok := bestSplit(x, grad, idx, opt, rng)
	if !ok {
		t.makeLeaf(nodeIdx, idx, leaves)
		return nodeIdx
	}

	var leftIdx, rightIdx []int
	for _, i := range idx {
		if x[i][feat] <= threshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}

	left := t.grow(x, grad, leftIdx, depth+1, opt, rng, leaves)
	right := t.grow(x, grad, rightIdx, depth+1, opt, rng, leaves)
	t.nodes[nodeIdx] = treeNode{
		feature:   feat,
		threshold: threshold,
		left:      left,
		right:     right,
	}
	return nodeIdx
}

func (t *regressionTree) makeLeaf(nodeIdx int, idx []int, leaves *[][]int) {
	t.nodes[nodeIdx] = treeNode{leaf: true, leafIdx: t.numLeaf}
	t.numLeaf++
	*leaves = append(*leaves, idx)
}

// apply returns the leaf index the row lands in.
func (t *regressionTree) apply(row []float64) int {
	i := 0
	for !t.nodes[i].leaf {
		n := t.nodes[i]
		if row[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
	return t.nodes[i].leafIdx
}

// bestSplit finds the (feature, threshold) pair maximizing the squared error
// reduction over the samples in idx. Returns false when no split satisfies
// the minimum leaf size or every candidate feature is constant.
func bestSplit(x [][]float64, grad []float64, idx []int, opt treeOptions, rng *rand.Rand) (int, float64, bool) {
	numFeat := len(x[idx[0]])
	feats := candidateFeatures(numFeat, opt.featureFraction, rng)

	var (
		bestFeat      int
		bestThreshold float64
		bestGain      float64
		found         bool
	)

	order := make([]int, len(idx))
	for _, feat := range feats {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool {
			return x[order[a]][feat] < x[order[b]][feat]
		})

		var total float64
		for _, i := range order {
			total += grad[i]
		}

		var leftSum float64
		for pos := 0; pos < len(order)-1; pos++ {
			leftSum += grad[order[pos]]

			nLeft := pos + 1
			nRight := len(order) - nLeft
			if nLeft < opt.minLeafSamples || nRight < opt.minLeafSamples {
				continue
			}
			// skip ties so both children see distinct threshold sides
			if x[order[pos]][feat] == x[order[pos+1]][feat] {
				continue
			}

			rightSum := total - leftSum
			gain := leftSum*leftSum/float64(nLeft) + rightSum*rightSum/float64(nRight)
			if !found || gain > bestGain {
				found = true
				bestGain = gain
				bestFeat = feat
				bestThreshold = (x[order[pos]][feat] + x[order[pos+1]][feat]) / 2.0
			}
		}
	}
	return bestFeat, bestThreshold, found
}

// candidateFeatures returns the features considered for a split. With a
// feature fraction below 1 a random subset is drawn, which is where the
// model seed enters the fit.
func candidateFeatures(numFeat int, fraction float64, rng *rand.Rand) []int {
	if fraction >= 1.0 || fraction <= 0.0 {
		feats := make([]int, numFeat)
		for i := range feats {
			feats[i] = i
		}
		return feats
	}

	k := int(float64(numFeat) * fraction)
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(numFeat)
	feats := perm[:k]
	sort.Ints(feats)
	return feats
}
