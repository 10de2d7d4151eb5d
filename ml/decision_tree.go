package ml

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// RegressionTree is a CART tree minimising squared error. Nodes are stored in a
// flat slice, children referenced by absolute index.
type RegressionTree struct {
	Nodes    []TreeNode `json:"nodes"`
	Features int        `json:"n_features"`

	maxDepth        int
	minSamplesSplit int
	maxFeatures     int
	rng             *rand.Rand
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

// NewRegressionTree creates an untrained tree. maxDepth <= 0 grows until leaves
// are pure; maxFeatures <= 0 considers every feature at each split.
func NewRegressionTree(maxDepth, minSamplesSplit, maxFeatures int, seed int64) *RegressionTree {
	if minSamplesSplit < 2 {
		minSamplesSplit = 2
	}
	return &RegressionTree{
		maxDepth:        maxDepth,
		minSamplesSplit: minSamplesSplit,
		maxFeatures:     maxFeatures,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

func (dt *RegressionTree) Type() string {
	return "regression_tree"
}

func (dt *RegressionTree) NumFeatures() int {
	return dt.Features
}

func (dt *RegressionTree) Fit(features [][]float64, targets []float64) error {
	width, err := validateTrainingSet(features, targets)
	if err != nil {
		return err
	}
	samples := make([]int, len(features))
	for i := range samples {
		samples[i] = i
	}
	dt.fitSamples(features, targets, samples, width)
	return nil
}

// fitSamples grows the tree on the given row indices, which may repeat.
func (dt *RegressionTree) fitSamples(features [][]float64, targets []float64, samples []int, width int) {
	if dt.rng == nil {
		dt.rng = rand.New(rand.NewSource(0))
	}
	if dt.minSamplesSplit < 2 {
		dt.minSamplesSplit = 2
	}
	dt.Features = width
	dt.Nodes = dt.Nodes[:0]
	dt.buildNode(features, targets, samples, 0)
}

func (dt *RegressionTree) Predict(features []float64) (float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != dt.Features {
		return 0, fmt.Errorf("%w: got %d values, model expects %d", ErrSchemaMismatch, len(features), dt.Features)
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (dt *RegressionTree) buildNode(features [][]float64, targets []float64, samples []int, depth int) int {
	idx := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      meanOf(targets, samples),
		IsLeaf:     true,
	})

	if dt.maxDepth > 0 && depth >= dt.maxDepth {
		return idx
	}
	if len(samples) < dt.minSamplesSplit || isConstant(targets, samples) {
		return idx
	}

	featureIdx, threshold, ok := dt.findBestSplit(features, targets, samples)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(samples))
	right := make([]int, 0, len(samples))
	for _, s := range samples {
		if features[s][featureIdx] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	leftIdx := dt.buildNode(features, targets, left, depth+1)
	rightIdx := dt.buildNode(features, targets, right, depth+1)

	node := &dt.Nodes[idx]
	node.FeatureIdx = featureIdx
	node.Threshold = threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.IsLeaf = false
	return idx
}

// findBestSplit sweeps every candidate feature in sorted order and keeps the
// threshold with the lowest summed squared error of both children.
func (dt *RegressionTree) findBestSplit(features [][]float64, targets []float64, samples []int) (int, float64, bool) {
	candidates := dt.candidateFeatures(len(features[0]))

	totalSum, totalSq := 0.0, 0.0
	for _, s := range samples {
		totalSum += targets[s]
		totalSq += targets[s] * targets[s]
	}
	n := float64(len(samples))
	bestScore := totalSq - totalSum*totalSum/n
	bestFeature := -1
	bestThreshold := 0.0

	order := make([]int, len(samples))
	for _, featureIdx := range candidates {
		copy(order, samples)
		sort.Slice(order, func(a, b int) bool {
			return features[order[a]][featureIdx] < features[order[b]][featureIdx]
		})

		leftSum, leftSq := 0.0, 0.0
		for i := 0; i < len(order)-1; i++ {
			y := targets[order[i]]
			leftSum += y
			leftSq += y * y

			current := features[order[i]][featureIdx]
			next := features[order[i+1]][featureIdx]
			if current == next {
				continue
			}

			nl := float64(i + 1)
			nr := n - nl
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			score := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if score < bestScore-1e-12 {
				bestScore = score
				bestFeature = featureIdx
				bestThreshold = current + (next-current)/2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (dt *RegressionTree) candidateFeatures(width int) []int {
	if dt.maxFeatures <= 0 || dt.maxFeatures >= width {
		all := make([]int, width)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := dt.rng.Perm(width)
	picked := perm[:dt.maxFeatures]
	sort.Ints(picked)
	return picked
}

func meanOf(targets []float64, samples []int) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += targets[s]
	}
	return sum / float64(len(samples))
}

func isConstant(targets []float64, samples []int) bool {
	if len(samples) == 0 {
		return true
	}
	first := targets[samples[0]]
	for _, s := range samples[1:] {
		if targets[s] != first {
			return false
		}
	}
	return true
}
