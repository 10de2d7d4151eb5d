package ml

import (
	"math"
	"math/rand"
)

const defaultTestRatio = 0.2

// RandomSplit shuffles row indices with a fixed seed and holds out
// ceil(n*testRatio) of them for testing.
func RandomSplit(n int, testRatio float64, seed int64) (train, test []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = defaultTestRatio
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)

	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return indices[nTest:], indices[:nTest]
}

// ChronologicalSplit keeps row order: the first (1-testRatio) share trains,
// the remainder tests. Rows must already be sorted by time.
func ChronologicalSplit(n int, testRatio float64) (train, test []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = defaultTestRatio
	}
	split := int(float64(n) * (1 - testRatio))
	train = make([]int, 0, split)
	test = make([]int, 0, n-split)
	for i := 0; i < n; i++ {
		if i < split {
			train = append(train, i)
		} else {
			test = append(test, i)
		}
	}
	return train, test
}

// Subset selects the given rows.
func Subset(features [][]float64, targets []float64, indices []int) ([][]float64, []float64) {
	x := make([][]float64, len(indices))
	y := make([]float64, len(indices))
	for i, idx := range indices {
		x[i] = features[idx]
		y[i] = targets[idx]
	}
	return x, y
}
