package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepDataset() ([][]float64, []float64) {
	var features [][]float64
	var targets []float64
	for i := 0; i < 60; i++ {
		x := float64(i)
		flag := float64(i % 2)
		features = append(features, []float64{x, flag})
		y := 100.0
		if x >= 30 {
			y = 300
		}
		targets = append(targets, y+10*flag)
	}
	return features, targets
}

func TestRandomForestFitsStepFunction(t *testing.T) {
	features, targets := stepDataset()

	forest := NewRandomForest(Params{Trees: 25, Seed: 42})
	require.NoError(t, forest.Fit(features, targets))
	assert.Len(t, forest.Trees, 25)
	assert.Equal(t, 2, forest.NumFeatures())

	low, err := forest.Predict([]float64{5, 0})
	require.NoError(t, err)
	high, err := forest.Predict([]float64{55, 1})
	require.NoError(t, err)

	assert.InDelta(t, 100, low, 25)
	assert.InDelta(t, 310, high, 25)
}

func TestRandomForestIsReproducible(t *testing.T) {
	features, targets := stepDataset()

	a := NewRandomForest(Params{Trees: 10, Seed: 7})
	b := NewRandomForest(Params{Trees: 10, Seed: 7})
	require.NoError(t, a.Fit(features, targets))
	require.NoError(t, b.Fit(features, targets))

	predsA, err := PredictAll(a, features)
	require.NoError(t, err)
	predsB, err := PredictAll(b, features)
	require.NoError(t, err)
	assert.Equal(t, predsA, predsB)

	assert.Equal(t, R2(targets, predsA), R2(targets, predsB))
	assert.False(t, math.IsNaN(R2(targets, predsA)))
}

func TestRandomForestUntrained(t *testing.T) {
	forest := NewRandomForest(Params{})
	assert.Equal(t, 100, forest.NTrees)
	_, err := forest.Predict([]float64{1})
	assert.ErrorIs(t, err, ErrNotTrained)
}
