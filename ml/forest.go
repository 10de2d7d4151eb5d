package ml

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"
)

// RandomForest averages bootstrap-trained regression trees. Tree i is seeded
// with Seed+i, so a fixed seed reproduces the forest regardless of how the
// trees are scheduled.
type RandomForest struct {
	NTrees          int               `json:"n_trees"`
	MaxDepth        int               `json:"max_depth"`
	MinSamplesSplit int               `json:"min_samples_split"`
	MaxFeatures     int               `json:"max_features"`
	Seed            int64             `json:"seed"`
	Features        int               `json:"n_features"`
	Trees           []*RegressionTree `json:"trees"`
}

func NewRandomForest(params Params) *RandomForest {
	if params.Trees <= 0 {
		params.Trees = 100
	}
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	return &RandomForest{
		NTrees:          params.Trees,
		MaxDepth:        params.MaxDepth,
		MinSamplesSplit: params.MinSamplesSplit,
		MaxFeatures:     params.MaxFeatures,
		Seed:            params.Seed,
	}
}

func (rf *RandomForest) Type() string {
	return ModelTypeRandomForest
}

func (rf *RandomForest) NumFeatures() int {
	return rf.Features
}

func (rf *RandomForest) Fit(features [][]float64, targets []float64) error {
	width, err := validateTrainingSet(features, targets)
	if err != nil {
		return err
	}
	if rf.NTrees <= 0 {
		return fmt.Errorf("random forest: invalid tree count %d", rf.NTrees)
	}

	n := len(features)
	trees := make([]*RegressionTree, rf.NTrees)
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := runtime.GOMAXPROCS(0)
	if workers > rf.NTrees {
		workers = rf.NTrees
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				seed := rf.Seed + int64(i)
				rng := rand.New(rand.NewSource(seed))
				samples := make([]int, n)
				for j := range samples {
					samples[j] = rng.Intn(n)
				}
				tree := NewRegressionTree(rf.MaxDepth, rf.MinSamplesSplit, rf.MaxFeatures, seed)
				tree.fitSamples(features, targets, samples, width)
				trees[i] = tree
			}
		}()
	}
	for i := 0; i < rf.NTrees; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	rf.Trees = trees
	rf.Features = width
	return nil
}

func (rf *RandomForest) Predict(features []float64) (float64, error) {
	if len(rf.Trees) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != rf.Features {
		return 0, fmt.Errorf("%w: got %d values, model expects %d", ErrSchemaMismatch, len(features), rf.Features)
	}
	sum := 0.0
	for _, tree := range rf.Trees {
		v, err := tree.Predict(features)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / float64(len(rf.Trees)), nil
}
