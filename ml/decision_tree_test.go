package ml

import "testing"

func TestRegressionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	targets := []float64{10, 10, 50, 50}

	model := NewRegressionTree(2, 2, 0, 1)
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 10 {
		t.Fatalf("expected 10, got %f", value)
	}
	value, err = model.Predict([]float64{0.85, 0.85})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 50 {
		t.Fatalf("expected 50, got %f", value)
	}
}

func TestRegressionTreeDepthLimit(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}}
	targets := []float64{1, 2, 3, 4}

	model := NewRegressionTree(1, 2, 0, 1)
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(model.Nodes) != 3 {
		t.Fatalf("expected root plus two leaves, got %d nodes", len(model.Nodes))
	}
	low, _ := model.Predict([]float64{1})
	high, _ := model.Predict([]float64{4})
	if low != 1.5 || high != 3.5 {
		t.Fatalf("unexpected leaf means: %f %f", low, high)
	}
}

func TestRegressionTreeUntrained(t *testing.T) {
	model := NewRegressionTree(0, 2, 0, 1)
	if _, err := model.Predict([]float64{1}); err == nil {
		t.Fatal("expected error for untrained tree")
	}
}

func TestRegressionTreeRejectsMismatchedInput(t *testing.T) {
	model := NewRegressionTree(0, 2, 0, 1)
	if err := model.Fit([][]float64{{1, 2}, {3, 4}}, []float64{1, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := model.Predict([]float64{1}); err == nil {
		t.Fatal("expected schema mismatch")
	}
}
