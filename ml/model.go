package ml

import "errors"

// Regressor is a fitted-once, read-many point estimator. Implementations must be
// safe for concurrent Predict calls after Fit returns.
type Regressor interface {
	Fit(features [][]float64, targets []float64) error
	Predict(features []float64) (float64, error)
	NumFeatures() int
	Type() string
}

const (
	ModelTypeLinear       = "linear"
	ModelTypeRandomForest = "random_forest"
)

var (
	ErrNotTrained       = errors.New("model not trained")
	ErrUnknownModelType = errors.New("unsupported model type")
	ErrSchemaMismatch   = errors.New("feature vector does not match schema")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrInvalidValue     = errors.New("invalid feature value")
)

// Params configures NewRegressor. Zero values select defaults.
type Params struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Seed            int64
}

// NewRegressor returns an untrained regressor of the given type.
func NewRegressor(modelType string, params Params) (Regressor, error) {
	switch modelType {
	case ModelTypeLinear:
		return NewLinearRegression(), nil
	case ModelTypeRandomForest:
		return NewRandomForest(params), nil
	default:
		return nil, ErrUnknownModelType
	}
}

func validateTrainingSet(features [][]float64, targets []float64) (int, error) {
	if len(features) == 0 || len(targets) == 0 {
		return 0, errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return 0, errors.New("features and targets size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return 0, errors.New("no feature columns")
	}
	for _, row := range features {
		if len(row) != width {
			return 0, errors.New("ragged feature matrix")
		}
	}
	return width, nil
}
