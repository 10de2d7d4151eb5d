package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// rcond is the relative cutoff below which singular values are treated as zero,
// which turns constant one-hot columns into zero coefficients instead of a
// factorization failure.
const rcond = 1e-12

// LinearRegression is ordinary least squares with an intercept.
type LinearRegression struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

func (m *LinearRegression) Type() string {
	return ModelTypeLinear
}

func (m *LinearRegression) NumFeatures() int {
	return len(m.Coefficients)
}

// Fit solves the centred least squares problem through a thin SVD, giving the
// minimum norm solution when columns are collinear.
func (m *LinearRegression) Fit(features [][]float64, targets []float64) error {
	width, err := validateTrainingSet(features, targets)
	if err != nil {
		return err
	}
	rows := len(features)

	xMean := make([]float64, width)
	yMean := 0.0
	for i, row := range features {
		for j, v := range row {
			xMean[j] += v
		}
		yMean += targets[i]
	}
	for j := range xMean {
		xMean[j] /= float64(rows)
	}
	yMean /= float64(rows)

	a := mat.NewDense(rows, width, nil)
	b := mat.NewDense(rows, 1, nil)
	for i, row := range features {
		for j, v := range row {
			a.Set(i, j, v-xMean[j])
		}
		b.Set(i, 0, targets[i]-yMean)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return errors.New("linear regression: svd factorization failed")
	}

	coefficients := make([]float64, width)
	if rank := svd.Rank(rcond); rank > 0 {
		var beta mat.Dense
		svd.SolveTo(&beta, b, rank)
		for j := range coefficients {
			coefficients[j] = beta.At(j, 0)
		}
	}

	intercept := yMean
	for j, c := range coefficients {
		intercept -= c * xMean[j]
	}

	m.Coefficients = coefficients
	m.Intercept = intercept
	return nil
}

func (m *LinearRegression) Predict(features []float64) (float64, error) {
	if len(m.Coefficients) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: got %d values, model expects %d", ErrSchemaMismatch, len(features), len(m.Coefficients))
	}
	y := m.Intercept
	for j, v := range features {
		y += m.Coefficients[j] * v
	}
	return y, nil
}
