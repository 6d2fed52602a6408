// Package models is a collection of quantile regression fitting
// implementations to be used in the bagged forecasting ensemble.
package models

import (
	"gonum.org/v1/gonum/mat"
)

// Model fits a regression against a design matrix and predicts point
// estimates for new rows. Implementations targeting a quantile level
// minimize the pinball loss at that level.
type Model interface {
	Fit(x, y mat.Matrix) error
	Predict(x mat.Matrix) ([]float64, error)
	Score(x, y mat.Matrix) (float64, error)
}

// Factory builds one model instance for a (bag, quantile) fit task. The
// ensemble draws an independent seed per task and passes the quantile level
// the model should estimate.
type Factory func(seed uint64, alpha float64) Model
