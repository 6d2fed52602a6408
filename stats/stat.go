// Package stats holds the small set of summary statistics used across the
// forecasting pipeline.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrEmptySlice     = errors.New("empty value slice")
	ErrLenMismatch    = errors.New("predicted and actual have different lengths")
	ErrInvalidPercent = errors.New("percentile must be within [0, 1]")
)

// Percentile computes the p-th percentile of x using linear interpolation
// between the two nearest order statistics. The input slice is not modified.
func Percentile(x []float64, p float64) (float64, error) {
	if len(x) == 0 {
		return 0, ErrEmptySlice
	}
	if p < 0.0 || p > 1.0 {
		return 0, fmt.Errorf("got %f, %w", p, ErrInvalidPercent)
	}

	xCopy := make([]float64, len(x))
	copy(xCopy, x)
	sort.Float64s(xCopy)

	pos := p * float64(len(xCopy)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return xCopy[lo], nil
	}
	frac := pos - float64(lo)
	return xCopy[lo]*(1.0-frac) + xCopy[hi]*frac, nil
}

// Median computes the median of x. For an even number of samples this is the
// mean of the two middle order statistics.
func Median(x []float64) (float64, error) {
	return Percentile(x, 0.5)
}

// Mean computes the arithmetic mean of x skipping NaN entries. Returns NaN
// when no finite entries remain.
func Mean(x []float64) float64 {
	var sum float64
	var n int
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Pinball computes the mean quantile loss at level alpha between the
// predicted and actual values. A score of 0 means a perfect match.
func Pinball(predicted, actual []float64, alpha float64) (float64, error) {
	if len(predicted) != len(actual) {
		return 0, fmt.Errorf("expected %d, but got %d, %w", len(actual), len(predicted), ErrLenMismatch)
	}
	if len(actual) == 0 {
		return 0, ErrEmptySlice
	}

	loss := 0.0
	for i := 0; i < len(actual); i++ {
		diff := actual[i] - predicted[i]
		if diff >= 0 {
			loss += alpha * diff
		} else {
			loss += (alpha - 1.0) * diff
		}
	}
	return loss / float64(len(actual)), nil
}
