package models

import (
	"fmt"
	"math/rand/v2"

	"github.com/epiforecast/gbqr/stats"
	"gonum.org/v1/gonum/mat"
)

// GBTOptions represents input options to fit a gradient boosted quantile
// regression tree model.
type GBTOptions struct {
	Alpha           float64
	NumTrees        int
	LearningRate    float64
	MaxDepth        int
	MinLeafSamples  int
	FeatureFraction float64
	Seed            uint64
}

// NewDefaultGBTOptions returns a default set of gradient boosting options
// estimating the median.
func NewDefaultGBTOptions() *GBTOptions {
	return &GBTOptions{
		Alpha:           0.5,
		NumTrees:        100,
		LearningRate:    0.1,
		MaxDepth:        3,
		MinLeafSamples:  20,
		FeatureFraction: 1.0,
	}
}

// GBT is a gradient boosted tree model minimizing the pinball loss at a
// fixed quantile level. Each boosting stage fits a regression tree to the
// loss gradient and assigns leaf values from the alpha-quantile of the
// residuals landing in the leaf.
type GBT struct {
	opt *GBTOptions

	init       float64
	trees      []*regressionTree
	leafValues [][]float64
	numFeat    int
	fitted     bool
}

// NewGBT creates a new instance of a GBT model using the provided options.
// If no options are provided a default is used.
func NewGBT(opt *GBTOptions) *GBT {
	if opt == nil {
		opt = NewDefaultGBTOptions()
	}
	return &GBT{opt: opt}
}

// Fit trains the boosted ensemble on the design matrix x against target y.
func (g *GBT) Fit(x, y mat.Matrix) error {
	if g.opt == nil {
		return ErrNoOptions
	}
	if g.opt.Alpha <= 0.0 || g.opt.Alpha >= 1.0 {
		return fmt.Errorf("got %f, %w", g.opt.Alpha, ErrInvalidAlpha)
	}
	if x == nil {
		return ErrNoTrainingMatrix
	}
	if y == nil {
		return ErrNoTargetMatrix
	}

	m, n := x.Dims()
	ym, _ := y.Dims()
	if ym != m {
		return fmt.Errorf("training data has %d rows and target has %d rows, %w", m, ym, ErrTargetLenMismatch)
	}
	if m == 0 {
		return ErrNoTrainingRows
	}

	rows := make([][]float64, m)
	target := make([]float64, m)
	for i := 0; i < m; i++ {
		rows[i] = mat.Row(nil, i, x)
		target[i] = y.At(i, 0)
	}

	init, err := stats.Percentile(target, g.opt.Alpha)
	if err != nil {
		return fmt.Errorf("unable to compute initial estimate, %w", err)
	}

	g.init = init
	g.numFeat = n
	g.trees = make([]*regressionTree, 0, g.opt.NumTrees)
	g.leafValues = make([][]float64, 0, g.opt.NumTrees)

	rng := rand.New(rand.NewPCG(g.opt.Seed, g.opt.Seed))
	treeOpt := treeOptions{
		maxDepth:        g.opt.MaxDepth,
		minLeafSamples:  g.opt.MinLeafSamples,
		featureFraction: g.opt.FeatureFraction,
	}

	current := make([]float64, m)
	for i := range current {
		current[i] = init
	}
	idx := make([]int, m)
	for i := range idx {
		idx[i] = i
	}

	grad := make([]float64, m)
	for stage := 0; stage < g.opt.NumTrees; stage++ {
		// negative gradient of the pinball loss
		for i := 0; i < m; i++ {
			if target[i] > current[i] {
				grad[i] = g.opt.Alpha
			} else {
				grad[i] = g.opt.Alpha - 1.0
			}
		}

		tree, leaves := fitTree(rows, grad, idx, treeOpt, rng)

		// leaf values come from the alpha-quantile of the residuals in
		// each leaf rather than the mean gradient
		values := make([]float64, len(leaves))
		for leafIdx, leafSamples := range leaves {
			residuals := make([]float64, 0, len(leafSamples))
			for _, i := range leafSamples {
				residuals = append(residuals, target[i]-current[i])
			}
			v, err := stats.Percentile(residuals, g.opt.Alpha)
			if err != nil {
				return fmt.Errorf("unable to compute leaf value, %w", err)
			}
			values[leafIdx] = v
		}

		for _, i := range idx {
			current[i] += g.opt.LearningRate * values[tree.apply(rows[i])]
		}

		g.trees = append(g.trees, tree)
		g.leafValues = append(g.leafValues, values)
	}

	g.fitted = true
	return nil
}

// Predict generates point estimates for each row of the design matrix.
func (g *GBT) Predict(x mat.Matrix) ([]float64, error) {
	if g.opt == nil {
		return nil, ErrNoOptions
	}
	if !g.fitted {
		return nil, ErrNotFitted
	}
	if x == nil {
		return nil, ErrNoDesignMatrix
	}

	m, n := x.Dims()
	if n != g.numFeat {
		return nil, fmt.Errorf("got %d features in design matrix, but expected %d, %w", n, g.numFeat, ErrFeatureLenMismatch)
	}

	out := make([]float64, m)
	for i := 0; i < m; i++ {
		row := mat.Row(nil, i, x)
		v := g.init
		for stage, tree := range g.trees {
			v += g.opt.LearningRate * g.leafValues[stage][tree.apply(row)]
		}
		out[i] = v
	}
	return out, nil
}

// Score returns the mean pinball loss of the model predictions at the
// model's quantile level. Lower is better with 0 being a perfect fit.
func (g *GBT) Score(x, y mat.Matrix) (float64, error) {
	if y == nil {
		return 0.0, ErrNoTargetMatrix
	}
	predicted, err := g.Predict(x)
	if err != nil {
		return 0.0, err
	}

	ym, _ := y.Dims()
	actual := make([]float64, ym)
	for i := 0; i < ym; i++ {
		actual[i] = y.At(i, 0)
	}
	return stats.Pinball(predicted, actual, g.opt.Alpha)
}

// GBTFactory adapts a base option set into a model factory for the ensemble.
// The per-task seed and quantile level override the base options.
func GBTFactory(base *GBTOptions) Factory {
	if base == nil {
		base = NewDefaultGBTOptions()
	}
	return func(seed uint64, alpha float64) Model {
		opt := *base
		opt.Seed = seed
		opt.Alpha = alpha
		return NewGBT(&opt)
	}
}
