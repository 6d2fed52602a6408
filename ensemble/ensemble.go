// Package ensemble trains independent quantile regressors across bootstrap
// resamples of training seasons and aggregates their predictions. Bags
// resample whole seasons rather than individual rows to respect the serial
// correlation within a season.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/epiforecast/gbqr/feature"
	"github.com/epiforecast/gbqr/models"
	"github.com/epiforecast/gbqr/stats"
	"golang.org/x/sync/errgroup"
)

const maxTaskSeed = 100_000_000

var (
	ErrNoTrainingRows    = errors.New("no training rows")
	ErrNoTestRows        = errors.New("no test rows")
	ErrNoTrainingSeasons = errors.New("no training seasons to sample")
	ErrNoQuantileLevels  = errors.New("no quantile levels requested")
	ErrInvalidBags       = errors.New("number of bags must be at least 1")
	ErrInvalidBagFrac    = errors.New("bag fraction must be within (0, 1]")
)

// Options configures the bagging procedure.
type Options struct {
	NumBags     int
	BagFraction float64
	Workers     int // 0 means GOMAXPROCS
}

// NewDefaultOptions returns the bagging options used by the standard model.
func NewDefaultOptions() *Options {
	return &Options{
		NumBags:     100,
		BagFraction: 0.7,
	}
}

// Seed derives the run-level pseudo-random seed from the reference date so
// reruns for the same date are reproducible while different dates decorrelate.
func Seed(refDate time.Time) uint64 {
	d := refDate.UTC()
	return uint64(time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Unix())
}

// TrainPredict fits one regressor per (bag, quantile) task and returns the
// per-quantile point estimates for every test row, aggregated across bags by
// the median. The returned slice is indexed [test row][quantile].
func TrainPredict(
	ctx context.Context,
	table *feature.Table,
	trainRows, testRows []feature.Row,
	qLevels []float64,
	factory models.Factory,
	refDate time.Time,
	opt *Options,
) ([][]float64, error) {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if opt.NumBags < 1 {
		return nil, ErrInvalidBags
	}
	if opt.BagFraction <= 0.0 || opt.BagFraction > 1.0 {
		return nil, fmt.Errorf("got %f, %w", opt.BagFraction, ErrInvalidBagFrac)
	}
	if len(qLevels) == 0 {
		return nil, ErrNoQuantileLevels
	}
	if len(trainRows) == 0 {
		return nil, ErrNoTrainingRows
	}
	if len(testRows) == 0 {
		return nil, ErrNoTestRows
	}

	seasons := feature.Seasons(trainRows)
	numSampled := int(float64(len(seasons)) * opt.BagFraction)
	if numSampled < 1 {
		numSampled = 1
	}

	seed := Seed(refDate)
	rng := rand.New(rand.NewPCG(seed, seed))

	// all randomness is drawn up front in a fixed order so the fit tasks
	// can run concurrently without affecting reproducibility
	taskSeeds := make([][]uint64, opt.NumBags)
	for b := range taskSeeds {
		taskSeeds[b] = make([]uint64, len(qLevels))
		for q := range taskSeeds[b] {
			taskSeeds[b][q] = uint64(rng.IntN(maxTaskSeed))
		}
	}

	bagRows := make([][]feature.Row, opt.NumBags)
	for b := range bagRows {
		perm := rng.Perm(len(seasons))
		sampled := make(map[string]struct{}, numSampled)
		for _, i := range perm[:numSampled] {
			sampled[seasons[i]] = struct{}{}
		}
		for _, row := range trainRows {
			if _, ok := sampled[row.Season]; ok {
				bagRows[b] = append(bagRows[b], row)
			}
		}
	}

	xTest := table.Matrix(testRows)
	preds := make([][][]float64, opt.NumBags)
	for b := range preds {
		preds[b] = make([][]float64, len(qLevels))
	}

	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < opt.NumBags; b++ {
		for q := 0; q < len(qLevels); q++ {
			b, q := b, q
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				rows := bagRows[b]
				if len(rows) == 0 {
					return fmt.Errorf("bag %d, %w", b, ErrNoTrainingRows)
				}

				model := factory(taskSeeds[b][q], qLevels[q])
				if err := model.Fit(table.Matrix(rows), table.TargetVector(rows)); err != nil {
					return fmt.Errorf("unable to fit bag %d quantile %f, %w", b, qLevels[q], err)
				}
				res, err := model.Predict(xTest)
				if err != nil {
					return fmt.Errorf("unable to predict bag %d quantile %f, %w", b, qLevels[q], err)
				}
				preds[b][q] = res
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// deterministic reduction independent of task completion order
	out := make([][]float64, len(testRows))
	bagVals := make([]float64, opt.NumBags)
	for i := range testRows {
		out[i] = make([]float64, len(qLevels))
		for q := range qLevels {
			for b := 0; b < opt.NumBags; b++ {
				bagVals[b] = preds[b][q][i]
			}
			med, err := stats.Median(bagVals)
			if err != nil {
				return nil, fmt.Errorf("unable to aggregate bag predictions, %w", err)
			}
			out[i][q] = med
		}
	}
	return out, nil
}
