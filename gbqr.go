// Package gbqr produces probabilistic influenza forecasts from a panel of
// surveillance sources using a bagged ensemble of gradient boosted quantile
// regressors. One run covers one reference date: sources are fetched as of
// that date, harmonized into a panel, transformed into a stabilized model
// space, expanded into a horizon-stacked training table, and forecast at
// every requested quantile level.
package gbqr

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/epiforecast/gbqr/ensemble"
	"github.com/epiforecast/gbqr/feature"
	"github.com/epiforecast/gbqr/models"
	"github.com/epiforecast/gbqr/output"
	"github.com/epiforecast/gbqr/panel"
	"github.com/epiforecast/gbqr/transform"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	ErrUndefinedFactors = errors.New("transform factors undefined for requested location")
	ErrNoForecastRows   = errors.New("no forecastable rows at the reference date")
)

// Pipeline runs the forecast end to end for one model configuration.
type Pipeline struct {
	opt        *Options
	harmonizer *panel.Harmonizer
	factory    models.Factory
	log        *zap.Logger
	clock      clockwork.Clock
}

// RunResult summarizes one completed forecast run.
type RunResult struct {
	RefDate    time.Time
	Seed       uint64
	Records    []output.Record
	OutputPath string
	Factors    transform.FactorSet
	Excluded   []transform.GroupKey
}

// New creates a new instance of a Pipeline using the provided options and
// source providers. If no options are provided a default is used.
func New(opt *Options, primary panel.SourceProvider, supplementary []panel.SourceProvider, log *zap.Logger) (*Pipeline, error) {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	if opt.Feature == nil {
		opt.Feature = feature.NewDefaultOptions()
	}
	if opt.Bagging == nil {
		opt.Bagging = ensemble.NewDefaultOptions()
	}
	if opt.GBT == nil {
		opt.GBT = models.NewDefaultGBTOptions()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Pipeline{
		opt: opt,
		harmonizer: &panel.Harmonizer{
			Primary:       primary,
			Supplementary: supplementary,
			DropSeasons:   opt.DropSeasons,
		},
		factory: models.GBTFactory(opt.GBT),
		log:     log,
		clock:   clockwork.NewRealClock(),
	}, nil
}

// WithClock replaces the pipeline clock. A zero reference date passed to Run
// resolves against this clock.
func (p *Pipeline) WithClock(clock clockwork.Clock) *Pipeline {
	p.clock = clock
	return p
}

// Run executes one forecast for the given reference date. A zero refDate
// uses the current date. The forecast table is written atomically under the
// configured output directory and a run snapshot is written next to it;
// nothing is persisted if any stage fails.
func (p *Pipeline) Run(ctx context.Context, refDate time.Time) (*RunResult, error) {
	if refDate.IsZero() {
		now := p.clock.Now().UTC()
		refDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	log := p.log.With(zap.Time("ref_date", refDate), zap.String("model", p.opt.Model))

	pnl, err := p.harmonizer.Build(ctx, refDate)
	if err != nil {
		return nil, fmt.Errorf("unable to harmonize sources, %w", err)
	}
	log.Info("harmonized panel",
		zap.Int("observations", len(pnl.Observations)),
		zap.Int("seasons", len(pnl.Seasons())),
	)

	factors, undefined, err := transform.ComputeFactors(pnl, p.opt.Transform)
	if err != nil {
		return nil, fmt.Errorf("unable to compute transform factors, %w", err)
	}
	pnl, err = p.dropUndefined(pnl, undefined, log)
	if err != nil {
		return nil, err
	}

	cs, err := transform.Apply(pnl, factors, p.opt.Transform)
	if err != nil {
		return nil, fmt.Errorf("unable to transform panel, %w", err)
	}

	table, err := feature.Build(pnl, cs, p.opt.Feature)
	if err != nil {
		return nil, fmt.Errorf("unable to build feature table, %w", err)
	}

	primary := p.harmonizer.Primary.Name()
	testDate := pnl.MaxWeekEndDate(primary)
	requested := make(map[string]struct{}, len(p.opt.Locations))
	for _, loc := range p.opt.Locations {
		requested[loc] = struct{}{}
	}
	testRows := table.TestRows(primary, testDate, requested)
	if len(testRows) == 0 {
		return nil, fmt.Errorf("source %s at %s, %w", primary, testDate.Format("2006-01-02"), ErrNoForecastRows)
	}

	qLevels := p.opt.sortedQuantiles()
	values, err := p.predict(ctx, table, testRows, qLevels, factors, refDate, log)
	if err != nil {
		return nil, err
	}

	records, err := output.BuildRecords(refDate, testRows, values, qLevels, &output.FormatOptions{
		DefaultTarget:   p.opt.DefaultTarget,
		TargetOverrides: p.opt.TargetOverrides,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to build forecast records, %w", err)
	}
	output.Reconcile(records)

	res := &RunResult{
		RefDate:  refDate,
		Seed:     ensemble.Seed(refDate),
		Records:  records,
		Factors:  factors,
		Excluded: undefined,
	}

	if p.opt.OutputDir != "" {
		dir := filepath.Join(p.opt.OutputDir, p.opt.Team+"-"+p.opt.Model)
		res.OutputPath = filepath.Join(dir, output.Filename(refDate, p.opt.Team, p.opt.Model))
		if err := output.WriteCSV(res.OutputPath, records); err != nil {
			return nil, err
		}
		if err := writeSnapshot(snapshotPath(res.OutputPath), p.opt, res); err != nil {
			return nil, err
		}
		log.Info("wrote forecast", zap.String("path", res.OutputPath), zap.Int("records", len(records)))
	}
	return res, nil
}

// dropUndefined applies the degenerate-factor policy. A requested primary
// location with undefined factors aborts the run since its forecast cannot
// be produced; undefined supplementary groups are excluded from the panel.
func (p *Pipeline) dropUndefined(pnl *panel.Panel, undefined []transform.GroupKey, log *zap.Logger) (*panel.Panel, error) {
	if len(undefined) == 0 {
		return pnl, nil
	}

	primary := p.harmonizer.Primary.Name()
	requested := make(map[string]struct{}, len(p.opt.Locations))
	for _, loc := range p.opt.Locations {
		requested[loc] = struct{}{}
	}

	excluded := make(map[transform.GroupKey]struct{}, len(undefined))
	for _, key := range undefined {
		if key.Source == primary {
			if _, ok := requested[key.Location]; ok {
				return nil, fmt.Errorf("%s/%s, %w", key.Source, key.Location, ErrUndefinedFactors)
			}
		}
		excluded[key] = struct{}{}
		log.Warn("excluding group with undefined transform factors",
			zap.String("source", key.Source),
			zap.String("location", key.Location),
		)
	}

	kept := make([]panel.Observation, 0, len(pnl.Observations))
	for _, o := range pnl.Observations {
		if _, drop := excluded[transform.GroupKey{Source: o.Source, Location: o.Location}]; drop {
			continue
		}
		kept = append(kept, o)
	}
	return &panel.Panel{Observations: kept}, nil
}

// predict runs the bagged ensemble and maps the predicted deltas back to the
// original measurement scale.
func (p *Pipeline) predict(
	ctx context.Context,
	table *feature.Table,
	testRows []feature.Row,
	qLevels []float64,
	factors transform.FactorSet,
	refDate time.Time,
	log *zap.Logger,
) ([][]float64, error) {
	values := make([][]float64, len(testRows))

	run := func(trainRows, rows []feature.Row, offset int) error {
		deltas, err := ensemble.TrainPredict(ctx, table, trainRows, rows, qLevels, p.factory, refDate, p.opt.Bagging)
		if err != nil {
			return fmt.Errorf("unable to train ensemble, %w", err)
		}
		for i, row := range rows {
			f, ok := factors[transform.GroupKey{Source: row.Source, Location: row.Location}]
			if !ok {
				return fmt.Errorf("%s/%s, %w", row.Source, row.Location, transform.ErrNoFactors)
			}
			values[offset+i] = make([]float64, len(qLevels))
			for q, delta := range deltas[i] {
				values[offset+i][q] = transform.InverseValue(row.CS+delta, f, p.opt.Transform)
			}
		}
		return nil
	}

	if !p.opt.PerLocation {
		trainRows := table.TrainRows("")
		log.Info("fitting pooled ensemble",
			zap.Int("train_rows", len(trainRows)),
			zap.Int("test_rows", len(testRows)),
			zap.Int("bags", p.opt.Bagging.NumBags),
		)
		if err := run(trainRows, testRows, 0); err != nil {
			return nil, err
		}
		return values, nil
	}

	offset := 0
	for offset < len(testRows) {
		loc := testRows[offset].Location
		end := offset
		for end < len(testRows) && testRows[end].Location == loc {
			end++
		}
		trainRows := table.TrainRows(loc)
		log.Info("fitting location ensemble",
			zap.String("location", loc),
			zap.Int("train_rows", len(trainRows)),
			zap.Int("bags", p.opt.Bagging.NumBags),
		)
		if err := run(trainRows, testRows[offset:end], offset); err != nil {
			return nil, fmt.Errorf("location %s, %w", loc, err)
		}
		offset = end
	}
	return values, nil
}
