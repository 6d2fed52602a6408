package gbqr

import (
	"errors"
	"fmt"
	"sort"

	"github.com/epiforecast/gbqr/ensemble"
	"github.com/epiforecast/gbqr/feature"
	"github.com/epiforecast/gbqr/models"
	"github.com/epiforecast/gbqr/transform"
)

var (
	ErrNoLocations      = errors.New("no locations requested")
	ErrNoQuantileLevels = errors.New("no quantile levels requested")
	ErrInvalidQuantile  = errors.New("quantile level must be within (0, 1)")
	ErrNoTeam           = errors.New("no team name set")
	ErrNoModelName      = errors.New("no model name set")
	ErrNoDefaultTarget  = errors.New("no default target name set")
)

// DefaultQuantileLevels are the levels submitted by the standard model.
var DefaultQuantileLevels = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.975}

// DefaultDropSeasons are seasons excluded from training because pandemic-era
// surveillance dynamics are unrepresentative.
var DefaultDropSeasons = []string{"2020/21", "2021/22"}

// Options represents input options to run the forecast pipeline.
type Options struct {
	Team      string
	Model     string
	OutputDir string

	// Locations are the primary-source location slugs forecasts are
	// issued for.
	Locations []string

	// DefaultTarget names the forecasted indicator; TargetOverrides maps a
	// location to an alternate indicator name.
	DefaultTarget   string
	TargetOverrides map[string]string

	Transform      transform.PowerTransform
	QuantileLevels []float64
	DropSeasons    []string

	// PerLocation fits a separate ensemble per requested location instead
	// of pooling all locations into one training set.
	PerLocation bool

	Feature *feature.Options
	Bagging *ensemble.Options
	GBT     *models.GBTOptions
}

// NewDefaultOptions returns the standard pipeline configuration.
func NewDefaultOptions() *Options {
	return &Options{
		Team:            "epiforecast",
		Model:           "gbqr",
		OutputDir:       "output",
		DefaultTarget:   "Flu ED visits pct",
		TargetOverrides: map[string]string{"nyc": "ILI ED visits pct"},
		Transform:       transform.FourthRoot,
		QuantileLevels:  append([]float64(nil), DefaultQuantileLevels...),
		DropSeasons:     append([]string(nil), DefaultDropSeasons...),
		Feature:         feature.NewDefaultOptions(),
		Bagging:         ensemble.NewDefaultOptions(),
		GBT:             models.NewDefaultGBTOptions(),
	}
}

// Validate reports configuration errors before any data is fetched.
func (o *Options) Validate() error {
	if o.Team == "" {
		return ErrNoTeam
	}
	if o.Model == "" {
		return ErrNoModelName
	}
	if o.DefaultTarget == "" {
		return ErrNoDefaultTarget
	}
	if len(o.Locations) == 0 {
		return ErrNoLocations
	}
	if err := o.Transform.Validate(); err != nil {
		return err
	}
	if len(o.QuantileLevels) == 0 {
		return ErrNoQuantileLevels
	}
	for _, q := range o.QuantileLevels {
		if q <= 0.0 || q >= 1.0 {
			return fmt.Errorf("got %f, %w", q, ErrInvalidQuantile)
		}
	}
	if o.Bagging != nil {
		if o.Bagging.NumBags < 1 {
			return ensemble.ErrInvalidBags
		}
		if o.Bagging.BagFraction <= 0.0 || o.Bagging.BagFraction > 1.0 {
			return fmt.Errorf("got %f, %w", o.Bagging.BagFraction, ensemble.ErrInvalidBagFrac)
		}
	}
	return nil
}

// sortedQuantiles returns the configured levels in ascending order without
// mutating the configuration.
func (o *Options) sortedQuantiles() []float64 {
	q := append([]float64(nil), o.QuantileLevels...)
	sort.Float64s(q)
	return q
}
