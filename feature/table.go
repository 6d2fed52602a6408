// Package feature expands a transformed panel into the horizon-stacked
// supervised learning table consumed by the quantile ensemble. Each base
// observation produces one row per forecast horizon carrying lag and context
// features along with a delta target relative to the future value.
package feature

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/epiforecast/gbqr/panel"
	"github.com/epiforecast/gbqr/stats"
	"gonum.org/v1/gonum/mat"
)

// In-season window applied to the stacked table after target construction.
// Wider than the [10, 45] window used for transform factor estimation; the
// two windows are intentionally different.
const (
	trainSeasonWeekMin = 5
	trainSeasonWeekMax = 45
)

var (
	ErrInvalidHorizon = errors.New("max horizon must be at least 1")
	ErrLenMismatch    = errors.New("transformed values length does not match panel")
	ErrEmptyTable     = errors.New("no rows in feature table")
)

// Row is one (location, source, date, horizon) record of the stacked table.
// Target is the delta between the transformed-scaled-centered value at
// date+horizon weeks and the value at date; NaN when the future value is not
// yet observed.
type Row struct {
	Location    string
	Source      string
	WeekEndDate time.Time
	Season      string
	SeasonWeek  int
	Horizon     int
	Population  int64
	CS          float64
	Values      []float64 // aligned with Table.Names
	Target      float64
}

// Table is the horizon-stacked feature/target table. Names fixes the column
// order of every row's feature vector.
type Table struct {
	Names []string
	Rows  []Row
}

// Options configures feature construction.
type Options struct {
	MaxHorizon          int
	IncludeLevelFeats   bool
	IncludeHolidayFeat  bool
	IncludeLocationFeat bool
}

// NewDefaultOptions returns the feature options used by the standard model.
func NewDefaultOptions() *Options {
	return &Options{
		MaxHorizon:         4,
		IncludeLevelFeats:  true,
		IncludeHolidayFeat: true,
	}
}

// Build expands the panel into the stacked table. cs carries the
// transformed-scaled-centered value per panel observation in panel order.
// Rows outside the in-season training window are dropped after targets are
// constructed.
func Build(pnl *panel.Panel, cs []float64, opt *Options) (*Table, error) {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if opt.MaxHorizon < 1 {
		return nil, ErrInvalidHorizon
	}
	if len(cs) != len(pnl.Observations) {
		return nil, fmt.Errorf("got %d values for %d observations, %w", len(cs), len(pnl.Observations), ErrLenMismatch)
	}

	names := featureNames(opt)

	type group struct {
		idx    []int
		byDate map[time.Time]int
	}
	groups := make(map[panelGroup]*group)
	var order []panelGroup
	for i, o := range pnl.Observations {
		key := panelGroup{source: o.Source, location: o.Location}
		g, ok := groups[key]
		if !ok {
			g = &group{byDate: make(map[time.Time]int)}
			groups[key] = g
			order = append(order, key)
		}
		g.idx = append(g.idx, i)
		g.byDate[o.WeekEndDate] = i
	}

	var locIndex map[string]float64
	if opt.IncludeLocationFeat {
		locIndex = locationIndex(order)
	}

	// supplementary-only locations can be missing from the crosswalk; their
	// log-population feature falls back to the panel median population
	medianPop := medianPopulation(pnl.Observations)

	t := &Table{Names: names}
	for _, key := range order {
		g := groups[key]
		sort.Slice(g.idx, func(a, b int) bool {
			return pnl.Observations[g.idx[a]].WeekEndDate.Before(pnl.Observations[g.idx[b]].WeekEndDate)
		})

		for pos, i := range g.idx {
			o := pnl.Observations[i]
			for h := 1; h <= opt.MaxHorizon; h++ {
				target := math.NaN()
				if j, ok := g.byDate[o.WeekEndDate.AddDate(0, 0, 7*h)]; ok {
					target = cs[j] - cs[i]
				}

				row := Row{
					Location:    o.Location,
					Source:      o.Source,
					WeekEndDate: o.WeekEndDate,
					Season:      o.Season,
					SeasonWeek:  o.SeasonWeek,
					Horizon:     h,
					Population:  o.Population,
					CS:          cs[i],
					Target:      target,
				}
				row.Values = buildValues(o, cs, g.idx, pos, h, opt, locIndex, medianPop)
				t.Rows = append(t.Rows, row)
			}
		}
	}

	kept := t.Rows[:0]
	for _, row := range t.Rows {
		if row.SeasonWeek < trainSeasonWeekMin || row.SeasonWeek > trainSeasonWeekMax {
			continue
		}
		kept = append(kept, row)
	}
	t.Rows = kept

	if len(t.Rows) == 0 {
		return nil, ErrEmptyTable
	}
	return t, nil
}

type panelGroup struct {
	source   string
	location string
}

func featureNames(opt *Options) []string {
	names := []string{"inc_trans_cs", "season_week", "log_pop", "horizon"}
	if opt.IncludeLevelFeats {
		names = append(names, "level_lag1", "level_lag2", "delta_lag1", "delta_lag2")
	}
	if opt.IncludeHolidayFeat {
		names = append(names, "holiday_wk")
	}
	if opt.IncludeLocationFeat {
		names = append(names, "loc_index")
	}
	return names
}

func buildValues(o panel.Observation, cs []float64, groupIdx []int, pos, horizon int, opt *Options, locIndex map[string]float64, medianPop float64) []float64 {
	pop := float64(o.Population)
	if pop <= 0.0 {
		pop = medianPop
	}
	logPop := 0.0
	if pop > 0.0 {
		logPop = math.Log(pop)
	}

	values := []float64{cs[groupIdx[pos]], float64(o.SeasonWeek), logPop, float64(horizon)}

	if opt.IncludeLevelFeats {
		curr := cs[groupIdx[pos]]
		lag1, lag2 := curr, curr
		if pos >= 1 {
			lag1 = cs[groupIdx[pos-1]]
		}
		if pos >= 2 {
			lag2 = cs[groupIdx[pos-2]]
		} else {
			lag2 = lag1
		}
		values = append(values, lag1, lag2, curr-lag1, lag1-lag2)
	}
	if opt.IncludeHolidayFeat {
		values = append(values, holidayWeek(o.WeekEndDate))
	}
	if opt.IncludeLocationFeat {
		values = append(values, locIndex[o.Location])
	}
	return values
}

func medianPopulation(obs []panel.Observation) float64 {
	var pops []float64
	for _, o := range obs {
		if o.Population > 0 {
			pops = append(pops, float64(o.Population))
		}
	}
	med, err := stats.Median(pops)
	if err != nil {
		return 0.0
	}
	return med
}

func locationIndex(order []panelGroup) map[string]float64 {
	locs := make([]string, 0, len(order))
	seen := make(map[string]struct{})
	for _, key := range order {
		if _, exists := seen[key.location]; exists {
			continue
		}
		seen[key.location] = struct{}{}
		locs = append(locs, key.location)
	}
	sort.Strings(locs)

	index := make(map[string]float64, len(locs))
	for i, loc := range locs {
		index[loc] = float64(i)
	}
	return index
}

// Matrix returns the feature values of the given rows as a dense design
// matrix with one row per table row and one column per feature.
func (t *Table) Matrix(rows []Row) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	m := len(rows)
	n := len(t.Names)
	data := make([]float64, m*n)
	for i, row := range rows {
		copy(data[i*n:(i+1)*n], row.Values)
	}
	return mat.NewDense(m, n, data)
}

// TargetVector returns the delta targets of the given rows as an m x 1
// matrix.
func (t *Table) TargetVector(rows []Row) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	data := make([]float64, len(rows))
	for i, row := range rows {
		data[i] = row.Target
	}
	return mat.NewDense(len(rows), 1, data)
}

// TrainRows returns rows with an observed target, optionally restricted to a
// single location.
func (t *Table) TrainRows(location string) []Row {
	var rows []Row
	for _, row := range t.Rows {
		if math.IsNaN(row.Target) {
			continue
		}
		if location != "" && row.Location != location {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// TestRows returns rows of the given source at the given week-ending date
// whose location is in the requested set. These are the rows forecasts are
// issued for; their targets are typically unobserved.
func (t *Table) TestRows(source string, weekEnd time.Time, locations map[string]struct{}) []Row {
	var rows []Row
	for _, row := range t.Rows {
		if row.Source != source || !row.WeekEndDate.Equal(weekEnd) {
			continue
		}
		if _, ok := locations[row.Location]; !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// Seasons returns the sorted distinct seasons present in the given rows.
func Seasons(rows []Row) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		seen[row.Season] = struct{}{}
	}
	seasons := make([]string, 0, len(seen))
	for s := range seen {
		seasons = append(seasons, s)
	}
	sort.Strings(seasons)
	return seasons
}
