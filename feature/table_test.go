package feature

import (
	"math"
	"testing"
	"time"

	"github.com/epiforecast/gbqr/epiweek"
	"github.com/epiforecast/gbqr/panel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// weeklyPanel builds one season of contiguous weekly observations for a
// single (source, location) group with cs values equal to the week index.
func weeklyPanel(source, location string, numWeeks int) (*panel.Panel, []float64) {
	start := time.Date(2022, time.October, 8, 0, 0, 0, 0, time.UTC) // season week 1
	pnl := &panel.Panel{}
	cs := make([]float64, 0, numWeeks)
	for i := 0; i < numWeeks; i++ {
		d := start.AddDate(0, 0, 7*i)
		pnl.Observations = append(pnl.Observations, panel.Observation{
			Location:    location,
			Source:      source,
			WeekEndDate: d,
			Season:      epiweek.Season(d),
			SeasonWeek:  epiweek.SeasonWeek(d),
			Value:       float64(i),
			Population:  100000,
		})
		cs = append(cs, float64(i))
	}
	return pnl, cs
}

func TestBuildTargets(t *testing.T) {
	pnl, cs := weeklyPanel("mchub", "nyc", 20)
	opt := &Options{MaxHorizon: 2}

	table, err := Build(pnl, cs, opt)
	require.Nil(t, err)

	byKey := make(map[[2]int]Row)
	for _, row := range table.Rows {
		byKey[[2]int{row.SeasonWeek, row.Horizon}] = row
	}

	// cs grows by 1 per week so the delta target equals the horizon
	row, ok := byKey[[2]int{10, 1}]
	require.True(t, ok)
	assert.InDelta(t, 1.0, row.Target, 1e-12)

	row, ok = byKey[[2]int{10, 2}]
	require.True(t, ok)
	assert.InDelta(t, 2.0, row.Target, 1e-12)

	// last week has no future observation at either horizon
	row, ok = byKey[[2]int{20, 1}]
	require.True(t, ok)
	assert.True(t, math.IsNaN(row.Target))

	// second to last week has a target at horizon 1 but not 2
	row, ok = byKey[[2]int{19, 2}]
	require.True(t, ok)
	assert.True(t, math.IsNaN(row.Target))
	row, ok = byKey[[2]int{19, 1}]
	require.True(t, ok)
	assert.InDelta(t, 1.0, row.Target, 1e-12)
}

func TestBuildInSeasonFilter(t *testing.T) {
	pnl, cs := weeklyPanel("mchub", "nyc", 20)
	table, err := Build(pnl, cs, &Options{MaxHorizon: 1})
	require.Nil(t, err)

	// weeks 1-4 are dropped by the [5, 45] window
	for _, row := range table.Rows {
		assert.GreaterOrEqual(t, row.SeasonWeek, 5)
		assert.LessOrEqual(t, row.SeasonWeek, 45)
	}
	// 20 weeks - 4 early weeks, one row per horizon
	assert.Len(t, table.Rows, 16)
}

func TestBuildHorizonStacking(t *testing.T) {
	pnl, cs := weeklyPanel("mchub", "nyc", 10)
	table, err := Build(pnl, cs, &Options{MaxHorizon: 4})
	require.Nil(t, err)

	// 6 in-season weeks stacked across 4 horizons
	assert.Len(t, table.Rows, 24)

	counts := make(map[int]int)
	for _, row := range table.Rows {
		counts[row.Horizon]++
	}
	for h := 1; h <= 4; h++ {
		assert.Equal(t, 6, counts[h])
	}
}

func TestBuildFeatureValues(t *testing.T) {
	pnl, cs := weeklyPanel("mchub", "nyc", 20)
	opt := &Options{MaxHorizon: 1, IncludeLevelFeats: true, IncludeHolidayFeat: true}
	table, err := Build(pnl, cs, opt)
	require.Nil(t, err)

	assert.Equal(
		t,
		[]string{"inc_trans_cs", "season_week", "log_pop", "horizon", "level_lag1", "level_lag2", "delta_lag1", "delta_lag2", "holiday_wk"},
		table.Names,
	)

	for _, row := range table.Rows {
		require.Len(t, row.Values, len(table.Names))
		assert.InDelta(t, row.CS, row.Values[0], 1e-12)
		assert.InDelta(t, float64(row.SeasonWeek), row.Values[1], 1e-12)
		assert.InDelta(t, math.Log(100000), row.Values[2], 1e-12)
		assert.InDelta(t, 1.0, row.Values[3], 1e-12)
		// cs rises by one each week so lag deltas are 1 once lags exist
		assert.InDelta(t, row.CS-1.0, row.Values[4], 1e-12)
		assert.InDelta(t, 1.0, row.Values[6], 1e-12)
	}
}

func TestBuildPopulationImputation(t *testing.T) {
	pnl, cs := weeklyPanel("mchub", "nyc", 10)
	suppl, supplCS := weeklyPanel("ilinet", "ilinet_nyc", 10)
	for i := range suppl.Observations {
		suppl.Observations[i].Population = 0
	}
	pnl.Observations = append(pnl.Observations, suppl.Observations...)
	cs = append(cs, supplCS...)

	table, err := Build(pnl, cs, &Options{MaxHorizon: 1})
	require.Nil(t, err)

	// locations without a crosswalk population take the panel median
	logPopIdx := 2
	for _, row := range table.Rows {
		if row.Source != "ilinet" {
			continue
		}
		assert.InDelta(t, math.Log(100000), row.Values[logPopIdx], 1e-12)
	}
}

func TestHolidayWeek(t *testing.T) {
	// week ending Saturday 2023-11-25 contains Thanksgiving (Nov 23)
	assert.Equal(t, 1.0, holidayWeek(time.Date(2023, time.November, 25, 0, 0, 0, 0, time.UTC)))
	// late October has no tracked holiday
	assert.Equal(t, 0.0, holidayWeek(time.Date(2023, time.October, 28, 0, 0, 0, 0, time.UTC)))
	// week ending 2023-12-30 contains Christmas
	assert.Equal(t, 1.0, holidayWeek(time.Date(2023, time.December, 30, 0, 0, 0, 0, time.UTC)))
}

func TestTableMatrix(t *testing.T) {
	pnl, cs := weeklyPanel("mchub", "nyc", 12)
	table, err := Build(pnl, cs, &Options{MaxHorizon: 1})
	require.Nil(t, err)

	train := table.TrainRows("")
	x := table.Matrix(train)
	y := table.TargetVector(train)

	m, n := x.Dims()
	assert.Equal(t, len(train), m)
	assert.Equal(t, len(table.Names), n)

	ym, yn := y.Dims()
	assert.Equal(t, len(train), ym)
	assert.Equal(t, 1, yn)

	for i, row := range train {
		assert.InDelta(t, row.Values[0], x.At(i, 0), 1e-12)
		assert.InDelta(t, row.Target, y.At(i, 0), 1e-12)
	}
}

func TestTestRows(t *testing.T) {
	pnl, cs := weeklyPanel("mchub", "nyc", 12)
	// add a supplementary source row at the same final date that must not
	// appear in the test set
	last := pnl.Observations[len(pnl.Observations)-1].WeekEndDate
	pnl.Observations = append(pnl.Observations, panel.Observation{
		Location:    "ilinet_New York",
		Source:      "ilinet",
		WeekEndDate: last,
		Season:      epiweek.Season(last),
		SeasonWeek:  epiweek.SeasonWeek(last),
	})
	cs = append(cs, 5.0)

	table, err := Build(pnl, cs, &Options{MaxHorizon: 2})
	require.Nil(t, err)

	locs := map[string]struct{}{"nyc": {}}
	testRows := table.TestRows("mchub", last, locs)
	require.Len(t, testRows, 2)
	for _, row := range testRows {
		assert.Equal(t, "nyc", row.Location)
		assert.Equal(t, "mchub", row.Source)
		assert.True(t, math.IsNaN(row.Target))
	}
}

func TestSeasons(t *testing.T) {
	rows := []Row{{Season: "2023/24"}, {Season: "2022/23"}, {Season: "2023/24"}}
	assert.Equal(t, []string{"2022/23", "2023/24"}, Seasons(rows))
}
