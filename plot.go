package gbqr

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/epiforecast/gbqr/output"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// FanChart generates an echart line chart for one location plotting the
// forecast value per quantile level across target end dates.
func FanChart(location string, records []output.Record) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: fmt.Sprintf("Forecast %s", location),
			},
		),
	)

	dateSet := make(map[time.Time]struct{})
	levelSet := make(map[float64]struct{})
	values := make(map[float64]map[time.Time]float64)
	for _, r := range records {
		if r.Location != location {
			continue
		}
		dateSet[r.TargetEndDate] = struct{}{}
		levelSet[r.Quantile] = struct{}{}
		if values[r.Quantile] == nil {
			values[r.Quantile] = make(map[time.Time]float64)
		}
		values[r.Quantile][r.TargetEndDate] = r.Value
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(a, b int) bool { return dates[a].Before(dates[b]) })

	levels := make([]float64, 0, len(levelSet))
	for q := range levelSet {
		levels = append(levels, q)
	}
	sort.Float64s(levels)

	axis := make([]string, 0, len(dates))
	for _, d := range dates {
		axis = append(axis, d.Format("2006-01-02"))
	}
	line = line.SetXAxis(axis)
	for _, q := range levels {
		lineData := make([]opts.LineData, 0, len(dates))
		for _, d := range dates {
			lineData = append(lineData, opts.LineData{Value: values[q][d]})
		}
		line = line.AddSeries(output.Label(q), lineData)
	}
	return line
}

// PlotForecast renders one fan chart per forecasted location to an html
// page at the given path.
func (r *RunResult) PlotForecast(path string) error {
	locSet := make(map[string]struct{})
	for _, rec := range r.Records {
		locSet[rec.Location] = struct{}{}
	}
	locations := make([]string, 0, len(locSet))
	for loc := range locSet {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	page := components.NewPage()
	for _, loc := range locations {
		page.AddCharts(FanChart(loc, r.Records))
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create plot file, %w", err)
	}
	defer file.Close()
	return page.Render(file)
}
