// Package output converts ensemble predictions into the standardized
// forecast record schema and persists them as a delimited table.
package output

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/epiforecast/gbqr/feature"
)

// OutputTypeQuantile is the only output type this model emits.
const OutputTypeQuantile = "quantile"

var (
	ErrLenMismatch  = errors.New("prediction rows do not match test rows")
	ErrNoQuantiles  = errors.New("no quantile levels")
	ErrNoTargetName = errors.New("no target name configured")
)

// Record is one emitted forecast unit. For a fixed (location, reference
// date, horizon, target) there is exactly one record per quantile level.
type Record struct {
	Location      string
	ReferenceDate time.Time
	Horizon       int
	TargetEndDate time.Time
	Target        string
	OutputType    string
	Quantile      float64
	Value         float64
}

// Label formats a quantile level the way it appears in the output_type_id
// column, with no trailing zeros.
func Label(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// FormatOptions configures record construction.
type FormatOptions struct {
	// DefaultTarget is the target name used for locations without an
	// override.
	DefaultTarget string
	// TargetOverrides maps a location to an alternate target name.
	TargetOverrides map[string]string
}

// BuildRecords expands per test row, per quantile predictions into forecast
// records. Predictions are expected on the original measurement scale and
// are floored at zero. The horizon is recomputed from the target end date
// rather than trusting the horizon requested upstream.
func BuildRecords(refDate time.Time, testRows []feature.Row, values [][]float64, qLevels []float64, opt *FormatOptions) ([]Record, error) {
	if len(values) != len(testRows) {
		return nil, fmt.Errorf("got %d prediction rows for %d test rows, %w", len(values), len(testRows), ErrLenMismatch)
	}
	if len(qLevels) == 0 {
		return nil, ErrNoQuantiles
	}
	if opt == nil || opt.DefaultTarget == "" {
		return nil, ErrNoTargetName
	}

	records := make([]Record, 0, len(testRows)*len(qLevels))
	for i, row := range testRows {
		if len(values[i]) != len(qLevels) {
			return nil, fmt.Errorf("row %d has %d predictions for %d quantile levels, %w", i, len(values[i]), len(qLevels), ErrLenMismatch)
		}

		target := opt.DefaultTarget
		if alt, ok := opt.TargetOverrides[row.Location]; ok {
			target = alt
		}

		targetEnd := row.WeekEndDate.AddDate(0, 0, 7*row.Horizon)
		horizon := int(targetEnd.Sub(refDate).Hours() / (24.0 * 7.0))

		for q, level := range qLevels {
			v := values[i][q]
			if v < 0.0 {
				v = 0.0
			}
			records = append(records, Record{
				Location:      row.Location,
				ReferenceDate: refDate,
				Horizon:       horizon,
				TargetEndDate: targetEnd,
				Target:        target,
				OutputType:    OutputTypeQuantile,
				Quantile:      level,
				Value:         v,
			})
		}
	}

	sort.SliceStable(records, func(a, b int) bool {
		ra, rb := records[a], records[b]
		if ra.Location != rb.Location {
			return ra.Location < rb.Location
		}
		if ra.Horizon != rb.Horizon {
			return ra.Horizon < rb.Horizon
		}
		return ra.Quantile < rb.Quantile
	})
	return records, nil
}
