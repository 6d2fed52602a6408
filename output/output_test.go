package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/epiforecast/gbqr/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabel(t *testing.T) {
	testData := map[string]struct {
		q        float64
		expected string
	}{
		"median":     {0.5, "0.5"},
		"lower tail": {0.025, "0.025"},
		"upper tail": {0.975, "0.975"},
		"tenth":      {0.1, "0.1"},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, td.expected, Label(td.q))
		})
	}
}

func TestBuildRecords(t *testing.T) {
	refDate := time.Date(2024, time.January, 13, 0, 0, 0, 0, time.UTC)
	weekEnd := time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC)
	testRows := []feature.Row{
		{Location: "ca", WeekEndDate: weekEnd, Horizon: 1},
		{Location: "nyc", WeekEndDate: weekEnd, Horizon: 2},
	}
	values := [][]float64{
		{1.0, 2.0, 3.0},
		{-0.5, 0.5, 1.5},
	}
	qLevels := []float64{0.25, 0.5, 0.75}
	opt := &FormatOptions{
		DefaultTarget:   "Flu ED visits pct",
		TargetOverrides: map[string]string{"nyc": "ILI ED visits pct"},
	}

	records, err := BuildRecords(refDate, testRows, values, qLevels, opt)
	require.Nil(t, err)
	require.Len(t, records, 6)

	// horizon is recomputed from target end date relative to reference date
	assert.Equal(t, 0, records[0].Horizon)
	assert.Equal(t, weekEnd.AddDate(0, 0, 7), records[0].TargetEndDate)
	assert.Equal(t, "Flu ED visits pct", records[0].Target)
	assert.Equal(t, OutputTypeQuantile, records[0].OutputType)

	nyc := records[3:]
	assert.Equal(t, "nyc", nyc[0].Location)
	assert.Equal(t, 1, nyc[0].Horizon)
	assert.Equal(t, "ILI ED visits pct", nyc[0].Target)

	// negative predictions floor at zero
	assert.Equal(t, 0.0, nyc[0].Value)
	assert.Equal(t, 0.5, nyc[1].Value)
}

func TestBuildRecordsErrors(t *testing.T) {
	refDate := time.Date(2024, time.January, 13, 0, 0, 0, 0, time.UTC)
	rows := []feature.Row{{Location: "ca", WeekEndDate: refDate, Horizon: 1}}
	opt := &FormatOptions{DefaultTarget: "Flu ED visits pct"}

	_, err := BuildRecords(refDate, rows, nil, []float64{0.5}, opt)
	assert.ErrorIs(t, err, ErrLenMismatch)

	_, err = BuildRecords(refDate, rows, [][]float64{{1.0, 2.0}}, []float64{0.5}, opt)
	assert.ErrorIs(t, err, ErrLenMismatch)

	_, err = BuildRecords(refDate, rows, [][]float64{{1.0}}, nil, opt)
	assert.ErrorIs(t, err, ErrNoQuantiles)

	_, err = BuildRecords(refDate, rows, [][]float64{{1.0}}, []float64{0.5}, nil)
	assert.ErrorIs(t, err, ErrNoTargetName)
}

func TestReconcile(t *testing.T) {
	refDate := time.Date(2024, time.January, 13, 0, 0, 0, 0, time.UTC)
	mk := func(loc string, horizon int, q, v float64) Record {
		return Record{
			Location:      loc,
			ReferenceDate: refDate,
			Horizon:       horizon,
			Target:        "Flu ED visits pct",
			OutputType:    OutputTypeQuantile,
			Quantile:      q,
			Value:         v,
		}
	}

	records := []Record{
		// crossing: the 0.5 estimate is above the 0.9 estimate
		mk("ca", 1, 0.1, 2.0),
		mk("ca", 1, 0.5, 7.0),
		mk("ca", 1, 0.9, 5.0),
		// a separate group is left alone
		mk("ca", 2, 0.1, 1.0),
		mk("ca", 2, 0.5, 1.0),
	}
	Reconcile(records)

	assert.Equal(t, []float64{2.0, 5.0, 7.0}, []float64{records[0].Value, records[1].Value, records[2].Value})
	assert.Equal(t, 1.0, records[3].Value)
	assert.Equal(t, 1.0, records[4].Value)
}

func TestFilename(t *testing.T) {
	refDate := time.Date(2024, time.January, 13, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-13-epi-gbqr.csv", Filename(refDate, "epi", "gbqr"))
}

func TestWriteCSV(t *testing.T) {
	refDate := time.Date(2024, time.January, 13, 0, 0, 0, 0, time.UTC)
	records := []Record{
		{
			Location:      "ca",
			ReferenceDate: refDate,
			Horizon:       1,
			TargetEndDate: refDate.AddDate(0, 0, 7),
			Target:        "Flu ED visits pct",
			OutputType:    OutputTypeQuantile,
			Quantile:      0.5,
			Value:         2.25,
		},
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "out", Filename(refDate, "epi", "gbqr"))
	require.Nil(t, WriteCSV(path, records))

	f, err := os.Open(path)
	require.Nil(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.Nil(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"ca", "2024-01-13", "1", "2024-01-20", "Flu ED visits pct", "quantile", "0.5", "2.25"}, rows[1])

	// no stray temporary files remain
	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.Nil(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteCSVNoRecords(t *testing.T) {
	err := WriteCSV(filepath.Join(t.TempDir(), "out.csv"), nil)
	assert.ErrorIs(t, err, ErrNoRecords)
}
