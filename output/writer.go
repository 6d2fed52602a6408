package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

var ErrNoRecords = errors.New("no records to write")

var header = []string{
	"location",
	"reference_date",
	"horizon",
	"target_end_date",
	"target",
	"output_type",
	"output_type_id",
	"value",
}

// Filename returns the standard output filename for one model run,
// {ref_date}-{team}-{model}.csv.
func Filename(refDate time.Time, team, model string) string {
	return fmt.Sprintf("%s-%s-%s.csv", refDate.Format(dateLayout), team, model)
}

// WriteCSV persists the forecast record table to path. The table is written
// to a temporary file in the same directory and renamed into place so a
// failed run leaves no partial output.
func WriteCSV(path string, records []Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("unable to create output directory, %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("unable to create temporary output file, %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to write header, %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Location,
			r.ReferenceDate.Format(dateLayout),
			strconv.Itoa(r.Horizon),
			r.TargetEndDate.Format(dateLayout),
			r.Target,
			r.OutputType,
			Label(r.Quantile),
			strconv.FormatFloat(r.Value, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("unable to write record, %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to flush output, %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to close temporary output file, %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("unable to move output into place, %w", err)
	}
	return nil
}
