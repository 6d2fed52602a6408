package panel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/epiforecast/gbqr/epiweek"
)

const dateLayout = "2006-01-02"

// PrimaryCSV loads the labeled target series for the primary source from a
// local CSV snapshot with columns location, target_end_date, target, and
// observation. Location slugs are used as-is since the primary source owns
// the canonical location namespace. Geography type and population are
// resolved through the crosswalk.
type PrimaryCSV struct {
	SourceName string
	Path       string
	Crosswalk  *Crosswalk
}

func (p *PrimaryCSV) Name() string {
	return p.SourceName
}

func (p *PrimaryCSV) Fetch(ctx context.Context, asOf time.Time) ([]Observation, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s snapshot, %w", p.SourceName, err)
	}
	defer f.Close()
	return p.read(ctx, f)
}

func (p *PrimaryCSV) read(ctx context.Context, r io.Reader) ([]Observation, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read %s header, %w", p.SourceName, err)
	}
	col, err := columnIndex(header, "location", "target_end_date", "target", "observation")
	if err != nil {
		return nil, err
	}

	var obs []Observation
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read %s row, %w", p.SourceName, err)
		}

		weekEnd, err := time.Parse(dateLayout, rec[col["target_end_date"]])
		if err != nil {
			return nil, fmt.Errorf("invalid week ending date %q, %w", rec[col["target_end_date"]], err)
		}
		value, err := strconv.ParseFloat(rec[col["observation"]], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid observation %q, %w", rec[col["observation"]], err)
		}

		slug := rec[col["location"]]
		o := Observation{
			Location:    slug,
			Source:      p.SourceName,
			WeekEndDate: weekEnd,
			Season:      epiweek.Season(weekEnd),
			SeasonWeek:  epiweek.SeasonWeek(weekEnd),
			Value:       value,
			Target:      rec[col["target"]],
		}
		if p.Crosswalk != nil {
			if entry, ok := p.Crosswalk.Lookup(slug); ok {
				o.AggLevel = entry.GeoType
				o.Population = entry.Population
			}
		}
		obs = append(obs, o)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("%s, %w", p.SourceName, ErrEmptySource)
	}
	return obs, nil
}

// SupplementaryCSV loads one supplementary surveillance source from a local
// CSV snapshot with columns location, agg_level, wk_end_date, and value.
// Raw location codes are namespaced with the source name and, when the source
// spans multiple geography types, the aggregation level.
type SupplementaryCSV struct {
	SourceName    string
	Path          string
	MultiGeo      bool
	DropLocations []string
}

func (s *SupplementaryCSV) Name() string {
	return s.SourceName
}

func (s *SupplementaryCSV) Fetch(ctx context.Context, asOf time.Time) ([]Observation, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s snapshot, %w", s.SourceName, err)
	}
	defer f.Close()
	return s.read(ctx, f)
}

func (s *SupplementaryCSV) read(ctx context.Context, r io.Reader) ([]Observation, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read %s header, %w", s.SourceName, err)
	}
	col, err := columnIndex(header, "location", "agg_level", "wk_end_date", "value")
	if err != nil {
		return nil, err
	}

	drop := make(map[string]struct{}, len(s.DropLocations))
	for _, loc := range s.DropLocations {
		drop[loc] = struct{}{}
	}

	var obs []Observation
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read %s row, %w", s.SourceName, err)
		}

		rawLoc := rec[col["location"]]
		if _, excluded := drop[rawLoc]; excluded {
			continue
		}

		weekEnd, err := time.Parse(dateLayout, rec[col["wk_end_date"]])
		if err != nil {
			return nil, fmt.Errorf("invalid week ending date %q, %w", rec[col["wk_end_date"]], err)
		}
		value, err := strconv.ParseFloat(rec[col["value"]], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q, %w", rec[col["value"]], err)
		}

		aggLevel := rec[col["agg_level"]]
		obs = append(obs, Observation{
			Location:    NamespaceKey(s.SourceName, aggLevel, rawLoc, s.MultiGeo),
			Source:      s.SourceName,
			AggLevel:    aggLevel,
			WeekEndDate: weekEnd,
			Season:      epiweek.Season(weekEnd),
			SeasonWeek:  epiweek.SeasonWeek(weekEnd),
			Value:       value,
		})
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("%s, %w", s.SourceName, ErrEmptySource)
	}
	return obs, nil
}
