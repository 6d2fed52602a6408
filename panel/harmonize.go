package panel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrNoPrimarySource = errors.New("no primary source provider")
	ErrDuplicateSource = errors.New("duplicate source provider name")
)

// Harmonizer merges the primary source with zero or more supplementary
// sources into one panel. The primary source is the only one eligible to
// appear in the forecast test set; supplementary sources enrich the training
// signal only.
type Harmonizer struct {
	Primary       SourceProvider
	Supplementary []SourceProvider
	DropSeasons   []string
}

// Build fetches every configured source and produces the harmonized panel.
// Primary-source rows are de-duplicated on (location, week-ending date,
// target) keeping the first occurrence. Rows newer than the reference date
// and rows in excluded seasons are dropped. A failing supplementary loader
// fails the whole build; no source is optional once toggled on.
func (h *Harmonizer) Build(ctx context.Context, refDate time.Time) (*Panel, error) {
	if h.Primary == nil {
		return nil, ErrNoPrimarySource
	}
	seen := map[string]struct{}{h.Primary.Name(): {}}
	for _, s := range h.Supplementary {
		if _, exists := seen[s.Name()]; exists {
			return nil, fmt.Errorf("%s, %w", s.Name(), ErrDuplicateSource)
		}
		seen[s.Name()] = struct{}{}
	}

	primaryObs, err := h.Primary.Fetch(ctx, refDate)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch primary source %s, %w", h.Primary.Name(), err)
	}
	obs := dedupePrimary(primaryObs)

	for _, s := range h.Supplementary {
		supplObs, err := s.Fetch(ctx, refDate)
		if err != nil {
			return nil, fmt.Errorf("unable to fetch supplementary source %s, %w", s.Name(), err)
		}
		obs = append(obs, supplObs...)
	}

	drop := make(map[string]struct{}, len(h.DropSeasons))
	for _, season := range h.DropSeasons {
		drop[season] = struct{}{}
	}

	kept := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if o.WeekEndDate.After(refDate) {
			continue
		}
		if _, excluded := drop[o.Season]; excluded {
			continue
		}
		kept = append(kept, o)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if !kept[i].WeekEndDate.Equal(kept[j].WeekEndDate) {
			return kept[i].WeekEndDate.Before(kept[j].WeekEndDate)
		}
		if kept[i].Source != kept[j].Source {
			return kept[i].Source < kept[j].Source
		}
		return kept[i].Location < kept[j].Location
	})

	return &Panel{Observations: kept}, nil
}

// dedupePrimary keeps the first occurrence of each (location, week-ending
// date, target) triple under the source's original row ordering.
func dedupePrimary(obs []Observation) []Observation {
	type key struct {
		location string
		weekEnd  time.Time
		target   string
	}
	seen := make(map[key]struct{}, len(obs))
	out := make([]Observation, 0, len(obs))
	for _, o := range obs {
		k := key{location: o.Location, weekEnd: o.WeekEndDate, target: o.Target}
		if _, exists := seen[k]; exists {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, o)
	}
	return out
}
