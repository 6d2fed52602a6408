// Package panel assembles observations from multiple surveillance sources
// into one longitudinal panel with consistent location and season indexing.
package panel

import (
	"sort"
	"time"
)

// Aggregation levels reported by the supported surveillance sources.
const (
	AggNational = "national"
	AggState    = "state"
	AggHSA      = "hsa"
	AggHHS      = "hhs"
	AggSite     = "site"
	AggRegion   = "nc_region"
)

// Observation is a single (location, source, week-ending date) data point.
// Location keys are namespaced per source so that raw codes from different
// geographies can never collide.
type Observation struct {
	Location    string
	Source      string
	AggLevel    string
	WeekEndDate time.Time
	Season      string
	SeasonWeek  int
	Value       float64
	Population  int64  // 0 when unknown
	Target      string // set for primary-source rows only
}

// Panel is an ordered collection of observations spanning all enabled
// sources. It is built once per forecast run and treated as immutable after
// harmonization; later pipeline stages derive copies rather than mutating it.
type Panel struct {
	Observations []Observation
}

// Seasons returns the sorted set of distinct seasons present in the panel.
func (p *Panel) Seasons() []string {
	seen := make(map[string]struct{})
	for _, o := range p.Observations {
		seen[o.Season] = struct{}{}
	}
	seasons := make([]string, 0, len(seen))
	for s := range seen {
		seasons = append(seasons, s)
	}
	sort.Strings(seasons)
	return seasons
}

// MaxWeekEndDate returns the most recent week-ending date among observations
// of the given source. The zero time is returned for an unknown source.
func (p *Panel) MaxWeekEndDate(source string) time.Time {
	var maxDate time.Time
	for _, o := range p.Observations {
		if o.Source != source {
			continue
		}
		if o.WeekEndDate.After(maxDate) {
			maxDate = o.WeekEndDate
		}
	}
	return maxDate
}

// Locations returns the sorted set of distinct location keys for a source.
func (p *Panel) Locations(source string) []string {
	seen := make(map[string]struct{})
	for _, o := range p.Observations {
		if o.Source != source {
			continue
		}
		seen[o.Location] = struct{}{}
	}
	locs := make([]string, 0, len(seen))
	for l := range seen {
		locs = append(locs, l)
	}
	sort.Strings(locs)
	return locs
}
