package gbqr

import (
	"fmt"
	"os"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// runSnapshot records everything needed to reproduce or audit one run:
// configuration, the derived seed, and the frozen transform factors.
type runSnapshot struct {
	RefDate        string           `json:"ref_date"`
	Seed           uint64           `json:"seed"`
	Team           string           `json:"team"`
	Model          string           `json:"model"`
	Transform      string           `json:"transform"`
	QuantileLevels []float64        `json:"quantile_levels"`
	DropSeasons    []string         `json:"drop_seasons"`
	Locations      []string         `json:"locations"`
	NumBags        int              `json:"num_bags"`
	BagFraction    float64          `json:"bag_fraction"`
	NumRecords     int              `json:"num_records"`
	Factors        []snapshotFactor `json:"factors"`
	Excluded       []string         `json:"excluded_groups,omitempty"`
}

type snapshotFactor struct {
	Source   string  `json:"source"`
	Location string  `json:"location"`
	Scale    float64 `json:"scale"`
	Center   float64 `json:"center"`
}

func snapshotPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, ".csv") + ".json"
}

func writeSnapshot(path string, opt *Options, res *RunResult) error {
	snap := runSnapshot{
		RefDate:        res.RefDate.Format("2006-01-02"),
		Seed:           res.Seed,
		Team:           opt.Team,
		Model:          opt.Model,
		Transform:      string(opt.Transform),
		QuantileLevels: opt.sortedQuantiles(),
		DropSeasons:    opt.DropSeasons,
		Locations:      opt.Locations,
		NumBags:        opt.Bagging.NumBags,
		BagFraction:    opt.Bagging.BagFraction,
		NumRecords:     len(res.Records),
	}
	for key, f := range res.Factors {
		snap.Factors = append(snap.Factors, snapshotFactor{
			Source:   key.Source,
			Location: key.Location,
			Scale:    f.Scale,
			Center:   f.Center,
		})
	}
	sort.Slice(snap.Factors, func(a, b int) bool {
		fa, fb := snap.Factors[a], snap.Factors[b]
		if fa.Source != fb.Source {
			return fa.Source < fb.Source
		}
		return fa.Location < fb.Location
	})
	for _, key := range res.Excluded {
		snap.Excluded = append(snap.Excluded, key.Source+"/"+key.Location)
	}

	buf, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal run snapshot, %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("unable to write run snapshot, %w", err)
	}
	return nil
}
