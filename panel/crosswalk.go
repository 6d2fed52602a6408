package panel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

var (
	ErrMissingColumn   = errors.New("missing required column")
	ErrUnknownLocation = errors.New("location not present in crosswalk")
)

// CrosswalkEntry maps one canonical location slug to its geography type and
// population.
type CrosswalkEntry struct {
	Slug         string
	OriginalCode string
	GeoType      string
	Population   int64
}

// Crosswalk maps external location codes to canonical slugs, geography type,
// and population.
type Crosswalk struct {
	entries map[string]CrosswalkEntry
	order   []string
}

// LoadCrosswalk reads a location crosswalk CSV. Expected columns are
// location, location_type, original_location_code, and population. A location
// whose original code is "All" is a state-level geography; otherwise the
// geography type is derived from the location_type column.
func LoadCrosswalk(path string) (*Crosswalk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open crosswalk, %w", err)
	}
	defer f.Close()
	return ReadCrosswalk(f)
}

// ReadCrosswalk parses crosswalk CSV content from a reader.
func ReadCrosswalk(r io.Reader) (*Crosswalk, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read crosswalk header, %w", err)
	}
	col, err := columnIndex(header, "location", "location_type", "original_location_code", "population")
	if err != nil {
		return nil, err
	}

	cw := &Crosswalk{entries: make(map[string]CrosswalkEntry)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read crosswalk row, %w", err)
		}

		entry := CrosswalkEntry{
			Slug:         rec[col["location"]],
			OriginalCode: rec[col["original_location_code"]],
			GeoType:      geoType(rec[col["location_type"]], rec[col["original_location_code"]]),
		}
		if popStr := rec[col["population"]]; popStr != "" {
			pop, err := strconv.ParseInt(popStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid population %q for %s, %w", popStr, entry.Slug, err)
			}
			entry.Population = pop
		}
		if _, exists := cw.entries[entry.Slug]; !exists {
			cw.order = append(cw.order, entry.Slug)
		}
		cw.entries[entry.Slug] = entry
	}
	return cw, nil
}

func geoType(locationType, originalCode string) string {
	if originalCode == "All" {
		return AggState
	}
	switch locationType {
	case "hsa_nci_id":
		return AggHSA
	case "nc_flu_region_id":
		return AggRegion
	default:
		return locationType
	}
}

// Lookup returns the crosswalk entry for a location slug.
func (c *Crosswalk) Lookup(slug string) (CrosswalkEntry, bool) {
	entry, ok := c.entries[slug]
	return entry, ok
}

// Slugs returns all location slugs in their original file order.
func (c *Crosswalk) Slugs() []string {
	slugs := make([]string, len(c.order))
	copy(slugs, c.order)
	return slugs
}

// Populations returns the slug to population mapping, omitting locations with
// unknown population.
func (c *Crosswalk) Populations() map[string]int64 {
	pops := make(map[string]int64, len(c.entries))
	for slug, entry := range c.entries {
		if entry.Population > 0 {
			pops[slug] = entry.Population
		}
	}
	return pops
}

func columnIndex(header []string, required ...string) (map[string]int, error) {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range required {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%s, %w", name, ErrMissingColumn)
		}
	}
	return col, nil
}
