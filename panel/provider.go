package panel

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoProviderName = errors.New("source provider has no name")
	ErrEmptySource    = errors.New("source returned no observations")
)

// SourceProvider fetches the observations of one surveillance source as of a
// reference date. Providers own their namespacing: every location key they
// emit must be unique to the (source, aggregation level) it came from.
type SourceProvider interface {
	Name() string
	Fetch(ctx context.Context, asOf time.Time) ([]Observation, error)
}

// NamespaceKey builds the harmonized location key for a supplementary source
// observation. Sources spanning multiple geography types include the
// aggregation level in the key because raw numeric codes are not unique
// across geographies, e.g. state FIPS "11" and HSA "11" are distinct places.
func NamespaceKey(source, aggLevel, rawLocation string, multiGeo bool) string {
	if multiGeo {
		return fmt.Sprintf("%s_%s_%s", source, aggLevel, rawLocation)
	}
	return fmt.Sprintf("%s_%s", source, rawLocation)
}
