package output

import "sort"

type groupKey struct {
	location string
	horizon  int
	target   string
}

// Reconcile repairs quantile crossings in place. Within each (location,
// reference date, horizon, target) group the multiset of values is kept but
// values are sorted ascending and paired back with ascending quantile
// levels, regardless of which regressor produced which value. A value can
// end up under a different quantile label than its originating fit intended.
func Reconcile(records []Record) {
	groups := make(map[groupKey][]int)
	for i, r := range records {
		k := groupKey{location: r.Location, horizon: r.Horizon, target: r.Target}
		groups[k] = append(groups[k], i)
	}

	for _, idx := range groups {
		sort.SliceStable(idx, func(a, b int) bool {
			return records[idx[a]].Quantile < records[idx[b]].Quantile
		})
		vals := make([]float64, len(idx))
		for j, i := range idx {
			vals[j] = records[i].Value
		}
		sort.Float64s(vals)
		for j, i := range idx {
			records[i].Value = vals[j]
		}
	}
}
