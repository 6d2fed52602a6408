package transform

import (
	"math"
	"testing"
	"time"

	"github.com/epiforecast/gbqr/epiweek"
	"github.com/epiforecast/gbqr/panel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	f := Factors{Scale: 1.3, Center: 0.42}
	values := []float64{0.0, 0.01, 0.5, 1.7, 12.9, 55.0}

	for _, pt := range []PowerTransform{FourthRoot, None} {
		for _, x := range values {
			got := InverseValue(ForwardValue(x, f, pt), f, pt)
			assert.InDelta(t, x, got, 1e-9, "transform %q value %f", pt, x)
		}
	}
}

func TestValidate(t *testing.T) {
	require.Nil(t, FourthRoot.Validate())
	require.Nil(t, None.Validate())
	assert.ErrorIs(t, PowerTransform("sqrt").Validate(), ErrUnsupportedTransform)
}

func seasonPanel(values map[int]float64, source, location string) *panel.Panel {
	// season weeks are derived from real dates so 1 maps to epi week 40
	start := time.Date(2022, time.October, 8, 0, 0, 0, 0, time.UTC) // season week 1 of 2022/23
	p := &panel.Panel{}
	for wk, v := range values {
		d := start.AddDate(0, 0, (wk-1)*7)
		p.Observations = append(p.Observations, panel.Observation{
			Location:    location,
			Source:      source,
			WeekEndDate: d,
			Season:      epiweek.Season(d),
			SeasonWeek:  epiweek.SeasonWeek(d),
			Value:       v,
		})
	}
	return p
}

func TestComputeFactors(t *testing.T) {
	// two in-season weeks and one out-of-season week that must not affect
	// the factors
	pnl := seasonPanel(map[int]float64{
		2:  99.0, // out of the [10, 45] factor window
		10: 1.0,
		20: 3.0,
	}, "mchub", "nyc")

	factors, undefined, err := ComputeFactors(pnl, None)
	require.Nil(t, err)
	require.Empty(t, undefined)

	key := GroupKey{Source: "mchub", Location: "nyc"}
	f, ok := factors[key]
	require.True(t, ok)

	// transformed values are 1.01 and 3.01; the 95th percentile with linear
	// interpolation is 1.01 + 0.95*2 = 2.91
	assert.InDelta(t, 2.91, f.Scale, 1e-12)

	// center is the mean of in-season scaled values
	expectedCenter := (1.01/(2.91+Epsilon) + 3.01/(2.91+Epsilon)) / 2.0
	assert.InDelta(t, expectedCenter, f.Center, 1e-12)
}

func TestComputeFactorsUndefinedGroup(t *testing.T) {
	// all observations fall outside the factor estimation window
	pnl := seasonPanel(map[int]float64{2: 1.0, 4: 2.0}, "flusurv", "flusurv_California")

	factors, undefined, err := ComputeFactors(pnl, FourthRoot)
	require.Nil(t, err)
	require.Len(t, undefined, 1)
	assert.Equal(t, GroupKey{Source: "flusurv", Location: "flusurv_California"}, undefined[0])
	assert.Empty(t, factors)

	// applying without factors must fail loudly instead of emitting NaN
	_, err = Apply(pnl, factors, FourthRoot)
	assert.ErrorIs(t, err, ErrNoFactors)
}

func TestApplyMatchesForwardValue(t *testing.T) {
	pnl := seasonPanel(map[int]float64{10: 1.0, 20: 3.0, 30: 2.0}, "mchub", "nyc")

	factors, undefined, err := ComputeFactors(pnl, FourthRoot)
	require.Nil(t, err)
	require.Empty(t, undefined)

	cs, err := Apply(pnl, factors, FourthRoot)
	require.Nil(t, err)
	require.Len(t, cs, len(pnl.Observations))

	key := GroupKey{Source: "mchub", Location: "nyc"}
	for i, o := range pnl.Observations {
		assert.InDelta(t, ForwardValue(o.Value, factors[key], FourthRoot), cs[i], 1e-12)
		assert.False(t, math.IsNaN(cs[i]))
	}
}
