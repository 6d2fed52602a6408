// Package transform implements the reversible power transform and per-group
// scale/center normalization applied to incidence values before modeling.
package transform

import (
	"errors"
	"fmt"
	"math"

	"github.com/epiforecast/gbqr/panel"
	"github.com/epiforecast/gbqr/stats"
)

// Epsilon keeps the power transform defined at zero and guards divisions by
// the scale factor.
const Epsilon = 0.01

// In-season window used for factor estimation. This is intentionally
// narrower than the [5, 45] window used to filter training rows.
const (
	factorSeasonWeekMin = 10
	factorSeasonWeekMax = 45
)

var (
	ErrUnsupportedTransform = errors.New("unsupported power transform")
	ErrNoFactors            = errors.New("no transform factors for group")
	ErrNoInSeasonData       = errors.New("no in-season observations for group")
)

// PowerTransform names the monotone rescaling applied to raw incidence.
type PowerTransform string

const (
	// FourthRoot applies t(x) = (x + eps)^0.25.
	FourthRoot PowerTransform = "4rt"
	// None applies t(x) = x + eps, keeping the offset so the inverse stays
	// uniform across modes.
	None PowerTransform = "none"
)

// Validate reports whether the transform name is supported.
func (pt PowerTransform) Validate() error {
	switch pt {
	case FourthRoot, None:
		return nil
	default:
		return fmt.Errorf("%q, %w", string(pt), ErrUnsupportedTransform)
	}
}

func (pt PowerTransform) exponent() float64 {
	if pt == FourthRoot {
		return 0.25
	}
	return 1.0
}

// GroupKey identifies the (source, location) group sharing one factor pair.
type GroupKey struct {
	Source   string
	Location string
}

// Factors is the frozen scale/center pair for one group. Scale is the 95th
// percentile of power-transformed incidence over in-season weeks and Center
// is the mean of the scaled in-season values. Factors are computed once per
// run and reused verbatim for every forward and inverse transform.
type Factors struct {
	Scale  float64 `json:"scale"`
	Center float64 `json:"center"`
}

// FactorSet maps each (source, location) group to its frozen factors.
type FactorSet map[GroupKey]Factors

// ComputeFactors derives the factor pair for every group in the panel. A
// group with zero in-season observations has undefined factors; such groups
// are returned separately so the caller can decide between excluding the
// group and aborting the run instead of letting NaNs flow downstream.
func ComputeFactors(pnl *panel.Panel, pt PowerTransform) (FactorSet, []GroupKey, error) {
	if err := pt.Validate(); err != nil {
		return nil, nil, err
	}

	inSeason := make(map[GroupKey][]float64)
	groups := make(map[GroupKey]struct{})
	var order []GroupKey
	for _, o := range pnl.Observations {
		key := GroupKey{Source: o.Source, Location: o.Location}
		if _, exists := groups[key]; !exists {
			groups[key] = struct{}{}
			order = append(order, key)
		}
		if o.SeasonWeek < factorSeasonWeekMin || o.SeasonWeek > factorSeasonWeekMax {
			continue
		}
		inSeason[key] = append(inSeason[key], forward(o.Value, pt))
	}

	factors := make(FactorSet, len(order))
	var undefined []GroupKey
	for _, key := range order {
		vals, ok := inSeason[key]
		if !ok || len(vals) == 0 {
			undefined = append(undefined, key)
			continue
		}
		scale, err := stats.Percentile(vals, 0.95)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to compute scale factor for %s/%s, %w", key.Source, key.Location, err)
		}
		scaled := make([]float64, len(vals))
		for i, v := range vals {
			scaled[i] = v / (scale + Epsilon)
		}
		factors[key] = Factors{Scale: scale, Center: stats.Mean(scaled)}
	}
	return factors, undefined, nil
}

// Apply transforms every observation value to the scaled, centered model
// space, returning one value per panel observation in panel order. Every
// observation's group must have factors; a missing pair is an error rather
// than a NaN output.
func Apply(pnl *panel.Panel, factors FactorSet, pt PowerTransform) ([]float64, error) {
	if err := pt.Validate(); err != nil {
		return nil, err
	}

	out := make([]float64, len(pnl.Observations))
	for i, o := range pnl.Observations {
		key := GroupKey{Source: o.Source, Location: o.Location}
		f, ok := factors[key]
		if !ok {
			return nil, fmt.Errorf("%s/%s, %w", key.Source, key.Location, ErrNoFactors)
		}
		out[i] = ForwardValue(o.Value, f, pt)
	}
	return out, nil
}

// ForwardValue maps one raw incidence value into the transformed, scaled,
// centered model space using the group's frozen factors.
func ForwardValue(x float64, f Factors, pt PowerTransform) float64 {
	return forward(x, pt)/(f.Scale+Epsilon) - f.Center
}

// InverseValue is the exact algebraic reversal of ForwardValue, applied in
// the order center, scale, then power. The result is clamped to be
// non-negative since incidence cannot go below zero.
func InverseValue(v float64, f Factors, pt PowerTransform) float64 {
	t := (v + f.Center) * (f.Scale + Epsilon)
	x := math.Pow(math.Max(t, 0.0), 1.0/pt.exponent()) - Epsilon
	return math.Max(x, 0.0)
}

func forward(x float64, pt PowerTransform) float64 {
	if pt == FourthRoot {
		return math.Pow(x+Epsilon, 0.25)
	}
	return x + Epsilon
}
