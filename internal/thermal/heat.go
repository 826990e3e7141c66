package thermal

import (
	"fmt"
	"sort"
)

// Heat range labels, ordered from coldest to hottest.
const (
	HeatVeryCold   = "very cold"
	HeatCold       = "cold"
	HeatNeutral    = "neutral"
	HeatWarm       = "warm"
	HeatHot        = "hot"
	HeatOutOfRange = "out of range"
)

// HeatRange buckets a mean frame temperature. Boundaries are lower-inclusive:
// 10 is "cold" and 70 is "out of range".
func HeatRange(t float64) string {
	switch {
	case t < 10:
		return HeatVeryCold
	case t < 20:
		return HeatCold
	case t < 30:
		return HeatNeutral
	case t < 40:
		return HeatWarm
	case t < 70:
		return HeatHot
	default:
		return HeatOutOfRange
	}
}

// Range is a closed temperature interval used by a processor mode.
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Ranges maps a label to the intervals configured for it.
type Ranges map[string][]Range

// Default thresholds used when the configured ranges expose fewer than two
// distinct edges.
const (
	DefaultColdThreshold = 20.0
	DefaultHotThreshold  = 30.0
)

// Thresholds are the hot/cold cut-offs used for region counting. They are
// derived once from the first frame's processor configuration.
type Thresholds struct {
	Hot  float64 `json:"hot"`
	Cold float64 `json:"cold"`
}

// Validate rejects labels without intervals and intervals whose high bound is
// below the low bound. A degenerate interval (Low == High) is allowed; it
// contributes a single edge.
func (r Ranges) Validate() error {
	for label, ranges := range r {
		if len(ranges) == 0 {
			return fmt.Errorf("range %q has no bounds", label)
		}
		for _, rng := range ranges {
			if rng.High < rng.Low {
				return fmt.Errorf("range %q has high %.2f below low %.2f", label, rng.High, rng.Low)
			}
		}
	}
	return nil
}

// Edges returns the sorted distinct low/high boundaries across every range.
func (r Ranges) Edges() []float64 {
	seen := make(map[float64]struct{})
	for _, ranges := range r {
		for _, rng := range ranges {
			seen[rng.Low] = struct{}{}
			seen[rng.High] = struct{}{}
		}
	}
	edges := make([]float64, 0, len(seen))
	for e := range seen {
		edges = append(edges, e)
	}
	sort.Float64s(edges)
	return edges
}

// DeriveThresholds picks the second-smallest edge as the cold threshold and
// the second-largest as the hot threshold.
func DeriveThresholds(r Ranges) Thresholds {
	edges := r.Edges()
	if len(edges) < 2 {
		return Thresholds{Hot: DefaultHotThreshold, Cold: DefaultColdThreshold}
	}
	return Thresholds{
		Hot:  edges[len(edges)-2],
		Cold: edges[1],
	}
}
