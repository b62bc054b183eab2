package rank

import (
	"math"

	"github.com/mager/cochlea/reference"
)

// fallbackSpread is the half-band used, relative to the median, when a
// reference has no outer percentile on one side.
const fallbackSpread = 0.15

// Closeness scores v against a percentile band:
//
//	closeness = 1 - d^exp,  d = |v - p50| / (edge - p50)
//
// where edge is p10 below the median and p90 above it (p25/p75 when the
// outer percentiles are missing). Values on or past the edge score 0.
// The second return is false when the band has no usable center.
func Closeness(v float64, p reference.Percentiles, exp float64) (float64, bool) {
	lo := first(p.P10, p.P25)
	hi := first(p.P90, p.P75)

	var mid float64
	switch {
	case p.P50 != nil:
		mid = *p.P50
	case lo != nil && hi != nil:
		mid = (*lo + *hi) / 2
	default:
		return 0, false
	}

	spread := math.Abs(mid) * fallbackSpread
	if spread == 0 {
		spread = fallbackSpread
	}
	low, high := mid-spread, mid+spread
	if lo != nil {
		low = *lo
	}
	if hi != nil {
		high = *hi
	}

	half := high - mid
	if v < mid {
		half = mid - low
	}
	if half <= 0 {
		if v == mid {
			return 1, true
		}
		return 0, true
	}

	d := math.Abs(v-mid) / half
	if d >= 1 {
		return 0, true
	}
	if exp <= 0 {
		exp = 1
	}
	return clamp(1-math.Pow(d, exp), 0, 1), true
}

func first(ps ...*float64) *float64 {
	for _, p := range ps {
		if p != nil {
			return p
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
