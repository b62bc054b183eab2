package rank

import (
	"fmt"
	"math"
	"strings"

	"github.com/mager/cochlea/compare"
)

// Penalty is a deduction for a problem detectable without a reference.
type Penalty struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Points  float64 `json:"points"`
	Details string  `json:"details"`
}

// PenaltyRules hold the thresholds and magnitudes of each penalty.
// Points grow linearly past the threshold, from Base up to Max.
type PenaltyRules struct {
	ClippingPeakDB      float64
	ClippingBase        float64
	ClippingPerDB       float64
	ClippingMax         float64
	CompressionLRA      float64
	CompressionCrestDB  float64
	CompressionPerUnit  float64
	CompressionMax      float64
	LoudnessCeilingLUFS float64
	LoudnessBase        float64
	LoudnessPerLU       float64
	LoudnessMax         float64
}

func DefaultPenaltyRules() PenaltyRules {
	return PenaltyRules{
		ClippingPeakDB:      -1,
		ClippingBase:        5,
		ClippingPerDB:       10,
		ClippingMax:         15,
		CompressionLRA:      3,
		CompressionCrestDB:  6,
		CompressionPerUnit:  3,
		CompressionMax:      15,
		LoudnessCeilingLUFS: -6,
		LoudnessBase:        3,
		LoudnessPerLU:       3,
		LoudnessMax:         15,
	}
}

// Evaluate returns the penalties that apply, in a fixed order.
func (r PenaltyRules) Evaluate(t compare.Technical) []Penalty {
	var out []Penalty

	if peak, ok := maxPeak(t); ok && peak > r.ClippingPeakDB {
		pts := math.Min(r.ClippingMax, r.ClippingBase+r.ClippingPerDB*(peak-r.ClippingPeakDB))
		out = append(out, Penalty{
			Key:     "clipping_risk",
			Label:   "Clipping risk",
			Points:  pts,
			Details: fmt.Sprintf("peak %.2f dBFS above %.1f dBFS", peak, r.ClippingPeakDB),
		})
	}

	var over float64
	var reasons []string
	if t.LRA != nil && *t.LRA < r.CompressionLRA {
		over += r.CompressionLRA - *t.LRA
		reasons = append(reasons, fmt.Sprintf("LRA %.1f LU", *t.LRA))
	}
	if t.CrestFactorDB != nil && *t.CrestFactorDB < r.CompressionCrestDB {
		over += r.CompressionCrestDB - *t.CrestFactorDB
		reasons = append(reasons, fmt.Sprintf("crest factor %.1f dB", *t.CrestFactorDB))
	}
	if len(reasons) > 0 {
		out = append(out, Penalty{
			Key:     "over_compression",
			Label:   "Over-compression",
			Points:  math.Min(r.CompressionMax, r.CompressionPerUnit*(1+over)),
			Details: strings.Join(reasons, ", "),
		})
	}

	if t.IntegratedLUFS != nil && *t.IntegratedLUFS > r.LoudnessCeilingLUFS {
		lufs := *t.IntegratedLUFS
		out = append(out, Penalty{
			Key:     "excessive_loudness",
			Label:   "Excessive loudness",
			Points:  math.Min(r.LoudnessMax, r.LoudnessBase+r.LoudnessPerLU*(lufs-r.LoudnessCeilingLUFS)),
			Details: fmt.Sprintf("integrated %.1f LUFS above %.1f LUFS", lufs, r.LoudnessCeilingLUFS),
		})
	}
	return out
}

func maxPeak(t compare.Technical) (float64, bool) {
	switch {
	case t.TruePeakDB != nil && t.SamplePeakDB != nil:
		return math.Max(*t.TruePeakDB, *t.SamplePeakDB), true
	case t.TruePeakDB != nil:
		return *t.TruePeakDB, true
	case t.SamplePeakDB != nil:
		return *t.SamplePeakDB, true
	}
	return 0, false
}
