package rank

import (
	"math"

	"github.com/mager/cochlea/compare"
)

// MixScores are reference-free sub-scores on a 0-100 scale.
type MixScores struct {
	Overall     *float64 `json:"overall"`
	SubClarity  *float64 `json:"sub_clarity"`
	HiEnd       *float64 `json:"hi_end"`
	Dynamics    *float64 `json:"dynamics"`
	StereoImage *float64 `json:"stereo_image"`
	Tonality    *float64 `json:"tonality"`
}

// outsidePenalty grows from 0 at the range edge to 1 at a full range
// width (relative to the edge value) outside it.
func outsidePenalty(v, lo, hi float64) float64 {
	denom := func(x float64) float64 {
		if x == 0 {
			return 1
		}
		return math.Abs(x)
	}
	switch {
	case v < lo:
		return clamp((lo-v)/denom(lo), 0, 1)
	case v > hi:
		return clamp((v-hi)/denom(hi), 0, 1)
	}
	return 0
}

func fromDistance(d float64) *float64 {
	s := math.Round(100 * (1 - clamp(d, 0, 1)))
	return &s
}

// BaseQuality scores a mix without a reference. Sub-scores need their
// own inputs and stay nil otherwise; Overall is their weighted mean.
func BaseQuality(t compare.Technical) MixScores {
	var ms MixScores
	band := func(k string) (float64, bool) {
		v, ok := t.Bands[k]
		return v, ok
	}

	sub, okSub := band("sub")
	low, okLow := band("low")
	lowmid, okLowmid := band("lowmid")
	if okSub && okLow && okLowmid {
		flatPen := 0.0
		if t.SpectralFlatness != nil {
			flatPen = outsidePenalty(*t.SpectralFlatness, 0.03, 0.18)
		}
		d1 := math.Abs((sub - low) + 0.15)
		d2 := math.Max(0, lowmid-0.55)
		ms.SubClarity = fromDistance(d1*1.2 + d2 + flatPen*0.6)
	}

	presence, okPresence := band("presence")
	high, okHigh := band("high")
	air, okAir := band("air")
	if (okPresence && okHigh && okAir) || t.SpectralCentroid != nil {
		centroidPen := 0.0
		if t.SpectralCentroid != nil {
			centroidPen = outsidePenalty(*t.SpectralCentroid, 1800, 4200)
		}
		var dist float64
		var n int
		if okPresence && okHigh {
			dist += math.Abs((high - presence) + 0.05)
			n++
		}
		if okAir && okHigh {
			dist += math.Abs((air - high) + 0.08)
			n++
		}
		avg := 0.25
		if n > 0 {
			avg = dist / float64(n)
		}
		ms.HiEnd = fromDistance(avg*1.4 + centroidPen*0.8)
	}

	if t.LRA != nil || t.SamplePeakDB != nil || t.IntegratedLUFS != nil {
		var d float64
		if t.LRA != nil {
			d += outsidePenalty(*t.LRA, 4, 14) * 0.9
		}
		if t.SamplePeakDB != nil {
			d += outsidePenalty(*t.SamplePeakDB, -9, -0.2) * 0.6
		}
		if t.IntegratedLUFS != nil {
			d += outsidePenalty(*t.IntegratedLUFS, -14.5, -7) * 0.8
		}
		ms.Dynamics = fromDistance(d)
	}

	if t.StereoWidth != nil {
		ms.StereoImage = fromDistance(outsidePenalty(*t.StereoWidth, 0.02, 0.35) * 1.2)
	}

	if t.SpectralFlatness != nil || t.SpectralRolloff != nil {
		var d float64
		if t.SpectralFlatness != nil {
			d += outsidePenalty(*t.SpectralFlatness, 0.03, 0.20)
		}
		if t.SpectralRolloff != nil {
			d += outsidePenalty(*t.SpectralRolloff, 1500, 8000) * 0.6
		}
		ms.Tonality = fromDistance(d)
	}

	parts := []struct {
		v *float64
		w float64
	}{
		{ms.SubClarity, 1.1},
		{ms.HiEnd, 1.0},
		{ms.Dynamics, 1.0},
		{ms.StereoImage, 0.8},
		{ms.Tonality, 0.9},
	}
	var sum, sumW float64
	for _, p := range parts {
		if p.v == nil {
			continue
		}
		sum += *p.v * p.w
		sumW += p.w
	}
	if sumW > 0 {
		o := clamp(math.Round(sum/sumW), 0, 100)
		ms.Overall = &o
	}
	return ms
}
