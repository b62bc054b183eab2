package rank

import (
	"math"
	"math/rand"
	"testing"

	"github.com/mager/cochlea/canonical"
	"github.com/mager/cochlea/compare"
	"github.com/mager/cochlea/reference"
)

var f = reference.F

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func band(p10, p50, p90 float64) reference.Percentiles {
	return reference.Percentiles{P10: f(p10), P50: f(p50), P90: f(p90)}
}

func known(name string, v float64, p reference.Percentiles) compare.Metric {
	return compare.Metric{
		Name:      name,
		Component: compare.ComponentOf(name),
		Value:     &v,
		Band:      p,
		Known:     true,
		Status:    compare.StatusOf(v, p),
	}
}

func TestClosenessShape(t *testing.T) {
	p := band(-10, -8, -6)

	at, _ := Closeness(-8, p, 2)
	if at != 1 {
		t.Errorf("closeness at median = %v, want 1", at)
	}
	edge, _ := Closeness(-6, p, 2)
	if edge != 0 {
		t.Errorf("closeness at p90 = %v, want 0", edge)
	}
	out, _ := Closeness(-2, p, 2)
	if out != 0 {
		t.Errorf("closeness outside band = %v, want 0", out)
	}

	prev := 1.0
	for v := -8.0; v <= -5; v += 0.25 {
		c, _ := Closeness(v, p, 2)
		if c > prev || c < 0 || c > 1 {
			t.Fatalf("closeness not monotonic in [0,1] at %v: %v after %v", v, c, prev)
		}
		prev = c
	}
}

func TestClosenessNoCenter(t *testing.T) {
	if _, ok := Closeness(1, reference.Percentiles{P10: f(0)}, 2); ok {
		t.Error("band without a center should be unusable")
	}
}

func TestUnknownStereoContributesZero(t *testing.T) {
	model := compare.Model{Metrics: []compare.Metric{
		known("band_energy_norm.sub", 0.13, band(0.08, 0.13, 0.2)),
		known("loudness_stats.integrated_lufs", -8, band(-10, -8, -6)),
		{Name: "stereo_width", Component: compare.Stereo, Status: compare.StatusUnknown},
	}}

	res := newEngine(t).Rank(model)
	stereo, ok := res.Component(compare.Stereo)
	if !ok {
		t.Fatal("stereo component missing")
	}
	if stereo.Score != nil {
		t.Errorf("stereo score = %v, want nil", *stereo.Score)
	}
	if stereo.Contribution != 0 {
		t.Errorf("stereo contribution = %v, want 0", stereo.Contribution)
	}

	// tonal 0.30*100 + loudness 0.20*100, no renormalization
	if math.Abs(res.ReferenceFit-50) > 1e-9 {
		t.Errorf("referenceFit = %v, want 50", res.ReferenceFit)
	}
}

func TestPrecisionBonus(t *testing.T) {
	model := compare.Model{Metrics: []compare.Metric{
		known("band_energy_norm.sub", 0.13, band(0.08, 0.13, 0.2)),
		known("loudness_stats.integrated_lufs", -8, band(-10, -8, -6)),
		known("transients.strength", 0.5, band(0.3, 0.5, 0.7)),
		known("bpm", 125, band(122, 125, 128)),
	}}

	res := newEngine(t).Rank(model)
	if res.PrecisionBonus != 3 {
		t.Errorf("bonus = %v, want capped 3", res.PrecisionBonus)
	}
	if len(res.PrecisionBreakdown.Qualifying) != 4 {
		t.Errorf("qualifying = %v", res.PrecisionBreakdown.Qualifying)
	}

	single := compare.Model{Metrics: model.Metrics[:1]}
	if got := newEngine(t).Rank(single).PrecisionBonus; got != 0 {
		t.Errorf("single component bonus = %v, want 0", got)
	}
}

func TestPenalties(t *testing.T) {
	model := compare.Model{Technical: compare.Technical{
		IntegratedLUFS: f(-4.5),
		LRA:            f(2.0),
		TruePeakDB:     f(0.2),
		CrestFactorDB:  f(7),
	}}

	res := newEngine(t).Rank(model)
	keys := map[string]float64{}
	for _, p := range res.Penalties {
		keys[p.Key] = p.Points
	}
	for _, k := range []string{"clipping_risk", "over_compression", "excessive_loudness"} {
		if keys[k] <= 0 {
			t.Errorf("penalty %s missing or zero: %v", k, keys)
		}
	}
	if res.Score != 0 {
		t.Errorf("score = %v, want 0 with no reference fit", res.Score)
	}
}

func TestPenaltyCap(t *testing.T) {
	opts := DefaultOptions()
	opts.PenaltyCap = 5
	e, err := NewEngine(opts)
	if err != nil {
		t.Fatal(err)
	}
	model := compare.Model{
		Metrics: []compare.Metric{
			known("band_energy_norm.sub", 0.13, band(0.08, 0.13, 0.2)),
			known("loudness_stats.integrated_lufs", -8, band(-10, -8, -6)),
			known("spectral.spectral_flatness", 0.1, band(0.05, 0.1, 0.15)),
			known("transients.strength", 0.5, band(0.3, 0.5, 0.7)),
			known("bpm", 125, band(122, 125, 128)),
			known("stereo_width", 0.3, band(0.2, 0.3, 0.4)),
		},
		Technical: compare.Technical{TruePeakDB: f(1), LRA: f(1), IntegratedLUFS: f(-3)},
	}

	res := e.Rank(model)
	if len(res.Penalties) != 3 {
		t.Fatalf("penalties = %+v", res.Penalties)
	}
	var sum float64
	for _, p := range res.Penalties {
		sum += p.Points
	}
	if math.Abs(sum-5) > 1e-9 {
		t.Errorf("penalty points sum = %v, want 5", sum)
	}
	if res.Penalties[0].Points != 5 || res.Penalties[2].Points != 0 {
		t.Errorf("penalties = %+v", res.Penalties)
	}
	want := clamp(res.PrePenaltyScore+res.PrecisionBonus-sum, 0, 100)
	if math.Abs(res.Score-want) > 1e-9 || math.Abs(res.Score-98) > 1e-9 {
		t.Errorf("score = %v, want %v", res.Score, want)
	}
}

func TestScoreBounds(t *testing.T) {
	e := newEngine(t)
	rng := rand.New(rand.NewSource(7))
	names := []string{
		"band_energy_norm.sub", "band_energy_norm.air", "loudness_stats.lra",
		"spectral.spectral_centroid_hz", "transients.density", "bpm", "stereo_width",
	}

	for i := 0; i < 500; i++ {
		var model compare.Model
		for _, n := range names {
			if rng.Intn(3) == 0 {
				model.Metrics = append(model.Metrics, compare.Metric{Name: n, Component: compare.ComponentOf(n)})
				continue
			}
			p50 := rng.Float64()*200 - 100
			spread := rng.Float64() * 20
			model.Metrics = append(model.Metrics, known(n, rng.Float64()*300-150, band(p50-spread, p50, p50+spread)))
		}
		if rng.Intn(2) == 0 {
			model.Technical = compare.Technical{
				IntegratedLUFS: f(rng.Float64()*30 - 25),
				LRA:            f(rng.Float64() * 12),
				TruePeakDB:     f(rng.Float64()*6 - 4),
			}
		}

		res := e.Rank(model)
		if res.Score < 0 || res.Score > 100 || math.IsNaN(res.Score) {
			t.Fatalf("score out of bounds: %v", res.Score)
		}
		if res.PrecisionBonus < 0 {
			t.Fatalf("negative bonus: %v", res.PrecisionBonus)
		}
	}
}

func TestValidateWeights(t *testing.T) {
	opts := DefaultOptions()
	opts.Components[0].Weight = 0.5
	if _, err := NewEngine(opts); err == nil {
		t.Error("expected weight sum error")
	}
}

func TestBaseQualityFromCanonicalBlob(t *testing.T) {
	blob := canonical.Canonicalize(map[string]any{
		"lufs":                 -9.0,
		"lra":                  6.0,
		"sample_peak_db":       -1.0,
		"spectral_centroid_hz": 2500.0,
		"spectral_flatness":    0.1,
		"spectral_rolloff_hz":  6000.0,
		"bands_norm": map[string]any{
			"sub": 0.1, "low": 0.25, "lowmid": 0.2, "mid": 0.2, "presence": 0.1, "high": 0.05, "air": -0.03,
		},
	})

	ms := BaseQuality(compare.ExtractTechnical(blob))
	for name, v := range map[string]*float64{
		"overall": ms.Overall, "sub_clarity": ms.SubClarity, "hi_end": ms.HiEnd,
		"dynamics": ms.Dynamics, "tonality": ms.Tonality,
	} {
		if v == nil {
			t.Errorf("%s is nil", name)
			continue
		}
		if *v < 0 || *v > 100 {
			t.Errorf("%s = %v out of range", name, *v)
		}
	}
	if ms.StereoImage != nil {
		t.Error("stereo image needs a width")
	}
	if *ms.Dynamics != 100 || *ms.Tonality != 100 {
		t.Errorf("dynamics=%v tonality=%v, want 100 for in-range inputs", *ms.Dynamics, *ms.Tonality)
	}
}
