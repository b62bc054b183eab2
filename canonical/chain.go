package canonical

import "strings"

// Source is one candidate location for a canonical key.
// An empty Path addresses the root of the payload.
type Source struct {
	Path  string
	Shape Shape
}

// Resolve looks up the source path in raw and type-checks the value.
func (s Source) Resolve(raw map[string]any) (any, bool) {
	v, ok := dig(raw, s.Path)
	if !ok {
		return nil, false
	}
	return s.Shape(v)
}

// Chain is the ordered list of sources for one canonical key.
// The first source that type-checks wins.
type Chain struct {
	Key     string
	Sources []Source
}

// Resolve returns the first matching source value and the path it came from.
func (c Chain) Resolve(raw map[string]any) (any, string, bool) {
	for _, s := range c.Sources {
		if v, ok := s.Resolve(raw); ok {
			return v, s.Path, true
		}
	}
	return nil, "", false
}

// newChain starts a chain with the two highest priority sources:
// arrays_blob.<key> then <key>.
func newChain(key string, shape Shape) *chainBuilder {
	return &chainBuilder{
		shape: shape,
		c: Chain{Key: key, Sources: []Source{
			{Path: "arrays_blob." + key, Shape: shape},
			{Path: key, Shape: shape},
		}},
	}
}

type chainBuilder struct {
	shape Shape
	c     Chain
}

func (b *chainBuilder) then(path string) *chainBuilder {
	return b.thenAs(path, b.shape)
}

// thenAs appends a fallback with its own shape. Paths outside blocks are
// also tried under arrays_blob first, so a canonical blob read back as
// input resolves to the same value.
func (b *chainBuilder) thenAs(path string, shape Shape) *chainBuilder {
	if !strings.HasPrefix(path, "blocks.") {
		nested := "arrays_blob"
		if path != "" {
			nested += "." + path
		}
		b.c.Sources = append(b.c.Sources, Source{Path: nested, Shape: shape})
	}
	b.c.Sources = append(b.c.Sources, Source{Path: path, Shape: shape})
	return b
}

func (b *chainBuilder) build() Chain {
	return b.c
}

var (
	loudnessShape = Object(
		F(Number, "integrated_lufs", "lufs", "integrated", "integratedLufs"),
		F(Number, "lra", "loudness_range", "loudnessRange"),
		F(Number, "sample_peak_db", "sample_peak", "peak_db", "samplePeakDb"),
		F(Number, "true_peak_db", "true_peak", "truePeakDb"),
		F(NumberArray, "momentary_lufs", "momentary", "momentaryLufs"),
		F(NumberArray, "short_term_lufs", "short_term", "shortTermLufs"),
	)

	spectralShape = Object(
		F(Number, "spectral_centroid_hz", "centroid_hz", "centroidHz", "analyzer_spectral_centroid_hz"),
		F(Number, "spectral_rolloff_hz", "rolloff_hz", "rolloffHz", "analyzer_spectral_rolloff_hz"),
		F(Number, "spectral_bandwidth_hz", "bandwidth_hz", "bandwidthHz", "analyzer_spectral_bandwidth_hz"),
		F(Number, "spectral_flatness", "flatness", "analyzer_spectral_flatness"),
		F(Number, "zero_crossing_rate", "zcr", "zeroCrossingRate", "analyzer_zero_crossing_rate"),
	)

	bandsShape = Object(
		F(Number, "sub"),
		F(Number, "low"),
		F(Number, "lowmid", "low_mid", "lowMid"),
		F(Number, "mid"),
		F(Number, "presence", "high_mid", "highMid"),
		F(Number, "high"),
		F(Number, "air"),
	)

	spectrumShape = Object(
		F(NumberArray, "hz", "freqs", "freqs_hz", "frequencies"),
		F(NumberArray, "track_db", "db", "trackDb", "values"),
	)

	stereoSummaryShape = Object(
		F(Number, "correlation_avg", "correlationAvg", "avg_correlation"),
		F(Number, "correlation_min", "correlationMin"),
		F(Number, "correlation_p05", "correlationP05"),
		F(Number, "sub_width", "subWidth"),
		F(Number, "low_width", "lowWidth"),
	)

	transientsShape = Object(
		F(Number, "strength", "transient_strength", "transientStrength"),
		F(Number, "density", "transient_density", "transientDensity"),
		F(Number, "crest_factor_db", "crestFactorDb", "crest_db"),
		F(Number, "log_attack_time", "logAttackTime", "log_attack"),
	)
)

// Band names in spectral order.
var Bands = []string{"sub", "low", "lowmid", "mid", "presence", "high", "air"}

var chains = []Chain{
	newChain("loudness_stats", loudnessShape).
		then("blocks.loudness.data").
		then("loudness").
		then("").build(),
	newChain("momentary_percentiles", NumberMap).
		then("blocks.loudness.data.momentary_percentiles").
		then("loudness.momentary_percentiles").build(),
	newChain("short_term_percentiles", NumberMap).
		then("blocks.loudness.data.short_term_percentiles").
		then("loudness.short_term_percentiles").build(),
	newChain("sections", ObjectArray).
		then("blocks.loudness.data.sections").
		then("loudness.sections").
		then("structure.sections").build(),
	newChain("spectral", spectralShape).
		then("blocks.timbre_spectrum.data.spectral").
		then("analysis_pro.spectral").
		then("").build(),
	newChain("band_energy_norm", bandsShape).
		then("blocks.timbre_spectrum.data.bands_norm").
		then("bands_norm").
		then("analysis_pro.bands_norm").build(),
	newChain("spectrum_db", spectrumShape).
		then("blocks.timbre_spectrum.data.spectrum_db").
		then("spectrum").build(),
	newChain("sound_field", Polar).
		then("blocks.stereo.data.sound_field").
		then("blocks.stereo.data.sound_field_polar").
		then("stereo.sound_field").build(),
	newChain("sound_field_xy", Points).
		then("blocks.stereo.data.sound_field_xy").
		then("stereo.sound_field_xy").build(),
	newChain("stereo_width", Number).
		then("blocks.stereo.data.stereo_width").
		then("stereo.stereo_width").
		then("stereo.width").build(),
	newChain("width_by_band", NumberMap).
		then("blocks.stereo.data.width_by_band").
		then("stereo.width_by_band").build(),
	newChain("stereo_summary", stereoSummaryShape).
		then("blocks.stereo.data.summary").
		then("stereo.summary").build(),
	newChain("correlation", NumberArray).
		then("blocks.stereo.data.correlation").
		then("stereo.correlation").build(),
	newChain("levels", Map).
		then("blocks.loudness.data.levels").
		then("analysis_pro.levels").build(),
	newChain("transients", transientsShape).
		then("blocks.transients.data").
		then("analysis_pro.transients").
		then("").build(),
	newChain("bpm", Number).
		then("blocks.rhythm.data.bpm").
		then("rhythm.bpm").
		then("tempo").build(),
	newChain("key", String).
		then("blocks.rhythm.data.key").
		then("rhythm.key").
		then("analyzer_key").build(),
	newChain("beat_times", NumberArray).
		then("blocks.rhythm.data.beat_times").
		then("rhythm.beat_times").build(),
	newChain("rhythm_descriptors", Map).
		then("blocks.rhythm.data.descriptors").
		then("rhythm.descriptors").build(),
	newChain("relative_key", String).
		then("blocks.rhythm.data.relative_key").
		then("rhythm.relative_key").build(),
	newChain("danceability", Number).
		then("blocks.rhythm.data.danceability").
		then("rhythm.danceability").build(),
	newChain("mfcc_mean", NumberArray).
		then("blocks.extra.data.mfcc.mean").
		then("extra.mfcc.mean").
		then("extra.mfcc_mean").build(),
	newChain("hfc", Number).
		then("blocks.extra.data.hfc").
		then("extra.hfc").build(),
	newChain("spectral_peaks_count", Number).
		then("blocks.extra.data.spectral_peaks_count").
		thenAs("blocks.extra.data.spectral_peaks", Count).
		then("extra.spectral_peaks_count").
		thenAs("extra.spectral_peaks", Count).build(),
	newChain("spectral_peaks_energy", Number).
		then("blocks.extra.data.spectral_peaks_energy").
		then("extra.spectral_peaks_energy").build(),
}

// Chains returns the source table in output order.
func Chains() []Chain {
	out := make([]Chain, len(chains))
	copy(out, chains)
	return out
}

// Keys returns every canonical key in output order.
func Keys() []string {
	keys := make([]string, len(chains))
	for i, c := range chains {
		keys[i] = c.Key
	}
	return keys
}
