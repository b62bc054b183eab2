// Package reference holds per-genre percentile distributions and the
// loaders that read them.
package reference

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/mager/cochlea/canonical"
	"golang.org/x/exp/maps"
)

// DefaultProfile is used when a project has no genre.
const DefaultProfile = "minimal_deep_tech"

// Percentiles of one metric across the reference population.
type Percentiles struct {
	P10 *float64 `json:"p10,omitempty" yaml:"p10,omitempty" firestore:"p10,omitempty"`
	P25 *float64 `json:"p25,omitempty" yaml:"p25,omitempty" firestore:"p25,omitempty"`
	P50 *float64 `json:"p50,omitempty" yaml:"p50,omitempty" firestore:"p50,omitempty"`
	P75 *float64 `json:"p75,omitempty" yaml:"p75,omitempty" firestore:"p75,omitempty"`
	P90 *float64 `json:"p90,omitempty" yaml:"p90,omitempty" firestore:"p90,omitempty"`
}

// Empty reports whether no percentile is set.
func (p Percentiles) Empty() bool {
	return p.P10 == nil && p.P25 == nil && p.P50 == nil && p.P75 == nil && p.P90 == nil
}

// Values returns the set percentiles in ascending order.
func (p Percentiles) Values() []float64 {
	var out []float64
	for _, v := range []*float64{p.P10, p.P25, p.P50, p.P75, p.P90} {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// Model is the reference distribution for one profile. Metric names are
// canonical blob paths such as "band_energy_norm.sub".
type Model struct {
	ProfileKey   string                 `json:"profile_key" yaml:"profile_key"`
	SamplesCount int                    `json:"samples_count" yaml:"samples_count"`
	BuiltAt      string                 `json:"built_at,omitempty" yaml:"built_at,omitempty"`
	Metrics      map[string]Percentiles `json:"metrics" yaml:"metrics"`
}

// Names returns metric names in sorted order.
func (m *Model) Names() []string {
	names := maps.Keys(m.Metrics)
	sort.Strings(names)
	return names
}

var ErrEmptyModel = errors.New("reference model has no metrics")

var (
	keySeparators  = regexp.MustCompile(`[\s-]+`)
	unsafeKeyChars = regexp.MustCompile(`[^a-z0-9_]`)
	repeatedScores = regexp.MustCompile(`_+`)
)

// SanitizeKey turns a genre or profile name into a storage key, so
// "Minimal Deep Tech" and "minimal_deep_tech" name the same model.
func SanitizeKey(profileKey string) string {
	k := strings.ToLower(strings.TrimSpace(profileKey))
	k = keySeparators.ReplaceAllString(k, "_")
	k = unsafeKeyChars.ReplaceAllString(k, "")
	return strings.Trim(repeatedScores.ReplaceAllString(k, "_"), "_")
}

// Historical feature names mapped to canonical paths.
var featurePaths = map[string]string{
	"lufs":                  "loudness_stats.integrated_lufs",
	"integrated_lufs":       "loudness_stats.integrated_lufs",
	"lra":                   "loudness_stats.lra",
	"sample_peak_db":        "loudness_stats.sample_peak_db",
	"true_peak_db":          "loudness_stats.true_peak_db",
	"spectral_centroid_hz":  "spectral.spectral_centroid_hz",
	"centroid_hz":           "spectral.spectral_centroid_hz",
	"spectral_rolloff_hz":   "spectral.spectral_rolloff_hz",
	"rolloff_hz":            "spectral.spectral_rolloff_hz",
	"spectral_bandwidth_hz": "spectral.spectral_bandwidth_hz",
	"bandwidth_hz":          "spectral.spectral_bandwidth_hz",
	"spectral_flatness":     "spectral.spectral_flatness",
	"flatness":              "spectral.spectral_flatness",
	"zero_crossing_rate":    "spectral.zero_crossing_rate",
	"zcr":                   "spectral.zero_crossing_rate",
	"strength":              "transients.strength",
	"transient_strength":    "transients.strength",
	"density":               "transients.density",
	"transient_density":     "transients.density",
	"crest_factor_db":       "transients.crest_factor_db",
	"log_attack_time":       "transients.log_attack_time",
	"bpm":                   "bpm",
	"danceability":          "danceability",
	"hfc":                   "hfc",
	"stereo_width":          "stereo_width",
	"lr_correlation":        "stereo_summary.correlation_avg",
	"correlation_avg":       "stereo_summary.correlation_avg",
}

// Percentile blocks of the builder output and the prefix used for
// members with no known canonical path.
var sections = []struct {
	keys     []string
	fallback string
}{
	{keys: []string{"bands_norm_percentiles", "bandsNormPercentiles"}, fallback: "band_energy_norm."},
	{keys: []string{"features_percentiles", "featuresPercentiles"}, fallback: ""},
	{keys: []string{"spectral_percentiles", "spectralPercentiles"}, fallback: "spectral."},
	{keys: []string{"transients_percentiles", "transientsPercentiles"}, fallback: "transients."},
	{keys: []string{"rhythm_percentiles", "rhythmPercentiles"}, fallback: "rhythm_descriptors."},
	{keys: []string{"stereo_percentiles", "stereoPercentiles"}, fallback: "stereo_summary."},
}

// Parse builds a Model from a decoded reference document. It accepts the
// builder layout (*_percentiles blocks) and the flattened "metrics" layout.
func Parse(doc map[string]any) (*Model, error) {
	m := &Model{Metrics: map[string]Percentiles{}}

	if s, ok := canonical.LookupString(doc, "profile_key", "profileKey"); ok {
		m.ProfileKey = s
	}
	if n, ok := canonical.LookupFloat(doc, "samples_count", "samplesCount"); ok {
		m.SamplesCount = int(n)
	}
	if s, ok := canonical.LookupString(doc, "built_at", "builtAt"); ok {
		m.BuiltAt = s
	}

	for _, sec := range sections {
		block, ok := firstMap(doc, sec.keys...)
		if !ok {
			continue
		}
		for name, v := range block {
			if name == "width_by_band_percentiles" {
				if wb, ok := v.(map[string]any); ok {
					for band, bv := range wb {
						m.add("width_by_band."+band, bv)
					}
				}
				continue
			}
			path := sec.fallback + name
			if sec.fallback == "band_energy_norm." {
				path = "band_energy_norm." + normalizeBand(name)
			} else if known, ok := featurePaths[name]; ok {
				path = known
			}
			m.add(path, v)
		}
	}

	if flat, ok := firstMap(doc, "metrics"); ok {
		for name, v := range flat {
			m.add(name, v)
		}
	}

	if len(m.Metrics) == 0 {
		return nil, ErrEmptyModel
	}
	return m, nil
}

func (m *Model) add(name string, v any) {
	obj, ok := v.(map[string]any)
	if !ok {
		return
	}
	p := Percentiles{
		P10: number(obj["p10"]),
		P25: number(obj["p25"]),
		P50: number(obj["p50"]),
		P75: number(obj["p75"]),
		P90: number(obj["p90"]),
	}
	if p.Empty() {
		return
	}
	m.Metrics[name] = p
}

func normalizeBand(name string) string {
	switch name {
	case "low_mid", "lowMid":
		return "lowmid"
	case "high_mid", "highMid":
		return "presence"
	}
	return name
}

func firstMap(doc map[string]any, keys ...string) (map[string]any, bool) {
	for _, k := range keys {
		if m, ok := doc[k].(map[string]any); ok {
			return m, true
		}
	}
	return nil, false
}

func number(v any) *float64 {
	f, ok := canonical.ToFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// F returns a pointer to f, for building Percentiles literals.
func F(f float64) *float64 {
	return &f
}
