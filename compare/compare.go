// Package compare maps a canonical blob against a reference model.
package compare

import (
	"strings"

	"github.com/mager/cochlea/canonical"
	"github.com/mager/cochlea/reference"
)

// Status of a metric against its reference band.
type Status string

const (
	StatusLow     Status = "low"
	StatusOK      Status = "ok"
	StatusHigh    Status = "high"
	StatusUnknown Status = "unknown"
)

// Mode tells how a band value was compared.
type Mode string

const (
	ModeRaw   Mode = "raw"
	ModeShare Mode = "share"
)

// Component names used to group metrics for ranking.
const (
	Tonal      = "tonal"
	Loudness   = "loudness"
	Spectral   = "spectral"
	Transients = "transients"
	Rhythm     = "rhythm"
	Stereo     = "stereo"
)

// bandNormalizedMax is the largest reference bound still read as a fraction.
const bandNormalizedMax = 1.2

// Metric is one reference metric paired with the track value.
type Metric struct {
	Name      string                `json:"name"`
	Component string                `json:"component"`
	Value     *float64              `json:"value"`
	Band      reference.Percentiles `json:"band"`
	Known     bool                  `json:"known"`
	Status    Status                `json:"status"`
	Mode      Mode                  `json:"mode,omitempty"`
}

// Technical holds reference-independent track values.
type Technical struct {
	IntegratedLUFS   *float64           `json:"integrated_lufs"`
	LRA              *float64           `json:"lra"`
	SamplePeakDB     *float64           `json:"sample_peak_db"`
	TruePeakDB       *float64           `json:"true_peak_db"`
	CrestFactorDB    *float64           `json:"crest_factor_db"`
	SpectralCentroid *float64           `json:"spectral_centroid_hz"`
	SpectralRolloff  *float64           `json:"spectral_rolloff_hz"`
	SpectralFlatness *float64           `json:"spectral_flatness"`
	StereoWidth      *float64           `json:"stereo_width"`
	CorrelationAvg   *float64           `json:"correlation_avg"`
	Bands            map[string]float64 `json:"bands"`
}

// Model is the comparison of one blob against one reference.
type Model struct {
	ProfileKey string    `json:"profile_key"`
	Metrics    []Metric  `json:"metrics"`
	Technical  Technical `json:"technical"`
}

// Known returns the known metrics of a component.
func (m Model) Known(component string) []Metric {
	var out []Metric
	for _, mt := range m.Metrics {
		if mt.Component == component && mt.Known {
			out = append(out, mt)
		}
	}
	return out
}

// Compare evaluates every metric defined in ref against blob. A nil ref
// yields a model carrying only technical values.
func Compare(blob canonical.Blob, ref *reference.Model) Model {
	m := Model{Technical: ExtractTechnical(blob)}
	if ref == nil {
		return m
	}
	m.ProfileKey = ref.ProfileKey

	for _, name := range ref.Names() {
		band := ref.Metrics[name]
		mt := Metric{
			Name:      name,
			Component: ComponentOf(name),
			Band:      band,
			Status:    StatusUnknown,
		}

		v, ok := blob.Float(name)
		if ok && mt.Component == Tonal {
			if normalizedBand(band) {
				mt.Mode = ModeRaw
			} else {
				v, ok = share(m.Technical.Bands, v)
				mt.Mode = ModeShare
			}
		}
		if ok && !band.Empty() {
			mt.Value = &v
			mt.Known = true
			mt.Status = StatusOf(v, band)
		}
		m.Metrics = append(m.Metrics, mt)
	}
	return m
}

// StatusOf places v against the inner band, falling back to the outer one.
func StatusOf(v float64, p reference.Percentiles) Status {
	lo := first(p.P25, p.P10)
	hi := first(p.P75, p.P90)
	switch {
	case lo != nil && v < *lo:
		return StatusLow
	case hi != nil && v > *hi:
		return StatusHigh
	}
	return StatusOK
}

// ComponentOf assigns a metric name to its rank component.
func ComponentOf(name string) string {
	switch {
	case strings.HasPrefix(name, "band_energy_norm."):
		return Tonal
	case strings.HasPrefix(name, "loudness_stats."):
		return Loudness
	case strings.HasPrefix(name, "spectral."), name == "hfc", strings.HasPrefix(name, "spectral_peaks_"):
		return Spectral
	case strings.HasPrefix(name, "transients."):
		return Transients
	case name == "bpm", name == "danceability", strings.HasPrefix(name, "rhythm_descriptors."):
		return Rhythm
	case name == "stereo_width", strings.HasPrefix(name, "stereo_summary."), strings.HasPrefix(name, "width_by_band."):
		return Stereo
	}
	return ""
}

// normalizedBand reports whether the reference reads as fractions.
func normalizedBand(p reference.Percentiles) bool {
	for _, v := range p.Values() {
		if v < 0 || v > bandNormalizedMax {
			return false
		}
	}
	return true
}

// share is the band's percentage of the summed band energy.
func share(bands map[string]float64, v float64) (float64, bool) {
	var total float64
	for _, b := range bands {
		total += b
	}
	if total <= 0 {
		return 0, false
	}
	return 100 * v / total, true
}

// ExtractTechnical reads the values used by base quality and penalties.
func ExtractTechnical(blob canonical.Blob) Technical {
	t := Technical{
		IntegratedLUFS:   ptr(blob.Float("loudness_stats.integrated_lufs")),
		LRA:              ptr(blob.Float("loudness_stats.lra")),
		SamplePeakDB:     ptr(blob.Float("loudness_stats.sample_peak_db")),
		TruePeakDB:       ptr(blob.Float("loudness_stats.true_peak_db")),
		CrestFactorDB:    ptr(blob.Float("transients.crest_factor_db")),
		SpectralCentroid: ptr(blob.Float("spectral.spectral_centroid_hz")),
		SpectralRolloff:  ptr(blob.Float("spectral.spectral_rolloff_hz")),
		SpectralFlatness: ptr(blob.Float("spectral.spectral_flatness")),
		StereoWidth:      ptr(blob.Float("stereo_width")),
		CorrelationAvg:   ptr(blob.Float("stereo_summary.correlation_avg")),
		Bands:            map[string]float64{},
	}
	for _, b := range canonical.Bands {
		if v, ok := blob.Float("band_energy_norm." + b); ok {
			t.Bands[b] = v
		}
	}
	return t
}

func ptr(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func first(ps ...*float64) *float64 {
	for _, p := range ps {
		if p != nil {
			return p
		}
	}
	return nil
}
