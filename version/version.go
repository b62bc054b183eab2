// Package version holds project version records and builds the column
// values persisted after an analysis.
package version

import (
	"math"

	"github.com/mager/cochlea/canonical"
	"github.com/mager/cochlea/rank"
	"github.com/mager/cochlea/view"
)

// Table is the relational table holding versions.
const Table = "project_versions"

// Mix types accepted by the analyzer.
const (
	MixMaster    = "master"
	MixPremaster = "premaster"
)

// structuralBPMTolerance is the largest gap between the analyzer BPM and
// the structural BPM still treated as the same tempo.
const structuralBPMTolerance = 1.5

type Version struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	AudioURL  string `json:"audio_url"`
	AudioPath string `json:"audio_path"`
	Name      string `json:"version_name"`
	MixType   string `json:"mix_type"`
}

type Project struct {
	ID    string `json:"id"`
	Genre string `json:"genre"`
}

// ValidMixType reports whether the analyzer supports mixType.
func ValidMixType(mixType string) bool {
	return mixType == MixMaster || mixType == MixPremaster
}

// Row maps column names to values.
type Row map[string]any

// Without returns a copy of r minus cols.
func (r Row) Without(cols ...string) Row {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	out := make(Row, len(r))
	for k, v := range r {
		if !drop[k] {
			out[k] = v
		}
	}
	return out
}

// Inputs are the results of one analysis run.
type Inputs struct {
	Raw        map[string]any
	Blob       canonical.Blob
	View       view.View
	Rank       *rank.Result
	Mix        rank.MixScores
	ArraysPath string
	ArraysSize int64
}

// BuildRow maps analysis results onto version columns.
func BuildRow(in Inputs) Row {
	raw := in.Raw
	blob := in.Blob
	row := Row{}

	row["lufs"] = numberOr(blob, "loudness_stats.integrated_lufs", raw, "lufs")
	row["sub_clarity"] = scoreOr(in.Mix.SubClarity, raw, "sub_clarity")
	row["hi_end"] = scoreOr(in.Mix.HiEnd, raw, "hi_end")
	row["dynamics"] = scoreOr(in.Mix.Dynamics, raw, "dynamics")
	row["stereo_image"] = scoreOr(in.Mix.StereoImage, raw, "stereo_image")
	row["tonality"] = scoreOr(in.Mix.Tonality, raw, "tonality")

	switch {
	case in.Rank != nil:
		row["overall_score"] = math.Round(in.Rank.Score*10) / 10
	default:
		row["overall_score"] = scoreOr(nil, raw, "overall_score")
		if row["overall_score"] == nil && in.Mix.Overall != nil {
			row["overall_score"] = *in.Mix.Overall
		}
	}

	row["feedback"] = value(raw, "feedback")
	row["model_match_percent"] = ModelMatchPercent(raw)
	row["analyzer_json"] = analyzerJSON(raw)
	row["analyzer_reference_ai"] = value(raw, "reference_ai")
	row["analyzer_mix_v1"] = value(raw, "mix_v1")
	row["analyzer_bpm"] = EffectiveBPM(raw, blob)
	row["analyzer_key"] = blob["key"]
	row["analyzer_spectral_centroid_hz"] = number(blob, "spectral.spectral_centroid_hz")
	row["analyzer_spectral_rolloff_hz"] = number(blob, "spectral.spectral_rolloff_hz")
	row["analyzer_spectral_bandwidth_hz"] = number(blob, "spectral.spectral_bandwidth_hz")
	row["analyzer_spectral_flatness"] = number(blob, "spectral.spectral_flatness")
	row["analyzer_zero_crossing_rate"] = number(blob, "spectral.zero_crossing_rate")
	row["fix_suggestions"] = value(raw, "fix_suggestions")

	if in.ArraysPath != "" {
		row["arrays_blob_path"] = in.ArraysPath
		row["arrays_blob_size_bytes"] = in.ArraysSize
	}
	if in.View != nil {
		row["analyzer_arrays"] = map[string]any(in.View)
	}
	return row
}

// EffectiveBPM reconciles the analyzer BPM with the structural BPM of the
// mix report. A structural tempo more than 1.5 BPM away wins; close values
// are averaged.
func EffectiveBPM(raw map[string]any, blob canonical.Blob) any {
	bpm, okBPM := blob.Float("bpm")
	structural, okStruct := canonical.LookupFloat(raw, "mix_v1.metrics.structure.bpm")
	switch {
	case okBPM && okStruct:
		if math.Abs(bpm-structural) > structuralBPMTolerance {
			return math.Round(structural)
		}
		return math.Round((bpm + structural) / 2)
	case okStruct:
		return math.Round(structural)
	case okBPM:
		return math.Round(bpm)
	}
	return nil
}

// ModelMatchPercent reads the reference match reported by the analyzer.
func ModelMatchPercent(raw map[string]any) any {
	if v, ok := canonical.LookupFloat(raw, "reference_ai.model_match.match_percent"); ok {
		return v
	}
	if v, ok := canonical.LookupFloat(raw, "reference_ai.match_ratio", "model_match.match_ratio"); ok {
		return v * 100
	}
	return nil
}

// analyzerJSON is the raw result without the bulk arrays, which live in
// object storage.
func analyzerJSON(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "arrays_blob" {
			continue
		}
		out[k] = v
	}
	return out
}

func value(raw map[string]any, key string) any {
	if v, ok := raw[key]; ok {
		return v
	}
	return nil
}

func number(blob canonical.Blob, path string) any {
	if v, ok := blob.Float(path); ok {
		return v
	}
	return nil
}

func numberOr(blob canonical.Blob, path string, raw map[string]any, key string) any {
	if v, ok := blob.Float(path); ok {
		return v
	}
	if v, ok := canonical.LookupFloat(raw, key); ok {
		return v
	}
	return nil
}

func scoreOr(score *float64, raw map[string]any, key string) any {
	if score != nil {
		return *score
	}
	if v, ok := canonical.LookupFloat(raw, key); ok {
		return v
	}
	return nil
}
