package version

import (
	"testing"

	"github.com/mager/cochlea/canonical"
	"github.com/mager/cochlea/rank"
	"github.com/mager/cochlea/view"
)

func TestEffectiveBPM(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want any
	}{
		{"structural wins", map[string]any{"bpm": 120.0, "mix_v1": map[string]any{"metrics": map[string]any{"structure": map[string]any{"bpm": 124.2}}}}, 124.0},
		{"close values averaged", map[string]any{"bpm": 124.0, "mix_v1": map[string]any{"metrics": map[string]any{"structure": map[string]any{"bpm": 125.0}}}}, 125.0},
		{"analyzer only", map[string]any{"bpm": 127.6}, 128.0},
		{"none", map[string]any{}, nil},
	}

	for _, tt := range tests {
		got := EffectiveBPM(tt.raw, canonical.Canonicalize(tt.raw))
		if got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestModelMatchPercent(t *testing.T) {
	raw := map[string]any{"reference_ai": map[string]any{"match_ratio": 0.5}}
	if got := ModelMatchPercent(raw); got != 50.0 {
		t.Errorf("got %v, want 50", got)
	}

	raw = map[string]any{"reference_ai": map[string]any{"model_match": map[string]any{"match_percent": 64.0}, "match_ratio": 0.1}}
	if got := ModelMatchPercent(raw); got != 64.0 {
		t.Errorf("got %v, want 64", got)
	}
}

func TestBuildRow(t *testing.T) {
	raw := map[string]any{
		"version_id":    "v-1",
		"lufs":          -8.5,
		"overall_score": 71.0,
		"feedback":      map[string]any{"summary": "ok"},
		"key":           "F minor",
		"arrays_blob":   map[string]any{"correlation": []any{0.1, 0.2}},
	}
	blob := canonical.Canonicalize(raw)
	v := view.Project(blob)
	sub := 80.0

	row := BuildRow(Inputs{
		Raw:        raw,
		Blob:       blob,
		View:       v,
		Mix:        rank.MixScores{SubClarity: &sub},
		ArraysPath: "analyzer/p/v-1/arrays.json",
		ArraysSize: 2048,
	})

	if row["overall_score"] != 71.0 {
		t.Errorf("overall_score = %v, want analyzer value without a rank", row["overall_score"])
	}
	if row["sub_clarity"] != 80.0 {
		t.Errorf("sub_clarity = %v", row["sub_clarity"])
	}
	if row["arrays_blob_size_bytes"] != int64(2048) {
		t.Errorf("arrays_blob_size_bytes = %v", row["arrays_blob_size_bytes"])
	}
	if _, ok := row["analyzer_json"].(map[string]any)["arrays_blob"]; ok {
		t.Error("analyzer_json should not carry the arrays blob")
	}
	if row["analyzer_arrays"] == nil {
		t.Error("analyzer_arrays missing")
	}

	row = BuildRow(Inputs{Raw: raw, Blob: blob, Rank: &rank.Result{Score: 64.26}})
	if row["overall_score"] != 64.3 {
		t.Errorf("overall_score = %v, want rank score", row["overall_score"])
	}
	if _, ok := row["arrays_blob_path"]; ok {
		t.Error("arrays columns should be absent without an upload")
	}
}

func TestRowWithout(t *testing.T) {
	row := Row{"a": 1, "b": 2, "c": 3}
	got := row.Without("b", "z")
	if len(got) != 2 || got["b"] != nil {
		t.Errorf("Without = %v", got)
	}
	if len(row) != 3 {
		t.Error("Without mutated the receiver")
	}
}
