package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const legacyResult = `{
	"version_id": "v-1",
	"transient_strength": 1.4,
	"transient_density": 6.0,
	"loudness_stats": {"integrated_lufs": -8.2, "lra": 6.5, "true_peak_db": -1.1},
	"band_energy_norm": {"sub": 0.25, "low": 0.2, "lowmid": 0.15, "mid": 0.15, "presence": 0.1, "high": 0.1, "air": 0.05}
}`

const referenceModel = `{
	"profile_key": "minimal_deep_tech",
	"bands_norm_percentiles": {"sub": {"p25": 0.10, "p75": 0.18}},
	"features_percentiles": {"lufs": {"p10": -10, "p50": -8, "p90": -6}}
}`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd(viper.New())
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCanonicalize(t *testing.T) {
	p := writeFile(t, t.TempDir(), "result.json", legacyResult)

	out, err := run(t, "canonicalize", p)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	var blob map[string]any
	if err := json.Unmarshal([]byte(out), &blob); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	tr, _ := blob["transients"].(map[string]any)
	if tr["strength"] != 1.4 || tr["density"] != 6.0 {
		t.Errorf("transients = %v", blob["transients"])
	}
}

func TestCanonicalizeTraceYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "result.json", legacyResult)

	out, err := run(t, "canonicalize", p, "--trace", "-o", "yaml")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	var trace map[string]string
	if err := yaml.Unmarshal([]byte(out), &trace); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if trace["band_energy_norm"] != "band_energy_norm" {
		t.Errorf("trace = %v", trace)
	}
}

func TestRank(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "result.json", legacyResult)
	refs := filepath.Join(dir, "refs")
	if err := os.Mkdir(refs, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, refs, "minimal_deep_tech.json", referenceModel)

	out, err := run(t, "rank", p, "--references", refs)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	var res struct {
		ProfileKey string  `json:"profileKey"`
		Score      float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if res.ProfileKey != "minimal_deep_tech" || res.Score < 0 || res.Score > 100 {
		t.Errorf("result = %+v", res)
	}

	out, err = run(t, "rank", p, "--references", refs, "--compare")
	if err != nil {
		t.Fatalf("rank --compare: %v", err)
	}
	if !strings.Contains(out, `"high"`) {
		t.Errorf("sub band should compare high:\n%s", out)
	}
}

func TestRankReferencesFromEnv(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "result.json", legacyResult)
	writeFile(t, dir, "tech_house.json", referenceModel)
	t.Setenv("COCHLEA_REFERENCES", dir)

	if _, err := run(t, "rank", p, "--profile", "tech_house"); err != nil {
		t.Fatalf("rank: %v", err)
	}
}

func TestRankMissingModel(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "result.json", legacyResult)

	if _, err := run(t, "rank", p, "--references", dir); err == nil {
		t.Error("expected an error for a missing reference model")
	}
}

func TestReferenceShow(t *testing.T) {
	p := writeFile(t, t.TempDir(), "minimal_deep_tech.json", referenceModel)

	out, err := run(t, "reference", "show", p)
	if err != nil {
		t.Fatalf("reference show: %v", err)
	}
	if !strings.Contains(out, "band_energy_norm.sub") || !strings.Contains(out, "loudness_stats.integrated_lufs") {
		t.Errorf("output = %s", out)
	}
}

func TestUnknownOutput(t *testing.T) {
	p := writeFile(t, t.TempDir(), "result.json", legacyResult)

	if _, err := run(t, "view", p, "-o", "csv"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}
