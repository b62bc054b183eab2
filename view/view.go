// Package view projects a canonical blob into the bandwidth-bounded
// arrays view served to clients.
package view

import (
	"path"
	"strings"

	"github.com/mager/cochlea/canonical"
)

// View is the projected blob. Capped arrays are new slices, every other
// value is shared with the source blob and must be treated as read-only.
type View map[string]any

// Limit caps one array field. Path is dotted; Paired names sibling arrays
// that must be sampled at the same indices.
type Limit struct {
	Path   string
	Cap    int
	Paired []string
}

// Limits lists every capped field.
var Limits = []Limit{
	{Path: "loudness_stats.momentary_lufs", Cap: 400},
	{Path: "loudness_stats.short_term_lufs", Cap: 400},
	{Path: "correlation", Cap: 512},
	{Path: "spectrum_db.hz", Cap: 512, Paired: []string{"spectrum_db.track_db"}},
	{Path: "sound_field.angle_deg", Cap: 360, Paired: []string{"sound_field.radius"}},
	{Path: "sound_field_xy", Cap: 512},
	{Path: "beat_times", Cap: 256},
	{Path: "mfcc_mean", Cap: 13},
}

// Project applies Limits to blob.
func Project(blob canonical.Blob) View {
	out := make(View, len(blob))
	for k, v := range blob {
		out[k] = v
	}

	// Parents are copied once so the blob's nested objects stay untouched.
	copied := map[string]map[string]any{}
	parentOf := func(key string) (map[string]any, bool) {
		if m, ok := copied[key]; ok {
			return m, true
		}
		src, ok := out[key].(map[string]any)
		if !ok {
			return nil, false
		}
		m := make(map[string]any, len(src))
		for k, v := range src {
			m[k] = v
		}
		copied[key] = m
		out[key] = m
		return m, true
	}

	for _, l := range Limits {
		paths := append([]string{l.Path}, l.Paired...)
		for _, p := range paths {
			parent, leaf := split(p)
			if parent == "" {
				if v, ok := out[leaf]; ok {
					out[leaf] = capValue(v, l.Cap)
				}
				continue
			}
			m, ok := parentOf(parent)
			if !ok {
				continue
			}
			if _, ok := m[leaf]; ok {
				m[leaf] = capValue(m[leaf], l.Cap)
			}
		}
	}
	return out
}

func split(p string) (string, string) {
	i := strings.LastIndex(p, ".")
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

func capValue(v any, limit int) any {
	switch a := v.(type) {
	case []float64:
		return Downsample(a, limit)
	case []any:
		return Downsample(a, limit)
	}
	return v
}

// Downsample keeps every ceil(n/limit)-th element and always ends on the
// final sample. Slices within limit are returned as is.
func Downsample[T any](in []T, limit int) []T {
	n := len(in)
	if limit <= 0 || n <= limit {
		return in
	}
	step := (n + limit - 1) / limit
	out := make([]T, 0, limit)
	for i := 0; i < n; i += step {
		out = append(out, in[i])
	}
	if (n-1)%step != 0 {
		if len(out) < limit {
			out = append(out, in[n-1])
		} else {
			out[len(out)-1] = in[n-1]
		}
	}
	return out
}

// ViewPath returns the arrays view path that sits next to an arrays.json path.
func ViewPath(arraysPath string) string {
	dir := path.Dir(arraysPath)
	if dir == "." {
		return "arrays_view.json"
	}
	return dir + "/arrays_view.json"
}
