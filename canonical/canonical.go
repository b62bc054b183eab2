// Package canonical normalizes analyzer results from every historical
// payload layout into a single blob with a fixed set of keys.
package canonical

import (
	"strings"
)

// Blob is a canonical analysis blob. Every key from Keys is present;
// its value is nil when no source produced a value of the expected shape.
type Blob map[string]any

// Envelope keys wrap analyzer data and never reach the blob.
var envelope = map[string]bool{
	"arrays_blob": true,
	"blocks":      true,
}

// Canonicalize resolves every canonical key against raw. Extra keys of
// raw.arrays_blob (or of raw itself when there is no arrays_blob) pass
// through, canonical keys always overwrite them.
func Canonicalize(raw map[string]any) Blob {
	base := raw
	if ab, ok := raw["arrays_blob"].(map[string]any); ok {
		base = ab
	}

	out := make(Blob, len(base)+len(chains))
	for k, v := range base {
		if envelope[k] {
			continue
		}
		out[k] = v
	}
	for _, c := range chains {
		v, _, _ := c.Resolve(raw)
		out[c.Key] = v
	}
	return out
}

// Trace reports, per canonical key, which source path won. Keys with no
// matching source are omitted.
func Trace(raw map[string]any) map[string]string {
	out := make(map[string]string, len(chains))
	for _, c := range chains {
		if _, path, ok := c.Resolve(raw); ok {
			out[c.Key] = path
		}
	}
	return out
}

// Get returns the value at a dotted path.
func (b Blob) Get(path string) (any, bool) {
	return dig(b, path)
}

// Float returns the finite number at a dotted path.
func (b Blob) Float(path string) (float64, bool) {
	v, ok := dig(b, path)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Lookup returns the first non-nil value found among paths.
func Lookup(raw map[string]any, paths ...string) (any, bool) {
	for _, p := range paths {
		if v, ok := dig(raw, p); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// LookupString returns the first non-blank string found among paths.
func LookupString(raw map[string]any, paths ...string) (string, bool) {
	for _, p := range paths {
		v, ok := dig(raw, p)
		if !ok {
			continue
		}
		if s, ok := String(v); ok {
			return s.(string), true
		}
	}
	return "", false
}

// LookupFloat returns the first finite number found among paths.
func LookupFloat(raw map[string]any, paths ...string) (float64, bool) {
	for _, p := range paths {
		v, ok := dig(raw, p)
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

func dig(m map[string]any, path string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if path == "" {
		return m, true
	}
	var cur any = m
	for _, seg := range strings.Split(path, ".") {
		obj, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Blob:
		return m, true
	}
	return nil, false
}
