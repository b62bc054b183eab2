package canonical

import (
	"encoding/json"
	"math"
	"strings"
)

// Shape type-checks a candidate value and returns its normalized form.
// A Shape must accept its own output unchanged so that canonicalization
// is a fixed point.
type Shape func(v any) (any, bool)

// Field is one member of an Object shape. Name is the canonical member
// name; Aliases are historical spellings tried after it, in order.
type Field struct {
	Name    string
	Aliases []string
	Shape   Shape
}

// F declares a field. The first name is canonical.
func F(shape Shape, name string, aliases ...string) Field {
	return Field{Name: name, Aliases: aliases, Shape: shape}
}

func (f Field) resolve(m map[string]any) (any, bool) {
	if v, ok := f.Shape(m[f.Name]); ok {
		return v, true
	}
	for _, a := range f.Aliases {
		if v, ok := f.Shape(m[a]); ok {
			return v, true
		}
	}
	return nil, false
}

// Number accepts finite numeric values. Strings are never coerced.
func Number(v any) (any, bool) {
	f, ok := toFloat(v)
	if !ok {
		return nil, false
	}
	return f, true
}

// String accepts non-blank strings.
func String(v any) (any, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, false
	}
	return s, true
}

// NumberArray accepts non-empty arrays whose every element is a finite number.
func NumberArray(v any) (any, bool) {
	switch a := v.(type) {
	case []float64:
		if len(a) == 0 {
			return nil, false
		}
		for _, f := range a {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, false
			}
		}
		return a, true
	case []any:
		if len(a) == 0 {
			return nil, false
		}
		out := make([]float64, len(a))
		for i, e := range a {
			f, ok := toFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// Map accepts any non-empty object and passes it through untouched.
func Map(v any) (any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	return m, true
}

// NumberMap keeps the numeric members of an object.
func NumberMap(v any) (any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(m))
	for k, e := range m {
		if f, ok := toFloat(e); ok {
			out[k] = f
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// ObjectArray accepts non-empty arrays of objects.
func ObjectArray(v any) (any, bool) {
	a, ok := v.([]any)
	if !ok || len(a) == 0 {
		return nil, false
	}
	for _, e := range a {
		if _, ok := e.(map[string]any); !ok {
			return nil, false
		}
	}
	return a, true
}

// Count accepts an array and yields its length.
func Count(v any) (any, bool) {
	a, ok := v.([]any)
	if !ok {
		return nil, false
	}
	return float64(len(a)), true
}

// Object accepts an object when at least one declared field resolves.
// Every declared field appears in the output, nil when unresolved.
func Object(fields ...Field) Shape {
	return func(v any) (any, bool) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		out := make(map[string]any, len(fields))
		found := false
		for _, f := range fields {
			if fv, ok := f.resolve(m); ok {
				out[f.Name] = fv
				found = true
			} else {
				out[f.Name] = nil
			}
		}
		if !found {
			return nil, false
		}
		return out, true
	}
}

// Points accepts a list of {x, y} objects or [x, y] pairs and yields {x, y} objects.
func Points(v any) (any, bool) {
	a, ok := v.([]any)
	if !ok || len(a) == 0 {
		return nil, false
	}
	out := make([]any, 0, len(a))
	for _, e := range a {
		var x, y float64
		switch p := e.(type) {
		case map[string]any:
			var okx, oky bool
			x, okx = toFloat(p["x"])
			y, oky = toFloat(p["y"])
			if !okx || !oky {
				return nil, false
			}
		case []any:
			if len(p) != 2 {
				return nil, false
			}
			var okx, oky bool
			x, okx = toFloat(p[0])
			y, oky = toFloat(p[1])
			if !okx || !oky {
				return nil, false
			}
		default:
			return nil, false
		}
		out = append(out, map[string]any{"x": x, "y": y})
	}
	return out, true
}

var polarObject = Object(
	F(NumberArray, "angle_deg", "angles_deg", "angle"),
	F(NumberArray, "radius", "radii", "r"),
)

// Polar accepts {angle_deg: [], radius: []} or a list of
// {angle_deg, radius} points and yields the object form.
func Polar(v any) (any, bool) {
	if a, ok := v.([]any); ok {
		if len(a) == 0 {
			return nil, false
		}
		angles := make([]float64, 0, len(a))
		radii := make([]float64, 0, len(a))
		for _, e := range a {
			p, ok := e.(map[string]any)
			if !ok {
				return nil, false
			}
			ang, oka := toFloat(p["angle_deg"])
			r, okr := toFloat(p["radius"])
			if !oka || !okr {
				return nil, false
			}
			angles = append(angles, ang)
			radii = append(radii, r)
		}
		return map[string]any{"angle_deg": angles, "radius": radii}, true
	}
	return polarObject(v)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToFloat reports v as a finite float64 using the same rules as Number.
func ToFloat(v any) (float64, bool) {
	return toFloat(v)
}
