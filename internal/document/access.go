package document

import (
	"encoding/json"
	"fmt"
	"math"
)

// Get walks path through nested objects.
func (d Doc) Get(path ...string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether path resolves to a value.
func (d Doc) Has(path ...string) bool {
	_, ok := d.Get(path...)
	return ok
}

// String returns the string at path.
func (d Doc) String(path ...string) (string, error) {
	v, ok := d.Get(path...)
	if !ok {
		return "", missing(path)
	}
	s, ok := v.(string)
	if !ok {
		return "", mistyped(path, "string", v)
	}
	return s, nil
}

// StringOr returns the string at path, or def when it is missing or mistyped.
func (d Doc) StringOr(def string, path ...string) string {
	s, err := d.String(path...)
	if err != nil {
		return def
	}
	return s
}

// Float returns the number at path.
func (d Doc) Float(path ...string) (float64, error) {
	v, ok := d.Get(path...)
	if !ok {
		return 0, missing(path)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, mistyped(path, "number", v)
	}
	return f, nil
}

// FloatOr returns the number at path, or def when it is missing or mistyped.
func (d Doc) FloatOr(def float64, path ...string) float64 {
	f, err := d.Float(path...)
	if err != nil {
		return def
	}
	return f
}

// Int returns the integral number at path.
func (d Doc) Int(path ...string) (int, error) {
	f, err := d.Float(path...)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, &FieldError{Path: path, Reason: fmt.Sprintf("%v is not an integer", f)}
	}
	return int(f), nil
}

// Bool returns the boolean at path.
func (d Doc) Bool(path ...string) (bool, error) {
	v, ok := d.Get(path...)
	if !ok {
		return false, missing(path)
	}
	b, ok := v.(bool)
	if !ok {
		return false, mistyped(path, "boolean", v)
	}
	return b, nil
}

// Map returns the object at path as a Doc sharing storage with d.
func (d Doc) Map(path ...string) (Doc, error) {
	v, ok := d.Get(path...)
	if !ok {
		return nil, missing(path)
	}
	m, ok := asMap(v)
	if !ok {
		return nil, mistyped(path, "object", v)
	}
	return Doc(m), nil
}

// List returns the array at path.
func (d Doc) List(path ...string) ([]any, error) {
	v, ok := d.Get(path...)
	if !ok {
		return nil, missing(path)
	}
	l, ok := v.([]any)
	if !ok {
		return nil, mistyped(path, "array", v)
	}
	return l, nil
}

// Floats returns the array at path as numbers.
func (d Doc) Floats(path ...string) ([]float64, error) {
	l, err := d.List(path...)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(l))
	for i, item := range l {
		f, ok := toFloat(item)
		if !ok {
			return nil, mistyped(path, "array of numbers", item)
		}
		out[i] = f
	}
	return out, nil
}

// Ints returns the array at path as integers.
func (d Doc) Ints(path ...string) ([]int, error) {
	fs, err := d.Floats(path...)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(fs))
	for i, f := range fs {
		if f != math.Trunc(f) {
			return nil, &FieldError{Path: path, Reason: fmt.Sprintf("%v is not an integer", f)}
		}
		out[i] = int(f)
	}
	return out, nil
}

// Set stores value at path, creating intermediate objects as needed. An
// intermediate value that is not an object is replaced.
func (d Doc) Set(value any, path ...string) {
	if len(path) == 0 {
		return
	}
	cur := map[string]any(d)
	for _, key := range path[:len(path)-1] {
		next, ok := asMap(cur[key])
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

// IsNumber reports whether v is a decoded or native number.
func IsNumber(v any) bool {
	_, ok := toFloat(v)
	return ok
}

// ToFloat converts a decoded or native number.
func ToFloat(v any) (float64, bool) {
	return toFloat(v)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Doc:
		return m, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func missing(path []string) error {
	return &FieldError{Path: path, Reason: "missing"}
}

func mistyped(path []string, want string, got any) error {
	return &FieldError{Path: path, Reason: fmt.Sprintf("want %s, got %T", want, got)}
}
