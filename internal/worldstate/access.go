package worldstate

import (
	"fmt"
	"strconv"

	jsonx "taubench/internal/shared/json"
)

// Collection returns the named top-level collection of doc.
func Collection(doc Document, name string) (map[string]any, error) {
	raw, ok := doc[name]
	if !ok {
		return nil, fmt.Errorf("collection %q is missing", name)
	}
	coll, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("collection %q is %T, want object", name, raw)
	}
	return coll, nil
}

// Record looks up id inside the named collection.
func Record(doc Document, collection, id string) (map[string]any, bool, error) {
	coll, err := Collection(doc, collection)
	if err != nil {
		return nil, false, err
	}
	raw, ok := coll[id]
	if !ok {
		return nil, false, nil
	}
	rec, ok := raw.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("%s[%q] is %T, want object", collection, id, raw)
	}
	return rec, true, nil
}

// AsObject reports whether v is an object node.
func AsObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok
}

// AsArray reports whether v is an array node.
func AsArray(v any) ([]any, bool) {
	arr, ok := v.([]any)
	return arr, ok
}

// AsString reports whether v is a string node.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsNumber widens any numeric node to float64.
func AsNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case jsonx.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Negate flips the sign of a numeric node while keeping its literal kind, so
// an integer amount stays an integer.
func Negate(v any) (any, bool) {
	switch t := v.(type) {
	case int:
		return -t, true
	case int32:
		return -t, true
	case int64:
		return -t, true
	case float32:
		return -t, true
	case float64:
		return -t, true
	case jsonx.Number:
		n := NormalizeNumbers(t)
		if _, still := n.(jsonx.Number); still {
			return nil, false
		}
		return Negate(n)
	default:
		return nil, false
	}
}
