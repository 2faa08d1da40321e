package toolregistry

import (
	"fmt"
	"math"

	"taubench/internal/worldstate"
)

// Args are the validated keyword arguments of a tool call.
type Args map[string]any

// String returns a string argument.
func (a Args) String(key string) (string, error) {
	raw, ok := a[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, raw)
	}
	return s, nil
}

// Int returns an integer argument. Integral floats are accepted.
func (a Args) Int(key string) (int64, error) {
	raw, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	}
	f, ok := worldstate.AsNumber(raw)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("argument %q must be an integer, got %v", key, raw)
	}
	return int64(f), nil
}

// Float returns a numeric argument widened to float64.
func (a Args) Float(key string) (float64, error) {
	raw, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	f, ok := worldstate.AsNumber(raw)
	if !ok {
		return 0, fmt.Errorf("argument %q must be a number, got %T", key, raw)
	}
	return f, nil
}

// Raw returns the argument as decoded, keeping its numeric literal kind.
func (a Args) Raw(key string) (any, error) {
	raw, ok := a[key]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	return raw, nil
}

// Strings returns a list-of-strings argument.
func (a Args) Strings(key string) ([]string, error) {
	raw, ok := a[key]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	switch items := raw.(type) {
	case []string:
		return append([]string(nil), items...), nil
	case []any:
		out := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q[%d] must be a string, got %T", key, i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %q must be a list of strings, got %T", key, raw)
	}
}

// Object returns a nested object argument.
func (a Args) Object(key string) (map[string]any, error) {
	raw, ok := a[key]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an object, got %T", key, raw)
	}
	return obj, nil
}
