// Package worldstate holds the simulated backend document an episode mutates,
// together with the canonical form used to fingerprint it.
package worldstate

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	jsonx "taubench/internal/shared/json"
)

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is the canonical, totally ordered form of a document node.
//
// Numbers carry the literal they were written with, so an integer 4 and a
// float 4.0 are different values. Object fields are sorted by key and set
// items are sorted by their canonical encoding; array items keep their order.
type Value struct {
	Kind   Kind
	Bool   bool
	Number string
	Str    string
	Items  []Value
	Fields []Field
}

// Field is one key/value entry of an object Value.
type Field struct {
	Key   string
	Value Value
}

// Set is an unordered collection. Duplicate elements collapse when the set
// is canonicalized.
type Set []any

// NewSet builds a Set from elems.
func NewSet(elems ...any) Set {
	return Set(append([]any(nil), elems...))
}

// Canonicalize converts a document node into its canonical Value.
func Canonicalize(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Value{Kind: KindNull}, nil
	case Value:
		return t, nil
	case bool:
		return Value{Kind: KindBool, Bool: t}, nil
	case string:
		return Value{Kind: KindString, Str: t}, nil
	case jsonx.Number:
		return Value{Kind: KindNumber, Number: t.String()}, nil
	case int:
		return intValue(int64(t)), nil
	case int8:
		return intValue(int64(t)), nil
	case int16:
		return intValue(int64(t)), nil
	case int32:
		return intValue(int64(t)), nil
	case int64:
		return intValue(t), nil
	case uint:
		return uintValue(uint64(t)), nil
	case uint8:
		return uintValue(uint64(t)), nil
	case uint16:
		return uintValue(uint64(t)), nil
	case uint32:
		return uintValue(uint64(t)), nil
	case uint64:
		return uintValue(t), nil
	case float32:
		return Value{Kind: KindNumber, Number: formatFloat(float64(t), 32)}, nil
	case float64:
		return Value{Kind: KindNumber, Number: formatFloat(t, 64)}, nil
	case map[string]any:
		return canonicalObject(len(t), func(yield func(string, any) error) error {
			for key, item := range t {
				if err := yield(key, item); err != nil {
					return err
				}
			}
			return nil
		})
	case []any:
		return canonicalArray(t)
	case Set:
		return canonicalSet(t)
	}
	return canonicalReflect(reflect.ValueOf(v))
}

func canonicalReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Value{Kind: KindNull}, nil
		}
		return Canonicalize(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		return canonicalObject(rv.Len(), func(yield func(string, any) error) error {
			iter := rv.MapRange()
			for iter.Next() {
				if err := yield(iter.Key().String(), iter.Value().Interface()); err != nil {
					return err
				}
			}
			return nil
		})
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Value{Kind: KindArray}, nil
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return canonicalArray(items)
	case reflect.String:
		return Value{Kind: KindString, Str: rv.String()}, nil
	case reflect.Bool:
		return Value{Kind: KindBool, Bool: rv.Bool()}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intValue(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uintValue(rv.Uint()), nil
	case reflect.Float32:
		return Value{Kind: KindNumber, Number: formatFloat(rv.Float(), 32)}, nil
	case reflect.Float64:
		return Value{Kind: KindNumber, Number: formatFloat(rv.Float(), 64)}, nil
	case reflect.Invalid:
		return Value{Kind: KindNull}, nil
	}
	return Value{}, fmt.Errorf("unsupported document value of type %s", rv.Type())
}

func canonicalObject(size int, each func(yield func(string, any) error) error) (Value, error) {
	fields := make([]Field, 0, size)
	err := each(func(key string, item any) error {
		cv, err := Canonicalize(item)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		fields = append(fields, Field{Key: key, Value: cv})
		return nil
	})
	if err != nil {
		return Value{}, err
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return Value{Kind: KindObject, Fields: fields}, nil
}

func canonicalArray(items []any) (Value, error) {
	out := make([]Value, len(items))
	for i, item := range items {
		cv, err := Canonicalize(item)
		if err != nil {
			return Value{}, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = cv
	}
	return Value{Kind: KindArray, Items: out}, nil
}

func canonicalSet(items Set) (Value, error) {
	type keyed struct {
		enc   string
		value Value
	}
	seen := make(map[string]struct{}, len(items))
	entries := make([]keyed, 0, len(items))
	for _, item := range items {
		cv, err := Canonicalize(item)
		if err != nil {
			return Value{}, err
		}
		enc := cv.String()
		if _, dup := seen[enc]; dup {
			continue
		}
		seen[enc] = struct{}{}
		entries = append(entries, keyed{enc: enc, value: cv})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].enc < entries[j].enc })
	out := make([]Value, len(entries))
	for i, entry := range entries {
		out[i] = entry.value
	}
	return Value{Kind: KindSet, Items: out}, nil
}

func intValue(n int64) Value {
	return Value{Kind: KindNumber, Number: strconv.FormatInt(n, 10)}
}

func uintValue(n uint64) Value {
	return Value{Kind: KindNumber, Number: strconv.FormatUint(n, 10)}
}

// FormatFloat renders f the way canonical numbers are written.
func FormatFloat(f float64) string {
	return formatFloat(f, 64)
}

// formatFloat renders floats the way the fixtures' source language prints
// them: integral floats keep a trailing ".0" and very large or very small
// magnitudes switch to exponent notation.
func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, bits)
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// String returns the canonical encoding of v. Strings are quoted, arrays use
// brackets, objects use braces and sets use angle brackets, so containers with
// the same elements never encode alike.
func (v Value) String() string {
	var sb strings.Builder
	v.writeTo(&sb)
	return sb.String()
}

func (v Value) writeTo(sb *strings.Builder) {
	switch v.Kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.Bool))
	case KindNumber:
		sb.WriteString(v.Number)
	case KindString:
		sb.WriteString(strconv.Quote(v.Str))
	case KindArray:
		writeItems(sb, '[', ']', v.Items)
	case KindSet:
		writeItems(sb, '<', '>', v.Items)
	case KindObject:
		sb.WriteByte('{')
		for i, field := range v.Fields {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(field.Key))
			sb.WriteByte(':')
			field.Value.writeTo(sb)
		}
		sb.WriteByte('}')
	}
}

func writeItems(sb *strings.Builder, open, close byte, items []Value) {
	sb.WriteByte(open)
	for i, item := range items {
		if i > 0 {
			sb.WriteByte(',')
		}
		item.writeTo(sb)
	}
	sb.WriteByte(close)
}

// Indent renders v with one member per line. It carries the same information
// as String and exists for human-readable diffs.
func (v Value) Indent(indent string) string {
	var sb strings.Builder
	v.writeIndented(&sb, indent, 0)
	return sb.String()
}

func (v Value) writeIndented(sb *strings.Builder, indent string, depth int) {
	var open, close byte
	switch v.Kind {
	case KindArray:
		open, close = '[', ']'
	case KindSet:
		open, close = '<', '>'
	case KindObject:
		open, close = '{', '}'
	default:
		v.writeTo(sb)
		return
	}
	n := len(v.Items)
	if v.Kind == KindObject {
		n = len(v.Fields)
	}
	sb.WriteByte(open)
	if n == 0 {
		sb.WriteByte(close)
		return
	}
	pad := strings.Repeat(indent, depth+1)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
		sb.WriteString(pad)
		if v.Kind == KindObject {
			sb.WriteString(strconv.Quote(v.Fields[i].Key))
			sb.WriteString(": ")
			v.Fields[i].Value.writeIndented(sb, indent, depth+1)
		} else {
			v.Items[i].writeIndented(sb, indent, depth+1)
		}
	}
	sb.WriteByte('\n')
	sb.WriteString(strings.Repeat(indent, depth))
	sb.WriteByte(close)
}
