package worldstate

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	jsonx "taubench/internal/shared/json"
)

// Document is the root of a simulated backend: logical collections such as
// users, reservations or orders keyed by name.
type Document = map[string]any

// Loader produces a pristine document. Every call must return a value that
// shares no mutable structure with any previously returned document.
type Loader func() (Document, error)

// Store owns the document of a single episode.
type Store struct {
	load Loader
	data Document
}

// NewStore wraps load. The store is empty until Reset is called.
func NewStore(load Loader) *Store {
	return &Store{load: load}
}

// Reset discards the current document and loads a pristine one.
func (s *Store) Reset() (Document, error) {
	if s.load == nil {
		return nil, fmt.Errorf("worldstate: no loader configured")
	}
	data, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("load pristine state: %w", err)
	}
	if data == nil {
		data = Document{}
	}
	s.data = data
	return data, nil
}

// Data returns the live document. Tools mutate it in place.
func (s *Store) Data() Document {
	return s.data
}

// Hash fingerprints the live document.
func (s *Store) Hash() (Digest, error) {
	return Hash(s.data)
}

// Loader exposes the pristine loader so reward replay can build an
// independent document.
func (s *Store) Loader() Loader {
	return s.load
}

// JSONLoader returns a Loader that decodes raw on every call.
func JSONLoader(raw []byte) Loader {
	return func() (Document, error) {
		return Decode(bytes.NewReader(raw))
	}
}

// CopyLoader returns a Loader that deep-copies doc on every call.
func CopyLoader(doc Document) Loader {
	return func() (Document, error) {
		copied, _ := DeepCopy(doc).(map[string]any)
		return copied, nil
	}
}

// Decode reads a JSON object. Integer literals become int64 and literals with
// a fraction or exponent become float64, so the two stay distinguishable.
func Decode(r io.Reader) (Document, error) {
	var raw any
	if err := jsonx.DecodeNumbers(r, &raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	obj, ok := NormalizeNumbers(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode document: top-level value is %T, want object", raw)
	}
	return obj, nil
}

// NormalizeNumbers replaces Number literals inside v with int64 or float64.
// Integers that overflow int64 keep their literal.
func NormalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for key, item := range t {
			t[key] = NormalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = NormalizeNumbers(item)
		}
		return t
	case jsonx.Number:
		lit := t.String()
		if !strings.ContainsAny(lit, ".eE") {
			if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
				return n
			}
			return t
		}
		if f, err := strconv.ParseFloat(lit, 64); err == nil {
			return f
		}
		return t
	default:
		return v
	}
}

// DeepCopy clones maps, slices and sets recursively. Scalars are shared since
// they are immutable.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, item := range t {
			out[key] = DeepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = DeepCopy(item)
		}
		return out
	case Set:
		out := make(Set, len(t))
		for i, item := range t {
			out[i] = DeepCopy(item)
		}
		return out
	default:
		return v
	}
}
