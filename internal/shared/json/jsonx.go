package jsonx

import (
	"bytes"
	"io"

	"github.com/goccy/go-json"
)

// Thin wrapper so hot paths can swap JSON implementations in one place.
var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder
)

type RawMessage = json.RawMessage
type Number = json.Number

// DecodeNumbers decodes the next JSON value from r into v, keeping numbers as
// Number literals instead of collapsing them to float64.
func DecodeNumbers(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}

// UnmarshalNumbers is DecodeNumbers over an in-memory payload.
func UnmarshalNumbers(data []byte, v any) error {
	return DecodeNumbers(bytes.NewReader(data), v)
}

// MarshalStable encodes v without HTML escaping so persisted artifacts stay
// readable. The trailing newline added by the encoder is dropped.
func MarshalStable(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
