package toolregistry

import (
	"bytes"
	"fmt"
	"strings"

	jsonx "taubench/internal/shared/json"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Definition describes a tool for the policy in the function-tool shape.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ParameterSchema is a JSON Schema object whose properties keep their
// declaration order. Required must list exactly the property names, in the
// same order.
type ParameterSchema struct {
	Type       string
	Properties []Property
	Required   []string
}

// Property is one named parameter.
type Property struct {
	Name        string
	Type        string
	Description string
	Enum        []any
	// Items describes array elements when Type is "array".
	Items *Property
	// Properties and Required describe nested objects when Type is "object".
	Properties []Property
	Required   []string
}

// Object builds a parameter schema whose required list mirrors props.
func Object(props ...Property) ParameterSchema {
	required := make([]string, len(props))
	for i, prop := range props {
		required[i] = prop.Name
	}
	return ParameterSchema{Type: "object", Properties: props, Required: required}
}

// String declares a string parameter.
func String(name, description string) Property {
	return Property{Name: name, Type: "string", Description: description}
}

// Integer declares an integer parameter.
func Integer(name, description string) Property {
	return Property{Name: name, Type: "integer", Description: description}
}

// Number declares a numeric parameter.
func Number(name, description string) Property {
	return Property{Name: name, Type: "number", Description: description}
}

// Enum declares a string parameter restricted to values.
func Enum(name, description string, values ...string) Property {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return Property{Name: name, Type: "string", Description: description, Enum: enum}
}

// ArrayOf declares an array parameter with items.
func ArrayOf(name, description string, items Property) Property {
	return Property{Name: name, Type: "array", Description: description, Items: &items}
}

// ObjectOf declares a nested object parameter whose fields are all required.
func ObjectOf(name, description string, props ...Property) Property {
	nested := Object(props...)
	return Property{Name: name, Type: "object", Description: description, Properties: nested.Properties, Required: nested.Required}
}

// check enforces the structural rules of a tool parameter schema.
func (p ParameterSchema) check() error {
	if p.Type != "object" {
		return fmt.Errorf("parameters.type must be \"object\", got %q", p.Type)
	}
	return checkProperties("parameters", p.Properties, p.Required)
}

func checkProperties(path string, props []Property, required []string) error {
	seen := make(map[string]struct{}, len(props))
	names := make([]string, len(props))
	for i, prop := range props {
		if prop.Name == "" {
			return fmt.Errorf("%s.properties[%d] has no name", path, i)
		}
		if _, dup := seen[prop.Name]; dup {
			return fmt.Errorf("%s.properties declares %q twice", path, prop.Name)
		}
		seen[prop.Name] = struct{}{}
		names[i] = prop.Name
		if prop.Type == "object" {
			if err := checkProperties(path+"."+prop.Name, prop.Properties, prop.Required); err != nil {
				return err
			}
		}
	}
	if !equalOrdered(names, required) {
		return fmt.Errorf("%s.required %v must equal property order %v", path, required, names)
	}
	return nil
}

func equalOrdered(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MarshalJSON writes properties in declaration order.
func (p ParameterSchema) MarshalJSON() ([]byte, error) {
	return p.encode(false)
}

// encode renders the schema. strict adds additionalProperties:false, which
// is used for kwargs validation only.
func (p ParameterSchema) encode(strict bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	if err := writeJSON(&buf, p.Type); err != nil {
		return nil, err
	}
	if err := writeProperties(&buf, p.Properties, p.Required, strict); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeProperties(buf *bytes.Buffer, props []Property, required []string, strict bool) error {
	buf.WriteString(`,"properties":{`)
	for i, prop := range props {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(buf, prop.Name); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := prop.write(buf, strict); err != nil {
			return err
		}
	}
	buf.WriteString(`},"required":`)
	if required == nil {
		required = []string{}
	}
	if err := writeJSON(buf, required); err != nil {
		return err
	}
	if strict {
		buf.WriteString(`,"additionalProperties":false`)
	}
	return nil
}

func (p Property) write(buf *bytes.Buffer, strict bool) error {
	buf.WriteString(`{"type":`)
	if err := writeJSON(buf, p.Type); err != nil {
		return err
	}
	if p.Description != "" {
		buf.WriteString(`,"description":`)
		if err := writeJSON(buf, p.Description); err != nil {
			return err
		}
	}
	if len(p.Enum) > 0 {
		buf.WriteString(`,"enum":`)
		if err := writeJSON(buf, p.Enum); err != nil {
			return err
		}
	}
	if p.Items != nil {
		buf.WriteString(`,"items":`)
		if err := p.Items.write(buf, strict); err != nil {
			return err
		}
	}
	if p.Type == "object" {
		if err := writeProperties(buf, p.Properties, p.Required, strict); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// MarshalJSON renders a standalone property.
func (p Property) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.write(&buf, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	data, err := jsonx.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// compile turns the strict form of the schema into a validator.
func compile(name string, p ParameterSchema) (*jsonschema.Schema, error) {
	raw, err := p.encode(true)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	url := "mem://tools/" + name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateArgs checks args against schema. Values are round-tripped through
// JSON first so typed Go slices and maps validate like decoded fixtures.
func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := jsonx.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid arguments: %s", flattenValidation(err))
	}
	return nil
}

// flattenValidation turns the multi-line validation report into one line,
// dropping the leading schema URL line.
func flattenValidation(err error) string {
	lines := strings.Split(err.Error(), "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, "; ")
}
