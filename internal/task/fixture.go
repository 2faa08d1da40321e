package task

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jsonx "taubench/internal/shared/json"
	"taubench/internal/worldstate"

	"gopkg.in/yaml.v3"
)

// Format selects the fixture encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadFile reads a fixture list from path.
func LoadFile(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	tasks, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tasks, nil
}

// Parse decodes and validates a fixture list. Tasks without an id are
// numbered by position, and ids must be unique.
func Parse(data []byte, format Format) ([]Task, error) {
	var tasks []Task
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &tasks); err != nil {
			return nil, fmt.Errorf("decode yaml tasks: %w", err)
		}
	case FormatJSON, "":
		if err := jsonx.DecodeNumbers(bytes.NewReader(data), &tasks); err != nil {
			return nil, fmt.Errorf("decode json tasks: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported task format %q", format)
	}

	seen := make(map[string]int, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		if t.ID == "" {
			t.ID = strconv.Itoa(i)
		}
		if prev, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("task id %q used by entries %d and %d", t.ID, prev, i)
		}
		seen[t.ID] = i
		for j := range t.Actions {
			t.Actions[j].Kwargs = normalizeKwargs(t.Actions[j].Kwargs)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// normalizeKwargs gives kwargs the same numeric and container types that
// worldstate.Decode produces, whichever decoder read them.
func normalizeKwargs(kwargs map[string]any) map[string]any {
	if kwargs == nil {
		return map[string]any{}
	}
	out, _ := worldstate.NormalizeNumbers(normalizeYAML(kwargs)).(map[string]any)
	return out
}

func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for key, item := range t {
			t[key] = normalizeYAML(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for key, item := range t {
			out[fmt.Sprint(key)] = normalizeYAML(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = normalizeYAML(item)
		}
		return t
	case int:
		return int64(t)
	case uint64:
		if t <= 1<<63-1 {
			return int64(t)
		}
		return float64(t)
	default:
		return v
	}
}

// Index maps task ids to positions in tasks.
func Index(tasks []Task) map[string]int {
	out := make(map[string]int, len(tasks))
	for i, t := range tasks {
		out[t.ID] = i
	}
	return out
}
