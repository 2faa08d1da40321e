// Package domains describes a simulated customer-service backend: its
// pristine data, tool catalogue, policy text and task fixtures.
package domains

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"taubench/internal/logging"
	jsonx "taubench/internal/shared/json"
	"taubench/internal/task"
	"taubench/internal/toolregistry"
	"taubench/internal/tools/builtin"
	"taubench/internal/worldstate"
)

// DefaultSplit is the task split used when none is requested.
const DefaultSplit = "test"

// Domain bundles everything an episode needs for one backend.
type Domain struct {
	Name   string
	Loader worldstate.Loader
	// RegisterTools adds the domain-specific tools to a registry.
	RegisterTools func(r *toolregistry.Registry) error
	// Splits maps a split name such as "test" or "train" to its tasks.
	Splits map[string][]task.Task
	Wiki   string
	Rules  []string
}

// NewRegistry builds a registry with the shared tools and the domain tools.
func (d Domain) NewRegistry(logger logging.Logger) (*toolregistry.Registry, error) {
	r := toolregistry.NewRegistry(logger)
	if d.RegisterTools != nil {
		if err := d.RegisterTools(r); err != nil {
			return nil, fmt.Errorf("%s tools: %w", d.Name, err)
		}
	}
	if err := builtin.Register(r); err != nil {
		return nil, fmt.Errorf("%s shared tools: %w", d.Name, err)
	}
	return r, nil
}

// Tasks returns the tasks of split. An empty split selects DefaultSplit.
func (d Domain) Tasks(split string) ([]task.Task, error) {
	if split == "" {
		split = DefaultSplit
	}
	tasks, ok := d.Splits[split]
	if !ok {
		return nil, fmt.Errorf("domain %s has no %q task split (have %s)", d.Name, split, strings.Join(d.SplitNames(), ", "))
	}
	return tasks, nil
}

// SplitNames lists the available splits in sorted order.
func (d Domain) SplitNames() []string {
	names := make([]string, 0, len(d.Splits))
	for name := range d.Splits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Constructor builds a Domain.
type Constructor func() (Domain, error)

// Catalog resolves domains by name.
type Catalog struct {
	ctors map[string]Constructor
}

// NewCatalog indexes ctors under the names they report.
func NewCatalog(ctors map[string]Constructor) *Catalog {
	c := &Catalog{ctors: make(map[string]Constructor, len(ctors))}
	for name, ctor := range ctors {
		c.ctors[name] = ctor
	}
	return c
}

// Get builds the named domain.
func (c *Catalog) Get(name string) (Domain, error) {
	ctor, ok := c.ctors[name]
	if !ok {
		return Domain{}, fmt.Errorf("unknown domain %q (have %s)", name, strings.Join(c.Names(), ", "))
	}
	d, err := ctor()
	if err != nil {
		return Domain{}, fmt.Errorf("build domain %s: %w", name, err)
	}
	return d, nil
}

// Names lists the catalogued domains in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.ctors))
	for name := range c.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Observe renders v as the JSON observation a tool returns.
func Observe(v any) (string, error) {
	data, err := jsonx.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode observation: %w", err)
	}
	return string(data), nil
}

// Add sums two numeric nodes. The result stays an integer only when both
// operands are integers.
func Add(a, b any) (any, error) {
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		return ai + bi, nil
	}
	af, ok := worldstate.AsNumber(a)
	if !ok {
		return nil, fmt.Errorf("%v is not a number", a)
	}
	bf, ok := worldstate.AsNumber(b)
	if !ok {
		return nil, fmt.Errorf("%v is not a number", b)
	}
	return af + bf, nil
}

// Round2 rounds floats to cents and leaves integers untouched.
func Round2(v any) any {
	if f, ok := v.(float64); ok {
		return math.Round(f*100) / 100
	}
	return v
}

// Literal renders a numeric or string node the way it was written.
func Literal(v any) string {
	cv, err := worldstate.Canonicalize(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	if cv.Kind == worldstate.KindString {
		return cv.Str
	}
	return cv.String()
}

// LoadTasks parses an embedded fixture file of domain.
func LoadTasks(domain string, data []byte, format task.Format) ([]task.Task, error) {
	tasks, err := task.Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s tasks: %w", domain, err)
	}
	return tasks, nil
}
