package toolregistry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"taubench/internal/async"
	"taubench/internal/logging"
	"taubench/internal/task"
	"taubench/internal/worldstate"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Tool is a handler over the episode's world state.
type Tool interface {
	Definition() Definition
	// Invoke may mutate data in place. A returned error is shown to the agent
	// as "Error: <message>".
	Invoke(ctx context.Context, data worldstate.Document, args Args) (string, error)
}

// HandlerFunc is the signature of a function-backed tool.
type HandlerFunc func(ctx context.Context, data worldstate.Document, args Args) (string, error)

type funcTool struct {
	def Definition
	fn  HandlerFunc
}

// Func adapts fn into a Tool.
func Func(def Definition, fn HandlerFunc) Tool {
	return &funcTool{def: def, fn: fn}
}

func (t *funcTool) Definition() Definition { return t.def }

func (t *funcTool) Invoke(ctx context.Context, data worldstate.Document, args Args) (string, error) {
	return t.fn(ctx, data, args)
}

// ActionKind classifies an action name.
type ActionKind int

const (
	KindUnregistered ActionKind = iota
	KindRespond
	KindTool
)

func (k ActionKind) String() string {
	switch k {
	case KindRespond:
		return "respond"
	case KindTool:
		return "tool"
	default:
		return "unregistered"
	}
}

// Option configures a tool at registration.
type Option func(*entry)

// Terminal marks the tool as ending the episode once invoked.
func Terminal() Option {
	return func(e *entry) { e.terminal = true }
}

type entry struct {
	tool     Tool
	def      Definition
	schema   *jsonschema.Schema
	terminal bool
}

// Registry maps tool names to handlers. It is safe for concurrent use and
// holds no episode state, so one registry can serve many episodes.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	order  []string
	logger logging.Logger
}

// NewRegistry returns an empty registry. A nil logger discards output.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*entry),
		logger: logging.OrNop(logger),
	}
}

// Register adds tool after validating its definition.
func (r *Registry) Register(tool Tool, opts ...Option) error {
	if tool == nil {
		return errors.New("tool is nil")
	}
	def := tool.Definition()
	name := strings.TrimSpace(def.Name)
	switch {
	case name == "":
		return errors.New("tool name is empty")
	case name != def.Name:
		return fmt.Errorf("tool name %q has surrounding whitespace", def.Name)
	case name == task.RespondActionName:
		return fmt.Errorf("tool name %q is reserved", name)
	}
	if err := def.Parameters.check(); err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}
	schema, err := compile(name, def.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	e := &entry{tool: tool, def: def, schema: schema}
	for _, opt := range opts {
		opt(e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already exists: %s", name)
	}
	r.tools[name] = e
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register for static tool tables; it panics on error.
func (r *Registry) MustRegister(tool Tool, opts ...Option) {
	if err := r.Register(tool, opts...); err != nil {
		panic(err)
	}
}

// Get returns the tool registered as name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.tools[name]; ok {
		return e.tool, nil
	}
	return nil, fmt.Errorf("tool not found: %s", name)
}

// Resolve classifies name.
func (r *Registry) Resolve(name string) ActionKind {
	if name == task.RespondActionName {
		return KindRespond
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.tools[name]; ok {
		return KindTool
	}
	return KindUnregistered
}

// IsTerminal reports whether name is a registered terminal tool.
func (r *Registry) IsTerminal(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return ok && e.terminal
}

// Definitions lists tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].def)
	}
	return defs
}

// Names lists tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Dispatch validates action against the tool schema and invokes it on data.
//
// The observation is always set. A non-nil error is either a *ToolError or an
// *UnknownActionError; both are recoverable and Dispatch never panics.
func (r *Registry) Dispatch(ctx context.Context, data worldstate.Document, action task.Action) (string, error) {
	r.mu.RLock()
	e, ok := r.tools[action.Name]
	r.mu.RUnlock()
	if !ok {
		unknown := &UnknownActionError{Name: action.Name}
		return unknown.Observation(), unknown
	}

	if err := validateArgs(e.schema, action.Kwargs); err != nil {
		toolErr := &ToolError{Tool: action.Name, Err: err}
		return toolErr.Observation(), toolErr
	}

	var observation string
	err := async.Run(r.logger, "tool "+action.Name, func() error {
		var invokeErr error
		observation, invokeErr = e.tool.Invoke(ctx, data, Args(action.Kwargs))
		return invokeErr
	})
	if err != nil {
		toolErr := &ToolError{Tool: action.Name, Err: err}
		return toolErr.Observation(), toolErr
	}
	return observation, nil
}
