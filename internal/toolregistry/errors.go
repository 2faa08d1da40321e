package toolregistry

import "fmt"

// ToolError reports a failed tool invocation: invalid arguments, a handler
// error or a recovered handler panic. The episode continues and the agent
// sees the observation "Error: <message>".
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Recoverable marks the error as agent-visible rather than trial-fatal.
func (e *ToolError) Recoverable() bool {
	return true
}

// Observation is the text returned to the agent for this failure.
func (e *ToolError) Observation() string {
	return "Error: " + e.Err.Error()
}

// UnknownActionError reports an action name that is neither respond nor a
// registered tool.
type UnknownActionError struct {
	Name string
}

func (e *UnknownActionError) Error() string {
	return "unknown action: " + e.Name
}

// Recoverable marks the error as agent-visible rather than trial-fatal.
func (e *UnknownActionError) Recoverable() bool {
	return true
}

// Observation is the text returned to the agent for this failure.
func (e *UnknownActionError) Observation() string {
	return "Unknown action " + e.Name
}
