// Package task defines the immutable task fixtures an episode is scored
// against and the actions an agent emits.
package task

import (
	"fmt"
	"strings"
)

// RespondActionName is the reserved action that sends text to the user.
const RespondActionName = "respond"

// RespondContentKey is the kwarg that carries the respond text.
const RespondContentKey = "content"

// Action is one agent decision: a respond, a tool call or an unknown name.
type Action struct {
	Name   string         `json:"name" yaml:"name"`
	Kwargs map[string]any `json:"kwargs" yaml:"kwargs"`
}

// Respond builds a respond action carrying content.
func Respond(content string) Action {
	return Action{Name: RespondActionName, Kwargs: map[string]any{RespondContentKey: content}}
}

// IsRespond reports whether a is the reserved respond action.
func (a Action) IsRespond() bool {
	return a.Name == RespondActionName
}

// Content returns the respond text, or "" when absent or not a string.
func (a Action) Content() string {
	s, _ := a.Kwargs[RespondContentKey].(string)
	return s
}

func (a Action) String() string {
	if a.IsRespond() {
		return fmt.Sprintf("respond(%q)", a.Content())
	}
	return fmt.Sprintf("%s(%v)", a.Name, a.Kwargs)
}

// Task is a scripted customer-service scenario.
//
// Actions is the ground-truth sequence replayed for action scoring. Outputs,
// when non-empty, switches scoring to substring matching over respond
// content and Actions is then ignored by the evaluator.
type Task struct {
	ID          string   `json:"id,omitempty" yaml:"id,omitempty"`
	UserID      string   `json:"user_id" yaml:"user_id"`
	Instruction string   `json:"instruction" yaml:"instruction"`
	Actions     []Action `json:"actions" yaml:"actions"`
	Outputs     []string `json:"outputs" yaml:"outputs"`
	Annotator   string   `json:"annotator,omitempty" yaml:"annotator,omitempty"`
}

// ScoresOutputs reports whether the task is scored by output matching.
func (t Task) ScoresOutputs() bool {
	return len(t.Outputs) > 0
}

// Validate checks the fields every fixture must carry.
func (t Task) Validate() error {
	var problems []string
	if strings.TrimSpace(t.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if strings.TrimSpace(t.Instruction) == "" {
		problems = append(problems, "instruction is required")
	}
	for i, action := range t.Actions {
		if strings.TrimSpace(action.Name) == "" {
			problems = append(problems, fmt.Sprintf("actions[%d].name is required", i))
		}
	}
	for i, output := range t.Outputs {
		if output == "" {
			problems = append(problems, fmt.Sprintf("outputs[%d] is empty", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("task %s: %s", t.ID, strings.Join(problems, "; "))
	}
	return nil
}
