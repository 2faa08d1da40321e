package agent

import (
	"context"
	"strings"

	"taubench/internal/task"
)

// Policy chooses the next action of the customer-service agent.
type Policy interface {
	Next(ctx context.Context, conv Conversation) (task.Action, error)
}

// PolicyFunc adapts a function into a Policy.
type PolicyFunc func(ctx context.Context, conv Conversation) (task.Action, error)

func (f PolicyFunc) Next(ctx context.Context, conv Conversation) (task.Action, error) {
	return f(ctx, conv)
}

// ClosingMessage is what the replay policy says after the ground truth when
// the task expects no outputs.
const ClosingMessage = "Is there anything else I can help you with?"

// ReplayPolicy emits the task's ground-truth actions in order and then
// responds once with the expected outputs, or ClosingMessage when there are
// none. It keeps no state between calls, so one value serves any number of
// concurrent episodes.
type ReplayPolicy struct{}

func (ReplayPolicy) Next(_ context.Context, conv Conversation) (task.Action, error) {
	step := conv.Steps()
	if step < len(conv.Task.Actions) {
		return conv.Task.Actions[step], nil
	}
	if len(conv.Task.Outputs) > 0 {
		return task.Respond("Here is what I found: " + strings.Join(conv.Task.Outputs, "; ") + "."), nil
	}
	return task.Respond(ClosingMessage), nil
}
