// Package builtin holds the tools every simulated domain shares.
package builtin

import (
	"context"

	"taubench/internal/toolregistry"
	"taubench/internal/worldstate"
)

// TransferToHumanName is the terminal hand-off tool.
const TransferToHumanName = "transfer_to_human_agents"

type thinkTool struct{}

// NewThink creates a scratchpad tool with no side effects.
func NewThink() toolregistry.Tool {
	return &thinkTool{}
}

func (t *thinkTool) Definition() toolregistry.Definition {
	return toolregistry.Definition{
		Name:        "think",
		Description: "Use the tool to think about something. It will not obtain new information or change the database, but just append the thought to the log. Use it when complex reasoning is needed.",
		Parameters:  toolregistry.Object(toolregistry.String("thought", "A thought to think about.")),
	}
}

func (t *thinkTool) Invoke(context.Context, worldstate.Document, toolregistry.Args) (string, error) {
	return "", nil
}

type transferTool struct{}

// NewTransferToHuman creates the hand-off tool. It ends the episode when
// registered with toolregistry.Terminal.
func NewTransferToHuman() toolregistry.Tool {
	return &transferTool{}
}

func (t *transferTool) Definition() toolregistry.Definition {
	return toolregistry.Definition{
		Name:        TransferToHumanName,
		Description: "Transfer the user to a human agent, with a summary of the user's issue. Only transfer if the user explicitly asks for a human agent, or if the user's issue cannot be resolved by the agent with the available tools.",
		Parameters:  toolregistry.Object(toolregistry.String("summary", "A summary of the user's issue.")),
	}
}

func (t *transferTool) Invoke(context.Context, worldstate.Document, toolregistry.Args) (string, error) {
	return "Transfer successful", nil
}

// Register adds the shared tools to r, marking the hand-off as terminal.
func Register(r *toolregistry.Registry) error {
	if err := r.Register(NewCalculate()); err != nil {
		return err
	}
	if err := r.Register(NewThink()); err != nil {
		return err
	}
	return r.Register(NewTransferToHuman(), toolregistry.Terminal())
}
